package processor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aureliax/dexcore/internal/dex/orderid"
	"github.com/aureliax/dexcore/internal/dex/state"
	"github.com/aureliax/dexcore/internal/engine"
)

// cancelOrder removes one resting order and returns its unfilled remainder
// from locked to free on the asset side matching the order's side.
//
// The engine call is the single external side effect. If it fails the whole
// instruction aborts with no partial mutation; the host's all-or-nothing
// persistence of account writes is the atomicity this relies on.
func (p *Processor) cancelOrder(ctx context.Context, accounts []*AccountRef, data []byte) error {
	params, err := decodeCancelOrder(data)
	if err != nil {
		return err
	}
	a, err := parseOrderAccounts(accounts)
	if err != nil {
		return err
	}

	ms, err := loadMarket(a.market)
	if err != nil {
		return err
	}

	ua, err := state.LoadUser(a.user.Rec, a.userOwner.Rec.Key, a.market.Rec.Key)
	if err != nil {
		return err
	}

	authority := engine.NewCapability(p.programID, a.market.Rec.Key, ms.SignerNonce)
	if err := p.checkMarketAccounts(ms, a, authority); err != nil {
		return err
	}

	id, err := ua.ReadOrder(params.OrderIndex)
	if err != nil {
		return err
	}

	if err := p.eng.Cancel(&engine.CancelRequest{
		Orderbook:    a.orderbook.Rec.Key,
		Bids:         a.bids.Rec.Key,
		Asks:         a.asks.Rec.Key,
		Authority:    authority,
		ResultRegion: a.resultRegion.Rec,
		OrderID:      id,
	}); err != nil {
		return engineErr(err)
	}

	// A successful cancel is defined to populate the register before the
	// call returns; an empty register here is a broken engine, not an input
	// error.
	summary, err := engine.TakeSummary(a.resultRegion.Rec)
	if err != nil {
		panic(fmt.Sprintf("result register empty after successful cancel of order %d: %v", id, err))
	}

	switch id.Side() {
	case orderid.Bid:
		ua.QuoteFree = checkedAdd(ua.QuoteFree, summary.QuoteQty, "quote_free")
		ua.QuoteLocked = checkedSub(ua.QuoteLocked, summary.QuoteQty, "quote_locked")
	case orderid.Ask:
		ua.BaseFree = checkedAdd(ua.BaseFree, summary.BaseQty, "base_free")
		ua.BaseLocked = checkedSub(ua.BaseLocked, summary.BaseQty, "base_locked")
	}

	if err := ua.RemoveOrder(params.OrderIndex); err != nil {
		return err
	}
	ua.Write()

	p.logger.Info("order cancelled",
		zap.String("market", a.market.Rec.Key.String()),
		zap.String("user", a.user.Rec.Key.String()),
		zap.Uint64("order_id", uint64(id)),
		zap.String("side", id.Side().String()),
		zap.Uint64("base_unlocked", summary.BaseQty),
		zap.Uint64("quote_unlocked", summary.QuoteQty))
	return nil
}

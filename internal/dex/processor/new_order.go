package processor

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/dex/orderid"
	"github.com/aureliax/dexcore/internal/dex/state"
	"github.com/aureliax/dexcore/internal/engine"
)

// newOrder locks funds on the order's side, places a limit order with the
// engine and records any posted remainder in the user's slab. Uses the same
// nine-account set as cancel.
func (p *Processor) newOrder(ctx context.Context, accounts []*AccountRef, data []byte) error {
	params, err := decodeNewOrder(data)
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

	if params.MaxBaseQty == 0 {
		return cerrors.Wrap(cerrors.ErrInvalidArgument, "zero order quantity")
	}
	// The slot must exist before the engine call: the book mutation cannot
	// be unwound once the call returns.
	if !ua.HasCapacity() {
		return cerrors.Wrap(cerrors.ErrInvalidArgument, "order slab full (capacity %d)", ua.Capacity())
	}

	// Lock the full committed amount up front. Taker fills unwind their
	// share through consume-events; a posted remainder stays locked until
	// it fills or is cancelled.
	switch params.Side {
	case orderid.Bid:
		if params.LimitPrice != 0 && params.MaxBaseQty > math.MaxUint64/params.LimitPrice {
			return cerrors.Wrap(cerrors.ErrInvalidArgument, "order size overflows quote lots")
		}
		lock := params.MaxBaseQty * params.LimitPrice
		if ua.QuoteFree < lock {
			return cerrors.Wrap(cerrors.ErrInvalidArgument, "insufficient free quote: have %d, need %d", ua.QuoteFree, lock)
		}
		ua.QuoteFree -= lock
		ua.QuoteLocked = checkedAdd(ua.QuoteLocked, lock, "quote_locked")
	case orderid.Ask:
		if ua.BaseFree < params.MaxBaseQty {
			return cerrors.Wrap(cerrors.ErrInvalidArgument, "insufficient free base: have %d, need %d", ua.BaseFree, params.MaxBaseQty)
		}
		ua.BaseFree -= params.MaxBaseQty
		ua.BaseLocked = checkedAdd(ua.BaseLocked, params.MaxBaseQty, "base_locked")
	}

	if err := p.eng.NewOrder(&engine.NewOrderRequest{
		Orderbook:    a.orderbook.Rec.Key,
		Bids:         a.bids.Rec.Key,
		Asks:         a.asks.Rec.Key,
		Authority:    authority,
		ResultRegion: a.resultRegion.Rec,
		UserAccount:  a.user.Rec.Key,
		Side:         params.Side,
		LimitPrice:   params.LimitPrice,
		MaxBaseQty:   params.MaxBaseQty,
	}); err != nil {
		return engineErr(err)
	}

	summary, err := engine.TakeSummary(a.resultRegion.Rec)
	if err != nil {
		panic(fmt.Sprintf("result register empty after successful order placement: %v", err))
	}

	if summary.OrderID != 0 {
		if _, err := ua.InsertOrder(summary.OrderID); err != nil {
			return err
		}
	}
	ua.Write()

	p.logger.Info("order placed",
		zap.String("market", a.market.Rec.Key.String()),
		zap.String("user", a.user.Rec.Key.String()),
		zap.String("side", params.Side.String()),
		zap.Uint64("limit_price", params.LimitPrice),
		zap.Uint64("max_base_qty", params.MaxBaseQty),
		zap.Uint64("posted_order_id", uint64(summary.OrderID)))
	return nil
}

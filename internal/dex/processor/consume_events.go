package processor

import (
	"context"

	"go.uber.org/zap"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/dex/orderid"
	"github.com/aureliax/dexcore/internal/dex/state"
	"github.com/aureliax/dexcore/internal/engine"
	"github.com/aureliax/dexcore/internal/ledger"
)

// consumeEvents drains up to max-iterations events from the book's queue and
// applies fills and outs to the user accounts supplied in the instruction's
// account tail. Account order: engine program, market, market signer,
// orderbook, then one reference per affected user account.
func (p *Processor) consumeEvents(ctx context.Context, accounts []*AccountRef, data []byte) error {
	params, err := decodeConsumeEvents(data)
	if err != nil {
		return err
	}
	if len(accounts) < 4 {
		return cerrors.Wrap(cerrors.ErrAccountCount, "expected at least 4 accounts, got %d", len(accounts))
	}
	if params.MaxIterations == 0 {
		return cerrors.Wrap(cerrors.ErrInvalidArgument, "max iterations must be non-zero")
	}
	engineProgram, market := accounts[0], accounts[1]
	marketSigner, orderbook := accounts[2], accounts[3]
	tail := accounts[4:]

	ms, err := loadMarket(market)
	if err != nil {
		return err
	}

	authority := engine.NewCapability(p.programID, market.Rec.Key, ms.SignerNonce)
	if marketSigner.Rec.Key != authority.Address {
		return cerrors.Wrap(cerrors.ErrInvalidAccountKey, "market signer %s does not match derived %s",
			marketSigner.Rec.Key, authority.Address)
	}
	if orderbook.Rec.Key != ms.Orderbook {
		return cerrors.Wrap(cerrors.ErrInvalidAccountKey, "orderbook %s does not match market state", orderbook.Rec.Key)
	}
	if engineProgram.Rec.Key != ms.EngineProgram {
		return cerrors.Wrap(cerrors.ErrInvalidAccountKey, "engine program %s does not match market state", engineProgram.Rec.Key)
	}

	refs := make(map[ledger.Address]*AccountRef, len(tail))
	for _, ref := range tail {
		refs[ref.Rec.Key] = ref
	}

	events, err := p.eng.PopEvents(orderbook.Rec.Key, params.MaxIterations)
	if err != nil {
		return engineErr(err)
	}

	// Each touched account is parsed once and written back once.
	loaded := make(map[ledger.Address]*state.UserAccount)
	for _, ev := range events {
		ua, ok := loaded[ev.UserAccount]
		if !ok {
			ref, found := refs[ev.UserAccount]
			if !found {
				return cerrors.Wrap(cerrors.ErrInvalidArgument, "missing user account %s for event", ev.UserAccount)
			}
			ua, err = state.ParseUser(ref.Rec)
			if err != nil {
				return err
			}
			if ua.Market != market.Rec.Key {
				return cerrors.Wrap(cerrors.ErrInvalidMarket, "event account %s bound to market %s", ev.UserAccount, ua.Market)
			}
			loaded[ev.UserAccount] = ua
		}
		applyEvent(ua, ev)
	}
	for _, ua := range loaded {
		ua.Write()
	}

	p.logger.Info("events consumed",
		zap.String("market", market.Rec.Key.String()),
		zap.Int("events", len(events)),
		zap.Int("accounts", len(loaded)))
	return nil
}

// applyEvent settles one book event against a user account. Fills convert
// locked funds on the order's side into free funds on the opposite asset at
// the traded amounts; outs release an exhausted order's remainder and free
// its slab slot.
func applyEvent(ua *state.UserAccount, ev engine.Event) {
	switch ev.Kind {
	case engine.EventFill:
		if ev.Side == orderid.Bid {
			ua.QuoteLocked = checkedSub(ua.QuoteLocked, ev.QuoteQty, "quote_locked")
			ua.BaseFree = checkedAdd(ua.BaseFree, ev.BaseQty, "base_free")
		} else {
			ua.BaseLocked = checkedSub(ua.BaseLocked, ev.BaseQty, "base_locked")
			ua.QuoteFree = checkedAdd(ua.QuoteFree, ev.QuoteQty, "quote_free")
		}
	case engine.EventOut:
		if ev.Side == orderid.Bid {
			ua.QuoteFree = checkedAdd(ua.QuoteFree, ev.QuoteQty, "quote_free")
			ua.QuoteLocked = checkedSub(ua.QuoteLocked, ev.QuoteQty, "quote_locked")
		} else {
			ua.BaseFree = checkedAdd(ua.BaseFree, ev.BaseQty, "base_free")
			ua.BaseLocked = checkedSub(ua.BaseLocked, ev.BaseQty, "base_locked")
		}
		ua.RemoveOrderByID(ev.OrderID)
	}
}

package processor

import (
	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/dex/state"
	"github.com/aureliax/dexcore/internal/engine"
)

// orderAccounts is the standard nine-reference account set shared by the
// new-order and cancel-order instructions, in wire order.
type orderAccounts struct {
	engineProgram *AccountRef
	market        *AccountRef
	marketSigner  *AccountRef
	orderbook     *AccountRef
	resultRegion  *AccountRef
	bids          *AccountRef
	asks          *AccountRef
	user          *AccountRef
	userOwner     *AccountRef
}

// parseOrderAccounts validates the account count and the user-owner signer
// requirement before any record is decoded.
func parseOrderAccounts(accounts []*AccountRef) (*orderAccounts, error) {
	if len(accounts) != 9 {
		return nil, cerrors.Wrap(cerrors.ErrAccountCount, "expected 9 accounts, got %d", len(accounts))
	}
	a := &orderAccounts{
		engineProgram: accounts[0],
		market:        accounts[1],
		marketSigner:  accounts[2],
		orderbook:     accounts[3],
		resultRegion:  accounts[4],
		bids:          accounts[5],
		asks:          accounts[6],
		user:          accounts[7],
		userOwner:     accounts[8],
	}
	if !a.userOwner.Signer {
		return nil, cerrors.Wrap(cerrors.ErrMissingSigner, "user owner %s", a.userOwner.Rec.Key)
	}
	return a, nil
}

// checkMarketAccounts asserts that the supplied signer, order-book and
// engine references match the market's stored configuration. Any mismatch
// aborts before the external call, so a rogue engine or book can never
// obtain the market's delegated signature.
func (p *Processor) checkMarketAccounts(ms *state.MarketState, a *orderAccounts, authority engine.SignerCapability) error {
	if a.marketSigner.Rec.Key != authority.Address {
		return cerrors.Wrap(cerrors.ErrInvalidAccountKey, "market signer %s does not match derived %s",
			a.marketSigner.Rec.Key, authority.Address)
	}
	if a.orderbook.Rec.Key != ms.Orderbook {
		return cerrors.Wrap(cerrors.ErrInvalidAccountKey, "orderbook %s does not match market state", a.orderbook.Rec.Key)
	}
	if a.engineProgram.Rec.Key != ms.EngineProgram {
		return cerrors.Wrap(cerrors.ErrInvalidAccountKey, "engine program %s does not match market state", a.engineProgram.Rec.Key)
	}
	return nil
}

// loadMarket parses and validates the market record, then re-persists it
// unchanged as a defensive round-trip against corrupt encodings.
func loadMarket(market *AccountRef) (*state.MarketState, error) {
	ms, err := state.ParseMarket(market.Rec.Data)
	if err != nil {
		return nil, err
	}
	if err := ms.Write(market.Rec.Data); err != nil {
		return nil, err
	}
	return ms, nil
}

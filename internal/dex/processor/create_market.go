package processor

import (
	"context"

	"go.uber.org/zap"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/dex/state"
	"github.com/aureliax/dexcore/internal/engine"
)

// createMarket initializes a market record, its result region and its order
// book. Account order: engine program, market, orderbook, bids, asks,
// result region.
func (p *Processor) createMarket(ctx context.Context, accounts []*AccountRef, data []byte) error {
	params, err := decodeCreateMarket(data)
	if err != nil {
		return err
	}
	if len(accounts) != 6 {
		return cerrors.Wrap(cerrors.ErrAccountCount, "expected 6 accounts, got %d", len(accounts))
	}
	engineProgram, market, orderbook := accounts[0], accounts[1], accounts[2]
	bids, asks, resultRegion := accounts[3], accounts[4], accounts[5]

	if params.BaseLotSize == 0 || params.QuoteLotSize == 0 {
		return cerrors.Wrap(cerrors.ErrInvalidArgument, "lot sizes must be non-zero")
	}
	if len(market.Rec.Data) != 0 {
		return cerrors.Wrap(cerrors.ErrInvalidState, "market record %s already initialized", market.Rec.Key)
	}

	ms := &state.MarketState{
		Tag:           state.TagMarket,
		Orderbook:     orderbook.Rec.Key,
		EngineProgram: engineProgram.Rec.Key,
		BaseMint:      params.BaseMint,
		QuoteMint:     params.QuoteMint,
		SignerNonce:   params.SignerNonce,
		BaseLotSize:   params.BaseLotSize,
		QuoteLotSize:  params.QuoteLotSize,
	}
	market.Rec.Data = make([]byte, state.MarketStateLen)
	if err := ms.Write(market.Rec.Data); err != nil {
		return err
	}

	engine.InitResultRegion(resultRegion.Rec)

	authority := engine.DeriveSigner(p.programID, market.Rec.Key, params.SignerNonce)
	if err := p.eng.CreateBook(orderbook.Rec.Key, bids.Rec.Key, asks.Rec.Key, authority); err != nil {
		return engineErr(err)
	}

	p.logger.Info("market created",
		zap.String("market", market.Rec.Key.String()),
		zap.String("orderbook", orderbook.Rec.Key.String()),
		zap.String("authority", authority.String()))
	return nil
}

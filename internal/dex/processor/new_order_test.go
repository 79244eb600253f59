package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/dex/orderid"
	"github.com/aureliax/dexcore/internal/engine"
)

func TestNewOrderLocksQuoteForBid(t *testing.T) {
	f := newFixture(t)
	f.ua.QuoteFree = 1000
	f.ua.Write()

	posted := orderid.New(orderid.Bid, 10, 1)
	f.stub.summary = engine.OrderSummary{Side: orderid.Bid, OrderID: posted, BaseQty: 50, QuoteQty: 500}

	payload := EncodeNewOrder(NewOrderParams{Side: orderid.Bid, LimitPrice: 10, MaxBaseQty: 50})
	require.NoError(t, f.proc.Process(context.Background(), f.accounts, payload))

	ua := f.reload(t)
	assert.Equal(t, uint64(500), ua.QuoteFree)
	assert.Equal(t, uint64(500), ua.QuoteLocked)
	assert.Equal(t, uint32(1), ua.OpenOrders())
	id, err := ua.ReadOrder(0)
	require.NoError(t, err)
	assert.Equal(t, posted, id)
}

func TestNewOrderLocksBaseForAsk(t *testing.T) {
	f := newFixture(t)
	f.ua.BaseFree = 80
	f.ua.Write()

	posted := orderid.New(orderid.Ask, 10, 1)
	f.stub.summary = engine.OrderSummary{Side: orderid.Ask, OrderID: posted, BaseQty: 80, QuoteQty: 800}

	payload := EncodeNewOrder(NewOrderParams{Side: orderid.Ask, LimitPrice: 10, MaxBaseQty: 80})
	require.NoError(t, f.proc.Process(context.Background(), f.accounts, payload))

	ua := f.reload(t)
	assert.Equal(t, uint64(0), ua.BaseFree)
	assert.Equal(t, uint64(80), ua.BaseLocked)
}

func TestNewOrderFullyFilledDoesNotRest(t *testing.T) {
	f := newFixture(t)
	f.ua.QuoteFree = 500
	f.ua.Write()

	// OrderID zero: nothing posted, everything crossed as taker.
	f.stub.summary = engine.OrderSummary{Side: orderid.Bid}

	payload := EncodeNewOrder(NewOrderParams{Side: orderid.Bid, LimitPrice: 10, MaxBaseQty: 50})
	require.NoError(t, f.proc.Process(context.Background(), f.accounts, payload))

	ua := f.reload(t)
	assert.Equal(t, uint32(0), ua.OpenOrders())
	assert.Equal(t, uint64(500), ua.QuoteLocked, "taker share stays locked until events settle it")
}

func TestNewOrderInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.ua.QuoteFree = 499
	f.ua.Write()
	before := snapshot(f.user)

	payload := EncodeNewOrder(NewOrderParams{Side: orderid.Bid, LimitPrice: 10, MaxBaseQty: 50})
	err := f.proc.Process(context.Background(), f.accounts, payload)
	require.ErrorIs(t, err, cerrors.ErrInvalidArgument)
	assert.Equal(t, before, f.user.Data)
}

func TestNewOrderZeroQuantityRejected(t *testing.T) {
	f := newFixture(t)
	payload := EncodeNewOrder(NewOrderParams{Side: orderid.Bid, LimitPrice: 10, MaxBaseQty: 0})
	err := f.proc.Process(context.Background(), f.accounts, payload)
	require.ErrorIs(t, err, cerrors.ErrInvalidArgument)
}

func TestNewOrderSizeOverflowRejected(t *testing.T) {
	f := newFixture(t)
	payload := EncodeNewOrder(NewOrderParams{Side: orderid.Bid, LimitPrice: ^uint64(0), MaxBaseQty: 2})
	err := f.proc.Process(context.Background(), f.accounts, payload)
	require.ErrorIs(t, err, cerrors.ErrInvalidArgument)
}

func TestNewOrderFullSlabRejectedBeforeEngineCall(t *testing.T) {
	f := newFixture(t)
	f.ua.QuoteFree = 10000
	for i := 0; i < 4; i++ {
		_, err := f.ua.InsertOrder(orderid.New(orderid.Bid, 10, uint32(i+1)))
		require.NoError(t, err)
	}
	f.ua.Write()
	before := snapshot(f.user)

	payload := EncodeNewOrder(NewOrderParams{Side: orderid.Bid, LimitPrice: 10, MaxBaseQty: 5})
	err := f.proc.Process(context.Background(), f.accounts, payload)
	require.ErrorIs(t, err, cerrors.ErrInvalidArgument)
	assert.Equal(t, before, f.user.Data)
}

func TestNewOrderEngineFailureIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.ua.QuoteFree = 1000
	f.ua.Write()
	before := snapshot(f.user)

	f.stub.newOrderErr = engine.ErrUnknownBook

	payload := EncodeNewOrder(NewOrderParams{Side: orderid.Bid, LimitPrice: 10, MaxBaseQty: 50})
	err := f.proc.Process(context.Background(), f.accounts, payload)
	require.ErrorIs(t, err, cerrors.ErrEngine)
	assert.Equal(t, before, f.user.Data)
}

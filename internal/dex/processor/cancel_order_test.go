package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/dex/orderid"
	"github.com/aureliax/dexcore/internal/engine"
	"github.com/aureliax/dexcore/internal/ledger"
)

func cancelPayload(index uint64) []byte {
	return EncodeCancelOrder(CancelOrderParams{OrderIndex: index})
}

// Scenario: a resting bid with 500 quote lots locked is cancelled in full.
func TestCancelBidConservation(t *testing.T) {
	f := newFixture(t)
	id := orderid.New(orderid.Bid, 10, 1)
	f.ua.QuoteLocked = 500
	_, err := f.ua.InsertOrder(id)
	require.NoError(t, err)
	f.ua.Write()

	f.stub.summary = engine.OrderSummary{Side: orderid.Bid, OrderID: id, BaseQty: 50, QuoteQty: 500}

	require.NoError(t, f.proc.Process(context.Background(), f.accounts, cancelPayload(0)))

	ua := f.reload(t)
	assert.Equal(t, uint64(500), ua.QuoteFree)
	assert.Equal(t, uint64(0), ua.QuoteLocked)
	assert.Equal(t, uint64(0), ua.BaseFree, "bid cancel must not touch base balances")
	assert.Equal(t, uint64(0), ua.BaseLocked)
	assert.Equal(t, uint32(0), ua.OpenOrders())
	_, err = ua.ReadOrder(0)
	assert.ErrorIs(t, err, cerrors.ErrInvalidArgument, "slot must be cleared for reuse")
}

func TestCancelAskTouchesOnlyBase(t *testing.T) {
	f := newFixture(t)
	id := orderid.New(orderid.Ask, 10, 1)
	f.ua.BaseLocked = 300
	f.ua.QuoteFree = 77
	f.ua.QuoteLocked = 88
	_, err := f.ua.InsertOrder(id)
	require.NoError(t, err)
	f.ua.Write()

	// QuoteQty is reported but must be ignored on the ask side.
	f.stub.summary = engine.OrderSummary{Side: orderid.Ask, OrderID: id, BaseQty: 300, QuoteQty: 999}

	require.NoError(t, f.proc.Process(context.Background(), f.accounts, cancelPayload(0)))

	ua := f.reload(t)
	assert.Equal(t, uint64(300), ua.BaseFree)
	assert.Equal(t, uint64(0), ua.BaseLocked)
	assert.Equal(t, uint64(77), ua.QuoteFree)
	assert.Equal(t, uint64(88), ua.QuoteLocked)
}

func TestCancelPartialRemainder(t *testing.T) {
	f := newFixture(t)
	id := orderid.New(orderid.Bid, 10, 2)
	f.ua.QuoteLocked = 500
	_, err := f.ua.InsertOrder(id)
	require.NoError(t, err)
	f.ua.Write()

	// 200 of the 500 locked lots already filled; only 300 unwind.
	f.stub.summary = engine.OrderSummary{Side: orderid.Bid, OrderID: id, BaseQty: 30, QuoteQty: 300}

	require.NoError(t, f.proc.Process(context.Background(), f.accounts, cancelPayload(0)))

	ua := f.reload(t)
	assert.Equal(t, uint64(300), ua.QuoteFree)
	assert.Equal(t, uint64(200), ua.QuoteLocked)
}

// Scenario: the engine reports the order as unknown; the whole instruction
// aborts with no observable mutation.
func TestCancelEngineFailureIsAtomic(t *testing.T) {
	f := newFixture(t)
	id := orderid.New(orderid.Bid, 10, 1)
	f.ua.QuoteLocked = 500
	_, err := f.ua.InsertOrder(id)
	require.NoError(t, err)
	f.ua.Write()

	userBefore := snapshot(f.user)
	marketBefore := snapshot(f.market)
	f.stub.cancelErr = engine.ErrOrderNotFound

	err = f.proc.Process(context.Background(), f.accounts, cancelPayload(0))
	require.ErrorIs(t, err, cerrors.ErrEngine)
	assert.Contains(t, err.Error(), "order not found", "engine failure must propagate verbatim")

	assert.Equal(t, userBefore, f.user.Data, "user account must be byte-identical after a failed cancel")
	assert.Equal(t, marketBefore, f.market.Data)
}

// Scenario: order_index beyond the slab capacity fails before any external
// call is issued.
func TestCancelOutOfRangeIndexPrecedesEngineCall(t *testing.T) {
	f := newFixture(t)
	err := f.proc.Process(context.Background(), f.accounts, cancelPayload(7))
	require.ErrorIs(t, err, cerrors.ErrInvalidArgument)
	assert.Zero(t, f.stub.cancelCalls, "no engine call may happen for an invalid index")
}

func TestCancelEmptySlot(t *testing.T) {
	f := newFixture(t)
	before := snapshot(f.user)

	err := f.proc.Process(context.Background(), f.accounts, cancelPayload(0))
	require.ErrorIs(t, err, cerrors.ErrInvalidArgument)
	assert.Equal(t, before, f.user.Data)
	assert.Zero(t, f.stub.cancelCalls)
}

func TestCancelOwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	id := orderid.New(orderid.Bid, 10, 1)
	f.ua.QuoteLocked = 500
	_, err := f.ua.InsertOrder(id)
	require.NoError(t, err)
	f.ua.Write()
	before := snapshot(f.user)

	// A different, properly authenticated caller still fails the stored
	// owner check, regardless of order validity.
	f.accounts[8] = &AccountRef{Rec: &ledger.Record{Key: addr(99)}, Signer: true}

	err = f.proc.Process(context.Background(), f.accounts, cancelPayload(0))
	require.ErrorIs(t, err, cerrors.ErrInvalidOwner)
	assert.Equal(t, before, f.user.Data)
	assert.Zero(t, f.stub.cancelCalls)
}

func TestCancelRequiresSigner(t *testing.T) {
	f := newFixture(t)
	f.accounts[8].Signer = false

	err := f.proc.Process(context.Background(), f.accounts, cancelPayload(0))
	require.ErrorIs(t, err, cerrors.ErrMissingSigner)
	assert.Zero(t, f.stub.cancelCalls)
}

func TestCancelWrongMarketAccount(t *testing.T) {
	f := newFixture(t)
	id := orderid.New(orderid.Bid, 10, 1)
	f.ua.QuoteLocked = 500
	_, err := f.ua.InsertOrder(id)
	require.NoError(t, err)
	f.ua.Write()

	cases := map[string]int{
		"engine program": 0,
		"market signer":  2,
		"orderbook":      3,
	}
	for name, idx := range cases {
		t.Run(name, func(t *testing.T) {
			g := newFixture(t)
			gid := orderid.New(orderid.Bid, 10, 1)
			g.ua.QuoteLocked = 500
			_, err := g.ua.InsertOrder(gid)
			require.NoError(t, err)
			g.ua.Write()

			g.accounts[idx] = &AccountRef{Rec: &ledger.Record{Key: addr(250)}}
			err = g.proc.Process(context.Background(), g.accounts, cancelPayload(0))
			require.ErrorIs(t, err, cerrors.ErrInvalidAccountKey)
			assert.Zero(t, g.stub.cancelCalls, "cross-check failures must abort before the external call")
		})
	}
}

func TestCancelWrongAccountCount(t *testing.T) {
	f := newFixture(t)
	err := f.proc.Process(context.Background(), f.accounts[:8], cancelPayload(0))
	require.ErrorIs(t, err, cerrors.ErrAccountCount)
}

// A reported unwind larger than the locked balance is a conservation fault,
// never a negative balance.
func TestCancelUnderflowIsFatal(t *testing.T) {
	f := newFixture(t)
	id := orderid.New(orderid.Bid, 10, 1)
	f.ua.QuoteLocked = 100
	_, err := f.ua.InsertOrder(id)
	require.NoError(t, err)
	f.ua.Write()
	before := snapshot(f.user)

	f.stub.summary = engine.OrderSummary{Side: orderid.Bid, OrderID: id, BaseQty: 50, QuoteQty: 500}

	require.Panics(t, func() {
		_ = f.proc.Process(context.Background(), f.accounts, cancelPayload(0))
	})
	assert.Equal(t, before, f.user.Data, "no partial write may survive the fault")
}

// A successful engine call that leaves the register empty is a broken
// engine; the handler must treat it as fatal rather than continue.
func TestCancelEmptyRegisterIsFatal(t *testing.T) {
	f := newFixture(t)
	id := orderid.New(orderid.Bid, 10, 1)
	f.ua.QuoteLocked = 500
	_, err := f.ua.InsertOrder(id)
	require.NoError(t, err)
	f.ua.Write()

	f.stub.skipPost = true

	require.Panics(t, func() {
		_ = f.proc.Process(context.Background(), f.accounts, cancelPayload(0))
	})
}

func TestCancelOverflowIsFatal(t *testing.T) {
	f := newFixture(t)
	id := orderid.New(orderid.Bid, 10, 1)
	f.ua.QuoteFree = ^uint64(0) - 10
	f.ua.QuoteLocked = 500
	_, err := f.ua.InsertOrder(id)
	require.NoError(t, err)
	f.ua.Write()

	f.stub.summary = engine.OrderSummary{Side: orderid.Bid, OrderID: id, QuoteQty: 500}

	require.Panics(t, func() {
		_ = f.proc.Process(context.Background(), f.accounts, cancelPayload(0))
	})
}

package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/dex/orderid"
	"github.com/aureliax/dexcore/internal/dex/state"
	"github.com/aureliax/dexcore/internal/engine"
	"github.com/aureliax/dexcore/internal/ledger"
)

func addr(b byte) ledger.Address {
	var a ledger.Address
	a[0] = b
	return a
}

var (
	programID     = addr(100)
	marketKey     = addr(1)
	engineProgKey = addr(2)
	orderbookKey  = addr(3)
	bidsKey       = addr(4)
	asksKey       = addr(5)
	regionKey     = addr(6)
	userKey       = addr(7)
	ownerKey      = addr(8)
	baseMintKey   = addr(30)
	quoteMintKey  = addr(31)
)

const signerNonce = 7

// stubEngine scripts the external engine's behavior for handler tests.
type stubEngine struct {
	summary     engine.OrderSummary
	cancelErr   error
	newOrderErr error
	skipPost    bool
	events      []engine.Event
	cancelCalls int
}

func (s *stubEngine) CreateBook(book, bids, asks, authority ledger.Address) error { return nil }

func (s *stubEngine) NewOrder(req *engine.NewOrderRequest) error {
	if s.newOrderErr != nil {
		return s.newOrderErr
	}
	if s.skipPost {
		return nil
	}
	return engine.PostSummary(req.ResultRegion, s.summary)
}

func (s *stubEngine) Cancel(req *engine.CancelRequest) error {
	s.cancelCalls++
	if s.cancelErr != nil {
		return s.cancelErr
	}
	if s.skipPost {
		return nil
	}
	return engine.PostSummary(req.ResultRegion, s.summary)
}

func (s *stubEngine) PopEvents(book ledger.Address, max uint64) ([]engine.Event, error) {
	n := uint64(len(s.events))
	if max < n {
		n = max
	}
	out := s.events[:n]
	s.events = s.events[n:]
	return out, nil
}

// fixture assembles the standard nine-account set around one user account.
type fixture struct {
	proc     *Processor
	stub     *stubEngine
	accounts []*AccountRef
	market   *ledger.Record
	user     *ledger.Record
	ua       *state.UserAccount
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	marketRec := &ledger.Record{Key: marketKey, Data: make([]byte, state.MarketStateLen)}
	ms := &state.MarketState{
		Tag:           state.TagMarket,
		Orderbook:     orderbookKey,
		EngineProgram: engineProgKey,
		BaseMint:      baseMintKey,
		QuoteMint:     quoteMintKey,
		SignerNonce:   signerNonce,
		BaseLotSize:   1,
		QuoteLotSize:  1,
	}
	require.NoError(t, ms.Write(marketRec.Data))

	userRec := &ledger.Record{Key: userKey}
	ua := state.NewUserAccount(userRec, ownerKey, marketKey, 4)
	ua.Write()

	regionRec := &ledger.Record{Key: regionKey}
	engine.InitResultRegion(regionRec)

	signerKey := engine.DeriveSigner(programID, marketKey, signerNonce)

	stub := &stubEngine{}
	f := &fixture{
		proc:   New(zap.NewNop(), programID, stub),
		stub:   stub,
		market: marketRec,
		user:   userRec,
		ua:     ua,
		accounts: []*AccountRef{
			{Rec: &ledger.Record{Key: engineProgKey}},
			{Rec: marketRec},
			{Rec: &ledger.Record{Key: signerKey}},
			{Rec: &ledger.Record{Key: orderbookKey}},
			{Rec: regionRec},
			{Rec: &ledger.Record{Key: bidsKey}},
			{Rec: &ledger.Record{Key: asksKey}},
			{Rec: userRec},
			{Rec: &ledger.Record{Key: ownerKey}, Signer: true},
		},
	}
	return f
}

// reload parses the persisted user record.
func (f *fixture) reload(t *testing.T) *state.UserAccount {
	t.Helper()
	ua, err := state.ParseUser(f.user)
	require.NoError(t, err)
	return ua
}

func snapshot(rec *ledger.Record) []byte {
	out := make([]byte, len(rec.Data))
	copy(out, rec.Data)
	return out
}

func TestRouterRejectsEmptyPayload(t *testing.T) {
	f := newFixture(t)
	err := f.proc.Process(context.Background(), f.accounts, nil)
	require.ErrorIs(t, err, cerrors.ErrInvalidInstructionData)
}

func TestRouterRejectsUnknownTag(t *testing.T) {
	f := newFixture(t)
	before := snapshot(f.user)

	err := f.proc.Process(context.Background(), f.accounts, []byte{0x9, 1, 2, 3})
	require.ErrorIs(t, err, cerrors.ErrInvalidInstructionData)
	assert.Equal(t, before, f.user.Data)
}

func TestRouterRejectsTruncatedParams(t *testing.T) {
	f := newFixture(t)
	err := f.proc.Process(context.Background(), f.accounts, []byte{byte(TagCancelOrder), 1, 2})
	require.ErrorIs(t, err, cerrors.ErrInvalidInstructionData)
	assert.Zero(t, f.stub.cancelCalls)
}

func TestInstructionTagNames(t *testing.T) {
	assert.Equal(t, "create_market", TagCreateMarket.String())
	assert.Equal(t, "cancel_order", TagCancelOrder.String())
	assert.Equal(t, "unknown", Tag(200).String())
}

func TestInstructionCodecRoundTrip(t *testing.T) {
	cm := CreateMarketParams{
		SignerNonce:  3,
		BaseMint:     baseMintKey,
		QuoteMint:    quoteMintKey,
		BaseLotSize:  100,
		QuoteLotSize: 10,
	}
	data := EncodeCreateMarket(cm)
	require.Equal(t, byte(TagCreateMarket), data[0])
	got, err := decodeCreateMarket(data[1:])
	require.NoError(t, err)
	assert.Equal(t, cm, got)

	no := NewOrderParams{Side: orderid.Ask, LimitPrice: 55, MaxBaseQty: 7}
	data = EncodeNewOrder(no)
	gotNo, err := decodeNewOrder(data[1:])
	require.NoError(t, err)
	assert.Equal(t, no, gotNo)

	co := CancelOrderParams{OrderIndex: 3}
	data = EncodeCancelOrder(co)
	gotCo, err := decodeCancelOrder(data[1:])
	require.NoError(t, err)
	assert.Equal(t, co, gotCo)

	ce := ConsumeEventsParams{MaxIterations: 16}
	data = EncodeConsumeEvents(ce)
	gotCe, err := decodeConsumeEvents(data[1:])
	require.NoError(t, err)
	assert.Equal(t, ce, gotCe)

	assert.Equal(t, []byte{byte(TagSettle)}, EncodeSettle())
}

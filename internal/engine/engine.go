package engine

import (
	"errors"

	"github.com/aureliax/dexcore/internal/dex/orderid"
	"github.com/aureliax/dexcore/internal/ledger"
)

var (
	// ErrUnknownBook is returned for requests naming an unregistered book.
	ErrUnknownBook = errors.New("unknown order book")

	// ErrBookExists is returned when creating a book that already exists.
	ErrBookExists = errors.New("order book already exists")

	// ErrOrderNotFound is returned by Cancel when the identifier does not
	// reference a resting order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrBadAuthority is returned when the supplied signer capability does
	// not match the authority the book was registered with.
	ErrBadAuthority = errors.New("authority capability mismatch")

	// ErrBadSideAccount is returned when the supplied bid- or ask-side
	// reference does not match the book's registered side structures.
	ErrBadSideAccount = errors.New("side account mismatch")
)

// EventKind discriminates book events drained by ConsumeEvents.
type EventKind uint8

const (
	// EventFill settles one traded quantity against a user account.
	EventFill EventKind = iota
	// EventOut retires an order from the book, releasing its remainder.
	EventOut
)

// Event is one entry of a book's event queue. UserAccount names the
// settlement record the event applies to.
type Event struct {
	Kind        EventKind
	UserAccount ledger.Address
	OrderID     orderid.OrderID
	Side        orderid.Side
	BaseQty     uint64
	QuoteQty    uint64
}

// NewOrderRequest carries one limit-order placement into the engine.
// LimitPrice is quote lots per base lot; MaxBaseQty is base lots.
type NewOrderRequest struct {
	Orderbook    ledger.Address
	Bids         ledger.Address
	Asks         ledger.Address
	Authority    SignerCapability
	ResultRegion *ledger.Record
	UserAccount  ledger.Address
	Side         orderid.Side
	LimitPrice   uint64
	MaxBaseQty   uint64
}

// CancelRequest carries one cancellation into the engine. On success the
// engine synchronously posts an OrderSummary into ResultRegion before
// returning; on failure it returns an error and leaves the region untouched.
type CancelRequest struct {
	Orderbook    ledger.Address
	Bids         ledger.Address
	Asks         ledger.Address
	Authority    SignerCapability
	ResultRegion *ledger.Record
	OrderID      orderid.OrderID
}

// Engine is the external matching engine's call contract. All calls are
// synchronous in-process calls: they complete their effect, including the
// result-register write, before returning.
type Engine interface {
	CreateBook(book, bids, asks, authority ledger.Address) error
	NewOrder(req *NewOrderRequest) error
	Cancel(req *CancelRequest) error
	PopEvents(book ledger.Address, max uint64) ([]Event, error)
}

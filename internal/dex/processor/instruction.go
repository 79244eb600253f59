// Package processor decodes tagged instruction payloads and dispatches them
// to the five operation handlers. The cancel handler is the core flow: it
// validates accounts, requests cancellation from the external engine,
// consumes its synchronous result register and applies the
// conservation-preserving balance update.
package processor

import (
	"encoding/binary"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/dex/orderid"
	"github.com/aureliax/dexcore/internal/ledger"
)

// Tag identifies an instruction variant. Values are wire constants.
type Tag uint8

const (
	TagCreateMarket Tag = iota
	TagNewOrder
	TagConsumeEvents
	TagCancelOrder
	TagSettle
)

// String returns the instruction name used in logs and metrics labels.
func (t Tag) String() string {
	switch t {
	case TagCreateMarket:
		return "create_market"
	case TagNewOrder:
		return "new_order"
	case TagConsumeEvents:
		return "consume_events"
	case TagCancelOrder:
		return "cancel_order"
	case TagSettle:
		return "settle"
	}
	return "unknown"
}

// CreateMarketParams are the arguments of a create-market instruction. Mint
// identities are explicit configuration, never compiled-in constants.
type CreateMarketParams struct {
	SignerNonce  uint8
	BaseMint     ledger.Address
	QuoteMint    ledger.Address
	BaseLotSize  uint64
	QuoteLotSize uint64
}

// NewOrderParams are the arguments of a new-order instruction. LimitPrice is
// quote lots per base lot, MaxBaseQty is base lots.
type NewOrderParams struct {
	Side       orderid.Side
	LimitPrice uint64
	MaxBaseQty uint64
}

// ConsumeEventsParams bound one event-processing pass.
type ConsumeEventsParams struct {
	MaxIterations uint64
}

// CancelOrderParams carry a slab position, not the engine's order
// identifier.
type CancelOrderParams struct {
	OrderIndex uint64
}

const (
	createMarketParamsLen  = 1 + 2*ledger.AddressLen + 8 + 8
	newOrderParamsLen      = 1 + 8 + 8
	consumeEventsParamsLen = 8
	cancelOrderParamsLen   = 8
)

// EncodeCreateMarket serializes a create-market payload.
func EncodeCreateMarket(p CreateMarketParams) []byte {
	out := make([]byte, 1+createMarketParamsLen)
	out[0] = byte(TagCreateMarket)
	out[1] = p.SignerNonce
	off := 2
	copy(out[off:off+ledger.AddressLen], p.BaseMint[:])
	off += ledger.AddressLen
	copy(out[off:off+ledger.AddressLen], p.QuoteMint[:])
	off += ledger.AddressLen
	binary.LittleEndian.PutUint64(out[off:off+8], p.BaseLotSize)
	off += 8
	binary.LittleEndian.PutUint64(out[off:off+8], p.QuoteLotSize)
	return out
}

// EncodeNewOrder serializes a new-order payload.
func EncodeNewOrder(p NewOrderParams) []byte {
	out := make([]byte, 1+newOrderParamsLen)
	out[0] = byte(TagNewOrder)
	out[1] = byte(p.Side)
	binary.LittleEndian.PutUint64(out[2:10], p.LimitPrice)
	binary.LittleEndian.PutUint64(out[10:18], p.MaxBaseQty)
	return out
}

// EncodeConsumeEvents serializes a consume-events payload.
func EncodeConsumeEvents(p ConsumeEventsParams) []byte {
	out := make([]byte, 1+consumeEventsParamsLen)
	out[0] = byte(TagConsumeEvents)
	binary.LittleEndian.PutUint64(out[1:9], p.MaxIterations)
	return out
}

// EncodeCancelOrder serializes a cancel-order payload.
func EncodeCancelOrder(p CancelOrderParams) []byte {
	out := make([]byte, 1+cancelOrderParamsLen)
	out[0] = byte(TagCancelOrder)
	binary.LittleEndian.PutUint64(out[1:9], p.OrderIndex)
	return out
}

// EncodeSettle serializes a settle payload.
func EncodeSettle() []byte {
	return []byte{byte(TagSettle)}
}

func decodeCreateMarket(data []byte) (CreateMarketParams, error) {
	var p CreateMarketParams
	if len(data) != createMarketParamsLen {
		return p, cerrors.Wrap(cerrors.ErrInvalidInstructionData, "create_market params: %d bytes", len(data))
	}
	p.SignerNonce = data[0]
	off := 1
	copy(p.BaseMint[:], data[off:off+ledger.AddressLen])
	off += ledger.AddressLen
	copy(p.QuoteMint[:], data[off:off+ledger.AddressLen])
	off += ledger.AddressLen
	p.BaseLotSize = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	p.QuoteLotSize = binary.LittleEndian.Uint64(data[off : off+8])
	return p, nil
}

func decodeNewOrder(data []byte) (NewOrderParams, error) {
	var p NewOrderParams
	if len(data) != newOrderParamsLen {
		return p, cerrors.Wrap(cerrors.ErrInvalidInstructionData, "new_order params: %d bytes", len(data))
	}
	if data[0] > byte(orderid.Ask) {
		return p, cerrors.Wrap(cerrors.ErrInvalidInstructionData, "invalid side %d", data[0])
	}
	p.Side = orderid.Side(data[0])
	p.LimitPrice = binary.LittleEndian.Uint64(data[1:9])
	p.MaxBaseQty = binary.LittleEndian.Uint64(data[9:17])
	return p, nil
}

func decodeConsumeEvents(data []byte) (ConsumeEventsParams, error) {
	var p ConsumeEventsParams
	if len(data) != consumeEventsParamsLen {
		return p, cerrors.Wrap(cerrors.ErrInvalidInstructionData, "consume_events params: %d bytes", len(data))
	}
	p.MaxIterations = binary.LittleEndian.Uint64(data)
	return p, nil
}

func decodeCancelOrder(data []byte) (CancelOrderParams, error) {
	var p CancelOrderParams
	if len(data) != cancelOrderParamsLen {
		return p, cerrors.Wrap(cerrors.ErrInvalidInstructionData, "cancel_order params: %d bytes", len(data))
	}
	p.OrderIndex = binary.LittleEndian.Uint64(data)
	return p, nil
}

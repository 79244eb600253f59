// Package orderid packs and unpacks the engine-issued order identifier.
// The identifier is opaque to the settlement layer except for its side flag:
// bit 63 carries the side, bits 32-62 the price, bits 0-31 the engine's
// insertion sequence. Only the engine interprets the price and sequence.
package orderid

// Side tags an order as resting on the bid or ask side of the book.
type Side uint8

const (
	Bid Side = 0
	Ask Side = 1
)

// String returns "bid" or "ask".
func (s Side) String() string {
	if s == Ask {
		return "ask"
	}
	return "bid"
}

// OrderID is the engine's composite order key.
type OrderID uint64

const (
	sideBit   = uint64(1) << 63
	priceMask = uint64(0x7FFFFFFF)
)

// New packs side, price and sequence into one identifier. Price is truncated
// to 31 bits; the settlement layer never unpacks it.
func New(side Side, price uint64, seq uint32) OrderID {
	id := (price&priceMask)<<32 | uint64(seq)
	if side == Ask {
		id |= sideBit
	}
	return OrderID(id)
}

// Side extracts the side flag.
func (id OrderID) Side() Side {
	if uint64(id)&sideBit != 0 {
		return Ask
	}
	return Bid
}

// Price extracts the price component. Engine-internal.
func (id OrderID) Price() uint64 {
	return (uint64(id) >> 32) & priceMask
}

// Sequence extracts the insertion sequence. Engine-internal.
func (id OrderID) Sequence() uint32 {
	return uint32(uint64(id) & 0xFFFFFFFF)
}

// Package state implements the fixed-layout persisted records of the
// settlement layer: the per-market configuration record and the per-user
// balance and order-slab record. Layouts are little-endian byte contracts;
// offsets are load-bearing and must not change.
package state

import (
	"encoding/binary"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/ledger"
)

// Account tags discriminate record layouts. Tag 0 is an uninitialized record.
const (
	TagUninitialized uint64 = 0
	TagMarket        uint64 = 1
	TagUserAccount   uint64 = 2
)

// MarketStateLen is the serialized size of a MarketState record.
const MarketStateLen = 8 + 4*ledger.AddressLen + 1 + 8 + 8

// MarketState is the per-market configuration and authority record.
// Orderbook and EngineProgram are immutable after creation; SignerNonce
// deterministically derives the market's program-controlled signing
// authority.
type MarketState struct {
	Tag           uint64
	Orderbook     ledger.Address
	EngineProgram ledger.Address
	BaseMint      ledger.Address
	QuoteMint     ledger.Address
	SignerNonce   uint8
	BaseLotSize   uint64
	QuoteLotSize  uint64
}

// ParseMarket decodes a MarketState record and validates its tag.
func ParseMarket(data []byte) (*MarketState, error) {
	if len(data) < MarketStateLen {
		return nil, cerrors.Wrap(cerrors.ErrInvalidState, "market record too short: %d bytes", len(data))
	}
	m := &MarketState{Tag: binary.LittleEndian.Uint64(data[0:8])}
	off := 8
	copy(m.Orderbook[:], data[off:off+ledger.AddressLen])
	off += ledger.AddressLen
	copy(m.EngineProgram[:], data[off:off+ledger.AddressLen])
	off += ledger.AddressLen
	copy(m.BaseMint[:], data[off:off+ledger.AddressLen])
	off += ledger.AddressLen
	copy(m.QuoteMint[:], data[off:off+ledger.AddressLen])
	off += ledger.AddressLen
	m.SignerNonce = data[off]
	off++
	m.BaseLotSize = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	m.QuoteLotSize = binary.LittleEndian.Uint64(data[off : off+8])
	if err := m.Check(); err != nil {
		return nil, err
	}
	return m, nil
}

// Check validates the record tag. Read-only, no side effects.
func (m *MarketState) Check() error {
	if m.Tag != TagMarket {
		return cerrors.Wrap(cerrors.ErrInvalidState, "expected market tag %d, got %d", TagMarket, m.Tag)
	}
	return nil
}

// Write re-serializes the record into dst. dst must hold MarketStateLen
// bytes; the caller passes the staged record's data slice.
func (m *MarketState) Write(dst []byte) error {
	if len(dst) < MarketStateLen {
		return cerrors.Wrap(cerrors.ErrInvalidState, "market record buffer too short: %d bytes", len(dst))
	}
	binary.LittleEndian.PutUint64(dst[0:8], m.Tag)
	off := 8
	copy(dst[off:off+ledger.AddressLen], m.Orderbook[:])
	off += ledger.AddressLen
	copy(dst[off:off+ledger.AddressLen], m.EngineProgram[:])
	off += ledger.AddressLen
	copy(dst[off:off+ledger.AddressLen], m.BaseMint[:])
	off += ledger.AddressLen
	copy(dst[off:off+ledger.AddressLen], m.QuoteMint[:])
	off += ledger.AddressLen
	dst[off] = m.SignerNonce
	off++
	binary.LittleEndian.PutUint64(dst[off:off+8], m.BaseLotSize)
	off += 8
	binary.LittleEndian.PutUint64(dst[off:off+8], m.QuoteLotSize)
	return nil
}

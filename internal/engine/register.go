// Package engine defines the call contract of the external matching engine
// and provides an in-process reference implementation. The settlement layer
// reaches the live order book only through this contract; the book itself,
// price-time priority and event generation are owned by the engine.
package engine

import (
	"encoding/binary"
	"errors"

	"github.com/aureliax/dexcore/internal/dex/orderid"
	"github.com/aureliax/dexcore/internal/ledger"
)

var (
	// ErrRegisterEmpty is returned when the result register is read before
	// any request populated it, or read a second time within one request.
	ErrRegisterEmpty = errors.New("result register empty")

	// ErrBadRegion is returned for a region record with the wrong layout.
	ErrBadRegion = errors.New("malformed result region")
)

// regionTag discriminates result-region records. The value is part of the
// shared region's byte contract.
const regionTag uint64 = 3

// ResultRegionLen is the serialized size of the shared result region.
const ResultRegionLen = 8 + 1 + 1 + 8 + 8 + 8

// OrderSummary is the engine's synchronous report of a request's effect:
// the order's side, its unfilled base and quote remainders, and the
// identifier assigned to a posted order (zero when nothing rests).
type OrderSummary struct {
	Side     orderid.Side
	OrderID  orderid.OrderID
	BaseQty  uint64
	QuoteQty uint64
}

// InitResultRegion formats rec as an empty result region.
func InitResultRegion(rec *ledger.Record) {
	rec.Data = make([]byte, ResultRegionLen)
	binary.LittleEndian.PutUint64(rec.Data[0:8], regionTag)
}

// CheckRegion validates rec as a result region without touching its slot.
// Callers that mutate state before posting must check the region first, so a
// failed post can never leave their state ahead of the caller's ledger.
func CheckRegion(rec *ledger.Record) error {
	if len(rec.Data) < ResultRegionLen || binary.LittleEndian.Uint64(rec.Data[0:8]) != regionTag {
		return ErrBadRegion
	}
	return nil
}

// PostSummary writes s into the region's single register slot, marking it
// pending. The previous content, consumed or not, is overwritten.
func PostSummary(rec *ledger.Record, s OrderSummary) error {
	if err := CheckRegion(rec); err != nil {
		return err
	}
	data := rec.Data
	data[8] = 1
	data[9] = byte(s.Side)
	binary.LittleEndian.PutUint64(data[10:18], uint64(s.OrderID))
	binary.LittleEndian.PutUint64(data[18:26], s.BaseQty)
	binary.LittleEndian.PutUint64(data[26:34], s.QuoteQty)
	return nil
}

// TakeSummary reads and invalidates the register slot. The slot is a
// single-use mailbox: a second Take without an intervening Post fails with
// ErrRegisterEmpty rather than yielding a stale value.
func TakeSummary(rec *ledger.Record) (OrderSummary, error) {
	if err := CheckRegion(rec); err != nil {
		return OrderSummary{}, err
	}
	data := rec.Data
	if data[8] == 0 {
		return OrderSummary{}, ErrRegisterEmpty
	}
	s := OrderSummary{
		Side:     orderid.Side(data[9]),
		OrderID:  orderid.OrderID(binary.LittleEndian.Uint64(data[10:18])),
		BaseQty:  binary.LittleEndian.Uint64(data[18:26]),
		QuoteQty: binary.LittleEndian.Uint64(data[26:34]),
	}
	data[8] = 0
	return s, nil
}

package state

import (
	"encoding/binary"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/dex/orderid"
	"github.com/aureliax/dexcore/internal/ledger"
)

// UserHeaderLen is the serialized size of the UserAccount header. The full
// record is the header followed by Capacity slab slots of slotLen bytes.
const UserHeaderLen = 8 + 2*ledger.AddressLen + 4*8 + 4 + 4

// slotLen is one occupancy byte plus the 8-byte order identifier.
const slotLen = 1 + 8

type orderSlot struct {
	occupied bool
	id       orderid.OrderID
}

// UserAccount is the per-user balance and order-slab record for one market.
// All four balance fields are non-negative by construction; every mutation in
// this layer pairs an increment on a free field with an equal decrement on
// the corresponding locked field, or vice versa.
type UserAccount struct {
	Tag         uint64
	Owner       ledger.Address
	Market      ledger.Address
	BaseFree    uint64
	BaseLocked  uint64
	QuoteFree   uint64
	QuoteLocked uint64

	orderCount uint32
	slots      []orderSlot
	rec        *ledger.Record
}

// UserAccountLen returns the serialized size of a user account with the
// given slab capacity.
func UserAccountLen(capacity uint32) int {
	return UserHeaderLen + int(capacity)*slotLen
}

// NewUserAccount initializes rec as an empty user account with a fixed slab
// capacity. Capacity is set once at creation and never resized.
func NewUserAccount(rec *ledger.Record, owner, market ledger.Address, capacity uint32) *UserAccount {
	u := &UserAccount{
		Tag:    TagUserAccount,
		Owner:  owner,
		Market: market,
		slots:  make([]orderSlot, capacity),
		rec:    rec,
	}
	rec.Data = make([]byte, UserAccountLen(capacity))
	return u
}

// ParseUser decodes the user account stored in rec.
func ParseUser(rec *ledger.Record) (*UserAccount, error) {
	data := rec.Data
	if len(data) < UserHeaderLen {
		return nil, cerrors.Wrap(cerrors.ErrInvalidState, "user record too short: %d bytes", len(data))
	}
	u := &UserAccount{Tag: binary.LittleEndian.Uint64(data[0:8]), rec: rec}
	if u.Tag != TagUserAccount {
		return nil, cerrors.Wrap(cerrors.ErrInvalidState, "expected user account tag %d, got %d", TagUserAccount, u.Tag)
	}
	off := 8
	copy(u.Owner[:], data[off:off+ledger.AddressLen])
	off += ledger.AddressLen
	copy(u.Market[:], data[off:off+ledger.AddressLen])
	off += ledger.AddressLen
	u.BaseFree = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	u.BaseLocked = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	u.QuoteFree = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	u.QuoteLocked = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	u.orderCount = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	capacity := binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	if len(data) < UserAccountLen(capacity) {
		return nil, cerrors.Wrap(cerrors.ErrInvalidState, "user record truncated: capacity %d, %d bytes", capacity, len(data))
	}
	u.slots = make([]orderSlot, capacity)
	for i := range u.slots {
		u.slots[i].occupied = data[off] != 0
		u.slots[i].id = orderid.OrderID(binary.LittleEndian.Uint64(data[off+1 : off+9]))
		off += slotLen
	}
	return u, nil
}

// LoadUser parses rec and asserts the stored owner and market match the
// caller's. Fails ErrInvalidOwner / ErrInvalidMarket respectively.
func LoadUser(rec *ledger.Record, owner, market ledger.Address) (*UserAccount, error) {
	u, err := ParseUser(rec)
	if err != nil {
		return nil, err
	}
	if u.Owner != owner {
		return nil, cerrors.Wrap(cerrors.ErrInvalidOwner, "account owned by %s", u.Owner)
	}
	if u.Market != market {
		return nil, cerrors.Wrap(cerrors.ErrInvalidMarket, "account bound to market %s", u.Market)
	}
	return u, nil
}

// Capacity returns the fixed slab capacity.
func (u *UserAccount) Capacity() uint32 {
	return uint32(len(u.slots))
}

// OpenOrders returns the number of occupied slab slots.
func (u *UserAccount) OpenOrders() uint32 {
	return u.orderCount
}

// HasCapacity reports whether at least one slab slot is free.
func (u *UserAccount) HasCapacity() bool {
	return u.orderCount < uint32(len(u.slots))
}

// ReadOrder returns the order identifier at slab position index. Fails
// ErrInvalidArgument if the index is out of range or the slot is empty.
func (u *UserAccount) ReadOrder(index uint64) (orderid.OrderID, error) {
	if index >= uint64(len(u.slots)) {
		return 0, cerrors.Wrap(cerrors.ErrInvalidArgument, "order index %d out of range (capacity %d)", index, len(u.slots))
	}
	if !u.slots[index].occupied {
		return 0, cerrors.Wrap(cerrors.ErrInvalidArgument, "order slot %d is empty", index)
	}
	return u.slots[index].id, nil
}

// RemoveOrder clears the slab slot at index for reuse. Same failure
// conditions as ReadOrder.
func (u *UserAccount) RemoveOrder(index uint64) error {
	if _, err := u.ReadOrder(index); err != nil {
		return err
	}
	u.slots[index] = orderSlot{}
	u.orderCount--
	return nil
}

// RemoveOrderByID clears the slot holding id, if any, and reports whether a
// slot was cleared. Used when the engine retires an order by identifier.
func (u *UserAccount) RemoveOrderByID(id orderid.OrderID) bool {
	for i := range u.slots {
		if u.slots[i].occupied && u.slots[i].id == id {
			u.slots[i] = orderSlot{}
			u.orderCount--
			return true
		}
	}
	return false
}

// InsertOrder stores id in the first free slab slot and returns its index.
func (u *UserAccount) InsertOrder(id orderid.OrderID) (int, error) {
	for i := range u.slots {
		if !u.slots[i].occupied {
			u.slots[i] = orderSlot{occupied: true, id: id}
			u.orderCount++
			return i, nil
		}
	}
	return 0, cerrors.Wrap(cerrors.ErrInvalidArgument, "order slab full (capacity %d)", len(u.slots))
}

// Write persists the record into its staged ledger record. This is the sole
// path by which mutations become durable and must be the last operation on
// the account within an instruction.
func (u *UserAccount) Write() {
	data := u.rec.Data
	if len(data) != UserAccountLen(u.Capacity()) {
		data = make([]byte, UserAccountLen(u.Capacity()))
		u.rec.Data = data
	}
	binary.LittleEndian.PutUint64(data[0:8], u.Tag)
	off := 8
	copy(data[off:off+ledger.AddressLen], u.Owner[:])
	off += ledger.AddressLen
	copy(data[off:off+ledger.AddressLen], u.Market[:])
	off += ledger.AddressLen
	binary.LittleEndian.PutUint64(data[off:off+8], u.BaseFree)
	off += 8
	binary.LittleEndian.PutUint64(data[off:off+8], u.BaseLocked)
	off += 8
	binary.LittleEndian.PutUint64(data[off:off+8], u.QuoteFree)
	off += 8
	binary.LittleEndian.PutUint64(data[off:off+8], u.QuoteLocked)
	off += 8
	binary.LittleEndian.PutUint32(data[off:off+4], u.orderCount)
	off += 4
	binary.LittleEndian.PutUint32(data[off:off+4], u.Capacity())
	off += 4
	for i := range u.slots {
		if u.slots[i].occupied {
			data[off] = 1
		} else {
			data[off] = 0
		}
		binary.LittleEndian.PutUint64(data[off+1:off+9], uint64(u.slots[i].id))
		off += slotLen
	}
}

// Package ledger models the host's account store: fixed 32-byte addresses
// mapped to raw record bytes, with per-instruction staging so that every
// instruction either commits all of its writes or none of them.
package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
)

// AddressLen is the byte length of a ledger address.
const AddressLen = 32

// Address is a 32-byte account key.
type Address [AddressLen]byte

// String returns the lowercase hex form of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is all zero bytes.
func (a Address) IsZero() bool {
	return a == Address{}
}

// AddressFromHex parses a 64-character hex string into an Address.
func AddressFromHex(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("decode address: %w", err)
	}
	if len(b) != AddressLen {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressLen, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromBytes copies b into an Address. b must be exactly 32 bytes.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLen {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressLen, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Record is a persisted account record. Data layout is owned by the program
// named in Owner.
type Record struct {
	Key   Address
	Owner Address
	Data  []byte
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	data := make([]byte, len(r.Data))
	copy(data, r.Data)
	return &Record{Key: r.Key, Owner: r.Owner, Data: data}
}

// ErrNotFound is returned by Store.Get for unknown addresses.
var ErrNotFound = fmt.Errorf("account record not found")

// Store is the durable side of the ledger. PutBatch must apply all records
// atomically: a partially applied batch is never observable.
type Store interface {
	Get(ctx context.Context, key Address) (*Record, error)
	PutBatch(ctx context.Context, records []*Record) error
}

// MemStore is an in-memory Store used by tests and by ephemeral deployments.
type MemStore struct {
	mu      sync.RWMutex
	records map[Address]*Record
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[Address]*Record)}
}

// Get returns a copy of the record at key, or ErrNotFound.
func (s *MemStore) Get(ctx context.Context, key Address) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// PutBatch stores copies of all records under a single lock acquisition.
func (s *MemStore) PutBatch(ctx context.Context, records []*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.records[rec.Key] = rec.Clone()
	}
	return nil
}

// Tx stages record mutations for one instruction. Handlers mutate the staged
// copies freely; nothing reaches the Store until Commit, and a discarded Tx
// leaves the Store byte-identical to its pre-instruction state.
type Tx struct {
	store  Store
	staged map[Address]*Record
	order  []Address
}

// Begin opens a staging transaction against store.
func Begin(store Store) *Tx {
	return &Tx{store: store, staged: make(map[Address]*Record)}
}

// Get returns the staged copy of the record at key, fetching and staging it
// from the backing store on first access.
func (tx *Tx) Get(ctx context.Context, key Address) (*Record, error) {
	if rec, ok := tx.staged[key]; ok {
		return rec, nil
	}
	rec, err := tx.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	tx.stage(rec)
	return rec, nil
}

// GetOrCreate behaves like Get but stages a fresh empty record, owned by
// owner, when the address is unknown. Used by market-creation flows.
func (tx *Tx) GetOrCreate(ctx context.Context, key Address, owner Address) (*Record, error) {
	rec, err := tx.Get(ctx, key)
	if err == nil {
		return rec, nil
	}
	if err != ErrNotFound {
		return nil, err
	}
	rec = &Record{Key: key, Owner: owner}
	tx.stage(rec)
	return rec, nil
}

func (tx *Tx) stage(rec *Record) {
	tx.staged[rec.Key] = rec
	tx.order = append(tx.order, rec.Key)
}

// Commit writes every staged record back to the store in one atomic batch.
func (tx *Tx) Commit(ctx context.Context) error {
	records := make([]*Record, 0, len(tx.order))
	for _, key := range tx.order {
		records = append(records, tx.staged[key])
	}
	if err := tx.store.PutBatch(ctx, records); err != nil {
		return fmt.Errorf("commit instruction writes: %w", err)
	}
	tx.staged = make(map[Address]*Record)
	tx.order = nil
	return nil
}

// Discard drops all staged mutations.
func (tx *Tx) Discard() {
	tx.staged = make(map[Address]*Record)
	tx.order = nil
}

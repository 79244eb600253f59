package state

import (
	"encoding/binary"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/ledger"
)

// TagVault discriminates external value-holding records that settled free
// balances drain into.
const TagVault uint64 = 4

// VaultLen is the serialized size of a Vault record.
const VaultLen = 8 + ledger.AddressLen + 8

// Vault is a value-holding record for one mint. Settlement moves a user's
// free balances into the market's vaults; value transfer out of the vaults
// is external to this layer.
type Vault struct {
	Tag    uint64
	Mint   ledger.Address
	Amount uint64

	rec *ledger.Record
}

// NewVault initializes rec as an empty vault for mint.
func NewVault(rec *ledger.Record, mint ledger.Address) *Vault {
	v := &Vault{Tag: TagVault, Mint: mint, rec: rec}
	rec.Data = make([]byte, VaultLen)
	v.Write()
	return v
}

// ParseVault decodes the vault stored in rec.
func ParseVault(rec *ledger.Record) (*Vault, error) {
	data := rec.Data
	if len(data) < VaultLen {
		return nil, cerrors.Wrap(cerrors.ErrInvalidState, "vault record too short: %d bytes", len(data))
	}
	v := &Vault{Tag: binary.LittleEndian.Uint64(data[0:8]), rec: rec}
	if v.Tag != TagVault {
		return nil, cerrors.Wrap(cerrors.ErrInvalidState, "expected vault tag %d, got %d", TagVault, v.Tag)
	}
	copy(v.Mint[:], data[8:8+ledger.AddressLen])
	v.Amount = binary.LittleEndian.Uint64(data[8+ledger.AddressLen : VaultLen])
	return v, nil
}

// Write persists the vault into its ledger record.
func (v *Vault) Write() {
	if len(v.rec.Data) != VaultLen {
		v.rec.Data = make([]byte, VaultLen)
	}
	binary.LittleEndian.PutUint64(v.rec.Data[0:8], v.Tag)
	copy(v.rec.Data[8:8+ledger.AddressLen], v.Mint[:])
	binary.LittleEndian.PutUint64(v.rec.Data[8+ledger.AddressLen:VaultLen], v.Amount)
}

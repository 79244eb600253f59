package engine

import (
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aureliax/dexcore/internal/ledger"
)

// DeriveSigner deterministically derives a market's program-controlled
// signing address from the settlement program id, the market key and the
// market's stored nonce. No private key exists for the derived address; it
// acts purely as a capability identifier.
func DeriveSigner(program, market ledger.Address, nonce uint8) ledger.Address {
	var out ledger.Address
	h := crypto.Keccak256(program[:], market[:], []byte{nonce})
	copy(out[:], h)
	return out
}

// SignerCapability is an explicit delegated-authority object: a capability
// for Address, usable only for engine calls naming the market it was derived
// from. Handlers construct it once per instruction and pass it into every
// engine call instead of re-deriving inline.
type SignerCapability struct {
	Address ledger.Address
	Market  ledger.Address
	Nonce   uint8
}

// NewCapability derives the capability for market under program.
func NewCapability(program, market ledger.Address, nonce uint8) SignerCapability {
	return SignerCapability{
		Address: DeriveSigner(program, market, nonce),
		Market:  market,
		Nonce:   nonce,
	}
}

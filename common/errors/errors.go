// Package errors defines the coarse error categories surfaced by rejected
// instructions. Every failure inside an instruction maps onto one of these
// sentinels; callers discard all staged account writes on any of them.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInstructionData indicates an unrecognized or malformed
	// instruction payload. Raised before any account is touched.
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	// ErrInvalidState indicates a persisted record whose tag or length does
	// not match its expected layout.
	ErrInvalidState = errors.New("invalid account state")

	// ErrInvalidOwner indicates a user account whose stored owner does not
	// match the authenticated caller.
	ErrInvalidOwner = errors.New("invalid user account owner")

	// ErrInvalidMarket indicates a user account bound to a different market
	// than the one named by the instruction.
	ErrInvalidMarket = errors.New("user account does not match market")

	// ErrInvalidAccountKey indicates a supplied account reference that fails
	// the cross-checks against MarketState (signer, orderbook, engine).
	ErrInvalidAccountKey = errors.New("invalid account key")

	// ErrInvalidArgument indicates an out-of-range or empty slab index, or
	// any other structurally valid but unusable parameter.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMissingSigner indicates the user-owner reference was not an
	// authenticated signer of the instruction.
	ErrMissingSigner = errors.New("missing required signer")

	// ErrAccountCount indicates the instruction's account set has the wrong
	// number of references.
	ErrAccountCount = errors.New("wrong number of accounts")

	// ErrEngine wraps any failure returned by the external matching engine.
	// The engine's own error text is preserved verbatim.
	ErrEngine = errors.New("matching engine error")

	// ErrFatal marks a non-recoverable invariant violation (checked
	// arithmetic failure on a balance update). It is produced only by the
	// host boundary when recovering a processor panic.
	ErrFatal = errors.New("fatal invariant violation")
)

// Wrap annotates a category sentinel with context while keeping it matchable
// through errors.Is.
func Wrap(category error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", category, fmt.Sprintf(format, args...))
}

// Category reduces an instruction error to its sentinel, or ErrFatal when the
// error matches no known category.
func Category(err error) error {
	for _, c := range []error{
		ErrInvalidInstructionData,
		ErrInvalidState,
		ErrInvalidOwner,
		ErrInvalidMarket,
		ErrInvalidAccountKey,
		ErrInvalidArgument,
		ErrMissingSigner,
		ErrAccountCount,
		ErrEngine,
		ErrFatal,
	} {
		if errors.Is(err, c) {
			return c
		}
	}
	return ErrFatal
}

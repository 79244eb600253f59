package processor

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/engine"
	"github.com/aureliax/dexcore/internal/ledger"
)

// AccountRef is one entry of an instruction's ordered account set: a staged
// ledger record plus the host's signer flag for this instruction.
type AccountRef struct {
	Rec    *ledger.Record
	Signer bool
}

// Processor routes decoded instructions to their handlers. It is stateless
// between instructions; all durable state lives in the account records.
type Processor struct {
	logger    *zap.Logger
	programID ledger.Address
	eng       engine.Engine
}

// New creates a processor bound to its program identity and engine.
func New(logger *zap.Logger, programID ledger.Address, eng engine.Engine) *Processor {
	return &Processor{logger: logger, programID: programID, eng: eng}
}

// Process decodes the tagged payload and dispatches. Unrecognized or
// malformed payloads fail ErrInvalidInstructionData before any account is
// touched. A fatal invariant violation escapes as a panic; the host boundary
// is responsible for recovering it and discarding staged writes.
func (p *Processor) Process(ctx context.Context, accounts []*AccountRef, data []byte) error {
	if len(data) == 0 {
		instructionsTotal.WithLabelValues("unknown", "rejected").Inc()
		return cerrors.Wrap(cerrors.ErrInvalidInstructionData, "empty payload")
	}
	tag := Tag(data[0])
	params := data[1:]

	var err error
	switch tag {
	case TagCreateMarket:
		err = p.createMarket(ctx, accounts, params)
	case TagNewOrder:
		err = p.newOrder(ctx, accounts, params)
	case TagConsumeEvents:
		err = p.consumeEvents(ctx, accounts, params)
	case TagCancelOrder:
		err = p.cancelOrder(ctx, accounts, params)
	case TagSettle:
		err = p.settle(ctx, accounts, params)
	default:
		instructionsTotal.WithLabelValues("unknown", "rejected").Inc()
		return cerrors.Wrap(cerrors.ErrInvalidInstructionData, "unknown instruction tag %d", data[0])
	}

	if err != nil {
		instructionsTotal.WithLabelValues(tag.String(), "rejected").Inc()
		p.logger.Warn("instruction rejected",
			zap.String("instruction", tag.String()),
			zap.Error(err))
		return err
	}
	instructionsTotal.WithLabelValues(tag.String(), "committed").Inc()
	return nil
}

// checkedAdd increments a balance field, treating overflow as a
// non-recoverable conservation fault.
func checkedAdd(a, b uint64, field string) uint64 {
	if a > math.MaxUint64-b {
		panic(fmt.Sprintf("conservation violation: %s overflow (%d + %d)", field, a, b))
	}
	return a + b
}

// checkedSub decrements a balance field, treating underflow as a
// non-recoverable conservation fault. Placement never locks less than what
// is later reported as unwound, so this is unreachable in correct operation.
func checkedSub(a, b uint64, field string) uint64 {
	if a < b {
		panic(fmt.Sprintf("conservation violation: %s underflow (%d - %d)", field, a, b))
	}
	return a - b
}

// engineErr propagates an external-engine failure verbatim under the
// ErrEngine category.
func engineErr(err error) error {
	return fmt.Errorf("%w: %v", cerrors.ErrEngine, err)
}

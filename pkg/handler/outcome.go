package handler

import (
	"context"

	"github.com/stagecraft/stagehand/pkg/patch"
	"github.com/stagecraft/stagehand/pkg/wire"
)

// Status is the outcome kind an action reports for one transaction.
type Status string

// Outcome kinds.
const (
	// StatusComplete advances the transaction to its next stage.
	StatusComplete Status = "complete"

	// StatusHardFailure moves the transaction to its failure stage, or
	// degrades to a bare error reply when no failure stage is configured.
	StatusHardFailure Status = "hard_failure"

	// StatusWaiting leaves the transaction where it is.
	StatusWaiting Status = "waiting"

	// StatusFixableError reports an error the operator can fix; no stage
	// change.
	StatusFixableError Status = "fixable_error"

	// StatusTransientError reports an error worth retrying; no stage
	// change.
	StatusTransientError Status = "transient_error"
)

// Outcome is what an action callback declares for one transaction. Zero
// values are fine everywhere except Status. Stage, when set, overrides
// the directive's next/failure stage for this item.
type Outcome struct {
	Status   Status
	Output   any
	Err      error
	Stage    string
	Updates  patch.Patch
	Triggers []wire.Trigger
	Events   []wire.Event
}

// Complete builds a COMPLETE outcome carrying output.
func Complete(output any) *Outcome {
	return &Outcome{Status: StatusComplete, Output: output}
}

// HardFailure builds a HARD_FAILURE outcome carrying the failure cause.
func HardFailure(err error) *Outcome {
	return &Outcome{Status: StatusHardFailure, Err: err}
}

// Waiting builds a WAITING outcome.
func Waiting() *Outcome {
	return &Outcome{Status: StatusWaiting}
}

// FixableError builds a FIXABLE_ERROR outcome.
func FixableError(err error) *Outcome {
	return &Outcome{Status: StatusFixableError, Err: err}
}

// TransientError builds a TRANSIENT_ERROR outcome.
func TransientError(err error) *Outcome {
	return &Outcome{Status: StatusTransientError, Err: err}
}

// Mode selects how a bucket of transactions sharing one action is handed
// to its callback.
type Mode string

// Invocation modes.
const (
	// ModeParallel invokes Run once per transaction, concurrently.
	ModeParallel Mode = "parallel"

	// ModeBatch invokes RunBatch once with the whole bucket.
	ModeBatch Mode = "batch"
)

// ActionFunc handles one transaction. A non-nil error becomes that item's
// reply error; otherwise the Outcome is mapped to a stage transition and
// patch.
type ActionFunc func(ctx context.Context, tx *wire.Transaction) (*Outcome, error)

// BatchFunc handles a whole bucket in one call and must return exactly
// one outcome per transaction, in the same order.
type BatchFunc func(ctx context.Context, txs []*wire.Transaction) ([]*Outcome, error)

// Action is the immutable configuration for one named action of a
// directed transaction handler. Parallel actions set Run; batch actions
// set RunBatch. An empty Mode means ModeParallel.
type Action struct {
	Name     string
	Mode     Mode
	Run      ActionFunc
	RunBatch BatchFunc
}

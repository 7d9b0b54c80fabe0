// Package handler defines the capabilities user code plugs into the
// runtime: transaction processors (usually built from directed actions),
// event sources, and event processors, plus the outcome taxonomy an
// action reports back.
package handler

import (
	"context"

	"github.com/stagecraft/stagehand/pkg/wire"
)

// TransactionProcessor handles one inbound batch of transactions. The
// returned slice must have exactly one result per transaction, in the
// same order; the runtime sends it back as-is.
type TransactionProcessor interface {
	ProcessTransactions(ctx context.Context, txs []*wire.Transaction) []*wire.TransactionResult
}

// PollRequest carries everything an event source needs for one poll:
// the cached stream configuration, the checkpoint returned by the
// previous poll (nil on the first), and the engine's batch size hint.
type PollRequest struct {
	StreamID   string
	StreamName string
	Config     map[string]any
	Checkpoint any
	Limit      int
}

// PollResult is what a poll produced: zero or more events and the
// checkpoint to resume from next time.
type PollResult struct {
	Events     []wire.Event
	Checkpoint any
}

// EventSource is a named capability that feeds external events into the
// engine on demand.
type EventSource interface {
	// Poll fetches the next batch of events after the given checkpoint.
	Poll(ctx context.Context, req *PollRequest) (*PollResult, error)

	// ValidateConfig checks a proposed stream configuration before the
	// engine commits it.
	ValidateConfig(ctx context.Context, config map[string]any) error

	// Delete releases any resources held for the given stream.
	Delete(ctx context.Context, streamID string) error
}

// EventBatch is one inbound batch for an event processor.
type EventBatch struct {
	StreamID   string
	Events     []wire.Event
	Checkpoint any
}

// EventProcessor consumes batches of events pushed by the engine. A
// returned error is reported to the engine on the batch reply.
type EventProcessor interface {
	ProcessEvents(ctx context.Context, batch *EventBatch) error
}

// EngineClient makes round-trip calls back into the engine from inside a
// handler callback. The ctx must be the one the runtime passed to the
// callback: it carries the inbound request's scope (correlation id and
// auth tokens), without which calls fail fast.
type EngineClient interface {
	// SubmitTransactions submits a batch of transaction-creation requests
	// tied to authRef and returns the engine's per-item acknowledgements.
	SubmitTransactions(ctx context.Context, authRef string, reqs []wire.TransactionRequest) ([]wire.Submission, error)
}

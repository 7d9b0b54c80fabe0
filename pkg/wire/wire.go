// Package wire defines the message shapes exchanged with the workflow
// engine over the WebSocket connection. One Envelope per frame, JSON
// encoded. Requests carry a caller-assigned correlation id; replies echo
// the same id.
package wire

import "github.com/stagecraft/stagehand/pkg/patch"

// MessageType identifies the kind of an Envelope.
type MessageType string

// Message types understood by this runtime.
const (
	MsgProtocolError             MessageType = "protocol_error"
	MsgRegisterProvider          MessageType = "register_provider"
	MsgRegisterHandler           MessageType = "register_handler"
	MsgHandleTransactions        MessageType = "handle_transactions"
	MsgHandleTransactionsResult  MessageType = "handle_transactions_result"
	MsgEventSourceConfig         MessageType = "event_source_config"
	MsgEventSourcePoll           MessageType = "event_source_poll"
	MsgEventSourcePollResult     MessageType = "event_source_poll_result"
	MsgEventSourceValidate       MessageType = "event_source_validate_config"
	MsgEventSourceValidateResult MessageType = "event_source_validate_config_result"
	MsgEventSourceDelete         MessageType = "event_source_delete"
	MsgEventSourceDeleteResult   MessageType = "event_source_delete_result"
	MsgEventProcessorBatch       MessageType = "event_processor_batch"
	MsgEventProcessorBatchResult MessageType = "event_processor_batch_result"
	MsgSubmitTransactions        MessageType = "engineapi_submit_transactions"
	MsgSubmitTransactionsResult  MessageType = "engineapi_submit_transactions_result"
)

// HandlerType identifies the capability kind a handler registers as.
type HandlerType string

// Handler kinds.
const (
	HandlerTypeTransaction    HandlerType = "transaction_handler"
	HandlerTypeEventSource    HandlerType = "event_source"
	HandlerTypeEventProcessor HandlerType = "event_processor"
)

// Envelope is one frame on the wire. Only the fields relevant to a given
// MessageType are populated; everything else is omitted from the JSON.
type Envelope struct {
	MessageType MessageType       `json:"messageType"`
	ID          string            `json:"id,omitempty"`
	Handler     string            `json:"handler,omitempty"`
	HandlerType HandlerType       `json:"handlerType,omitempty"`
	Error       string            `json:"error,omitempty"`
	AuthTokens  map[string]string `json:"authTokens,omitempty"`

	// register_provider
	Provider string            `json:"provider,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// handle_transactions / handle_transactions_result
	Transactions []*Transaction       `json:"transactions,omitempty"`
	Results      []*TransactionResult `json:"results,omitempty"`

	// event_source_* / event_processor_batch
	StreamID   string         `json:"streamId,omitempty"`
	StreamName string         `json:"streamName,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
	Checkpoint any            `json:"checkpoint,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Events     []Event        `json:"events,omitempty"`

	// engineapi_submit_transactions / _result
	AuthRef     string               `json:"authRef,omitempty"`
	RequestID   string               `json:"requestId,omitempty"`
	Requests    []TransactionRequest `json:"requests,omitempty"`
	Submissions []Submission         `json:"submissions,omitempty"`
}

// Transaction is one unit of inbound work within a handle_transactions
// batch. Input carries the stage director fields alongside arbitrary
// workflow data.
type Transaction struct {
	ID       string         `json:"id,omitempty"`
	Workflow string         `json:"workflow,omitempty"`
	Stage    string         `json:"stage,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
	State    map[string]any `json:"state,omitempty"`
}

// TransactionResult is the per-item reply slot for a transaction batch.
// The reply array always has one slot per inbound transaction, in the
// same order.
type TransactionResult struct {
	Stage    string            `json:"stage,omitempty"`
	Patch    []patch.Operation `json:"patch,omitempty"`
	Error    string            `json:"error,omitempty"`
	Triggers []Trigger         `json:"triggers,omitempty"`
	Events   []Event           `json:"events,omitempty"`
}

// Trigger asks the engine to start additional downstream work as a side
// effect of a handled transaction.
type Trigger struct {
	Workflow string         `json:"workflow,omitempty"`
	Stage    string         `json:"stage,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
}

// Event is a named payload, either polled from an event source or emitted
// by a handler alongside a transaction result.
type Event struct {
	Name string         `json:"name,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// TransactionRequest is one item of an engineapi_submit_transactions call.
type TransactionRequest struct {
	Workflow       string         `json:"workflow"`
	Input          map[string]any `json:"input,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
}

// Submission is the engine's per-item acknowledgement of a transaction
// submission: the assigned id and queue position, or a rejection reason.
// Idempotent is set when the idempotency key matched an earlier submission.
type Submission struct {
	ID         string `json:"id,omitempty"`
	Position   int64  `json:"position,omitempty"`
	Idempotent bool   `json:"idempotent,omitempty"`
	Error      string `json:"error,omitempty"`
}

package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stagecraft/stagehand/internal/correlator"
	"github.com/stagecraft/stagehand/internal/metrics"
	"github.com/stagecraft/stagehand/internal/reqscope"
	"github.com/stagecraft/stagehand/pkg/handler"
	"github.com/stagecraft/stagehand/pkg/log"
	"github.com/stagecraft/stagehand/pkg/wire"
)

// Router routes inbound envelopes. The switch itself runs on the read
// loop in arrival order; request handling runs in its own goroutine so a
// callback's round-trip calls into the engine can be answered while the
// callback is still in flight.
type Router struct {
	registry   *Registry
	correlator *correlator.Correlator
	send       func(*wire.Envelope) error
	logger     log.Logger
	metrics    *metrics.Metrics

	cfgMu         sync.Mutex
	streamConfigs map[string]map[string]any
}

// New creates a router sending replies through send.
func New(reg *Registry, corr *correlator.Correlator, send func(*wire.Envelope) error, logger log.Logger, m *metrics.Metrics) *Router {
	return &Router{
		registry:      reg,
		correlator:    corr,
		send:          send,
		logger:        logger,
		metrics:       m,
		streamConfigs: make(map[string]map[string]any),
	}
}

// Dispatch handles one inbound envelope.
func (r *Router) Dispatch(env *wire.Envelope) {
	r.metrics.IncInbound(string(env.MessageType))

	switch env.MessageType {
	case wire.MsgSubmitTransactionsResult:
		// A reply to a call this runtime issued; never routed to user
		// handlers.
		r.correlator.HandleResponse(env)

	case wire.MsgEventSourceConfig:
		// Fire-and-forget: cache for later polls. Kept on the read loop
		// so config updates stay ordered ahead of the polls that use them.
		r.cacheStreamConfig(env.StreamID, env.Config)

	case wire.MsgProtocolError:
		r.logger.Error("protocol error from engine", log.String("error", env.Error))

	case wire.MsgHandleTransactions,
		wire.MsgEventSourcePoll,
		wire.MsgEventSourceValidate,
		wire.MsgEventSourceDelete,
		wire.MsgEventProcessorBatch:
		go r.handleRequest(env)

	default:
		// The protocol has no unknown-message error frame.
		r.logger.Warn("dropping unrecognized message type",
			log.String("messageType", string(env.MessageType)),
			log.String("id", env.ID))
	}
}

// handleRequest runs one request envelope through user code and sends the
// reply. The inbound id and auth tokens travel with the context so a
// callback's engine calls are scoped to this request and this request
// only.
func (r *Router) handleRequest(env *wire.Envelope) {
	start := time.Now()
	defer func() {
		r.metrics.ObserveDispatch(string(env.MessageType), time.Since(start).Seconds())
	}()

	ctx := reqscope.With(context.Background(), &reqscope.Scope{
		RequestID:  env.ID,
		AuthTokens: env.AuthTokens,
	})

	var reply *wire.Envelope
	switch env.MessageType {
	case wire.MsgHandleTransactions:
		reply = r.handleTransactions(ctx, env)
	case wire.MsgEventSourcePoll:
		reply = r.handlePoll(ctx, env)
	case wire.MsgEventSourceValidate:
		reply = r.handleValidate(ctx, env)
	case wire.MsgEventSourceDelete:
		reply = r.handleDelete(ctx, env)
	case wire.MsgEventProcessorBatch:
		reply = r.handleEventBatch(ctx, env)
	default:
		return
	}

	// Replies echo the request's correlation id and owning handler.
	reply.ID = env.ID
	reply.Handler = env.Handler
	if reply.Error != "" {
		r.metrics.IncHandlerErrors(env.Handler, 1)
	}
	if err := r.send(reply); err != nil {
		r.logger.Warn("failed to send reply",
			log.String("messageType", string(reply.MessageType)),
			log.String("id", env.ID),
			log.Err(err))
	}
}

func (r *Router) handleTransactions(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	reply := &wire.Envelope{MessageType: wire.MsgHandleTransactionsResult}

	proc, ok := r.registry.TransactionHandler(env.Handler)
	if !ok {
		reply.Error = fmt.Sprintf("No transaction handler registered: %s", env.Handler)
		return reply
	}

	reply.Results = proc.ProcessTransactions(ctx, env.Transactions)
	errs := 0
	for _, res := range reply.Results {
		if res != nil && res.Error != "" {
			errs++
		}
	}
	r.metrics.IncHandlerErrors(env.Handler, errs)
	return reply
}

func (r *Router) handlePoll(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	reply := &wire.Envelope{MessageType: wire.MsgEventSourcePollResult, StreamID: env.StreamID}

	src, ok := r.registry.EventSource(env.Handler)
	if !ok {
		reply.Error = fmt.Sprintf("No event source registered: %s", env.Handler)
		return reply
	}
	config, ok := r.streamConfig(env.StreamID)
	if !ok {
		reply.Error = fmt.Sprintf("No configuration cached for stream %s (source '%s')", env.StreamID, env.Handler)
		return reply
	}

	res, err := src.Poll(ctx, &handler.PollRequest{
		StreamID:   env.StreamID,
		StreamName: env.StreamName,
		Config:     config,
		Checkpoint: env.Checkpoint,
		Limit:      env.Limit,
	})
	if err != nil {
		reply.Error = err.Error()
		return reply
	}
	reply.Events = res.Events
	reply.Checkpoint = res.Checkpoint
	return reply
}

func (r *Router) handleValidate(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	reply := &wire.Envelope{MessageType: wire.MsgEventSourceValidateResult, StreamID: env.StreamID}

	src, ok := r.registry.EventSource(env.Handler)
	if !ok {
		reply.Error = fmt.Sprintf("No event source registered: %s", env.Handler)
		return reply
	}
	if err := src.ValidateConfig(ctx, env.Config); err != nil {
		reply.Error = err.Error()
	}
	return reply
}

func (r *Router) handleDelete(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	reply := &wire.Envelope{MessageType: wire.MsgEventSourceDeleteResult, StreamID: env.StreamID}

	src, ok := r.registry.EventSource(env.Handler)
	if !ok {
		reply.Error = fmt.Sprintf("No event source registered: %s", env.Handler)
		return reply
	}
	if err := src.Delete(ctx, env.StreamID); err != nil {
		reply.Error = err.Error()
		return reply
	}
	r.dropStreamConfig(env.StreamID)
	return reply
}

func (r *Router) handleEventBatch(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	reply := &wire.Envelope{MessageType: wire.MsgEventProcessorBatchResult, StreamID: env.StreamID}

	proc, ok := r.registry.EventProcessor(env.Handler)
	if !ok {
		reply.Error = fmt.Sprintf("No event processor registered: %s", env.Handler)
		return reply
	}
	err := proc.ProcessEvents(ctx, &handler.EventBatch{
		StreamID:   env.StreamID,
		Events:     env.Events,
		Checkpoint: env.Checkpoint,
	})
	if err != nil {
		reply.Error = err.Error()
	}
	return reply
}

func (r *Router) cacheStreamConfig(streamID string, config map[string]any) {
	if streamID == "" {
		r.logger.Warn("event source config without stream id, ignoring")
		return
	}
	r.cfgMu.Lock()
	r.streamConfigs[streamID] = config
	r.cfgMu.Unlock()
	r.logger.Debug("cached stream config", log.String("streamId", streamID))
}

func (r *Router) streamConfig(streamID string) (map[string]any, bool) {
	r.cfgMu.Lock()
	defer r.cfgMu.Unlock()
	c, ok := r.streamConfigs[streamID]
	return c, ok
}

func (r *Router) dropStreamConfig(streamID string) {
	r.cfgMu.Lock()
	defer r.cfgMu.Unlock()
	delete(r.streamConfigs, streamID)
}

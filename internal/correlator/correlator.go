// Package correlator tracks outstanding round-trip calls into the engine
// and resolves them when matching reply envelopes arrive.
package correlator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stagecraft/stagehand/internal/metrics"
	"github.com/stagecraft/stagehand/pkg/log"
	"github.com/stagecraft/stagehand/pkg/wire"
)

// result is the settlement of one pending call. Exactly one of the two
// fields is meaningful.
type result struct {
	submissions []wire.Submission
	err         error
}

// Correlator owns the pending-call table. Calls are keyed by correlation
// id; each id has at most one outstanding call.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]chan result
	logger  log.Logger
	metrics *metrics.Metrics
}

// New creates an empty correlator.
func New(logger log.Logger, m *metrics.Metrics) *Correlator {
	return &Correlator{
		pending: make(map[string]chan result),
		logger:  logger,
		metrics: m,
	}
}

// register creates a pending call for id and returns the channel its
// settlement will be delivered on. The channel is buffered so resolution
// never blocks the read loop.
func (c *Correlator) register(id string) (<-chan result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[id]; exists {
		return nil, fmt.Errorf("duplicate correlation id %q", id)
	}
	ch := make(chan result, 1)
	c.pending[id] = ch
	c.metrics.AddPendingCalls(1)
	return ch, nil
}

// deregister drops a pending call that will never be settled (send
// failure, caller gave up).
func (c *Correlator) deregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; ok {
		delete(c.pending, id)
		c.metrics.AddPendingCalls(-1)
	}
}

// HandleResponse settles the pending call matching env.ID. An envelope
// carrying an error rejects the call; otherwise it resolves with the
// (possibly empty) submissions. A response matching no pending call is
// logged and dropped: there is no caller left to notify.
func (c *Correlator) HandleResponse(env *wire.Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	if ok {
		delete(c.pending, env.ID)
		c.metrics.AddPendingCalls(-1)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("response matches no pending call", log.String("id", env.ID))
		return
	}

	if env.Error != "" {
		ch <- result{err: errors.New(env.Error)}
		return
	}
	ch <- result{submissions: env.Submissions}
}

// FailAll rejects every outstanding call with err. Called on each
// disconnect so callers never hang across a reconnect.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan result)
	c.metrics.AddPendingCalls(-len(pending))
	c.mu.Unlock()

	for id, ch := range pending {
		c.logger.Debug("failing orphaned call", log.String("id", id), log.Err(err))
		ch <- result{err: err}
	}
}

// Outstanding returns the number of calls awaiting a reply.
func (c *Correlator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

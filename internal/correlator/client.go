package correlator

import (
	"context"
	"errors"

	"github.com/stagecraft/stagehand/internal/ids"
	"github.com/stagecraft/stagehand/internal/reqscope"
	"github.com/stagecraft/stagehand/pkg/wire"
)

// Preconditions violated by a SubmitTransactions caller.
var (
	ErrNotConnected   = errors.New("engine client: not connected")
	ErrNoRequestScope = errors.New("engine client: no active request scope (call only valid inside a handler callback)")
)

// Sender is the slice of the connection manager the client needs.
type Sender interface {
	// Send writes one envelope, failing if the connection is not
	// currently established.
	Send(env *wire.Envelope) error

	// Connected reports whether a session is currently live.
	Connected() bool
}

// Client implements handler.EngineClient on top of the correlator and the
// live connection.
type Client struct {
	sender     Sender
	correlator *Correlator
}

// NewClient creates an engine client.
func NewClient(sender Sender, c *Correlator) *Client {
	return &Client{sender: sender, correlator: c}
}

// SubmitTransactions sends an engineapi_submit_transactions request and
// waits for the engine's acknowledgement. It fails fast when the
// connection is down or ctx carries no request scope, and returns early
// if ctx is cancelled while waiting.
func (c *Client) SubmitTransactions(ctx context.Context, authRef string, reqs []wire.TransactionRequest) ([]wire.Submission, error) {
	scope, ok := reqscope.From(ctx)
	if !ok {
		return nil, ErrNoRequestScope
	}
	if !c.sender.Connected() {
		return nil, ErrNotConnected
	}

	id := ids.New()
	ch, err := c.correlator.register(id)
	if err != nil {
		return nil, err
	}

	env := &wire.Envelope{
		MessageType: wire.MsgSubmitTransactions,
		ID:          id,
		AuthRef:     authRef,
		RequestID:   scope.RequestID,
		AuthTokens:  scope.AuthTokens,
		Requests:    reqs,
	}
	if err := c.sender.Send(env); err != nil {
		c.correlator.deregister(id)
		return nil, err
	}

	select {
	case r := <-ch:
		return r.submissions, r.err
	case <-ctx.Done():
		c.correlator.deregister(id)
		return nil, ctx.Err()
	}
}

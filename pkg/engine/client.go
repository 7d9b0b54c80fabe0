// Package engine provides a thin REST convenience client for the
// workflow engine's management API: creating workflows and streams, and
// submitting transactions from outside a handler callback. Everything
// here is plain JSON-over-HTTP; the connection runtime in the root
// package is not involved.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stagecraft/stagehand/pkg/log"
	"github.com/stagecraft/stagehand/pkg/wire"
)

// API endpoints.
const (
	workflowsEndpoint    = "/api/v1/workflows"
	streamsEndpoint      = "/api/v1/streams"
	transactionsEndpoint = "/api/v1/transactions"
)

// HTTPClient abstracts HTTP request execution for testing and custom
// transports. The standard *http.Client satisfies this interface.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a non-2xx response from the engine.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to the engine's REST API.
type Client struct {
	baseURL string
	token   string
	client  HTTPClient
	logger  log.Logger
}

// ClientOption configures optional behavior of a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc HTTPClient) ClientOption {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets a custom logger.
func WithLogger(logger log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the engine at baseURL, authenticating
// with the given bearer token.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  log.NewNoop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WorkflowDefinition describes a workflow to create.
type WorkflowDefinition struct {
	Name   string         `json:"name"`
	Stages map[string]any `json:"stages,omitempty"`
}

// Workflow is a created workflow as returned by the engine.
type Workflow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StreamDefinition describes an event stream to create.
type StreamDefinition struct {
	Name   string         `json:"name"`
	Source string         `json:"source"`
	Config map[string]any `json:"config,omitempty"`
}

// Stream is a created stream as returned by the engine.
type Stream struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateWorkflow creates a workflow.
func (c *Client) CreateWorkflow(ctx context.Context, def *WorkflowDefinition) (*Workflow, error) {
	var out Workflow
	if err := c.post(ctx, workflowsEndpoint, def, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateStream creates an event stream.
func (c *Client) CreateStream(ctx context.Context, def *StreamDefinition) (*Stream, error) {
	var out Stream
	if err := c.post(ctx, streamsEndpoint, def, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitTransactions submits transaction-creation requests and returns
// the engine's per-item acknowledgements.
func (c *Client) SubmitTransactions(ctx context.Context, reqs []wire.TransactionRequest) ([]wire.Submission, error) {
	body := map[string]any{"requests": reqs}
	var out struct {
		Submissions []wire.Submission `json:"submissions"`
	}
	if err := c.post(ctx, transactionsEndpoint, body, &out); err != nil {
		return nil, err
	}
	return out.Submissions, nil
}

func (c *Client) post(ctx context.Context, endpoint string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	c.logger.Debug("engine call ok", log.String("endpoint", endpoint))
	return nil
}

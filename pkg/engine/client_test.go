package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/stagecraft/stagehand/pkg/wire"
)

// mockHTTP answers every request from a scripted response and records
// what was sent.
type mockHTTP struct {
	status int
	body   string
	err    error

	lastReq  *http.Request
	lastBody string
}

func (m *mockHTTP) Do(req *http.Request) (*http.Response, error) {
	m.lastReq = req
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		m.lastBody = string(b)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.status,
		Body:       io.NopCloser(strings.NewReader(m.body)),
	}, nil
}

func TestCreateWorkflow(t *testing.T) {
	mock := &mockHTTP{status: http.StatusCreated, body: `{"id":"wf-1","name":"orders"}`}
	c := NewClient("https://engine.example.com/", "tok", WithHTTPClient(mock))

	wf, err := c.CreateWorkflow(context.Background(), &WorkflowDefinition{Name: "orders"})
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if wf.ID != "wf-1" || wf.Name != "orders" {
		t.Errorf("workflow = %+v", wf)
	}

	req := mock.lastReq
	if req.Method != http.MethodPost {
		t.Errorf("method = %s", req.Method)
	}
	// The trailing slash on the base URL must not double up.
	if got := req.URL.String(); got != "https://engine.example.com/api/v1/workflows" {
		t.Errorf("url = %s", got)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if !strings.Contains(mock.lastBody, `"name":"orders"`) {
		t.Errorf("body = %s", mock.lastBody)
	}
}

func TestCreateStream(t *testing.T) {
	mock := &mockHTTP{status: http.StatusOK, body: `{"id":"s-1","name":"orders-stream"}`}
	c := NewClient("https://engine.example.com", "", WithHTTPClient(mock))

	s, err := c.CreateStream(context.Background(), &StreamDefinition{Name: "orders-stream", Source: "webhook"})
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if s.ID != "s-1" {
		t.Errorf("stream = %+v", s)
	}
	if mock.lastReq.URL.Path != "/api/v1/streams" {
		t.Errorf("path = %s", mock.lastReq.URL.Path)
	}
	// No token, no Authorization header.
	if got := mock.lastReq.Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestSubmitTransactions(t *testing.T) {
	mock := &mockHTTP{status: http.StatusOK, body: `{"submissions":[{"id":"tx-1","position":3}]}`}
	c := NewClient("https://engine.example.com", "tok", WithHTTPClient(mock))

	subs, err := c.SubmitTransactions(context.Background(), []wire.TransactionRequest{
		{Workflow: "orders", Input: map[string]any{"sku": "a-1"}},
	})
	if err != nil {
		t.Fatalf("SubmitTransactions: %v", err)
	}
	want := []wire.Submission{{ID: "tx-1", Position: 3}}
	if !reflect.DeepEqual(subs, want) {
		t.Errorf("submissions = %+v, want %+v", subs, want)
	}
	if !strings.Contains(mock.lastBody, `"requests"`) {
		t.Errorf("body = %s", mock.lastBody)
	}
}

func TestAPIError(t *testing.T) {
	mock := &mockHTTP{status: http.StatusForbidden, body: `{"error":"nope"}`}
	c := NewClient("https://engine.example.com", "tok", WithHTTPClient(mock))

	_, err := c.CreateWorkflow(context.Background(), &WorkflowDefinition{Name: "orders"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || !strings.Contains(apiErr.Body, "nope") {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	c := NewClient("https://engine.example.com", "tok", WithHTTPClient(&mockHTTP{err: cause}))

	_, err := c.CreateWorkflow(context.Background(), &WorkflowDefinition{Name: "orders"})
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want wrapping %v", err, cause)
	}
}

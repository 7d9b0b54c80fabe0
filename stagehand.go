// Package stagehand is a handler-side runtime for a remote
// workflow-orchestration engine. A Provider owns one persistent
// WebSocket session to the engine, registers named handlers over it, and
// routes the engine's work batches into user callbacks: transaction
// handlers built from directed actions, event sources, and event
// processors. Reconnection and heartbeat liveness are handled
// underneath.
//
// Example usage:
//
//	cfg := stagehand.Config{
//	    URL:      "https://engine.example.com",
//	    Provider: "payments",
//	    AuthToken: os.Getenv("ENGINE_TOKEN"),
//	}
//	p, err := stagehand.New(cfg, stagehand.WithLogger(log.NewZerologAdapter()))
//	if err != nil {
//	    return err
//	}
//	p.RegisterActions("settle", handler.Action{
//	    Name: "capture",
//	    Run: func(ctx context.Context, tx *wire.Transaction) (*handler.Outcome, error) {
//	        return handler.Complete(map[string]any{"captured": true}), nil
//	    },
//	})
//	if err := p.Start(ctx); err != nil {
//	    return err
//	}
//	defer p.Stop(context.Background())
package stagehand

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stagecraft/stagehand/internal/conn"
	"github.com/stagecraft/stagehand/internal/correlator"
	"github.com/stagecraft/stagehand/internal/director"
	"github.com/stagecraft/stagehand/internal/metrics"
	"github.com/stagecraft/stagehand/internal/router"
	"github.com/stagecraft/stagehand/pkg/handler"
	"github.com/stagecraft/stagehand/pkg/log"
	"github.com/stagecraft/stagehand/pkg/wire"
)

// Provider lifecycle errors.
var (
	ErrAlreadyStarted   = errors.New("provider already started")
	ErrRegisterAfterRun = errors.New("handlers must be registered before Start")
)

// Provider is the embeddable runtime. Create with New, register handlers,
// then Start.
type Provider struct {
	cfg    Config
	opts   options
	logger log.Logger

	metrics    *metrics.Metrics
	registry   *router.Registry
	correlator *correlator.Correlator
	router     *router.Router
	conn       *conn.Manager
	engine     *correlator.Client

	tokenMu   sync.RWMutex
	authToken string
	watcher   *tokenWatcher

	mu      sync.Mutex
	started bool
}

// New creates a Provider with the given configuration. Returns an error
// if the configuration is invalid.
func New(cfg Config, opts ...Option) (*Provider, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := &Provider{
		cfg:       cfg,
		opts:      o,
		logger:    o.logger,
		authToken: cfg.AuthToken,
	}
	p.metrics = metrics.New(o.registerer)
	p.registry = router.NewRegistry()
	p.correlator = correlator.New(p.logger, p.metrics)

	connCfg := conn.Config{
		Mode:               cfg.Mode,
		Headers:            p.connectHeaders,
		ListenAddr:         fmt.Sprintf(":%d", cfg.ListenPort),
		ReconnectDelay:     cfg.ReconnectDelay,
		MaxConnectAttempts: cfg.MaxConnectAttempts,
		PingInterval:       cfg.PingInterval,
		PongTimeout:        cfg.PongTimeout,
	}
	if cfg.Mode == ModeDial {
		wsURL, err := cfg.wsURL()
		if err != nil {
			return nil, err
		}
		connCfg.URL = wsURL
	}

	p.conn = conn.NewManager(connCfg, conn.Hooks{
		OnConnected:    p.register,
		OnMessage:      func(env *wire.Envelope) { p.router.Dispatch(env) },
		OnDisconnected: p.handleDisconnect,
		OnStateChange: func(prev, cur State, reason string) {
			if o.eventHandler != nil {
				o.eventHandler.OnStateChange(prev, cur, reason)
			}
		},
		OnReconnect: func(attempt int, delay time.Duration) {
			if o.eventHandler != nil {
				o.eventHandler.OnReconnect(attempt, delay)
			}
		},
		OnHeartbeatTimeout: func() {
			if o.eventHandler != nil {
				o.eventHandler.OnHeartbeatTimeout()
			}
		},
	}, p.logger, p.metrics)

	p.router = router.New(p.registry, p.correlator, p.conn.Send, p.logger, p.metrics)
	p.engine = correlator.NewClient(p.conn, p.correlator)

	if o.tokenFile != "" {
		p.watcher = newTokenWatcher(o.tokenFile, p.setAuthToken, p.logger)
	}
	return p, nil
}

// RegisterTransactionHandler registers a raw transaction processor under
// name. Most callers want RegisterActions instead.
func (p *Provider) RegisterTransactionHandler(name string, proc handler.TransactionProcessor) error {
	if p.isStarted() {
		return ErrRegisterAfterRun
	}
	return p.registry.AddTransactionHandler(name, proc)
}

// RegisterActions registers a directed transaction handler under name,
// built from the given action table. Invalid tables (duplicate names,
// missing callbacks for a mode) fail here, not per item at runtime.
func (p *Provider) RegisterActions(name string, actions ...handler.Action) error {
	eng, err := director.New(name, actions, p.logger)
	if err != nil {
		return err
	}
	return p.RegisterTransactionHandler(name, eng)
}

// RegisterEventSource registers an event source under name.
func (p *Provider) RegisterEventSource(name string, src handler.EventSource) error {
	if p.isStarted() {
		return ErrRegisterAfterRun
	}
	return p.registry.AddEventSource(name, src)
}

// RegisterEventProcessor registers an event processor under name.
func (p *Provider) RegisterEventProcessor(name string, proc handler.EventProcessor) error {
	if p.isStarted() {
		return ErrRegisterAfterRun
	}
	return p.registry.AddEventProcessor(name, proc)
}

// Start connects to the engine. In dial mode it returns once the first
// connection is established, or with an error when the attempt budget is
// exhausted; later disconnects are recovered in the background. In
// accept mode it returns once the listener is up.
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	p.mu.Unlock()

	if p.watcher != nil {
		if err := p.watcher.start(); err != nil {
			return err
		}
	}
	if err := p.conn.Start(ctx); err != nil {
		if p.watcher != nil {
			p.watcher.stop()
		}
		return err
	}
	return nil
}

// Stop disables reconnection and tears the connection down. In-flight
// callbacks are not waited for. The provider cannot be restarted.
func (p *Provider) Stop(ctx context.Context) error {
	if p.watcher != nil {
		p.watcher.stop()
	}
	return p.conn.Stop(ctx)
}

// Engine returns the client for round-trip calls into the engine from
// inside handler callbacks.
func (p *Provider) Engine() handler.EngineClient {
	return p.engine
}

// State returns the current transport state.
func (p *Provider) State() State {
	return p.conn.State()
}

// register sends the provider and handler registration frames after
// every (re)connect.
func (p *Provider) register(send func(*wire.Envelope) error) error {
	err := send(&wire.Envelope{
		MessageType: wire.MsgRegisterProvider,
		Provider:    p.cfg.Provider,
		Metadata:    p.cfg.Metadata,
	})
	if err != nil {
		return fmt.Errorf("register provider: %w", err)
	}
	for _, frame := range p.registry.Registrations() {
		if err := send(frame); err != nil {
			return fmt.Errorf("register handler %s: %w", frame.Handler, err)
		}
	}
	return nil
}

// handleDisconnect fails every outstanding round-trip call so no caller
// hangs across a reconnect.
func (p *Provider) handleDisconnect(err error) {
	if err != nil {
		p.correlator.FailAll(fmt.Errorf("connection lost: %w", err))
		return
	}
	p.correlator.FailAll(errors.New("connection lost"))
}

func (p *Provider) connectHeaders() http.Header {
	h := http.Header{}
	for k, v := range p.cfg.ExtraHeaders {
		h.Set(k, v)
	}
	p.tokenMu.RLock()
	token := p.authToken
	p.tokenMu.RUnlock()
	if token != "" {
		if strings.EqualFold(p.cfg.AuthHeader, "Authorization") {
			h.Set("Authorization", "Bearer "+token)
		} else {
			h.Set(p.cfg.AuthHeader, token)
		}
	}
	return h
}

func (p *Provider) setAuthToken(token string) {
	p.tokenMu.Lock()
	p.authToken = token
	p.tokenMu.Unlock()
}

func (p *Provider) isStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

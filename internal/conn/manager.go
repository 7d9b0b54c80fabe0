package conn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stagecraft/stagehand/internal/metrics"
	"github.com/stagecraft/stagehand/pkg/log"
	"github.com/stagecraft/stagehand/pkg/wire"
)

// Manager errors.
var (
	ErrNotConnected   = errors.New("not connected")
	ErrAlreadyStarted = errors.New("already started")
	ErrStopped        = errors.New("stopped")
)

// Mode selects how the manager obtains its connection. Fixed at
// construction for the process lifetime.
type Mode string

// Operating modes.
const (
	// ModeDial opens outbound connections to a configured URL.
	ModeDial Mode = "dial"

	// ModeAccept listens locally and waits for the engine to connect.
	ModeAccept Mode = "accept"
)

// Config is the connection manager's own configuration. URL must already
// be a normalized ws:// or wss:// endpoint.
type Config struct {
	Mode       Mode
	URL        string
	Headers    func() http.Header
	ListenAddr string

	ReconnectDelay     time.Duration
	MaxConnectAttempts int
	PingInterval       time.Duration
	PongTimeout        time.Duration
}

// Hooks are the manager's upward-facing callbacks. OnMessage is invoked
// in frame-arrival order from the read loop; everything else fires on
// lifecycle edges. All fields are optional.
type Hooks struct {
	// OnConnected runs right after a session is established, with a send
	// function for the registration frames.
	OnConnected func(send func(*wire.Envelope) error) error

	// OnMessage receives every parsed inbound envelope.
	OnMessage func(env *wire.Envelope)

	// OnDisconnected runs once per lost session with the terminal read
	// error, before any reconnect is scheduled.
	OnDisconnected func(err error)

	OnStateChange      func(previous, current State, reason string)
	OnReconnect        func(attempt int, delay time.Duration)
	OnHeartbeatTimeout func()
}

// Manager owns the single live connection to the engine across its whole
// lifecycle: initial establishment, heartbeat supervision, and
// reconnection after unintentional disconnects.
type Manager struct {
	cfg     Config
	hooks   Hooks
	logger  log.Logger
	metrics *metrics.Metrics

	baseCtx context.Context
	cancel  context.CancelFunc

	// bo is shared by the initial connect and every reconnect loop; only
	// one of those runs at a time. A successful connect resets it.
	bo *backoff

	mu      sync.Mutex
	state   State
	sess    *session
	httpSrv *http.Server
	stopped bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a manager in StateDisconnected.
func NewManager(cfg Config, hooks Hooks, logger log.Logger, m *metrics.Metrics) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		hooks:   hooks,
		logger:  logger,
		metrics: m,
		baseCtx: ctx,
		cancel:  cancel,
		bo:      newBackoff(cfg.ReconnectDelay),
		state:   StateDisconnected,
		stopCh:  make(chan struct{}),
	}
}

// Start establishes the connection. In dial mode it blocks until the
// first connection succeeds, the attempt budget is exhausted, or ctx is
// cancelled; reconnects after that first success are handled in the
// background and never surface here. In accept mode it returns once the
// listener is up.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.mu.Unlock()

	if m.cfg.Mode == ModeAccept {
		return m.startAccept()
	}
	return m.startDial(ctx)
}

func (m *Manager) startDial(ctx context.Context) error {
	m.setState(StateConnecting, "starting")

	attempt := 0
	for {
		attempt++
		sess, err := m.dial(ctx)
		if err == nil {
			m.install(sess)
			return nil
		}
		m.logger.Warn("connect failed", log.Int("attempt", attempt), log.Err(err))

		if m.cfg.MaxConnectAttempts > 0 && attempt >= m.cfg.MaxConnectAttempts {
			m.setState(StateDisconnected, "connect attempts exhausted")
			return fmt.Errorf("connect to %s failed after %d attempts: %w", m.cfg.URL, attempt, err)
		}
		select {
		case <-ctx.Done():
			m.setState(StateDisconnected, "start cancelled")
			return ctx.Err()
		case <-m.stopCh:
			return ErrStopped
		case <-time.After(m.bo.next()):
		}
	}
}

func (m *Manager) dial(ctx context.Context) (*session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	var hdr http.Header
	if m.cfg.Headers != nil {
		hdr = m.cfg.Headers()
	}
	ws, resp, err := dialer.DialContext(ctx, m.cfg.URL, hdr)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http status %d)", m.cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}
	return m.newSessionFor(ws), nil
}

func (m *Manager) newSessionFor(ws *websocket.Conn) *session {
	return newSession(ws, m.logger, m.metrics, m.cfg.PingInterval, m.cfg.PongTimeout, m.hooks.OnHeartbeatTimeout)
}

// install makes sess the live session, replacing and terminating any
// prior one, sends the registration frames, and starts supervision.
func (m *Manager) install(sess *session) {
	m.mu.Lock()
	old := m.sess
	m.sess = sess
	m.mu.Unlock()
	if old != nil {
		old.terminate()
	}

	m.setState(StateConnected, "connected")
	m.metrics.IncConnects()
	m.bo.reset()

	if m.hooks.OnConnected != nil {
		if err := m.hooks.OnConnected(sess.writeEnvelope); err != nil {
			// The failed write also kills the read loop, which drives the
			// normal disconnect path.
			m.logger.Error("registration failed", log.Err(err))
		}
	}

	m.wg.Add(1)
	go m.supervise(sess)
}

// supervise runs a session to completion and drives the disconnect /
// reconnect transition afterwards.
func (m *Manager) supervise(sess *session) {
	defer m.wg.Done()

	err := sess.run(m.handleMessage)

	m.mu.Lock()
	current := m.sess == sess
	if current {
		m.sess = nil
	}
	stopped := m.stopped
	m.mu.Unlock()

	// Every lost session orphans its in-flight calls, including one
	// replaced by a newer accept-mode connection.
	if m.hooks.OnDisconnected != nil {
		m.hooks.OnDisconnected(err)
	}
	if !current || stopped {
		return
	}

	m.logger.Warn("connection lost", log.Err(err))
	if m.cfg.Mode == ModeAccept {
		m.setState(StateConnecting, "waiting for peer")
		return
	}

	m.setState(StateDisconnected, "connection lost")
	m.wg.Add(1)
	go m.reconnectLoop()
}

// reconnectLoop redials until it succeeds or the manager stops. Attempts
// after a successful first connection are unbounded; failures are logged,
// never surfaced.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()
	m.setState(StateConnecting, "reconnecting")

	attempt := 0
	for {
		attempt++
		delay := m.bo.next()
		if m.hooks.OnReconnect != nil {
			m.hooks.OnReconnect(attempt, delay)
		}
		select {
		case <-m.stopCh:
			return
		case <-time.After(delay):
		}

		m.metrics.IncReconnects()
		sess, err := m.dial(m.baseCtx)
		if err != nil {
			m.logger.Warn("reconnect failed", log.Int("attempt", attempt), log.Err(err))
			continue
		}
		m.logger.Info("reconnected", log.Int("attempt", attempt))
		m.install(sess)
		return
	}
}

func (m *Manager) handleMessage(env *wire.Envelope) {
	if m.hooks.OnMessage != nil {
		m.hooks.OnMessage(env)
	}
}

// Send writes one envelope on the live session.
func (m *Manager) Send(env *wire.Envelope) error {
	m.mu.Lock()
	sess := m.sess
	st := m.state
	m.mu.Unlock()
	if st != StateConnected || sess == nil {
		return ErrNotConnected
	}
	return sess.writeEnvelope(env)
}

// Connected reports whether a session is currently established.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// State returns the current transport state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stop disables reconnection, closes the live socket and listener, and
// waits for supervision goroutines to wind down (bounded by ctx). The
// manager cannot be restarted.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	sess := m.sess
	srv := m.httpSrv
	m.mu.Unlock()

	m.setState(StateStopped, "stop requested")
	close(m.stopCh)
	m.cancel()

	if sess != nil {
		sess.close()
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			m.logger.Warn("listener shutdown", log.Err(err))
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// setState transitions the state machine, emitting the change outside the
// lock. StateStopped is terminal.
func (m *Manager) setState(next State, reason string) {
	m.mu.Lock()
	prev := m.state
	if prev == next || prev == StateStopped {
		m.mu.Unlock()
		return
	}
	m.state = next
	m.mu.Unlock()

	if m.hooks.OnStateChange != nil {
		m.hooks.OnStateChange(prev, next, reason)
	}
	m.logger.Info("connection state",
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	)
}

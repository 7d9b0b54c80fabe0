package conn

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stagecraft/stagehand/internal/metrics"
	"github.com/stagecraft/stagehand/pkg/log"
	"github.com/stagecraft/stagehand/pkg/wire"
)

// writeWait bounds how long a single write may block.
const writeWait = 10 * time.Second

// session wraps one live WebSocket and its heartbeat. A session is used
// until its read loop exits, then discarded; the manager creates a fresh
// one for each (re)connect.
type session struct {
	ws      *websocket.Conn
	logger  log.Logger
	metrics *metrics.Metrics

	pingInterval time.Duration
	pongTimeout  time.Duration
	onTimeout    func()

	writeMu sync.Mutex

	pongMu    sync.Mutex
	pongTimer *time.Timer

	done     chan struct{}
	downOnce sync.Once
}

func newSession(ws *websocket.Conn, logger log.Logger, m *metrics.Metrics, pingInterval, pongTimeout time.Duration, onTimeout func()) *session {
	s := &session{
		ws:           ws,
		logger:       logger,
		metrics:      m,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		onTimeout:    onTimeout,
		done:         make(chan struct{}),
	}
	// A pong disarms the timeout; unsolicited peer pings are answered by
	// the transport's default ping handler.
	ws.SetPongHandler(func(string) error {
		s.disarmPongTimer()
		return nil
	})
	return s
}

// writeEnvelope marshals env and writes it as one text frame. Safe for
// concurrent use.
func (s *session) writeEnvelope(env *wire.Envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return s.ws.WriteJSON(env)
}

// run starts the heartbeat and reads frames until the socket dies,
// invoking onMessage in arrival order. It returns the read error that
// ended the session. Heartbeat timers are always cancelled before run
// returns.
func (s *session) run(onMessage func(*wire.Envelope)) error {
	go s.heartbeatLoop()
	defer s.terminate()

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return err
		}
		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn("dropping unparseable frame", log.Err(err))
			continue
		}
		onMessage(&env)
	}
}

func (s *session) heartbeatLoop() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	defer s.disarmPongTimer()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			err := s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil {
				s.logger.Debug("ping write failed", log.Err(err))
				s.terminate()
				return
			}
			s.armPongTimer()
		}
	}
}

// armPongTimer starts the pong deadline unless one is already running
// from an earlier unanswered ping.
func (s *session) armPongTimer() {
	s.pongMu.Lock()
	defer s.pongMu.Unlock()
	if s.pongTimer != nil {
		return
	}
	s.pongTimer = time.AfterFunc(s.pongTimeout, func() {
		s.logger.Warn("heartbeat timeout, terminating connection",
			log.Duration("pongTimeout", s.pongTimeout))
		s.metrics.IncHeartbeatTimeouts()
		if s.onTimeout != nil {
			s.onTimeout()
		}
		s.terminate()
	})
}

func (s *session) disarmPongTimer() {
	s.pongMu.Lock()
	defer s.pongMu.Unlock()
	if s.pongTimer != nil {
		s.pongTimer.Stop()
		s.pongTimer = nil
	}
}

// close performs a graceful shutdown: close handshake, then teardown.
func (s *session) close() {
	s.downOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		s.ws.Close()
	})
}

// terminate forcibly drops the socket with no close handshake. The read
// loop surfaces this as an error, which triggers the normal reconnect
// path.
func (s *session) terminate() {
	s.downOnce.Do(func() {
		close(s.done)
		s.ws.Close()
	})
}

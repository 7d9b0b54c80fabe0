package conn

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/stagecraft/stagehand/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The engine connects from wherever it runs; origin checks do not
	// apply to this peer-to-peer link.
	CheckOrigin: func(*http.Request) bool { return true },
}

// startAccept opens the listening socket and serves the upgrade endpoint.
// At most one accepted connection is the live session; a newer incoming
// connection replaces the prior one.
func (m *Manager) startAccept() error {
	ln, err := net.Listen("tcp", m.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.cfg.ListenAddr, err)
	}

	r := chi.NewRouter()
	r.Get("/ws", m.handleUpgrade)
	r.Get("/healthz", m.handleHealthz)

	srv := &http.Server{Handler: r}
	m.mu.Lock()
	m.httpSrv = srv
	m.mu.Unlock()

	m.setState(StateConnecting, "waiting for peer")
	m.logger.Info("listening for engine", log.String("addr", ln.Addr().String()))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("listener failed", log.Err(err))
		}
	}()
	return nil
}

func (m *Manager) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("upgrade failed", log.Err(err))
		return
	}
	m.logger.Info("peer connected", log.String("remote", ws.RemoteAddr().String()))
	m.install(m.newSessionFor(ws))
}

func (m *Manager) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, "{\"state\":%q}\n", m.State().String())
}

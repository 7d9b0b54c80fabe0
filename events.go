package stagehand

import (
	"time"

	"github.com/stagecraft/stagehand/internal/conn"
)

// State is the provider's transport state.
type State = conn.State

// Connection states.
const (
	StateDisconnected = conn.StateDisconnected
	StateConnecting   = conn.StateConnecting
	StateConnected    = conn.StateConnected
	StateStopped      = conn.StateStopped
)

// EventHandler receives runtime notifications. All methods are called
// synchronously; implementations should return quickly.
type EventHandler interface {
	// OnStateChange is called on every transport state transition.
	OnStateChange(previous, current State, reason string)

	// OnReconnect is called before each background reconnect attempt.
	OnReconnect(attempt int, delay time.Duration)

	// OnHeartbeatTimeout is called when a missed pong forces the
	// connection closed.
	OnHeartbeatTimeout()
}

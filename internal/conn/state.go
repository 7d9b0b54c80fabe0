// Package conn owns the physical connection to the engine: dialing or
// accepting, the session state machine, reconnection with backoff, and
// the heartbeat that detects half-open sockets.
package conn

// State is the transport state of the connection manager. Exactly one
// physical socket is live at a time; StateStopped is terminal and reached
// only via Stop.
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

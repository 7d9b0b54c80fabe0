package stagehand

import (
	"fmt"
	"net/url"
	"time"

	"github.com/stagecraft/stagehand/internal/conn"
)

// Mode selects how the provider obtains its connection to the engine.
type Mode = conn.Mode

// Operating modes, fixed at construction for the process lifetime.
const (
	// ModeDial connects out to the engine's WebSocket endpoint.
	ModeDial = conn.ModeDial

	// ModeAccept listens locally and lets the engine connect in.
	ModeAccept = conn.ModeAccept
)

// Default timing configuration.
const (
	DefaultReconnectDelay = 1 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 10 * time.Second
)

// Config holds the provider's configuration. Use SetDefaults() before
// Validate(); New() does both.
type Config struct {
	// URL is the engine endpoint for dial mode. http(s) URLs are
	// converted to ws(s), and the /ws path suffix is appended when the
	// URL has no path.
	URL string

	// Provider is the name this process registers under.
	Provider string

	// Metadata is advertised alongside the provider name.
	Metadata map[string]string

	// AuthToken is attached to the connect request. With the default
	// Authorization header it is sent as a Bearer credential; a custom
	// AuthHeader carries the token verbatim.
	AuthToken  string
	AuthHeader string

	// ExtraHeaders are attached to every connect request.
	ExtraHeaders map[string]string

	// Mode defaults to ModeDial.
	Mode Mode

	// ListenPort is required in accept mode.
	ListenPort int

	// ReconnectDelay is the base delay between connect attempts.
	ReconnectDelay time.Duration

	// MaxConnectAttempts bounds the initial connect only; zero means
	// unlimited. Reconnects after a successful first connection retry
	// until Stop.
	MaxConnectAttempts int

	// PingInterval and PongTimeout govern heartbeat liveness detection.
	PingInterval time.Duration
	PongTimeout  time.Duration
}

// SetDefaults fills in zero-valued fields.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDial
	}
	if c.AuthHeader == "" {
		c.AuthHeader = "Authorization"
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = DefaultPongTimeout
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider name is required")
	}
	switch c.Mode {
	case ModeDial:
		if c.URL == "" {
			return fmt.Errorf("url is required in dial mode")
		}
		if _, err := c.wsURL(); err != nil {
			return err
		}
	case ModeAccept:
		if c.ListenPort <= 0 {
			return fmt.Errorf("listen port is required in accept mode")
		}
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	return nil
}

// wsURL normalizes the configured URL into the WebSocket endpoint.
func (c *Config) wsURL() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", c.URL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid url %q: unsupported scheme %q", c.URL, u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

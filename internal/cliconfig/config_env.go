package cliconfig

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/stagecraft/stagehand"
)

// envOverrides is the STAGEHAND_* environment surface.
type envOverrides struct {
	URL                string        `envconfig:"URL"`
	Provider           string        `envconfig:"PROVIDER"`
	AuthToken          string        `envconfig:"AUTH_TOKEN"`
	AuthHeader         string        `envconfig:"AUTH_HEADER"`
	Mode               string        `envconfig:"MODE"`
	ListenPort         int           `envconfig:"LISTEN_PORT"`
	ReconnectDelay     time.Duration `envconfig:"RECONNECT_DELAY"`
	MaxConnectAttempts int           `envconfig:"MAX_CONNECT_ATTEMPTS"`
	PingInterval       time.Duration `envconfig:"PING_INTERVAL"`
	PongTimeout        time.Duration `envconfig:"PONG_TIMEOUT"`
	TokenFile          string        `envconfig:"TOKEN_FILE"`
	Debug              bool          `envconfig:"DEBUG"`
}

// ApplyEnv applies STAGEHAND_* environment variables to cfg, respecting
// explicitly-set flags.
func ApplyEnv(cfg *Config, changed map[string]bool) error {
	var ov envOverrides
	if err := envconfig.Process("stagehand", &ov); err != nil {
		return err
	}
	s := newSetter(changed)

	s.setString("url", ov.URL, &cfg.URL)
	s.setString("provider", ov.Provider, &cfg.Provider)
	s.setString("auth-token", ov.AuthToken, &cfg.AuthToken)
	s.setString("auth-header", ov.AuthHeader, &cfg.AuthHeader)
	s.setInt("listen-port", ov.ListenPort, &cfg.ListenPort)
	s.setInt("max-connect-attempts", ov.MaxConnectAttempts, &cfg.MaxConnectAttempts)
	s.setDuration("reconnect-delay", ov.ReconnectDelay, &cfg.ReconnectDelay)
	s.setDuration("ping-interval", ov.PingInterval, &cfg.PingInterval)
	s.setDuration("pong-timeout", ov.PongTimeout, &cfg.PongTimeout)
	s.setString("token-file", ov.TokenFile, &cfg.TokenFile)

	if ov.Mode != "" && !changed["mode"] {
		cfg.Mode = stagehand.Mode(ov.Mode)
	}
	if ov.Debug && !changed["debug"] {
		cfg.Debug = true
	}
	return nil
}

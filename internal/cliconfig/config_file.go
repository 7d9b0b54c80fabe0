package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"

	"github.com/stagecraft/stagehand"
)

// fileConfig mirrors Config but uses strings for durations to keep the
// file formats friendly.
type fileConfig struct {
	URL                string            `yaml:"url" toml:"url"`
	Provider           string            `yaml:"provider" toml:"provider"`
	Metadata           map[string]string `yaml:"metadata" toml:"metadata"`
	AuthToken          string            `yaml:"auth_token" toml:"auth_token"`
	AuthHeader         string            `yaml:"auth_header" toml:"auth_header"`
	ExtraHeaders       map[string]string `yaml:"extra_headers" toml:"extra_headers"`
	Mode               string            `yaml:"mode" toml:"mode"`
	ListenPort         int               `yaml:"listen_port" toml:"listen_port"`
	ReconnectDelay     string            `yaml:"reconnect_delay" toml:"reconnect_delay"`
	MaxConnectAttempts int               `yaml:"max_connect_attempts" toml:"max_connect_attempts"`
	PingInterval       string            `yaml:"ping_interval" toml:"ping_interval"`
	PongTimeout        string            `yaml:"pong_timeout" toml:"pong_timeout"`
	TokenFile          string            `yaml:"token_file" toml:"token_file"`
	Debug              *bool             `yaml:"debug" toml:"debug"`
}

// loadFileConfig reads and parses a YAML or TOML config file, selected
// by extension.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, err
		}
	default:
		return fc, fmt.Errorf("unsupported config format %q (want .yaml, .yml, or .toml)", filepath.Ext(path))
	}
	return fc, nil
}

// applyFileConfig applies file values to cfg, respecting explicitly-set
// flags.
func applyFileConfig(cfg *Config, fc fileConfig, changed map[string]bool) error {
	s := newSetter(changed)

	s.setString("url", fc.URL, &cfg.URL)
	s.setString("provider", fc.Provider, &cfg.Provider)
	s.setString("auth-token", fc.AuthToken, &cfg.AuthToken)
	s.setString("auth-header", fc.AuthHeader, &cfg.AuthHeader)
	s.setInt("listen-port", fc.ListenPort, &cfg.ListenPort)
	s.setInt("max-connect-attempts", fc.MaxConnectAttempts, &cfg.MaxConnectAttempts)
	s.setString("token-file", fc.TokenFile, &cfg.TokenFile)
	s.setBool("debug", fc.Debug, &cfg.Debug)

	if fc.Mode != "" && !changed["mode"] {
		cfg.Mode = stagehand.Mode(fc.Mode)
	}
	if fc.Metadata != nil && cfg.Metadata == nil {
		cfg.Metadata = fc.Metadata
	}
	if fc.ExtraHeaders != nil && cfg.ExtraHeaders == nil {
		cfg.ExtraHeaders = fc.ExtraHeaders
	}

	if err := s.setDurationString("reconnect-delay", fc.ReconnectDelay, &cfg.ReconnectDelay); err != nil {
		return err
	}
	if err := s.setDurationString("ping-interval", fc.PingInterval, &cfg.PingInterval); err != nil {
		return err
	}
	return s.setDurationString("pong-timeout", fc.PongTimeout, &cfg.PongTimeout)
}

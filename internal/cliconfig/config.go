// Package cliconfig resolves the CLI's configuration from its four
// layers: defaults, config file (YAML or TOML by extension), STAGEHAND_*
// environment variables, and explicitly-set flags. Later layers win;
// flags that the user set are never overwritten by file or env values.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stagecraft/stagehand"
)

// Config is everything the CLI can set: the provider configuration plus
// CLI-only knobs.
type Config struct {
	stagehand.Config

	// TokenFile, when set, is watched for rotated auth tokens.
	TokenFile string

	// Debug enables debug-level logging.
	Debug bool
}

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.SetDefaults()
	return cfg
}

// DefaultConfigPath returns ~/.stagehand/config.yaml, or "" when the
// home directory cannot be determined.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".stagehand", "config.yaml")
	}
	return ""
}

// Resolve layers the config file and environment on top of cfg. An
// explicitly-given path must exist; the default path is used only when
// present. changed marks flags the user set explicitly.
func Resolve(path string, cfg *Config, changed map[string]bool) error {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if path != "" {
		fc, err := loadFileConfig(path)
		switch {
		case err == nil:
			if err := applyFileConfig(cfg, fc, changed); err != nil {
				return fmt.Errorf("config file %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
			// No default config file is fine.
		default:
			return fmt.Errorf("config file %s: %w", path, err)
		}
	}
	return ApplyEnv(cfg, changed)
}

// setter applies layered values without clobbering explicitly-set flags.
type setter struct {
	changed map[string]bool
}

func newSetter(changed map[string]bool) setter {
	if changed == nil {
		changed = map[string]bool{}
	}
	return setter{changed: changed}
}

func (s setter) setString(flag, val string, dst *string) {
	if val != "" && !s.changed[flag] {
		*dst = val
	}
}

func (s setter) setInt(flag string, val int, dst *int) {
	if val != 0 && !s.changed[flag] {
		*dst = val
	}
}

func (s setter) setDuration(flag string, val time.Duration, dst *time.Duration) {
	if val != 0 && !s.changed[flag] {
		*dst = val
	}
}

func (s setter) setDurationString(flag, val string, dst *time.Duration) error {
	if val == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %q", flag, val)
	}
	*dst = d
	return nil
}

func (s setter) setBool(flag string, val *bool, dst *bool) {
	if val != nil && !s.changed[flag] {
		*dst = *val
	}
}

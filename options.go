package stagehand

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stagecraft/stagehand/pkg/log"
)

// Option configures optional behavior of a Provider.
type Option func(*options)

// options holds the optional configuration for a Provider instance.
type options struct {
	logger       log.Logger
	eventHandler EventHandler
	registerer   prometheus.Registerer
	tokenFile    string
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() options {
	return options{
		logger: log.NewNoop(),
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for runtime events. Events are called
// synchronously from the connection goroutines.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithMetrics registers the runtime's prometheus collectors with reg.
// Without this option the collectors still exist but are not exported.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithTokenFile watches path for changes and uses its trimmed contents as
// the auth token on subsequent (re)connects. Intended for mounted secrets
// that rotate.
func WithTokenFile(path string) Option {
	return func(o *options) {
		o.tokenFile = path
	}
}

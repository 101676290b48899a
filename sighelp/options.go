// Copyright © 2024 The ELPS authors

package sighelp

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a signature help round trip when no timeout is
// given.
const DefaultTimeout = 5 * time.Second

const tracerName = "github.com/luthersystems/sighelp"

// Option configures a Manager, Dispatcher or Presenter.
type Option func(*config)

type config struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	timeout        time.Duration
	documentation  bool
}

func newConfig(opts ...Option) *config {
	cfg := &config{timeout: DefaultTimeout}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}
	return cfg
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTracerProvider sets the tracer provider used for dispatch spans.
// The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = tp }
}

// WithTimeout sets the timeout used by automatic triggers until
// EnableAutoTrigger overrides it for a buffer.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDocumentation makes the presenter show the active signature's
// documentation under its label.
func WithDocumentation(enabled bool) Option {
	return func(c *config) { c.documentation = enabled }
}

package mnemon

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnemon-ai/mnemon/config"
	"github.com/mnemon-ai/mnemon/persist"
)

// Option configures the Manager.
type Option func(*managerConfig)

// managerConfig holds configuration for a Manager instance.
type managerConfig struct {
	configPath    string
	cfg           *config.Config
	logger        *slog.Logger
	tracer        trace.Tracer
	meterProvider metric.MeterProvider
	backend       persist.Backend
	now           func() time.Time
}

// WithConfigFile sets the configuration file path for the manager.
// The config file tunes compaction thresholds, session lifecycle, and
// the persistence backend.
func WithConfigFile(path string) Option {
	return func(c *managerConfig) {
		c.configPath = path
	}
}

// WithConfig supplies an already-parsed configuration. Takes precedence
// over WithConfigFile.
func WithConfig(cfg *config.Config) Option {
	return func(c *managerConfig) {
		c.cfg = cfg
	}
}

// WithLogger sets a custom logger for the manager.
// If not provided, a default logger will be created.
func WithLogger(logger *slog.Logger) Option {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for distributed tracing.
// This enables observability and performance monitoring across manager
// operations.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *managerConfig) {
		c.tracer = tracer
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider used to build
// the manager's counters. If not provided, metrics are not recorded.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *managerConfig) {
		c.meterProvider = provider
	}
}

// WithBackend supplies the persistence backend directly, bypassing the
// backend selection in the configuration file. The manager does not
// close a backend supplied this way.
func WithBackend(backend persist.Backend) Option {
	return func(c *managerConfig) {
		c.backend = backend
	}
}

// WithClock overrides the manager's time source. Used by tests to drive
// session expiry deterministically.
func WithClock(now func() time.Time) Option {
	return func(c *managerConfig) {
		c.now = now
	}
}

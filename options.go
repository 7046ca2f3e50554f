package reqcoord

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option represents a configuration option
type Option func(*Coordinator)

// WithName sets the coordinator name used in logs and metric labels
func WithName(name string) Option {
	return func(c *Coordinator) {
		c.name = name
	}
}

// WithStore sets the cache table backend
func WithStore(store Store) Option {
	return func(c *Coordinator) {
		c.store = store
	}
}

// WithShards sets the shard count of the default in-memory store
func WithShards(n int) Option {
	return func(c *Coordinator) {
		c.shards = n
	}
}

// WithDefaultTTL sets the ttl used when Cached is called with ttl <= 0
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Coordinator) {
		c.defaultTTL = d
	}
}

// WithDefaultInterval sets the interval used when Throttled is called with interval <= 0
func WithDefaultInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		c.defaultInterval = d
	}
}

// WithClock replaces the wall clock, mainly for tests
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

// WithLogger sets a custom logger
func WithLogger(logger Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithZapLogger logs through zap
func WithZapLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = NewZapLogger(logger)
	}
}

// WithMetrics enables Prometheus metrics on a private registry
func WithMetrics() Option {
	return func(c *Coordinator) {
		c.metrics = NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Coordinator) {
		c.metrics = collector
	}
}

// WithConfig applies the coordinator-level settings of a loaded Config. The
// store is not built here; pass one with WithStore for non-memory backends.
func WithConfig(cfg *Config) Option {
	return func(c *Coordinator) {
		if cfg == nil {
			return
		}
		c.name = cfg.Name
		c.defaultTTL = cfg.Cache.DefaultTTL
		c.defaultInterval = cfg.Throttle.DefaultInterval
		c.shards = cfg.Cache.Shards
		if cfg.Metrics.Enabled && c.metrics == nil {
			c.metrics = NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
		}
	}
}

// ValidateConfiguration validates the coordinator configuration and returns an error if invalid
func (c *Coordinator) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateIdentity()...)
	errors = append(errors, c.validateDurations()...)
	errors = append(errors, c.validateDependencies()...)

	if len(errors) > 0 {
		return newError(OpConfig, "", fmt.Errorf("%w: %v", ErrInvalidConfig, errors))
	}

	return nil
}

func (c *Coordinator) validateIdentity() []string {
	var errors []string

	if c.name == "" {
		errors = append(errors, "name must not be empty")
	}

	return errors
}

func (c *Coordinator) validateDurations() []string {
	var errors []string

	if c.defaultTTL <= 0 {
		errors = append(errors, "defaultTTL must be positive")
	}
	if c.defaultInterval <= 0 {
		errors = append(errors, "defaultInterval must be positive")
	}

	return errors
}

func (c *Coordinator) validateDependencies() []string {
	var errors []string

	if c.store == nil {
		errors = append(errors, "store cannot be nil")
	}
	if c.clock == nil {
		errors = append(errors, "clock cannot be nil")
	}
	if c.logger == nil {
		errors = append(errors, "logger cannot be nil")
	}

	return errors
}

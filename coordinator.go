package reqcoord

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/mdshimul186/reqcoord/internal/singleflight"
)

// Defaults applied when a call passes a non-positive duration.
const (
	DefaultTTL      = 3 * time.Second
	DefaultInterval = 2 * time.Second
)

// Policy labels used in logs and metrics.
const (
	policyCached        = "cached"
	policyDeduped       = "deduped"
	policyThrottled     = "throttled"
	policyCachedDeduped = "cached_deduped"
)

// Op is a unit of upstream work wrapped by the coordinator.
type Op[T any] func(ctx context.Context) (T, error)

// Coordinator owns a cache table, an in-flight table and a throttle table.
// It is safe for concurrent use; independent coordinators share nothing.
type Coordinator struct {
	name            string
	store           Store
	shards          int
	defaultTTL      time.Duration
	defaultInterval time.Duration
	clock           clock.Clock
	logger          Logger
	metrics         *MetricsCollector
	inflight        *singleflight.Group
	throttle        *throttleTable
	closed          atomic.Bool
	validationError error
}

// Stats is a point-in-time view of the coordinator's tables.
type Stats struct {
	Name         string `json:"name"`
	CacheEntries int    `json:"cache_entries"`
	InFlight     int    `json:"in_flight"`
	ThrottleKeys int    `json:"throttle_keys"`
}

// New constructs a Coordinator using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Coordinator {
	c := &Coordinator{
		name:            "default",
		shards:          defaultShards,
		defaultTTL:      DefaultTTL,
		defaultInterval: DefaultInterval,
		clock:           clock.New(),
		logger:          nopLogger{},
		inflight:        singleflight.New(),
		throttle:        newThrottleTable(),
	}

	for _, option := range options {
		option(c)
	}

	if c.store == nil {
		c.store = NewMemoryStore(c.shards)
	}

	if err := c.ValidateConfiguration(); err != nil {
		c.validationError = err
	}

	if c.logger == nil {
		c.logger = nopLogger{}
	}
	if c.clock == nil {
		c.clock = clock.New()
	}

	return c
}

// Name returns the coordinator name used as the metrics label.
func (c *Coordinator) Name() string { return c.name }

// Store returns the cache table backend.
func (c *Coordinator) Store() Store { return c.store }

// Metrics returns the collector, or nil when metrics are disabled.
func (c *Coordinator) Metrics() *MetricsCollector { return c.metrics }

// IsValid reports whether the configuration passed validation.
func (c *Coordinator) IsValid() bool { return c.validationError == nil }

// ValidationError returns the configuration error recorded by New, if any.
func (c *Coordinator) ValidationError() error { return c.validationError }

// ClearAll empties the cache table. In-flight and throttle tables are untouched.
func (c *Coordinator) ClearAll(ctx context.Context) error {
	if c.closed.Load() {
		return newError(OpClear, "", ErrClosed)
	}

	n, err := c.store.Len(ctx)
	if err != nil {
		c.metrics.RecordStoreError(c.name, "len")
		c.logger.Warn("Cache size unavailable before clear", "coordinator", c.name, "error", err)
	}
	if err := c.store.Clear(ctx); err != nil {
		c.metrics.RecordStoreError(c.name, "clear")
		c.logger.Error("Cache clear failed", "coordinator", c.name, "error", err)
		return newError(OpClear, "", err)
	}

	c.metrics.RecordCacheCleared(c.name, "all", n)
	c.metrics.RecordCacheSize(c.name, 0)
	c.logger.Debug("Cache cleared", "coordinator", c.name, "removed", n)
	return nil
}

// MatchDeleter is implemented by stores that can remove matching keys
// without a separate listing pass.
type MatchDeleter interface {
	DeleteMatching(ctx context.Context, match func(key string) bool) (int, error)
}

// ClearByPattern removes every cache entry whose key matches p and returns
// how many were removed. In-flight and throttle tables are untouched.
func (c *Coordinator) ClearByPattern(ctx context.Context, p Pattern) (int, error) {
	if c.closed.Load() {
		return 0, newError(OpClear, "", ErrClosed)
	}
	if p == nil {
		return 0, nil
	}

	var removed int
	if md, ok := c.store.(MatchDeleter); ok {
		n, err := md.DeleteMatching(ctx, p.MatchString)
		removed = n
		if err != nil {
			return removed, c.clearFailed(err)
		}
	} else {
		keys, err := c.store.Keys(ctx)
		if err != nil {
			return 0, c.clearFailed(err)
		}
		for _, k := range keys {
			if !p.MatchString(k) {
				continue
			}
			if err := c.store.Delete(ctx, k); err != nil {
				return removed, c.clearFailed(err)
			}
			removed++
		}
	}

	c.metrics.RecordCacheCleared(c.name, "pattern", removed)
	c.recordSize(ctx)
	c.logger.Debug("Cache cleared by pattern", "coordinator", c.name, "removed", removed)
	return removed, nil
}

func (c *Coordinator) clearFailed(err error) error {
	c.metrics.RecordStoreError(c.name, "clear")
	c.logger.Error("Cache pattern clear failed", "coordinator", c.name, "error", err)
	return newError(OpClear, "", err)
}

// Invalidate removes a single cache entry by exact key.
func (c *Coordinator) Invalidate(ctx context.Context, key string) error {
	if c.closed.Load() {
		return newError(OpInvalidate, key, ErrClosed)
	}
	if key == "" {
		return newError(OpInvalidate, key, ErrEmptyKey)
	}
	if err := c.store.Delete(ctx, key); err != nil {
		c.metrics.RecordStoreError(c.name, "delete")
		return newError(OpInvalidate, key, err)
	}
	c.metrics.RecordCacheCleared(c.name, "key", 1)
	c.recordSize(ctx)
	return nil
}

// Keys lists the keys currently in the cache table, fresh or not.
func (c *Coordinator) Keys(ctx context.Context) ([]string, error) {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		c.metrics.RecordStoreError(c.name, "keys")
		return nil, err
	}
	return keys, nil
}

// ResetThrottle forgets the last allowed time for key.
func (c *Coordinator) ResetThrottle(key string) {
	c.throttle.reset(key)
}

// ClearThrottles forgets every throttle timestamp.
func (c *Coordinator) ClearThrottles() {
	c.throttle.clear()
}

// InFlight returns the number of deduplicated calls currently executing.
func (c *Coordinator) InFlight() int {
	return c.inflight.Len()
}

// Stats returns current table sizes.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	n, err := c.store.Len(ctx)
	if err != nil {
		c.metrics.RecordStoreError(c.name, "len")
		return Stats{}, err
	}
	return Stats{
		Name:         c.name,
		CacheEntries: n,
		InFlight:     c.inflight.Len(),
		ThrottleKeys: c.throttle.len(),
	}, nil
}

// Close marks the coordinator closed and closes the store when it is an
// io.Closer. Calls already running are allowed to finish.
func (c *Coordinator) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if closer, ok := c.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Coordinator) check(op, key string, nilOp bool) error {
	if c.closed.Load() {
		return newError(op, key, ErrClosed)
	}
	if key == "" {
		return newError(op, key, ErrEmptyKey)
	}
	if nilOp {
		return newError(op, key, ErrNilOperation)
	}
	return nil
}

func (c *Coordinator) recordSize(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	if ms, ok := c.store.(*MemoryStore); ok {
		n, _ := ms.Len(ctx)
		c.metrics.RecordCacheSize(c.name, n)
	}
}

// runOp executes op and records its duration and outcome.
func runOp[T any](ctx context.Context, c *Coordinator, policy, key string, op Op[T]) (T, error) {
	start := c.clock.Now()
	v, err := op(ctx)
	c.metrics.RecordOperation(c.name, policy, c.clock.Since(start))

	if err != nil {
		c.metrics.RecordCall(c.name, policy, outcomeError)
		c.logger.Debug("Operation failed", "coordinator", c.name, "policy", policy, "key", key, "error", err)
		return v, err
	}
	c.metrics.RecordCall(c.name, policy, outcomeSuccess)
	return v, nil
}

// as converts a shared result back to T. A nil interface converts to the
// zero value, which covers operations returning nil pointers or interfaces.
func as[T any](v interface{}) (T, bool) {
	var zero T
	if v == nil {
		return zero, true
	}
	t, ok := v.(T)
	return t, ok
}

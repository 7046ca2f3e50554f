package reqcoord

import (
	"context"
	"sync"
	"time"
)

// ThrottleResult is the outcome of Throttled. Allowed is false when the call
// was suppressed, in which case Value is the zero value and op did not run.
type ThrottleResult[T any] struct {
	Value   T
	Allowed bool
}

// Throttled runs op unless the previous allowed call for key happened less
// than interval ago. A suppressed call does not move the window. The window
// is consumed before op runs, so a failing op still counts as allowed.
// An interval <= 0 uses the coordinator default.
func Throttled[T any](ctx context.Context, c *Coordinator, key string, op Op[T], interval time.Duration) (ThrottleResult[T], error) {
	var result ThrottleResult[T]
	if err := c.check(OpThrottled, key, op == nil); err != nil {
		return result, err
	}
	if interval <= 0 {
		interval = c.defaultInterval
	}

	if !c.throttle.allow(key, c.clock.Now(), interval) {
		c.metrics.RecordThrottled(c.name)
		c.metrics.RecordCall(c.name, policyThrottled, outcomeThrottled)
		c.logger.Debug("Call throttled", "coordinator", c.name, "key", key, "interval", interval)
		return result, nil
	}

	v, err := runOp(ctx, c, policyThrottled, key, op)
	if err != nil {
		return result, err
	}
	result.Value = v
	result.Allowed = true
	return result, nil
}

// throttleTable records the last allowed time per key. Entries never expire
// on their own.
type throttleTable struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newThrottleTable() *throttleTable {
	return &throttleTable{
		last: make(map[string]time.Time),
	}
}

// allow checks and records in one critical section so two concurrent callers
// cannot both pass the same window.
func (t *throttleTable) allow(key string, now time.Time, interval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[key]; ok && now.Sub(last) < interval {
		return false
	}
	t.last[key] = now
	return true
}

func (t *throttleTable) reset(key string) {
	t.mu.Lock()
	delete(t.last, key)
	t.mu.Unlock()
}

func (t *throttleTable) clear() {
	t.mu.Lock()
	t.last = make(map[string]time.Time)
	t.mu.Unlock()
}

func (t *throttleTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}

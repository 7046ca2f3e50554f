package reqcoord

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Cached returns the value stored under key when it is younger than ttl.
// Otherwise it runs op, stores a successful result under key and returns it.
// Errors from op are returned unchanged and never cached. A ttl <= 0 uses the
// coordinator default.
//
// Concurrent misses for the same key each run op; use CachedDeduped to share
// one execution.
func Cached[T any](ctx context.Context, c *Coordinator, key string, op Op[T], ttl time.Duration) (T, error) {
	var zero T
	if err := c.check(OpCached, key, op == nil); err != nil {
		return zero, err
	}
	ttl = c.ttlOrDefault(ttl)

	if v, ok := lookup[T](ctx, c, key, ttl); ok {
		c.metrics.RecordCacheHit(c.name)
		c.metrics.RecordCall(c.name, policyCached, outcomeHit)
		return v, nil
	}
	c.metrics.RecordCacheMiss(c.name)

	v, err := runOp(ctx, c, policyCached, key, op)
	if err != nil {
		return zero, err
	}
	fill(ctx, c, key, v)
	return v, nil
}

// CachedDeduped combines Cached and Deduped: a fresh entry is returned
// directly, and concurrent misses for key share a single run of op whose
// result is then stored. Callers that join a running fill are counted as
// dedup joins rather than cache misses.
func CachedDeduped[T any](ctx context.Context, c *Coordinator, key string, op Op[T], ttl time.Duration) (T, error) {
	var zero T
	if err := c.check(OpCachedDeduped, key, op == nil); err != nil {
		return zero, err
	}
	ttl = c.ttlOrDefault(ttl)

	if v, ok := lookup[T](ctx, c, key, ttl); ok {
		c.metrics.RecordCacheHit(c.name)
		c.metrics.RecordCall(c.name, policyCachedDeduped, outcomeHit)
		return v, nil
	}

	return dedupe(ctx, c, policyCachedDeduped, key, func(ctx context.Context) (T, error) {
		// A caller that settled just before we registered may have filled it.
		if v, ok := lookup[T](ctx, c, key, ttl); ok {
			c.metrics.RecordCacheHit(c.name)
			return v, nil
		}
		c.metrics.RecordCacheMiss(c.name)

		v, err := op(ctx)
		if err != nil {
			return v, err
		}
		fill(ctx, c, key, v)
		return v, nil
	})
}

func (c *Coordinator) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// lookup returns the entry for key when it is fresh under ttl and converts to
// T. Unconvertible entries are deleted. Store failures read as misses.
func lookup[T any](ctx context.Context, c *Coordinator, key string, ttl time.Duration) (T, bool) {
	var zero T

	entry, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.metrics.RecordStoreError(c.name, "get")
		c.logger.Warn("Cache read failed", "coordinator", c.name, "key", key, "error", err)
		return zero, false
	}
	if !found || !entry.Fresh(c.clock.Now(), ttl) {
		return zero, false
	}

	v, err := decodeEntry[T](entry)
	if err != nil {
		c.logger.Warn("Discarding unreadable cache entry", "coordinator", c.name, "key", key, "error", err)
		if err := c.store.Delete(ctx, key); err != nil {
			c.metrics.RecordStoreError(c.name, "delete")
		}
		return zero, false
	}
	return v, true
}

func decodeEntry[T any](entry Entry) (T, error) {
	var v T
	if entry.Value != nil {
		if t, ok := entry.Value.(T); ok {
			return t, nil
		}
		if entry.Raw == nil {
			return v, fmt.Errorf("%w: stored %T, want %T", ErrTypeMismatch, entry.Value, v)
		}
	}
	if entry.Raw == nil {
		return v, nil
	}
	if err := json.Unmarshal(entry.Raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return v, nil
}

// fill writes a result into the store. Write failures are logged and counted
// but do not fail the call. Encoding stores only receive results that decode
// back to an equal value, so a later hit returns what this call returned.
func fill[T any](ctx context.Context, c *Coordinator, key string, v T) {
	if es, ok := c.store.(EncodingStore); ok && es.EncodesValues() {
		if err := jsonFaithful(v); err != nil {
			c.metrics.RecordStoreError(c.name, "set")
			c.logger.Warn("Not caching result", "coordinator", c.name, "key", key, "error", err)
			return
		}
	}

	entry := Entry{Value: v, StoredAt: c.clock.Now()}
	if err := c.store.Set(ctx, key, entry); err != nil {
		c.metrics.RecordStoreError(c.name, "set")
		c.logger.Warn("Cache write failed", "coordinator", c.name, "key", key, "error", err)
		return
	}
	c.recordSize(ctx)
}

// jsonFaithful reports whether v survives a JSON round trip into T unchanged.
func jsonFaithful[T any](v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLossyValue, err)
	}
	var back T
	if err := json.Unmarshal(data, &back); err != nil {
		return fmt.Errorf("%w: %v", ErrLossyValue, err)
	}
	if !reflect.DeepEqual(v, back) {
		return fmt.Errorf("%w: %T changes through JSON", ErrLossyValue, v)
	}
	return nil
}

package reqcoord

import (
	"context"
	"fmt"
)

// Deduped runs op for key unless a call for key is already in flight, in which
// case it waits for that call and returns the identical value or error.
// The key is released as soon as the call settles, so a later call starts a
// fresh execution.
//
// op receives a context that keeps ctx's values but not its cancellation: a
// started execution is shared and is never aborted by one caller leaving. A
// joined caller whose ctx ends stops waiting and gets ctx.Err().
func Deduped[T any](ctx context.Context, c *Coordinator, key string, op Op[T]) (T, error) {
	var zero T
	if err := c.check(OpDeduped, key, op == nil); err != nil {
		return zero, err
	}
	return dedupe(ctx, c, policyDeduped, key, op)
}

func dedupe[T any](ctx context.Context, c *Coordinator, policy, key string, op Op[T]) (T, error) {
	var zero T
	started := false

	v, err, _ := c.inflight.Do(ctx, key, func() (interface{}, error) {
		started = true
		c.metrics.RecordInFlightStart(c.name)
		defer c.metrics.RecordInFlightEnd(c.name)

		return runOp(context.WithoutCancel(ctx), c, policy, key, op)
	})

	if !started {
		c.metrics.RecordDeduplicationJoin(c.name)
		c.metrics.RecordCall(c.name, policy, outcomeJoined)
		c.logger.Debug("Joined in-flight call", "coordinator", c.name, "key", key)
	}

	if err != nil {
		return zero, err
	}

	t, ok := as[T](v)
	if !ok {
		return zero, newError(OpDeduped, key, fmt.Errorf("%w: shared %T, want %T", ErrTypeMismatch, v, zero))
	}
	return t, nil
}

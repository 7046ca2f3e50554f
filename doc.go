// Package reqcoord coordinates calls to slow or rate-sensitive upstreams with
// three independent policies:
//
//   - Cached: reuse a stored result while it is younger than the caller's ttl
//   - Deduped: share one in-flight execution between concurrent callers of a key
//   - Throttled: suppress calls that come sooner than an interval after the last allowed one
//
// plus CachedDeduped, which layers the first two, and cache invalidation by
// exact key, by Pattern or entirely.
//
// All state lives on a *Coordinator built with functional options; nothing is
// package-global, so tests and subsystems can each own one.
//
// Typical usage:
//
//	coord := reqcoord.New(
//	    reqcoord.WithName("lessons"),
//	    reqcoord.WithDefaultTTL(3*time.Second),
//	    reqcoord.WithMetrics(),
//	)
//	course, err := reqcoord.CachedDeduped(ctx, coord, "course:"+id, fetchCourse, 0)
//	res, err := reqcoord.Throttled(ctx, coord, "save:"+id, saveDraft, 2*time.Second)
//	if err == nil && !res.Allowed {
//	    // suppressed: saved less than two seconds ago
//	}
//	_, _ = coord.ClearByPattern(ctx, regexp.MustCompile(`^course:`))
//
// Errors from wrapped operations are returned unchanged. The cache table is a
// Store; MemoryStore is the default and the store/ subpackages provide
// bigcache and redis backends.
package reqcoord

// package flight deduplicates concurrent requests for the same remote resource.
//
// Wraps [singleflight.Group] with typed results and context-aware waiting.
// While a fetch for a key is in flight, every concurrent caller with the
// same key awaits the same execution and receives the same result or error.
// The entry is dropped once resolved, so later calls fetch again.
package flight

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Cache coalesces concurrent executions per key.
//
// The zero value is ready to use. No lock is held while fn runs; only the
// in-flight entry map is guarded internally.
type Cache[V any] struct {
	group singleflight.Group
}

// Do executes fn for key, deduplicating concurrent calls.
//
// If another call for the same key is already running, Do waits for it and
// returns its result; shared reports whether the result was given to more
// than one caller. The function runs detached from ctx so that one caller
// cancelling does not fail the remaining waiters; ctx only bounds how long
// this caller waits.
func (c *Cache[V]) Do(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (V, bool, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		var value V
		if res.Val != nil {
			value = res.Val.(V)
		}
		return value, res.Shared, res.Err
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}
}

// Forget drops the in-flight entry for key, if any.
//
// Future calls for key will execute fn again rather than joining the
// abandoned execution.
func (c *Cache[V]) Forget(key string) {
	c.group.Forget(key)
}

package concurrency

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// NewPool returns a new pool where each task respects context cancellation.
// Wait() will only return the first error seen.
func NewPool(ctx context.Context, maxGoroutines int) *pool.ContextPool {
	return pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(maxGoroutines)
}

// MapOrdered applies fn to every item using at most maxGoroutines goroutines. Results keep
// the order of items. The first error cancels the remaining work and is returned.
func MapOrdered[T, U any](ctx context.Context, items []T, maxGoroutines int, fn func(context.Context, T) (U, error)) ([]U, error) {
	if maxGoroutines < 1 {
		maxGoroutines = 1
	}
	results := make([]U, len(items))
	p := NewPool(ctx, maxGoroutines)
	for i, item := range items {
		p.Go(func(ctx context.Context) error {
			res, err := fn(ctx, item)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

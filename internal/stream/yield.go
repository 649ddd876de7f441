package stream

import (
	"context"
	"runtime"
)

// DefaultYieldEvery is the number of items read between two cooperative yields.
const DefaultYieldEvery = 200

// gosched is replaced in tests.
var gosched = runtime.Gosched

type yieldingIterator[T any] struct {
	iter  Iterator[T]
	every int
	n     int
}

func (y *yieldingIterator[T]) Next(ctx context.Context) (T, error) {
	y.n++
	if y.n%y.every == 0 {
		gosched()
		if err := ctx.Err(); err != nil {
			var null T
			return null, err
		}
	}
	return y.iter.Next(ctx)
}

func (y *yieldingIterator[T]) Stop() {
	y.iter.Stop()
}

// Yielding returns an iterator that gives up the processor and checks ctx for cancellation
// every `every` items. A non-positive value uses DefaultYieldEvery.
func Yielding[T any](iter Iterator[T], every int) Iterator[T] {
	if every <= 0 {
		every = DefaultYieldEvery
	}
	return &yieldingIterator[T]{iter: iter, every: every}
}

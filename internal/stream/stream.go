// Package stream provides pull-based iterators and the operators the hierarchy level
// pipeline is composed of.
package stream

import (
	"context"
	"errors"
	"sync"
)

var ErrIteratorDone = errors.New("iterator done")

type Iterator[T any] interface {
	// Next will return the next available item. It returns ErrIteratorDone once the iterator is exhausted.
	Next(ctx context.Context) (T, error)
	// Stop terminates iteration over the underlying source. It is safe to call more than once.
	Stop()
}

// IsDoneOrCancelled reports whether err signals normal completion or context cancellation.
func IsDoneOrCancelled(err error) bool {
	return errors.Is(err, ErrIteratorDone) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type staticIterator[T any] struct {
	items []T
}

func (s *staticIterator[T]) Next(ctx context.Context) (T, error) {
	var val T
	if ctx.Err() != nil {
		return val, ctx.Err()
	}
	if len(s.items) == 0 {
		return val, ErrIteratorDone
	}
	next, rest := s.items[0], s.items[1:]
	s.items = rest
	return next, nil
}

func (s *staticIterator[T]) Stop() {
	s.items = nil
}

// FromSlice returns an iterator over the provided slice.
func FromSlice[T any](items []T) Iterator[T] {
	return &staticIterator[T]{items: items}
}

// Empty returns an iterator that is immediately done.
func Empty[T any]() Iterator[T] {
	return &staticIterator[T]{}
}

type errorIterator[T any] struct {
	err error
}

func (e *errorIterator[T]) Next(context.Context) (T, error) {
	var val T
	return val, e.err
}

func (e *errorIterator[T]) Stop() {}

// Error returns an iterator whose every Next call fails with err.
func Error[T any](err error) Iterator[T] {
	return &errorIterator[T]{err: err}
}

type funcIterator[T any] struct {
	next func(ctx context.Context) (T, error)
	once sync.Once
	stop func()
}

func (f *funcIterator[T]) Next(ctx context.Context) (T, error) {
	return f.next(ctx)
}

func (f *funcIterator[T]) Stop() {
	if f.stop != nil {
		f.once.Do(f.stop)
	}
}

// FromFunc adapts a next function and an optional stop function into an Iterator.
func FromFunc[T any](next func(ctx context.Context) (T, error), stop func()) Iterator[T] {
	return &funcIterator[T]{next: next, stop: stop}
}

type mapIterator[T, U any] struct {
	iter Iterator[T]
	fn   func(context.Context, T) (U, error)
}

func (m *mapIterator[T, U]) Next(ctx context.Context) (U, error) {
	var null U
	item, err := m.iter.Next(ctx)
	if err != nil {
		return null, err
	}
	return m.fn(ctx, item)
}

func (m *mapIterator[T, U]) Stop() {
	m.iter.Stop()
}

// Map returns an iterator yielding fn applied to every item of iter. An error returned by fn
// terminates the iteration with that error.
func Map[T, U any](iter Iterator[T], fn func(context.Context, T) (U, error)) Iterator[U] {
	return &mapIterator[T, U]{iter: iter, fn: fn}
}

// FilterFunc reports whether an item should be kept.
type FilterFunc[T any] func(T) (bool, error)

type filterIterator[T any] struct {
	iter   Iterator[T]
	filter FilterFunc[T]
}

func (f *filterIterator[T]) Next(ctx context.Context) (T, error) {
	var null T
	for {
		item, err := f.iter.Next(ctx)
		if err != nil {
			return null, err
		}
		keep, err := f.filter(item)
		if err != nil {
			return null, err
		}
		if keep {
			return item, nil
		}
	}
}

func (f *filterIterator[T]) Stop() {
	f.iter.Stop()
}

// Filter returns an iterator yielding the items of iter that pass filter.
func Filter[T any](iter Iterator[T], filter FilterFunc[T]) Iterator[T] {
	return &filterIterator[T]{iter: iter, filter: filter}
}

type concatIterator[T any] struct {
	iters []Iterator[T]
}

func (c *concatIterator[T]) Next(ctx context.Context) (T, error) {
	for len(c.iters) > 0 {
		item, err := c.iters[0].Next(ctx)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, ErrIteratorDone) {
			return item, err
		}
		c.iters[0].Stop()
		c.iters = c.iters[1:]
	}
	var null T
	return null, ErrIteratorDone
}

func (c *concatIterator[T]) Stop() {
	for _, iter := range c.iters {
		iter.Stop()
	}
	c.iters = nil
}

// Concat yields the items of every iterator in turn. Each iterator is stopped as soon as it
// is exhausted.
func Concat[T any](iters ...Iterator[T]) Iterator[T] {
	return &concatIterator[T]{iters: iters}
}

type flatMapIterator[T, U any] struct {
	iter    Iterator[T]
	fn      func(context.Context, T) (Iterator[U], error)
	current Iterator[U]
}

func (f *flatMapIterator[T, U]) Next(ctx context.Context) (U, error) {
	var null U
	for {
		if f.current == nil {
			item, err := f.iter.Next(ctx)
			if err != nil {
				return null, err
			}
			f.current, err = f.fn(ctx, item)
			if err != nil {
				return null, err
			}
		}
		item, err := f.current.Next(ctx)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, ErrIteratorDone) {
			return null, err
		}
		f.current.Stop()
		f.current = nil
	}
}

func (f *flatMapIterator[T, U]) Stop() {
	if f.current != nil {
		f.current.Stop()
		f.current = nil
	}
	f.iter.Stop()
}

// FlatMap yields the items of the iterators fn returns for every item of iter, in order.
func FlatMap[T, U any](iter Iterator[T], fn func(context.Context, T) (Iterator[U], error)) Iterator[U] {
	return &flatMapIterator[T, U]{iter: iter, fn: fn}
}

// Drain reads iter until it is exhausted and stops it. Any error other than ErrIteratorDone
// is returned together with the items read so far.
func Drain[T any](ctx context.Context, iter Iterator[T]) ([]T, error) {
	defer iter.Stop()
	var items []T
	for {
		item, err := iter.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				return items, nil
			}
			return items, err
		}
		items = append(items, item)
	}
}

// Count reads iter until it is exhausted and stops it, returning the number of items read.
func Count[T any](ctx context.Context, iter Iterator[T]) (int, error) {
	defer iter.Stop()
	var n int
	for {
		if _, err := iter.Next(ctx); err != nil {
			if errors.Is(err, ErrIteratorDone) {
				return n, nil
			}
			return n, err
		}
		n++
	}
}

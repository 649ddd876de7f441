package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrSharedReleased is returned by subscriptions created after every earlier subscriber
// released an unfinished source, once they run past the replayed items.
var ErrSharedReleased = errors.New("shared iterator source already released")

// Shared pulls one source iterator on behalf of any number of subscribers. Items are
// buffered so that every subscriber, including late ones, observes the full sequence. The
// source is stopped once all subscribers have stopped.
type Shared[T any] struct {
	mu sync.Mutex

	src      Iterator[T] // protected by mu, nil once released
	items    []T         // protected by mu
	err      error       // terminal error of the source, ErrIteratorDone on completion
	refs     int         // protected by mu
	released bool        // protected by mu
}

// Share wraps src for shared consumption. Nothing is read from src until a subscriber
// calls Next.
func Share[T any](src Iterator[T]) *Shared[T] {
	return &Shared[T]{src: src}
}

// Subscribe returns a new consumer of the shared source that starts at the first item.
func (s *Shared[T]) Subscribe() Iterator[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs++
	return &subscription[T]{shared: s}
}

// fetch returns the item at index i, pulling the source when i is past the buffer.
func (s *Shared[T]) fetch(ctx context.Context, i int) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var null T
	if i < len(s.items) {
		return s.items[i], nil
	}
	if s.err != nil {
		return null, s.err
	}
	if s.released {
		return null, ErrSharedReleased
	}

	item, err := s.src.Next(ctx)
	if err != nil {
		// a cancelled pull belongs to one subscriber only and must not poison the others
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return null, err
		}
		s.err = err
		return null, err
	}
	s.items = append(s.items, item)
	return item, nil
}

func (s *Shared[T]) deref() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs > 0 || s.released {
		return
	}
	s.released = true
	s.src.Stop()
	s.src = nil
}

type subscription[T any] struct {
	shared  *Shared[T]
	head    int
	stopped bool
}

func (s *subscription[T]) Next(ctx context.Context) (T, error) {
	if s.stopped {
		var null T
		return null, ErrIteratorDone
	}
	item, err := s.shared.fetch(ctx, s.head)
	if err != nil {
		return item, err
	}
	s.head++
	return item, nil
}

func (s *subscription[T]) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	s.shared.deref()
}

// Partition splits src into the items matching pred and the rest. src is read at most once
// no matter how the two outputs are consumed, and it is stopped once both outputs are.
// An error of src is reported by both outputs.
func Partition[T any](src Iterator[T], pred func(T) bool) (matches, nonMatches Iterator[T]) {
	shared := Share(src)
	matches = Filter(shared.Subscribe(), func(item T) (bool, error) {
		return pred(item), nil
	})
	nonMatches = Filter(shared.Subscribe(), func(item T) (bool, error) {
		return !pred(item), nil
	})
	return matches, nonMatches
}

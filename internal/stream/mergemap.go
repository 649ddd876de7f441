package stream

import (
	"context"
	"errors"
	"iter"
)

// MergeMap is a string-keyed mapping that remembers the order in which keys first appeared.
type MergeMap[V any] struct {
	keys   []string
	values map[string]V
}

func newMergeMap[V any]() *MergeMap[V] {
	return &MergeMap[V]{values: map[string]V{}}
}

// Len returns the number of keys.
func (m *MergeMap[V]) Len() int {
	return len(m.keys)
}

// Get returns the value stored for key.
func (m *MergeMap[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in first-appearance order.
func (m *MergeMap[V]) Keys() []string {
	return append([]string(nil), m.keys...)
}

// All iterates the entries in first-appearance order.
func (m *MergeMap[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

func (m *MergeMap[V]) put(key string, v V) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Reducer folds item into the value already stored under its key. ok is false for the
// first item of a key.
type Reducer[T, V any] func(item T, existing V, ok bool) V

// ReduceToMergeMap drains src and folds every item into the value stored under key(item).
// The mapping is returned once src completes. An empty source yields an empty mapping.
func ReduceToMergeMap[T, V any](ctx context.Context, src Iterator[T], key func(T) string, reduce Reducer[T, V]) (*MergeMap[V], error) {
	defer src.Stop()
	m := newMergeMap[V]()
	for {
		item, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				return m, nil
			}
			return nil, err
		}
		k := key(item)
		existing, ok := m.values[k]
		m.put(k, reduce(item, existing, ok))
	}
}

// ReduceToListMap drains src and collects items into lists keyed by key(item), keeping the
// source order within each list.
func ReduceToListMap[T any](ctx context.Context, src Iterator[T], key func(T) string) (*MergeMap[[]T], error) {
	return ReduceToMergeMap(ctx, src, key, func(item T, list []T, _ bool) []T {
		return append(list, item)
	})
}

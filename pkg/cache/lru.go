package cache

import (
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
)

// lru is a least recently used index. Items are found through a map and ordered by their
// last access tick in a red-black tree, so lookups, touches and evictions never scan.
// It is not safe for concurrent use.
type lru[K comparable, V any] struct {
	tick  uint64
	items map[K]*lruItem[V]
	order *redblacktree.Tree // access tick -> K, oldest first
}

type lruItem[V any] struct {
	value V
	tick  uint64
}

func newLRU[K comparable, V any]() *lru[K, V] {
	return &lru[K, V]{
		items: map[K]*lruItem[V]{},
		order: redblacktree.NewWith(utils.UInt64Comparator),
	}
}

// get returns the value of key and marks it as the most recently used.
func (l *lru[K, V]) get(key K) (V, bool) {
	item, ok := l.items[key]
	if !ok {
		var null V
		return null, false
	}
	l.touch(key, item)
	return item.value, true
}

// put stores value under key as the most recently used.
func (l *lru[K, V]) put(key K, value V) {
	item, ok := l.items[key]
	if !ok {
		item = &lruItem[V]{}
		l.items[key] = item
	} else {
		l.order.Remove(item.tick)
	}
	item.value = value
	l.tick++
	item.tick = l.tick
	l.order.Put(item.tick, key)
}

func (l *lru[K, V]) touch(key K, item *lruItem[V]) {
	l.order.Remove(item.tick)
	l.tick++
	item.tick = l.tick
	l.order.Put(item.tick, key)
}

// trim evicts the least recently used items until at most size remain.
func (l *lru[K, V]) trim(size int) {
	for len(l.items) > size {
		oldest := l.order.Left()
		if oldest == nil {
			return
		}
		l.order.Remove(oldest.Key)
		delete(l.items, oldest.Value.(K))
	}
}

func (l *lru[K, V]) len() int {
	return len(l.items)
}

func (l *lru[K, V]) clear() {
	clear(l.items)
	l.order.Clear()
}

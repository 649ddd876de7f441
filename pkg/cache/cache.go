// Package cache holds built hierarchy levels keyed by the path of their parent node.
package cache

import (
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iTwin/presentation-hierarchies/internal/build"
	"github.com/iTwin/presentation-hierarchies/internal/keys"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
)

const (
	DefaultSize            = 1000
	DefaultVariationsCount = 1
)

var (
	hierarchyCacheTotalCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "hierarchy_cache_total_count",
		Help:      "The total number of hierarchy level cache lookups.",
	})

	hierarchyCacheHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "hierarchy_cache_hit_count",
		Help:      "The total number of hierarchy level cache hits.",
	})
)

// RequestProps identify a cached hierarchy level.
type RequestProps struct {
	ParentPath           []nodekey.Key
	InstanceFilter       *query.InstanceFilter
	SizeLimit            query.SizeLimit
	FilteredInstanceKeys []nodekey.InstanceKey
}

// variationKey returns the canonical key of the request variation, or "" for the primary
// variation: no instance filter, no requested size limit and no filtered instance keys.
func (r RequestProps) variationKey() string {
	if r.InstanceFilter == nil && !r.SizeLimit.IsSet() && len(r.FilteredInstanceKeys) == 0 {
		return ""
	}
	ik := slices.Clone(r.FilteredInstanceKeys)
	slices.SortFunc(ik, nodekey.CompareInstanceKeys)
	ikStrings := make([]string, len(ik))
	for i, k := range ik {
		ikStrings[i] = k.String()
	}
	return strings.Join([]string{
		r.InstanceFilter.Canonical(),
		strconv.Itoa(int(r.SizeLimit)),
		strings.Join(ikStrings, ","),
	}, "|")
}

type entry[T any] struct {
	// path is the canonical parent path, compared on lookup to rule out hash collisions
	path       string
	primary    *T
	variations *lru[string, T]
}

// HierarchyCache is a bounded LRU of hierarchy levels keyed by parent path. Each path
// holds a primary level and a bounded LRU of variations requested with instance filters,
// size limits or filtered instance keys. It is safe for concurrent use.
type HierarchyCache[T any] struct {
	mu              sync.Mutex
	size            int
	variationsCount int
	entries         *lru[uint64, *entry[T]]
}

type Option func(*options)

type options struct {
	size            int
	variationsCount int
}

// WithSize sets the number of parent paths kept. Whole entries are evicted LRU first.
func WithSize(size int) Option {
	return func(o *options) {
		o.size = size
	}
}

// WithVariationsCount sets the number of variations kept per parent path.
func WithVariationsCount(n int) Option {
	return func(o *options) {
		o.variationsCount = n
	}
}

func New[T any](opts ...Option) *HierarchyCache[T] {
	o := &options{size: DefaultSize, variationsCount: DefaultVariationsCount}
	for _, opt := range opts {
		opt(o)
	}
	return &HierarchyCache[T]{
		size:            max(o.size, 1),
		variationsCount: max(o.variationsCount, 0),
		entries:         newLRU[uint64, *entry[T]](),
	}
}

func (c *HierarchyCache[T]) lookup(path []nodekey.Key) (uint64, *entry[T], bool) {
	key := keys.PathKey(path)
	e, ok := c.entries.get(key)
	if !ok || e.path != nodekey.PathString(path) {
		return key, nil, false
	}
	return key, e, true
}

// Get returns the level cached for props.
func (c *HierarchyCache[T]) Get(props RequestProps) (T, bool) {
	hierarchyCacheTotalCounter.Inc()
	c.mu.Lock()
	defer c.mu.Unlock()

	var null T
	_, e, ok := c.lookup(props.ParentPath)
	if !ok {
		return null, false
	}

	vk := props.variationKey()
	if vk == "" {
		if e.primary == nil {
			return null, false
		}
		hierarchyCacheHitCounter.Inc()
		return *e.primary, true
	}
	v, ok := e.variations.get(vk)
	if !ok {
		return null, false
	}
	hierarchyCacheHitCounter.Inc()
	return v, true
}

// Set stores the level built for props.
func (c *HierarchyCache[T]) Set(props RequestProps, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, e, ok := c.lookup(props.ParentPath)
	if !ok {
		e = &entry[T]{path: nodekey.PathString(props.ParentPath), variations: newLRU[string, T]()}
	}
	c.entries.put(key, e)
	c.entries.trim(c.size)

	vk := props.variationKey()
	if vk == "" {
		e.primary = &value
		return
	}
	if c.variationsCount == 0 {
		return
	}
	e.variations.put(vk, value)
	e.variations.trim(c.variationsCount)
}

// Clear drops every cached level.
func (c *HierarchyCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.clear()
}

// Len returns the number of cached parent paths.
func (c *HierarchyCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.len()
}

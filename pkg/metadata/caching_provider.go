package metadata

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iTwin/presentation-hierarchies/internal/build"
)

var (
	tracer = otel.Tracer("hierarchies/pkg/metadata")

	classCacheTotalCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "metadata_class_cache_total_count",
		Help:      "The total number of calls to GetClass on the caching metadata provider.",
	})

	classCacheHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "metadata_class_cache_hit_count",
		Help:      "The total number of cache hits for GetClass on the caching metadata provider.",
	})
)

// CachingProvider memoizes classes and class derivation answers of a delegate provider.
// Lookup failures are not cached.
type CachingProvider struct {
	delegate Provider
	classes  InMemoryCache[*Class]
	derived  InMemoryCache[bool]
	maxSize  int64
}

var _ Provider = (*CachingProvider)(nil)

type CachingProviderOpt func(*CachingProvider)

// WithClassCacheSize sets the maximum number of cached classes and derivation answers.
func WithClassCacheSize(size int64) CachingProviderOpt {
	return func(c *CachingProvider) {
		c.maxSize = size
	}
}

// NewCachingProvider wraps delegate with an in-memory cache.
func NewCachingProvider(delegate Provider, opts ...CachingProviderOpt) (*CachingProvider, error) {
	c := &CachingProvider{
		delegate: delegate,
		maxSize:  defaultMaxCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	classes, err := NewInMemoryLRUCache(WithMaxCacheSize[*Class](c.maxSize))
	if err != nil {
		return nil, err
	}
	derived, err := NewInMemoryLRUCache(WithMaxCacheSize[bool](c.maxSize))
	if err != nil {
		classes.Stop()
		return nil, err
	}
	c.classes = classes
	c.derived = derived
	return c, nil
}

func (c *CachingProvider) GetClass(ctx context.Context, fullClassName string) (*Class, error) {
	ctx, span := tracer.Start(ctx, "metadata.GetClass")
	defer span.End()

	name, err := NormalizeFullClassName(fullClassName)
	if err != nil {
		return nil, err
	}
	key := strings.ToLower(name)

	classCacheTotalCounter.Inc()
	if class, ok := c.classes.Get(key); ok {
		classCacheHitCounter.Inc()
		span.SetAttributes(attribute.Bool("cached", true))
		return class, nil
	}
	span.SetAttributes(attribute.Bool("cached", false))

	class, err := c.delegate.GetClass(ctx, fullClassName)
	if err != nil {
		return nil, err
	}
	c.classes.Set(key, class, 0)
	return class, nil
}

// IsDerivedFrom is IsDerivedFrom with memoized answers.
func (c *CachingProvider) IsDerivedFrom(ctx context.Context, className, baseClassName string) (bool, error) {
	key := strings.ToLower(className) + "|" + strings.ToLower(baseClassName)
	if v, ok := c.derived.Get(key); ok {
		return v, nil
	}
	v, err := IsDerivedFrom(ctx, c, className, baseClassName)
	if err != nil {
		return false, err
	}
	c.derived.Set(key, v, 0)
	return v, nil
}

// Close releases cache resources.
func (c *CachingProvider) Close() {
	c.classes.Stop()
	c.derived.Stop()
}

// Package hierarchy serves hierarchy levels built from a hierarchy definition. Levels are
// built on request, one parent at a time, and cached by parent path.
package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/iTwin/presentation-hierarchies/internal/pipeline"
	"github.com/iTwin/presentation-hierarchies/internal/stream"
	"github.com/iTwin/presentation-hierarchies/pkg/cache"
	"github.com/iTwin/presentation-hierarchies/pkg/definition"
	"github.com/iTwin/presentation-hierarchies/pkg/filtering"
	"github.com/iTwin/presentation-hierarchies/pkg/formatter"
	"github.com/iTwin/presentation-hierarchies/pkg/id"
	"github.com/iTwin/presentation-hierarchies/pkg/logger"
	"github.com/iTwin/presentation-hierarchies/pkg/metadata"
	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
	"github.com/iTwin/presentation-hierarchies/pkg/telemetry"
)

var tracer = otel.Tracer("hierarchies/pkg/hierarchy")

var (
	// ErrNodeNotFound is returned when the grouping node a level is requested for is not
	// part of its parent level.
	ErrNodeNotFound = errors.New("parent node not found in its hierarchy level")

	ErrProviderClosed = errors.New("hierarchy provider is closed")
)

// GetNodesProps describe a hierarchy level request.
type GetNodesProps struct {
	// ParentNode is nil for the root level.
	ParentNode     *node.HierarchyNode
	InstanceFilter *query.InstanceFilter
	// HierarchyLevelSizeLimit overrides the provider limit when set.
	HierarchyLevelSizeLimit query.SizeLimit
	// FilteredInstanceKeys restricts the instance nodes of the level to these instances.
	FilteredInstanceKeys []nodekey.InstanceKey
	IgnoreCache          bool
}

// Provider builds hierarchy levels and caches them. It is safe for concurrent use.
type Provider struct {
	id         string
	executor   query.Executor
	metadata   metadata.Provider
	definition definition.HierarchyDefinition
	logger     logger.Logger

	filteringPaths      []filtering.Path
	levelSizeLimit      query.SizeLimit
	childrenConcurrency int
	yieldEvery          int
	locale              language.Tag
	cacheSize           int
	variationsCount     int

	mu         sync.RWMutex
	formatter  formatter.Formatter        // protected by mu
	localized  formatter.LocalizedStrings // protected by mu
	pipeline   *pipeline.Pipeline         // protected by mu
	generation uint64                     // protected by mu, bumped on every invalidation
	closed     bool                       // protected by mu

	cache    *cache.HierarchyCache[[]*node.ProcessedNode]
	hasNodes singleflight.Group

	listenersMu  sync.Mutex
	listeners    map[uint64]func() // protected by listenersMu
	nextListener uint64            // protected by listenersMu
}

type ProviderOption func(*Provider)

// WithFormatter sets the formatter of node labels and grouping labels.
func WithFormatter(f formatter.Formatter) ProviderOption {
	return func(p *Provider) {
		p.formatter = f
	}
}

// WithLocalizer sets the strings used for synthetic grouping node labels.
func WithLocalizer(s formatter.LocalizedStrings) ProviderOption {
	return func(p *Provider) {
		p.localized = s
	}
}

func WithLogger(l logger.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = l
	}
}

// WithFilteringPaths restricts the hierarchy to the nodes on or under the given paths.
func WithFilteringPaths(paths ...filtering.Path) ProviderOption {
	return func(p *Provider) {
		p.filteringPaths = paths
	}
}

// WithCacheSize sets the number of parent paths whose levels are cached.
func WithCacheSize(size int) ProviderOption {
	return func(p *Provider) {
		p.cacheSize = size
	}
}

// WithVariationsCount sets the number of filtered or limited levels cached per parent.
func WithVariationsCount(n int) ProviderOption {
	return func(p *Provider) {
		p.variationsCount = n
	}
}

// WithLevelSizeLimit sets the size limit applied to requests that do not set one.
func WithLevelSizeLimit(limit query.SizeLimit) ProviderOption {
	return func(p *Provider) {
		p.levelSizeLimit = limit
	}
}

// WithChildrenConcurrency bounds the concurrent children checks of one level.
func WithChildrenConcurrency(n int) ProviderOption {
	return func(p *Provider) {
		p.childrenConcurrency = n
	}
}

// WithYieldEvery sets the number of rows read between cooperative yields.
func WithYieldEvery(n int) ProviderOption {
	return func(p *Provider) {
		p.yieldEvery = n
	}
}

// WithLocale sets the locale labels are sorted in.
func WithLocale(tag language.Tag) ProviderOption {
	return func(p *Provider) {
		p.locale = tag
	}
}

// NewProvider returns a provider building levels of def with nodes read through executor.
func NewProvider(executor query.Executor, md metadata.Provider, def definition.HierarchyDefinition, opts ...ProviderOption) *Provider {
	p := &Provider{
		id:              id.New(),
		executor:        executor,
		metadata:        md,
		definition:      def,
		logger:          logger.NewNoopLogger(),
		levelSizeLimit:  query.DefaultLevelSizeLimit,
		locale:          language.English,
		cacheSize:       cache.DefaultSize,
		variationsCount: cache.DefaultVariationsCount,
		formatter:       formatter.Default(),
		localized:       formatter.DefaultLocalizedStrings(),
		listeners:       map[uint64]func(){},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cache = cache.New[[]*node.ProcessedNode](cache.WithSize(p.cacheSize), cache.WithVariationsCount(p.variationsCount))
	p.pipeline = p.newPipeline()
	return p
}

// newPipeline must be called with mu held or before the provider is shared.
func (p *Provider) newPipeline() *pipeline.Pipeline {
	return pipeline.New(pipeline.Deps{
		Executor:            p.executor,
		Metadata:            p.metadata,
		Formatter:           p.formatter,
		Localized:           p.localized,
		Logger:              p.logger,
		Locale:              p.locale,
		YieldEvery:          p.yieldEvery,
		ChildrenConcurrency: p.childrenConcurrency,
	})
}

// ID returns the identifier the provider logs under.
func (p *Provider) ID() string {
	return p.id
}

func (p *Provider) snapshot() (*pipeline.Pipeline, uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, 0, ErrProviderClosed
	}
	return p.pipeline, p.generation, nil
}

// GetNodes returns the children of props.ParentNode, or the root nodes when it is nil.
// A level exceeding the size limit fails with a *query.RowsLimitExceededError and nothing
// is cached for it.
func (p *Provider) GetNodes(ctx context.Context, props GetNodesProps) ([]*node.HierarchyNode, error) {
	ctx, span := tracer.Start(ctx, "hierarchy.GetNodes")
	defer span.End()

	requestID := id.New()
	parentPath := props.ParentNode.Path()
	span.SetAttributes(
		attribute.String("provider_id", p.id),
		attribute.String("request_id", requestID),
		attribute.Int("parent_depth", len(parentPath)),
	)
	p.logger.Log(logger.CategoryProvider, logger.SeverityTrace, func() string {
		return fmt.Sprintf("requesting hierarchy level of %s", nodekey.PathString(parentPath))
	}, zap.String("provider_id", p.id), zap.String("request_id", requestID))

	pl, gen, err := p.snapshot()
	if err != nil {
		return nil, err
	}
	req := levelRequest{
		pipeline: pl,
		gen:      gen,
		parent:   props.ParentNode,
		path:     parentPath,
		props:    props,
	}
	nodes, err := p.processedLevel(ctx, req)
	if err != nil {
		telemetry.TraceError(span, err)
		p.logger.Log(logger.CategoryProvider, logger.SeverityWarning, func() string {
			return fmt.Sprintf("failed to build hierarchy level of %s", nodekey.PathString(parentPath))
		}, zap.String("request_id", requestID), zap.Error(err))
		return nil, err
	}

	out := make([]*node.HierarchyNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, node.Finalize(n))
	}
	span.SetAttributes(attribute.Int("nodes", len(out)))
	return out, nil
}

type levelRequest struct {
	pipeline *pipeline.Pipeline
	gen      uint64
	// parent may be reconstructed from path when a grouping level is rebuilt
	parent *node.HierarchyNode
	path   []nodekey.Key
	props  GetNodesProps
}

func (r levelRequest) cacheProps() cache.RequestProps {
	return cache.RequestProps{
		ParentPath:           r.path,
		InstanceFilter:       r.props.InstanceFilter,
		SizeLimit:            r.props.HierarchyLevelSizeLimit,
		FilteredInstanceKeys: r.props.FilteredInstanceKeys,
	}
}

// processedLevel returns the processed children of the node at r.path. Cached nodes are
// never handed out; callers get clones.
func (p *Provider) processedLevel(ctx context.Context, r levelRequest) ([]*node.ProcessedNode, error) {
	if !r.props.IgnoreCache {
		if cached, ok := p.cache.Get(r.cacheProps()); ok {
			return cloneNodes(cached), nil
		}
	}

	level := pipeline.Level{
		Parent:               r.parent,
		Definition:           p.definition,
		Filtering:            p.filteringAt(r.path),
		InstanceFilter:       r.props.InstanceFilter,
		FilteredInstanceKeys: r.props.FilteredInstanceKeys,
		SizeLimit:            r.props.HierarchyLevelSizeLimit.Or(p.levelSizeLimit),
		HasNodes: func(ctx context.Context, n *node.ProcessedNode) (bool, error) {
			return p.hasChildren(ctx, r.pipeline, r.gen, node.Finalize(n))
		},
	}

	var (
		nodes []*node.ProcessedNode
		err   error
	)
	if len(r.path) == 0 || !nodekey.IsGrouping(r.path[len(r.path)-1]) {
		nodes, err = r.pipeline.Run(ctx, level)
	} else {
		nodes, err = p.groupingLevel(ctx, r, level)
	}
	if err != nil {
		return nil, err
	}
	p.store(r, nodes)
	return cloneNodes(nodes), nil
}

// groupingLevel builds the children of the grouping node at r.path from the level the
// grouping node belongs to.
func (p *Provider) groupingLevel(ctx context.Context, r levelRequest, level pipeline.Level) ([]*node.ProcessedNode, error) {
	parentPath := r.path[:len(r.path)-1]
	siblings, err := p.processedLevel(ctx, levelRequest{
		pipeline: r.pipeline,
		gen:      r.gen,
		parent:   nodeAt(parentPath),
		path:     parentPath,
		props:    r.props,
	})
	if err != nil {
		return nil, err
	}

	key := r.path[len(r.path)-1]
	for _, n := range siblings {
		if nodekey.Equal(n.Key, key) {
			return r.pipeline.RunGroupingChildren(ctx, level, n)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodekey.Marshal(key))
}

// store caches nodes unless the provider was invalidated since the request started.
func (p *Provider) store(r levelRequest, nodes []*node.ProcessedNode) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || p.generation != r.gen {
		return
	}
	p.cache.Set(r.cacheProps(), cloneNodes(nodes))
}

// nodeAt reconstructs the node at the end of path from its keys alone.
func nodeAt(path []nodekey.Key) *node.HierarchyNode {
	if len(path) == 0 {
		return nil
	}
	return &node.HierarchyNode{
		Key:        path[len(path)-1],
		ParentKeys: path[:len(path)-1],
		Children:   true,
	}
}

// filteringAt returns the filtering props of the node at path. Grouping keys are skipped:
// grouping nodes pass the props of their parent through.
func (p *Provider) filteringAt(path []nodekey.Key) *filtering.Props {
	props := filtering.Root(p.filteringPaths)
	for _, k := range path {
		if props == nil {
			return nil
		}
		if nodekey.IsGrouping(k) {
			continue
		}
		props, _ = props.Match(k)
	}
	return props
}

func cloneNodes(nodes []*node.ProcessedNode) []*node.ProcessedNode {
	out := make([]*node.ProcessedNode, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// HasNodes reports whether parent has at least one child. Grouping nodes always do.
func (p *Provider) HasNodes(ctx context.Context, parent *node.HierarchyNode) (bool, error) {
	pl, gen, err := p.snapshot()
	if err != nil {
		return false, err
	}
	return p.hasChildren(ctx, pl, gen, parent)
}

// hasChildren reports whether parent has a displayed child. Concurrent checks of the same
// parent within one generation share one load. The shared load outlives the caller that
// started it; each caller only returns early on its own cancellation.
func (p *Provider) hasChildren(ctx context.Context, pl *pipeline.Pipeline, gen uint64, parent *node.HierarchyNode) (bool, error) {
	if parent.IsGrouping() {
		return true, nil
	}
	key := strconv.FormatUint(gen, 10) + "|" + nodekey.PathString(parent.Path())
	loadCtx := context.WithoutCancel(ctx)
	ch := p.hasNodes.DoChan(key, func() (any, error) {
		return p.loadHasChildren(loadCtx, pl, gen, parent)
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

// loadHasChildren loads the children of parent until one that is displayed is found.
func (p *Provider) loadHasChildren(ctx context.Context, pl *pipeline.Pipeline, gen uint64, parent *node.HierarchyNode) (bool, error) {
	path := parent.Path()
	src, err := pl.Load(ctx, pipeline.Level{
		Parent:     parent,
		Definition: p.definition,
		Filtering:  p.filteringAt(path),
		SizeLimit:  query.Unbounded,
	})
	if err != nil {
		return false, err
	}
	defer src.Stop()
	for {
		child, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, stream.ErrIteratorDone) {
				return false, nil
			}
			return false, err
		}
		if !child.Processing.HideIfNoChildren {
			return true, nil
		}
		switch child.Children {
		case node.ChildrenYes:
			return true, nil
		case node.ChildrenNo:
			continue
		}
		has, err := p.hasChildren(ctx, pl, gen, node.Finalize(child))
		if err != nil {
			return false, err
		}
		if has {
			return true, nil
		}
	}
}

// SetFormatter replaces the label formatter. Cached levels are dropped and consumers are
// notified that the hierarchy changed.
func (p *Provider) SetFormatter(f formatter.Formatter) {
	if f == nil {
		f = formatter.Default()
	}
	p.mu.Lock()
	p.formatter = f
	p.invalidateLocked()
	p.mu.Unlock()

	p.logger.Log(logger.CategoryProvider, logger.SeverityInfo, func() string {
		return "formatter changed"
	}, zap.String("provider_id", p.id))
	p.notify()
}

// SetLocalizedStrings replaces the strings used for synthetic grouping labels.
func (p *Provider) SetLocalizedStrings(s formatter.LocalizedStrings) {
	p.mu.Lock()
	p.localized = s
	p.invalidateLocked()
	p.mu.Unlock()
	p.notify()
}

// NotifyDataSourceChanged drops cached levels after the underlying data changed and
// notifies consumers.
func (p *Provider) NotifyDataSourceChanged() {
	p.mu.Lock()
	p.invalidateLocked()
	p.mu.Unlock()

	p.logger.Log(logger.CategoryProvider, logger.SeverityInfo, func() string {
		return "data source changed"
	}, zap.String("provider_id", p.id))
	p.notify()
}

func (p *Provider) invalidateLocked() {
	p.generation++
	p.pipeline = p.newPipeline()
	p.cache.Clear()
}

// OnHierarchyChanged registers fn to be called whenever previously returned levels become
// stale. The returned function unregisters it.
func (p *Provider) OnHierarchyChanged(fn func()) (unsubscribe func()) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	key := p.nextListener
	p.nextListener++
	p.listeners[key] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.listenersMu.Lock()
			defer p.listenersMu.Unlock()
			delete(p.listeners, key)
		})
	}
}

func (p *Provider) notify() {
	p.listenersMu.Lock()
	fns := make([]func(), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.listenersMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Close drops cached levels and unregisters every listener. Requests made afterwards fail
// with ErrProviderClosed.
func (p *Provider) Close() {
	p.mu.Lock()
	p.closed = true
	p.cache.Clear()
	p.mu.Unlock()

	p.listenersMu.Lock()
	clear(p.listeners)
	p.listenersMu.Unlock()
}

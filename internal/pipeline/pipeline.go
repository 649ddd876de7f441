// Package pipeline builds one hierarchy level: it runs the level's queries, turns rows
// into nodes and determines, groups, sorts and limits them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/iTwin/presentation-hierarchies/internal/build"
	"github.com/iTwin/presentation-hierarchies/internal/concurrency"
	"github.com/iTwin/presentation-hierarchies/internal/grouping"
	"github.com/iTwin/presentation-hierarchies/internal/stream"
	"github.com/iTwin/presentation-hierarchies/pkg/definition"
	"github.com/iTwin/presentation-hierarchies/pkg/filtering"
	"github.com/iTwin/presentation-hierarchies/pkg/formatter"
	"github.com/iTwin/presentation-hierarchies/pkg/logger"
	"github.com/iTwin/presentation-hierarchies/pkg/metadata"
	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
	"github.com/iTwin/presentation-hierarchies/pkg/telemetry"
)

var (
	tracer = otel.Tracer("hierarchies/internal/pipeline")

	levelLoadDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:                       build.ProjectName,
		Name:                            "hierarchy_level_load_duration_ms",
		Help:                            "The time (in ms) taken to build a hierarchy level, labeled by outcome.",
		Buckets:                         []float64{1, 5, 10, 25, 50, 100, 200, 300, 1000, 5000},
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  100,
		NativeHistogramMinResetDuration: time.Hour,
	}, []string{"outcome"})

	nodesReadCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "hierarchy_level_nodes_read_count",
		Help:      "The total number of nodes read while building hierarchy levels.",
	})

	sizeLimitExceededCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "hierarchy_level_size_limit_exceeded_count",
		Help:      "The total number of hierarchy level requests that exceeded the size limit.",
	})
)

const (
	DefaultChildrenConcurrency = 10
)

// HasNodesFunc reports whether a node has children.
type HasNodesFunc func(ctx context.Context, n *node.ProcessedNode) (bool, error)

// Deps are the collaborators of the pipeline.
type Deps struct {
	Executor  query.Executor
	Metadata  metadata.Provider
	Formatter formatter.Formatter
	Localized formatter.LocalizedStrings
	Logger    logger.Logger
	Locale    language.Tag
	// YieldEvery is the number of rows read between cooperative yields.
	YieldEvery int
	// ChildrenConcurrency bounds the concurrent children checks of a level.
	ChildrenConcurrency int
}

// Level describes the hierarchy level to build.
type Level struct {
	// Parent is nil for the root level.
	Parent     *node.HierarchyNode
	Definition definition.HierarchyDefinition
	// Filtering holds the filtering props of the parent.
	Filtering            *filtering.Props
	InstanceFilter       *query.InstanceFilter
	FilteredInstanceKeys []nodekey.InstanceKey
	// SizeLimit is the resolved limit; Unbounded disables the check.
	SizeLimit query.SizeLimit
	// HasNodes determines children of nodes that do not tell upfront. When nil such nodes
	// keep unknown children.
	HasNodes HasNodesFunc
}

// Pipeline builds hierarchy levels.
type Pipeline struct {
	deps Deps
}

// New returns a pipeline using deps. A zero formatter, locale or logger is replaced by the
// default one.
func New(deps Deps) *Pipeline {
	if deps.Formatter == nil {
		deps.Formatter = formatter.Default()
	}
	if deps.Localized == (formatter.LocalizedStrings{}) {
		deps.Localized = formatter.DefaultLocalizedStrings()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoopLogger()
	}
	if deps.Locale == language.Und {
		deps.Locale = language.English
	}
	if deps.YieldEvery <= 0 {
		deps.YieldEvery = stream.DefaultYieldEvery
	}
	if deps.ChildrenConcurrency <= 0 {
		deps.ChildrenConcurrency = DefaultChildrenConcurrency
	}
	return &Pipeline{deps: deps}
}

func (p *Pipeline) groupingDeps() grouping.Deps {
	return grouping.Deps{
		Metadata:  p.deps.Metadata,
		Formatter: p.deps.Formatter,
		Localized: p.deps.Localized,
		Logger:    p.deps.Logger,
	}
}

// Run builds the level: it loads the level's nodes, enforces the size limit, determines
// unknown children, removes childless nodes asking for it, groups, post-processes and
// sorts. Nothing is returned unless every stage succeeds.
func (p *Pipeline) Run(ctx context.Context, level Level) ([]*node.ProcessedNode, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.Int("parent_depth", len(level.Parent.Path())))

	start := time.Now()
	nodes, err := p.run(ctx, level)
	outcome := "success"
	if err != nil {
		outcome = "error"
		if _, ok := query.IsRowsLimitExceeded(err); ok {
			outcome = "size_limit_exceeded"
			sizeLimitExceededCounter.Inc()
		}
		telemetry.TraceError(span, err)
	}
	elapsed := time.Since(start)
	levelLoadDurationHistogram.WithLabelValues(outcome).Observe(float64(elapsed.Milliseconds()))
	p.deps.Logger.Log(logger.CategoryPerformance, logger.SeverityTrace, func() string {
		return fmt.Sprintf("hierarchy level built in %s", elapsed)
	}, zap.String("outcome", outcome), zap.Int("nodes", len(nodes)))
	return nodes, err
}

func (p *Pipeline) run(ctx context.Context, level Level) ([]*node.ProcessedNode, error) {
	src, err := p.Load(ctx, level)
	if err != nil {
		return nil, err
	}
	nodes, err := drainLimited(ctx, src, level.SizeLimit)
	if err != nil {
		return nil, err
	}
	nodesReadCounter.Add(float64(len(nodes)))

	nodes, err = p.determineChildren(ctx, nodes, level.HasNodes)
	if err != nil {
		return nil, err
	}
	nodes = hideIfNoChildren(nodes)

	handlers, err := grouping.Handlers(ctx, level.Parent.Path(), nodes, p.groupingDeps())
	if err != nil {
		return nil, err
	}
	nodes, err = grouping.Group(ctx, nodes, handlers)
	if err != nil {
		return nil, err
	}

	nodes, err = p.postProcess(ctx, level.Definition, nodes)
	if err != nil {
		return nil, err
	}
	sortNodes(nodes, p.deps.Locale)

	if err := checkSizeLimit(nodes, level.SizeLimit); err != nil {
		return nil, err
	}
	return nodes, nil
}

// RunGroupingChildren builds the children of grouping node gn, which must come from the
// result of its source level. The grouped nodes are grouped again with the grouping stages
// following the one gn belongs to.
func (p *Pipeline) RunGroupingChildren(ctx context.Context, level Level, gn *node.ProcessedNode) ([]*node.ProcessedNode, error) {
	ctx, span := tracer.Start(ctx, "pipeline.RunGroupingChildren")
	defer span.End()

	members := make([]*node.ProcessedNode, 0, len(gn.GroupedNodes))
	for _, m := range gn.GroupedNodes {
		members = append(members, m.Clone())
	}

	handlers, err := grouping.Handlers(ctx, gn.Path(), members, p.groupingDeps())
	if err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}
	nodes, err := grouping.Group(ctx, members, handlers)
	if err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}
	nodes, err = p.postProcess(ctx, level.Definition, nodes)
	if err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}
	sortNodes(nodes, p.deps.Locale)
	return nodes, nil
}

// drainLimited reads src to the end. Once more than limit unpinned nodes have been read
// the remaining nodes are only counted, and the size error reports the total.
func drainLimited(ctx context.Context, src stream.Iterator[*node.ProcessedNode], limit query.SizeLimit) ([]*node.ProcessedNode, error) {
	defer src.Stop()
	var (
		nodes    []*node.ProcessedNode
		unpinned int
	)
	for {
		n, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, stream.ErrIteratorDone) {
				break
			}
			return nil, err
		}
		if !n.Filtering.IsPinned() {
			unpinned++
		}
		if limit.Exceeded(unpinned) {
			continue
		}
		nodes = append(nodes, n)
	}
	if limit.Exceeded(unpinned) {
		return nil, &query.RowsLimitExceededError{Limit: int(limit), Count: unpinned}
	}
	return nodes, nil
}

func checkSizeLimit(nodes []*node.ProcessedNode, limit query.SizeLimit) error {
	var unpinned int
	for _, n := range nodes {
		if !n.Filtering.IsPinned() {
			unpinned++
		}
	}
	if limit.Exceeded(unpinned) {
		return &query.RowsLimitExceededError{Limit: int(limit), Count: unpinned}
	}
	return nil
}

// determineChildren resolves unknown children with hasNodes. Nodes keep their order.
func (p *Pipeline) determineChildren(ctx context.Context, nodes []*node.ProcessedNode, hasNodes HasNodesFunc) ([]*node.ProcessedNode, error) {
	if hasNodes == nil {
		return nodes, nil
	}
	return concurrency.MapOrdered(ctx, nodes, p.deps.ChildrenConcurrency, func(ctx context.Context, n *node.ProcessedNode) (*node.ProcessedNode, error) {
		if n.Children != node.ChildrenUnknown {
			return n, nil
		}
		has, err := hasNodes(ctx, n)
		if err != nil {
			return nil, err
		}
		n.Children = node.ChildrenOf(has)
		return n, nil
	})
}

func hideIfNoChildren(nodes []*node.ProcessedNode) []*node.ProcessedNode {
	kept := nodes[:0]
	for _, n := range nodes {
		if n.Processing.HideIfNoChildren && n.Children == node.ChildrenNo {
			continue
		}
		kept = append(kept, n)
	}
	return kept
}

func (p *Pipeline) postProcess(ctx context.Context, def definition.HierarchyDefinition, nodes []*node.ProcessedNode) ([]*node.ProcessedNode, error) {
	pp, ok := def.(definition.NodePostProcessor)
	if !ok {
		return nodes, nil
	}
	out := make([]*node.ProcessedNode, 0, len(nodes))
	for _, n := range nodes {
		processed, err := pp.PostProcessNode(ctx, n)
		if err != nil {
			return nil, err
		}
		if processed != nil {
			out = append(out, processed)
		}
	}
	return out, nil
}

// Package grouping groups the sibling nodes of a hierarchy level by label, class, base
// class and property values.
package grouping

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/iTwin/presentation-hierarchies/pkg/formatter"
	"github.com/iTwin/presentation-hierarchies/pkg/logger"
	"github.com/iTwin/presentation-hierarchies/pkg/metadata"
	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
)

var tracer = otel.Tracer("hierarchies/internal/grouping")

// Type names the strategy that produced a grouping result.
type Type string

const (
	TypeLabel     Type = "label"
	TypeClass     Type = "class"
	TypeBaseClass Type = "base-class"
	TypeProperty  Type = "property"
)

// Result is the outcome of one grouping handler. Grouped holds the grouping nodes created
// by the handler; Ungrouped holds the nodes left for the next handler.
type Result struct {
	GroupingType Type
	Grouped      []*node.ProcessedNode
	Ungrouped    []*node.ProcessedNode
}

// Handler groups a batch of sibling nodes.
type Handler func(ctx context.Context, nodes []*node.ProcessedNode) (Result, error)

// derivationChecker is implemented by metadata providers that memoize class derivation.
type derivationChecker interface {
	IsDerivedFrom(ctx context.Context, className, baseClassName string) (bool, error)
}

// Deps are the collaborators of the grouping handlers.
type Deps struct {
	Metadata  metadata.Provider
	Formatter formatter.Formatter
	Localized formatter.LocalizedStrings
	Logger    logger.Logger
}

func (d Deps) isDerivedFrom(ctx context.Context, className, baseClassName string) (bool, error) {
	if c, ok := d.Metadata.(derivationChecker); ok {
		return c.IsDerivedFrom(ctx, className, baseClassName)
	}
	return metadata.IsDerivedFrom(ctx, d.Metadata, className, baseClassName)
}

func (d Deps) log(severity logger.Severity, msg func() string, fields ...zap.Field) {
	if d.Logger != nil {
		d.Logger.Log(logger.CategoryGrouping, severity, msg, fields...)
	}
}

// Group runs handlers in order, each on the nodes left ungrouped by the previous one, and
// applies the grouping hiding options after every handler. The grouping nodes come first
// in the result, followed by the nodes no handler grouped.
func Group(ctx context.Context, nodes []*node.ProcessedNode, handlers []Handler) ([]*node.ProcessedNode, error) {
	ctx, span := tracer.Start(ctx, "grouping.Group")
	defer span.End()

	var grouped []*node.ProcessedNode
	rest := nodes
	for _, h := range handlers {
		if len(rest) == 0 {
			break
		}
		res, err := h(ctx, rest)
		if err != nil {
			return nil, err
		}
		res = ApplyHidingParams(res, len(grouped))
		grouped = append(grouped, res.Grouped...)
		rest = res.Ungrouped
	}
	return append(grouped, rest...), nil
}

// ApplyHidingParams replaces the grouping nodes of res whose hiding options apply by their
// members, which are moved back to the ungrouped nodes. extraSiblings is the number of
// grouping nodes created by earlier handlers for the same level.
func ApplyHidingParams(res Result, extraSiblings int) Result {
	onlyNode := extraSiblings == 0 && len(res.Grouped) == 1 && len(res.Ungrouped) == 0

	out := Result{GroupingType: res.GroupingType, Ungrouped: res.Ungrouped}
	for _, gn := range res.Grouped {
		opts := gn.GroupingOptions
		hide := (opts.HideIfOneGroupedNode && len(gn.GroupedNodes) == 1) || (opts.HideIfNoSiblings && onlyNode)
		if !hide {
			out.Grouped = append(out.Grouped, gn)
			continue
		}
		for _, member := range gn.GroupedNodes {
			out.Ungrouped = append(out.Ungrouped, member.WithParentKeys(gn.ParentKeys))
		}
	}
	return out
}

// newGroupingNode creates a grouping node over members, which must be siblings. Member
// parent keys are extended with the grouping key.
func newGroupingNode(key nodekey.Key, label string, members []*node.ProcessedNode, opts node.GroupingOptions) *node.ProcessedNode {
	gn := &node.ProcessedNode{
		Key:             key,
		ParentKeys:      slices.Clone(members[0].ParentKeys),
		Label:           label,
		Children:        node.ChildrenYes,
		AutoExpand:      opts.AutoExpand,
		GroupingOptions: opts,
		GroupedNodes:    make([]*node.ProcessedNode, 0, len(members)),
	}
	path := gn.Path()
	seen := map[nodekey.InstanceKey]struct{}{}
	for _, m := range members {
		gn.GroupedNodes = append(gn.GroupedNodes, m.WithParentKeys(path))
		for _, ik := range m.InstanceKeys() {
			if _, ok := seen[ik]; ok {
				continue
			}
			seen[ik] = struct{}{}
			gn.GroupedInstanceKeys = append(gn.GroupedInstanceKeys, ik)
		}
		if m.Filtering.RevealsTarget() {
			gn.AutoExpand = true
		}
	}
	return gn
}

// mergeOptions combines the options of the directives that put members into one group.
func mergeOptions(opts []node.GroupingOptions) node.GroupingOptions {
	var merged node.GroupingOptions
	for _, o := range opts {
		merged.HideIfNoSiblings = merged.HideIfNoSiblings || o.HideIfNoSiblings
		merged.HideIfOneGroupedNode = merged.HideIfOneGroupedNode || o.HideIfOneGroupedNode
		merged.AutoExpand = merged.AutoExpand || o.AutoExpand
		if merged.Pin == node.PinNone {
			merged.Pin = o.Pin
		}
	}
	return merged
}

// bucket is a set of nodes that end up in the same group, along with the directive
// options each of them was grouped with.
type bucket struct {
	key     nodekey.Key
	label   string
	members []*node.ProcessedNode
	options []node.GroupingOptions
}

type bucketer struct {
	order   []string
	buckets map[string]*bucket
}

func newBucketer() *bucketer {
	return &bucketer{buckets: map[string]*bucket{}}
}

func (b *bucketer) add(key nodekey.Key, label string, member *node.ProcessedNode, opts node.GroupingOptions) {
	id := nodekey.Marshal(key)
	bk, ok := b.buckets[id]
	if !ok {
		bk = &bucket{key: key, label: label}
		b.buckets[id] = bk
		b.order = append(b.order, id)
	}
	bk.members = append(bk.members, member)
	bk.options = append(bk.options, opts)
}

// groupingNodes returns one grouping node per bucket, in order of first appearance.
func (b *bucketer) groupingNodes() []*node.ProcessedNode {
	nodes := make([]*node.ProcessedNode, 0, len(b.order))
	for _, id := range b.order {
		bk := b.buckets[id]
		nodes = append(nodes, newGroupingNode(bk.key, bk.label, bk.members, mergeOptions(bk.options)))
	}
	return nodes
}

// instanceClassName returns the class of the first instance of an instance node.
func instanceClassName(n *node.ProcessedNode) (string, bool) {
	keys := nodekey.InstanceKeys(n.Key)
	if len(keys) == 0 {
		return "", false
	}
	return keys[0].ClassName, true
}

func getClass(ctx context.Context, deps Deps, fullClassName string) (*metadata.Class, error) {
	class, err := deps.Metadata.GetClass(ctx, fullClassName)
	if err != nil {
		return nil, fmt.Errorf("grouping by class %s: %w", fullClassName, err)
	}
	return class, nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/iTwin/presentation-hierarchies/internal/stream"
	"github.com/iTwin/presentation-hierarchies/pkg/definition"
	"github.com/iTwin/presentation-hierarchies/pkg/formatter"
	"github.com/iTwin/presentation-hierarchies/pkg/logger"
	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
)

// Load streams the ungrouped nodes of a level: definitions are resolved, their queries run
// and rows parsed, pre-processed, labeled and filtered. Nodes hidden in the hierarchy are
// replaced by their own children.
func (p *Pipeline) Load(ctx context.Context, level Level) (stream.Iterator[*node.ProcessedNode], error) {
	if level.Definition == nil {
		return nil, errNoDefinition
	}
	defs, err := level.Definition.DefineHierarchyLevel(ctx, definition.DefineLevelProps{
		ParentNode:     level.Parent,
		InstanceFilter: level.InstanceFilter,
	})
	if err != nil {
		return nil, err
	}
	if err := definition.Validate(defs); err != nil {
		return nil, err
	}

	parentKeys := level.Parent.Path()
	sources := make([]stream.Iterator[*node.ProcessedNode], 0, len(defs))
	for _, def := range defs {
		switch d := def.(type) {
		case definition.GenericNodeDefinition:
			// an instance filter only lets instances through
			if level.InstanceFilter != nil {
				continue
			}
			sources = append(sources, stream.FromSlice([]*node.ProcessedNode{d.Node.ToProcessed(parentKeys)}))
		case definition.InstanceNodesQueryDefinition:
			sources = append(sources, p.queryNodes(level, d, parentKeys))
		}
	}

	nodes := stream.Concat(sources...)
	nodes = p.preProcess(level.Definition, nodes)
	nodes = stream.Map(nodes, p.formatLabel)
	nodes = stream.Filter(nodes, func(n *node.ProcessedNode) (bool, error) {
		props, keep := level.Filtering.Match(n.Key)
		n.Filtering = props
		return keep, nil
	})
	if len(level.FilteredInstanceKeys) > 0 {
		nodes = stream.Filter(nodes, instanceKeysFilter(level.FilteredInstanceKeys))
	}

	hidden, visible := stream.Partition(nodes, func(n *node.ProcessedNode) bool {
		return n.Processing.HideInHierarchy
	})
	hiddenChildren := stream.FlatMap(hidden, func(ctx context.Context, n *node.ProcessedNode) (stream.Iterator[*node.ProcessedNode], error) {
		if n.Children == node.ChildrenNo {
			return stream.Empty[*node.ProcessedNode](), nil
		}
		p.deps.Logger.Log(logger.CategoryProvider, logger.SeverityTrace, func() string {
			return fmt.Sprintf("loading children of hidden node %s", nodekey.Marshal(n.Key))
		})
		return p.Load(ctx, Level{
			Parent:               node.Finalize(n),
			Definition:           level.Definition,
			Filtering:            n.Filtering,
			InstanceFilter:       level.InstanceFilter,
			FilteredInstanceKeys: level.FilteredInstanceKeys,
		})
	})
	return stream.Concat(visible, hiddenChildren), nil
}

// queryNodes returns the lazily executed nodes of an instance query definition.
func (p *Pipeline) queryNodes(level Level, def definition.InstanceNodesQueryDefinition, parentKeys []nodekey.Key) stream.Iterator[*node.ProcessedNode] {
	parse := definition.DefaultParseNode
	if parser, ok := level.Definition.(definition.NodeParser); ok {
		parse = parser.ParseNode
	}

	var (
		rows    query.RowIterator
		execErr error
	)
	next := func(ctx context.Context) (*node.ProcessedNode, error) {
		if execErr != nil {
			return nil, execErr
		}
		if rows == nil {
			q := def.Query
			if level.InstanceFilter != nil {
				filtered, err := query.ApplyInstanceFilter(q, level.InstanceFilter)
				if err != nil {
					execErr = err
					return nil, err
				}
				q = filtered
			}
			it, err := p.deps.Executor.Execute(ctx, q)
			if err != nil {
				execErr = err
				return nil, err
			}
			rows = it
		}
		row, err := rows.Next(ctx)
		if err != nil {
			return nil, err
		}
		if def.RowFilter != nil {
			for {
				keep, err := def.RowFilter(ctx, row)
				if err != nil {
					return nil, fmt.Errorf("filtering %s row: %w", def.FullClassName, err)
				}
				if keep {
					break
				}
				if row, err = rows.Next(ctx); err != nil {
					return nil, err
				}
			}
		}
		src, err := parse(row)
		if err != nil {
			return nil, fmt.Errorf("parsing %s row: %w", def.FullClassName, err)
		}
		return src.ToProcessed(parentKeys), nil
	}
	stop := func() {
		if rows != nil {
			rows.Stop()
		}
	}
	return stream.Yielding(stream.FromFunc(next, stop), p.deps.YieldEvery)
}

func (p *Pipeline) preProcess(def definition.HierarchyDefinition, nodes stream.Iterator[*node.ProcessedNode]) stream.Iterator[*node.ProcessedNode] {
	pp, ok := def.(definition.NodePreProcessor)
	if !ok {
		return nodes
	}
	processed := stream.Map(nodes, pp.PreProcessNode)
	return stream.Filter(processed, func(n *node.ProcessedNode) (bool, error) {
		return n != nil, nil
	})
}

func (p *Pipeline) formatLabel(ctx context.Context, n *node.ProcessedNode) (*node.ProcessedNode, error) {
	label, err := formatter.Format(ctx, p.deps.Formatter, n.RawLabel)
	if err != nil {
		return nil, fmt.Errorf("formatting label of %s: %w", nodekey.Marshal(n.Key), err)
	}
	n.Label = label
	return n, nil
}

func instanceKeysFilter(keys []nodekey.InstanceKey) stream.FilterFunc[*node.ProcessedNode] {
	set := make(map[nodekey.InstanceKey]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return func(n *node.ProcessedNode) (bool, error) {
		if !nodekey.IsInstances(n.Key) {
			return true, nil
		}
		for _, k := range nodekey.InstanceKeys(n.Key) {
			if _, ok := set[k]; ok {
				return true, nil
			}
		}
		return false, nil
	}
}

var errNoDefinition = errors.New("hierarchy level has no definition")

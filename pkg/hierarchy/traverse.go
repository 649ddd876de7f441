package hierarchy

import (
	"context"

	"github.com/sourcegraph/conc/stream"

	"github.com/iTwin/presentation-hierarchies/pkg/node"
)

const defaultTraverseConcurrency = 4

// VisitFunc is called for every traversed node. depth is 0 for root nodes.
type VisitFunc func(n *node.HierarchyNode, depth int) error

// TraverseOptions configure Traverse.
type TraverseOptions struct {
	// MaxDepth stops the traversal below the given depth. Zero means unlimited.
	MaxDepth int
	// Concurrency bounds the number of sibling levels loaded at once.
	Concurrency int
	// Props are applied to every level request. ParentNode is ignored.
	Props GetNodesProps
}

// Traverse visits the hierarchy depth-first in display order. The children of siblings are
// loaded concurrently ahead of their visit. The first error stops the traversal.
func Traverse(ctx context.Context, p *Provider, opts TraverseOptions, visit VisitFunc) error {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultTraverseConcurrency
	}
	props := opts.Props
	props.ParentNode = nil
	roots, err := p.GetNodes(ctx, props)
	if err != nil {
		return err
	}
	return traverseLevel(ctx, p, opts, roots, 0, visit)
}

func traverseLevel(ctx context.Context, p *Provider, opts TraverseOptions, nodes []*node.HierarchyNode, depth int, visit VisitFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var firstErr error
	s := stream.New().WithMaxGoroutines(opts.Concurrency)
	for _, n := range nodes {
		s.Go(func() stream.Callback {
			var (
				children []*node.HierarchyNode
				err      error
			)
			if n.Children && (opts.MaxDepth == 0 || depth+1 < opts.MaxDepth) && ctx.Err() == nil {
				props := opts.Props
				props.ParentNode = n
				children, err = p.GetNodes(ctx, props)
			}
			return func() {
				if firstErr != nil {
					return
				}
				if err == nil {
					err = visit(n, depth)
				}
				if err == nil && len(children) > 0 {
					err = traverseLevel(ctx, p, opts, children, depth+1, visit)
				}
				if err != nil {
					firstErr = err
					cancel()
				}
			}
		})
	}
	s.Wait()
	return firstErr
}

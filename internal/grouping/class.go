package grouping

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/iTwin/presentation-hierarchies/pkg/logger"
	"github.com/iTwin/presentation-hierarchies/pkg/metadata"
	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
)

func sameClass(a, b string) bool {
	na, errA := metadata.NormalizeFullClassName(a)
	nb, errB := metadata.NormalizeFullClassName(b)
	return errA == nil && errB == nil && strings.EqualFold(na, nb)
}

// GroupByClass returns the class grouping handler. Instance nodes asking to be grouped by
// class are grouped under one class grouping node per class. Nodes of excludedClass, the
// class of the parent grouping node, are left ungrouped.
func GroupByClass(deps Deps, excludedClass string) Handler {
	return func(ctx context.Context, nodes []*node.ProcessedNode) (Result, error) {
		res := Result{GroupingType: TypeClass}
		groups := newBucketer()
		for _, n := range nodes {
			d, ok := node.Find[node.ByClass](n.Processing.Grouping)
			className, isInstance := instanceClassName(n)
			if !ok || !isInstance || (excludedClass != "" && sameClass(className, excludedClass)) {
				res.Ungrouped = append(res.Ungrouped, n)
				continue
			}
			class, err := getClass(ctx, deps, className)
			if err != nil {
				return Result{}, err
			}
			groups.add(nodekey.ClassGroupingKey{ClassName: class.FullName}, class.DisplayLabel(), n, d.Options)
		}
		res.Grouped = groups.groupingNodes()

		deps.log(logger.SeverityTrace, func() string {
			return fmt.Sprintf("class grouping created %d groups out of %d nodes", len(res.Grouped), len(nodes))
		})
		return res, nil
	}
}

// GroupByBaseClass returns the handler grouping instance nodes that ask to be grouped by
// baseClass and derive from it under one class grouping node.
func GroupByBaseClass(deps Deps, baseClass string) Handler {
	return func(ctx context.Context, nodes []*node.ProcessedNode) (Result, error) {
		res := Result{GroupingType: TypeBaseClass}
		var members []*node.ProcessedNode
		var options []node.GroupingOptions
		for _, n := range nodes {
			d, ok := node.Find[node.ByBaseClasses](n.Processing.Grouping)
			className, isInstance := instanceClassName(n)
			if !ok || !isInstance || !containsClass(d.FullClassNames, baseClass) {
				res.Ungrouped = append(res.Ungrouped, n)
				continue
			}
			derived, err := deps.isDerivedFrom(ctx, className, baseClass)
			if err != nil {
				return Result{}, err
			}
			if !derived {
				res.Ungrouped = append(res.Ungrouped, n)
				continue
			}
			members = append(members, n)
			options = append(options, d.Options)
		}
		if len(members) == 0 {
			return res, nil
		}

		class, err := getClass(ctx, deps, baseClass)
		if err != nil {
			return Result{}, err
		}
		gn := newGroupingNode(nodekey.ClassGroupingKey{ClassName: class.FullName}, class.DisplayLabel(), members, mergeOptions(options))
		res.Grouped = []*node.ProcessedNode{gn}
		return res, nil
	}
}

func containsClass(classes []string, class string) bool {
	for _, c := range classes {
		if sameClass(c, class) {
			return true
		}
	}
	return false
}

// baseClassesOf collects the base classes nodes ask to be grouped by, ancestors before
// their descendants and otherwise by name. When parentClass is set only classes strictly
// deriving from it are returned.
func baseClassesOf(ctx context.Context, deps Deps, nodes []*node.ProcessedNode, parentClass string) ([]string, error) {
	seen := map[string]struct{}{}
	var classes []string
	for _, n := range nodes {
		d, ok := node.Find[node.ByBaseClasses](n.Processing.Grouping)
		if !ok || !nodekey.IsInstances(n.Key) {
			continue
		}
		for _, c := range d.FullClassNames {
			normalized, err := metadata.NormalizeFullClassName(c)
			if err != nil {
				return nil, err
			}
			lower := strings.ToLower(normalized)
			if _, ok := seen[lower]; ok {
				continue
			}
			seen[lower] = struct{}{}
			classes = append(classes, normalized)
		}
	}

	if parentClass != "" {
		kept := classes[:0]
		for _, c := range classes {
			if sameClass(c, parentClass) {
				continue
			}
			derived, err := deps.isDerivedFrom(ctx, c, parentClass)
			if err != nil {
				return nil, err
			}
			if derived {
				kept = append(kept, c)
			}
		}
		classes = kept
	}

	// the number of other listed classes a class derives from orders ancestors first
	depth := make(map[string]int, len(classes))
	for _, c := range classes {
		for _, other := range classes {
			if c == other {
				continue
			}
			derived, err := deps.isDerivedFrom(ctx, c, other)
			if err != nil {
				return nil, err
			}
			if derived {
				depth[c]++
			}
		}
	}
	sort.SliceStable(classes, func(i, j int) bool {
		if depth[classes[i]] != depth[classes[j]] {
			return depth[classes[i]] < depth[classes[j]]
		}
		return classes[i] < classes[j]
	})
	return classes, nil
}

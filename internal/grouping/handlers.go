package grouping

import (
	"context"

	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
)

// Handlers returns the grouping handlers for the children of the node at parentPath, in
// the order they run: base classes, class, properties and label. Stages the parent
// grouping node already belongs to, and the ones before it, are skipped.
func Handlers(ctx context.Context, parentPath []nodekey.Key, nodes []*node.ProcessedNode, deps Deps) ([]Handler, error) {
	var parentKey nodekey.Key
	if len(parentPath) > 0 {
		parentKey = parentPath[len(parentPath)-1]
	}

	var handlers []Handler
	switch parentKey.(type) {
	case nodekey.LabelGroupingKey:
		return nil, nil

	case nodekey.PropertyValueGroupingKey, nodekey.PropertyValueRangeGroupingKey, nodekey.PropertyOtherValuesGroupingKey:
		for i := trailingPropertyGroupings(parentPath); i < maxPropertyGroups(nodes); i++ {
			handlers = append(handlers, GroupByProperties(deps, i))
		}

	default:
		var parentClass string
		if k, ok := parentKey.(nodekey.ClassGroupingKey); ok {
			parentClass = k.ClassName
		}
		baseClasses, err := baseClassesOf(ctx, deps, nodes, parentClass)
		if err != nil {
			return nil, err
		}
		for _, c := range baseClasses {
			handlers = append(handlers, GroupByBaseClass(deps, c))
		}
		handlers = append(handlers, GroupByClass(deps, parentClass))
		for i := 0; i < maxPropertyGroups(nodes); i++ {
			handlers = append(handlers, GroupByProperties(deps, i))
		}
	}
	return append(handlers, GroupByLabel(deps)), nil
}

// trailingPropertyGroupings counts the property grouping keys at the end of path.
func trailingPropertyGroupings(path []nodekey.Key) int {
	n := 0
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i].Kind() {
		case nodekey.KindPropertyValueGrouping, nodekey.KindPropertyValueRangeGrouping, nodekey.KindPropertyOtherValuesGrouping:
			n++
		default:
			return n
		}
	}
	return n
}

func maxPropertyGroups(nodes []*node.ProcessedNode) int {
	n := 0
	for _, nd := range nodes {
		if d, ok := node.Find[node.ByProperties](nd.Processing.Grouping); ok && len(d.PropertyGroups) > n {
			n = len(d.PropertyGroups)
		}
	}
	return n
}

package grouping

import (
	"context"
	"fmt"
	"strconv"

	"github.com/iTwin/presentation-hierarchies/internal/stream"
	"github.com/iTwin/presentation-hierarchies/pkg/logger"
	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
)

type labelItem struct {
	node      *node.ProcessedNode
	directive node.ByLabel
	merge     bool
}

// labelBucketKey is unique per action, label and group ID.
func labelBucketKey(item labelItem) string {
	return fmt.Sprintf("%t:%s:%s", item.merge, strconv.Quote(item.node.Label), strconv.Quote(item.directive.GroupID))
}

// GroupByLabel returns the label grouping handler. Nodes asking to be grouped by label are
// grouped per (label, group ID) under label grouping nodes; nodes asking to be merged are
// merged per (label, group ID) into a single instance node that is left ungrouped.
func GroupByLabel(deps Deps) Handler {
	return func(ctx context.Context, nodes []*node.ProcessedNode) (Result, error) {
		res := Result{GroupingType: TypeLabel}

		var items []labelItem
		for _, n := range nodes {
			d, ok := node.Find[node.ByLabel](n.Processing.Grouping)
			if !ok {
				res.Ungrouped = append(res.Ungrouped, n)
				continue
			}
			merge := d.Action == node.ActionMerge
			if merge && !nodekey.IsInstances(n.Key) {
				res.Ungrouped = append(res.Ungrouped, n)
				continue
			}
			items = append(items, labelItem{node: n, directive: d, merge: merge})
		}
		if len(items) == 0 {
			return res, nil
		}

		buckets, err := stream.ReduceToListMap(ctx, stream.FromSlice(items), labelBucketKey)
		if err != nil {
			return Result{}, err
		}

		groups := newBucketer()
		for _, bucket := range buckets.All() {
			first := bucket[0]
			if first.merge {
				merged := first.node
				for _, item := range bucket[1:] {
					merged = node.MergeInstanceNodes(merged, item.node)
				}
				res.Ungrouped = append(res.Ungrouped, merged)
				continue
			}
			key := nodekey.LabelGroupingKey{Label: first.node.Label, GroupID: first.directive.GroupID}
			for _, item := range bucket {
				groups.add(key, first.node.Label, item.node, item.directive.Options)
			}
		}
		res.Grouped = groups.groupingNodes()

		deps.log(logger.SeverityTrace, func() string {
			return fmt.Sprintf("label grouping created %d groups out of %d nodes", len(res.Grouped), len(nodes))
		})
		return res, nil
	}
}

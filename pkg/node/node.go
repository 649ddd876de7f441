// Package node defines the nodes flowing through the hierarchy level pipeline and the
// finalized nodes handed to consumers.
package node

import (
	"maps"
	"slices"

	"github.com/iTwin/presentation-hierarchies/pkg/filtering"
	"github.com/iTwin/presentation-hierarchies/pkg/formatter"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
)

// Children is the tri-state knowledge about a node's children.
type Children int8

const (
	ChildrenUnknown Children = iota
	ChildrenYes
	ChildrenNo
)

// ChildrenOf converts a known children flag.
func ChildrenOf(hasChildren bool) Children {
	if hasChildren {
		return ChildrenYes
	}
	return ChildrenNo
}

func (c Children) String() string {
	switch c {
	case ChildrenYes:
		return "yes"
	case ChildrenNo:
		return "no"
	default:
		return "unknown"
	}
}

// ProcessingParams direct how the pipeline treats a node.
type ProcessingParams struct {
	// HideIfNoChildren removes the node when it has no children.
	HideIfNoChildren bool
	// HideInHierarchy replaces the node by its children.
	HideInHierarchy bool
	Grouping        GroupingParams
}

// ProcessedNode is a node while it is being processed by the level pipeline.
type ProcessedNode struct {
	Key nodekey.Key
	// ParentKeys are the keys of the node's ancestors, root first.
	ParentKeys []nodekey.Key
	// RawLabel is the unformatted label, turned into Label by the formatting stage.
	RawLabel          formatter.ConcatenatedValue
	Label             string
	Children          Children
	AutoExpand        bool
	SupportsFiltering bool
	ExtendedData      map[string]any
	Processing        ProcessingParams
	Filtering         *filtering.Props

	// Set on grouping nodes only.
	GroupedNodes        []*ProcessedNode
	GroupedInstanceKeys []nodekey.InstanceKey
	GroupingOptions     GroupingOptions
}

// IsGrouping reports whether n is a grouping node.
func (n *ProcessedNode) IsGrouping() bool {
	return nodekey.IsGrouping(n.Key)
}

// InstanceKeys returns the instance keys represented by n: the key's instances for
// instance nodes and the grouped instance keys for grouping nodes.
func (n *ProcessedNode) InstanceKeys() []nodekey.InstanceKey {
	if n.IsGrouping() {
		return n.GroupedInstanceKeys
	}
	return nodekey.InstanceKeys(n.Key)
}

// Path returns the keys from the root to n, n included.
func (n *ProcessedNode) Path() []nodekey.Key {
	return append(slices.Clone(n.ParentKeys), n.Key)
}

// Clone returns a copy of n that shares no slices or maps with it. Grouped nodes are cloned
// recursively.
func (n *ProcessedNode) Clone() *ProcessedNode {
	if n == nil {
		return nil
	}
	c := *n
	c.ParentKeys = slices.Clone(n.ParentKeys)
	c.RawLabel = slices.Clone(n.RawLabel)
	c.ExtendedData = maps.Clone(n.ExtendedData)
	c.Processing.Grouping = slices.Clone(n.Processing.Grouping)
	c.GroupedInstanceKeys = slices.Clone(n.GroupedInstanceKeys)
	if n.GroupedNodes != nil {
		c.GroupedNodes = make([]*ProcessedNode, len(n.GroupedNodes))
		for i, g := range n.GroupedNodes {
			c.GroupedNodes[i] = g.Clone()
		}
	}
	return &c
}

// WithParentKeys returns a clone of n placed under parentKeys. Parent keys of grouped
// nodes are rewritten so that every descendant stays consistent with its position.
func (n *ProcessedNode) WithParentKeys(parentKeys []nodekey.Key) *ProcessedNode {
	c := n.Clone()
	c.reparent(parentKeys)
	return c
}

func (n *ProcessedNode) reparent(parentKeys []nodekey.Key) {
	n.ParentKeys = slices.Clone(parentKeys)
	if len(n.GroupedNodes) == 0 {
		return
	}
	path := n.Path()
	for _, g := range n.GroupedNodes {
		g.reparent(path)
	}
}

// MergeInstanceNodes merges two instance nodes into one node representing the instances of
// both. Instance keys are concatenated, extended data is unioned with rhs winning on
// conflicts and flags are OR-ed. The label, grouping and position of lhs are kept.
func MergeInstanceNodes(lhs, rhs *ProcessedNode) *ProcessedNode {
	merged := lhs.Clone()

	keys := slices.Concat(nodekey.InstanceKeys(lhs.Key), nodekey.InstanceKeys(rhs.Key))
	merged.Key = nodekey.NewInstancesKey(keys...)

	if len(rhs.ExtendedData) > 0 {
		if merged.ExtendedData == nil {
			merged.ExtendedData = make(map[string]any, len(rhs.ExtendedData))
		}
		maps.Copy(merged.ExtendedData, rhs.ExtendedData)
	}

	merged.AutoExpand = lhs.AutoExpand || rhs.AutoExpand
	merged.SupportsFiltering = lhs.SupportsFiltering || rhs.SupportsFiltering
	merged.Processing.HideIfNoChildren = lhs.Processing.HideIfNoChildren || rhs.Processing.HideIfNoChildren
	merged.Processing.HideInHierarchy = lhs.Processing.HideInHierarchy || rhs.Processing.HideInHierarchy
	merged.Children = mergeChildren(lhs.Children, rhs.Children)
	merged.Filtering = filtering.Merge(lhs.Filtering, rhs.Filtering)
	return merged
}

func mergeChildren(a, b Children) Children {
	switch {
	case a == ChildrenYes || b == ChildrenYes:
		return ChildrenYes
	case a == ChildrenUnknown || b == ChildrenUnknown:
		return ChildrenUnknown
	default:
		return ChildrenNo
	}
}

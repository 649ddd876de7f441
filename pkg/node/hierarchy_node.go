package node

import (
	"slices"

	"github.com/iTwin/presentation-hierarchies/pkg/filtering"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
)

// HierarchyNode is a finalized node as returned to consumers.
type HierarchyNode struct {
	Key                 nodekey.Key           `json:"key"`
	ParentKeys          []nodekey.Key         `json:"parentKeys"`
	Label               string                `json:"label"`
	Children            bool                  `json:"children"`
	AutoExpand          bool                  `json:"autoExpand,omitempty"`
	SupportsFiltering   bool                  `json:"supportsFiltering,omitempty"`
	ExtendedData        map[string]any        `json:"extendedData,omitempty"`
	GroupedInstanceKeys []nodekey.InstanceKey `json:"groupedInstanceKeys,omitempty"`
	Filtering           *filtering.Props      `json:"filtering,omitempty"`
}

// IsGrouping reports whether n is a grouping node.
func (n *HierarchyNode) IsGrouping() bool {
	return nodekey.IsGrouping(n.Key)
}

// Path returns the keys from the root to n, n included. The path of a nil node, the
// virtual root, is empty.
func (n *HierarchyNode) Path() []nodekey.Key {
	if n == nil {
		return nil
	}
	return append(slices.Clone(n.ParentKeys), n.Key)
}

// InstanceKeys returns the instance keys represented by n.
func (n *HierarchyNode) InstanceKeys() []nodekey.InstanceKey {
	if n == nil {
		return nil
	}
	if n.IsGrouping() {
		return n.GroupedInstanceKeys
	}
	return nodekey.InstanceKeys(n.Key)
}

// Finalize converts a processed node into the node handed to consumers. Unknown children
// are reported as present.
func Finalize(n *ProcessedNode) *HierarchyNode {
	c := n.Clone()
	return &HierarchyNode{
		Key:                 c.Key,
		ParentKeys:          c.ParentKeys,
		Label:               c.Label,
		Children:            c.Children != ChildrenNo,
		AutoExpand:          c.AutoExpand || c.Filtering.AutoExpand(),
		SupportsFiltering:   c.SupportsFiltering,
		ExtendedData:        c.ExtendedData,
		GroupedInstanceKeys: c.GroupedInstanceKeys,
		Filtering:           c.Filtering,
	}
}

package node

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/iTwin/presentation-hierarchies/pkg/filtering"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
)

func instanceNode(label string, ids ...string) *ProcessedNode {
	keys := make([]nodekey.InstanceKey, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, nodekey.InstanceKey{ClassName: "BisCore.Element", ID: id})
	}
	return &ProcessedNode{
		Key:        nodekey.NewInstancesKey(keys...),
		ParentKeys: []nodekey.Key{nodekey.GenericKey{ID: "root"}},
		Label:      label,
	}
}

func TestMergeInstanceNodes(t *testing.T) {
	t.Run("instance_key_count_is_the_sum_of_members", func(t *testing.T) {
		for _, sizes := range [][]int{{1, 1}, {2, 1}, {1, 3}, {2, 2}} {
			var ids []string
			for i := 0; i < sizes[0]+sizes[1]; i++ {
				ids = append(ids, string(rune('a'+i)))
			}
			lhs := instanceNode("x", ids[:sizes[0]]...)
			rhs := instanceNode("x", ids[sizes[0]:]...)

			merged := MergeInstanceNodes(lhs, rhs)
			require.Len(t, merged.InstanceKeys(), sizes[0]+sizes[1])
			require.Len(t, lhs.InstanceKeys(), sizes[0], "inputs must not be modified")
		}
	})

	t.Run("duplicate_instances_are_kept", func(t *testing.T) {
		merged := MergeInstanceNodes(instanceNode("x", "1"), instanceNode("x", "1"))
		require.Len(t, merged.InstanceKeys(), 2)
	})

	t.Run("flags_and_data", func(t *testing.T) {
		lhs := instanceNode("left", "1")
		lhs.ExtendedData = map[string]any{"a": 1, "shared": "lhs"}
		lhs.Processing.HideIfNoChildren = true
		lhs.Children = ChildrenNo
		lhs.Processing.Grouping = GroupingParams{ByLabel{Action: ActionMerge, GroupID: "G"}}

		rhs := instanceNode("right", "2")
		rhs.ExtendedData = map[string]any{"b": 2, "shared": "rhs"}
		rhs.AutoExpand = true
		rhs.Children = ChildrenUnknown
		rhs.Filtering = &filtering.Props{IsFilterTarget: true}

		merged := MergeInstanceNodes(lhs, rhs)
		require.Equal(t, "left", merged.Label)
		require.Equal(t, map[string]any{"a": 1, "b": 2, "shared": "rhs"}, merged.ExtendedData)
		require.True(t, merged.Processing.HideIfNoChildren)
		require.True(t, merged.AutoExpand)
		require.Equal(t, ChildrenUnknown, merged.Children)
		require.True(t, merged.Filtering.IsFilterTarget)
		require.Equal(t, lhs.Processing.Grouping, merged.Processing.Grouping)
		require.Equal(t, map[string]any{"a": 1, "shared": "lhs"}, lhs.ExtendedData)
	})
}

func TestMergeChildren(t *testing.T) {
	tests := []struct{ a, b, want Children }{
		{ChildrenNo, ChildrenNo, ChildrenNo},
		{ChildrenNo, ChildrenYes, ChildrenYes},
		{ChildrenUnknown, ChildrenYes, ChildrenYes},
		{ChildrenUnknown, ChildrenNo, ChildrenUnknown},
	}
	for _, test := range tests {
		require.Equal(t, test.want, mergeChildren(test.a, test.b), "%s + %s", test.a, test.b)
		require.Equal(t, test.want, mergeChildren(test.b, test.a), "%s + %s", test.b, test.a)
	}
}

func TestWithParentKeysRewritesDescendants(t *testing.T) {
	member := instanceNode("m", "1")
	gn := &ProcessedNode{
		Key:          nodekey.LabelGroupingKey{Label: "m"},
		ParentKeys:   member.ParentKeys,
		GroupedNodes: []*ProcessedNode{member.WithParentKeys(append(member.ParentKeys, nodekey.LabelGroupingKey{Label: "m"}))},
	}

	moved := gn.WithParentKeys([]nodekey.Key{nodekey.GenericKey{ID: "other"}})
	want := []nodekey.Key{nodekey.GenericKey{ID: "other"}, nodekey.LabelGroupingKey{Label: "m"}}
	require.Empty(t, cmp.Diff(want, moved.GroupedNodes[0].ParentKeys))
	require.Empty(t, cmp.Diff([]nodekey.Key{nodekey.GenericKey{ID: "root"}, nodekey.LabelGroupingKey{Label: "m"}}, gn.GroupedNodes[0].ParentKeys))
}

func TestFinalize(t *testing.T) {
	n := instanceNode("x", "1")
	n.Children = ChildrenNo
	n.Filtering = &filtering.Props{FilteredChildrenPaths: []filtering.Path{{
		Identifiers: []filtering.Identifier{filtering.GenericIdentifier("a")},
		Options:     filtering.PathOptions{AutoExpand: true},
	}}}

	h := Finalize(n)
	require.False(t, h.Children)
	require.True(t, h.AutoExpand)
	require.Equal(t, "x", h.Label)
	require.Equal(t, n.InstanceKeys(), h.InstanceKeys())
	require.Len(t, h.Path(), 2)

	var root *HierarchyNode
	require.Empty(t, root.Path())

	n.Children = ChildrenUnknown
	require.True(t, Finalize(n).Children)
}

func TestFind(t *testing.T) {
	params := GroupingParams{ByClass{}, ByLabel{Action: ActionGroup, GroupID: "G"}}

	byLabel, ok := Find[ByLabel](params)
	require.True(t, ok)
	require.Equal(t, "G", byLabel.GroupID)

	_, ok = Find[ByProperties](params)
	require.False(t, ok)

	require.Equal(t, GroupingOptions{}, OptionsOf(nil))
	require.Equal(t, PinTop, OptionsOf(ByClass{Options: GroupingOptions{Pin: PinTop}}).Pin)
	require.True(t, PropertyRange{FromValue: 1, ToValue: 2}.Contains(2))
	require.False(t, PropertyRange{FromValue: 1, ToValue: 2}.Contains(2.5))
}

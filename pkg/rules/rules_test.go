package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iTwin/presentation-hierarchies/assets"
	"github.com/iTwin/presentation-hierarchies/pkg/definition"
	"github.com/iTwin/presentation-hierarchies/pkg/hierarchy"
	"github.com/iTwin/presentation-hierarchies/pkg/metadata"
	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
	"github.com/iTwin/presentation-hierarchies/pkg/query/sqlexec"
)

var testMetadata = metadata.NewStaticProvider(
	&metadata.Class{FullName: "BisCore.Model", Label: "Model"},
	&metadata.Class{FullName: "BisCore.PhysicalModel", Label: "Physical Model", BaseClasses: []string{"BisCore.Model"}},
	&metadata.Class{FullName: "BisCore.Element", Label: "Element"},
)

const testDocument = `
levels:
  - parent: {root: true}
    nodes:
      - generic:
          id: models
          label: Models
          hasChildren: true
      - instances:
          class: BisCore:Element
          parentColumn: model_id
          filter: 'row.DisplayLabel.startsWith("W")'
  - parent: {genericId: models}
    nodes:
      - instances:
          class: BisCore.Model
          classes: [BisCore.PhysicalModel]
          label: "'Model ' || this.label"
          where: this.label <> ''
          grouping: {byLabel: {action: merge, groupId: same}}
  - parent: {instancesOf: BisCore.Model}
    nodes:
      - instances:
          class: BisCore.Element
          parentColumn: model_id
          hideIfNoChildren: true
`

func parseTestDocument(t *testing.T) *Definition {
	t.Helper()
	d, err := Parse([]byte(testDocument), testMetadata)
	require.NoError(t, err)
	return d
}

func TestDefineRootLevel(t *testing.T) {
	d := parseTestDocument(t)
	defs, err := d.DefineHierarchyLevel(context.Background(), definition.DefineLevelProps{})
	require.NoError(t, err)
	require.Len(t, defs, 2)

	generic, ok := defs[0].(definition.GenericNodeDefinition)
	require.True(t, ok)
	require.Equal(t, "models", generic.Node.ID)
	require.NotNil(t, generic.Node.HasChildren)
	require.True(t, *generic.Node.HasChildren)

	instances, ok := defs[1].(definition.InstanceNodesQueryDefinition)
	require.True(t, ok)
	require.Equal(t, "BisCore.Element", instances.FullClassName)
	require.Contains(t, instances.Query.SQL, "FROM instances this")
	require.Contains(t, instances.Query.SQL, "this.class_name IN (?)")
	require.Contains(t, instances.Query.SQL, "this.model_id IS NULL")
	require.Contains(t, instances.Query.Args(), "BisCore.Element")
	require.NotNil(t, instances.RowFilter)

	keep, err := instances.RowFilter(context.Background(), query.Row{query.ColumnDisplayLabel: "Wall"})
	require.NoError(t, err)
	require.True(t, keep)
	keep, err = instances.RowFilter(context.Background(), query.Row{query.ColumnDisplayLabel: "Door"})
	require.NoError(t, err)
	require.False(t, keep)
	_, err = instances.RowFilter(context.Background(), query.Row{})
	require.Error(t, err)
}

func TestDefineChildLevels(t *testing.T) {
	d := parseTestDocument(t)
	ctx := context.Background()

	t.Run("generic_parent", func(t *testing.T) {
		defs, err := d.DefineHierarchyLevel(ctx, definition.DefineLevelProps{
			ParentNode: &node.HierarchyNode{Key: nodekey.GenericKey{ID: "models"}},
		})
		require.NoError(t, err)
		require.Len(t, defs, 1)
		q := defs[0].(definition.InstanceNodesQueryDefinition).Query
		require.Contains(t, q.SQL, "'Model ' || this.label AS DisplayLabel")
		require.Contains(t, q.SQL, "(this.label <> '')")
		require.Contains(t, q.SQL, "? AS Grouping")
	})

	t.Run("derived_instance_parent", func(t *testing.T) {
		defs, err := d.DefineHierarchyLevel(ctx, definition.DefineLevelProps{
			ParentNode: &node.HierarchyNode{Key: nodekey.NewInstancesKey(
				nodekey.InstanceKey{ClassName: "BisCore.PhysicalModel", ID: "0x10"},
				nodekey.InstanceKey{ClassName: "BisCore.PhysicalModel", ID: "0x11"},
			)},
		})
		require.NoError(t, err)
		require.Len(t, defs, 1)
		q := defs[0].(definition.InstanceNodesQueryDefinition).Query
		require.Contains(t, q.SQL, "this.model_id IN (?,?)")
		require.Equal(t, []any{"BisCore.Element", "0x10", "0x11"}, q.Args()[len(q.Args())-3:])
	})

	t.Run("unmatched_parents", func(t *testing.T) {
		for _, parent := range []*node.HierarchyNode{
			{Key: nodekey.GenericKey{ID: "other"}},
			{Key: nodekey.NewInstancesKey(nodekey.InstanceKey{ClassName: "BisCore.Element", ID: "0x1"})},
			{Key: nodekey.NewInstancesKey(nodekey.InstanceKey{ClassName: "Unknown.Class", ID: "0x1"})},
			{Key: nodekey.ClassGroupingKey{ClassName: "BisCore.Model"}},
		} {
			defs, err := d.DefineHierarchyLevel(ctx, definition.DefineLevelProps{ParentNode: parent})
			require.NoError(t, err)
			require.Empty(t, defs)
		}
	})
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		document string
		err      error
	}{
		{
			name:     "unknown_field",
			document: "levels: [{parent: {root: true}, nodez: []}]",
		},
		{
			name:     "no_selector",
			document: "levels: [{parent: {}, nodes: []}]",
			err:      definition.ErrInvalidNode,
		},
		{
			name:     "two_selectors",
			document: "levels: [{parent: {root: true, genericId: x}, nodes: []}]",
			err:      definition.ErrInvalidNode,
		},
		{
			name:     "invalid_class_selector",
			document: "levels: [{parent: {instancesOf: NoSchema}, nodes: []}]",
			err:      definition.ErrInvalidNode,
		},
		{
			name:     "empty_node_rule",
			document: "levels: [{parent: {root: true}, nodes: [{}]}]",
			err:      definition.ErrInvalidNode,
		},
		{
			name:     "generic_without_id",
			document: "levels: [{parent: {root: true}, nodes: [{generic: {label: x}}]}]",
			err:      definition.ErrInvalidNode,
		},
		{
			name:     "invalid_instances_class",
			document: "levels: [{parent: {root: true}, nodes: [{instances: {class: Element}}]}]",
			err:      definition.ErrInvalidQuery,
		},
		{
			name:     "invalid_grouping",
			document: "levels: [{parent: {root: true}, nodes: [{instances: {class: a.B, grouping: {byColor: true}}}]}]",
			err:      definition.ErrInvalidGroupingDirective,
		},
		{
			name:     "filter_syntax",
			document: "levels: [{parent: {root: true}, nodes: [{instances: {class: a.B, filter: 'row.X ==' }}]}]",
			err:      definition.ErrInvalidExpression,
		},
		{
			name:     "filter_not_bool",
			document: "levels: [{parent: {root: true}, nodes: [{instances: {class: a.B, filter: '1 + 2'}}]}]",
			err:      definition.ErrInvalidExpression,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.document), testMetadata)
			require.Error(t, err)
			if test.err != nil {
				require.ErrorIs(t, err, test.err)
				var defErr *definition.Error
				require.ErrorAs(t, err, &defErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDocument), 0o600))
	_, err := Load(path, testMetadata)
	require.NoError(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), testMetadata)
	require.Error(t, err)
}

func TestDemoRulesOverDemoData(t *testing.T) {
	ctx := context.Background()
	db, err := sqlexec.Open(ctx, sqlexec.EngineSqlite, filepath.Join(t.TempDir(), "demo.db"), sqlexec.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = sqlexec.Migrate(ctx, db, sqlexec.EngineSqlite, 0)
	require.NoError(t, err)

	md := sqlexec.NewMetadataProvider(db, sqlexec.EngineSqlite)
	doc, err := assets.EmbedRules.ReadFile(assets.DemoRules)
	require.NoError(t, err)
	def, err := Parse(doc, md)
	require.NoError(t, err)

	p := hierarchy.NewProvider(sqlexec.NewExecutor(db, sqlexec.EngineSqlite), md, def)
	defer p.Close()

	var visited []string
	err = hierarchy.Traverse(ctx, p, hierarchy.TraverseOptions{}, func(n *node.HierarchyNode, depth int) error {
		visited = append(visited, fmt.Sprintf("%d:%s", depth, n.Label))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"0:Building",
		"1:Physical Object",
		"2:Door 1",
		"2:Door 2",
		"0:Site",
		"1:Physical Object",
		"2:Wall A",
		"3:Window",
		"2:Wall B",
	}, visited)
}

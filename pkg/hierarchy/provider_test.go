package hierarchy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iTwin/presentation-hierarchies/pkg/definition"
	"github.com/iTwin/presentation-hierarchies/pkg/filtering"
	"github.com/iTwin/presentation-hierarchies/pkg/formatter"
	"github.com/iTwin/presentation-hierarchies/pkg/metadata"
	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	elementClass = "BisCore.Element"
	rootsSQL     = "SELECT * FROM roots"
)

func childrenSQL(parentID string) string {
	return "SELECT * FROM children WHERE parent = " + parentID
}

func row(id, label string, columns ...any) query.Row {
	r := query.Row{
		query.ColumnECInstanceID:  id,
		query.ColumnFullClassName: elementClass,
		query.ColumnDisplayLabel:  label,
		query.ColumnHasChildren:   int64(0),
	}
	for i := 0; i+1 < len(columns); i += 2 {
		r[columns[i].(string)] = columns[i+1]
	}
	return r
}

// countingExecutor answers queries from a fixed table and counts executions.
type countingExecutor struct {
	results map[string][]query.Row
	calls   atomic.Int64
}

func (e *countingExecutor) Execute(ctx context.Context, q query.Query) (query.RowIterator, error) {
	e.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rows, ok := e.results[q.SQL]; ok {
		return query.FromRows(rows), nil
	}
	// instance filters wrap the original query
	for k, rows := range e.results {
		if strings.Contains(q.SQL, "("+k+")") {
			return query.FromRows(rows), nil
		}
	}
	return query.FromRows(nil), nil
}

// instanceHierarchy lists rootsSQL at the root and childrenSQL(id) under every instance.
var instanceHierarchy = definition.Func(func(_ context.Context, props definition.DefineLevelProps) ([]definition.NodesDefinition, error) {
	sql := rootsSQL
	if props.ParentNode != nil {
		keys := props.ParentNode.InstanceKeys()
		if len(keys) == 0 || props.ParentNode.IsGrouping() {
			return nil, nil
		}
		sql = childrenSQL(keys[0].ID)
	}
	return []definition.NodesDefinition{
		definition.InstanceNodesQueryDefinition{FullClassName: elementClass, Query: query.Query{SQL: sql}},
	}, nil
})

func newTestProvider(results map[string][]query.Row, opts ...ProviderOption) (*Provider, *countingExecutor) {
	exec := &countingExecutor{results: results}
	md := metadata.NewStaticProvider(&metadata.Class{FullName: elementClass, Label: "Element"})
	return NewProvider(exec, md, instanceHierarchy, opts...), exec
}

func labels(nodes []*node.HierarchyNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Label)
	}
	return out
}

func TestGetNodesReturnsSortedRootNodes(t *testing.T) {
	p, _ := newTestProvider(map[string][]query.Row{
		rootsSQL: {row("0x1", "b"), row("0x2", "c"), row("0x3", "a")},
	})
	defer p.Close()

	nodes, err := p.GetNodes(context.Background(), GetNodesProps{})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, labels(nodes))
	for _, n := range nodes {
		require.Empty(t, n.ParentKeys)
		require.False(t, n.Children)
	}
}

func TestGroupingNodeChildren(t *testing.T) {
	grouping := `{"byLabel": {"action": "group", "groupId": "G"}}`
	p, exec := newTestProvider(map[string][]query.Row{
		rootsSQL: {
			row("0x1", "x", query.ColumnGrouping, grouping),
			row("0x2", "x", query.ColumnGrouping, grouping),
		},
	})
	defer p.Close()
	ctx := context.Background()

	roots, err := p.GetNodes(ctx, GetNodesProps{})
	require.NoError(t, err)
	require.Len(t, roots, 1)
	gn := roots[0]
	require.Equal(t, nodekey.LabelGroupingKey{Label: "x", GroupID: "G"}, gn.Key)
	require.True(t, gn.Children)
	require.ElementsMatch(t, []nodekey.InstanceKey{
		{ClassName: elementClass, ID: "0x1"},
		{ClassName: elementClass, ID: "0x2"},
	}, gn.GroupedInstanceKeys)

	children, err := p.GetNodes(ctx, GetNodesProps{ParentNode: gn})
	require.NoError(t, err)
	require.Len(t, children, 2)
	for _, c := range children {
		require.Empty(t, cmp.Diff([]nodekey.Key{gn.Key}, c.ParentKeys))
		require.True(t, nodekey.IsInstances(c.Key))
	}
	require.EqualValues(t, 1, exec.calls.Load(), "grouping children come from the cached source level")

	t.Run("source_level_rebuilt_on_miss", func(t *testing.T) {
		children, err := p.GetNodes(ctx, GetNodesProps{ParentNode: gn, IgnoreCache: true})
		require.NoError(t, err)
		require.Len(t, children, 2)
		require.EqualValues(t, 2, exec.calls.Load())
	})

	t.Run("unknown_grouping_node", func(t *testing.T) {
		_, err := p.GetNodes(ctx, GetNodesProps{ParentNode: &node.HierarchyNode{Key: nodekey.LabelGroupingKey{Label: "y"}}})
		require.ErrorIs(t, err, ErrNodeNotFound)
	})

	t.Run("grouping_nodes_have_children", func(t *testing.T) {
		has, err := p.HasNodes(ctx, gn)
		require.NoError(t, err)
		require.True(t, has)
	})
}

func TestLevelsAreCachedPerVariation(t *testing.T) {
	p, exec := newTestProvider(map[string][]query.Row{
		rootsSQL: {row("0x1", "a"), row("0x2", "b")},
	})
	defer p.Close()
	ctx := context.Background()

	_, err := p.GetNodes(ctx, GetNodesProps{})
	require.NoError(t, err)
	_, err = p.GetNodes(ctx, GetNodesProps{})
	require.NoError(t, err)
	require.EqualValues(t, 1, exec.calls.Load())

	_, err = p.GetNodes(ctx, GetNodesProps{IgnoreCache: true})
	require.NoError(t, err)
	require.EqualValues(t, 2, exec.calls.Load())

	filter := &query.InstanceFilter{FilteredClassNames: []string{elementClass}}
	_, err = p.GetNodes(ctx, GetNodesProps{InstanceFilter: filter})
	require.NoError(t, err)
	require.EqualValues(t, 3, exec.calls.Load())

	_, err = p.GetNodes(ctx, GetNodesProps{InstanceFilter: filter})
	require.NoError(t, err)
	_, err = p.GetNodes(ctx, GetNodesProps{})
	require.NoError(t, err)
	require.EqualValues(t, 3, exec.calls.Load())
}

func TestReturnedNodesDoNotAliasCache(t *testing.T) {
	p, _ := newTestProvider(map[string][]query.Row{rootsSQL: {row("0x1", "a")}})
	defer p.Close()

	nodes, err := p.GetNodes(context.Background(), GetNodesProps{})
	require.NoError(t, err)
	nodes[0].Label = "changed"
	nodes[0].ExtendedData = map[string]any{"k": "v"}

	again, err := p.GetNodes(context.Background(), GetNodesProps{})
	require.NoError(t, err)
	require.Equal(t, "a", again[0].Label)
	require.Nil(t, again[0].ExtendedData)
}

func TestSizeLimit(t *testing.T) {
	p, exec := newTestProvider(map[string][]query.Row{
		rootsSQL: {row("0x1", "a"), row("0x2", "b"), row("0x3", "c")},
	}, WithLevelSizeLimit(2))
	defer p.Close()
	ctx := context.Background()

	_, err := p.GetNodes(ctx, GetNodesProps{})
	limitErr, ok := query.IsRowsLimitExceeded(err)
	require.True(t, ok)
	require.Equal(t, 2, limitErr.Limit)
	require.Equal(t, 3, limitErr.Count)

	_, err = p.GetNodes(ctx, GetNodesProps{})
	require.Error(t, err)
	require.EqualValues(t, 2, exec.calls.Load(), "failed levels are not cached")

	nodes, err := p.GetNodes(ctx, GetNodesProps{HierarchyLevelSizeLimit: 3})
	require.NoError(t, err)
	require.Len(t, nodes, 3)
}

func TestChildrenDetermination(t *testing.T) {
	p, _ := newTestProvider(map[string][]query.Row{
		rootsSQL: {
			row("0x1", "has children", query.ColumnHasChildren, nil),
			row("0x2", "no children", query.ColumnHasChildren, nil),
			row("0x3", "hidden if empty", query.ColumnHasChildren, nil, query.ColumnHideIfNoChildren, true),
			row("0x4", "only empty children", query.ColumnHasChildren, nil, query.ColumnHideIfNoChildren, true),
		},
		childrenSQL("0x1"): {row("0x10", "child")},
		// hidden-if-empty grandchildren without children of their own do not count
		childrenSQL("0x4"): {row("0x40", "empty", query.ColumnHasChildren, nil, query.ColumnHideIfNoChildren, true)},
	})
	defer p.Close()
	ctx := context.Background()

	nodes, err := p.GetNodes(ctx, GetNodesProps{})
	require.NoError(t, err)
	require.Equal(t, []string{"has children", "no children"}, labels(nodes))
	require.True(t, nodes[0].Children)
	require.False(t, nodes[1].Children)

	children, err := p.GetNodes(ctx, GetNodesProps{ParentNode: nodes[0]})
	require.NoError(t, err)
	require.Equal(t, []string{"child"}, labels(children))
	require.Empty(t, cmp.Diff(nodes[0].Path(), children[0].ParentKeys))

	has, err := p.HasNodes(ctx, nodes[1])
	require.NoError(t, err)
	require.False(t, has)
}

func TestFilteringPaths(t *testing.T) {
	p, _ := newTestProvider(map[string][]query.Row{
		rootsSQL:           {row("0x1", "a", query.ColumnHasChildren, true), row("0x2", "b", query.ColumnHasChildren, true)},
		childrenSQL("0x2"): {row("0x5", "target"), row("0x6", "sibling")},
	}, WithFilteringPaths(filtering.Path{
		Identifiers: []filtering.Identifier{
			filtering.InstanceIdentifier(elementClass, "0x2"),
			filtering.InstanceIdentifier(elementClass, "0x5"),
		},
		Options: filtering.PathOptions{AutoExpand: true},
	}))
	defer p.Close()
	ctx := context.Background()

	roots, err := p.GetNodes(ctx, GetNodesProps{})
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, labels(roots))
	require.True(t, roots[0].AutoExpand)

	children, err := p.GetNodes(ctx, GetNodesProps{ParentNode: roots[0]})
	require.NoError(t, err)
	require.Equal(t, []string{"target"}, labels(children))
	require.True(t, children[0].Filtering.IsFilterTarget)
}

func TestSetFormatterInvalidatesAndNotifies(t *testing.T) {
	typed := func(v string) string {
		return fmt.Sprintf(`[{"type": "String", "value": %q}]`, v)
	}
	p, exec := newTestProvider(map[string][]query.Row{
		rootsSQL: {row("0x1", typed("a")), row("0x2", typed("b"))},
	})
	defer p.Close()
	ctx := context.Background()

	var notified atomic.Int32
	unsubscribe := p.OnHierarchyChanged(func() { notified.Add(1) })

	nodes, err := p.GetNodes(ctx, GetNodesProps{})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, labels(nodes))

	p.SetFormatter(func(_ context.Context, v formatter.TypedPrimitiveValue) (string, error) {
		return strings.ToUpper(fmt.Sprint(v.Value)), nil
	})
	require.EqualValues(t, 1, notified.Load())

	nodes, err = p.GetNodes(ctx, GetNodesProps{})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, labels(nodes))
	require.EqualValues(t, 2, exec.calls.Load())

	p.NotifyDataSourceChanged()
	require.EqualValues(t, 2, notified.Load())

	unsubscribe()
	unsubscribe()
	p.NotifyDataSourceChanged()
	require.EqualValues(t, 2, notified.Load())
}

func TestConcurrentRequests(t *testing.T) {
	p, _ := newTestProvider(map[string][]query.Row{
		rootsSQL:           {row("0x1", "a", query.ColumnHasChildren, nil), row("0x2", "b", query.ColumnHasChildren, nil)},
		childrenSQL("0x1"): {row("0x10", "child")},
	})
	defer p.Close()

	var wg sync.WaitGroup
	results := make([][]string, 10)
	errs := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nodes, err := p.GetNodes(context.Background(), GetNodesProps{})
			results[i], errs[i] = labels(nodes), err
		}()
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, []string{"a", "b"}, results[i])
	}
}

func TestClose(t *testing.T) {
	p, _ := newTestProvider(nil)
	p.Close()
	_, err := p.GetNodes(context.Background(), GetNodesProps{})
	require.ErrorIs(t, err, ErrProviderClosed)
	_, err = p.HasNodes(context.Background(), nil)
	require.ErrorIs(t, err, ErrProviderClosed)
}

func TestTraverse(t *testing.T) {
	p, _ := newTestProvider(map[string][]query.Row{
		rootsSQL:            {row("0x2", "b", query.ColumnHasChildren, true), row("0x1", "a", query.ColumnHasChildren, true)},
		childrenSQL("0x1"):  {row("0x11", "a2"), row("0x10", "a1", query.ColumnHasChildren, true)},
		childrenSQL("0x10"): {row("0x100", "a1x")},
		childrenSQL("0x2"):  {row("0x20", "b1")},
	})
	defer p.Close()

	var visited []string
	err := Traverse(context.Background(), p, TraverseOptions{}, func(n *node.HierarchyNode, depth int) error {
		visited = append(visited, fmt.Sprintf("%d:%s", depth, n.Label))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"0:a", "1:a1", "2:a1x", "1:a2", "0:b", "1:b1"}, visited)

	t.Run("max_depth", func(t *testing.T) {
		visited = nil
		err := Traverse(context.Background(), p, TraverseOptions{MaxDepth: 1}, func(n *node.HierarchyNode, depth int) error {
			visited = append(visited, n.Label)
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, visited)
	})

	t.Run("visit_error_stops", func(t *testing.T) {
		stop := fmt.Errorf("stop")
		visited = nil
		err := Traverse(context.Background(), p, TraverseOptions{}, func(n *node.HierarchyNode, depth int) error {
			visited = append(visited, n.Label)
			if n.Label == "a1" {
				return stop
			}
			return nil
		})
		require.ErrorIs(t, err, stop)
		require.Equal(t, []string{"a", "a1"}, visited)
	})
}

// gatedExecutor holds the first execution of sql until release is closed or its context
// is done. Rows are read before blocking.
type gatedExecutor struct {
	sql     string
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu      sync.Mutex
	results map[string][]query.Row
}

func newGatedExecutor(sql string, results map[string][]query.Row) *gatedExecutor {
	return &gatedExecutor{
		sql:     sql,
		started: make(chan struct{}),
		release: make(chan struct{}),
		results: results,
	}
}

func (e *gatedExecutor) setRows(sql string, rows []query.Row) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[sql] = rows
}

func (e *gatedExecutor) Execute(ctx context.Context, q query.Query) (query.RowIterator, error) {
	e.mu.Lock()
	rows := e.results[q.SQL]
	e.mu.Unlock()

	if q.SQL == e.sql {
		first := false
		e.once.Do(func() {
			first = true
			close(e.started)
		})
		if first {
			select {
			case <-e.release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return query.FromRows(rows), nil
}

func newGatedProvider(exec *gatedExecutor) *Provider {
	md := metadata.NewStaticProvider(&metadata.Class{FullName: elementClass, Label: "Element"})
	return NewProvider(exec, md, instanceHierarchy)
}

type hasNodesResult struct {
	has bool
	err error
}

func TestHasNodesCancellationIsPerCaller(t *testing.T) {
	exec := newGatedExecutor(childrenSQL("0x1"), map[string][]query.Row{
		rootsSQL:           {row("0x1", "a", query.ColumnHasChildren, true)},
		childrenSQL("0x1"): {row("0x10", "child")},
	})
	p := newGatedProvider(exec)
	defer p.Close()

	roots, err := p.GetNodes(context.Background(), GetNodesProps{})
	require.NoError(t, err)
	require.Len(t, roots, 1)

	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	first := make(chan hasNodesResult, 1)
	go func() {
		has, err := p.HasNodes(ctx1, roots[0])
		first <- hasNodesResult{has, err}
	}()
	<-exec.started

	second := make(chan hasNodesResult, 1)
	go func() {
		has, err := p.HasNodes(context.Background(), roots[0])
		second <- hasNodesResult{has, err}
	}()

	cancel1()
	res := <-first
	require.ErrorIs(t, res.err, context.Canceled)

	close(exec.release)
	res = <-second
	require.NoError(t, res.err)
	require.True(t, res.has)
}

func TestHasNodesDoesNotJoinLoadsOfStaleGenerations(t *testing.T) {
	exec := newGatedExecutor(childrenSQL("0x1"), map[string][]query.Row{
		rootsSQL: {row("0x1", "a", query.ColumnHasChildren, true)},
	})
	p := newGatedProvider(exec)
	defer p.Close()
	ctx := context.Background()

	roots, err := p.GetNodes(ctx, GetNodesProps{})
	require.NoError(t, err)
	require.Len(t, roots, 1)

	stale := make(chan hasNodesResult, 1)
	go func() {
		has, err := p.HasNodes(ctx, roots[0])
		stale <- hasNodesResult{has, err}
	}()
	<-exec.started

	exec.setRows(childrenSQL("0x1"), []query.Row{row("0x10", "child")})
	p.NotifyDataSourceChanged()

	has, err := p.HasNodes(ctx, roots[0])
	require.NoError(t, err)
	require.True(t, has)

	close(exec.release)
	res := <-stale
	require.NoError(t, res.err)
	require.False(t, res.has)
}

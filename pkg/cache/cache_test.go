package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
)

var (
	rootPath  []nodekey.Key
	childPath = []nodekey.Key{nodekey.GenericKey{ID: "root"}}
	otherPath = []nodekey.Key{nodekey.GenericKey{ID: "other"}}

	filterA = &query.InstanceFilter{FilteredClassNames: []string{"bis.Element"}}
	filterB = &query.InstanceFilter{FilteredClassNames: []string{"bis.Model"}}
)

func TestGetMissing(t *testing.T) {
	c := New[[]string]()
	_, ok := c.Get(RequestProps{ParentPath: rootPath})
	require.False(t, ok)
	require.Zero(t, c.Len())
}

func TestPrimaryAndVariationsAreSeparate(t *testing.T) {
	c := New[string]()
	c.Set(RequestProps{ParentPath: childPath}, "primary")
	c.Set(RequestProps{ParentPath: childPath, InstanceFilter: filterA}, "filtered")

	v, ok := c.Get(RequestProps{ParentPath: childPath})
	require.True(t, ok)
	require.Equal(t, "primary", v)

	v, ok = c.Get(RequestProps{ParentPath: childPath, InstanceFilter: filterA})
	require.True(t, ok)
	require.Equal(t, "filtered", v)

	_, ok = c.Get(RequestProps{ParentPath: childPath, InstanceFilter: filterB})
	require.False(t, ok)

	_, ok = c.Get(RequestProps{ParentPath: childPath, SizeLimit: 5})
	require.False(t, ok)

	require.Equal(t, 1, c.Len())
}

func TestEquivalentFiltersShareVariation(t *testing.T) {
	c := New[string]()
	c.Set(RequestProps{
		ParentPath:     rootPath,
		InstanceFilter: &query.InstanceFilter{FilteredClassNames: []string{"a.B", "a.C"}},
	}, "v")

	v, ok := c.Get(RequestProps{
		ParentPath:     rootPath,
		InstanceFilter: &query.InstanceFilter{FilteredClassNames: []string{"a.C", "a.B"}},
	})
	require.True(t, ok)
	require.Equal(t, "v", v)

	keys := []nodekey.InstanceKey{{ClassName: "a.B", ID: "0x2"}, {ClassName: "a.B", ID: "0x1"}}
	c.Set(RequestProps{ParentPath: rootPath, FilteredInstanceKeys: keys}, "keys")
	v, ok = c.Get(RequestProps{ParentPath: rootPath, FilteredInstanceKeys: []nodekey.InstanceKey{keys[1], keys[0]}})
	require.True(t, ok)
	require.Equal(t, "keys", v)
}

func TestVariationsAreBounded(t *testing.T) {
	c := New[string](WithVariationsCount(1))
	c.Set(RequestProps{ParentPath: rootPath}, "primary")
	c.Set(RequestProps{ParentPath: rootPath, InstanceFilter: filterA}, "a")
	c.Set(RequestProps{ParentPath: rootPath, InstanceFilter: filterB}, "b")

	_, ok := c.Get(RequestProps{ParentPath: rootPath, InstanceFilter: filterA})
	require.False(t, ok)
	v, ok := c.Get(RequestProps{ParentPath: rootPath, InstanceFilter: filterB})
	require.True(t, ok)
	require.Equal(t, "b", v)

	// the primary slot is never evicted by variations
	v, ok = c.Get(RequestProps{ParentPath: rootPath})
	require.True(t, ok)
	require.Equal(t, "primary", v)
}

func TestVariationsLeastRecentlyUsed(t *testing.T) {
	c := New[string](WithVariationsCount(2))
	c.Set(RequestProps{ParentPath: rootPath, InstanceFilter: filterA}, "a")
	c.Set(RequestProps{ParentPath: rootPath, InstanceFilter: filterB}, "b")

	_, ok := c.Get(RequestProps{ParentPath: rootPath, InstanceFilter: filterA})
	require.True(t, ok)

	c.Set(RequestProps{ParentPath: rootPath, SizeLimit: 10}, "limited")

	_, ok = c.Get(RequestProps{ParentPath: rootPath, InstanceFilter: filterB})
	require.False(t, ok)
	_, ok = c.Get(RequestProps{ParentPath: rootPath, InstanceFilter: filterA})
	require.True(t, ok)
	_, ok = c.Get(RequestProps{ParentPath: rootPath, SizeLimit: 10})
	require.True(t, ok)
}

func TestZeroVariationsCount(t *testing.T) {
	c := New[string](WithVariationsCount(0))
	c.Set(RequestProps{ParentPath: rootPath, InstanceFilter: filterA}, "a")
	_, ok := c.Get(RequestProps{ParentPath: rootPath, InstanceFilter: filterA})
	require.False(t, ok)
}

func TestPathsLeastRecentlyUsed(t *testing.T) {
	c := New[string](WithSize(2))
	c.Set(RequestProps{ParentPath: rootPath}, "root")
	c.Set(RequestProps{ParentPath: childPath}, "child")

	_, ok := c.Get(RequestProps{ParentPath: rootPath})
	require.True(t, ok)

	c.Set(RequestProps{ParentPath: otherPath}, "other")
	require.Equal(t, 2, c.Len())

	_, ok = c.Get(RequestProps{ParentPath: childPath})
	require.False(t, ok)
	_, ok = c.Get(RequestProps{ParentPath: rootPath})
	require.True(t, ok)
	_, ok = c.Get(RequestProps{ParentPath: otherPath})
	require.True(t, ok)
}

func TestSetOverwrites(t *testing.T) {
	c := New[string]()
	c.Set(RequestProps{ParentPath: childPath}, "first")
	c.Set(RequestProps{ParentPath: childPath}, "second")
	v, ok := c.Get(RequestProps{ParentPath: childPath})
	require.True(t, ok)
	require.Equal(t, "second", v)
}

func TestClear(t *testing.T) {
	c := New[string]()
	c.Set(RequestProps{ParentPath: rootPath}, "root")
	c.Set(RequestProps{ParentPath: childPath, InstanceFilter: filterA}, "child")
	c.Clear()
	require.Zero(t, c.Len())
	_, ok := c.Get(RequestProps{ParentPath: rootPath})
	require.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](WithSize(4), WithVariationsCount(2))
	paths := [][]nodekey.Key{rootPath, childPath, otherPath}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			props := RequestProps{ParentPath: paths[i%len(paths)]}
			if i%2 == 0 {
				props.SizeLimit = query.SizeLimit(i)
			}
			c.Set(props, i)
			c.Get(props)
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, c.Len(), 3)
}

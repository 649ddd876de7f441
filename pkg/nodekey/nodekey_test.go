package nodekey

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func sampleKeys() []Key {
	return []Key{
		nil,
		InstancesKey{},
		NewInstancesKey(InstanceKey{ClassName: "BisCore.Element", ID: "0x1"}),
		NewInstancesKey(InstanceKey{ClassName: "BisCore.Element", ID: "0x2"}),
		NewInstancesKey(InstanceKey{ClassName: "BisCore.Element", ID: "0x1"}, InstanceKey{ClassName: "BisCore.Element", ID: "0x2"}),
		NewInstancesKey(InstanceKey{ClassName: "BisCore.Element", ID: "0x1", IModelKey: "a"}),
		NewInstancesKey(InstanceKey{ClassName: "BisCore.Model", ID: "0x1"}),
		GenericKey{ID: "root"},
		GenericKey{ID: "root", Source: "other"},
		GenericKey{ID: "models"},
		ClassGroupingKey{ClassName: "BisCore.Element"},
		ClassGroupingKey{ClassName: "BisCore.Model"},
		LabelGroupingKey{Label: "a"},
		LabelGroupingKey{Label: "a", GroupID: "G"},
		LabelGroupingKey{Label: "b"},
		PropertyOtherValuesGroupingKey{},
		PropertyOtherValuesGroupingKey{Properties: []PropertyRef{{ClassName: "A.B", PropertyName: "p"}}},
		PropertyValueGroupingKey{PropertiesClassName: "A.B", PropertyName: "p", FormattedPropertyValue: "1"},
		PropertyValueGroupingKey{PropertiesClassName: "A.B", PropertyName: "p", FormattedPropertyValue: "2"},
		PropertyValueGroupingKey{PropertiesClassName: "A.B", PropertyName: "q", FormattedPropertyValue: "1"},
		PropertyValueRangeGroupingKey{PropertiesClassName: "A.B", PropertyName: "p", FromValue: 1, ToValue: 5},
		PropertyValueRangeGroupingKey{PropertiesClassName: "A.B", PropertyName: "p", FromValue: 1, ToValue: 10},
		PropertyValueRangeGroupingKey{PropertiesClassName: "A.B", PropertyName: "p", FromValue: -3, ToValue: 10},
	}
}

func TestCompareIsStrictTotalOrder(t *testing.T) {
	keys := sampleKeys()

	for i, a := range keys {
		for j, b := range keys {
			ab, ba := Compare(a, b), Compare(b, a)
			require.Contains(t, []int{-1, 0, 1}, ab)
			require.Equal(t, -ab, ba, "antisymmetry of %v and %v", a, b)

			structurallyEqual := cmp.Equal(a, b, cmpopts.EquateEmpty())
			require.Equal(t, structurallyEqual, ab == 0, "consistency with equality of %v and %v", a, b)
			require.Equal(t, i == j, ab == 0)

			for _, c := range keys {
				if ab <= 0 && Compare(b, c) <= 0 {
					require.LessOrEqual(t, Compare(a, c), 0, "transitivity of %v, %v, %v", a, b, c)
				}
			}
		}
	}
}

func TestCompareOrdersByKindFirst(t *testing.T) {
	require.Negative(t, Compare(NewInstancesKey(InstanceKey{ClassName: "z", ID: "z"}), GenericKey{ID: "a"}))
	require.Negative(t, Compare(GenericKey{ID: "z"}, ClassGroupingKey{ClassName: "a"}))
	require.Negative(t, Compare(ClassGroupingKey{ClassName: "z"}, LabelGroupingKey{Label: "a"}))
	require.Negative(t, Compare(LabelGroupingKey{Label: "z"}, PropertyOtherValuesGroupingKey{}))
	require.Negative(t, Compare(PropertyOtherValuesGroupingKey{}, PropertyValueGroupingKey{}))
	require.Negative(t, Compare(PropertyValueGroupingKey{}, PropertyValueRangeGroupingKey{}))
}

func TestCompareIsDeterministicAcrossShuffles(t *testing.T) {
	expected := sampleKeys()
	slices.SortStableFunc(expected, Compare)

	for seed := int64(0); seed < 10; seed++ {
		shuffled := sampleKeys()
		r := rand.New(rand.NewSource(seed))
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		slices.SortStableFunc(shuffled, Compare)
		require.Equal(t, expected, shuffled)
	}
}

func TestMarshalIsCanonical(t *testing.T) {
	keys := sampleKeys()
	seen := map[string]Key{}
	for _, k := range keys {
		s := Marshal(k)
		other, ok := seen[s]
		require.False(t, ok, "%v and %v serialize to %s", k, other, s)
		seen[s] = k
	}

	require.Equal(t, Marshal(InstancesKey{}), Marshal(InstancesKey{InstanceKeys: []InstanceKey{}}))
	require.JSONEq(t,
		`{"type":"label-grouping","key":{"label":"a","groupId":"G"}}`,
		Marshal(LabelGroupingKey{Label: "a", GroupID: "G"}),
	)
}

func TestComparePaths(t *testing.T) {
	a := []Key{GenericKey{ID: "root"}}
	b := []Key{GenericKey{ID: "root"}, ClassGroupingKey{ClassName: "x"}}
	c := []Key{GenericKey{ID: "zzz"}}

	require.Negative(t, ComparePaths(nil, a))
	require.Negative(t, ComparePaths(a, b))
	require.Negative(t, ComparePaths(a, c))
	require.Positive(t, ComparePaths(b, c))
	require.Zero(t, ComparePaths(b, []Key{GenericKey{ID: "root"}, ClassGroupingKey{ClassName: "x"}}))

	require.True(t, HasPrefix(b, a))
	require.True(t, HasPrefix(b, nil))
	require.False(t, HasPrefix(a, b))
	require.False(t, HasPrefix(c, a))

	require.NotEqual(t, PathString(a), PathString(b))
	require.Equal(t, "[]", PathString(nil))
}

func TestHelpers(t *testing.T) {
	ik := InstanceKey{ClassName: "BisCore.Element", ID: "0x1"}
	require.True(t, IsGrouping(LabelGroupingKey{Label: "x"}))
	require.False(t, IsGrouping(GenericKey{ID: "x"}))
	require.False(t, IsGrouping(nil))
	require.True(t, IsInstances(NewInstancesKey()))
	require.False(t, IsInstances(ClassGroupingKey{}))
	require.Equal(t, []InstanceKey{ik}, InstanceKeys(NewInstancesKey(ik)))
	require.Nil(t, InstanceKeys(GenericKey{ID: "x"}))
	require.Equal(t, "BisCore.Element:0x1", ik.String())
	require.Equal(t, "label-grouping", KindLabelGrouping.String())
}

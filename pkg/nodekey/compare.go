package nodekey

import (
	"cmp"
	"fmt"
	"slices"
)

// Compare orders keys by kind first and then by the fields of the variant. It returns -1, 0
// or +1 and is a strict total order consistent with structural equality. A nil key sorts
// before every other key.
func Compare(a, b Key) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if c := cmp.Compare(a.Kind(), b.Kind()); c != 0 {
		return c
	}

	switch lhs := a.(type) {
	case InstancesKey:
		return slices.CompareFunc(lhs.InstanceKeys, b.(InstancesKey).InstanceKeys, CompareInstanceKeys)
	case GenericKey:
		rhs := b.(GenericKey)
		if c := cmp.Compare(lhs.ID, rhs.ID); c != 0 {
			return c
		}
		return cmp.Compare(lhs.Source, rhs.Source)
	case ClassGroupingKey:
		return cmp.Compare(lhs.ClassName, b.(ClassGroupingKey).ClassName)
	case LabelGroupingKey:
		rhs := b.(LabelGroupingKey)
		if c := cmp.Compare(lhs.Label, rhs.Label); c != 0 {
			return c
		}
		return cmp.Compare(lhs.GroupID, rhs.GroupID)
	case PropertyOtherValuesGroupingKey:
		return slices.CompareFunc(lhs.Properties, b.(PropertyOtherValuesGroupingKey).Properties, comparePropertyRefs)
	case PropertyValueGroupingKey:
		rhs := b.(PropertyValueGroupingKey)
		if c := cmp.Compare(lhs.PropertiesClassName, rhs.PropertiesClassName); c != 0 {
			return c
		}
		if c := cmp.Compare(lhs.PropertyName, rhs.PropertyName); c != 0 {
			return c
		}
		return cmp.Compare(lhs.FormattedPropertyValue, rhs.FormattedPropertyValue)
	case PropertyValueRangeGroupingKey:
		rhs := b.(PropertyValueRangeGroupingKey)
		if c := cmp.Compare(lhs.PropertiesClassName, rhs.PropertiesClassName); c != 0 {
			return c
		}
		if c := cmp.Compare(lhs.PropertyName, rhs.PropertyName); c != 0 {
			return c
		}
		if c := cmp.Compare(lhs.FromValue, rhs.FromValue); c != 0 {
			return c
		}
		return cmp.Compare(lhs.ToValue, rhs.ToValue)
	default:
		panic(fmt.Sprintf("unexpected node key type %T", a))
	}
}

func comparePropertyRefs(a, b PropertyRef) int {
	if c := cmp.Compare(a.ClassName, b.ClassName); c != 0 {
		return c
	}
	return cmp.Compare(a.PropertyName, b.PropertyName)
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b Key) bool {
	return Compare(a, b) == 0
}

// ComparePaths orders key paths by length first and then element-wise.
func ComparePaths(a, b []Key) int {
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	for i := range a {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// HasPrefix reports whether path starts with prefix.
func HasPrefix(path, prefix []Key) bool {
	if len(prefix) > len(path) {
		return false
	}
	return ComparePaths(path[:len(prefix)], prefix) == 0
}

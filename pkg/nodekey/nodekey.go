// Package nodekey defines hierarchy node identities and the total order over them.
package nodekey

import (
	"cmp"
	"encoding/json"
	"fmt"
	"strings"
)

// InstanceKey identifies one instance of a class in a data source.
type InstanceKey struct {
	ClassName string `json:"className"`
	ID        string `json:"id"`
	// IModelKey identifies the data source the instance belongs to, when more than one
	// source feeds a hierarchy.
	IModelKey string `json:"imodelKey,omitempty"`
}

func (k InstanceKey) String() string {
	if k.IModelKey != "" {
		return fmt.Sprintf("%s:%s@%s", k.ClassName, k.ID, k.IModelKey)
	}
	return k.ClassName + ":" + k.ID
}

// CompareInstanceKeys orders instance keys by class name, then ID, then source key.
func CompareInstanceKeys(a, b InstanceKey) int {
	if c := cmp.Compare(a.ClassName, b.ClassName); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.IModelKey, b.IModelKey)
}

// Kind is the discriminator of a Key. The numeric order of kinds is the first criterion of
// the key order and must not change.
type Kind uint8

const (
	KindInstances Kind = iota
	KindGeneric
	KindClassGrouping
	KindLabelGrouping
	KindPropertyOtherValuesGrouping
	KindPropertyValueGrouping
	KindPropertyValueRangeGrouping
)

func (k Kind) String() string {
	switch k {
	case KindInstances:
		return "instances"
	case KindGeneric:
		return "generic"
	case KindClassGrouping:
		return "class-grouping"
	case KindLabelGrouping:
		return "label-grouping"
	case KindPropertyOtherValuesGrouping:
		return "property-grouping:other"
	case KindPropertyValueGrouping:
		return "property-grouping:value"
	case KindPropertyValueRangeGrouping:
		return "property-grouping:range"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// IsGrouping reports whether keys of this kind identify grouping nodes.
func (k Kind) IsGrouping() bool {
	return k >= KindClassGrouping
}

// Key is a hierarchy node identity. The set of implementations is closed.
type Key interface {
	Kind() Kind
	isKey()
}

// InstancesKey identifies a node representing one or more (merged) instances.
type InstancesKey struct {
	InstanceKeys []InstanceKey `json:"instanceKeys"`
}

// GenericKey identifies a node that does not represent any instance.
type GenericKey struct {
	ID     string `json:"id"`
	Source string `json:"source,omitempty"`
}

// ClassGroupingKey identifies a node grouping instances of one class.
type ClassGroupingKey struct {
	ClassName string `json:"className"`
}

// LabelGroupingKey identifies a node grouping nodes sharing a label and group ID.
type LabelGroupingKey struct {
	Label   string `json:"label"`
	GroupID string `json:"groupId,omitempty"`
}

// PropertyRef names a property of a class.
type PropertyRef struct {
	ClassName    string `json:"className"`
	PropertyName string `json:"propertyName"`
}

// PropertyOtherValuesGroupingKey identifies the node grouping instances whose property
// values fell outside every configured value or range.
type PropertyOtherValuesGroupingKey struct {
	Properties []PropertyRef `json:"properties"`
}

// PropertyValueGroupingKey identifies a node grouping instances by a formatted property value.
type PropertyValueGroupingKey struct {
	PropertiesClassName    string `json:"propertyClassName"`
	PropertyName           string `json:"propertyName"`
	FormattedPropertyValue string `json:"formattedPropertyValue"`
}

// PropertyValueRangeGroupingKey identifies a node grouping instances whose property value
// falls into [FromValue, ToValue].
type PropertyValueRangeGroupingKey struct {
	PropertiesClassName string  `json:"propertyClassName"`
	PropertyName        string  `json:"propertyName"`
	FromValue           float64 `json:"fromValue"`
	ToValue             float64 `json:"toValue"`
}

func (InstancesKey) Kind() Kind                   { return KindInstances }
func (GenericKey) Kind() Kind                     { return KindGeneric }
func (ClassGroupingKey) Kind() Kind               { return KindClassGrouping }
func (LabelGroupingKey) Kind() Kind               { return KindLabelGrouping }
func (PropertyOtherValuesGroupingKey) Kind() Kind { return KindPropertyOtherValuesGrouping }
func (PropertyValueGroupingKey) Kind() Kind       { return KindPropertyValueGrouping }
func (PropertyValueRangeGroupingKey) Kind() Kind  { return KindPropertyValueRangeGrouping }

func (InstancesKey) isKey()                   {}
func (GenericKey) isKey()                     {}
func (ClassGroupingKey) isKey()               {}
func (LabelGroupingKey) isKey()               {}
func (PropertyOtherValuesGroupingKey) isKey() {}
func (PropertyValueGroupingKey) isKey()       {}
func (PropertyValueRangeGroupingKey) isKey()  {}

// NewInstancesKey builds an instances key from the given instance keys.
func NewInstancesKey(keys ...InstanceKey) InstancesKey {
	return InstancesKey{InstanceKeys: keys}
}

// IsGrouping reports whether k identifies a grouping node. A nil key is not a grouping key.
func IsGrouping(k Key) bool {
	return k != nil && k.Kind().IsGrouping()
}

// IsInstances reports whether k identifies an instances node.
func IsInstances(k Key) bool {
	return k != nil && k.Kind() == KindInstances
}

// InstanceKeys returns the instance keys of an instances key, or nil for any other key.
func InstanceKeys(k Key) []InstanceKey {
	if ik, ok := k.(InstancesKey); ok {
		return ik.InstanceKeys
	}
	return nil
}

// Marshal returns the canonical serialization of k. Two keys have the same serialization
// if and only if they compare equal.
func Marshal(k Key) string {
	if k == nil {
		return "null"
	}
	switch v := k.(type) {
	case InstancesKey:
		if v.InstanceKeys == nil {
			k = InstancesKey{InstanceKeys: []InstanceKey{}}
		}
	case PropertyOtherValuesGroupingKey:
		if v.Properties == nil {
			k = PropertyOtherValuesGroupingKey{Properties: []PropertyRef{}}
		}
	case PropertyValueRangeGroupingKey:
		// adding zero turns negative zero into zero
		v.FromValue += 0
		v.ToValue += 0
		k = v
	}
	b, err := json.Marshal(struct {
		Type string `json:"type"`
		Key  Key    `json:"key"`
	}{Type: k.Kind().String(), Key: k})
	if err != nil {
		// range bounds are validated to be finite when definitions are built
		panic(fmt.Sprintf("failed to marshal node key: %v", err))
	}
	return string(b)
}

// PathString returns the canonical serialization of a key path.
func PathString(path []Key) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, k := range path {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(Marshal(k))
	}
	sb.WriteByte(']')
	return sb.String()
}

package node

import "fmt"

// GroupingAction tells what the label grouping stage does with nodes sharing a label.
type GroupingAction string

const (
	ActionGroup GroupingAction = "group"
	ActionMerge GroupingAction = "merge"
)

// Pin places a grouping node before or after its unpinned siblings.
type Pin string

const (
	PinNone   Pin = ""
	PinTop    Pin = "top"
	PinBottom Pin = "bottom"
)

// GroupingOptions are shared by every grouping directive and apply to the grouping node it
// produces.
type GroupingOptions struct {
	// HideIfNoSiblings replaces the grouping node by its members when it is the only node
	// of its level.
	HideIfNoSiblings bool `json:"hideIfNoSiblings,omitempty"`
	// HideIfOneGroupedNode replaces the grouping node by its member when it groups a
	// single node.
	HideIfOneGroupedNode bool `json:"hideIfOneGroupedNode,omitempty"`
	AutoExpand           bool `json:"autoExpand,omitempty"`
	Pin                  Pin  `json:"pin,omitempty"`
}

// Directive is one way of grouping a node. The set of implementations is closed.
type Directive interface {
	options() GroupingOptions
	fmt.Stringer
}

// ByLabel groups, or merges, sibling nodes with equal labels and group IDs.
type ByLabel struct {
	Action  GroupingAction
	GroupID string
	Options GroupingOptions
}

// ByClass groups instance nodes by their class.
type ByClass struct {
	Options GroupingOptions
}

// ByBaseClasses groups instance nodes under each of the listed base classes they derive
// from.
type ByBaseClasses struct {
	FullClassNames []string
	Options        GroupingOptions
}

// PropertyRange is a closed interval of numeric property values.
type PropertyRange struct {
	FromValue  float64
	ToValue    float64
	RangeLabel string
}

// Contains reports whether v lies in the range.
func (r PropertyRange) Contains(v float64) bool {
	return v >= r.FromValue && v <= r.ToValue
}

// PropertyGroup is the value of one property of a node used for grouping. A nil
// PropertyValue means the node has no value for the property.
type PropertyGroup struct {
	PropertyName  string
	PropertyValue any
	Ranges        []PropertyRange
}

// ByProperties groups instance nodes by the values of properties of PropertiesClassName.
// Each property group is a separate grouping level.
type ByProperties struct {
	PropertiesClassName             string
	PropertyGroups                  []PropertyGroup
	CreateGroupForUnspecifiedValues bool
	CreateGroupForOutOfRangeValues  bool
	Options                         GroupingOptions
}

func (d ByLabel) options() GroupingOptions       { return d.Options }
func (d ByClass) options() GroupingOptions       { return d.Options }
func (d ByBaseClasses) options() GroupingOptions { return d.Options }
func (d ByProperties) options() GroupingOptions  { return d.Options }

func (d ByLabel) String() string {
	if d.GroupID == "" {
		return fmt.Sprintf("byLabel(%s)", d.Action)
	}
	return fmt.Sprintf("byLabel(%s, %s)", d.Action, d.GroupID)
}
func (d ByClass) String() string       { return "byClass" }
func (d ByBaseClasses) String() string { return fmt.Sprintf("byBaseClasses%v", d.FullClassNames) }
func (d ByProperties) String() string  { return fmt.Sprintf("byProperties(%s)", d.PropertiesClassName) }

// OptionsOf returns the grouping options of d.
func OptionsOf(d Directive) GroupingOptions {
	if d == nil {
		return GroupingOptions{}
	}
	return d.options()
}

// GroupingParams are the grouping directives of a node. At most one directive of each
// kind is expected.
type GroupingParams []Directive

// Find returns the first directive of type D.
func Find[D Directive](params GroupingParams) (D, bool) {
	for _, d := range params {
		if v, ok := d.(D); ok {
			return v, true
		}
	}
	var null D
	return null, false
}

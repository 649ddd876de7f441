package definition

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/iTwin/presentation-hierarchies/pkg/formatter"
	"github.com/iTwin/presentation-hierarchies/pkg/metadata"
	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
)

// DefaultParseNode reads an instance node from a row carrying the standard node columns.
func DefaultParseNode(row query.Row) (*SourceInstanceNode, error) {
	id, err := idValue(row[query.ColumnECInstanceID])
	if err != nil {
		return nil, err
	}
	className, _ := row[query.ColumnFullClassName].(string)
	if className == "" {
		return nil, fmt.Errorf("%w: row of %s has no class name", ErrInvalidNode, id)
	}

	n := &SourceInstanceNode{Key: nodekey.InstanceKey{ClassName: className, ID: id}}

	if raw, ok := row[query.ColumnDisplayLabel].(string); ok {
		n.Label, err = formatter.ParseConcatenatedValue(raw)
		if err != nil {
			return nil, fmt.Errorf("label of %s: %w", n.Key, err)
		}
	}
	if v := row[query.ColumnHasChildren]; v != nil {
		hasChildren := boolValue(v)
		n.HasChildren = &hasChildren
	}
	n.AutoExpand = boolValue(row[query.ColumnAutoExpand])
	n.SupportsFiltering = boolValue(row[query.ColumnSupportsFiltering])
	n.Processing.HideIfNoChildren = boolValue(row[query.ColumnHideIfNoChildren])
	n.Processing.HideInHierarchy = boolValue(row[query.ColumnHideNodeInHierarchy])

	if raw, ok := row[query.ColumnGrouping].(string); ok {
		n.Processing.Grouping, err = ParseGrouping(raw)
		if err != nil {
			return nil, fmt.Errorf("grouping of %s: %w", n.Key, err)
		}
	}
	if raw, ok := row[query.ColumnExtendedData].(string); ok && raw != "" {
		n.ExtendedData, err = parseExtendedData(raw)
		if err != nil {
			return nil, fmt.Errorf("extended data of %s: %w", n.Key, err)
		}
	}
	return n, nil
}

func idValue(v any) (string, error) {
	switch id := v.(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case int64:
		return "0x" + strconv.FormatInt(id, 16), nil
	case int:
		return "0x" + strconv.FormatInt(int64(id), 16), nil
	}
	return "", fmt.Errorf("%w: row has no instance id", ErrInvalidNode)
}

func boolValue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	case float64:
		return b != 0
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	default:
		return false
	}
}

func parseExtendedData(raw string) (map[string]any, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("invalid json")
	}
	data, ok := gjson.Parse(raw).Value().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a json object")
	}
	return data, nil
}

// ParseGrouping reads grouping directives from their JSON form:
//
//	{"byLabel": true | {"action": "merge", "groupId": "..."},
//	 "byClass": true | {...},
//	 "byBaseClasses": {"fullClassNames": [...]},
//	 "byProperties": {"propertiesClassName": "...", "propertyGroups": [...]}}
//
// Every directive object also accepts the grouping options. The result is validated.
func ParseGrouping(raw string) (node.GroupingParams, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid json", ErrInvalidGroupingDirective)
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: expected an object", ErrInvalidGroupingDirective)
	}

	var (
		params node.GroupingParams
		err    error
	)
	doc.ForEach(func(key, value gjson.Result) bool {
		var d node.Directive
		switch key.String() {
		case "byLabel":
			d, err = parseByLabel(value)
		case "byClass":
			d, err = parseByClass(value)
		case "byBaseClasses":
			d, err = parseByBaseClasses(value)
		case "byProperties":
			d, err = parseByProperties(value)
		default:
			err = fmt.Errorf("%w: unknown directive %q", ErrInvalidGroupingDirective, key.String())
		}
		if err != nil {
			return false
		}
		if d != nil {
			params = append(params, d)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if err := ValidateGrouping(params); err != nil {
		return nil, err
	}
	return params, nil
}

// enabled reports whether a directive value turns the directive on: true or an object.
func enabled(v gjson.Result) (bool, error) {
	switch {
	case v.IsObject():
		return true, nil
	case v.IsBool():
		return v.Bool(), nil
	default:
		return false, fmt.Errorf("%w: expected a boolean or an object, got %s", ErrInvalidGroupingDirective, v.Raw)
	}
}

func parseOptions(v gjson.Result) node.GroupingOptions {
	return node.GroupingOptions{
		HideIfNoSiblings:     v.Get("hideIfNoSiblings").Bool(),
		HideIfOneGroupedNode: v.Get("hideIfOneGroupedNode").Bool(),
		AutoExpand:           v.Get("autoExpand").Bool(),
		Pin:                  node.Pin(v.Get("pin").String()),
	}
}

func parseByLabel(v gjson.Result) (node.Directive, error) {
	on, err := enabled(v)
	if err != nil || !on {
		return nil, err
	}
	action := node.GroupingAction(v.Get("action").String())
	if action == "" {
		action = node.ActionGroup
	}
	return node.ByLabel{
		Action:  action,
		GroupID: v.Get("groupId").String(),
		Options: parseOptions(v),
	}, nil
}

func parseByClass(v gjson.Result) (node.Directive, error) {
	on, err := enabled(v)
	if err != nil || !on {
		return nil, err
	}
	return node.ByClass{Options: parseOptions(v)}, nil
}

func parseByBaseClasses(v gjson.Result) (node.Directive, error) {
	if !v.IsObject() {
		return nil, fmt.Errorf("%w: byBaseClasses expects an object", ErrInvalidGroupingDirective)
	}
	d := node.ByBaseClasses{Options: parseOptions(v)}
	for _, name := range v.Get("fullClassNames").Array() {
		d.FullClassNames = append(d.FullClassNames, name.String())
	}
	return d, nil
}

func parseByProperties(v gjson.Result) (node.Directive, error) {
	if !v.IsObject() {
		return nil, fmt.Errorf("%w: byProperties expects an object", ErrInvalidGroupingDirective)
	}
	d := node.ByProperties{
		PropertiesClassName:             v.Get("propertiesClassName").String(),
		CreateGroupForUnspecifiedValues: v.Get("createGroupForUnspecifiedValues").Bool(),
		CreateGroupForOutOfRangeValues:  v.Get("createGroupForOutOfRangeValues").Bool(),
		Options:                         parseOptions(v),
	}
	for _, g := range v.Get("propertyGroups").Array() {
		group := node.PropertyGroup{
			PropertyName:  g.Get("propertyName").String(),
			PropertyValue: g.Get("propertyValue").Value(),
		}
		for _, r := range g.Get("ranges").Array() {
			group.Ranges = append(group.Ranges, node.PropertyRange{
				FromValue:  r.Get("fromValue").Float(),
				ToValue:    r.Get("toValue").Float(),
				RangeLabel: r.Get("rangeLabel").String(),
			})
		}
		d.PropertyGroups = append(d.PropertyGroups, group)
	}
	return d, nil
}

// ValidateGrouping checks grouping directives. It is called when definitions are built so
// that the grouping stage can trust its input.
func ValidateGrouping(params node.GroupingParams) error {
	seen := map[string]bool{}
	for _, d := range params {
		kind := fmt.Sprintf("%T", d)
		if seen[kind] {
			return fmt.Errorf("%w: duplicate %s", ErrInvalidGroupingDirective, d)
		}
		seen[kind] = true

		switch p := node.OptionsOf(d).Pin; p {
		case node.PinNone, node.PinTop, node.PinBottom:
		default:
			return fmt.Errorf("%w: unknown pin %q", ErrInvalidGroupingDirective, p)
		}

		switch v := d.(type) {
		case node.ByLabel:
			if v.Action != node.ActionGroup && v.Action != node.ActionMerge && v.Action != "" {
				return fmt.Errorf("%w: unknown label grouping action %q", ErrInvalidGroupingDirective, v.Action)
			}
		case node.ByClass:
		case node.ByBaseClasses:
			if len(v.FullClassNames) == 0 {
				return fmt.Errorf("%w: base class grouping without classes", ErrInvalidGroupingDirective)
			}
			for _, name := range v.FullClassNames {
				if _, _, err := metadata.ParseFullClassName(name); err != nil {
					return fmt.Errorf("%w: %w", ErrInvalidGroupingDirective, err)
				}
			}
		case node.ByProperties:
			if err := validateByProperties(v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unsupported directive %T", ErrInvalidGroupingDirective, d)
		}
	}
	return nil
}

func validateByProperties(d node.ByProperties) error {
	if _, _, err := metadata.ParseFullClassName(d.PropertiesClassName); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGroupingDirective, err)
	}
	if len(d.PropertyGroups) == 0 {
		return fmt.Errorf("%w: property grouping without property groups", ErrInvalidGroupingDirective)
	}
	for _, g := range d.PropertyGroups {
		if g.PropertyName == "" {
			return fmt.Errorf("%w: property group without property name", ErrInvalidGroupingDirective)
		}
		for _, r := range g.Ranges {
			if math.IsNaN(r.FromValue) || math.IsInf(r.FromValue, 0) || math.IsNaN(r.ToValue) || math.IsInf(r.ToValue, 0) {
				return fmt.Errorf("%w: range bounds of %s must be finite", ErrInvalidGroupingDirective, g.PropertyName)
			}
			if r.FromValue > r.ToValue {
				return fmt.Errorf("%w: range %v-%v of %s is empty", ErrInvalidGroupingDirective, r.FromValue, r.ToValue, g.PropertyName)
			}
		}
	}
	return nil
}

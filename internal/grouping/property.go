package grouping

import (
	"context"
	"fmt"
	"strconv"

	"github.com/iTwin/presentation-hierarchies/pkg/formatter"
	"github.com/iTwin/presentation-hierarchies/pkg/logger"
	"github.com/iTwin/presentation-hierarchies/pkg/metadata"
	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
)

// GroupByProperties returns the handler grouping instance nodes by the value of their
// index-th property group. Values falling into a range are grouped per range; values
// outside every range go to an "other values" group when asked to, and missing values to
// an "unspecified" group when asked to. Anything else stays ungrouped.
func GroupByProperties(deps Deps, index int) Handler {
	return func(ctx context.Context, nodes []*node.ProcessedNode) (Result, error) {
		res := Result{GroupingType: TypeProperty}
		groups := newBucketer()
		for _, n := range nodes {
			d, ok := node.Find[node.ByProperties](n.Processing.Grouping)
			if !ok || index >= len(d.PropertyGroups) || !nodekey.IsInstances(n.Key) {
				res.Ungrouped = append(res.Ungrouped, n)
				continue
			}
			key, label, grouped, err := propertyGroup(ctx, deps, d, d.PropertyGroups[index])
			if err != nil {
				return Result{}, err
			}
			if !grouped {
				res.Ungrouped = append(res.Ungrouped, n)
				continue
			}
			groups.add(key, label, n, d.Options)
		}
		res.Grouped = groups.groupingNodes()

		deps.log(logger.SeverityTrace, func() string {
			return fmt.Sprintf("property grouping #%d created %d groups out of %d nodes", index, len(res.Grouped), len(nodes))
		})
		return res, nil
	}
}

func propertyGroup(ctx context.Context, deps Deps, d node.ByProperties, g node.PropertyGroup) (nodekey.Key, string, bool, error) {
	className, err := metadata.NormalizeFullClassName(d.PropertiesClassName)
	if err != nil {
		return nil, "", false, err
	}

	if isUnspecified(g.PropertyValue) {
		if !d.CreateGroupForUnspecifiedValues {
			return nil, "", false, nil
		}
		key := nodekey.PropertyValueGroupingKey{PropertiesClassName: className, PropertyName: g.PropertyName}
		return key, deps.Localized.Unspecified, true, nil
	}

	prop, err := metadata.FindProperty(ctx, deps.Metadata, className, g.PropertyName)
	if err != nil {
		return nil, "", false, err
	}

	if len(g.Ranges) > 0 {
		if v, ok := numericValue(g.PropertyValue); ok {
			for _, r := range g.Ranges {
				if !r.Contains(v) {
					continue
				}
				key := nodekey.PropertyValueRangeGroupingKey{
					PropertiesClassName: className,
					PropertyName:        g.PropertyName,
					FromValue:           r.FromValue,
					ToValue:             r.ToValue,
				}
				label, err := rangeLabel(ctx, deps, prop, r)
				if err != nil {
					return nil, "", false, err
				}
				return key, label, true, nil
			}
		}
		if !d.CreateGroupForOutOfRangeValues {
			return nil, "", false, nil
		}
		key := nodekey.PropertyOtherValuesGroupingKey{Properties: []nodekey.PropertyRef{{ClassName: className, PropertyName: g.PropertyName}}}
		return key, deps.Localized.Other, true, nil
	}

	formatted, err := deps.Formatter(ctx, typedValue(prop, g.PropertyValue))
	if err != nil {
		return nil, "", false, err
	}
	key := nodekey.PropertyValueGroupingKey{
		PropertiesClassName:    className,
		PropertyName:           g.PropertyName,
		FormattedPropertyValue: formatted,
	}
	return key, formatted, true, nil
}

func isUnspecified(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func typedValue(prop *metadata.Property, v any) formatter.TypedPrimitiveValue {
	return formatter.TypedPrimitiveValue{
		Type:           prop.PrimitiveType,
		Value:          v,
		ExtendedType:   prop.ExtendedType,
		KindOfQuantity: prop.KindOfQuantity,
	}
}

func rangeLabel(ctx context.Context, deps Deps, prop *metadata.Property, r node.PropertyRange) (string, error) {
	if r.RangeLabel != "" {
		return r.RangeLabel, nil
	}
	from, err := deps.Formatter(ctx, typedValue(prop, r.FromValue))
	if err != nil {
		return "", err
	}
	to, err := deps.Formatter(ctx, typedValue(prop, r.ToValue))
	if err != nil {
		return "", err
	}
	return from + " - " + to, nil
}

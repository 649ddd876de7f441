package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	sq "github.com/Masterminds/squirrel"
)

var ErrInvalidInstanceFilter = errors.New("invalid instance filter")

// GroupOperator joins the members of a rule group.
type GroupOperator string

const (
	OperatorAnd GroupOperator = "and"
	OperatorOr  GroupOperator = "or"
)

// RuleOperator compares a property value.
type RuleOperator string

const (
	RuleIsEqual        RuleOperator = "is-equal"
	RuleIsNotEqual     RuleOperator = "is-not-equal"
	RuleLess           RuleOperator = "less"
	RuleLessOrEqual    RuleOperator = "less-or-equal"
	RuleGreater        RuleOperator = "greater"
	RuleGreaterOrEqual RuleOperator = "greater-or-equal"
	RuleLike           RuleOperator = "like"
	RuleIsNull         RuleOperator = "is-null"
	RuleIsNotNull      RuleOperator = "is-not-null"
	RuleIsTrue         RuleOperator = "is-true"
	RuleIsFalse        RuleOperator = "is-false"
)

// FilterRule compares one property of the filtered instance.
type FilterRule struct {
	PropertyName string       `json:"propertyName"`
	Operator     RuleOperator `json:"operator"`
	Value        any          `json:"value,omitempty"`
}

// FilterRuleGroup combines rules and nested groups with one operator.
type FilterRuleGroup struct {
	Operator GroupOperator     `json:"operator"`
	Rules    []FilterRule      `json:"rules,omitempty"`
	Groups   []FilterRuleGroup `json:"groups,omitempty"`
}

// InstanceFilter restricts the instances a hierarchy level returns.
type InstanceFilter struct {
	// PropertyClassNames are the classes whose properties the rules refer to.
	PropertyClassNames []string `json:"propertyClassNames,omitempty"`
	// FilteredClassNames, when not empty, restricts results to instances of these classes.
	FilteredClassNames []string         `json:"filteredClassNames,omitempty"`
	Rules              *FilterRuleGroup `json:"rules,omitempty"`
}

// Canonical returns a serialization of the filter in which class name order does not
// matter. Two equivalent filters produce the same string.
func (f *InstanceFilter) Canonical() string {
	if f == nil {
		return ""
	}
	c := *f
	c.PropertyClassNames = slices.Sorted(slices.Values(f.PropertyClassNames))
	c.FilteredClassNames = slices.Sorted(slices.Values(f.FilteredClassNames))
	b, err := json.Marshal(c)
	if err != nil {
		// rule values come from decoded JSON or YAML and always marshal
		panic(fmt.Sprintf("failed to marshal instance filter: %v", err))
	}
	return string(b)
}

// Validate checks the operators of every rule and group.
func (f *InstanceFilter) Validate() error {
	if f == nil || f.Rules == nil {
		return nil
	}
	return validateGroup(*f.Rules)
}

func validateGroup(g FilterRuleGroup) error {
	if g.Operator != OperatorAnd && g.Operator != OperatorOr {
		return fmt.Errorf("%w: unknown group operator %q", ErrInvalidInstanceFilter, g.Operator)
	}
	for _, r := range g.Rules {
		if r.PropertyName == "" {
			return fmt.Errorf("%w: rule without property name", ErrInvalidInstanceFilter)
		}
		if _, err := ruleValueCondition(r); err != nil {
			return err
		}
	}
	for _, sub := range g.Groups {
		if err := validateGroup(sub); err != nil {
			return err
		}
	}
	return nil
}

// ruleValueCondition returns the condition a single property row must satisfy.
func ruleValueCondition(r FilterRule) (sq.Sqlizer, error) {
	const col = "p.value"
	switch r.Operator {
	case RuleIsEqual:
		return sq.Eq{col: r.Value}, nil
	case RuleIsNotEqual:
		return sq.NotEq{col: r.Value}, nil
	case RuleLess:
		return sq.Lt{numericColumn: r.Value}, nil
	case RuleLessOrEqual:
		return sq.LtOrEq{numericColumn: r.Value}, nil
	case RuleGreater:
		return sq.Gt{numericColumn: r.Value}, nil
	case RuleGreaterOrEqual:
		return sq.GtOrEq{numericColumn: r.Value}, nil
	case RuleLike:
		return sq.Like{col: fmt.Sprintf("%%%v%%", r.Value)}, nil
	case RuleIsNotNull:
		return sq.NotEq{col: nil}, nil
	case RuleIsTrue:
		return sq.Eq{col: "true"}, nil
	case RuleIsFalse:
		return sq.Eq{col: "false"}, nil
	default:
		return nil, fmt.Errorf("%w: unknown rule operator %q", ErrInvalidInstanceFilter, r.Operator)
	}
}

const numericColumn = "p.number_value"

// propertyCondition matches instances by one property rule. Instances without a value for
// the property match only the is-null rule.
func propertyCondition(r FilterRule) (sq.Sqlizer, error) {
	if r.Operator == RuleIsNull {
		return sq.Expr(
			"NOT EXISTS (SELECT 1 FROM instance_properties p WHERE p.instance_id = this.id AND p.name = ? AND p.value IS NOT NULL)",
			r.PropertyName,
		), nil
	}
	cond, err := ruleValueCondition(r)
	if err != nil {
		return nil, err
	}
	inner, args, err := sq.And{sq.Expr("p.instance_id = this.id"), sq.Eq{"p.name": r.PropertyName}, cond}.ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr("EXISTS (SELECT 1 FROM instance_properties p WHERE "+inner+")", args...), nil
}

func groupCondition(g FilterRuleGroup) (sq.Sqlizer, error) {
	var parts []sq.Sqlizer
	for _, r := range g.Rules {
		c, err := propertyCondition(r)
		if err != nil {
			return nil, err
		}
		parts = append(parts, c)
	}
	for _, sub := range g.Groups {
		c, err := groupCondition(sub)
		if err != nil {
			return nil, err
		}
		parts = append(parts, c)
	}
	if g.Operator == OperatorOr {
		return sq.Or(parts), nil
	}
	return sq.And(parts), nil
}

// ApplyInstanceFilter wraps q so that it only returns rows whose ECInstanceId refers to an
// instance satisfying f. A nil filter returns q unchanged.
func ApplyInstanceFilter(q Query, f *InstanceFilter) (Query, error) {
	if f == nil || (f.Rules == nil && len(f.FilteredClassNames) == 0) {
		return q, nil
	}
	if err := f.Validate(); err != nil {
		return Query{}, err
	}

	instances := sq.Select("this.id").From("instances this")
	if len(f.FilteredClassNames) > 0 {
		instances = instances.Where(sq.Eq{"this.class_name": f.FilteredClassNames})
	}
	if f.Rules != nil {
		cond, err := groupCondition(*f.Rules)
		if err != nil {
			return Query{}, err
		}
		instances = instances.Where(cond)
	}
	instancesSQL, instancesArgs, err := instances.ToSql()
	if err != nil {
		return Query{}, fmt.Errorf("%w: %w", ErrInvalidInstanceFilter, err)
	}

	wrapped, args, err := sq.Select("q.*").
		From("(" + q.SQL + ") q").
		Where(sq.Expr("q.ECInstanceId IN ("+instancesSQL+")", instancesArgs...)).
		ToSql()
	if err != nil {
		return Query{}, fmt.Errorf("%w: %w", ErrInvalidInstanceFilter, err)
	}
	// the wrapped query's parameters precede the filter's
	return Query{SQL: wrapped, Bindings: append(slices.Clone(q.Bindings), bindingsOf(args)...)}, nil
}

func bindingsOf(args []any) []Binding {
	bindings := make([]Binding, len(args))
	for i, a := range args {
		bindings[i] = BindingOf(a)
	}
	return bindings
}

// BindingOf returns a binding typed after the Go type of v.
func BindingOf(v any) Binding {
	switch v.(type) {
	case nil:
		return Binding{Type: BindingNull}
	case bool:
		return Binding{Type: BindingBoolean, Value: v}
	case int, int32, int64:
		return Binding{Type: BindingInt, Value: v}
	case float32, float64:
		return Binding{Type: BindingDouble, Value: v}
	default:
		return Binding{Type: BindingString, Value: v}
	}
}

package query

import (
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Column aliases of the standard instance node select clause.
const (
	ColumnECInstanceID        = "ECInstanceId"
	ColumnFullClassName       = "FullClassName"
	ColumnDisplayLabel        = "DisplayLabel"
	ColumnHasChildren         = "HasChildren"
	ColumnHideIfNoChildren    = "HideIfNoChildren"
	ColumnHideNodeInHierarchy = "HideNodeInHierarchy"
	ColumnGrouping            = "Grouping"
	ColumnExtendedData        = "ExtendedData"
	ColumnAutoExpand          = "AutoExpand"
	ColumnSupportsFiltering   = "SupportsFiltering"
)

// NodeSelectProps describes the columns of an instance node query. Expression fields are
// SQL expressions over the selected table; value fields are bound as parameters.
type NodeSelectProps struct {
	ECInstanceID  string
	FullClassName string
	DisplayLabel  string

	// HasChildren, when not nil, tells the node's children presence upfront.
	HasChildren         *bool
	HideIfNoChildren    bool
	HideNodeInHierarchy bool
	AutoExpand          bool
	SupportsFiltering   bool

	// Grouping is the JSON serialization of the node's grouping directives.
	Grouping     string
	ExtendedData map[string]any
}

func boolColumn(v bool, alias string) sq.Sqlizer {
	n := 0
	if v {
		n = 1
	}
	return sq.Expr(fmt.Sprintf("%d AS %s", n, alias))
}

// Columns returns the select columns in the standard order.
func (p NodeSelectProps) Columns() ([]sq.Sqlizer, error) {
	if p.ECInstanceID == "" || p.FullClassName == "" {
		return nil, fmt.Errorf("instance node select requires id and class name expressions")
	}
	label := p.DisplayLabel
	if label == "" {
		label = "''"
	}

	hasChildren := sq.Expr("NULL AS " + ColumnHasChildren)
	if p.HasChildren != nil {
		hasChildren = boolColumn(*p.HasChildren, ColumnHasChildren)
	}

	grouping := sq.Expr("NULL AS " + ColumnGrouping)
	if p.Grouping != "" {
		grouping = sq.Expr("? AS "+ColumnGrouping, p.Grouping)
	}

	extendedData := sq.Expr("NULL AS " + ColumnExtendedData)
	if len(p.ExtendedData) > 0 {
		b, err := json.Marshal(p.ExtendedData)
		if err != nil {
			return nil, fmt.Errorf("extended data: %w", err)
		}
		extendedData = sq.Expr("? AS "+ColumnExtendedData, string(b))
	}

	return []sq.Sqlizer{
		sq.Expr(p.ECInstanceID + " AS " + ColumnECInstanceID),
		sq.Expr(p.FullClassName + " AS " + ColumnFullClassName),
		sq.Expr(label + " AS " + ColumnDisplayLabel),
		hasChildren,
		boolColumn(p.HideIfNoChildren, ColumnHideIfNoChildren),
		boolColumn(p.HideNodeInHierarchy, ColumnHideNodeInHierarchy),
		grouping,
		extendedData,
		boolColumn(p.AutoExpand, ColumnAutoExpand),
		boolColumn(p.SupportsFiltering, ColumnSupportsFiltering),
	}, nil
}

// SelectInstanceNodes starts a select of instance node rows from the given table
// expression. Callers add WHERE clauses and call ToQuery.
func SelectInstanceNodes(from string, props NodeSelectProps) (sq.SelectBuilder, error) {
	cols, err := props.Columns()
	if err != nil {
		return sq.SelectBuilder{}, err
	}
	b := sq.Select().From(from)
	for _, c := range cols {
		b = b.Column(c)
	}
	return b, nil
}

// ToQuery renders a squirrel statement into a Query.
func ToQuery(s sq.Sqlizer) (Query, error) {
	sqlText, args, err := s.ToSql()
	if err != nil {
		return Query{}, err
	}
	return Query{SQL: sqlText, Bindings: bindingsOf(args)}, nil
}

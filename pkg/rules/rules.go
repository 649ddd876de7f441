// Package rules reads hierarchy definitions from YAML documents.
//
// A document lists levels. Each level selects the parents it applies to and the nodes
// it contributes under them:
//
//	levels:
//	  - parent: {root: true}
//	    nodes:
//	      - instances:
//	          class: BisCore.Model
//	          parentColumn: model_id
//	          grouping: {byClass: true}
//	  - parent: {instancesOf: BisCore.Model}
//	    nodes:
//	      - instances:
//	          class: BisCore.Element
//	          parentColumn: model_id
//	          filter: 'row.DisplayLabel.startsWith("Wall")'
//
// Documents are compiled eagerly: grouping directives, SQL fragments and filter
// expressions are validated before the definition is returned.
package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	sq "github.com/Masterminds/squirrel"
	"sigs.k8s.io/yaml"

	"github.com/iTwin/presentation-hierarchies/pkg/definition"
	"github.com/iTwin/presentation-hierarchies/pkg/formatter"
	"github.com/iTwin/presentation-hierarchies/pkg/metadata"
	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
)

// DefaultInstancesTable is the table expression instance rules select from. Rule SQL
// fragments refer to it as "this".
const DefaultInstancesTable = "instances this"

// Document is the YAML form of a hierarchy definition.
type Document struct {
	Levels []Level `json:"levels"`
}

// Level contributes nodes under the parents matched by Parent.
type Level struct {
	Parent ParentSelector `json:"parent"`
	Nodes  []NodeRule     `json:"nodes"`
}

// ParentSelector matches parent nodes. Exactly one field is set.
type ParentSelector struct {
	Root      bool   `json:"root,omitempty"`
	GenericID string `json:"genericId,omitempty"`
	// InstancesOf matches instance nodes of the class or of a class deriving from it.
	InstancesOf string `json:"instancesOf,omitempty"`
}

// NodeRule defines either a generic node or a query of instance nodes.
type NodeRule struct {
	Generic   *GenericRule   `json:"generic,omitempty"`
	Instances *InstancesRule `json:"instances,omitempty"`
}

// NodeAttributes are shared by generic and instance rules.
type NodeAttributes struct {
	HasChildren       *bool           `json:"hasChildren,omitempty"`
	HideIfNoChildren  bool            `json:"hideIfNoChildren,omitempty"`
	HideInHierarchy   bool            `json:"hideInHierarchy,omitempty"`
	AutoExpand        bool            `json:"autoExpand,omitempty"`
	SupportsFiltering bool            `json:"supportsFiltering,omitempty"`
	ExtendedData      map[string]any  `json:"extendedData,omitempty"`
	Grouping          json.RawMessage `json:"grouping,omitempty"`
}

type GenericRule struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	NodeAttributes
}

// InstancesRule selects instance nodes from DefaultInstancesTable.
type InstancesRule struct {
	// Class is the class the nodes are reported as. It also restricts the selected rows
	// unless Classes is set.
	Class   string   `json:"class"`
	Classes []string `json:"classes,omitempty"`
	// Label is an SQL expression of the label, "this.label" by default.
	Label string `json:"label,omitempty"`
	// ParentColumn, when set, is compared with the instance IDs of the parent node. At
	// levels without an instance parent it must be NULL.
	ParentColumn string `json:"parentColumn,omitempty"`
	// Where is an additional SQL condition.
	Where string `json:"where,omitempty"`
	// Filter is a CEL predicate over the selected row, available as "row".
	Filter string `json:"filter,omitempty"`
	NodeAttributes
}

// Definition is a compiled Document.
type Definition struct {
	metadata metadata.Provider
	levels   []compiledLevel
}

var _ definition.HierarchyDefinition = (*Definition)(nil)

type compiledLevel struct {
	parent ParentSelector
	nodes  []compiledNode
}

type compiledNode struct {
	generic   *definition.GenericNodeDefinition
	instances *compiledInstances
}

type compiledInstances struct {
	rule    InstancesRule
	classes []string
	props   query.NodeSelectProps
	filter  *rowFilter
}

// Load reads and compiles the document at path.
func Load(path string, md metadata.Provider) (*Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hierarchy rules: %w", err)
	}
	return Parse(b, md)
}

// Parse compiles a YAML document. md resolves the classes of instancesOf selectors.
func Parse(data []byte, md metadata.Provider) (*Definition, error) {
	j, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing hierarchy rules: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(j))
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing hierarchy rules: %w", err)
	}
	return Compile(doc, md)
}

// Compile validates doc and prepares its queries and filters.
func Compile(doc Document, md metadata.Provider) (*Definition, error) {
	d := &Definition{metadata: md}
	for i, l := range doc.Levels {
		name := fmt.Sprintf("levels[%d]", i)
		if err := validateSelector(l.Parent); err != nil {
			return nil, &definition.Error{Definition: name, Err: err}
		}
		level := compiledLevel{parent: l.Parent}
		for j, n := range l.Nodes {
			nodeName := fmt.Sprintf("%s.nodes[%d]", name, j)
			c, err := compileNode(n)
			if err != nil {
				return nil, &definition.Error{Definition: nodeName, Err: err}
			}
			level.nodes = append(level.nodes, c)
		}
		d.levels = append(d.levels, level)
	}
	return d, nil
}

func validateSelector(s ParentSelector) error {
	set := 0
	if s.Root {
		set++
	}
	if s.GenericID != "" {
		set++
	}
	if s.InstancesOf != "" {
		if _, _, err := metadata.ParseFullClassName(s.InstancesOf); err != nil {
			return fmt.Errorf("%w: %w", definition.ErrInvalidNode, err)
		}
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: parent selector must set exactly one of root, genericId and instancesOf", definition.ErrInvalidNode)
	}
	return nil
}

func compileGrouping(raw json.RawMessage) (node.GroupingParams, string, error) {
	if len(raw) == 0 {
		return nil, "", nil
	}
	params, err := definition.ParseGrouping(string(raw))
	if err != nil {
		return nil, "", err
	}
	return params, string(raw), nil
}

func compileNode(n NodeRule) (compiledNode, error) {
	switch {
	case n.Generic != nil && n.Instances == nil:
		g := n.Generic
		if g.ID == "" {
			return compiledNode{}, fmt.Errorf("%w: generic node requires an id", definition.ErrInvalidNode)
		}
		grouping, _, err := compileGrouping(g.Grouping)
		if err != nil {
			return compiledNode{}, err
		}
		return compiledNode{generic: &definition.GenericNodeDefinition{Node: definition.SourceGenericNode{
			ID: g.ID,
			NodeProps: definition.NodeProps{
				Label:             formatter.Text(g.Label),
				HasChildren:       g.HasChildren,
				AutoExpand:        g.AutoExpand,
				SupportsFiltering: g.SupportsFiltering,
				ExtendedData:      g.ExtendedData,
				Processing: node.ProcessingParams{
					HideIfNoChildren: g.HideIfNoChildren,
					HideInHierarchy:  g.HideInHierarchy,
					Grouping:         grouping,
				},
			},
		}}}, nil
	case n.Instances != nil && n.Generic == nil:
		c, err := compileInstances(*n.Instances)
		if err != nil {
			return compiledNode{}, err
		}
		return compiledNode{instances: c}, nil
	default:
		return compiledNode{}, fmt.Errorf("%w: node rule must set exactly one of generic and instances", definition.ErrInvalidNode)
	}
}

func compileInstances(r InstancesRule) (*compiledInstances, error) {
	class, err := metadata.NormalizeFullClassName(r.Class)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", definition.ErrInvalidQuery, err)
	}
	classes := r.Classes
	if len(classes) == 0 {
		classes = []string{class}
	}
	_, grouping, err := compileGrouping(r.Grouping)
	if err != nil {
		return nil, err
	}
	label := r.Label
	if label == "" {
		label = "this.label"
	}

	c := &compiledInstances{
		rule:    r,
		classes: classes,
		props: query.NodeSelectProps{
			ECInstanceID:        "this.id",
			FullClassName:       "this.class_name",
			DisplayLabel:        label,
			HasChildren:         r.HasChildren,
			HideIfNoChildren:    r.HideIfNoChildren,
			HideNodeInHierarchy: r.HideInHierarchy,
			AutoExpand:          r.AutoExpand,
			SupportsFiltering:   r.SupportsFiltering,
			Grouping:            grouping,
			ExtendedData:        r.ExtendedData,
		},
	}
	c.rule.Class = class

	// render once so malformed fragments fail here rather than per level
	if _, err := c.query(nil); err != nil {
		return nil, err
	}
	if r.Filter != "" {
		f, err := compileRowFilter(r.Filter)
		if err != nil {
			return nil, err
		}
		c.filter = f
	}
	return c, nil
}

// query renders the rule's query for a parent with the given instance IDs.
func (c *compiledInstances) query(parentIDs []string) (query.Query, error) {
	b, err := query.SelectInstanceNodes(DefaultInstancesTable, c.props)
	if err != nil {
		return query.Query{}, fmt.Errorf("%w: %w", definition.ErrInvalidQuery, err)
	}
	b = b.Where(sq.Eq{"this.class_name": c.classes})
	if col := c.rule.ParentColumn; col != "" {
		if len(parentIDs) > 0 {
			b = b.Where(sq.Eq{"this." + col: parentIDs})
		} else {
			b = b.Where(sq.Eq{"this." + col: nil})
		}
	}
	if c.rule.Where != "" {
		b = b.Where(sq.Expr("(" + c.rule.Where + ")"))
	}
	q, err := query.ToQuery(b)
	if err != nil {
		return query.Query{}, fmt.Errorf("%w: %w", definition.ErrInvalidQuery, err)
	}
	return q, nil
}

func (c *compiledInstances) nodesDefinition(parentIDs []string) (definition.InstanceNodesQueryDefinition, error) {
	q, err := c.query(parentIDs)
	if err != nil {
		return definition.InstanceNodesQueryDefinition{}, err
	}
	d := definition.InstanceNodesQueryDefinition{FullClassName: c.rule.Class, Query: q}
	if c.filter != nil {
		d.RowFilter = c.filter.Match
	}
	return d, nil
}

// DefineHierarchyLevel returns the nodes of every level whose selector matches the parent.
func (d *Definition) DefineHierarchyLevel(ctx context.Context, props definition.DefineLevelProps) ([]definition.NodesDefinition, error) {
	var parentIDs []string
	for _, k := range props.ParentNode.InstanceKeys() {
		parentIDs = append(parentIDs, k.ID)
	}

	var defs []definition.NodesDefinition
	for _, l := range d.levels {
		ok, err := d.matches(ctx, l.parent, props.ParentNode)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, n := range l.nodes {
			if n.generic != nil {
				defs = append(defs, *n.generic)
				continue
			}
			def, err := n.instances.nodesDefinition(parentIDs)
			if err != nil {
				return nil, err
			}
			defs = append(defs, def)
		}
	}
	return defs, nil
}

func (d *Definition) matches(ctx context.Context, s ParentSelector, parent *node.HierarchyNode) (bool, error) {
	switch {
	case s.Root:
		return parent == nil, nil
	case parent == nil:
		return false, nil
	case s.GenericID != "":
		k, ok := parent.Key.(nodekey.GenericKey)
		return ok && k.ID == s.GenericID, nil
	default:
		if !nodekey.IsInstances(parent.Key) {
			return false, nil
		}
		for _, ik := range nodekey.InstanceKeys(parent.Key) {
			derived, err := metadata.IsDerivedFrom(ctx, d.metadata, ik.ClassName, s.InstancesOf)
			if errors.Is(err, metadata.ErrClassNotFound) {
				continue
			}
			if err != nil {
				return false, err
			}
			if derived {
				return true, nil
			}
		}
		return false, nil
	}
}

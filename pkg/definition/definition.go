// Package definition describes how hierarchy levels are defined: which generic nodes and
// which instance node queries make up the children of a parent node.
package definition

import (
	"context"
	"errors"
	"fmt"

	"github.com/iTwin/presentation-hierarchies/pkg/formatter"
	"github.com/iTwin/presentation-hierarchies/pkg/node"
	"github.com/iTwin/presentation-hierarchies/pkg/nodekey"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
)

//go:generate mockgen -source definition.go -destination ../../internal/mocks/mock_definition.go -package mocks HierarchyDefinition

var (
	ErrInvalidGroupingDirective = errors.New("invalid grouping directive")
	ErrInvalidQuery             = errors.New("invalid query")
	ErrInvalidExpression        = errors.New("invalid expression")
	ErrInvalidNode              = errors.New("invalid node")
)

// Error is a failure to build a hierarchy definition.
type Error struct {
	// Definition names the offending definition.
	Definition string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("hierarchy definition %q: %v", e.Definition, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DefineLevelProps are the inputs of a level definition.
type DefineLevelProps struct {
	// ParentNode is nil for the root level.
	ParentNode *node.HierarchyNode
	// InstanceFilter is the filter requested for the level, if any. Definitions usually
	// ignore it as it is applied to every instance query.
	InstanceFilter *query.InstanceFilter
}

// HierarchyDefinition defines the levels of a hierarchy.
type HierarchyDefinition interface {
	DefineHierarchyLevel(ctx context.Context, props DefineLevelProps) ([]NodesDefinition, error)
}

// Func adapts a function to the HierarchyDefinition interface.
type Func func(ctx context.Context, props DefineLevelProps) ([]NodesDefinition, error)

func (f Func) DefineHierarchyLevel(ctx context.Context, props DefineLevelProps) ([]NodesDefinition, error) {
	return f(ctx, props)
}

// NodeParser is implemented by definitions that read instance node rows differently from
// DefaultParseNode.
type NodeParser interface {
	ParseNode(row query.Row) (*SourceInstanceNode, error)
}

// NodePreProcessor is implemented by definitions that adjust nodes before they are
// filtered, hidden or grouped. Returning a nil node drops it.
type NodePreProcessor interface {
	PreProcessNode(ctx context.Context, n *node.ProcessedNode) (*node.ProcessedNode, error)
}

// NodePostProcessor is implemented by definitions that adjust the nodes of a completed
// level, grouping nodes included.
type NodePostProcessor interface {
	PostProcessNode(ctx context.Context, n *node.ProcessedNode) (*node.ProcessedNode, error)
}

// NodesDefinition is one source of nodes of a level. The set of implementations is
// closed.
type NodesDefinition interface {
	isNodesDefinition()
}

// GenericNodeDefinition defines a single generic node.
type GenericNodeDefinition struct {
	Node SourceGenericNode
}

// InstanceNodesQueryDefinition defines instance nodes read from a query. Rows must carry
// the standard node columns, see query.SelectInstanceNodes.
type InstanceNodesQueryDefinition struct {
	FullClassName string
	Query         query.Query
	// RowFilter, when set, drops the rows it rejects before they are parsed.
	RowFilter func(ctx context.Context, row query.Row) (bool, error)
}

func (GenericNodeDefinition) isNodesDefinition()        {}
func (InstanceNodesQueryDefinition) isNodesDefinition() {}

// NodeProps are the attributes shared by generic and instance source nodes.
type NodeProps struct {
	Label formatter.ConcatenatedValue
	// HasChildren, when nil, leaves children to be determined by loading them.
	HasChildren       *bool
	AutoExpand        bool
	SupportsFiltering bool
	ExtendedData      map[string]any
	Processing        node.ProcessingParams
}

func (p NodeProps) toProcessed(key nodekey.Key, parentKeys []nodekey.Key) *node.ProcessedNode {
	children := node.ChildrenUnknown
	if p.HasChildren != nil {
		children = node.ChildrenOf(*p.HasChildren)
	}
	return &node.ProcessedNode{
		Key:               key,
		ParentKeys:        parentKeys,
		RawLabel:          p.Label,
		Children:          children,
		AutoExpand:        p.AutoExpand,
		SupportsFiltering: p.SupportsFiltering,
		ExtendedData:      p.ExtendedData,
		Processing:        p.Processing,
	}
}

// SourceGenericNode is a generic node as defined by a hierarchy definition.
type SourceGenericNode struct {
	ID     string
	Source string
	NodeProps
}

// ToProcessed returns the node in its pipeline form.
func (n SourceGenericNode) ToProcessed(parentKeys []nodekey.Key) *node.ProcessedNode {
	return n.NodeProps.toProcessed(nodekey.GenericKey{ID: n.ID, Source: n.Source}, parentKeys)
}

// SourceInstanceNode is an instance node as parsed from a query row.
type SourceInstanceNode struct {
	Key nodekey.InstanceKey
	NodeProps
}

// ToProcessed returns the node in its pipeline form.
func (n SourceInstanceNode) ToProcessed(parentKeys []nodekey.Key) *node.ProcessedNode {
	return n.NodeProps.toProcessed(nodekey.NewInstancesKey(n.Key), parentKeys)
}

// Validate checks level definitions before they are run.
func Validate(defs []NodesDefinition) error {
	for _, def := range defs {
		switch d := def.(type) {
		case GenericNodeDefinition:
			if d.Node.ID == "" {
				return &Error{Definition: "generic node", Err: fmt.Errorf("%w: empty id", ErrInvalidNode)}
			}
			if err := ValidateGrouping(d.Node.Processing.Grouping); err != nil {
				return &Error{Definition: d.Node.ID, Err: err}
			}
		case InstanceNodesQueryDefinition:
			if d.Query.SQL == "" {
				return &Error{Definition: d.FullClassName, Err: fmt.Errorf("%w: empty sql", ErrInvalidQuery)}
			}
		case nil:
			return &Error{Definition: "<nil>", Err: ErrInvalidNode}
		}
	}
	return nil
}

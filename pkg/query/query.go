//go:generate mockgen -source query.go -destination ../../internal/mocks/mock_query.go -package mocks query

// Package query defines the queries hierarchy levels are loaded with and the executor
// contract they run against.
package query

import (
	"context"
	"fmt"

	"github.com/iTwin/presentation-hierarchies/internal/stream"
)

// ErrIteratorDone is returned by RowIterator.Next once all rows were read.
var ErrIteratorDone = stream.ErrIteratorDone

// BindingType is the declared type of a query parameter.
type BindingType string

const (
	BindingString  BindingType = "string"
	BindingInt     BindingType = "int"
	BindingDouble  BindingType = "double"
	BindingBoolean BindingType = "boolean"
	BindingID      BindingType = "id"
	BindingNull    BindingType = "null"
)

// Binding is a positional query parameter.
type Binding struct {
	Type  BindingType `json:"type"`
	Value any         `json:"value"`
}

// Query is a textual query with positional "?" parameters.
type Query struct {
	SQL      string    `json:"sql"`
	Bindings []Binding `json:"bindings,omitempty"`
}

// Args returns the binding values in order.
func (q Query) Args() []any {
	args := make([]any, len(q.Bindings))
	for i, b := range q.Bindings {
		args[i] = b.Value
	}
	return args
}

func (q Query) String() string {
	return fmt.Sprintf("%s %v", q.SQL, q.Args())
}

// Row maps column aliases to values.
type Row map[string]any

// RowIterator yields query rows lazily. It is closed by explicitly calling Stop() or by
// calling Next() until it returns ErrIteratorDone.
type RowIterator interface {
	Next(ctx context.Context) (Row, error)
	Stop()
}

// Executor runs queries. Every call to Execute starts a new iteration.
type Executor interface {
	Execute(ctx context.Context, q Query) (RowIterator, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, q Query) (RowIterator, error)

func (f ExecutorFunc) Execute(ctx context.Context, q Query) (RowIterator, error) {
	return f(ctx, q)
}

// FromRows returns an iterator over rows.
func FromRows(rows []Row) RowIterator {
	return stream.FromSlice(rows)
}

// StaticExecutor answers queries from a fixed table of results keyed by SQL text. Unknown
// queries yield no rows.
type StaticExecutor struct {
	Results map[string][]Row
}

var _ Executor = (*StaticExecutor)(nil)

func (s *StaticExecutor) Execute(ctx context.Context, q Query) (RowIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return FromRows(s.Results[q.SQL]), nil
}

package rules

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common"

	"github.com/iTwin/presentation-hierarchies/pkg/definition"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
)

const (
	rowVariable = "row"

	// interruptCheckFrequency is the number of comprehension iterations between checks of
	// the evaluation context.
	interruptCheckFrequency = 100
)

var celRowEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable(rowVariable, cel.MapType(cel.StringType, cel.DynType)),
		cel.EagerlyValidateDeclarations(true),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to construct CEL row env: %v", err))
	}
	celRowEnv = env
}

// rowFilter is a compiled CEL predicate over query rows. It is safe for concurrent use.
type rowFilter struct {
	expression string
	program    cel.Program
}

func compileRowFilter(expression string) (*rowFilter, error) {
	source := common.NewStringSource(expression, "filter")
	ast, issues := celRowEnv.CompileSource(source)
	if issues != nil {
		if err := issues.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", definition.ErrInvalidExpression, err)
		}
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, fmt.Errorf("%w: expected a bool filter expression, but got '%s'", definition.ErrInvalidExpression, ast.OutputType())
	}
	prg, err := celRowEnv.Program(ast, cel.InterruptCheckFrequency(interruptCheckFrequency))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", definition.ErrInvalidExpression, err)
	}
	return &rowFilter{expression: expression, program: prg}, nil
}

// Match evaluates the predicate against row.
func (f *rowFilter) Match(ctx context.Context, row query.Row) (bool, error) {
	out, _, err := f.program.ContextEval(ctx, map[string]any{rowVariable: map[string]any(row)})
	if err != nil {
		return false, fmt.Errorf("evaluating %q: %w", f.expression, err)
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluating %q: expected a bool result, but got %T", f.expression, out.Value())
	}
	return v, nil
}

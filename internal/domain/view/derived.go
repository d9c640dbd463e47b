package view

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common"
	celtypes "github.com/google/cel-go/common/types"
)

// recordVar is the CEL variable holding the row being shaped.
const recordVar = "record"

var (
	envOnce sync.Once
	celEnv  *cel.Env
	envErr  error
)

func derivedEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		celEnv, envErr = cel.NewEnv(
			cel.Variable(recordVar, cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, envErr
}

// Derived is an output field computed from the record by a CEL expression,
// e.g. `record.first + " " + record.last`.
type Derived struct {
	name    string
	program cel.Program
}

// CompileDerived compiles a single derived field.
func CompileDerived(name, expression string) (Derived, error) {
	env, err := derivedEnv()
	if err != nil {
		return Derived{}, fmt.Errorf("derived field environment: %w", err)
	}
	ast, issues := env.CompileSource(common.NewStringSource(expression, name))
	if issues != nil && issues.Err() != nil {
		return Derived{}, fmt.Errorf("derived field %q: %w", name, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return Derived{}, fmt.Errorf("derived field %q: program construction: %w", name, err)
	}
	return Derived{name: name, program: prg}, nil
}

func compileDerived(exprs map[string]string) ([]Derived, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(exprs))
	for name := range exprs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Derived, 0, len(names))
	for _, name := range names {
		d, err := CompileDerived(name, exprs[name])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Name returns the output field name.
func (d Derived) Name() string { return d.name }

// Eval computes the field for one record.
func (d Derived) Eval(ctx context.Context, record map[string]any) (any, error) {
	out, _, err := d.program.ContextEval(ctx, map[string]any{recordVar: record})
	if err != nil {
		return nil, fmt.Errorf("derived field %q: %w", d.name, err)
	}
	if out == celtypes.NullValue {
		return nil, nil
	}
	return out.Value(), nil
}

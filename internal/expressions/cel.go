package expressions

import (
	"fmt"
	"sync"

	"context"

	"github.com/google/cel-go/cel"

	"github.com/rendis/conduit/pkg/schema"
)

// celScopeVars are the top-level variables exposed to CEL expressions.
// They mirror the data a condition node gathers:
//   - inputs:   map(string, dyn) — upstream node outputs keyed by node ID
//   - trigger:  map(string, dyn) — the run's trigger payload
//   - business: map(string, dyn) — auxiliary read-only business context
var celScopeVars = []string{"inputs", "trigger", "business"}

// CELEngine implements the Engine interface using Google's Common Expression
// Language, selectable per condition node via config {"engine": "cel"}.
// Thread-safe: compiled programs are cached and reused across goroutines.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a new CEL expression engine with a sandboxed environment.
func NewCELEngine() (*CELEngine, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	opts := make([]cel.EnvOption, 0, len(celScopeVars))
	for _, name := range celScopeVars {
		opts = append(opts, cel.Variable(name, mapType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate compiles (or retrieves from cache) a CEL expression and evaluates
// it against the provided data. Missing scope variables default to empty maps
// so expressions never fail on absent scopes.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(activation(data))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out.Value(), nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

// activation fills in empty maps for any scope variable missing from data,
// avoiding CEL runtime errors on unbound variables.
func activation(data map[string]any) map[string]any {
	act := make(map[string]any, len(celScopeVars))
	for _, name := range celScopeVars {
		if data != nil {
			if v, ok := data[name]; ok && v != nil {
				act[name] = v
				continue
			}
		}
		act[name] = map[string]any{}
	}
	return act
}

var _ Engine = (*CELEngine)(nil)

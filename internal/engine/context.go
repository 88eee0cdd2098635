package engine

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// ExecutionContext maps function identifiers to the raw results of the
// subtasks that already executed in this run. It is owned by one engine
// run and discarded when the run ends; results live on durably inside
// each subtask's result field.
type ExecutionContext struct {
	results map[string]any
}

// NewExecutionContext creates an empty context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{results: make(map[string]any)}
}

// Set records the result of a finished subtask.
func (c *ExecutionContext) Set(function string, result any) {
	c.results[function] = result
}

// Has reports whether the function already produced a result.
func (c *ExecutionContext) Has(function string) bool {
	_, ok := c.results[function]
	return ok
}

// Resolve extracts the value stored under key in function's result.
// A plain key is looked up directly; dotted keys are evaluated as a
// JSONPath into nested results.
func (c *ExecutionContext) Resolve(function, key string) (any, error) {
	result, ok := c.results[function]
	if !ok {
		return nil, fmt.Errorf("%w: function %q has no result in this run", ErrUnresolvedDependency, function)
	}

	if m, ok := result.(map[string]any); ok {
		if v, ok := m[key]; ok {
			return v, nil
		}
	}

	if strings.ContainsAny(key, ".[$") {
		expr := key
		if !strings.HasPrefix(expr, "$") {
			expr = "$." + expr
		}
		if path, err := jp.ParseString(expr); err == nil {
			if matches := path.Get(result); len(matches) == 1 {
				return matches[0], nil
			} else if len(matches) > 1 {
				return matches, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: key %q not present in result of %q", ErrMissingResultKey, key, function)
}

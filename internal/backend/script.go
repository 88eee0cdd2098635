package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dop251/goja"

	"allin1/orchestrator/pkg/logger"
)

// ScriptProvider is the built-in scriptable backend. Operations are
// registered as JavaScript function expressions and receive the resolved
// payload as their single argument. Each invocation runs in a fresh
// runtime.
type ScriptProvider struct {
	mu  sync.RWMutex
	ops map[string]scriptOp
}

type scriptOp struct {
	description string
	source      string
}

// NewScriptProvider creates an empty script provider.
func NewScriptProvider() *ScriptProvider {
	return &ScriptProvider{ops: make(map[string]scriptOp)}
}

// Register installs an operation. source must be a JavaScript function
// expression, e.g. "(payload) => ({echo: payload.text})".
func (p *ScriptProvider) Register(name, description, source string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops[name] = scriptOp{description: description, source: source}
}

// ListOperations implements Provider.
func (p *ScriptProvider) ListOperations(_ context.Context) ([]Operation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ops := make([]Operation, 0, len(p.ops))
	for name, op := range p.ops {
		ops = append(ops, Operation{Name: name, Description: op.description})
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops, nil
}

// Invoke implements Provider.
func (p *ScriptProvider) Invoke(_ context.Context, operation string, payload map[string]any) (map[string]any, error) {
	p.mu.RLock()
	op, ok := p.ops[operation]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script operation %q is not registered", operation)
	}

	vm := goja.New()
	if err := setupConsole(vm); err != nil {
		return nil, err
	}
	if err := vm.Set("payload", payload); err != nil {
		return nil, fmt.Errorf("bind payload: %w", err)
	}

	value, err := vm.RunString(fmt.Sprintf("(%s)(payload)", op.source))
	if err != nil {
		return nil, fmt.Errorf("script operation %q failed: %w", operation, err)
	}

	exported := value.Export()
	if m, ok := exported.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"value": exported}, nil
}

// setupConsole wires console.log and friends into the orchestrator log.
func setupConsole(vm *goja.Runtime) error {
	console := vm.NewObject()

	logFn := func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		logger.Debug("script: %v", args)
		return goja.Undefined()
	}

	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(name, logFn); err != nil {
			return err
		}
	}
	return vm.Set("console", console)
}

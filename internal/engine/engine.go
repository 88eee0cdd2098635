// Package engine walks a fully gathered task graph, resolving inter-step
// data dependencies, invoking action backends in order and handling the
// interactive authentication hand-offs that occur mid-execution.
package engine

import (
	"context"
	"fmt"
	"time"

	"allin1/orchestrator/internal/backend"
	"allin1/orchestrator/internal/metrics"
	"allin1/orchestrator/internal/store"
	"allin1/orchestrator/pkg/logger"
	"allin1/orchestrator/pkg/types"
)

// Backend is the action-execution boundary the engine drives. It is
// satisfied by *backend.Router; tests substitute fakes.
type Backend interface {
	CheckAuthorization(ctx context.Context, userID, backendID string) (bool, error)
	InitiateAuthorization(ctx context.Context, userID, backendID string) (*backend.AuthChallengeInfo, error)
	ListOperations(ctx context.Context, backendID string) ([]backend.Operation, error)
	Invoke(ctx context.Context, userID, backendID, operation string, payload map[string]any) (map[string]any, error)
	OperationOverride(backendID, function string) (string, bool)
}

// Engine executes task graphs one subtask at a time.
type Engine struct {
	store    store.Store
	backend  Backend
	recorder *metrics.Recorder
}

// New creates an engine. recorder may be nil.
func New(s store.Store, b Backend, recorder *metrics.Recorder) *Engine {
	return &Engine{store: s, backend: b, recorder: recorder}
}

// Execute performs every subtask of the graph in sequence, persisting
// progress after each one. On any non-recovered failure the graph is
// persisted as failed, with the offending subtask's result describing
// the error, before the failure is returned.
func (e *Engine) Execute(ctx context.Context, g *types.TaskGraph, cb types.SessionCallback) error {
	logger.Info("execution: starting task graph %s (%d subtasks)", g.ID, len(g.Subtasks))

	g.Status = types.StatusExecuting
	if err := e.persist(ctx, g); err != nil {
		return e.fail(ctx, g, nil, err)
	}
	if err := cb.OnExecutionStart(ctx, g); err != nil {
		return e.fail(ctx, g, nil, err)
	}

	execCtx := NewExecutionContext()

	for _, sub := range g.Subtasks {
		if err := e.executeSubtask(ctx, g, sub, execCtx, cb); err != nil {
			return e.fail(ctx, g, sub, err)
		}
		logger.Info("execution: subtask %q completed", sub.Name)
		if err := cb.OnSubtaskComplete(ctx, sub.Name); err != nil {
			return e.fail(ctx, g, sub, err)
		}
	}

	g.Status = types.StatusExecuted
	if err := e.persist(ctx, g); err != nil {
		return err
	}
	logger.Info("execution: task graph %s executed successfully", g.ID)
	return nil
}

// executeSubtask runs one step. Authentication challenges suspend inside
// ensureAuthorized; after a confirmed challenge the same subtask resumes
// from the authorization check, never skipping ahead.
func (e *Engine) executeSubtask(ctx context.Context, g *types.TaskGraph, sub *types.Subtask, execCtx *ExecutionContext, cb types.SessionCallback) error {
	// Internal steps only carry data forward.
	if sub.Backend == types.BackendNone {
		data := make(map[string]any, len(sub.Payload))
		for field, v := range sub.Payload {
			data[field] = v.Interface()
		}
		execCtx.Set(sub.Function, data)
		sub.Result = types.InternalResult
		return e.persist(ctx, g)
	}

	payload, err := e.resolvePayload(sub, execCtx)
	if err != nil {
		return err
	}

	if err := e.ensureAuthorized(ctx, g.UserID, sub.Backend, cb); err != nil {
		return err
	}

	operation, err := e.selectOperation(ctx, sub)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := e.backend.Invoke(ctx, g.UserID, sub.Backend, operation, payload)
	if e.recorder != nil {
		e.recorder.RecordInvoke(sub.Backend, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("invoke %s on %s: %w", operation, sub.Backend, err)
	}

	sub.Result = result
	execCtx.Set(sub.Function, result)
	return e.persist(ctx, g)
}

// resolvePayload materializes every payload value, replacing RESULT
// references with values from the execution context. These failures are
// terminal and are not retried.
func (e *Engine) resolvePayload(sub *types.Subtask, execCtx *ExecutionContext) (map[string]any, error) {
	resolved := make(map[string]any, len(sub.Payload))
	for _, field := range sub.PayloadKeys() {
		v := sub.Payload[field]
		switch v.Kind {
		case types.ValueResultRef:
			val, err := execCtx.Resolve(v.Fn, v.Key)
			if err != nil {
				return nil, fmt.Errorf("payload field %q: %w", field, err)
			}
			resolved[field] = val
		case types.ValueUserInput:
			return nil, fmt.Errorf("payload field %q: %w (parameter %q)", field, ErrUnresolvedInput, v.Param)
		default:
			resolved[field] = v.Literal
		}
	}
	return resolved, nil
}

// ensureAuthorized blocks until the user is authorized against the
// backend. Each unauthorized check raises a challenge over the session
// channel; a confirmation refreshes the authorization view and re-checks.
// Any reply other than confirmation abandons the run.
func (e *Engine) ensureAuthorized(ctx context.Context, userID, backendID string, cb types.SessionCallback) error {
	for {
		ok, err := e.backend.CheckAuthorization(ctx, userID, backendID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		info, err := e.backend.InitiateAuthorization(ctx, userID, backendID)
		if err != nil {
			return err
		}

		logger.Warn("execution: backend %s requires authorization for user %s", backendID, userID)
		confirmed, err := cb.OnAuthChallenge(ctx, info.Challenge())
		if err != nil {
			return err
		}
		if !confirmed {
			return fmt.Errorf("%w: backend %s", ErrAuthenticationAbandoned, backendID)
		}
		// Confirmed: loop re-reads the authorization state and retries
		// this same subtask.
	}
}

// selectOperation picks the concrete backend operation for the subtask's
// function identifier. An explicit override wins; otherwise the two-pass
// heuristic runs over the backend's operation listing.
func (e *Engine) selectOperation(ctx context.Context, sub *types.Subtask) (string, error) {
	if op, ok := e.backend.OperationOverride(sub.Backend, sub.Function); ok {
		return op, nil
	}

	ops, err := e.backend.ListOperations(ctx, sub.Backend)
	if err != nil {
		return "", fmt.Errorf("list operations of %s: %w", sub.Backend, err)
	}

	op, ok := matchOperation(sub.Function, ops)
	if !ok {
		return "", fmt.Errorf("%w: function %q on backend %s", ErrNoMatchingOperation, sub.Function, sub.Backend)
	}
	return op, nil
}

// fail records the failure on the offending subtask, persists the graph
// in its failed state and propagates the error.
func (e *Engine) fail(ctx context.Context, g *types.TaskGraph, sub *types.Subtask, cause error) error {
	logger.Error("execution: task graph %s failed: %v", g.ID, cause)
	g.Status = types.StatusFailed
	if sub != nil {
		sub.Result = fmt.Sprintf("Error: %v", cause)
	}
	if err := e.persist(ctx, g); err != nil {
		logger.Error("execution: persisting failed graph %s: %v", g.ID, err)
	}
	return cause
}

func (e *Engine) persist(ctx context.Context, g *types.TaskGraph) error {
	g.Touch()
	if err := e.store.Update(ctx, g); err != nil {
		return fmt.Errorf("persist task graph %s: %w", g.ID, err)
	}
	return nil
}

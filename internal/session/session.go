// Package session ties the three phases together: plan creation,
// interactive information gathering over a session channel, and
// execution. It owns the graph lifecycle from creation to a terminal
// state.
package session

import (
	"context"
	"errors"
	"fmt"

	"allin1/orchestrator/internal/gather"
	"allin1/orchestrator/internal/store"
	"allin1/orchestrator/pkg/logger"
	"allin1/orchestrator/pkg/types"
)

var (
	// ErrNotOwner is returned when a session attaches to a graph that
	// belongs to another user.
	ErrNotOwner = errors.New("task graph belongs to another user")

	// ErrNotRunnable is returned when Run is invoked on a graph in a
	// terminal or already-executing state.
	ErrNotRunnable = errors.New("task graph is not runnable")
)

// PlanGenerator produces a task graph from a natural-language query. It
// is satisfied by *llm.Planner.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, query string) (*types.TaskGraph, error)
}

// Executor walks a gathered graph. It is satisfied by *engine.Engine.
type Executor interface {
	Execute(ctx context.Context, g *types.TaskGraph, cb types.SessionCallback) error
}

// Orchestrator is the application core behind both the REST surface and
// the session websocket.
type Orchestrator struct {
	planner   PlanGenerator
	questions gather.QuestionService
	engine    Executor
	store     store.Store
}

// New wires an orchestrator from its phase implementations.
func New(planner PlanGenerator, questions gather.QuestionService, engine Executor, s store.Store) *Orchestrator {
	return &Orchestrator{planner: planner, questions: questions, engine: engine, store: s}
}

// CreatePlan turns a query into a persisted pending task graph and
// returns it with its assigned identifier.
func (o *Orchestrator) CreatePlan(ctx context.Context, userID, query string) (*types.TaskGraph, error) {
	g, err := o.planner.GeneratePlan(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	g.UserID = userID
	g.Status = types.StatusPending
	id, err := o.store.Create(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("persist plan: %w", err)
	}
	g.ID = id

	logger.Info("session: created task graph %s for user %s (%d subtasks)", id, userID, len(g.Subtasks))
	return g, nil
}

// Get loads a graph, enforcing ownership.
func (o *Orchestrator) Get(ctx context.Context, userID, graphID string) (*types.TaskGraph, error) {
	g, err := o.store.Get(ctx, graphID)
	if err != nil {
		return nil, err
	}
	if g.UserID != userID {
		return nil, ErrNotOwner
	}
	return g, nil
}

// Run drives one graph through gathering and execution over the given
// session callback. It is safe to call on a freshly created graph, a
// graph mid-gathering (the session resumes at the first unanswered
// parameter) and a fully gathered graph (gathering is a no-op).
func (o *Orchestrator) Run(ctx context.Context, userID, graphID string, cb types.SessionCallback) error {
	g, err := o.Get(ctx, userID, graphID)
	if err != nil {
		return err
	}
	if g.Status.Terminal() || g.Status == types.StatusExecuting {
		return fmt.Errorf("%w: status %s", ErrNotRunnable, g.Status)
	}

	coord := gather.NewCoordinator(o.store, o.questions, g)
	q, err := coord.Start(ctx)
	if err != nil {
		return err
	}
	for q != nil {
		answer, err := cb.OnQuestion(ctx, q)
		if err != nil {
			return err
		}
		if q, err = coord.Resume(ctx, answer); err != nil {
			return err
		}
	}

	if !g.Status.ReadyForExecution() {
		return fmt.Errorf("%w: gathering left status %s", ErrNotRunnable, g.Status)
	}

	return o.engine.Execute(ctx, g, cb)
}

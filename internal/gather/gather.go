// Package gather drives the interactive information-gathering phase:
// one question at a time, in subtask order, until every user-input
// placeholder in the graph has a concrete value.
//
// 信息收集阶段：逐个参数向用户提问，答案立即写回任务图并持久化。
package gather

import (
	"context"
	"errors"
	"fmt"

	"allin1/orchestrator/internal/store"
	"allin1/orchestrator/pkg/logger"
	"allin1/orchestrator/pkg/types"
)

// ErrNotGatherable is returned when a graph is in a state the gathering
// phase cannot act on (already executing, executed or failed).
var ErrNotGatherable = errors.New("task graph is not in a gatherable state")

// QuestionService phrases one question for a missing parameter. It is
// satisfied by *llm.QuestionGenerator.
type QuestionService interface {
	GenerateQuestion(ctx context.Context, taskContext, paramName string, transcript []types.Exchange) (string, error)
}

// Coordinator runs one gathering session over one task graph. It is an
// explicit state machine: Start returns the first question (or nil when
// nothing is missing), Resume consumes one answer and returns the next
// question (or nil when gathering just completed). The caller owns the
// delivery channel; the coordinator owns the graph mutations.
//
// All progress lives in the persisted graph, so a coordinator built from
// a reloaded graph picks up exactly where a crashed one stopped.
type Coordinator struct {
	store     store.Store
	questions QuestionService

	graph    *types.TaskGraph
	pending  *types.Placeholder
	asked    string
	history  []types.Exchange
}

// NewCoordinator creates a coordinator over an already loaded graph.
func NewCoordinator(s store.Store, q QuestionService, g *types.TaskGraph) *Coordinator {
	return &Coordinator{store: s, questions: q, graph: g}
}

// Graph returns the graph being gathered.
func (c *Coordinator) Graph() *types.TaskGraph {
	return c.graph
}

// Done reports whether gathering has completed for this graph.
func (c *Coordinator) Done() bool {
	return c.graph.Status.ReadyForExecution()
}

// Start begins (or resumes) gathering. It returns the first outstanding
// question, or nil when the graph has no unresolved user inputs; in that
// case the graph is already marked completed and persisted.
func (c *Coordinator) Start(ctx context.Context) (*types.Question, error) {
	switch c.graph.Status {
	case types.StatusPending, types.StatusInProgress, types.StatusCompleted:
	default:
		return nil, fmt.Errorf("%w: status %s", ErrNotGatherable, c.graph.Status)
	}
	return c.next(ctx)
}

// Resume records the answer to the outstanding question and advances to
// the next one. Calling Resume with no outstanding question is an error.
func (c *Coordinator) Resume(ctx context.Context, answer string) (*types.Question, error) {
	if c.pending == nil {
		return nil, errors.New("no outstanding question to answer")
	}

	ph := c.pending
	c.pending = nil
	c.history = append(c.history, types.Exchange{Question: c.asked, Answer: answer})

	logger.Debug("gather: parameter %q of subtask %q answered", ph.Value.Param, ph.Subtask.Name)
	ph.Subtask.Payload[ph.Field] = types.Concrete(answer)

	// Persist after every answer so an interrupted session loses at most
	// the answer in flight.
	c.graph.Touch()
	if err := c.store.Update(ctx, c.graph); err != nil {
		return nil, fmt.Errorf("persist answer for %q: %w", ph.Value.Param, err)
	}

	return c.next(ctx)
}

// next re-derives the outstanding placeholders from the current graph
// state and issues a question for the first one, or completes gathering.
func (c *Coordinator) next(ctx context.Context) (*types.Question, error) {
	remaining := c.graph.FindPlaceholders(types.ValueUserInput)
	if len(remaining) == 0 {
		return nil, c.complete(ctx)
	}

	if c.graph.Status != types.StatusInProgress {
		c.graph.Status = types.StatusInProgress
		c.graph.Touch()
		if err := c.store.Update(ctx, c.graph); err != nil {
			return nil, fmt.Errorf("persist gathering start: %w", err)
		}
	}

	ph := remaining[0]
	question, err := c.questions.GenerateQuestion(ctx, c.graph.Task, ph.Value.Param, c.history)
	if err != nil {
		return nil, fmt.Errorf("generate question for %q: %w", ph.Value.Param, err)
	}

	c.pending = &ph
	c.asked = question

	return &types.Question{ParamName: ph.Value.Param, Question: question}, nil
}

func (c *Coordinator) complete(ctx context.Context) error {
	if c.graph.Status == types.StatusCompleted {
		return nil
	}
	c.graph.Status = types.StatusCompleted
	c.graph.Touch()
	if err := c.store.Update(ctx, c.graph); err != nil {
		return fmt.Errorf("persist gathering completion: %w", err)
	}
	logger.Info("gather: task graph %s completed information gathering", c.graph.ID)
	return nil
}

package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"allin1/orchestrator/pkg/logger"
	"allin1/orchestrator/pkg/types"
)

// plannerSystemPrompt instructs the model on its role, the placeholder
// grammar and the required JSON shape. Low temperature keeps the output
// structured.
const plannerSystemPrompt = `You are a planner agent for a task orchestration assistant.
Your job is to decompose a user request into a structured JSON task graph.
Strictly adhere to the JSON schema shown below. Do not add any extra text,
explanations or markdown fences.

Break the request down into ordered subtasks. For each subtask provide:
- "subtask_name": a short human-readable step name
- "function": a snake_case semantic operation name
- "backend": the identifier of the action system performing the step, or
  "none" for internal steps that only carry data forward
- "payload": an object mapping parameter names to values

For payload values:
1. Extract any parameter you can directly from the user's request.
2. If a required parameter is MISSING, use the placeholder
   "USER_INPUT:<parameter_name>".
3. If a parameter comes from the result of an earlier subtask, use the
   placeholder "RESULT:<function>:<result_key>". It may only reference a
   function that appears earlier in the list.

Example output for "Book a flight to NYC for next Friday":
{
    "user_query": "Book a flight to NYC for next Friday",
    "task": "Flight Booking",
    "subtasks": [
        {
            "subtask_name": "Search for flights",
            "function": "search_flights",
            "backend": "flights",
            "payload": {
                "destination": "NYC",
                "date": "next Friday",
                "departure_city": "USER_INPUT:departure_city"
            }
        },
        {
            "subtask_name": "Book the selected flight",
            "function": "book_flight",
            "backend": "flights",
            "payload": {
                "flight_id": "RESULT:search_flights:flight_id",
                "payment_details": "USER_INPUT:payment_method"
            }
        }
    ]
}`

// Planner turns a free-form user request into a task graph.
type Planner struct {
	model model.BaseChatModel
}

// NewPlanner creates a planner on top of the given chat model.
func NewPlanner(m model.BaseChatModel) *Planner {
	return &Planner{model: m}
}

// GeneratePlan asks the model to decompose the request and parses the
// reply into a task graph. On any failure no partial graph is returned.
func (p *Planner) GeneratePlan(ctx context.Context, query string) (*types.TaskGraph, error) {
	messages := []*schema.Message{
		schema.SystemMessage(plannerSystemPrompt),
		schema.UserMessage(query),
	}

	resp, err := p.model.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	graph, err := types.Parse([]byte(extractJSON(resp.Content)))
	if err != nil {
		logger.Warn("planner returned unparseable output: %v", err)
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	graph.Query = query
	logger.Info("generated task graph with %d subtasks for task %q", len(graph.Subtasks), graph.Task)
	return graph, nil
}

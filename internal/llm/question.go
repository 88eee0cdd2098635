package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"allin1/orchestrator/pkg/types"
)

// questionSystemPrompt keeps the generated questions short, friendly and
// free of preamble.
const questionSystemPrompt = `You are a helpful assistant. Your job is to ask a user clear,
friendly questions to gather missing information for a task they want to
accomplish. Use the conversation so far to sound natural and avoid
repeating yourself. Do not add any preamble like "Great, the next
question is:". Return only the question itself.`

const questionUserTemplate = `Conversation so far:
%s
Task context: the user wants to '%s'.
Parameter to ask for: '%s'

Your question:`

// QuestionGenerator produces one natural-language question per unfilled
// parameter, phrased against the rolling transcript of the current
// gathering session.
type QuestionGenerator struct {
	model model.BaseChatModel
}

// NewQuestionGenerator creates a question generator on top of the given
// chat model.
func NewQuestionGenerator(m model.BaseChatModel) *QuestionGenerator {
	return &QuestionGenerator{model: m}
}

// GenerateQuestion implements the question-generation contract consumed
// by the gathering coordinator. Failure is fatal to the current gathering
// step and is not retried here.
func (g *QuestionGenerator) GenerateQuestion(ctx context.Context, taskContext, paramName string, transcript []types.Exchange) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(questionSystemPrompt),
		schema.UserMessage(fmt.Sprintf(questionUserTemplate,
			renderTranscript(transcript), taskContext, paramName)),
	}

	resp, err := g.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("question generation failed for %q: %w", paramName, err)
	}

	question := strings.TrimSpace(resp.Content)
	if question == "" {
		return "", fmt.Errorf("question generation returned empty output for %q", paramName)
	}
	return question, nil
}

func renderTranscript(transcript []types.Exchange) string {
	if len(transcript) == 0 {
		return "(none yet)\n"
	}
	var b strings.Builder
	for _, ex := range transcript {
		fmt.Fprintf(&b, "Assistant: %s\nUser: %s\n", ex.Question, ex.Answer)
	}
	return b.String()
}

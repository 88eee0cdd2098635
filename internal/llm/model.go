// Package llm implements the two language-model calls the orchestrator
// consumes: plan generation and question generation. Both run on the same
// chat model configuration with different temperatures.
package llm

import (
	"context"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"allin1/orchestrator/internal/config"
)

// NewChatModel 创建 LLM 聊天模型
func NewChatModel(ctx context.Context, cfg config.LLMConfig, temperature float32) (model.ToolCallingChatModel, error) {
	chatConfig := &openai.ChatModelConfig{
		Model:  cfg.Model,
		APIKey: cfg.APIKey,
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch cfg.Provider {
		case "openai":
			baseURL = "https://api.openai.com/v1"
		case "deepseek":
			baseURL = "https://api.deepseek.com/v1"
		}
	}
	if baseURL != "" {
		chatConfig.BaseURL = baseURL
	}

	if temperature > 0 {
		t := temperature
		chatConfig.Temperature = &t
	}

	return openai.NewChatModel(ctx, chatConfig)
}

// extractJSON strips markdown code fences and surrounding prose from a
// model reply, leaving the outermost JSON object. Models occasionally
// wrap structured output despite instructions not to.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

package talk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odysseus0/campusfeed/internal/logger"
	"github.com/odysseus0/campusfeed/internal/model"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "groq/compound-mini"
)

var errNoChoices = errors.New("no response from model")

// Completion is one model reply plus the bookkeeping stored in talk logs.
type Completion struct {
	Text      string
	Model     string
	RequestID string
	Usage     *model.Usage
}

// Completer sends a single user prompt to a chat model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// OpenAICompleter talks to any OpenAI-compatible chat completion endpoint.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter returns nil when apiKey is empty so callers can treat
// the assistant as unconfigured.
func NewOpenAICompleter(apiKey, baseURL, modelName string) *OpenAICompleter {
	if apiKey == "" {
		return nil
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = baseURL
	if modelName == "" {
		modelName = DefaultModel
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(cfg), model: modelName}
}

func (c *OpenAICompleter) Model() string {
	return c.model
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (Completion, error) {
	logger.Debug("chat completion request", "model", c.model, "prompt_length", len(prompt))
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	duration := time.Since(start)
	if err != nil {
		logger.Error("chat completion failed", "error", err, "duration", duration, "model", c.model)
		return Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		logger.Error("chat completion returned no choices", "duration", duration, "model", c.model)
		return Completion{}, errNoChoices
	}

	out := Completion{
		Text:      resp.Choices[0].Message.Content,
		Model:     resp.Model,
		RequestID: resp.ID,
		Usage: &model.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if out.Model == "" {
		out.Model = c.model
	}
	logger.Debug("chat completion response",
		"model", out.Model,
		"duration", duration,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_tokens", resp.Usage.TotalTokens,
		"response_length", len(out.Text))
	return out, nil
}

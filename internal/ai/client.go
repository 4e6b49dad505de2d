// Package ai wraps the two LLM collaborators the practice flow depends on:
// the question generator and the free-text answer judge. Both run behind a
// bounded timeout and surface typed errors; neither retries internally:
// generation retry is the caller's call, and a failed judgement degrades to
// a local heuristic instead.
package ai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/dmitryplyaskin/pathwise-backend/internal/config"
)

// Completer produces a single JSON chat completion. It exists so the
// generator and judge can be exercised without a live API.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client is the OpenAI-backed Completer.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient builds a Client from application config.
func NewClient(cfg *config.Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.OpenAIChatModel,
	}
}

// Complete sends one system+user exchange and returns the raw response text.
// The request is forced into JSON-object mode so downstream parsing can rely
// on a single JSON document.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat response")
	}
	return resp.Choices[0].Message.Content, nil
}

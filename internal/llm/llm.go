package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/examhell/internal/llm/prompts"
	"github.com/pavelanni/examhell/internal/model"
)

// ErrEmptyReply is returned when the model answers with no choices or blank content.
var ErrEmptyReply = errors.New("LLM returned an empty reply")

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api    *openai.Client
	model  string
	system prompts.SystemData
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string, system prompts.SystemData) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:    openai.NewClientWithConfig(config),
		model:  modelName,
		system: system,
	}
}

// Ping checks that the endpoint is reachable and the API key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Reply sends the chat history to the model and returns the assistant's
// answer. Generated questions are expected inside a <QUESTIONS> block of the
// returned text.
func (c *Client) Reply(ctx context.Context, history []model.ChatMessage) (string, error) {
	chatMsgs, err := c.buildMessages(history)
	if err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMsgs,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyReply
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "tokens", resp.Usage.TotalTokens, "raw", raw)
	return raw, nil
}

func (c *Client) buildMessages(history []model.ChatMessage) ([]openai.ChatCompletionMessage, error) {
	systemPrompt, err := prompts.System(c.system)
	if err != nil {
		return nil, fmt.Errorf("build system prompt: %w", err)
	}

	chatMsgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range history {
		if m.Role == model.RoleAssistant {
			chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			})
			continue
		}
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompts.SanitizeUserMessage(m.Content),
		})
	}
	return chatMsgs, nil
}

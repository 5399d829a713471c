package assistant

import (
	"context"
	"errors"

	"github.com/opensource-finance/quantra/internal/model"
)

var errEmptyCompletion = errors.New("llm returned no choices")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChatCompleter calls an OpenAI-compatible chat completions endpoint.
type ChatCompleter struct {
	client *model.RemoteClient
	model  string
}

// NewChatCompleter wraps a client pointed at the API base URL.
func NewChatCompleter(client *model.RemoteClient, modelName string) *ChatCompleter {
	return &ChatCompleter{client: client, model: modelName}
}

// Complete sends one system and one user message.
func (c *ChatCompleter) Complete(ctx context.Context, system, message string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: message},
		},
	}

	var resp chatResponse
	if err := c.client.Post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

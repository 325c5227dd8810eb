package provider

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
)

// OpenAI answers through the chat completions API
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI provider. baseURL may be empty.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (o *OpenAI) Name() string { return "openai" }

// Complete sends instructions and context as the system message and the raw
// question as the user message
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: req.Question},
		},
	})
	if err != nil {
		return "", &Error{Backend: o.Name(), Op: "chat completion", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Backend: o.Name(), Op: "chat completion", Err: errors.New("no choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}

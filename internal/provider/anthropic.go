package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const anthropicAPI = "https://api.anthropic.com/v1/messages"

// Anthropic answers through the Messages API
type Anthropic struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewAnthropic creates an Anthropic provider. baseURL may be empty.
func NewAnthropic(apiKey, model, baseURL string) *Anthropic {
	endpoint := anthropicAPI
	if baseURL != "" {
		endpoint = strings.TrimSuffix(baseURL, "/") + "/v1/messages"
	}
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &Anthropic{
		apiKey:   apiKey,
		model:    model,
		endpoint: endpoint,
		client:   http.DefaultClient,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	text, err := a.callAPI(ctx, req)
	if err != nil {
		return "", &Error{Backend: a.Name(), Op: "messages", Err: err}
	}
	return text, nil
}

func (a *Anthropic) callAPI(ctx context.Context, req Request) (string, error) {
	reqBody := apiRequest{
		Model:     a.model,
		MaxTokens: 1024,
		System:    systemPrompt(req),
		Messages: []apiMessage{
			{Role: "user", Content: req.Question},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("api error: %s", apiResp.Error.Message)
	}

	var sb strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("empty response")
	}
	return sb.String(), nil
}

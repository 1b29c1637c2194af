package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOpenAIBaseURL points at MiniMax, which exposes an OpenAI-compatible
// chat completions endpoint. DeepSeek and OpenAI itself work the same way.
const DefaultOpenAIBaseURL = "https://api.minimaxi.chat/v1"

// openAIEngine is the Engine backed by any OpenAI-compatible
// /chat/completions endpoint.
type openAIEngine struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIEngine returns an Engine that calls an OpenAI-compatible API.
//   - apiKey:  bearer token for the provider
//   - model:   e.g. "MiniMax-Text-01" or "deepseek-chat"
//   - baseURL: API root without the /chat/completions suffix; empty means MiniMax
func NewOpenAIEngine(apiKey, model, baseURL string) Engine {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return &openAIEngine{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

func (c *openAIEngine) Name() string { return "openai:" + c.model }

// ─── OPENAI-COMPATIBLE API SHAPES ────────────────────────────────────────────

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// responseFormat instructs the model to return valid JSON.
type responseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// ─── IMPLEMENTATION ───────────────────────────────────────────────────────────

// Complete sends the turns as chat messages and returns the first choice.
// All three roles are accepted natively.
func (c *openAIEngine) Complete(ctx context.Context, req Request) (string, error) {
	turns := NormalizeRoles(req.Turns, RoleUser, RoleSystem, RoleUser, RoleAssistant)

	body := openAIRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    make([]openAIMessage, 0, len(turns)),
	}
	for _, t := range turns {
		body.Messages = append(body.Messages, openAIMessage{Role: string(t.Role), Content: t.Content})
	}
	if req.ForceJSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	return c.call(ctx, body)
}

// call sends one request to the chat completions endpoint and returns the
// text content of the first choice.
func (c *openAIEngine) call(ctx context.Context, reqBody openAIRequest) (string, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("openai: read response: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("openai: unmarshal response (status %d): %w", resp.StatusCode, err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("openai: API error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai: unexpected status %d: %.200s", resp.StatusCode, string(respBytes))
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}

	return parsed.Choices[0].Message.Content, nil
}

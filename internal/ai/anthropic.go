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

const defaultAnthropicBaseURL = "https://api.anthropic.com"

// anthropicEngine is the Engine backed by the Anthropic Messages API.
type anthropicEngine struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropicEngine returns an Engine that calls the Anthropic API.
//   - apiKey:  your ANTHROPIC_API_KEY
//   - model:   e.g. "claude-sonnet-4-5"
//   - baseURL: empty means the public API
func NewAnthropicEngine(apiKey, model, baseURL string) Engine {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &anthropicEngine{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

func (c *anthropicEngine) Name() string { return "anthropic:" + c.model }

// ─── ANTHROPIC API SHAPES ─────────────────────────────────────────────────────

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ─── IMPLEMENTATION ───────────────────────────────────────────────────────────

// anthropicMaxTokens is used when the request leaves MaxTokens unset; the
// Messages API rejects requests without it.
const anthropicMaxTokens = 1024

// Complete hoists system turns into the top-level system field, since the
// Messages API only accepts user and assistant inside messages. Any other
// role is reassigned to user. ForceJSON has no equivalent here and is ignored.
func (c *anthropicEngine) Complete(ctx context.Context, req Request) (string, error) {
	system, rest := splitSystem(req.Turns)
	rest = NormalizeRoles(rest, RoleUser, RoleUser, RoleAssistant)
	if len(rest) == 0 {
		return "", fmt.Errorf("anthropic: request has no user turns")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}

	body := anthropicRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      system,
		Messages:    make([]anthropicMessage, 0, len(rest)),
	}
	for _, t := range rest {
		body.Messages = append(body.Messages, anthropicMessage{Role: string(t.Role), Content: t.Content})
	}

	return c.call(ctx, body)
}

// call sends one request to the Anthropic Messages API and returns the
// text content of the first text block.
func (c *anthropicEngine) call(ctx context.Context, reqBody anthropicRequest) (string, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/messages",
		bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", fmt.Errorf("anthropic: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic: http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB cap
	if err != nil {
		return "", fmt.Errorf("anthropic: read response body: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("anthropic: unmarshal response (status %d): %w", resp.StatusCode, err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("anthropic: API error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic: unexpected status %d: %.200s", resp.StatusCode, string(respBytes))
	}

	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("anthropic: no text content in response")
}

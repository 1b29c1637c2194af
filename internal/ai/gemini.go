package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// geminiEngine is the Engine backed by the Gemini API through the genai SDK.
type geminiEngine struct {
	client *genai.Client
	model  string
}

// NewGeminiEngine creates the genai client once; the returned Engine reuses
// it for every call. baseURL is optional and only used to redirect traffic
// (tests, proxies).
func NewGeminiEngine(ctx context.Context, apiKey, model, baseURL string) (Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &geminiEngine{client: client, model: model}, nil
}

func (e *geminiEngine) Name() string { return "gemini:" + e.model }

// Complete maps the conversation onto Gemini's two-role model: system turns
// become the SystemInstruction, assistant turns become "model", anything
// else is sent as "user".
func (e *geminiEngine) Complete(ctx context.Context, req Request) (string, error) {
	system, rest := splitSystem(req.Turns)
	rest = NormalizeRoles(rest, RoleUser, RoleUser, RoleAssistant)
	if len(rest) == 0 {
		return "", fmt.Errorf("gemini: request has no user turns")
	}

	contents := make([]*genai.Content, 0, len(rest))
	for _, t := range rest {
		role := genai.Role(genai.RoleUser)
		if t.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.ForceJSON {
		config.ResponseMIMEType = "application/json"
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return text, nil
}

// Package ai defines the reasoning-engine contract used by the analysis
// pipeline and provides OpenAI-compatible, Anthropic and Gemini backends.
package ai

import (
	"context"
	"errors"
)

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged piece of text sent to an engine.
type Turn struct {
	Role    Role
	Content string
}

// Request carries the turns and generation parameters for one completion.
type Request struct {
	Turns       []Turn
	Temperature float64
	MaxTokens   int

	// ForceJSON asks the engine to emit a JSON object. Backends without a
	// structured-output mode ignore it; callers must not rely on compliance.
	ForceJSON bool
}

// Engine is the interface the analysis pipeline uses to reach a reasoning
// engine. Tests inject a stub that returns canned text.
type Engine interface {
	// Complete sends the request and returns the raw text of one completion.
	// The text is unvalidated: it may be prose, fenced JSON, or anything else.
	//
	// Implementations must be safe to call concurrently.
	Complete(ctx context.Context, req Request) (string, error)

	// Name identifies the backend in logs, e.g. "openai:MiniMax-Text-01".
	Name() string
}

// Transport-level failures, as classified by the stage runner.
var (
	ErrEngineUnavailable = errors.New("ai: engine unavailable")
	ErrEngineTimeout     = errors.New("ai: engine timeout")
)

// ─── ROLE NORMALIZATION ───────────────────────────────────────────────────────

// NormalizeRoles reassigns any turn whose role is not in accepted to fallback.
// The input slice is not modified.
func NormalizeRoles(turns []Turn, fallback Role, accepted ...Role) []Turn {
	ok := make(map[Role]struct{}, len(accepted))
	for _, r := range accepted {
		ok[r] = struct{}{}
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		if _, allowed := ok[t.Role]; !allowed {
			t.Role = fallback
		}
		out[i] = t
	}
	return out
}

// splitSystem separates system turns from the rest, joining their content
// with blank lines. Used by backends that take the system prompt out of band.
func splitSystem(turns []Turn) (system string, rest []Turn) {
	var sys []string
	for _, t := range turns {
		if t.Role == RoleSystem {
			sys = append(sys, t.Content)
			continue
		}
		rest = append(rest, t)
	}
	for i, s := range sys {
		if i > 0 {
			system += "\n\n"
		}
		system += s
	}
	return system, rest
}

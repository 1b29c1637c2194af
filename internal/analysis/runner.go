// Package analysis turns a screening into a risk decision. It drives a
// reasoning engine through one of several strategies, recovers a decision
// from whatever text the engine returns, and falls back to the deterministic
// evaluator whenever the delegated path fails.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/nyashahama/sepet-backend/internal/ai"
)

// ─── OUTCOME ──────────────────────────────────────────────────────────────────

// FailureReason classifies why a stage produced no text.
type FailureReason string

const (
	FailureNone        FailureReason = ""
	FailureUnavailable FailureReason = "engine_unavailable"
	FailureTimeout     FailureReason = "engine_timeout"
)

// Outcome is the explicit result of one stage call: either Text, or a
// Reason with the underlying error. Callers branch on OK instead of
// inspecting errors.
type Outcome struct {
	Text   string
	Reason FailureReason
	Err    error
}

// OK reports whether the stage produced text.
func (o Outcome) OK() bool { return o.Reason == FailureNone }

func success(text string) Outcome { return Outcome{Text: text} }

func failure(err error) Outcome {
	if isTimeout(err) {
		return Outcome{Reason: FailureTimeout, Err: fmt.Errorf("%w: %v", ai.ErrEngineTimeout, err)}
	}
	return Outcome{Reason: FailureUnavailable, Err: fmt.Errorf("%w: %v", ai.ErrEngineUnavailable, err)}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ─── STAGE RUNNER ─────────────────────────────────────────────────────────────

// Stage is one role the engine is asked to play.
type Stage struct {
	Name      string
	Prompt    string // system-role instructions
	ForceJSON bool
}

// RunnerConfig holds the generation parameters shared by every stage.
type RunnerConfig struct {
	// StageTimeout bounds a single engine call. Default: 45s.
	StageTimeout time.Duration
	// Temperature for every call. Nil means 0.3; an explicit zero is kept.
	Temperature *float64
	// MaxTokens per completion. Default: 1000.
	MaxTokens int
}

const defaultTemperature = 0.3

func (c *RunnerConfig) setDefaults() {
	if c.StageTimeout <= 0 {
		c.StageTimeout = 45 * time.Second
	}
	if c.Temperature == nil {
		t := defaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1000
	}
}

// StageRunner sends one role prompt plus context to the engine. It holds no
// per-call state and is safe for concurrent use when the engine is.
type StageRunner struct {
	engine ai.Engine
	cfg    RunnerConfig
	logger *slog.Logger
}

// NewStageRunner wires a runner to an engine handle owned by the caller.
func NewStageRunner(engine ai.Engine, cfg RunnerConfig, logger *slog.Logger) *StageRunner {
	cfg.setDefaults()
	return &StageRunner{engine: engine, cfg: cfg, logger: logger}
}

// Run performs exactly one engine call under the stage timeout. The returned
// text is not validated. There is no retry.
func (r *StageRunner) Run(ctx context.Context, stage Stage, contextText string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StageTimeout)
	defer cancel()

	start := time.Now()
	text, err := r.engine.Complete(ctx, ai.Request{
		Turns: []ai.Turn{
			{Role: ai.RoleSystem, Content: stage.Prompt},
			{Role: ai.RoleUser, Content: contextText},
		},
		Temperature: *r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
		ForceJSON:   stage.ForceJSON,
	})
	if err != nil {
		out := failure(err)
		r.logger.Warn("analysis: stage failed",
			"stage", stage.Name,
			"engine", r.engine.Name(),
			"reason", out.Reason,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return out
	}

	r.logger.Debug("analysis: stage complete",
		"stage", stage.Name,
		"engine", r.engine.Name(),
		"chars", len(text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return success(text)
}

package analysis

import (
	"context"
	"fmt"

	"github.com/nyashahama/sepet-backend/internal/triage"
)

// Strategy produces a decision by delegating to a reasoning engine. A
// non-nil error means the whole delegated path failed and nothing it
// produced may be used.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, s triage.Screening, p triage.Profile) (triage.Decision, error)
}

// StageError reports which stage stopped a strategy and why. It unwraps to
// ai.ErrEngineUnavailable or ai.ErrEngineTimeout.
type StageError struct {
	Stage  string
	Reason FailureReason
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("analysis: stage %s failed (%s): %v", e.Stage, e.Reason, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageError(stage Stage, out Outcome) *StageError {
	return &StageError{Stage: stage.Name, Reason: out.Reason, Err: out.Err}
}

// ─── SEQUENTIAL PIPELINE ──────────────────────────────────────────────────────

// Stage names, also used as log values.
const (
	StageExtraction = "extraction"
	StageVerdict    = "verdict"
	StageAuthoring  = "authoring"
	StageOneShot    = "oneshot"
)

var (
	extractionStage = Stage{Name: StageExtraction, Prompt: extractionPrompt}
	verdictStage    = Stage{Name: StageVerdict, Prompt: verdictPrompt}
	authoringStage  = Stage{Name: StageAuthoring, Prompt: authoringPrompt}
)

// Sequential runs three roles in a fixed order, each fed the previous
// stage's text:
//
//	START → EXTRACTION → VERDICT → AUTHORING → DONE
//
// Any failed stage ends the run; partial output is dropped.
type Sequential struct {
	runner *StageRunner
}

// NewSequential returns the three-stage strategy.
func NewSequential(runner *StageRunner) *Sequential {
	return &Sequential{runner: runner}
}

func (q *Sequential) Name() string { return "sequential" }

// Decide walks the stages and extracts the decision from the authoring text.
func (q *Sequential) Decide(ctx context.Context, s triage.Screening, p triage.Profile) (triage.Decision, error) {
	extraction := q.runner.Run(ctx, extractionStage, caseContext(s, p))
	if !extraction.OK() {
		return triage.Decision{}, stageError(extractionStage, extraction)
	}

	verdict := q.runner.Run(ctx, verdictStage, extraction.Text)
	if !verdict.OK() {
		return triage.Decision{}, stageError(verdictStage, verdict)
	}

	authoring := q.runner.Run(ctx, authoringStage, authoringContext(extraction.Text, verdict.Text))
	if !authoring.OK() {
		return triage.Decision{}, stageError(authoringStage, authoring)
	}

	return Extract(authoring.Text), nil
}

// ─── ONE-SHOT ─────────────────────────────────────────────────────────────────

var oneShotStage = Stage{Name: StageOneShot, Prompt: oneShotPrompt, ForceJSON: true}

// OneShot asks for the decision in a single structured-output call.
type OneShot struct {
	runner *StageRunner
}

// NewOneShot returns the single-call strategy.
func NewOneShot(runner *StageRunner) *OneShot {
	return &OneShot{runner: runner}
}

func (o *OneShot) Name() string { return "oneshot" }

func (o *OneShot) Decide(ctx context.Context, s triage.Screening, p triage.Profile) (triage.Decision, error) {
	out := o.runner.Run(ctx, oneShotStage, caseContext(s, p)+"\nIssue the technical opinion in JSON format.")
	if !out.OK() {
		return triage.Decision{}, stageError(oneShotStage, out)
	}
	return Extract(out.Text), nil
}

// NewStrategy builds the strategy registered under name ("sequential" or
// "oneshot").
func NewStrategy(name string, runner *StageRunner) (Strategy, error) {
	switch name {
	case "sequential", "":
		return NewSequential(runner), nil
	case "oneshot":
		return NewOneShot(runner), nil
	default:
		return nil, fmt.Errorf("analysis: unknown strategy %q", name)
	}
}

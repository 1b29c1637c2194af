package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nyashahama/sepet-backend/internal/triage"
)

// SourceRules marks a decision produced by the deterministic evaluator.
const SourceRules = "rules"

var errEmptyOpinion = errors.New("analysis: strategy returned an empty opinion")

// Analysis is a decision plus how it was reached.
type Analysis struct {
	Decision triage.Decision
	// Source is the strategy name, or SourceRules.
	Source string
	// FallbackCause is set when a configured strategy failed and the rules
	// decided instead.
	FallbackCause error
}

// Service is the single entry point for risk decisions. Its contract is
// total: every call returns a decision with a non-empty opinion.
type Service struct {
	strategy Strategy
	logger   *slog.Logger
}

// NewService returns a Service that tries strategy first. A nil strategy
// means the deterministic evaluator decides every case.
func NewService(strategy Strategy, logger *slog.Logger) *Service {
	return &Service{strategy: strategy, logger: logger}
}

// Decide returns the risk decision for one screening.
func (s *Service) Decide(ctx context.Context, sc triage.Screening, p triage.Profile) triage.Decision {
	return s.Analyse(ctx, sc, p).Decision
}

// Analyse is Decide with provenance. When the strategy fails in any way the
// result is exactly triage.Evaluate(sc, p); nothing from the failed attempt
// is kept.
func (s *Service) Analyse(ctx context.Context, sc triage.Screening, p triage.Profile) Analysis {
	if s.strategy == nil {
		return Analysis{Decision: triage.Evaluate(sc, p), Source: SourceRules}
	}

	d, err := s.attempt(ctx, sc, p)
	if err == nil {
		return Analysis{Decision: d, Source: s.strategy.Name()}
	}

	s.logger.Warn("analysis: strategy failed, using rules",
		"strategy", s.strategy.Name(),
		"pet", p.DisplayName(),
		"error", err,
	)
	return Analysis{
		Decision:      triage.Evaluate(sc, p),
		Source:        SourceRules,
		FallbackCause: err,
	}
}

// attempt runs the strategy, converting a panic or an empty opinion into an
// error so the caller has a single branch.
func (s *Service) attempt(ctx context.Context, sc triage.Screening, p triage.Profile) (d triage.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = triage.Decision{}, fmt.Errorf("analysis: strategy %s panicked: %v", s.strategy.Name(), r)
		}
	}()

	d, err = s.strategy.Decide(ctx, sc, p)
	if err != nil {
		return triage.Decision{}, err
	}
	if strings.TrimSpace(d.Opinion) == "" {
		return triage.Decision{}, errEmptyOpinion
	}
	return d, nil
}

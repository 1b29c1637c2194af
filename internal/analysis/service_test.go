package analysis_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nyashahama/sepet-backend/internal/analysis"
	"github.com/nyashahama/sepet-backend/internal/triage"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

type stubStrategy struct {
	decision triage.Decision
	err      error
	panics   bool
	calls    int
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Decide(context.Context, triage.Screening, triage.Profile) (triage.Decision, error) {
	s.calls++
	if s.panics {
		panic("engine client exploded")
	}
	return s.decision, s.err
}

// ─── Service ──────────────────────────────────────────────────────────────────

func TestService_StrategySuccessReturnedAsIs(t *testing.T) {
	want := triage.Decision{RiskFlag: false, Opinion: "Fit for the procedure."}
	svc := analysis.NewService(&stubStrategy{decision: want}, discardLogger())
	s, p := rexCase()

	a := svc.Analyse(context.Background(), s, p)
	if diff := cmp.Diff(want, a.Decision); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}
	if a.Source != "stub" || a.FallbackCause != nil {
		t.Errorf("unexpected provenance: %+v", a)
	}
}

func TestService_FallbackCases(t *testing.T) {
	tests := []struct {
		name     string
		strategy *stubStrategy
	}{
		{"error", &stubStrategy{err: errors.New("stage failed")}},
		{"panic", &stubStrategy{panics: true}},
		{"empty opinion", &stubStrategy{decision: triage.Decision{RiskFlag: false, Opinion: "  "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := analysis.NewService(tt.strategy, discardLogger())
			s, p := rexCase()

			a := svc.Analyse(context.Background(), s, p)
			if diff := cmp.Diff(triage.Evaluate(s, p), a.Decision); diff != "" {
				t.Errorf("fallback must equal the evaluator (-want +got):\n%s", diff)
			}
			if a.Source != analysis.SourceRules || a.FallbackCause == nil {
				t.Errorf("expected rules provenance with cause, got %+v", a)
			}
			if tt.strategy.calls != 1 {
				t.Errorf("strategy must be tried exactly once, got %d", tt.strategy.calls)
			}
		})
	}
}

func TestService_NilStrategyUsesRules(t *testing.T) {
	svc := analysis.NewService(nil, discardLogger())
	s, p := rexCase()

	if diff := cmp.Diff(triage.Evaluate(s, p), svc.Decide(context.Background(), s, p)); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}
}

// A failure at any pipeline stage must yield exactly the evaluator's
// decision, with no text from earlier stages leaking through.
func TestService_SequentialFailureIsolation(t *testing.T) {
	for failAt := 0; failAt < 3; failAt++ {
		eng := &scriptedEngine{
			replies: []string{"LEAK-extraction", "LEAK-verdict", `{"alerta_risco": false, "parecer_ia": "LEAK-authoring"}`},
			errs:    make([]error, 3),
		}
		eng.errs[failAt] = errors.New("unreachable")

		svc := analysis.NewService(analysis.NewSequential(newRunner(eng)), discardLogger())
		s, p := rexCase()

		got := svc.Decide(context.Background(), s, p)
		if diff := cmp.Diff(triage.Evaluate(s, p), got); diff != "" {
			t.Errorf("failAt=%d: (-want +got):\n%s", failAt, diff)
		}
		if strings.Contains(got.Opinion, "LEAK") {
			t.Errorf("failAt=%d: pipeline text leaked into %q", failAt, got.Opinion)
		}
	}
}

func TestService_RexEndToEndFallback(t *testing.T) {
	eng := &scriptedEngine{errs: []error{errors.New("dial tcp: refused")}}
	svc := analysis.NewService(analysis.NewSequential(newRunner(eng)), discardLogger())
	s, p := rexCase()

	d := svc.Decide(context.Background(), s, p)
	if !d.RiskFlag {
		t.Error("expected flag")
	}
	for _, want := range []string{"Rex", "3", "anesthetic risk"} {
		if !strings.Contains(d.Opinion, want) {
			t.Errorf("opinion %q missing %q", d.Opinion, want)
		}
	}
}

func TestService_Totality(t *testing.T) {
	strategies := []analysis.Strategy{
		nil,
		&stubStrategy{err: errors.New("x")},
		&stubStrategy{panics: true},
		&stubStrategy{decision: triage.Decision{Opinion: "ok"}},
		analysis.NewSequential(newRunner(&scriptedEngine{replies: []string{"a", "b", ""}})),
	}
	screenings := []triage.Screening{{}, {Fasted12h: true, AnestheticRiskAck: true}, {Seizure: true}}

	for i, st := range strategies {
		svc := analysis.NewService(st, discardLogger())
		for j, s := range screenings {
			if d := svc.Decide(context.Background(), s, triage.Profile{}); strings.TrimSpace(d.Opinion) == "" {
				t.Errorf("strategy %d screening %d: empty opinion", i, j)
			}
		}
	}
}

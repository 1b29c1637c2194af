package analysis_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nyashahama/sepet-backend/internal/analysis"
	"github.com/nyashahama/sepet-backend/internal/triage"
)

// ─── Extract: cascade ──────────────────────────────────────────────────────────

func TestExtract_Cascade(t *testing.T) {
	want := triage.Decision{RiskFlag: true, Opinion: "Rex aged 3y0m presents seizures."}
	obj := `{"alerta_risco": true, "parecer_ia": "Rex aged 3y0m presents seizures."}`

	tests := []struct {
		name string
		text string
	}{
		{"pure json", obj},
		{"pure json with whitespace", "\n  " + obj + "\n"},
		{"fenced json in prose", "Here is the result:\n```json\n" + obj + "\n```\nLet me know."},
		{"bare fence", "Result:\n```\n" + obj + "\n```"},
		{"brace fragment with other braces", "Context {see report} then " + obj + " and {note: done}."},
		{"nested in wrapper object", `{"result": ` + obj + `, "meta": {"model": "x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := analysis.Extract(tt.text)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("decision mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtract_HeuristicMarker(t *testing.T) {
	text := "  After review this animal is HIGH RISK because it fainted twice.  "
	got := analysis.Extract(text)

	if !got.RiskFlag {
		t.Error("expected marker phrase to set the flag")
	}
	if got.Opinion != "After review this animal is HIGH RISK because it fainted twice." {
		t.Errorf("expected trimmed text as opinion, got %q", got.Opinion)
	}
}

func TestExtract_HeuristicPortugueseMarker(t *testing.T) {
	if !analysis.Extract("Paciente em Alto Risco anestésico.").RiskFlag {
		t.Error("expected alto risco to set the flag")
	}
}

func TestExtract_HeuristicNoMarker(t *testing.T) {
	got := analysis.Extract("The animal is healthy and fit for surgery.")
	if got.RiskFlag {
		t.Error("expected no flag without a marker phrase")
	}
	if got.Opinion == "" {
		t.Error("expected prose as opinion")
	}
}

// ─── Extract: field handling ───────────────────────────────────────────────────

func TestExtract_BooleanCoercion(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`"true"`, true},
		{`"false"`, false},
		{`"sim"`, true},
		{`"não"`, false},
		{`"Yes"`, true},
		{`1`, true},
		{`0`, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := analysis.Extract(`{"alerta_risco": ` + tt.raw + `, "parecer_ia": "ok"}`)
			if got.RiskFlag != tt.want || got.Opinion != "ok" {
				t.Errorf("got %+v, want flag=%v opinion=ok", got, tt.want)
			}
		})
	}
}

func TestExtract_AlternateKeys(t *testing.T) {
	got := analysis.Extract(`{"risk_flag": false, "opinion": "Fit for surgery."}`)
	want := triage.Decision{RiskFlag: false, Opinion: "Fit for surgery."}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_SkipsUncoercibleKeyForValidAlternate(t *testing.T) {
	got := analysis.Extract(`{"alerta_risco": null, "riskFlag": true, "opinion": "x"}`)
	want := triage.Decision{RiskFlag: true, Opinion: "x"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_UncoercibleFlagFallsThroughToHeuristic(t *testing.T) {
	text := `{"alerta_risco": "maybe", "parecer_ia": "unclear"}`
	got := analysis.Extract(text)
	if got.Opinion != text {
		t.Errorf("expected heuristic to use the whole text, got %q", got.Opinion)
	}
}

func TestExtract_EmptyOpinionFallsThrough(t *testing.T) {
	text := `{"alerta_risco": true, "parecer_ia": "   "}`
	got := analysis.Extract(text)
	if got.Opinion != text {
		t.Errorf("expected heuristic result, got %+v", got)
	}
}

func TestExtract_BracesInsideStringsIgnored(t *testing.T) {
	text := `Answer: {"alerta_risco": false, "parecer_ia": "Use {sedation} protocol B."} end`
	got := analysis.Extract(text)
	want := triage.Decision{RiskFlag: false, Opinion: "Use {sedation} protocol B."}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_UnbalancedBraces(t *testing.T) {
	text := `Broken {"alerta_risco": true, "parecer_ia": "cut off`
	got := analysis.Extract(text)
	if got.Opinion != text {
		t.Errorf("expected heuristic on unbalanced input, got %+v", got)
	}
}

func TestExtract_EmptyInput(t *testing.T) {
	got := analysis.Extract("")
	if got.RiskFlag || got.Opinion != "" {
		t.Errorf("expected zero decision from empty text, got %+v", got)
	}
}

// ─── Extract: large input ──────────────────────────────────────────────────────

// extractWithin fails the test when Extract does not return within limit.
func extractWithin(t *testing.T, text string, limit time.Duration) triage.Decision {
	t.Helper()
	done := make(chan triage.Decision, 1)
	go func() { done <- analysis.Extract(text) }()
	select {
	case d := <-done:
		return d
	case <-time.After(limit):
		t.Fatalf("Extract did not return within %v on %d bytes", limit, len(text))
		return triage.Decision{}
	}
}

func TestExtract_UnterminatedBracesStayLinear(t *testing.T) {
	text := strings.Repeat("{", 200000)
	got := extractWithin(t, text, 3*time.Second)
	if got.RiskFlag || got.Opinion != text {
		t.Errorf("expected heuristic result over the raw text")
	}
}

func TestExtract_DeeplyNestedObjectStaysLinear(t *testing.T) {
	const depth = 100000
	obj := `{"alerta_risco": true, "parecer_ia": "deep"}`
	text := strings.Repeat("{", depth) + obj + strings.Repeat("}", depth)

	got := extractWithin(t, text, 3*time.Second)
	want := triage.Decision{RiskFlag: true, Opinion: "deep"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}
}

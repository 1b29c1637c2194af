package triage

import (
	"fmt"
	"strings"
)

// ─── CONSTANTS ────────────────────────────────────────────────────────────────

// GeriatricAgeYears is the whole-year age from which the narrative carries a
// special-attention note. It never sets the risk flag on its own.
const GeriatricAgeYears = 7

const (
	reasonAnestheticRisk = "Tutor did NOT acknowledge the anesthetic risk"
	reasonNotFasted      = "Animal has NOT fasted for 12h"
	reasonSevereSignFmt  = "Severe sign detected: %s"
	reasonGeriatricFmt   = "Geriatric animal (%s), requires special attention"
)

// ─── EVALUATOR ────────────────────────────────────────────────────────────────

// Evaluate applies the fixed rule set to a screening and returns a decision.
// It is total: every input yields a decision with a non-empty opinion.
//
// Rules, in order:
//
//	1. anesthetic risk not acknowledged → flag
//	2. not fasted for 12h               → flag
//	3. fainting / seizure / breathing   → flag, one reason per sign
//	4. age ≥ GeriatricAgeYears          → note only
func Evaluate(s Screening, p Profile) Decision {
	var reasons []string
	flag := false

	if !s.AnestheticRiskAck {
		reasons = append(reasons, reasonAnestheticRisk)
		flag = true
	}

	if !s.Fasted12h {
		reasons = append(reasons, reasonNotFasted)
		flag = true
	}

	for _, a := range severeSigns(s) {
		if a.Value {
			reasons = append(reasons, fmt.Sprintf(reasonSevereSignFmt, a.Label))
			flag = true
		}
	}

	if p.AgeYears >= GeriatricAgeYears {
		reasons = append(reasons, fmt.Sprintf(reasonGeriatricFmt, p.CompactAge()))
	}

	return Decision{RiskFlag: flag, Opinion: narrative(p, reasons)}
}

// severeSigns lists the signs that are individually sufficient to flag a case.
func severeSigns(s Screening) []Answer {
	return []Answer{
		{Sign{"desmaio", "fainting"}, s.Fainting},
		{Sign{"convulsao", "seizure"}, s.Seizure},
		{Sign{"dificuldade_respirar", "breathing difficulty"}, s.BreathingDifficulty},
	}
}

func narrative(p Profile, reasons []string) string {
	head := fmt.Sprintf("%s aged %s.", p.DisplayName(), p.CompactAge())
	if len(reasons) == 0 {
		return head + " No significant risk identified in screening. Fit for the procedure, subject to in-person evaluation."
	}
	return head + " Risks identified: " + strings.Join(reasons, "; ") +
		". Recommend detailed veterinary evaluation before the procedure."
}

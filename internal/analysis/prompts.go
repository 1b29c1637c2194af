package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nyashahama/sepet-backend/internal/triage"
)

// ─── ROLE PROMPTS ─────────────────────────────────────────────────────────────

const extractionPrompt = `You are the intake analyst of a public pet sterilisation service.
You receive the animal's profile and the tutor's answers to a 19-item pre-surgical screening questionnaire.

Your job:
1. Organise every profile attribute and questionnaire answer into a clear report.
2. State the animal's exact age in years and months (e.g. "13 years and 6 months").
3. List every POSITIVE clinical sign (answer = true) separately from the negatives.
4. Explicitly state whether the tutor acknowledged the anesthetic risk (entendeu_risco_anestesico) and whether the animal fasted for 12 hours (jejum_12h).
5. Copy any free-text notes verbatim.

Do not give a verdict. Respond with the organised report only.`

const verdictPrompt = `You are the anesthetic risk reviewer of a public pet sterilisation service.
You receive an organised screening report. Apply these fixed rules, in order:
1. Tutor did NOT acknowledge the anesthetic risk → HIGH RISK.
2. Animal did NOT fast for 12 hours → RISK (cannot proceed without fasting).
3. Fainting, seizure or breathing difficulty present → HIGH RISK, one justification per sign.
4. Animal aged 7 years or more → geriatric, requires special attention (informational, does not raise risk alone).

Write one justification per triggered rule, then finish with exactly one line:
VERDICT: HIGH RISK
or
VERDICT: NO SIGNIFICANT RISK`

const authoringPrompt = `You are the clinical report author of a public pet sterilisation service.
You receive the organised screening report and the risk reviewer's verdict.
Write the final technical opinion: clear, objective, professional, naming the animal and its exact age, and reflecting the verdict faithfully.

Respond ONLY with a JSON object with exactly this structure, no markdown fences, no preamble:
{
  "alerta_risco": true or false,
  "parecer_ia": "full technical opinion text"
}
alerta_risco must be true if and only if the verdict is HIGH RISK.`

const oneShotPrompt = `You are a veterinary clinical analyst at a public pet sterilisation service.
Your mission is to analyse an animal's pre-surgical screening questionnaire and issue a technical opinion.

Rules:
1. Identify ALL risk signs based on the questionnaire answers.
2. If the tutor answered "no" to "Understood the anesthetic risk?" (entendeu_risco_anestesico = false), mark as HIGH RISK.
3. If the animal presents fainting, seizure or breathing difficulty, mark as HIGH RISK.
4. If the animal has NOT fasted for 12 hours (jejum_12h = false), mark as RISK; it cannot proceed without fasting.
5. Compute the animal's exact age (e.g. "13 years and 6 months") and mention it when relevant (animals over 7 years deserve special attention).
6. Write a clear, objective and professional opinion.

ALWAYS respond in JSON with this structure:
{
  "alerta_risco": true/false,
  "parecer_ia": "full technical opinion text"
}`

// ─── CONTEXT SERIALIZATION ────────────────────────────────────────────────────

// caseContext renders the profile and questionnaire as the user turn of the
// first stage. The questionnaire is embedded as JSON with its wire keys so the
// rules in every prompt can reference them by name.
func caseContext(s triage.Screening, p triage.Profile) string {
	var sb strings.Builder
	sb.WriteString("Analyse the clinical screening of the following animal.\n\n")

	sb.WriteString("Animal profile:\n")
	fmt.Fprintf(&sb, "- Name: %s\n", orNA(p.Name))
	fmt.Fprintf(&sb, "- Species: %s\n", orNA(p.Species))
	fmt.Fprintf(&sb, "- Breed: %s\n", orNA(p.Breed))
	fmt.Fprintf(&sb, "- Size: %s\n", orNA(p.Size))
	fmt.Fprintf(&sb, "- Age: %d year(s) and %d month(s)\n", p.AgeYears, p.AgeMonths)
	fmt.Fprintf(&sb, "- Weight: %g kg\n", p.WeightKg)
	fmt.Fprintf(&sb, "- Sex: %s\n", orNA(p.Sex))

	sb.WriteString("\nScreening questionnaire answers:\n")
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		// Screening has only bools and a string; fall back to the answer list.
		for _, a := range s.Answers() {
			fmt.Fprintf(&sb, "%s: %t\n", a.Key, a.Value)
		}
	} else {
		sb.Write(raw)
		sb.WriteString("\n")
	}

	positive := positiveSigns(s)
	if len(positive) > 0 {
		fmt.Fprintf(&sb, "\nPositive signs: %s\n", strings.Join(positive, ", "))
	}

	return sb.String()
}

// positiveSigns lists clinical signs answered true, excluding the three
// items where true is the safe answer.
func positiveSigns(s triage.Screening) []string {
	var out []string
	for _, a := range s.Answers() {
		switch a.Key {
		case "vacinas_em_dia", "jejum_12h", "entendeu_risco_anestesico":
			continue
		}
		if a.Value {
			out = append(out, a.Label)
		}
	}
	return out
}

func authoringContext(extraction, verdict string) string {
	return "ORGANISED SCREENING REPORT:\n" + extraction +
		"\n\nRISK VERDICT:\n" + verdict
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

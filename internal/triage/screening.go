// Package triage holds the pre-surgical screening model and the deterministic
// risk evaluator. It is intentionally dependency-free: it imports nothing from
// internal/ and can be tested without a database or a reasoning engine.
package triage

import "fmt"

// ─── SCREENING ────────────────────────────────────────────────────────────────

// Screening is the tutor's answer set for the fixed clinical questionnaire.
// JSON keys match the questionnaire wire format; a key missing from the
// payload decodes to false.
type Screening struct {
	Cough               bool `json:"tosse"`
	Sneezing            bool `json:"espirro"`
	Vomiting            bool `json:"vomito"`
	Diarrhea            bool `json:"diarreia"`
	AppetiteLoss        bool `json:"perda_apetite"`
	WeightLoss          bool `json:"perda_peso"`
	Apathy              bool `json:"apatia"`
	Fainting            bool `json:"desmaio"`
	Seizure             bool `json:"convulsao"`
	BreathingDifficulty bool `json:"dificuldade_respirar"`
	NasalDischarge      bool `json:"secrecao_nasal"`
	EyeDischarge        bool `json:"secrecao_ocular"`
	SkinLesions         bool `json:"lesoes_pele"`
	Allergies           bool `json:"alergias"`
	PriorSurgery        bool `json:"cirurgia_anterior"`
	CurrentMedication   bool `json:"medicacao_uso"`
	VaccinesUpToDate    bool `json:"vacinas_em_dia"`
	Fasted12h           bool `json:"jejum_12h"`
	AnestheticRiskAck   bool `json:"entendeu_risco_anestesico"`

	Notes string `json:"observacoes"`
}

// Sign describes one questionnaire item.
type Sign struct {
	Key   string // wire key, e.g. "desmaio"
	Label string // human label used in prompts and narratives
}

// Answer pairs a Sign with the tutor's response.
type Answer struct {
	Sign
	Value bool
}

// Answers returns all 19 questionnaire items in questionnaire order.
func (s Screening) Answers() []Answer {
	return []Answer{
		{Sign{"tosse", "cough"}, s.Cough},
		{Sign{"espirro", "sneezing"}, s.Sneezing},
		{Sign{"vomito", "vomiting"}, s.Vomiting},
		{Sign{"diarreia", "diarrhea"}, s.Diarrhea},
		{Sign{"perda_apetite", "appetite loss"}, s.AppetiteLoss},
		{Sign{"perda_peso", "weight loss"}, s.WeightLoss},
		{Sign{"apatia", "apathy"}, s.Apathy},
		{Sign{"desmaio", "fainting"}, s.Fainting},
		{Sign{"convulsao", "seizure"}, s.Seizure},
		{Sign{"dificuldade_respirar", "breathing difficulty"}, s.BreathingDifficulty},
		{Sign{"secrecao_nasal", "nasal discharge"}, s.NasalDischarge},
		{Sign{"secrecao_ocular", "eye discharge"}, s.EyeDischarge},
		{Sign{"lesoes_pele", "skin lesions"}, s.SkinLesions},
		{Sign{"alergias", "allergies"}, s.Allergies},
		{Sign{"cirurgia_anterior", "prior surgery"}, s.PriorSurgery},
		{Sign{"medicacao_uso", "current medication"}, s.CurrentMedication},
		{Sign{"vacinas_em_dia", "vaccines up to date"}, s.VaccinesUpToDate},
		{Sign{"jejum_12h", "12-hour fasting"}, s.Fasted12h},
		{Sign{"entendeu_risco_anestesico", "anesthetic risk acknowledged"}, s.AnestheticRiskAck},
	}
}

// ─── PROFILE ──────────────────────────────────────────────────────────────────

// Profile is the animal's identifying data. Only Name and the age fields
// influence the deterministic decision; the rest is narrative context.
type Profile struct {
	Name      string  `json:"pet_nome"`
	Species   string  `json:"pet_especie"`
	Breed     string  `json:"pet_raca"`
	Size      string  `json:"pet_porte"`
	AgeYears  int     `json:"pet_idade_anos"`
	AgeMonths int     `json:"pet_idade_meses"`
	WeightKg  float64 `json:"pet_peso_kg"`
	Sex       string  `json:"pet_sexo"`
}

// DisplayName returns the animal's name, or "Animal" when none was given.
func (p Profile) DisplayName() string {
	if p.Name == "" {
		return "Animal"
	}
	return p.Name
}

// CompactAge renders the age as "{years}y{months}m".
func (p Profile) CompactAge() string {
	return fmt.Sprintf("%dy%dm", p.AgeYears, p.AgeMonths)
}

// AgeLabel renders the age for receipts, e.g. "2 Years and 1 Month".
// Returns "Not informed" when both parts are zero.
func (p Profile) AgeLabel() string {
	var parts []string
	if p.AgeYears > 0 {
		parts = append(parts, plural(p.AgeYears, "Year", "Years"))
	}
	if p.AgeMonths > 0 {
		parts = append(parts, plural(p.AgeMonths, "Month", "Months"))
	}
	switch len(parts) {
	case 0:
		return "Not informed"
	case 1:
		return parts[0]
	default:
		return parts[0] + " and " + parts[1]
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// ─── DECISION ─────────────────────────────────────────────────────────────────

// Decision is the single product of a risk evaluation. Opinion is a complete
// narrative suitable for direct display.
type Decision struct {
	RiskFlag bool   `json:"alerta_risco"`
	Opinion  string `json:"parecer_ia"`
}

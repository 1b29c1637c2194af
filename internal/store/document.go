package store

import (
	"encoding/json"
	"fmt"

	"github.com/sqlc-dev/pqtype"

	"github.com/nyashahama/sepet-backend/internal/db"
	"github.com/nyashahama/sepet-backend/internal/triage"
)

// PetMeta holds the profile fields that have no column on appointments.
type PetMeta struct {
	AgeYears  int     `json:"idade_anos"`
	AgeMonths int     `json:"idade_meses"`
	Sex       string  `json:"sexo"`
	WeightKg  float64 `json:"peso_kg"`
}

// TutorMeta holds tutor contact details kept alongside the answers.
type TutorMeta struct {
	Phone string `json:"telefone"`
	Email string `json:"email"`
}

// TriageDocument is the shape of triages.answers: the questionnaire keys at
// the top level plus the _meta_pet and _meta_tutor blocks.
type TriageDocument struct {
	triage.Screening
	Pet   PetMeta   `json:"_meta_pet"`
	Tutor TutorMeta `json:"_meta_tutor"`
}

func encodeDocument(d TriageDocument) (pqtype.NullRawMessage, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("store: marshal triage document: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

// DecodeDocument reads triages.answers. A NULL column yields the zero
// document, which the evaluator treats as every answer false.
func DecodeDocument(raw pqtype.NullRawMessage) (TriageDocument, error) {
	var d TriageDocument
	if !raw.Valid || len(raw.RawMessage) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw.RawMessage, &d); err != nil {
		return TriageDocument{}, fmt.Errorf("store: unmarshal triage document: %w", err)
	}
	return d, nil
}

// ProfileOf assembles the animal profile from the appointment columns and
// the pet metadata stored with the triage.
func ProfileOf(a db.Appointment, d TriageDocument) triage.Profile {
	return triage.Profile{
		Name:      a.PetName,
		Species:   a.Species,
		Breed:     a.Breed,
		Size:      a.Size,
		AgeYears:  d.Pet.AgeYears,
		AgeMonths: d.Pet.AgeMonths,
		WeightKg:  d.Pet.WeightKg,
		Sex:       d.Pet.Sex,
	}
}

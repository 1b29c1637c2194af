package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nyashahama/sepet-backend/internal/db"
)

// ─── INPUT TYPES ─────────────────────────────────────────────────────────────

// BookAppointmentParams is everything the booking handler hands to the store.
type BookAppointmentParams struct {
	TenantID  string
	TutorName string
	TutorCpf  string
	PetName   string
	Species   string
	Breed     string
	Size      string
	Date      time.Time
	Document  TriageDocument
}

// Booking is the pair of rows created by BookAppointment.
type Booking struct {
	Appointment db.Appointment
	Triage      db.Triage
}

// ─── METHODS ─────────────────────────────────────────────────────────────────

// BookAppointment atomically creates the appointment (analysis pending) and
// its triage row. If the triage insert fails the appointment is rolled back,
// so an appointment never exists without its questionnaire.
func (s *Store) BookAppointment(ctx context.Context, p BookAppointmentParams) (Booking, error) {
	answers, err := encodeDocument(p.Document)
	if err != nil {
		return Booking{}, err
	}

	breed := p.Breed
	if breed == "" {
		breed = "SRD"
	}

	var b Booking
	err = s.withTx(ctx, func(ctx context.Context, q db.Querier) error {
		appt, err := q.CreateAppointment(ctx, db.CreateAppointmentParams{
			TenantID:        p.TenantID,
			TutorName:       p.TutorName,
			TutorCpf:        p.TutorCpf,
			PetName:         p.PetName,
			Species:         p.Species,
			Breed:           breed,
			Size:            p.Size,
			AppointmentDate: p.Date,
		})
		if err != nil {
			return fmt.Errorf("BookAppointment: create appointment: %w", err)
		}

		tr, err := q.CreateTriage(ctx, db.CreateTriageParams{
			TenantID:      p.TenantID,
			AppointmentID: appt.ID,
			Answers:       answers,
		})
		if err != nil {
			return fmt.Errorf("BookAppointment: create triage: %w", err)
		}

		b = Booking{Appointment: appt, Triage: tr}
		return nil
	})
	if err != nil {
		return Booking{}, err
	}
	return b, nil
}

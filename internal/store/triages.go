package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nyashahama/sepet-backend/internal/db"
	"github.com/nyashahama/sepet-backend/internal/triage"
)

// ClaimTTL is how long a claim keeps other workers away from a triage. A
// claim older than this is treated as abandoned by a crashed process.
const ClaimTTL = 10 * time.Minute

// ErrAnalysisInProgress is returned by ClaimTriage when another worker or
// request holds a live claim on the triage.
var ErrAnalysisInProgress = errors.New("store: analysis already in progress")

// ─── INPUT TYPES ─────────────────────────────────────────────────────────────

// RecordDecisionParams is what the worker persists once a decision exists.
type RecordDecisionParams struct {
	TriageID      uuid.UUID
	AppointmentID uuid.UUID
	Decision      triage.Decision
	Source        string
}

// Case is a triage with everything needed to decide it.
type Case struct {
	Triage      db.Triage
	Appointment db.Appointment
	Document    TriageDocument
}

// Screening returns the questionnaire answers of the case.
func (c Case) Screening() triage.Screening { return c.Document.Screening }

// Profile returns the animal profile of the case.
func (c Case) Profile() triage.Profile { return ProfileOf(c.Appointment, c.Document) }

// ─── METHODS ─────────────────────────────────────────────────────────────────

// LoadCase reads a triage, its appointment and its decoded answers. Errors
// from the queries are wrapped, so sql.ErrNoRows stays detectable.
func (s *Store) LoadCase(ctx context.Context, triageID uuid.UUID) (Case, error) {
	tr, err := s.q.GetTriageByID(ctx, triageID)
	if err != nil {
		return Case{}, fmt.Errorf("LoadCase: get triage: %w", err)
	}
	appt, err := s.q.GetAppointmentByID(ctx, tr.AppointmentID)
	if err != nil {
		return Case{}, fmt.Errorf("LoadCase: get appointment: %w", err)
	}
	doc, err := DecodeDocument(tr.Answers)
	if err != nil {
		return Case{}, fmt.Errorf("LoadCase: %w", err)
	}
	return Case{Triage: tr, Appointment: appt, Document: doc}, nil
}

// RecordDecision atomically stores the decision on the triage and marks the
// appointment's analysis complete.
func (s *Store) RecordDecision(ctx context.Context, p RecordDecisionParams) (db.Triage, error) {
	var out db.Triage

	err := s.withTx(ctx, func(ctx context.Context, q db.Querier) error {
		tr, err := q.SetTriageDecision(ctx, db.SetTriageDecisionParams{
			ID:             p.TriageID,
			RiskFlag:       p.Decision.RiskFlag,
			Opinion:        p.Decision.Opinion,
			DecisionSource: p.Source,
		})
		if err != nil {
			return fmt.Errorf("RecordDecision: set decision: %w", err)
		}

		if _, err := q.SetAppointmentStatus(ctx, db.SetAppointmentStatusParams{
			ID:     p.AppointmentID,
			Status: db.AnalysisStatusComplete,
		}); err != nil {
			return fmt.Errorf("RecordDecision: set appointment status: %w", err)
		}

		out = tr
		return nil
	})
	if err != nil {
		return db.Triage{}, err
	}
	return out, nil
}

// MarkAnalysisFailed records a persistence failure after the worker has
// exhausted its retries. The attempts counter keeps the poller from picking
// the triage up forever.
func (s *Store) MarkAnalysisFailed(ctx context.Context, triageID uuid.UUID, reason string) error {
	tr, err := s.q.SetTriageError(ctx, db.SetTriageErrorParams{
		ID:        triageID,
		LastError: sql.NullString{String: reason, Valid: reason != ""},
	})
	if err != nil {
		return fmt.Errorf("MarkAnalysisFailed: set error: %w", err)
	}
	if _, err := s.q.SetAppointmentStatus(ctx, db.SetAppointmentStatusParams{
		ID:     tr.AppointmentID,
		Status: db.AnalysisStatusFailed,
	}); err != nil {
		return fmt.Errorf("MarkAnalysisFailed: set appointment status: %w", err)
	}
	return nil
}

// ClaimTriage marks a triage as being analysed. It fails with
// ErrAnalysisInProgress while someone else holds a live claim, and with a
// wrapped sql.ErrNoRows when the triage does not exist. RecordDecision and
// MarkAnalysisFailed clear the claim.
func (s *Store) ClaimTriage(ctx context.Context, triageID uuid.UUID) error {
	_, err := s.q.ClaimTriage(ctx, db.ClaimTriageParams{
		ID:                triageID,
		StaleAfterSeconds: ClaimTTL.Seconds(),
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ClaimTriage: %w", err)
	}

	if _, err := s.q.GetTriageByID(ctx, triageID); err != nil {
		return fmt.Errorf("ClaimTriage: get triage: %w", err)
	}
	return ErrAnalysisInProgress
}

// ReleaseClaim drops a claim without recording anything.
func (s *Store) ReleaseClaim(ctx context.Context, triageID uuid.UUID) error {
	if err := s.q.ReleaseTriageClaim(ctx, triageID); err != nil {
		return fmt.Errorf("ReleaseClaim: %w", err)
	}
	return nil
}

// ListPending returns undecided triages nobody is working on.
func (s *Store) ListPending(ctx context.Context, maxAttempts, limit int) ([]uuid.UUID, error) {
	ids, err := s.q.ListPendingTriages(ctx, db.ListPendingTriagesParams{
		MaxAttempts:       int32(maxAttempts),
		Limit:             int32(limit),
		StaleAfterSeconds: ClaimTTL.Seconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("ListPending: %w", err)
	}
	return ids, nil
}

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nyashahama/sepet-backend/internal/analysis"
	"github.com/nyashahama/sepet-backend/internal/db"
	"github.com/nyashahama/sepet-backend/internal/email"
	"github.com/nyashahama/sepet-backend/internal/events"
	"github.com/nyashahama/sepet-backend/internal/store"
	"github.com/nyashahama/sepet-backend/internal/triage"
)

// CaseStore is the slice of *store.Store the job needs.
type CaseStore interface {
	ClaimTriage(ctx context.Context, triageID uuid.UUID) error
	ReleaseClaim(ctx context.Context, triageID uuid.UUID) error
	LoadCase(ctx context.Context, triageID uuid.UUID) (store.Case, error)
	RecordDecision(ctx context.Context, p store.RecordDecisionParams) (db.Triage, error)
	MarkAnalysisFailed(ctx context.Context, triageID uuid.UUID, reason string) error
	ListPending(ctx context.Context, maxAttempts, limit int) ([]uuid.UUID, error)
}

// Decider is satisfied by *analysis.Service.
type Decider interface {
	Analyse(ctx context.Context, sc triage.Screening, p triage.Profile) analysis.Analysis
}

// Result is what one analysed triage produced.
type Result struct {
	TriageID      uuid.UUID
	AppointmentID uuid.UUID
	TenantID      string
	Decision      triage.Decision
	Source        string
	Fallback      bool
}

// Job holds the dependencies for the load-decide-persist-notify pipeline.
// Each phase is a separate method so the Runner can retry the I/O phases
// without ever asking for a second decision.
type Job struct {
	store   CaseStore
	decider Decider
	events  events.Publisher
	mailer  email.Sender
	logger  *slog.Logger
}

// NewJob constructs a Job with all required dependencies.
func NewJob(
	st CaseStore,
	decider Decider,
	pub events.Publisher,
	mailer email.Sender,
	logger *slog.Logger,
) *Job {
	return &Job{
		store:   st,
		decider: decider,
		events:  pub,
		mailer:  mailer,
		logger:  logger,
	}
}

// Process runs every phase once. The analysis handler uses it directly;
// the Runner goes through the phases itself so it can retry them. It fails
// with store.ErrAnalysisInProgress when the triage is already claimed.
func (j *Job) Process(ctx context.Context, triageID uuid.UUID) (Result, error) {
	if err := j.claim(ctx, triageID); err != nil {
		return Result{}, err
	}
	c, err := j.load(ctx, triageID)
	if err != nil {
		j.release(ctx, triageID)
		return Result{}, err
	}
	res := j.decide(ctx, c)
	if err := j.persist(ctx, res); err != nil {
		j.release(ctx, triageID)
		return Result{}, err
	}
	j.notify(ctx, c, res)
	return res, nil
}

// ─── PHASES ───────────────────────────────────────────────────────────────────

// claim keeps every other worker and request off the triage until the
// decision is recorded or the claim is released.
func (j *Job) claim(ctx context.Context, triageID uuid.UUID) error {
	if err := j.store.ClaimTriage(ctx, triageID); err != nil {
		return fmt.Errorf("job: claim triage: %w", err)
	}
	return nil
}

func (j *Job) release(ctx context.Context, triageID uuid.UUID) {
	// The caller's context may already be spent.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := j.store.ReleaseClaim(ctx, triageID); err != nil {
		j.logger.Error("job: failed to release claim", "triage_id", triageID, "error", err)
	}
}

func (j *Job) load(ctx context.Context, triageID uuid.UUID) (store.Case, error) {
	c, err := j.store.LoadCase(ctx, triageID)
	if err != nil {
		return store.Case{}, fmt.Errorf("job: load case: %w", err)
	}
	return c, nil
}

// decide never fails: the service falls back to the rules on its own.
func (j *Job) decide(ctx context.Context, c store.Case) Result {
	a := j.decider.Analyse(ctx, c.Screening(), c.Profile())

	j.logger.Info("job: decided",
		"triage_id", c.Triage.ID,
		"risk_flag", a.Decision.RiskFlag,
		"source", a.Source,
		"fallback", a.FallbackCause != nil,
	)

	return Result{
		TriageID:      c.Triage.ID,
		AppointmentID: c.Appointment.ID,
		TenantID:      c.Appointment.TenantID,
		Decision:      a.Decision,
		Source:        a.Source,
		Fallback:      a.FallbackCause != nil,
	}
}

func (j *Job) persist(ctx context.Context, res Result) error {
	if _, err := j.store.RecordDecision(ctx, store.RecordDecisionParams{
		TriageID:      res.TriageID,
		AppointmentID: res.AppointmentID,
		Decision:      res.Decision,
		Source:        res.Source,
	}); err != nil {
		return fmt.Errorf("job: record decision: %w", err)
	}
	return nil
}

// notify publishes the event and emails the tutor. Neither failure is
// returned: the decision is already stored and visible on the receipt.
func (j *Job) notify(ctx context.Context, c store.Case, res Result) {
	log := j.logger.With("triage_id", res.TriageID)

	if err := j.events.PublishTriageAnalysed(ctx, events.TriageAnalysed{
		TenantID:      res.TenantID,
		TriageID:      res.TriageID,
		AppointmentID: res.AppointmentID,
		PetName:       c.Appointment.PetName,
		RiskFlag:      res.Decision.RiskFlag,
		Source:        res.Source,
		Fallback:      res.Fallback,
		AnalysedAt:    time.Now().UTC(),
	}); err != nil {
		log.Error("job: failed to publish event", "error", err)
	}

	to := c.Document.Tutor.Email
	if to == "" {
		log.Debug("job: tutor has no email address, skipping delivery email")
		return
	}

	if err := j.mailer.SendAnalysisReady(ctx, email.AnalysisReadyParams{
		To:           to,
		TutorName:    c.Appointment.TutorName,
		PetName:      c.Appointment.PetName,
		RiskFlag:     res.Decision.RiskFlag,
		ReceiptToken: c.Appointment.ReceiptToken.String(),
	}); err != nil {
		log.Error("job: failed to send analysis email", "to", to, "error", err)
	}
}

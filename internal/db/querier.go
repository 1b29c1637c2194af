package db

import (
	"context"

	"github.com/google/uuid"
)

type Querier interface {
	CreateAppointment(ctx context.Context, arg CreateAppointmentParams) (Appointment, error)
	GetAppointment(ctx context.Context, arg GetAppointmentParams) (Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (Appointment, error)
	GetAppointmentByReceiptToken(ctx context.Context, token uuid.UUID) (Appointment, error)
	ListAppointments(ctx context.Context, tenantID string) ([]Appointment, error)
	SetAppointmentStatus(ctx context.Context, arg SetAppointmentStatusParams) (Appointment, error)

	CreateTriage(ctx context.Context, arg CreateTriageParams) (Triage, error)
	GetTriage(ctx context.Context, arg GetTriageParams) (Triage, error)
	GetTriageByID(ctx context.Context, id uuid.UUID) (Triage, error)
	GetTriageByAppointment(ctx context.Context, arg GetTriageByAppointmentParams) (Triage, error)
	ListTriages(ctx context.Context, tenantID string) ([]Triage, error)
	ListPendingTriages(ctx context.Context, arg ListPendingTriagesParams) ([]uuid.UUID, error)
	SetTriageDecision(ctx context.Context, arg SetTriageDecisionParams) (Triage, error)
	SetTriageError(ctx context.Context, arg SetTriageErrorParams) (Triage, error)
	ClaimTriage(ctx context.Context, arg ClaimTriageParams) (uuid.UUID, error)
	ReleaseTriageClaim(ctx context.Context, id uuid.UUID) error
}

var _ Querier = (*Queries)(nil)

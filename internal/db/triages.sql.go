package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const triageColumns = `id, tenant_id, appointment_id, answers, risk_flag, opinion, decision_source,
       attempts, last_error, analysed_at, claimed_at, created_at`

func scanTriage(row rowScanner) (Triage, error) {
	var i Triage
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.AppointmentID,
		&i.Answers,
		&i.RiskFlag,
		&i.Opinion,
		&i.DecisionSource,
		&i.Attempts,
		&i.LastError,
		&i.AnalysedAt,
		&i.ClaimedAt,
		&i.CreatedAt,
	)
	return i, err
}

func scanTriages(rows *sql.Rows) ([]Triage, error) {
	defer rows.Close()
	items := []Triage{}
	for rows.Next() {
		i, err := scanTriage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createTriage = `-- name: CreateTriage :one
INSERT INTO triages (tenant_id, appointment_id, answers)
VALUES ($1, $2, $3)
RETURNING ` + triageColumns

type CreateTriageParams struct {
	TenantID      string
	AppointmentID uuid.UUID
	Answers       pqtype.NullRawMessage
}

func (q *Queries) CreateTriage(ctx context.Context, arg CreateTriageParams) (Triage, error) {
	return scanTriage(q.db.QueryRowContext(ctx, createTriage, arg.TenantID, arg.AppointmentID, arg.Answers))
}

const getTriage = `-- name: GetTriage :one
SELECT ` + triageColumns + `
FROM triages
WHERE id = $1 AND tenant_id = $2`

type GetTriageParams struct {
	ID       uuid.UUID
	TenantID string
}

func (q *Queries) GetTriage(ctx context.Context, arg GetTriageParams) (Triage, error) {
	return scanTriage(q.db.QueryRowContext(ctx, getTriage, arg.ID, arg.TenantID))
}

const getTriageByID = `-- name: GetTriageByID :one
SELECT ` + triageColumns + `
FROM triages
WHERE id = $1`

func (q *Queries) GetTriageByID(ctx context.Context, id uuid.UUID) (Triage, error) {
	return scanTriage(q.db.QueryRowContext(ctx, getTriageByID, id))
}

const getTriageByAppointment = `-- name: GetTriageByAppointment :one
SELECT ` + triageColumns + `
FROM triages
WHERE appointment_id = $1 AND tenant_id = $2`

type GetTriageByAppointmentParams struct {
	AppointmentID uuid.UUID
	TenantID      string
}

func (q *Queries) GetTriageByAppointment(ctx context.Context, arg GetTriageByAppointmentParams) (Triage, error) {
	return scanTriage(q.db.QueryRowContext(ctx, getTriageByAppointment, arg.AppointmentID, arg.TenantID))
}

const listTriages = `-- name: ListTriages :many
SELECT ` + triageColumns + `
FROM triages
WHERE tenant_id = $1
ORDER BY created_at DESC`

func (q *Queries) ListTriages(ctx context.Context, tenantID string) ([]Triage, error) {
	rows, err := q.db.QueryContext(ctx, listTriages, tenantID)
	if err != nil {
		return nil, err
	}
	return scanTriages(rows)
}

const listPendingTriages = `-- name: ListPendingTriages :many
SELECT id
FROM triages
WHERE opinion IS NULL AND attempts < $1
  AND (claimed_at IS NULL OR claimed_at < now() - make_interval(secs => $3))
ORDER BY created_at
LIMIT $2`

type ListPendingTriagesParams struct {
	MaxAttempts       int32
	Limit             int32
	StaleAfterSeconds float64
}

func (q *Queries) ListPendingTriages(ctx context.Context, arg ListPendingTriagesParams) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx, listPendingTriages, arg.MaxAttempts, arg.Limit, arg.StaleAfterSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setTriageDecision = `-- name: SetTriageDecision :one
UPDATE triages
SET risk_flag = $2, opinion = $3, decision_source = $4, last_error = NULL, analysed_at = now(),
    claimed_at = NULL
WHERE id = $1
RETURNING ` + triageColumns

type SetTriageDecisionParams struct {
	ID             uuid.UUID
	RiskFlag       bool
	Opinion        string
	DecisionSource string
}

func (q *Queries) SetTriageDecision(ctx context.Context, arg SetTriageDecisionParams) (Triage, error) {
	return scanTriage(q.db.QueryRowContext(ctx, setTriageDecision,
		arg.ID, arg.RiskFlag, arg.Opinion, arg.DecisionSource))
}

const setTriageError = `-- name: SetTriageError :one
UPDATE triages
SET attempts = attempts + 1, last_error = $2, claimed_at = NULL
WHERE id = $1
RETURNING ` + triageColumns

type SetTriageErrorParams struct {
	ID        uuid.UUID
	LastError sql.NullString
}

func (q *Queries) SetTriageError(ctx context.Context, arg SetTriageErrorParams) (Triage, error) {
	return scanTriage(q.db.QueryRowContext(ctx, setTriageError, arg.ID, arg.LastError))
}

const claimTriage = `-- name: ClaimTriage :one
UPDATE triages
SET claimed_at = now()
WHERE id = $1
  AND (claimed_at IS NULL OR claimed_at < now() - make_interval(secs => $2))
RETURNING id`

type ClaimTriageParams struct {
	ID                uuid.UUID
	StaleAfterSeconds float64
}

func (q *Queries) ClaimTriage(ctx context.Context, arg ClaimTriageParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRowContext(ctx, claimTriage, arg.ID, arg.StaleAfterSeconds).Scan(&id)
	return id, err
}

const releaseTriageClaim = `-- name: ReleaseTriageClaim :exec
UPDATE triages
SET claimed_at = NULL
WHERE id = $1`

func (q *Queries) ReleaseTriageClaim(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, releaseTriageClaim, id)
	return err
}

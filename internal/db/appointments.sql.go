package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const appointmentColumns = `id, tenant_id, tutor_name, tutor_cpf, pet_name, species, breed, size,
       appointment_date, analysis_status, receipt_token, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (Appointment, error) {
	var i Appointment
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.TutorName,
		&i.TutorCpf,
		&i.PetName,
		&i.Species,
		&i.Breed,
		&i.Size,
		&i.AppointmentDate,
		&i.AnalysisStatus,
		&i.ReceiptToken,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createAppointment = `-- name: CreateAppointment :one
INSERT INTO appointments (tenant_id, tutor_name, tutor_cpf, pet_name, species, breed, size, appointment_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + appointmentColumns

type CreateAppointmentParams struct {
	TenantID        string
	TutorName       string
	TutorCpf        string
	PetName         string
	Species         string
	Breed           string
	Size            string
	AppointmentDate time.Time
}

func (q *Queries) CreateAppointment(ctx context.Context, arg CreateAppointmentParams) (Appointment, error) {
	row := q.db.QueryRowContext(ctx, createAppointment,
		arg.TenantID,
		arg.TutorName,
		arg.TutorCpf,
		arg.PetName,
		arg.Species,
		arg.Breed,
		arg.Size,
		arg.AppointmentDate,
	)
	return scanAppointment(row)
}

const getAppointment = `-- name: GetAppointment :one
SELECT ` + appointmentColumns + `
FROM appointments
WHERE id = $1 AND tenant_id = $2`

type GetAppointmentParams struct {
	ID       uuid.UUID
	TenantID string
}

func (q *Queries) GetAppointment(ctx context.Context, arg GetAppointmentParams) (Appointment, error) {
	return scanAppointment(q.db.QueryRowContext(ctx, getAppointment, arg.ID, arg.TenantID))
}

const getAppointmentByID = `-- name: GetAppointmentByID :one
SELECT ` + appointmentColumns + `
FROM appointments
WHERE id = $1`

func (q *Queries) GetAppointmentByID(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return scanAppointment(q.db.QueryRowContext(ctx, getAppointmentByID, id))
}

const getAppointmentByReceiptToken = `-- name: GetAppointmentByReceiptToken :one
SELECT ` + appointmentColumns + `
FROM appointments
WHERE receipt_token = $1`

func (q *Queries) GetAppointmentByReceiptToken(ctx context.Context, token uuid.UUID) (Appointment, error) {
	return scanAppointment(q.db.QueryRowContext(ctx, getAppointmentByReceiptToken, token))
}

const listAppointments = `-- name: ListAppointments :many
SELECT ` + appointmentColumns + `
FROM appointments
WHERE tenant_id = $1
ORDER BY created_at DESC`

func (q *Queries) ListAppointments(ctx context.Context, tenantID string) ([]Appointment, error) {
	rows, err := q.db.QueryContext(ctx, listAppointments, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Appointment{}
	for rows.Next() {
		i, err := scanAppointment(rows)
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

const setAppointmentStatus = `-- name: SetAppointmentStatus :one
UPDATE appointments
SET analysis_status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + appointmentColumns

type SetAppointmentStatusParams struct {
	ID     uuid.UUID
	Status AnalysisStatus
}

func (q *Queries) SetAppointmentStatus(ctx context.Context, arg SetAppointmentStatusParams) (Appointment, error) {
	return scanAppointment(q.db.QueryRowContext(ctx, setAppointmentStatus, arg.ID, arg.Status))
}

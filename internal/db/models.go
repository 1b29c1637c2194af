package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// AnalysisStatus mirrors appointments.analysis_status.
type AnalysisStatus string

const (
	AnalysisStatusPending  AnalysisStatus = "pending"
	AnalysisStatusComplete AnalysisStatus = "complete"
	AnalysisStatusFailed   AnalysisStatus = "failed"
)

type Appointment struct {
	ID              uuid.UUID      `json:"id"`
	TenantID        string         `json:"tenant_id"`
	TutorName       string         `json:"tutor_name"`
	TutorCpf        string         `json:"tutor_cpf"`
	PetName         string         `json:"pet_name"`
	Species         string         `json:"species"`
	Breed           string         `json:"breed"`
	Size            string         `json:"size"`
	AppointmentDate time.Time      `json:"appointment_date"`
	AnalysisStatus  AnalysisStatus `json:"analysis_status"`
	ReceiptToken    uuid.UUID      `json:"receipt_token"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type Triage struct {
	ID             uuid.UUID             `json:"id"`
	TenantID       string                `json:"tenant_id"`
	AppointmentID  uuid.UUID             `json:"appointment_id"`
	Answers        pqtype.NullRawMessage `json:"answers"`
	RiskFlag       sql.NullBool          `json:"risk_flag"`
	Opinion        sql.NullString        `json:"opinion"`
	DecisionSource sql.NullString        `json:"decision_source"`
	Attempts       int32                 `json:"attempts"`
	LastError      sql.NullString        `json:"last_error"`
	AnalysedAt     sql.NullTime          `json:"analysed_at"`
	ClaimedAt      sql.NullTime          `json:"claimed_at"`
	CreatedAt      time.Time             `json:"created_at"`
}

package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nyashahama/sepet-backend/internal/db"
	"github.com/nyashahama/sepet-backend/internal/email"
	"github.com/nyashahama/sepet-backend/internal/store"
	"github.com/nyashahama/sepet-backend/internal/triage"
)

// ─── POST /api/appointments ──────────────────────────────────────────────────

type createAppointmentRequest struct {
	TutorName  string `json:"nome_tutor" validate:"min=2"`
	TutorCpf   string `json:"cpf_tutor"`
	TutorPhone string `json:"telefone_tutor"`
	TutorEmail string `json:"email_tutor" validate:"omitempty,email"`

	PetName   string  `json:"nome_animal" validate:"min=1"`
	Species   string  `json:"especie" validate:"required"`
	Breed     string  `json:"raca"`
	Size      string  `json:"porte" validate:"required"`
	AgeYears  int     `json:"idade_anos" validate:"gte=0"`
	AgeMonths int     `json:"idade_meses" validate:"gte=0,lte=11"`
	Sex       string  `json:"sexo"`
	WeightKg  float64 `json:"peso_kg" validate:"gte=0"`

	Date string `json:"data_atendimento" validate:"required,datetime=2006-01-02"`

	Triage triage.Screening `json:"triagem"`
}

type appointmentResponse struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	TutorName      string `json:"nome_tutor"`
	TutorCpf       string `json:"cpf_tutor"`
	PetName        string `json:"nome_animal"`
	Species        string `json:"especie"`
	Breed          string `json:"raca"`
	Size           string `json:"porte"`
	Date           string `json:"data_atendimento"`
	AnalysisStatus string `json:"status_ia"`
	ReceiptURL     string `json:"comprovante_url"`
	CreatedAt      string `json:"created_at"`
}

type createAppointmentResponse struct {
	Appointment appointmentResponse `json:"agendamento"`
	TriageID    string              `json:"triagem_id"`
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// validationMessage turns validator errors into one readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return "invalid screening input: " + strings.Join(parts, "; ")
}

// handleCreateAppointment books the appointment and its triage in one
// transaction, then hands the triage to the worker. A "not fasted" answer or
// a severe sign never blocks the booking; it only raises the risk flag later.
func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if !decode(w, r, &req) {
		return
	}
	req.TutorName = strings.TrimSpace(req.TutorName)
	req.PetName = strings.TrimSpace(req.PetName)

	if err := s.validate.Struct(req); err != nil {
		respondErr(w, http.StatusUnprocessableEntity, validationMessage(err))
		return
	}

	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		respondErr(w, http.StatusUnprocessableEntity, "data_atendimento must be YYYY-MM-DD")
		return
	}

	tenant := tenantFrom(r)
	booking, err := s.booker.BookAppointment(r.Context(), store.BookAppointmentParams{
		TenantID:  tenant,
		TutorName: req.TutorName,
		TutorCpf:  req.TutorCpf,
		PetName:   req.PetName,
		Species:   req.Species,
		Breed:     req.Breed,
		Size:      req.Size,
		Date:      date,
		Document: store.TriageDocument{
			Screening: req.Triage,
			Pet: store.PetMeta{
				AgeYears:  req.AgeYears,
				AgeMonths: req.AgeMonths,
				Sex:       req.Sex,
				WeightKg:  req.WeightKg,
			},
			Tutor: store.TutorMeta{
				Phone: req.TutorPhone,
				Email: req.TutorEmail,
			},
		},
	})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("book appointment: %w", err))
		return
	}

	log := s.logger.With("tenant_id", tenant, "appointment_id", booking.Appointment.ID)

	// The poller picks the triage up if the queue is full.
	if err := s.worker.Enqueue(r.Context(), booking.Triage.ID); err != nil {
		log.Warn("booking: enqueue failed", "error", err)
	}

	if req.TutorEmail != "" {
		if err := s.mailer.SendBookingConfirmation(r.Context(), email.BookingParams{
			To:           req.TutorEmail,
			TutorName:    req.TutorName,
			PetName:      req.PetName,
			Date:         date,
			ReceiptToken: booking.Appointment.ReceiptToken.String(),
		}); err != nil {
			log.Error("booking: confirmation email failed", "error", err)
		}
	}

	log.Info("booking: appointment created", "triage_id", booking.Triage.ID)

	respond(w, http.StatusCreated, createAppointmentResponse{
		Appointment: s.toAppointmentResponse(booking.Appointment),
		TriageID:    booking.Triage.ID.String(),
	})
}

// ─── GET /api/appointments ───────────────────────────────────────────────────

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	rows, err := s.q.ListAppointments(r.Context(), tenantFrom(r))
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("list appointments: %w", err))
		return
	}

	out := make([]appointmentResponse, len(rows))
	for i, a := range rows {
		out[i] = s.toAppointmentResponse(a)
	}
	respond(w, http.StatusOK, out)
}

// ─── GET /api/appointments/{id} ──────────────────────────────────────────────

func (s *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	a, err := s.q.GetAppointment(r.Context(), db.GetAppointmentParams{ID: id, TenantID: tenantFrom(r)})
	if errors.Is(err, sql.ErrNoRows) {
		respondErr(w, http.StatusNotFound, "appointment not found")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("get appointment: %w", err))
		return
	}
	respond(w, http.StatusOK, s.toAppointmentResponse(a))
}

// toAppointmentResponse links the receipt under the public origin; only the
// owning tenant ever sees the token.
func (s *Server) toAppointmentResponse(a db.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:             a.ID.String(),
		TenantID:       a.TenantID,
		TutorName:      a.TutorName,
		TutorCpf:       a.TutorCpf,
		PetName:        a.PetName,
		Species:        a.Species,
		Breed:          a.Breed,
		Size:           a.Size,
		Date:           a.AppointmentDate.Format(time.DateOnly),
		AnalysisStatus: string(a.AnalysisStatus),
		ReceiptURL:     email.ReceiptURL(s.cfg.BaseURL, a.ReceiptToken.String()),
		CreatedAt:      a.CreatedAt.Format(time.RFC3339),
	}
}

package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nyashahama/sepet-backend/internal/db"
)

type triageResponse struct {
	ID             string          `json:"id"`
	AppointmentID  string          `json:"agendamento_id"`
	Answers        json.RawMessage `json:"respostas_triagem"`
	RiskFlag       bool            `json:"alerta_risco"`
	Opinion        *string         `json:"parecer_ia"`
	DecisionSource string          `json:"origem_parecer,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

func toTriageResponse(t db.Triage) triageResponse {
	answers := json.RawMessage("{}")
	if t.Answers.Valid && len(t.Answers.RawMessage) > 0 {
		answers = t.Answers.RawMessage
	}
	out := triageResponse{
		ID:             t.ID.String(),
		AppointmentID:  t.AppointmentID.String(),
		Answers:        answers,
		RiskFlag:       t.RiskFlag.Valid && t.RiskFlag.Bool,
		DecisionSource: t.DecisionSource.String,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
	}
	if t.Opinion.Valid {
		out.Opinion = &t.Opinion.String
	}
	return out
}

// ─── GET /api/triages ────────────────────────────────────────────────────────

func (s *Server) handleListTriages(w http.ResponseWriter, r *http.Request) {
	rows, err := s.q.ListTriages(r.Context(), tenantFrom(r))
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("list triages: %w", err))
		return
	}

	out := make([]triageResponse, len(rows))
	for i, t := range rows {
		out[i] = toTriageResponse(t)
	}
	respond(w, http.StatusOK, out)
}

// ─── GET /api/triages/{appointmentID} ────────────────────────────────────────

func (s *Server) handleGetTriage(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "appointmentID")
	if !ok {
		return
	}

	t, err := s.q.GetTriageByAppointment(r.Context(), db.GetTriageByAppointmentParams{
		AppointmentID: id,
		TenantID:      tenantFrom(r),
	})
	if errors.Is(err, sql.ErrNoRows) {
		respondErr(w, http.StatusNotFound, "triage not found")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("get triage: %w", err))
		return
	}
	respond(w, http.StatusOK, toTriageResponse(t))
}

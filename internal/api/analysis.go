package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/nyashahama/sepet-backend/internal/db"
	"github.com/nyashahama/sepet-backend/internal/store"
)

type analysisResponse struct {
	TriageID string `json:"triage_id"`
	RiskFlag bool   `json:"alerta_risco"`
	Opinion  string `json:"parecer_ia"`
	Source   string `json:"origem_parecer"`
	Status   string `json:"status"`
}

// ─── POST /api/analysis/{triageID} ───────────────────────────────────────────

// handleAnalyse decides a triage on demand. The decision step cannot fail;
// only loading or persisting can, and those surface as 500. A triage the
// worker is already analysing is a 409.
func (s *Server) handleAnalyse(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "triageID")
	if !ok {
		return
	}

	// Tenant check before any work.
	if _, err := s.q.GetTriage(r.Context(), db.GetTriageParams{ID: id, TenantID: tenantFrom(r)}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondErr(w, http.StatusNotFound, "triage not found")
			return
		}
		s.respondInternalErr(w, r, fmt.Errorf("get triage: %w", err))
		return
	}

	res, err := s.processor.Process(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		respondErr(w, http.StatusNotFound, "triage not found")
		return
	}
	if errors.Is(err, store.ErrAnalysisInProgress) {
		respondErr(w, http.StatusConflict, "analysis already in progress")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("analyse triage: %w", err))
		return
	}

	respond(w, http.StatusOK, analysisResponse{
		TriageID: res.TriageID.String(),
		RiskFlag: res.Decision.RiskFlag,
		Opinion:  res.Decision.Opinion,
		Source:   res.Source,
		Status:   "analise_concluida",
	})
}

package api

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/nyashahama/sepet-backend/internal/db"
	"github.com/nyashahama/sepet-backend/internal/store"
)

const mandatoryNotice = "The clinical screening questionnaire is indispensable for anesthesia. " +
	"The information provided is the tutor's responsibility and its accuracy is essential for the animal's safety."

// ─── RECEIPT VIEW ─────────────────────────────────────────────────────────────

type receiptPet struct {
	Name     string  `json:"nome"`
	Age      string  `json:"idade"`
	Species  string  `json:"especie"`
	Breed    string  `json:"raca"`
	Size     string  `json:"porte"`
	Sex      string  `json:"sexo"`
	WeightKg float64 `json:"peso_kg"`
}

type receiptTutor struct {
	Name  string `json:"nome"`
	Cpf   string `json:"cpf"`
	Phone string `json:"telefone"`
}

type receiptContact struct {
	Email   string `json:"email"`
	Phone   string `json:"telefone"`
	Address string `json:"endereco"`
}

// receiptView feeds both the HTML template and the JSON endpoint.
type receiptView struct {
	Protocol       string         `json:"protocolo"`
	Pet            receiptPet     `json:"animal"`
	Tutor          receiptTutor   `json:"tutor"`
	Date           string         `json:"data_atendimento"`
	AnalysisStatus string         `json:"status_ia"`
	Opinion        *string        `json:"parecer_ia"`
	RiskFlag       bool           `json:"alerta_risco"`
	Notice         string         `json:"aviso_obrigatorio"`
	Contact        receiptContact `json:"contato"`
	IssuedAt       time.Time      `json:"emitido_em"`
}

// loadReceipt builds the view for the appointment holding the receipt token.
// Receipts are linked from emails without a tenant header, so the token is
// the only credential: the appointment ID never opens one. A missing triage
// is not an error; the receipt is then issued without opinion.
func (s *Server) loadReceipt(w http.ResponseWriter, r *http.Request) (receiptView, bool) {
	token, ok := uuidParam(w, r, "token")
	if !ok {
		return receiptView{}, false
	}

	appt, err := s.q.GetAppointmentByReceiptToken(r.Context(), token)
	if errors.Is(err, sql.ErrNoRows) {
		respondErr(w, http.StatusNotFound, "appointment not found")
		return receiptView{}, false
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("get appointment: %w", err))
		return receiptView{}, false
	}

	var tr *db.Triage
	row, err := s.q.GetTriageByAppointment(r.Context(), db.GetTriageByAppointmentParams{
		AppointmentID: appt.ID,
		TenantID:      appt.TenantID,
	})
	switch {
	case err == nil:
		tr = &row
	case !errors.Is(err, sql.ErrNoRows):
		s.logger.Warn("receipt: triage lookup failed", "appointment_id", appt.ID, "error", err)
	}

	return s.buildReceipt(appt, tr), true
}

func (s *Server) buildReceipt(appt db.Appointment, tr *db.Triage) receiptView {
	var doc store.TriageDocument
	v := receiptView{
		Protocol:       appt.ID.String(),
		Date:           appt.AppointmentDate.Format(time.DateOnly),
		AnalysisStatus: string(appt.AnalysisStatus),
		Notice:         mandatoryNotice,
		Contact: receiptContact{
			Email:   s.cfg.Contact.Email,
			Phone:   s.cfg.Contact.Phone,
			Address: s.cfg.Contact.Address,
		},
		IssuedAt: time.Now(),
	}

	if tr != nil {
		d, err := store.DecodeDocument(tr.Answers)
		if err != nil {
			s.logger.Warn("receipt: unreadable triage document", "triage_id", tr.ID, "error", err)
		} else {
			doc = d
		}
		v.RiskFlag = tr.RiskFlag.Valid && tr.RiskFlag.Bool
		if tr.Opinion.Valid && tr.Opinion.String != "" {
			v.Opinion = &tr.Opinion.String
		}
	}

	profile := store.ProfileOf(appt, doc)
	v.Pet = receiptPet{
		Name:     appt.PetName,
		Age:      profile.AgeLabel(),
		Species:  appt.Species,
		Breed:    appt.Breed,
		Size:     appt.Size,
		Sex:      doc.Pet.Sex,
		WeightKg: doc.Pet.WeightKg,
	}
	v.Tutor = receiptTutor{
		Name:  appt.TutorName,
		Cpf:   appt.TutorCpf,
		Phone: doc.Tutor.Phone,
	}
	return v
}

// ─── GET /api/receipts/{token} ────────────────────────────────────────────────

func (s *Server) handleReceiptHTML(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadReceipt(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := s.receipt.Execute(&buf, v); err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("render receipt: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// ─── GET /api/receipts/{token}/json ───────────────────────────────────────────

func (s *Server) handleReceiptJSON(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadReceipt(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, v)
}

// ─── TEMPLATE ─────────────────────────────────────────────────────────────────

var receiptTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"stamp": func(t time.Time) string { return t.Format("02/01/2006 15:04") },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Appointment Receipt - SEPET</title>
  <style>
    body { font-family: 'Segoe UI', Tahoma, sans-serif; background: #f0f4f8; padding: 20px; color: #1a202c; }
    .receipt { max-width: 700px; margin: 0 auto; background: #fff; border-radius: 16px; overflow: hidden; }
    .header { background: linear-gradient(135deg, #0d9488, #6366f1); color: #fff; padding: 30px 40px; text-align: center; }
    .body { padding: 30px 40px; }
    .section { margin-bottom: 24px; border-bottom: 1px solid #e2e8f0; padding-bottom: 20px; }
    .section h2 { font-size: 14px; text-transform: uppercase; color: #0d9488; }
    .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 8px; font-size: 13px; }
    .label { color: #718096; font-size: 11px; text-transform: uppercase; }
    .value { font-weight: 600; }
    .alert { background: #fee2e2; border-left: 4px solid #ef4444; padding: 16px; color: #991b1b; }
    .opinion { background: #ede9fe; border-left: 4px solid #6366f1; padding: 16px; color: #3730a3; white-space: pre-wrap; }
    .notice { background: #fef3c7; border-left: 4px solid #f59e0b; padding: 16px; color: #92400e; }
    .footer { background: #1e293b; color: #94a3b8; padding: 20px 40px; text-align: center; font-size: 12px; }
    .footer a { color: #5eead4; }
  </style>
</head>
<body>
<div class="receipt">
  <div class="header">
    <h1>SEPET</h1>
    <p>Pet Sterilisation Service - Manaus/AM</p>
    <p>Protocol: {{.Protocol}}</p>
  </div>
  <div class="body">
    <div class="section">
      <h2>Animal</h2>
      <div class="grid">
        <div><div class="label">Name</div><div class="value">{{.Pet.Name}}</div></div>
        <div><div class="label">Age</div><div class="value">{{.Pet.Age}}</div></div>
        <div><div class="label">Species</div><div class="value">{{.Pet.Species}}</div></div>
        <div><div class="label">Breed</div><div class="value">{{.Pet.Breed}}</div></div>
        <div><div class="label">Size</div><div class="value">{{.Pet.Size}}</div></div>
        <div><div class="label">Sex</div><div class="value">{{.Pet.Sex}}</div></div>
        <div><div class="label">Weight</div><div class="value">{{.Pet.WeightKg}} kg</div></div>
        <div><div class="label">Status</div><div class="value">{{.AnalysisStatus}}</div></div>
      </div>
    </div>
    <div class="section">
      <h2>Tutor</h2>
      <div class="grid">
        <div><div class="label">Name</div><div class="value">{{.Tutor.Name}}</div></div>
        <div><div class="label">CPF</div><div class="value">{{.Tutor.Cpf}}</div></div>
        <div><div class="label">Phone</div><div class="value">{{.Tutor.Phone}}</div></div>
        <div><div class="label">Appointment date</div><div class="value">{{.Date}}</div></div>
      </div>
    </div>
    {{- if .RiskFlag}}
    <div class="section"><div class="alert"><strong>RISK ALERT:</strong> risk factors were identified in this animal's clinical screening.</div></div>
    {{- end}}
    {{- with .Opinion}}
    <div class="section"><h2>Screening opinion</h2><div class="opinion">{{.}}</div></div>
    {{- end}}
    <div class="section"><div class="notice"><strong>MANDATORY NOTICE:</strong> {{.Notice}}</div></div>
  </div>
  <div class="footer">
    <div><a href="mailto:{{.Contact.Email}}">{{.Contact.Email}}</a> · {{.Contact.Phone}}</div>
    <div>{{.Contact.Address}}</div>
    <div>Issued {{stamp .IssuedAt}}</div>
  </div>
</div>
</body>
</html>
`))

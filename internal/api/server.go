// Package api implements the HTTP and gRPC surface of the SEPET screening
// service. Handlers are methods on *Server; each handler file covers one
// resource group.
package api

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nyashahama/sepet-backend/internal/db"
	"github.com/nyashahama/sepet-backend/internal/email"
	"github.com/nyashahama/sepet-backend/internal/metrics"
	"github.com/nyashahama/sepet-backend/internal/store"
	"github.com/nyashahama/sepet-backend/internal/triage"
	"github.com/nyashahama/sepet-backend/internal/worker"
)

// Config holds values read from environment variables at startup.
type Config struct {
	// BaseURL is the public origin, e.g. "https://sepet.am.gov.br".
	BaseURL string

	// Env is "production", "staging", or "development".
	Env string

	// Contact is printed on receipts and the root endpoint.
	Contact email.Contact

	// Metrics is optional. When set, requests are measured and /metrics is
	// served.
	Metrics *metrics.Metrics
}

// Booker creates an appointment and its triage atomically. *store.Store
// satisfies it.
type Booker interface {
	BookAppointment(ctx context.Context, p store.BookAppointmentParams) (store.Booking, error)
}

// Processor analyses one triage synchronously. *worker.Job satisfies it.
type Processor interface {
	Process(ctx context.Context, triageID uuid.UUID) (worker.Result, error)
}

// Decider answers ad-hoc decisions over gRPC. *analysis.Service satisfies it.
type Decider interface {
	Decide(ctx context.Context, sc triage.Screening, p triage.Profile) triage.Decision
}

// Server holds all shared dependencies. Each handler file attaches methods to
// this type and uses only the fields it needs.
type Server struct {
	// q handles all single-query reads.
	q db.Querier

	// booker handles the booking transaction.
	booker Booker

	// processor runs the analysis for POST /api/analysis/{triageID}.
	processor Processor

	// worker enqueues background analysis after booking.
	worker worker.Enqueuer

	// mailer sends the booking confirmation.
	mailer email.Sender

	validate *validator.Validate
	receipt  *template.Template

	cfg    Config
	logger *slog.Logger
}

// NewServer constructs the Server. Handler returns the chi router; Decide is
// exposed through RegisterGRPC.
func NewServer(
	q db.Querier,
	booker Booker,
	processor Processor,
	enqueuer worker.Enqueuer,
	mailer email.Sender,
	cfg Config,
	logger *slog.Logger,
) *Server {
	return &Server{
		q:         q,
		booker:    booker,
		processor: processor,
		worker:    enqueuer,
		mailer:    mailer,
		validate:  newValidator(),
		receipt:   receiptTemplate,
		cfg:       cfg,
		logger:    logger,
	}
}

// Handler wires the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(middleware.Timeout(3 * time.Minute))
	if s.cfg.Metrics != nil {
		r.Use(s.cfg.Metrics.Middleware)
		r.Handle("/metrics", s.cfg.Metrics.Handler())
	}

	// ── Health ────────────────────────────────────────────────────────────────
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/", s.handleRoot)

	r.Route("/api", func(r chi.Router) {
		// Receipts are linked from emails, so the appointment UUID is the
		// only credential; no tenant header.
		r.Get("/receipts/{token}", s.handleReceiptHTML)
		r.Get("/receipts/{token}/json", s.handleReceiptJSON)

		r.Group(func(r chi.Router) {
			r.Use(requireTenant)

			r.Post("/appointments", s.handleCreateAppointment)
			r.Get("/appointments", s.handleListAppointments)
			r.Get("/appointments/{id}", s.handleGetAppointment)

			r.Get("/triages", s.handleListTriages)
			r.Get("/triages/{appointmentID}", s.handleGetTriage)

			r.Post("/analysis/{triageID}", s.handleAnalyse)
		})
	})

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{
		"status":  "online",
		"service": "SEPET clinical screening",
		"address": s.cfg.Contact.Address,
	})
}

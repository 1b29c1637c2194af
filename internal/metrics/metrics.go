// Package metrics exports Prometheus counters for risk decisions and HTTP
// traffic. Everything is registered on a private registry so tests can build
// as many instances as they like.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nyashahama/sepet-backend/internal/analysis"
	"github.com/nyashahama/sepet-backend/internal/triage"
)

// Metrics owns the registry and every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	decisions       *prometheus.CounterVec
	decisionLatency *prometheus.HistogramVec
	requests        *prometheus.HistogramVec
}

// New builds the collectors and registers them, with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sepet",
			Name:      "decisions_total",
			Help:      "Risk decisions by source, fallback and risk flag.",
		}, []string{"source", "fallback", "risk_flag"}),
		decisionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sepet",
			Name:      "decision_duration_seconds",
			Help:      "Time to produce one risk decision.",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 5, 15, 30, 60, 120, 180},
		}, []string{"source"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sepet",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP requests by method, route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.decisions,
		m.decisionLatency,
		m.requests,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request latency. It must be installed on the chi router
// itself so the matched route pattern is known after the handler returns.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requests.
			With(prometheus.Labels{"method": r.Method, "route": route, "status": strconv.Itoa(status)}).
			Observe(time.Since(start).Seconds())
	})
}

// ─── DECISIONS ───────────────────────────────────────────────────────────────

// Analyser is the part of *analysis.Service the instrumented decider wraps.
type Analyser interface {
	Analyse(ctx context.Context, sc triage.Screening, p triage.Profile) analysis.Analysis
}

// Decider counts every decision that passes through it. It satisfies both
// the worker's and the gRPC surface's decider interfaces.
type Decider struct {
	next Analyser
	m    *Metrics
}

// InstrumentDecider wraps next so every decision it returns is counted and
// timed.
func (m *Metrics) InstrumentDecider(next Analyser) *Decider {
	return &Decider{next: next, m: m}
}

// Analyse delegates to the wrapped service and records the outcome.
func (d *Decider) Analyse(ctx context.Context, sc triage.Screening, p triage.Profile) analysis.Analysis {
	start := time.Now()
	a := d.next.Analyse(ctx, sc, p)

	d.m.decisions.
		With(prometheus.Labels{
			"source":    a.Source,
			"fallback":  strconv.FormatBool(a.FallbackCause != nil),
			"risk_flag": strconv.FormatBool(a.Decision.RiskFlag),
		}).
		Inc()
	d.m.decisionLatency.
		With(prometheus.Labels{"source": a.Source}).
		Observe(time.Since(start).Seconds())

	return a
}

// Decide is Analyse without the provenance.
func (d *Decider) Decide(ctx context.Context, sc triage.Screening, p triage.Profile) triage.Decision {
	return d.Analyse(ctx, sc, p).Decision
}

// Package worker analyses booked triages in the background: it loads the
// case, asks the analysis service for a decision, persists it, then
// publishes the event and emails the tutor. The api package only holds a
// worker.Enqueuer and never imports the concrete Runner.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/nyashahama/sepet-backend/internal/store"
)

// ─── ENQUEUER INTERFACE ───────────────────────────────────────────────────────

// Enqueuer is the narrow interface the api package uses to hand off a triage
// after booking. The concrete implementation is *Runner.
type Enqueuer interface {
	Enqueue(ctx context.Context, triageID uuid.UUID) error
}

// ─── RUNNER ───────────────────────────────────────────────────────────────────

// RunnerConfig holds tuning parameters for the Runner. Zero fields take the
// values from DefaultRunnerConfig.
type RunnerConfig struct {
	// Workers is the number of concurrent job goroutines. Default: 3.
	Workers int

	// PollInterval is how often the poller looks for triages still missing
	// an opinion. Default: 30s.
	PollInterval time.Duration

	// JobTimeout bounds one whole job. It must exceed three stage timeouts
	// for the sequential strategy. Default: 5 minutes.
	JobTimeout time.Duration

	// MaxRetries bounds the attempts of each I/O phase. Default: 3.
	MaxRetries int
}

// DefaultRunnerConfig returns safe production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers:      3,
		PollInterval: 30 * time.Second,
		JobTimeout:   5 * time.Minute,
		MaxRetries:   3,
	}
}

// pollBatch caps how many triages one poll cycle enqueues.
const pollBatch = 50

// Runner manages a pool of worker goroutines fed by an in-process channel
// (fast path, right after booking) and by a database poller (recovery path
// after a restart).
type Runner struct {
	job    *Job
	store  CaseStore
	cfg    RunnerConfig
	logger *slog.Logger

	// delay is the first wait between attempts; it doubles after each one.
	delay time.Duration

	queue chan uuid.UUID
	wg    sync.WaitGroup
}

// NewRunner constructs a Runner. Call Start to begin processing.
func NewRunner(job *Job, st CaseStore, cfg RunnerConfig, logger *slog.Logger) *Runner {
	def := DefaultRunnerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	// A job must finish before its claim goes stale.
	if limit := store.ClaimTTL - time.Minute; cfg.JobTimeout > limit {
		logger.Warn("worker: job timeout capped below claim TTL", "requested", cfg.JobTimeout, "capped", limit)
		cfg.JobTimeout = limit
	}

	return &Runner{
		job:    job,
		store:  st,
		cfg:    cfg,
		logger: logger,
		delay:  2 * time.Second,
		// Buffer = Workers*2 so Enqueue never blocks under normal load.
		queue: make(chan uuid.UUID, cfg.Workers*2),
	}
}

// Enqueue pushes a triage ID onto the in-process channel. A full channel is
// reported, not waited on: the poller will find the triage later.
func (r *Runner) Enqueue(_ context.Context, triageID uuid.UUID) error {
	select {
	case r.queue <- triageID:
		r.logger.Info("worker: enqueued triage", "triage_id", triageID)
		return nil
	default:
		return errors.New("worker: queue is full, triage will be picked up by poller")
	}
}

// Start launches the worker pool and the poller and blocks until ctx is
// cancelled:
//
//	go runner.Start(ctx)
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("worker: starting", "workers", r.cfg.Workers, "poll_interval", r.cfg.PollInterval)

	for i := range r.cfg.Workers {
		r.wg.Add(1)
		go r.work(ctx, i)
	}

	r.wg.Add(1)
	go r.poll(ctx)

	r.wg.Wait()
	r.logger.Info("worker: stopped")
}

func (r *Runner) work(ctx context.Context, id int) {
	defer r.wg.Done()
	log := r.logger.With("worker_id", id)
	log.Info("worker: goroutine started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker: goroutine stopping")
			return
		case triageID := <-r.queue:
			jobCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
			r.runWithRetry(jobCtx, triageID, log.With("triage_id", triageID))
			cancel()
		}
	}
}

func (r *Runner) poll(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	// Once at startup for anything left over from before a restart.
	r.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

func (r *Runner) pollOnce(ctx context.Context) {
	ids, err := r.store.ListPending(ctx, r.cfg.MaxRetries, pollBatch)
	if err != nil {
		r.logger.Error("worker: poll failed", "error", err)
		return
	}
	for _, id := range ids {
		select {
		case r.queue <- id:
			r.logger.Debug("worker: poller enqueued triage", "triage_id", id)
		default:
			// Queue full, next cycle.
			return
		}
	}
}

// runWithRetry claims the triage, then retries loading and persisting but
// asks for the decision exactly once. A triage someone else holds, or one
// already decided, is skipped. Exhausted retries mark the triage failed so
// the poller stops picking it up.
func (r *Runner) runWithRetry(ctx context.Context, triageID uuid.UUID, log *slog.Logger) {
	err := r.retry(ctx, log, "claim", func(ctx context.Context) error {
		return r.job.claim(ctx, triageID)
	})
	switch {
	case errors.Is(err, store.ErrAnalysisInProgress):
		log.Debug("worker: triage already being analysed")
		return
	case errors.Is(err, sql.ErrNoRows):
		log.Warn("worker: triage no longer exists")
		return
	case err != nil:
		// Unclaimed, so the poller will offer it again.
		log.Error("worker: could not claim triage", "error", err)
		return
	}

	var c store.Case
	err = r.retry(ctx, log, "load", func(ctx context.Context) error {
		var err error
		c, err = r.job.load(ctx, triageID)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		log.Warn("worker: triage no longer exists")
		return
	}
	if err != nil {
		r.fail(ctx, triageID, err, log)
		return
	}
	if c.Triage.Opinion.Valid {
		log.Debug("worker: triage already decided")
		r.job.release(ctx, triageID)
		return
	}

	res := r.job.decide(ctx, c)

	err = r.retry(ctx, log, "persist", func(ctx context.Context) error {
		return r.job.persist(ctx, res)
	})
	if err != nil {
		r.fail(ctx, triageID, err, log)
		return
	}

	r.job.notify(ctx, c, res)
	log.Info("worker: job completed", "risk_flag", res.Decision.RiskFlag, "source", res.Source)
}

// retry runs fn up to MaxRetries times with exponential backoff. Missing
// rows and held claims are returned at once.
func (r *Runner) retry(ctx context.Context, log *slog.Logger, phase string, fn func(context.Context) error) error {
	return retry.Do(
		func() error { return fn(ctx) },
		retry.Attempts(uint(r.cfg.MaxRetries)),
		retry.Delay(r.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, sql.ErrNoRows) && !errors.Is(err, store.ErrAnalysisInProgress)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("worker: phase attempt failed",
				"phase", phase,
				"attempt", n+1,
				"max", r.cfg.MaxRetries,
				"error", err,
			)
		}),
	)
}

func (r *Runner) fail(ctx context.Context, triageID uuid.UUID, cause error, log *slog.Logger) {
	log.Error("worker: job permanently failed", "error", cause)

	// The job context may already be spent; give the write its own budget.
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.store.MarkAnalysisFailed(failCtx, triageID, cause.Error()); err != nil {
		log.Error("worker: failed to mark triage as failed", "error", err)
	}
}

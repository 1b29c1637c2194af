package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/nyashahama/sepet-backend/internal/ai"
	"github.com/nyashahama/sepet-backend/internal/analysis"
	"github.com/nyashahama/sepet-backend/internal/api"
	"github.com/nyashahama/sepet-backend/internal/config"
	"github.com/nyashahama/sepet-backend/internal/db"
	"github.com/nyashahama/sepet-backend/internal/email"
	"github.com/nyashahama/sepet-backend/internal/events"
	"github.com/nyashahama/sepet-backend/internal/metrics"
	"github.com/nyashahama/sepet-backend/internal/store"
	"github.com/nyashahama/sepet-backend/internal/worker"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, text in development.
	var logger *slog.Logger
	if os.Getenv("ENV") == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port, "engine", cfg.EngineProvider)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Database ──────────────────────────────────────────────────────────────
	pool, queries, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	st := store.New(pool, queries)

	// ── Risk decisions ────────────────────────────────────────────────────────
	strategy, err := buildStrategy(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	m := metrics.New()
	decider := m.InstrumentDecider(analysis.NewService(strategy, logger))

	// ── Events (NATS) ─────────────────────────────────────────────────────────
	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		nc, err := events.NewClient(cfg.NATSURL, cfg.NATSToken, logger)
		if err != nil {
			return fmt.Errorf("events: %w", err)
		}
		defer nc.Close()
		publisher = nc
		logger.Info("events: publishing to NATS", "url", cfg.NATSURL)
	} else {
		logger.Info("events: NATS_URL not set, events disabled")
	}

	// ── Email (Resend) ────────────────────────────────────────────────────────
	contact := email.Contact{
		Address: cfg.ContactAddress,
		Email:   cfg.ContactEmail,
		Phone:   cfg.ContactPhone,
	}
	var mailer email.Sender = email.Nop{}
	if cfg.ResendAPIKey != "" {
		mailer = email.NewResendClient(cfg.ResendAPIKey, cfg.EmailFromAddr, cfg.EmailFromName, cfg.BaseURL, contact)
	} else {
		logger.Info("email: RESEND_API_KEY not set, email disabled")
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	job := worker.NewJob(st, decider, publisher, mailer, logger)
	runner := worker.NewRunner(job, st, worker.RunnerConfig{
		Workers:      cfg.WorkerCount,
		PollInterval: cfg.PollInterval,
		JobTimeout:   cfg.JobTimeout,
		MaxRetries:   cfg.MaxRetries,
	}, logger)

	// ── HTTP + gRPC on one port ───────────────────────────────────────────────
	server := api.NewServer(
		st.Q(),
		st,
		job,
		runner, // *Runner satisfies worker.Enqueuer
		mailer,
		api.Config{
			BaseURL: cfg.BaseURL,
			Env:     cfg.Env,
			Contact: contact,
			Metrics: m,
		},
		logger,
	)

	srv := &http.Server{
		Handler:     server.Handler(),
		ReadTimeout: 15 * time.Second,
		// The analysis endpoint runs up to three engine stages.
		WriteTimeout: 4 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	gs := grpc.NewServer()
	api.RegisterGRPC(gs, decider, logger)

	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	mux := cmux.New(lis)
	grpcL := mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := mux.Match(cmux.Any())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runner.Start(gctx)
		return nil
	})
	g.Go(func() error {
		if err := gs.Serve(grpcL); err != nil && !errors.Is(err, cmux.ErrListenerClosed) && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.Serve(httpL); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, cmux.ErrListenerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("server listening", "addr", lis.Addr().String())
		if err := mux.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("cmux: %w", err)
		}
		return nil
	})

	// Runs on a signal or on the first server error.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		gs.GracefulStop()
		err := srv.Shutdown(shutdownCtx)
		mux.Close()
		if err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// buildStrategy picks the engine named by ENGINE_PROVIDER. A nil strategy
// means every decision comes from the screening rules.
func buildStrategy(ctx context.Context, cfg *config.Config, logger *slog.Logger) (analysis.Strategy, error) {
	if !cfg.EngineEnabled() {
		logger.Info("analysis: no engine configured, using screening rules only")
		return nil, nil
	}

	var engine ai.Engine
	switch cfg.EngineProvider {
	case config.ProviderOpenAI:
		engine = ai.NewOpenAIEngine(cfg.EngineAPIKey, cfg.EngineModel, cfg.EngineBaseURL)
	case config.ProviderAnthropic:
		engine = ai.NewAnthropicEngine(cfg.EngineAPIKey, cfg.EngineModel, cfg.EngineBaseURL)
	case config.ProviderGemini:
		var err error
		engine, err = ai.NewGeminiEngine(ctx, cfg.EngineAPIKey, cfg.EngineModel, cfg.EngineBaseURL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.EngineProvider)
	}

	runner := analysis.NewStageRunner(engine, analysis.RunnerConfig{StageTimeout: cfg.StageTimeout}, logger)
	strategy, err := analysis.NewStrategy(cfg.AnalysisStrategy, runner)
	if err != nil {
		return nil, err
	}
	logger.Info("analysis: engine configured", "engine", engine.Name(), "strategy", strategy.Name())
	return strategy, nil
}

// openDB opens the connection pool, verifies it and applies the schema.
func openDB(ctx context.Context, dsn string) (*sql.DB, *db.Queries, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}

	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(10)
	pool.SetConnMaxLifetime(5 * time.Minute)
	pool.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}

	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	return pool, db.New(pool), nil
}

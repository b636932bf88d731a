package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/skillsense/assessment-backend/internal/config"
	"github.com/skillsense/assessment-backend/internal/database"
	"github.com/skillsense/assessment-backend/internal/handler"
	"github.com/skillsense/assessment-backend/internal/logger"
	"github.com/skillsense/assessment-backend/internal/metrics"
	"github.com/skillsense/assessment-backend/internal/middleware"
	"github.com/skillsense/assessment-backend/internal/proctor"
	"github.com/skillsense/assessment-backend/internal/repository"
	"github.com/skillsense/assessment-backend/internal/retrieval"
	"github.com/skillsense/assessment-backend/internal/router"
	"github.com/skillsense/assessment-backend/internal/service"
	"github.com/skillsense/assessment-backend/internal/validator"
	"github.com/skillsense/assessment-backend/internal/worker"
)

const eventBufferSize = 1024

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("retrieval_url", cfg.RetrievalBaseURL).
		Msg("Starting assessment backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	escalation, err := proctor.ParseEscalation(cfg.IntegrityEscalation)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid INTEGRITY_ESCALATION")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	m := metrics.New()

	// ─── Initialize Repositories ───────────────────────────────────────
	skillRepo := repository.NewSkillRepository(pool)
	resultRepo := repository.NewTestResultRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	retrievalClient := retrieval.NewWithTimeout(cfg.RetrievalBaseURL, cfg.RetrievalTimeout)
	eventQueue := worker.NewRedisQueue(rdb)
	publisher := service.NewEventPublisher(eventQueue, eventBufferSize, log)

	authService := service.NewAuthService(cfg)
	sessionService := service.NewTestSessionService(
		skillRepo,
		service.NewRedisActiveGuard(rdb),
		retrievalClient,
		resultRepo,
		publisher,
		m,
		service.SessionConfig{
			Budget:            cfg.TestDuration,
			Questions:         cfg.TestQuestionCount,
			DefaultSelfRating: cfg.DefaultSelfRating,
			Policy: proctor.IntegrityPolicy{
				MaxViolations: cfg.IntegrityMaxViolations,
				Escalation:    escalation,
			},
		},
		log,
	)
	resultService := service.NewResultService(resultRepo, skillRepo, retrievalClient, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Test:   handler.NewTestHandler(sessionService, log),
		Result: handler.NewResultHandler(resultService, log),
		WS:     handler.NewWSHandler(sessionService, proctor.Ticker{Interval: time.Second}, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	auditWorker := worker.NewAuditWorker(pool, eventQueue, log, func(n int) {
		m.AuditEventsWritten.Add(float64(n))
	})
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		auditWorker.Start(workerCtx)
	}()

	publisherDone := make(chan struct{})
	go func() {
		defer close(publisherDone)
		publisher.Run(workerCtx)
	}()

	startLimiter := middleware.NewRateLimiter(cfg.StartRatePerMinute, time.Minute)
	limiterStop := make(chan struct{})
	go startLimiter.Cleanup(limiterStop)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, m, startLimiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked websocket
	// connections are not tracked by the server.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	close(limiterStop)

	// 2. Abandon live sessions so their outcomes reach the audit queue.
	sessionCtx, sessionCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer sessionCancel()
	if err := sessionService.Shutdown(sessionCtx); err != nil {
		log.Error().Err(err).Int("live", sessionService.Live()).Msg("Sessions did not retire in time")
	}

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	<-publisherDone
	<-auditDone

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

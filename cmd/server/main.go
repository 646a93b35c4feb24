package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/examly/examly-backend/internal/config"
	"github.com/examly/examly-backend/internal/database"
	"github.com/examly/examly-backend/internal/handler"
	"github.com/examly/examly-backend/internal/logger"
	"github.com/examly/examly-backend/internal/repository"
	"github.com/examly/examly-backend/internal/router"
	"github.com/examly/examly-backend/internal/service"
	"github.com/examly/examly-backend/internal/validator"
	"github.com/examly/examly-backend/internal/worker"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Examly Backend")

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Repositories.
	sessionRepo := repository.NewSessionRepository(pool)
	paperRepo := repository.NewPaperRepository(pool)
	recordRepo := repository.NewRecordRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	ledger := repository.NewAnswerLedger(rdb)
	previewStore := repository.NewPreviewStore(rdb, cfg.PreviewTTL)
	stream := repository.NewEventStream(rdb)

	// Services.
	authService := service.NewAuthService(cfg, userRepo)
	attemptService := service.NewAttemptService(sessionRepo, paperRepo, recordRepo, ledger, stream)
	previewService := service.NewPreviewService(sessionRepo, paperRepo, previewStore)

	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Attempt: handler.NewAttemptHandler(attemptService),
		Preview: handler.NewPreviewHandler(previewService),
		Monitor: handler.NewMonitorHandler(sessionRepo, stream, cfg.AllowedOrigins),
	}

	// Background workers: write-behind answer persistence and session stats.
	// Neither drives lifecycle decisions; expiry is computed per request.
	workerCtx, workerCancel := context.WithCancel(context.Background())

	answerWorker := worker.NewAnswerWorker(pool, rdb)
	statsWorker := worker.NewStatsWorker(pool, rdb)

	go answerWorker.Start(workerCtx)
	go statsWorker.Start(workerCtx)

	r := router.SetupRouter(authService, handlers, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/database"
	"github.com/quizdesk/quizdesk-backend/internal/handler"
	"github.com/quizdesk/quizdesk-backend/internal/logger"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/quizdesk/quizdesk-backend/internal/router"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/quizdesk/quizdesk-backend/internal/validator"
	"github.com/quizdesk/quizdesk-backend/internal/worker"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting QuizDesk Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

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

	// ─── Initialize Repositories ───────────────────────────────────────
	studentRepo := repository.NewStudentRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)
	quizRepo := repository.NewQuizRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	contentService := service.NewQuizContentService(quizRepo, questionRepo, rdb, log)
	guard := service.NewSessionGuard(attemptRepo, quizRepo)
	attemptService := service.NewAttemptService(guard, attemptRepo, contentService, service.NewRedisAttemptCache(rdb), log)
	coordinator := service.NewSubmissionCoordinator(attemptRepo, service.NewRedisScoringQueue(rdb), cfg.SubmitGrace, log)
	violationService := service.NewViolationService(attemptRepo, violationRepo, service.NewRedisMonitorPublisher(rdb), log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, studentRepo, adminRepo),
		Attempt: handler.NewAttemptHandler(attemptService, violationService, coordinator),
		Monitor: handler.NewMonitorHandler(attemptService, violationService, rdb, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	answerWorker := worker.NewAnswerWorker(pool, rdb, log)
	scoringWorker := worker.NewScoringWorker(attemptRepo, questionRepo, answerRepo, service.NewRedisScoringQueue(rdb), rdb, log)
	sweeper := worker.NewExpirySweeper(attemptRepo, coordinator, cfg.SweepBatchSize, log)

	go answerWorker.Start(workerCtx)
	go scoringWorker.Start(workerCtx)

	// ─── Schedule Periodic Jobs ───────────────────────────────────────
	// The sweeper finalizes overdue attempts; the reconcile pass catches
	// terminal attempts whose score job was lost.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.SweepInterval), func() {
		sweeper.Run(workerCtx)
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule expiry sweep")
	}
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.ReconcileInterval), func() {
		scoringWorker.Reconcile(workerCtx)
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule scoring reconcile")
	}
	scheduler.Start()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load open and upcoming quizzes into Redis BEFORE accepting traffic.
	// This avoids race conditions from lazy loading under thundering herd.
	if err := contentService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

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

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the scheduler and wait for any in-flight sweep to finish.
	<-scheduler.Stop().Done()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

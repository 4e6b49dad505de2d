package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dmitryplyaskin/pathwise-backend/internal/ai"
	"github.com/dmitryplyaskin/pathwise-backend/internal/config"
	"github.com/dmitryplyaskin/pathwise-backend/internal/database"
	"github.com/dmitryplyaskin/pathwise-backend/internal/handler"
	"github.com/dmitryplyaskin/pathwise-backend/internal/logger"
	"github.com/dmitryplyaskin/pathwise-backend/internal/repository"
	"github.com/dmitryplyaskin/pathwise-backend/internal/router"
	"github.com/dmitryplyaskin/pathwise-backend/internal/service"
	"github.com/dmitryplyaskin/pathwise-backend/internal/validator"
	"github.com/dmitryplyaskin/pathwise-backend/internal/worker"
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
		Msg("Starting Pathwise Backend")

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
	userRepo := repository.NewUserRepository(pool)
	courseRepo := repository.NewCourseRepository(pool)
	lessonRepo := repository.NewLessonRepository(pool)
	testRepo := repository.NewTestRepository(pool)

	// ─── Initialize LLM Collaborators ──────────────────────────────────
	llm := ai.NewClient(cfg)
	generator := ai.NewGenerator(llm, cfg.GeneratorTimeout)
	judge := ai.NewJudge(llm, cfg.JudgeTimeout)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo)
	courseService := service.NewCourseService(courseRepo)
	lessonService := service.NewLessonService(lessonRepo, courseService)
	evaluationService := service.NewEvaluationService(judge, log)
	progressService := service.NewProgressService(lessonRepo, log)
	repairQueue := worker.NewRedisRepairQueue(rdb)
	practiceService := service.NewPracticeService(
		lessonRepo, courseRepo, testRepo,
		generator, evaluationService, progressService, repairQueue,
		rdb, log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Course:   handler.NewCourseHandler(courseService),
		Lesson:   handler.NewLessonHandler(lessonService),
		Practice: handler.NewPracticeHandler(practiceService),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	repairWorker := worker.NewScheduleRepairWorker(progressService, rdb, log)
	go repairWorker.Start(workerCtx)

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

	// 2. Stop the repair worker and let in-flight items finish.
	workerCancel()
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

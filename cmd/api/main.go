package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/aula-lms/aula-api/internal/config"
	"github.com/aula-lms/aula-api/internal/database"
	"github.com/aula-lms/aula-api/internal/handler"
	"github.com/aula-lms/aula-api/internal/middleware"
	"github.com/aula-lms/aula-api/internal/models"
	"github.com/aula-lms/aula-api/internal/repository"
	"github.com/aula-lms/aula-api/internal/router"
	"github.com/aula-lms/aula-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Course{},
		&models.Enrollment{},
		&models.Assessment{},
		&models.Question{},
		&models.Submission{},
		&models.UserProgress{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, lifecycle events disabled")
	} else {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assessmentRepo := repository.NewAssessmentRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	events := service.NewEventPublisher(natsConn, redisClient, cfg.EventChannelBase, logger)
	progressService := service.NewProgressService(progressRepo, redisClient, cfg.ProgressCacheTTL, logger)
	attemptService := service.NewAttemptService(submissionRepo, assessmentRepo, questionRepo, enrollmentRepo, progressService, events, redisClient, cfg.ResultsCacheTTL, validate, logger)
	assessmentService := service.NewAssessmentService(assessmentRepo, questionRepo, submissionRepo, redisClient, validate, logger)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, validate, logger)

	attemptHandler := handler.NewAttemptHandler(attemptService, logger)
	assessmentHandler := handler.NewAssessmentHandler(assessmentService, logger)
	progressHandler := handler.NewProgressHandler(progressService, validate, logger)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AttemptHandler:    attemptHandler,
		AssessmentHandler: assessmentHandler,
		ProgressHandler:   progressHandler,
		EnrollmentHandler: enrollmentHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}

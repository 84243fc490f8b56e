package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/preschool-homework-api/api/swagger"
	"github.com/noah-isme/preschool-homework-api/internal/handler"
	"github.com/noah-isme/preschool-homework-api/internal/repository"
	"github.com/noah-isme/preschool-homework-api/internal/service"
	"github.com/noah-isme/preschool-homework-api/pkg/cache"
	"github.com/noah-isme/preschool-homework-api/pkg/config"
	"github.com/noah-isme/preschool-homework-api/pkg/database"
	"github.com/noah-isme/preschool-homework-api/pkg/logger"
)

// @title Preschool Homework API
// @version 1.0.0
// @description Homework assignment, submission and notification service for preschool classes.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		// submissions stay correct without the lock; the unique key is authoritative
		logr.Warn("redis unavailable, submission lock disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	location := time.UTC
	if cfg.Homework.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Homework.Timezone)
		if err != nil {
			return fmt.Errorf("load HOMEWORK_TIMEZONE: %w", err)
		}
		location = loc
	}

	homeworkRepo := repository.NewHomeworkRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	childRepo := repository.NewChildRepository(db)
	staffRepo := repository.NewStaffRepository(db)
	classRepo := repository.NewClassRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	legacyRepo := repository.NewLegacyRepository(db)
	lockRepo := repository.NewLockRepository(redisClient, logr)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	dispatcher := service.NewOutboxDispatcher(outboxRepo, notificationRepo, notificationRepo, metricsSvc, logr, service.DispatcherConfig{
		Workers:      cfg.Outbox.Workers,
		BufferSize:   cfg.Outbox.BufferSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		RetryDelay:   cfg.Outbox.RetryDelay,
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		StaleAfter:   cfg.Outbox.StaleAfter,
	})

	homeworkSvc := service.NewHomeworkService(homeworkRepo, childRepo, staffRepo, classRepo, submissionRepo, dispatcher, metricsSvc, validate, logr, service.HomeworkConfig{Location: location})
	submissionSvc := service.NewSubmissionService(submissionRepo, homeworkRepo, childRepo, staffRepo, lockRepo, dispatcher, metricsSvc, validate, logr, service.SubmissionConfig{LockTTL: cfg.Redis.LockTTL})
	notificationSvc := service.NewNotificationService(notificationRepo, logr)
	exportSvc := service.NewExportService(homeworkSvc, logr)
	maintenanceSvc := service.NewMaintenanceService(homeworkRepo, staffRepo, classRepo, legacyRepo, logr)

	router := newRouter(cfg, logr, routerDeps{
		auth:         authSvc,
		metrics:      metricsSvc,
		homework:     handler.NewHomeworkHandler(homeworkSvc, exportSvc),
		submissions:  handler.NewSubmissionHandler(submissionSvc),
		notification: handler.NewNotificationHandler(notificationSvc),
		maintenance:  handler.NewMaintenanceHandler(maintenanceSvc),
		health:       handler.NewMetricsHandler(metricsSvc, db),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logr.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

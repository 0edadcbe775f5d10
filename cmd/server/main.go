package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/config"
	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/metrics"
	"github.com/mamadbah2/equiptrack/internal/repository/mongodb"
	"github.com/mamadbah2/equiptrack/internal/repository/sessions"
	"github.com/mamadbah2/equiptrack/internal/repository/sheets"
	"github.com/mamadbah2/equiptrack/internal/scheduler"
	"github.com/mamadbah2/equiptrack/internal/server/handlers"
	"github.com/mamadbah2/equiptrack/internal/server/router"
	authsvc "github.com/mamadbah2/equiptrack/internal/service/auth"
	inventorysvc "github.com/mamadbah2/equiptrack/internal/service/inventory"
	loansvc "github.com/mamadbah2/equiptrack/internal/service/loans"
	reportingsvc "github.com/mamadbah2/equiptrack/internal/service/reporting"
	"github.com/mamadbah2/equiptrack/internal/storage"
	s3store "github.com/mamadbah2/equiptrack/internal/storage/s3"
	"github.com/mamadbah2/equiptrack/pkg/clients/notifier"
	"github.com/mamadbah2/equiptrack/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level, cfg.Log.Env))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx := context.Background()

	mongoRepo, err := mongodb.NewMongoDBRepository(ctx, mongodb.Options{
		URI:          cfg.MongoDB.URI,
		Database:     cfg.MongoDB.DBName,
		Transactions: cfg.MongoDB.Transactions,
	}, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	defer func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	blobs, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		baseLogger.Fatal("failed to init blob storage", zap.Error(err))
	}
	baseLogger.Info("blob storage ready", zap.String("driver", string(blobs.Driver())))

	var sessionStore sessions.Store
	if cfg.Auth.SessionStoreDriver == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			baseLogger.Fatal("failed to reach redis", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				baseLogger.Error("failed to close redis connection", zap.Error(err))
			}
		}()
		sessionStore = sessions.NewRedisStore(rdb)
	} else {
		baseLogger.Warn("sessions kept in memory, they will not survive a restart")
		sessionStore = sessions.NewMemoryStore(time.Now)
	}

	var exporter sheets.ReportExporter
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		exporter = sheets.NewExporter(sheetsRepo, cfg.Sheets.Range, baseLogger.Named("repo.sheets"))
		baseLogger.Info("report export to google sheets enabled")
	}

	var reminders notifier.Client
	if cfg.Notifier.Enabled() {
		reminders = notifier.NewClient(cfg.Notifier)
		baseLogger.Info("overdue reminders enabled")
	} else {
		baseLogger.Warn("notifier webhook missing, overdue reminders will only be logged")
	}

	m := metrics.New()

	inventory := inventorysvc.NewService(mongoRepo, blobs, inventorysvc.Options{
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		URLExpiry:     cfg.Storage.URLExpiry,
		Metrics:       m,
	}, baseLogger.Named("svc.inventory"))
	loans := loansvc.NewService(mongoRepo, loansvc.Options{Images: inventory, Metrics: m}, baseLogger.Named("svc.loans"))
	reporting := reportingsvc.NewService(mongoRepo, exporter, cfg.Reporting.Location(), baseLogger.Named("svc.reporting"))

	auth := authsvc.NewService(mongoRepo, sessionStore, cfg.Auth, baseLogger.Named("svc.auth"))
	defer auth.Close()
	authLogger := baseLogger.Named("auth.events")
	auth.OnSessionChange(func(event models.SessionEvent) {
		authLogger.Info("session changed",
			zap.String("event", string(event.Type)),
			zap.String("user_id", event.Session.UserID),
			zap.String("session_id", event.Session.ID))
	})

	engine := router.New(router.Handlers{
		Auth:      handlers.NewAuthHandler(auth, baseLogger.Named("handlers.auth")),
		Equipment: handlers.NewEquipmentHandler(inventory, baseLogger.Named("handlers.equipment")),
		Loans:     handlers.NewLoanHandler(loans, reporting, baseLogger.Named("handlers.loans")),
		Reports:   handlers.NewReportHandler(reporting, baseLogger.Named("handlers.reports")),
	}, router.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        m,
	}, baseLogger.Named("router"))

	sched := scheduler.NewScheduler(cfg.Reporting, reporting, reminders, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-sigCtx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	if storage.Driver(cfg.Driver) != storage.DriverS3 {
		return storage.NewMemory(), nil
	}
	return s3store.New(ctx, s3store.Config{
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		PathStyle:       cfg.UsePathStyle,
	})
}

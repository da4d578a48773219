package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/motorworks/invoicegen/auth"
	"github.com/motorworks/invoicegen/internal/config"
	"github.com/motorworks/invoicegen/internal/db"
	"github.com/motorworks/invoicegen/internal/logging"
	"github.com/motorworks/invoicegen/internal/models"
	"github.com/motorworks/invoicegen/view"
	"go.uber.org/zap"
)

var (
	migrateOnlyFlag   = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag      = flag.Bool("seed-only", false, "Run DB seed and exit")
	sendFollowUpsFlag = flag.Bool("send-followups", false, "Send every due follow-up message and exit")
	templatesDirFlag  = flag.String("templates", "", "Serve templates from this directory instead of the embedded set")
)

func main() {
	flag.Parse()

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg := config.Load()

	logger, err := logging.New(cfg.App.Dev)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dbConn, err := db.Connect(cfg.Database, logger)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}

	if *migrateOnlyFlag {
		if err := db.Migrate(dbConn, db.DSN(cfg.Database), cfg.App.Migrations, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		logger.Info("migrations completed")
		return
	}
	if *seedOnlyFlag {
		if err := db.Seed(dbConn, cfg.Business.Name); err != nil {
			logger.Fatal("seed", zap.Error(err))
		}
		logger.Info("seeding completed")
		return
	}

	if err := db.Migrate(dbConn, db.DSN(cfg.Database), cfg.App.Migrations, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	if err := db.Seed(dbConn, cfg.Business.Name); err != nil {
		logger.Fatal("seed", zap.Error(err))
	}

	components, err := Build(dbConn, cfg, logger)
	if err != nil {
		logger.Fatal("configure services", zap.Error(err))
	}

	if *sendFollowUpsFlag {
		code := sendFollowUps(components, logger)
		_ = logger.Sync()
		os.Exit(code)
	}

	auth.SetSecret(cfg.App.SessionSecret)
	// Sessions of deleted users stop working immediately.
	auth.SetUserVerifier(func(ctx context.Context, uid uint) bool {
		var count int64
		dbConn.WithContext(ctx).Model(&models.User{}).Where("id = ?", uid).Count(&count)
		return count > 0
	})
	if *templatesDirFlag != "" {
		view.SetDir(*templatesDirFlag)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      logging.Middleware(logger, NewApp(dbConn, cfg, components, logger)),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port), zap.Bool("dev", cfg.App.Dev))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// sendFollowUps runs one batch and returns the process exit code.
func sendFollowUps(c *Components, logger *zap.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := c.FollowUps.RunDue(ctx)
	logger.Info("follow-up batch",
		zap.Int("due", report.Due),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Bool("aborted", report.Aborted),
		zap.Strings("errors", report.Errors),
	)
	if err != nil {
		logger.Error("follow-up batch failed", zap.Error(err))
		return 1
	}
	return 0
}

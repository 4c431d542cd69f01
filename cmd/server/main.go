// Command server runs the CitizenLink complaint-management API.
//
// Startup order: env file, config, logging, database (with migrations),
// tracing, the reminder cron, and finally the HTTP server with graceful
// shutdown.
//
// @title        CitizenLink API
// @version      1.0
// @description  Citizen complaint intake, triage, and resolution tracking.
// @BasePath     /api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	_ "github.com/citizenlink/citizenlink-api/docs"
	"github.com/citizenlink/citizenlink-api/internal/config"
	httpapi "github.com/citizenlink/citizenlink-api/internal/http"
	"github.com/citizenlink/citizenlink-api/internal/observability"
	"github.com/citizenlink/citizenlink-api/internal/repo"
	"github.com/citizenlink/citizenlink-api/internal/services"
	"github.com/citizenlink/citizenlink-api/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	// Background escalation sweep over stale complaints.
	notifier := &services.StoreNotifier{
		DB:          db,
		SendGridKey: cfg.Mail.SendGridKey,
		FromEmail:   cfg.Mail.FromEmail,
	}
	reminderSvc := services.NewReminderService(db, notifier)
	sched := cron.New()
	if _, err := sched.AddFunc(cfg.SweepSchedule, func() {
		if _, err := reminderSvc.Sweep(context.Background()); err != nil {
			log.Error().Err(err).Msg("reminder sweep failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.SweepSchedule).Msg("register reminder sweep")
	}
	sched.Start()

	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	<-sched.Stop().Done()
	if err := srv.Shutdown(stopCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := shutdownOTel(stopCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
	log.Info().Msg("bye")
}

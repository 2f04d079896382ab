package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CaioWing/Tether/internal/api"
	"github.com/CaioWing/Tether/internal/app"
	"github.com/CaioWing/Tether/internal/auth"
	"github.com/CaioWing/Tether/internal/config"
)

var version = "dev"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Info("starting Tether",
		"version", version,
		"listen", cfg.ListenAddr(),
		"db_driver", cfg.DB.Driver,
		"storage", cfg.Storage.Path,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// Anything still marked connected/executing belongs to a previous process.
	if _, err := a.Orchestrator.Recover(ctx); err != nil {
		return fmt.Errorf("recover deployments: %w", err)
	}

	go a.Cleanup.StartScheduler(ctx, cfg.Cleanup.Interval)

	password := cfg.Auth.AdminPassword
	if password == "" {
		password = randomPassword()
		log.Warn("TETHER_ADMIN_PASSWORD not set, generated a one-time admin password",
			"user", cfg.Auth.AdminUser, "password", password)
	}
	admin, err := auth.NewAdmin(cfg.Auth.AdminUser, password)
	if err != nil {
		return err
	}

	router := api.NewRouter(ctx, api.RouterDeps{
		DeviceSvc:     a.Devices,
		PayloadSvc:    a.Payloads,
		DeploymentSvc: a.Deployments,
		AuditSvc:      a.Audit,
		Orchestrator:  a.Orchestrator,
		Diagnostics:   a.Diagnostics,
		JWTManager:    auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry),
		Admin:         admin,
		Metrics:       a.Metrics,
		CORSOrigins:   cfg.CORS.AllowedOrigins,
		Logger:        log,
		Version:       version,
	})

	// The synchronous deploy endpoint holds the response for a whole run.
	runBudget := cfg.Deploy.OpenTimeout + cfg.Deploy.AckTimeout + cfg.Deploy.ResultTimeout
	srv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: runBudget + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.ListenAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), runBudget)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	// Runs still in flight get until the deadline, then are failed as interrupted.
	a.Orchestrator.Shutdown(shutdownCtx)

	log.Info("server stopped")
	return nil
}

func randomPassword() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Spok95/achievement-service/internal/bootstrap"
	"github.com/Spok95/achievement-service/internal/config"
	"github.com/Spok95/achievement-service/internal/httpapi"
	"github.com/Spok95/achievement-service/internal/jobs"
	"github.com/Spok95/achievement-service/internal/logging"
	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/observability"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logging.Init(cfg.LogLevel, cfg.Env, "achievement-api")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Closer()

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, os.Getenv("RELEASE"))
	if err != nil {
		lg.Base.Warn("sentry init failed", zap.Error(err))
	}
	defer flush()

	if cfg.JWTSecret == "" {
		lg.Base.Fatal("JWT_SECRET is empty")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg, lg.Base)
	if err != nil {
		lg.Base.Fatal("bootstrap", zap.Error(err))
	}
	defer deps.Close()

	runner := jobs.New(ctx, lg.Base)
	jobs.Register(runner, deps.Service, cfg.ReconcileInterval, cfg.FeatureExpiryInterval)

	roles := make([]models.Role, 0, len(cfg.ApproverRoles))
	for _, r := range cfg.ApproverRoles {
		roles = append(roles, models.Role(r))
	}
	srv := httpapi.New(deps.Service, httpapi.Options{
		JWTSecret:     cfg.JWTSecret,
		ApproverRoles: roles,
		Location:      cfg.Location,
		Logger:        lg.Base,
		Health:        deps.Health,
	})

	go func() {
		lg.Base.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.Storage))
		if err := srv.Listen(cfg.HTTPAddr); err != nil {
			lg.Base.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Base.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Base.Warn("http shutdown", zap.Error(err))
	}
	runner.Wait()
}

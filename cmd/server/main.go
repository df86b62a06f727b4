package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"github.com/Mayank009/cashew/internal/app"
	"github.com/Mayank009/cashew/internal/config"
	"github.com/Mayank009/cashew/internal/events"
	"github.com/Mayank009/cashew/internal/gateway"
	"github.com/Mayank009/cashew/internal/httpserver"
	"github.com/Mayank009/cashew/internal/lifecycle"
	"github.com/Mayank009/cashew/internal/migrations"
	"github.com/Mayank009/cashew/internal/money"
	"github.com/Mayank009/cashew/internal/store"
	"github.com/Mayank009/cashew/internal/worker"
)

func main() {
	// Best-effort: load environment variables from .env-style files in local
	// development. These calls are safe to ignore in production environments.
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	cfg, err := config.Load()
	if err != nil {
		app.NewLogger("cashew", "error").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := app.NewLogger("cashew", cfg.LogLevel)
	money.SetLocale(language.Make(cfg.Locale))

	db, err := app.OpenDB(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.New(db, cfg.Tables, logger.Named("migrations")).UpWithDirtyFix(); err != nil {
		logger.Error("failed to apply database migrations", "error", err)
		os.Exit(1)
	}

	subs, err := store.New(db, cfg.Tables)
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}

	sink, closeSink, err := app.NewEventSink(cfg, subs, logger)
	if err != nil {
		logger.Error("failed to set up event sink", "error", err)
		os.Exit(1)
	}
	defer closeSink()

	deps := httpserver.Deps{DB: db, Logger: logger.Named("http")}

	gw, err := app.NewGateway(cfg, logger)
	switch {
	case err == nil:
		deps.Events = gw
		deps.Dispatcher = app.NewDispatcher(subs, sink, logger)
	case errors.Is(err, app.ErrNoGateway):
		logger.Warn("running without a payment gateway", "reason", err)
	default:
		logger.Error("failed to create gateway", "error", err)
		os.Exit(1)
	}

	if cfg.SweepInterval > 0 {
		deps.Worker = newSweeper(cfg, gw, subs, sink, logger)
	}

	srv := httpserver.New(cfg, deps)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// newSweeper schedules the expiry of ended cancellations. The sweep never
// calls the gateway, so it also runs when gw is nil.
func newSweeper(cfg config.Config, gw gateway.Gateway, subs *store.SubscriptionStore, sink events.Sink, logger hclog.Logger) *worker.Worker {
	svc := lifecycle.New(gw, subs, sink, logger.Named("lifecycle"))

	w := worker.New(worker.DefaultConfig(), logger.Named("worker"))
	if err := w.Every("expire_subscriptions", cfg.SweepInterval, func(ctx context.Context) error {
		_, err := svc.ExpireEnded(ctx)
		return err
	}); err != nil {
		logger.Error("failed to schedule expiry sweep", "error", err)
		os.Exit(1)
	}
	return w
}

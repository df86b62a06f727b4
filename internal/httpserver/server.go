package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mayank009/cashew/internal/config"
	"github.com/Mayank009/cashew/internal/handlers"
	requesttracking "github.com/Mayank009/cashew/internal/middleware"
	"github.com/Mayank009/cashew/internal/worker"
)

// Deps are the collaborators the routes need. DB may be nil, in which case
// /healthz does not check the database. Worker, when set, runs alongside the
// HTTP server.
type Deps struct {
	DB         handlers.Pinger
	Events     handlers.EventFetcher
	Dispatcher handlers.EventDispatcher
	Worker     *worker.Worker
	Logger     hclog.Logger
}

// Server wraps an http.Server with convenience helpers for startup/shutdown.
type Server struct {
	httpServer *http.Server
	worker     *worker.Worker
	logger     hclog.Logger
}

// New constructs an HTTP server using the provided configuration and dependencies.
func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(requesttracking.RequestTracker())

	router.Get("/healthz", handlers.Health(deps.DB))
	router.Handle("/metrics", promhttp.Handler())

	if deps.Events != nil && deps.Dispatcher != nil {
		router.Post("/webhooks/stripe", handlers.StripeWebhook(deps.Events, deps.Dispatcher, cfg.StripeWebhookSecret, logger.Named("webhook")))
	} else {
		logger.Warn("webhook route disabled: no gateway configured")
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GatewayTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, worker: deps.Worker, logger: logger}
}

// Start begins serving HTTP traffic and starts the worker.
func (s *Server) Start() error {
	if s.worker != nil {
		s.worker.Start(context.Background())
	}
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and worker.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.worker != nil {
		if err := s.worker.Stop(ctx); err != nil {
			s.logger.Error("worker shutdown error", "error", err)
		}
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

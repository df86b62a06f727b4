// Package app wires configuration into the concrete components shared by
// the server and the CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/Mayank009/cashew/internal/billing"
	"github.com/Mayank009/cashew/internal/config"
	"github.com/Mayank009/cashew/internal/events"
	"github.com/Mayank009/cashew/internal/gateway"
	"github.com/Mayank009/cashew/internal/hooks"
	"github.com/Mayank009/cashew/internal/metrics"
	stripeClient "github.com/Mayank009/cashew/internal/stripe"
)

// ErrNoGateway is returned by NewGateway when no Stripe key is configured.
var ErrNoGateway = errors.New("app: STRIPE_SECRET_KEY is not set")

// NewLogger builds the root logger. Components receive Named children.
func NewLogger(name, level string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  hclog.LevelFromString(level),
		Output: os.Stderr,
	})
}

// OpenDB opens and pings the Postgres database.
func OpenDB(ctx context.Context, cfg config.Config, logger hclog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("app: open database: %w", err)
	}

	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	logger.Info("database configured", "target", dbTarget(cfg.DatabaseURL))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: ping database: %w", err)
	}

	return db, nil
}

// dbTarget renders host and database name only, never credentials.
func dbTarget(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "unparsed dsn"
	}
	return fmt.Sprintf("host=%s db=%s", u.Hostname(), strings.TrimPrefix(u.Path, "/"))
}

// NewGateway builds the Stripe adapter behind a circuit breaker whose state
// is exported as a metric.
func NewGateway(cfg config.Config, logger hclog.Logger) (gateway.Gateway, error) {
	if cfg.StripeSecretKey == "" {
		return nil, ErrNoGateway
	}

	api := stripeClient.NewAPI(cfg.StripeSecretKey, &http.Client{Timeout: cfg.GatewayTimeout})
	adapter := stripeClient.New(api, logger.Named("stripe"))

	settings := gateway.DefaultBreakerSettings()
	settings.Name = "stripe"
	settings.Logger = logger.Named("breaker")
	settings.OnStateChange = func(name string, _, to gobreaker.State) {
		metrics.SetBreakerOpen(name, to == gobreaker.StateOpen)
	}

	return gateway.WithBreaker(adapter, settings), nil
}

// NewRedis builds the mail queue client.
func NewRedis(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
}

// NewEventSink builds the in-process bus. invoice.created events are recorded
// in the invoices table; with AMQP configured every event is also published
// to RabbitMQ. The returned close function releases the broker connection.
func NewEventSink(cfg config.Config, invoices hooks.InvoiceRecorder, logger hclog.Logger) (*events.Bus, func() error, error) {
	bus := events.NewBus(logger.Named("events"))
	bus.Subscribe(events.InvoiceCreated, hooks.NewLedger(invoices, logger.Named("ledger")))

	if cfg.AMQPURL == "" {
		return bus, func() error { return nil }, nil
	}

	publisher, err := events.NewRabbitMQPublisher(cfg.AMQPURL, logger.Named("rabbitmq"))
	if err != nil {
		return nil, nil, err
	}
	bus.Subscribe("", publisher)

	return bus, publisher.Close, nil
}

// NewDispatcher registers the gateway event hooks.
func NewDispatcher(subs hooks.SubscriptionFinder, sink events.Sink, logger hclog.Logger) *hooks.Dispatcher {
	d := hooks.NewDispatcher(logger.Named("hooks"))
	d.Register(billing.EventInvoiceCreated, hooks.NewInvoiceCreated(subs, sink, logger.Named("invoice_created")))
	return d
}

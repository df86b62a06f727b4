package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config captures runtime configuration values used by the server and CLI.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on. Defaults to ":18111".
	ServerAddress string `validate:"required"`

	// DatabaseURL is the Postgres DSN used by database/sql.
	DatabaseURL string `validate:"required"`

	// StripeSecretKey authenticates the gateway client. Optional for commands
	// that only touch the database.
	StripeSecretKey string

	// StripeWebhookSecret verifies the Stripe-Signature header. When empty,
	// webhook payloads are accepted unsigned and re-fetched by id.
	StripeWebhookSecret string

	// GatewayTimeout bounds every gateway HTTP call. Defaults to 30s.
	GatewayTimeout time.Duration `validate:"gt=0"`

	// RedisAddr is the mail queue's Redis endpoint. Defaults to "localhost:6379".
	RedisAddr string `validate:"required"`

	// AMQPURL enables the RabbitMQ event publisher when set.
	AMQPURL string `validate:"omitempty,url"`

	// MailFrom is the sender address placed on queued mail.
	MailFrom string `validate:"required,email"`

	// SweepInterval schedules the in-process expiry sweep. Zero disables it.
	SweepInterval time.Duration `validate:"gte=0"`

	// Locale is the BCP 47 tag amounts are rendered for. Defaults to "en".
	Locale string `validate:"required,bcp47_language_tag"`

	// LogLevel is passed to hclog. Defaults to "info".
	LogLevel string `validate:"oneof=trace debug info warn error"`

	Tables Tables
}

// Tables holds the resolved table names. They are read once at startup and
// passed to every component that builds SQL.
type Tables struct {
	Subscriptions string `validate:"required,sqlident"`
	Invoices      string `validate:"required,sqlident,nefield=Subscriptions"`
}

const (
	defaultServerAddress     = ":18111"
	defaultGatewayTimeout    = 30 * time.Second
	defaultRedisAddr         = "localhost:6379"
	defaultMailFrom          = "billing@cashew.local"
	defaultLogLevel          = "info"
	defaultLocale            = "en"
	defaultSubscriptionTable = "cashew_subscriptions"
	defaultInvoiceTable      = "cashew_invoices"

	envServerAddress       = "BACKEND_ADDR"
	envDatabaseURL         = "DATABASE_URL"
	envStripeSecretKey     = "STRIPE_SECRET_KEY"
	envStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"
	envGatewayTimeout      = "STRIPE_TIMEOUT"
	envRedisAddr           = "REDIS_ADDR"
	envAMQPURL             = "AMQP_URL"
	envMailFrom            = "MAIL_FROM"
	envLogLevel            = "LOG_LEVEL"
	envSweepInterval       = "CASHEW_SWEEP_INTERVAL"
	envLocale              = "CASHEW_LOCALE"
	envSubscriptionTable   = "CASHEW_SUBSCRIPTIONS_TABLE"
	envInvoiceTable        = "CASHEW_INVOICES_TABLE"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return identPattern.MatchString(fl.Field().String())
	})
	return v
}

// Load reads configuration from environment variables, applies defaults, and returns
// a Config structure. Required values return an error when missing.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress:       firstNonEmpty(os.Getenv(envServerAddress), defaultServerAddress),
		DatabaseURL:         os.Getenv(envDatabaseURL),
		StripeSecretKey:     os.Getenv(envStripeSecretKey),
		StripeWebhookSecret: os.Getenv(envStripeWebhookSecret),
		GatewayTimeout:      defaultGatewayTimeout,
		RedisAddr:           firstNonEmpty(os.Getenv(envRedisAddr), defaultRedisAddr),
		AMQPURL:             os.Getenv(envAMQPURL),
		MailFrom:            firstNonEmpty(os.Getenv(envMailFrom), defaultMailFrom),
		Locale:              firstNonEmpty(os.Getenv(envLocale), defaultLocale),
		LogLevel:            strings.ToLower(firstNonEmpty(os.Getenv(envLogLevel), defaultLogLevel)),
		Tables:              LoadTables(),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%s is required", envDatabaseURL)
	}

	if raw := os.Getenv(envGatewayTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envGatewayTimeout, err)
		}
		cfg.GatewayTimeout = d
	}

	if raw := os.Getenv(envSweepInterval); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envSweepInterval, err)
		}
		cfg.SweepInterval = d
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadTables resolves the configured table names, falling back to defaults.
func LoadTables() Tables {
	return Tables{
		Subscriptions: firstNonEmpty(os.Getenv(envSubscriptionTable), defaultSubscriptionTable),
		Invoices:      firstNonEmpty(os.Getenv(envInvoiceTable), defaultInvoiceTable),
	}
}

// DefaultTables returns the built-in table names.
func DefaultTables() Tables {
	return Tables{Subscriptions: defaultSubscriptionTable, Invoices: defaultInvoiceTable}
}

// Validate reports whether the table names are usable SQL identifiers.
func (t Tables) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid table names: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

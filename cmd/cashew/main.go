package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/Mayank009/cashew/internal/app"
	"github.com/Mayank009/cashew/internal/config"
	"github.com/Mayank009/cashew/internal/money"
)

var logger hclog.Logger = hclog.NewNullLogger()

type commandContext struct {
	correlationID uuid.UUID
	startedAt     time.Time
}

type commandContextKey struct{}

var rootCmd = &cobra.Command{
	Use:   "cashew",
	Short: "cashew - subscription billing maintenance",
	Long: `cashew runs the scheduled and operator tasks of the billing core:
card expiry reminders, expiring ended subscriptions, invoice sync and
schema management.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load("../.env", ".env")

		level := os.Getenv("LOG_LEVEL")
		if level == "" {
			level = "info"
		}
		logger = app.NewLogger("cashew", level)

		info := commandContext{correlationID: uuid.New(), startedAt: time.Now()}
		cmd.SetContext(context.WithValue(cmd.Context(), commandContextKey{}, info))
		logger.Debug("command start", "command", cmd.CommandPath(), "correlation_id", info.correlationID.String())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		info, ok := cmd.Context().Value(commandContextKey{}).(commandContext)
		if !ok {
			return
		}
		logger.Debug("command end",
			"command", cmd.CommandPath(),
			"correlation_id", info.correlationID.String(),
			"duration_ms", time.Since(info.startedAt).Milliseconds(),
		)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(
		pingExpiringCardCmd, expireSubscriptionsCmd, tableCmd, migrateCmd,
		subscribeCmd, updateCardCmd, changePlanCmd, cancelCmd, resumeCmd,
		syncInvoicesCmd, invoicesCmd, upcomingInvoiceCmd, chargeCmd,
	)
}

// openDB loads the full configuration and connects to the database.
func openDB(ctx context.Context) (config.Config, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	money.SetLocale(language.Make(cfg.Locale))

	db, err := app.OpenDB(ctx, cfg, logger)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, db, nil
}

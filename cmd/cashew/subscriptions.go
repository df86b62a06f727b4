package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mayank009/cashew/internal/app"
	"github.com/Mayank009/cashew/internal/lifecycle"
	"github.com/Mayank009/cashew/internal/store"
)

var cancelNow bool

var expireSubscriptionsCmd = &cobra.Command{
	Use:   "expire-subscriptions",
	Short: "Expire canceled subscriptions whose end date has passed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, db, closeSvc, err := newService(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer db.Close()
		defer closeSvc()

		expired, err := svc.ExpireEnded(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d subscriptions\n", expired)
		return err
	},
}

var syncInvoicesCmd = &cobra.Command{
	Use:   "sync-invoices <user-id>",
	Short: "Copy a user's gateway invoices into the invoices table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, db, closeSvc, err := newService(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()
		defer closeSvc()

		n, err := svc.SyncInvoices(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %d new invoices\n", n)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <user-id>",
	Short: "Cancel a user's subscription at the end of the period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, db, closeSvc, err := newService(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()
		defer closeSvc()

		return svc.Cancel(cmd.Context(), args[0], !cancelNow)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <user-id>",
	Short: "Withdraw a pending cancellation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, db, closeSvc, err := newService(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()
		defer closeSvc()

		return svc.Resume(cmd.Context(), args[0])
	},
}

func init() {
	cancelCmd.Flags().BoolVar(&cancelNow, "now", false, "cancel immediately instead of at period end")
}

// newService builds the lifecycle service. Expiring ended subscriptions
// never calls the gateway, so it may run without a Stripe key.
func newService(ctx context.Context, needGateway bool) (*lifecycle.Service, *sql.DB, func() error, error) {
	cfg, db, err := openDB(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	subs, err := store.New(db, cfg.Tables)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}

	gw, err := app.NewGateway(cfg, logger)
	if err != nil && needGateway {
		_ = db.Close()
		return nil, nil, nil, err
	}

	sink, closeSink, err := app.NewEventSink(cfg, subs, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}

	return lifecycle.New(gw, subs, sink, logger.Named("lifecycle")), db, closeSink, nil
}

package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mayank009/cashew/internal/billing"
	"github.com/Mayank009/cashew/internal/gateway"
	"github.com/Mayank009/cashew/internal/money"
)

var (
	subscribeOpts struct {
		plan     string
		quantity int64
		email    string
		source   string
		trialEnd string
	}
	changePlanQuantity int64
	invoicesCount      int
	chargeCurrency     string
	chargeDescription  string
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <user-id>",
	Short: "Start or restart a user's subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := gateway.CreateOptions{
			Email:       subscribeOpts.email,
			Description: "user " + args[0],
			Source:      subscribeOpts.source,
			Plan:        subscribeOpts.plan,
			Quantity:    subscribeOpts.quantity,
			Metadata:    map[string]string{"user_id": args[0]},
		}
		if subscribeOpts.trialEnd != "" {
			end, err := time.Parse(time.DateOnly, subscribeOpts.trialEnd)
			if err != nil {
				return fmt.Errorf("invalid --trial-end %q: %w", subscribeOpts.trialEnd, err)
			}
			opts.TrialEnd = &end
		}

		svc, db, closeSvc, err := newService(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()
		defer closeSvc()

		customer, err := svc.Subscribe(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "customer %s subscribed to %s (%s)\n",
			customer.ID, customer.Subscription.Plan, customer.Subscription.Status)
		return nil
	},
}

var updateCardCmd = &cobra.Command{
	Use:   "update-card <user-id> <card-token>",
	Short: "Replace the card on file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, db, closeSvc, err := newService(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()
		defer closeSvc()

		return svc.UpdateCard(cmd.Context(), args[0], args[1])
	},
}

var changePlanCmd = &cobra.Command{
	Use:   "change-plan <user-id> <plan>",
	Short: "Swap a user's plan and optionally the quantity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, db, closeSvc, err := newService(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()
		defer closeSvc()

		return svc.ChangePlan(cmd.Context(), args[0], args[1], changePlanQuantity)
	},
}

var invoicesCmd = &cobra.Command{
	Use:   "invoices <user-id>",
	Short: "List a user's stored invoices, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, db, closeSvc, err := newService(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer db.Close()
		defer closeSvc()

		invoices, err := svc.Invoices(cmd.Context(), args[0], invoicesCount)
		if err != nil {
			return err
		}
		for _, inv := range invoices {
			writeInvoice(cmd.OutOrStdout(), inv)
		}
		return nil
	},
}

var upcomingInvoiceCmd = &cobra.Command{
	Use:   "upcoming-invoice <user-id>",
	Short: "Preview a user's next invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, db, closeSvc, err := newService(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()
		defer closeSvc()

		inv, err := svc.UpcomingInvoice(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		writeInvoice(cmd.OutOrStdout(), *inv)
		return nil
	},
}

var chargeCmd = &cobra.Command{
	Use:   "charge <user-id> <amount>",
	Short: "Add a one-off line to a user's next invoice",
	Long: `charge adds an invoice item. The amount is in the currency's minor
unit; a negative amount is a credit (pass it after "--").`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}

		svc, db, closeSvc, err := newService(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()
		defer closeSvc()

		item, err := svc.Charge(cmd.Context(), args[0], amount, chargeCurrency, chargeDescription)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s %s as %s\n",
			money.Format(item.Amount, item.Currency), item.Currency, item.ID)
		return nil
	},
}

func init() {
	subscribeCmd.Flags().StringVar(&subscribeOpts.plan, "plan", "", "gateway plan id")
	subscribeCmd.Flags().Int64Var(&subscribeOpts.quantity, "quantity", 0, "plan quantity, 0 keeps the gateway default")
	subscribeCmd.Flags().StringVar(&subscribeOpts.email, "email", "", "customer email for new customers")
	subscribeCmd.Flags().StringVar(&subscribeOpts.source, "source", "", "tokenized card")
	subscribeCmd.Flags().StringVar(&subscribeOpts.trialEnd, "trial-end", "", "trial end date (YYYY-MM-DD)")
	_ = subscribeCmd.MarkFlagRequired("plan")

	changePlanCmd.Flags().Int64Var(&changePlanQuantity, "quantity", 0, "new quantity, 0 keeps the current one")
	invoicesCmd.Flags().IntVar(&invoicesCount, "count", 10, "number of invoices to list")

	chargeCmd.Flags().StringVar(&chargeCurrency, "currency", "usd", "ISO 4217 currency code")
	chargeCmd.Flags().StringVar(&chargeDescription, "description", "", "line description")
}

func writeInvoice(w io.Writer, inv billing.Invoice) {
	fmt.Fprintf(w, "%s\t%s\t%s - %s\ttotal %s\tsubtotal %s",
		inv.ID, inv.DateFormatted(), inv.PeriodStartFormatted(), inv.PeriodEndFormatted(),
		inv.FormattedTotal(), inv.FormattedSubtotal())
	if inv.HasDiscount() {
		fmt.Fprintf(w, "\tdiscount %s", inv.FormattedDiscount())
	}
	fmt.Fprintln(w)
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Mayank009/cashew/internal/app"
	"github.com/Mayank009/cashew/internal/mail"
	"github.com/Mayank009/cashew/internal/notifier"
	"github.com/Mayank009/cashew/internal/store"
)

var pingUserID string

var pingExpiringCardCmd = &cobra.Command{
	Use:   "ping-expiring-card <days>...",
	Short: "Queue reminders for cards expiring in exactly the given days",
	Long: `Scans every subscription with a card on file and queues one reminder
per subscription whose card expires in exactly one of the given numbers of
days. Individual delivery failures are reported but do not stop the run.

Examples:
  cashew ping-expiring-card 7 30
  cashew ping-expiring-card 3 --user 42`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		intervals, err := parseIntervals(args)
		if err != nil {
			return err
		}

		cfg, db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		subs, err := store.New(db, cfg.Tables)
		if err != nil {
			return err
		}
		users, err := store.NewUsers(db)
		if err != nil {
			return err
		}

		rdb := app.NewRedis(cfg)
		defer rdb.Close()

		queue := mail.NewQueue(rdb, cfg.MailFrom, logger.Named("mail"))
		n := notifier.New(subs, users, queue, logger.Named("notifier"))

		res, err := n.Run(cmd.Context(), intervals, pingUserID)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, matched %d, notified %d, failed %d\n",
			res.Scanned, res.Matched, res.Notified, res.Failed)
		for _, derr := range res.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", derr)
		}

		if res.Failed > 0 {
			return fmt.Errorf("%d of %d reminders failed", res.Failed, res.Matched)
		}
		return nil
	},
}

func init() {
	pingExpiringCardCmd.Flags().StringVar(&pingUserID, "user", "", "only check this user id")
}

func parseIntervals(args []string) ([]int, error) {
	intervals := make([]int, 0, len(args))
	for _, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: must be a whole number of days", arg)
		}
		intervals = append(intervals, v)
	}
	return intervals, nil
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Mayank009/cashew/internal/config"
	"github.com/Mayank009/cashew/internal/migrations"
)

var tableDir string

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Write the migration files for the configured table names",
	Long: `Renders the subscriptions and invoices migrations with the table names
from CASHEW_SUBSCRIPTIONS_TABLE and CASHEW_INVOICES_TABLE and writes them
to --dir, ready to be reviewed or applied by another migration tool.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		written, err := migrations.WriteFiles(tableDir, config.LoadTables())
		if err != nil {
			return err
		}
		for _, p := range written {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|fix|force <version>]",
	Short: "Apply or repair the billing schema",
	Args:  cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := "up"
		if len(args) > 0 {
			action = args[0]
		}

		var version uint64
		switch action {
		case "up", "fix":
			if len(args) > 1 {
				return fmt.Errorf("%s takes no arguments", action)
			}
		case "force":
			if len(args) != 2 {
				return fmt.Errorf("usage: cashew migrate force <version>")
			}
			v, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version number: %s", args[1])
			}
			version = v
		default:
			return fmt.Errorf("unknown action %q: want up, fix or force", action)
		}

		cfg, db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		m := migrations.New(db, cfg.Tables, logger.Named("migrations"))
		switch action {
		case "fix":
			return m.FixDirtyDatabase()
		case "force":
			return m.ForceVersion(uint(version))
		default:
			return m.UpWithDirtyFix()
		}
	},
}

func init() {
	tableCmd.Flags().StringVar(&tableDir, "dir", "migrations", "directory to write the migration files to")
}

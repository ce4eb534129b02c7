package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sessiond/internal/health"
	"github.com/fyrsmithlabs/sessiond/internal/logging"
)

func init() {
	rootCmd.AddCommand(healthCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the sessiond installation",
	Long: `Check the sessiond installation: context files present and
non-empty, state directories writable, disk headroom.

The exit code is non-zero when any check is unhealthy.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, logger, _, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	checker, err := health.NewChecker(cfg, logger)
	if err != nil {
		return err
	}
	report := checker.Check(context.Background())

	if outputJSON {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHECK\tSTATUS\tMESSAGE")
		for _, r := range report.Results {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Status, r.Message)
		}
		w.Flush()
		fmt.Printf("\nOverall: %s\n", report.Status)
	}

	if report.Status == health.StatusUnhealthy {
		return fmt.Errorf("installation unhealthy")
	}
	return nil
}

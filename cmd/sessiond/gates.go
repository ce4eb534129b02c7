package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sessiond/internal/gate"
	"github.com/fyrsmithlabs/sessiond/internal/logging"
	"github.com/fyrsmithlabs/sessiond/internal/session"
)

var (
	// gates command flags
	gatesSessionID    string
	gatesChangedFiles []string
	gatesShowOutput   bool
)

func init() {
	rootCmd.AddCommand(gatesCmd)
	gatesCmd.AddCommand(gatesRunCmd)

	gatesRunCmd.Flags().StringVar(&gatesSessionID, "session-id", "", "Session identifier (generated when omitted)")
	gatesRunCmd.Flags().StringSliceVar(&gatesChangedFiles, "changed-file", nil, "Changed file path; repeatable. Scopes gates by their file patterns")
	gatesRunCmd.Flags().BoolVar(&gatesShowOutput, "show-output", false, "Print captured output of non-passing gates")
}

var gatesCmd = &cobra.Command{
	Use:   "gates",
	Short: "Run and inspect quality gates",
}

var gatesRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured quality gates",
	Long: `Run the configured quality gates and evaluate alert thresholds
over the results.

The exit code is non-zero when the session is blocked: a critical gate
failed or timed out, or the failure rate tripped a CRITICAL alert.

Examples:
  # Run every configured gate
  sessiond gates run

  # Scope gates to the files changed this session
  sessiond gates run --changed-file internal/gate/runner.go --changed-file README.md`,
	Args: cobra.NoArgs,
	RunE: runGates,
}

func runGates(cmd *cobra.Command, args []string) error {
	_, logger, coord, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	report, err := coord.EndSession(context.Background(), gatesSessionID, gatesChangedFiles)
	if err != nil {
		return err
	}

	if outputJSON {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		printGateReport(report)
	}

	if report.Blocked {
		return fmt.Errorf("session blocked: %s", blockReason(report))
	}
	return nil
}

func printGateReport(report *session.EndReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GATE\tSTATUS\tDURATION")
	for _, r := range report.Summary.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, statusLabel(r.Status), formatDuration(r.Duration))
	}
	w.Flush()

	fmt.Printf("\n%d gates, %d failed, %d timed out, %d skipped in %s\n",
		len(report.Summary.Results),
		report.Summary.Failed(),
		report.Summary.TimedOut(),
		report.Summary.Skipped(),
		formatDuration(report.Summary.Duration),
	)

	if a := report.Evaluation.Alert; a != nil {
		fmt.Printf("ALERT [%s] %s\n", a.Severity, a.Message)
	}

	if gatesShowOutput {
		for _, r := range report.Summary.Results {
			if r.Success() || r.Status == gate.StatusSkipped {
				continue
			}
			fmt.Printf("\n--- %s ---\n%s\n", r.Name, r.Output)
		}
	}
}

func blockReason(report *session.EndReport) string {
	if !report.Summary.Passed {
		return "critical gate did not pass"
	}
	return "critical alert threshold exceeded"
}

func statusLabel(s gate.Status) string {
	switch s {
	case gate.StatusPassed:
		return "PASS"
	case gate.StatusFailed:
		return "FAIL"
	case gate.StatusTimeout:
		return "TIMEOUT"
	case gate.StatusSkipped:
		return "SKIP"
	default:
		return string(s)
	}
}

// formatDuration rounds to the precision a terminal reader needs.
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(time.Millisecond).String()
	default:
		return d.String()
	}
}

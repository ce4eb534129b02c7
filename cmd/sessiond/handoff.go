package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sessiond/internal/handoff"
	"github.com/fyrsmithlabs/sessiond/internal/logging"
	"github.com/fyrsmithlabs/sessiond/internal/session"
)

var (
	// handoff command flags
	hoSessionID     string
	hoToSession     string
	hoCompleted     []string
	hoCompletedText string
	hoNextSteps     []string
	hoNextStepsText string
	hoArtifacts     []string
	hoNotes         string
	hoLimit         int
	hoKeep          int
)

func init() {
	rootCmd.AddCommand(handoffCmd)
	handoffCmd.AddCommand(handoffCreateCmd)
	handoffCmd.AddCommand(handoffListCmd)
	handoffCmd.AddCommand(handoffShowCmd)
	handoffCmd.AddCommand(handoffPruneCmd)

	handoffCreateCmd.Flags().StringVar(&hoSessionID, "session-id", "", "Session the handoff is from (generated when omitted)")
	handoffCreateCmd.Flags().StringVar(&hoToSession, "to", "", "Session the handoff is for")
	handoffCreateCmd.Flags().StringSliceVar(&hoCompleted, "completed", nil, "Completed task; repeatable")
	handoffCreateCmd.Flags().StringVar(&hoCompletedText, "completed-text", "", "Unstructured completed-work text; tasks are extracted")
	handoffCreateCmd.Flags().StringSliceVar(&hoNextSteps, "next-step", nil, "Next step; repeatable")
	handoffCreateCmd.Flags().StringVar(&hoNextStepsText, "next-steps-text", "", "Unstructured next-steps text; steps are extracted")
	handoffCreateCmd.Flags().StringSliceVar(&hoArtifacts, "artifact", nil, "Artifact path; repeatable")
	handoffCreateCmd.Flags().StringVar(&hoNotes, "notes", "", "Free-form notes")

	handoffListCmd.Flags().IntVar(&hoLimit, "limit", 20, "Maximum number of handoffs to show (0 = all)")
	handoffPruneCmd.Flags().IntVar(&hoKeep, "keep", 0, "How many handoffs to preserve (default: configured retention)")
}

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Manage session handoff records",
}

var handoffCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Capture a handoff for the next session",
	Long: `Capture a handoff for the next session. This runs the full
pre-compact sequence: the handoff is written with a snapshot of the
configured context files, the configured state files are backed up, and
both stores are pruned to their retention limits.

Examples:
  # Capture completed work and next steps explicitly
  sessiond handoff create --completed "wired alert thresholds" --next-step "review retention defaults"

  # Extract tasks from unstructured text
  sessiond handoff create --completed-text "1. fixed the runner
2. added timeout tests"`,
	Args: cobra.NoArgs,
	RunE: runHandoffCreate,
}

var handoffListCmd = &cobra.Command{
	Use:   "list",
	Short: "List handoffs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHandoffList,
}

var handoffShowCmd = &cobra.Command{
	Use:   "show <handoff-id>",
	Short: "Print a handoff as markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runHandoffShow,
}

var handoffPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove handoffs beyond the retention limit",
	Args:  cobra.NoArgs,
	RunE:  runHandoffPrune,
}

func runHandoffCreate(cmd *cobra.Command, args []string) error {
	_, logger, coord, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	sessionID := hoSessionID
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}

	report, err := coord.Compact(context.Background(), sessionID, handoff.SessionData{
		ToSession:      hoToSession,
		CompletedTasks: hoCompleted,
		CompletedText:  hoCompletedText,
		NextSteps:      hoNextSteps,
		NextStepsText:  hoNextStepsText,
		Artifacts:      hoArtifacts,
		Notes:          hoNotes,
	})
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(report)
	}
	fmt.Printf("Handoff created\n")
	fmt.Printf("ID: %s\n", report.HandoffID)
	if report.BackupID != "" {
		fmt.Printf("Backup: %s\n", report.BackupID)
	}
	if report.HandoffsPruned > 0 || report.BackupsPruned > 0 {
		fmt.Printf("Pruned: %d handoffs, %d backups\n", report.HandoffsPruned, report.BackupsPruned)
	}
	return nil
}

func runHandoffList(cmd *cobra.Command, args []string) error {
	_, logger, coord, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	handoffs, err := coord.Handoff().List(context.Background(), hoLimit)
	if err != nil {
		return fmt.Errorf("list handoffs: %w", err)
	}

	if outputJSON {
		return printJSON(handoffs)
	}
	if len(handoffs) == 0 {
		fmt.Println("No handoffs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tFROM\tCOMPLETED\tNEXT STEPS")
	for _, h := range handoffs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			h.ID,
			h.Timestamp.Local().Format(time.DateTime),
			h.FromSession,
			len(h.CompletedTasks),
			len(h.NextSteps),
		)
	}
	return w.Flush()
}

func runHandoffShow(cmd *cobra.Command, args []string) error {
	_, logger, coord, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	h, err := coord.Handoff().Load(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("load handoff %s: %w", args[0], err)
	}

	if outputJSON {
		return printJSON(h)
	}
	fmt.Print(h.Markdown())
	return nil
}

func runHandoffPrune(cmd *cobra.Command, args []string) error {
	cfg, logger, coord, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	keep := hoKeep
	if keep == 0 {
		keep = cfg.Handoff.Keep
	}
	removed, err := coord.Handoff().Prune(context.Background(), keep)
	if err != nil {
		return fmt.Errorf("prune handoffs: %w", err)
	}
	fmt.Printf("Removed %d handoffs, kept at most %d\n", removed, keep)
	return nil
}

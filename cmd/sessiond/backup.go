package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sessiond/internal/logging"
)

var (
	// backup command flags
	backupFiles     []string
	backupReason    string
	backupTargetDir string
	backupKeep      int
)

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupPruneCmd)

	backupCreateCmd.Flags().StringSliceVar(&backupFiles, "file", nil, "File to back up; repeatable (default: configured backup files)")
	backupCreateCmd.Flags().StringVar(&backupReason, "reason", "manual", "Why this backup was taken")
	backupRestoreCmd.Flags().StringVar(&backupTargetDir, "target-dir", "", "Restore into this directory instead of the original paths")
	backupPruneCmd.Flags().IntVar(&backupKeep, "keep", 0, "How many backups to preserve (default: configured retention)")
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage state file backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot state files into a new backup",
	Args:  cobra.NoArgs,
	RunE:  runBackupCreate,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Restore files from a backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRestore,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove backups beyond the retention limit",
	Args:  cobra.NoArgs,
	RunE:  runBackupPrune,
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	cfg, logger, coord, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	files := backupFiles
	if len(files) == 0 {
		files = cfg.Backup.Files
	}
	if len(files) == 0 {
		return fmt.Errorf("nothing to back up: pass --file or configure backup.files")
	}

	meta, err := coord.Backup().Create(context.Background(), files, backupReason)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}

	if outputJSON {
		return printJSON(meta)
	}
	fmt.Printf("Backup created\n")
	fmt.Printf("ID: %s\n", meta.BackupID)
	fmt.Printf("Files: %s\n", strings.Join(meta.FilesBackedUp, ", "))
	fmt.Printf("Restore: %s\n", meta.RestoreCommand)
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	_, logger, coord, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	id := args[0]
	if err := coord.Backup().Restore(context.Background(), id, backupTargetDir); err != nil {
		return fmt.Errorf("restore backup %s: %w", id, err)
	}
	fmt.Printf("Backup %s restored\n", id)
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	_, logger, coord, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	backups, err := coord.Backup().List(context.Background())
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	if outputJSON {
		return printJSON(backups)
	}
	if len(backups) == 0 {
		fmt.Println("No backups found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tFILES\tREASON")
	for _, b := range backups {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			b.BackupID,
			b.Timestamp.Local().Format(time.DateTime),
			len(b.FilesBackedUp),
			b.Reason,
		)
	}
	return w.Flush()
}

func runBackupPrune(cmd *cobra.Command, args []string) error {
	cfg, logger, coord, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	keep := backupKeep
	if keep == 0 {
		keep = cfg.Backup.Keep
	}
	removed, err := coord.Backup().Prune(context.Background(), keep)
	if err != nil {
		return fmt.Errorf("prune backups: %w", err)
	}
	fmt.Printf("Removed %d backups, kept at most %d\n", removed, keep)
	return nil
}

// Package main implements the sessiond CLI: quality gates, alerts,
// backups and handoffs around dev-assistant session boundaries.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessiond/internal/config"
	"github.com/fyrsmithlabs/sessiond/internal/logging"
	"github.com/fyrsmithlabs/sessiond/internal/session"
)

var (
	// global flags
	cfgFile    string
	outputJSON bool

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sessiond",
	Short: "Session lifecycle automation for dev assistants",
	Long: `sessiond runs quality gates at session end, raises alerts on
elevated failure rates, and captures handoffs and state backups around
context compaction.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.sessiond/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
}

// loadEnvironment loads configuration, builds the logger, and wires the
// coordinator. Every subcommand starts here.
func loadEnvironment() (*config.Config, *zap.Logger, *session.Coordinator, error) {
	cfg, err := config.LoadWithFile(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.EnsureStateDir(cfg); err != nil {
		return nil, nil, nil, fmt.Errorf("prepare state directory: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logging: %w", err)
	}
	coord, err := session.NewCoordinator(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, coord, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

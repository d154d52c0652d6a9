// Package commands implements CLI command handlers for corpuscan.
package commands

import (
	"github.com/spf13/cobra"
)

// Persistent flag names.
const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
	flagLogJSON  = "log-json"
	flagNoColor  = "no-color"
)

// NewRootCommand assembles the corpuscan command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "corpuscan",
		Short: "Resumable PII scanning of large text corpora",
		Long: `corpuscan streams compressed corpus files through a PII analyzer in
fixed-size batches and checkpoints the label counts of every batch, so
interrupted runs resume where they stopped.

Commands:
  run       Process every unfinished file of a dataset
  plan      Show where each file would resume
  report    Aggregate label totals from checkpoint records
  reset     Delete checkpoint records to force reprocessing`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagConfig, "", "Config file (default: .corpuscan.yaml in CWD or $HOME)")
	flags.String(flagLogLevel, "info", "Log level: debug, info, warn, error")
	flags.Bool(flagLogJSON, false, "Emit logs as JSON")
	flags.Bool(flagNoColor, false, "Disable colored output")

	rootCmd.AddCommand(
		NewRunCommand(),
		NewPlanCommand(),
		NewReportCommand(),
		NewResetCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}

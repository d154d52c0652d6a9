package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/corpuscan/pkg/checkpoint"
	"github.com/Sumatoshi-tech/corpuscan/pkg/config"
	"github.com/Sumatoshi-tech/corpuscan/pkg/report"
)

// NewReportCommand creates the report command.
func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate label totals from checkpoint records",
		Long: `Sum the per-batch label counts of every checkpoint record of a dataset.

Corrupt records are left out. The plot format writes an HTML page with bar
charts of detections per label and per file.`,
		Args: cobra.NoArgs,
		RunE: runReport,
	}

	flags := cmd.Flags()
	addDatasetFlags(flags)
	flags.StringP("format", "f", config.DefaultFormat, "Output format: text, json, yaml, plot")

	return cmd
}

func runReport(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	format, err := report.ValidateFormat(s.cfg.Format, report.TotalsFormats())
	if err != nil {
		return err
	}

	store := checkpoint.NewFileStore(s.cfg.CheckpointDir(), s.commandLogger(cmd.ErrOrStderr()))

	records, err := store.Records()
	if err != nil {
		return err
	}

	return report.WriteTotals(cmd.OutOrStdout(), format, report.Aggregate(s.dataset.Name, records), s.noColor)
}

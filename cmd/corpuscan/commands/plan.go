package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/corpuscan/pkg/checkpoint"
	"github.com/Sumatoshi-tech/corpuscan/pkg/config"
	"github.com/Sumatoshi-tech/corpuscan/pkg/planner"
	"github.com/Sumatoshi-tech/corpuscan/pkg/report"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show where each file would resume",
		Long:  "Reconcile the checkpoint records with the input directory and print the resume plan without processing anything.",
		Args:  cobra.NoArgs,
		RunE:  runPlan,
	}

	flags := cmd.Flags()
	addDatasetFlags(flags)
	flags.StringP("data-path", "i", "", "Directory holding the dataset files")
	flags.StringP("format", "f", config.DefaultFormat, "Output format: text, json, yaml")

	return cmd
}

func runPlan(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	if s.cfg.DataPath == "" {
		return ErrMissingDataPath
	}

	store := checkpoint.NewFileStore(s.cfg.CheckpointDir(), s.commandLogger(cmd.ErrOrStderr()))

	plan, err := planner.Build(store, s.dataset, s.cfg.DataPath)
	if err != nil {
		return err
	}

	if s.cfg.Debug {
		plan = plan.Limit(debugFileLimit)
	}

	return report.WritePlan(cmd.OutOrStdout(), s.cfg.Format, report.NewPlanView(s.dataset.Name, plan), s.noColor)
}

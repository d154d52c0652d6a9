package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/corpuscan/pkg/checkpoint"
)

// NewResetCommand creates the reset command.
func NewResetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset [file-id...]",
		Short: "Delete checkpoint records to force reprocessing",
		Long: `Delete the checkpoint records of the given file IDs, or of every file of
the dataset when none are given. The next run processes those files from
batch 1.`,
		RunE: runReset,
	}

	addDatasetFlags(cmd.Flags())

	return cmd
}

func runReset(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	store := checkpoint.NewFileStore(s.cfg.CheckpointDir(), s.commandLogger(cmd.ErrOrStderr()))
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		removed, clearErr := store.ClearAll()
		if clearErr != nil {
			return clearErr
		}

		fmt.Fprintf(out, "removed %d checkpoint records from %s\n", removed, store.Dir())

		return nil
	}

	for _, id := range args {
		err = store.Clear(id)
		if err != nil {
			return fmt.Errorf("reset %s: %w", id, err)
		}

		fmt.Fprintf(out, "reset %s\n", id)
	}

	return nil
}

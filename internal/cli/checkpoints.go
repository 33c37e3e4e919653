package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/acuy-d/bmadflow/internal/checkpoint"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints <pipeline-id>",
	Short: "List all checkpoints for a pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := stateRoot()
		if err != nil {
			return err
		}
		store := checkpoint.NewStore(filepath.Join(root, "pipelines"), newLogger())

		cps, err := store.List(args[0])
		if err != nil {
			return err
		}
		if len(cps) == 0 {
			cmd.Println("No checkpoints found.")
			return nil
		}

		cmd.Printf("%-6s %-16s %-14s %-12s %s\n", "SEQ", "PHASE", "REASON", "STATUS", "TIMESTAMP")
		for _, cp := range cps {
			cmd.Printf("%-6d %-16s %-14s %-12s %s\n",
				cp.Sequence, cp.PhaseName, string(cp.Reason), cp.PipelineStatus, cp.Timestamp)
		}
		return nil
	},
}

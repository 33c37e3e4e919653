package cli

import (
	"github.com/spf13/cobra"

	"github.com/acuy-d/bmadflow/internal/checkpoint"
)

var resumeSequence int

var resumeCmd = &cobra.Command{
	Use:   "resume <pipeline-id>",
	Short: "Resume an interrupted pipeline from its latest checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, stop := rt.coord.Watch(cmd.Context())
		defer stop()

		ref := checkpoint.Ref{PipelineID: args[0], Sequence: resumeSequence}
		res, err := rt.eng.Resume(ctx, ref)
		if err != nil {
			return err
		}
		return printResult(res, cmd.Printf)
	},
}

func init() {
	resumeCmd.Flags().IntVar(&resumeSequence, "sequence", 0, "checkpoint sequence to resume from (default latest)")
	resumeCmd.Flags().StringVar(&agentCmd, "agent-cmd", "", "agent provider command (reads a request on stdin, writes a result to stdout)")
	resumeCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/acuy-d/bmadflow/internal/engine"
)

var modeFlag string

var runCmd = &cobra.Command{
	Use:   "run <objective>",
	Short: "Start a new pipeline for an objective",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		modeStr := modeFlag
		if modeStr == "" {
			modeStr = rt.cfg.Pipeline.Mode
		}
		mode, err := engine.ParseMode(modeStr)
		if err != nil {
			return err
		}

		ctx, stop := rt.coord.Watch(cmd.Context())
		defer stop()

		res, err := rt.eng.Start(ctx, args[0], mode)
		if err != nil {
			return err
		}
		return printResult(res, cmd.Printf)
	},
}

func init() {
	runCmd.Flags().StringVar(&modeFlag, "mode", "", "run mode: auto, semi, or dry-run (default from config)")
	runCmd.Flags().StringVar(&agentCmd, "agent-cmd", "", "agent provider command (reads a request on stdin, writes a result to stdout)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
}

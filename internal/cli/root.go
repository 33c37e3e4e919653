// Package cli wires the bmadflow commands. The run and resume commands build
// the full runtime (config, checkpoint store, event log, dispatcher, gate);
// the inspection commands open only the pieces they read.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configFile  string
	stateDir    string
	agentCmd    string
	metricsAddr string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "bmadflow",
	Short: "bmadflow — a phased software-generation pipeline",
	Long: `bmadflow drives an objective through the BMAD phases (business, models,
actions, deliverables) by dispatching tasks to agent providers, with
checkpointed progress, bounded retries, and optional approval gates.

All state is stored under ~/.bmadflow/ (JSON checkpoints per pipeline,
SQLite for the event log, decision files for approvals).`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "f", "", "path to pipeline config file")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "state directory (default ~/.bmadflow)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(modifyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

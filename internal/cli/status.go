package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/acuy-d/bmadflow/internal/checkpoint"
	"github.com/acuy-d/bmadflow/internal/db"
)

var statusCmd = &cobra.Command{
	Use:   "status [pipeline-id]",
	Short: "Show pipeline progress from the latest checkpoint and event log",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := stateRoot()
		if err != nil {
			return err
		}
		store := checkpoint.NewStore(filepath.Join(root, "pipelines"), newLogger())

		if len(args) == 0 {
			return listPipelines(cmd, store)
		}
		return showPipeline(cmd, store, root, args[0])
	},
}

func listPipelines(cmd *cobra.Command, store *checkpoint.Store) error {
	ids, err := store.ListPipelines()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		cmd.Println("No pipelines found.")
		return nil
	}
	for _, id := range ids {
		cp, err := store.LoadLatest(id)
		if err != nil || cp == nil {
			continue
		}
		cmd.Printf("%s  %-12s %-14s seq %d  %s\n",
			id, cp.PipelineStatus, string(cp.Reason), cp.Sequence, cp.Timestamp)
	}
	return nil
}

func showPipeline(cmd *cobra.Command, store *checkpoint.Store, root, pipelineID string) error {
	cp, err := store.LoadLatest(pipelineID)
	if err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("no checkpoints for pipeline %s", pipelineID)
	}

	cmd.Printf("pipeline:   %s\n", cp.PipelineID)
	cmd.Printf("objective:  %s\n", cp.Objective)
	cmd.Printf("mode:       %s\n", cp.Mode)
	cmd.Printf("status:     %s (checkpoint %d, reason %s, phase %s)\n",
		cp.PipelineStatus, cp.Sequence, string(cp.Reason), cp.PhaseName)
	cmd.Println("tasks:")
	for _, s := range cp.TaskSnapshots {
		line := fmt.Sprintf("  %-20s %-10s attempts %d", s.ID, s.Status, s.Attempts)
		if s.Error != "" {
			line += "  error: " + s.Error
		}
		cmd.Println(line)
	}

	database, err := db.Open(filepath.Join(root, "bmadflow.db"))
	if err != nil {
		return nil // checkpoint view is still useful without the event log
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		return nil
	}

	events, err := database.RecentEvents(pipelineID, 10)
	if err != nil || len(events) == 0 {
		return nil
	}
	cmd.Println("recent events:")
	for _, e := range events {
		line := fmt.Sprintf("  %s  %-18s", e.Timestamp, e.Event)
		if e.Phase != "" {
			line += "  " + e.Phase
		}
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		cmd.Println(line)
	}
	return nil
}

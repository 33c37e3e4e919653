package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acuy-d/bmadflow/internal/approval"
)

var decisionNote string

func approvalsDir() (string, error) {
	root, err := stateRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "approvals"), nil
}

func writeDecision(cmd *cobra.Command, pipelineID string, d approval.Decision) error {
	dir, err := approvalsDir()
	if err != nil {
		return err
	}
	if err := approval.WriteDecision(dir, pipelineID, d); err != nil {
		return err
	}
	cmd.Printf("%s decision recorded for pipeline %s\n", string(d.Outcome), pipelineID)
	return nil
}

var approveCmd = &cobra.Command{
	Use:   "approve <pipeline-id>",
	Short: "Approve the awaiting phase so the pipeline advances",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeDecision(cmd, args[0], approval.Decision{
			Outcome: approval.OutcomeApprove,
			Note:    decisionNote,
		})
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <pipeline-id>",
	Short: "Reject the awaiting phase and abort the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeDecision(cmd, args[0], approval.Decision{
			Outcome: approval.OutcomeReject,
			Note:    decisionNote,
		})
	},
}

var modifyCmd = &cobra.Command{
	Use:   "modify <pipeline-id> <key=value>...",
	Short: "Approve with replacement template variables for later phases",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := make(map[string]string)
		for _, kv := range args[1:] {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return fmt.Errorf("invalid variable %q, expected key=value", kv)
			}
			payload[key] = value
		}
		return writeDecision(cmd, args[0], approval.Decision{
			Outcome: approval.OutcomeModify,
			Payload: payload,
			Note:    decisionNote,
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{approveCmd, rejectCmd, modifyCmd} {
		c.Flags().StringVar(&decisionNote, "note", "", "free-form note recorded with the decision")
	}
}

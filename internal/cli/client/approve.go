package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ApproveCmd creates the approve command.
func ApproveCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "approve <entry_id>",
		Short: "Set the approval status of an entry",
		Long:  "Approves an entry (activating it), rejects it, or sends it back to pending review.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runApprove(cmd, args[0], status, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "approved", "Target approval status (pending, approved, rejected)")

	return cmd
}

func runApprove(cmd *cobra.Command, entryID, status string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post(fmt.Sprintf("/entries/%s/approval", entryID), map[string]string{"status": status})
	if err != nil {
		return fmt.Errorf("failed to set approval: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(resp.Data, &entry); err != nil {
		return fmt.Errorf("failed to parse entry: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(entry, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Entry %s is now %s (status %s, version %d)\n", entry.ID, entry.ApprovalStatus, entry.Status, entry.Version)
	}
	return nil
}

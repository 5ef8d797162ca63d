package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// StatusCmd creates the status command for bulk activation toggles.
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <active|inactive> <entry_id>...",
		Short: "Set the status of one or more entries",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runStatus(cmd, args[0], args[1:], outputJSON)
		},
	}

	return cmd
}

func runStatus(cmd *cobra.Command, status string, ids []string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/entries/status", map[string]any{
		"ids":    ids,
		"status": status,
	})
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(resp.Data, &entries); err != nil {
		return fmt.Errorf("failed to parse entries: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	for _, entry := range entries {
		fmt.Printf("%s  v%d  %s\n", entry.ID, entry.Version, entry.Status)
	}
	return nil
}

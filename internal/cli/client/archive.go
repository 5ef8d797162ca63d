package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ArchiveCmd creates the archive command.
func ArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <entry_id>...",
		Short: "Archive one or more entries",
		Long:  "Soft-deletes entries. Archived entries drop out of retrieval but keep their history and can be restored.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(cmd, args)
		},
	}

	return cmd
}

func runArchive(cmd *cobra.Command, ids []string) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	if _, err := api.Post("/entries/archive", map[string]any{"ids": ids}); err != nil {
		return fmt.Errorf("failed to archive entries: %w", err)
	}

	fmt.Printf("Archived %d entries\n", len(ids))
	return nil
}

// RestoreCmd creates the restore command.
func RestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <entry_id>",
		Short: "Restore an archived entry",
		Long:  "Brings an archived entry back as inactive. Activate it separately once reviewed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runRestore(cmd, args[0], outputJSON)
		},
	}

	return cmd
}

func runRestore(cmd *cobra.Command, entryID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post(fmt.Sprintf("/entries/%s/restore", entryID), nil)
	if err != nil {
		return fmt.Errorf("failed to restore entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(resp.Data, &entry); err != nil {
		return fmt.Errorf("failed to parse entry: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(entry, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Restored entry %s (version %d, status %s)\n", entry.ID, entry.Version, entry.Status)
	}
	return nil
}

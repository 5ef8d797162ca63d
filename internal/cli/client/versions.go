package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// Version represents an entry version from the API.
type Version struct {
	ID            string `json:"id"`
	EntryID       string `json:"entry_id"`
	Version       int    `json:"version"`
	Title         string `json:"title"`
	ChangeSummary string `json:"change_summary"`
	EditorID      string `json:"editor_id"`
	CreatedAt     string `json:"created_at"`
}

// VersionsCmd creates the versions command group.
func VersionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Inspect and restore entry versions",
	}

	cmd.AddCommand(versionsListCmd())
	cmd.AddCommand(versionsRestoreCmd())

	return cmd
}

func versionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <entry_id>",
		Short: "List the version history of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runVersionsList(cmd, args[0], outputJSON)
		},
	}
}

func runVersionsList(cmd *cobra.Command, entryID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get(fmt.Sprintf("/entries/%s/versions", entryID))
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}

	var versions []Version
	if err := json.Unmarshal(resp.Data, &versions); err != nil {
		return fmt.Errorf("failed to parse versions: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(versions, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(versions) == 0 {
		fmt.Println("No versions found.")
		return nil
	}

	for _, v := range versions {
		fmt.Printf("v%d  %s  %s  by %s  (%s)\n", v.Version, v.ID, v.ChangeSummary, v.EditorID, v.CreatedAt)
	}
	return nil
}

func versionsRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <entry_id> <version_id>",
		Short: "Restore an entry to a prior version",
		Long:  "Applies the snapshot of a prior version as a new version. History is never rewritten.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runVersionsRestore(cmd, args[0], args[1], outputJSON)
		},
	}
}

func runVersionsRestore(cmd *cobra.Command, entryID, versionID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post(fmt.Sprintf("/entries/%s/versions/%s/restore", entryID, versionID), nil)
	if err != nil {
		return fmt.Errorf("failed to restore version: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(resp.Data, &entry); err != nil {
		return fmt.Errorf("failed to parse entry: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(entry, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Restored entry %s to a new version %d\n", entry.ID, entry.Version)
	}
	return nil
}

package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ReindexCmd creates the reindex command.
func ReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Re-embed and re-index every entry",
		Long:  "Runs a full reindex on the server. Entries that fail are marked on the entry and retried by the background sweeper.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(cmd)
		},
	}
}

func runReindex(cmd *cobra.Command) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/admin/reindex", nil)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}

	var result struct {
		Reindexed int `json:"reindexed"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse reindex result: %w", err)
	}

	fmt.Printf("Reindexed %d entries\n", result.Reindexed)
	return nil
}

package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// RetrieveRequest represents the retrieval API request.
type RetrieveRequest struct {
	ChatID             string   `json:"chat_id,omitempty"`
	UserID             string   `json:"user_id,omitempty"`
	ModelID            string   `json:"model_id,omitempty"`
	ModelKey           string   `json:"model_key,omitempty"`
	Query              string   `json:"query"`
	UseCustomKnowledge bool     `json:"use_custom_knowledge"`
	Threshold          *float32 `json:"threshold,omitempty"`
}

// RetrieveUsageEntry is one reference surfaced by retrieval.
type RetrieveUsageEntry struct {
	EntryID   string  `json:"entry_id"`
	Title     string  `json:"title"`
	Score     float32 `json:"score"`
	SourceURL string  `json:"source_url,omitempty"`
	ChunkID   string  `json:"chunk_id,omitempty"`
}

// RetrieveResponse represents the retrieval API response.
type RetrieveResponse struct {
	Supplement string `json:"supplement"`
	Usage      *struct {
		Query   string               `json:"query"`
		Entries []RetrieveUsageEntry `json:"entries"`
	} `json:"usage"`
}

// RetrieveCmd creates the retrieve command.
func RetrieveCmd() *cobra.Command {
	var (
		modelID   string
		modelKey  string
		userID    string
		threshold float32
	)

	cmd := &cobra.Command{
		Use:     "retrieve <query>",
		Short:   "Run a retrieval query",
		Long:    "Runs the chat-time retrieval cascade and prints the context supplement plus the entries it was built from.",
		Aliases: []string{"search"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			req := RetrieveRequest{
				UserID:             userID,
				ModelID:            modelID,
				ModelKey:           modelKey,
				Query:              args[0],
				UseCustomKnowledge: true,
			}
			if cmd.Flags().Changed("threshold") {
				req.Threshold = &threshold
			}
			return runRetrieve(cmd, req, outputJSON)
		},
	}

	cmd.Flags().StringVar(&modelID, "model-id", "", "Model ID the query is scoped to")
	cmd.Flags().StringVar(&modelKey, "model-key", "", "Model key the query is scoped to")
	cmd.Flags().StringVar(&userID, "user", "", "User the retrieval runs for")
	cmd.Flags().Float32Var(&threshold, "threshold", 0, "Similarity threshold override")

	return cmd
}

func runRetrieve(cmd *cobra.Command, req RetrieveRequest, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/retrieve", req)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	var result RetrieveResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse retrieval result: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if result.Supplement == "" {
		fmt.Println("No augmentation.")
		return nil
	}

	fmt.Println(result.Supplement)
	if result.Usage != nil && len(result.Usage.Entries) > 0 {
		fmt.Printf("\n%s\n", strings.Repeat("-", 40))
		fmt.Printf("Grounded on %d entries:\n", len(result.Usage.Entries))
		for _, e := range result.Usage.Entries {
			fmt.Printf("  %s (%.2f) %s\n", e.EntryID, e.Score, e.Title)
		}
	}

	return nil
}

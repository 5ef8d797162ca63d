package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// Entry represents a knowledge entry from the API.
type Entry struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Content           string   `json:"content"`
	Type              string   `json:"type"`
	SourceURL         string   `json:"source_url,omitempty"`
	Tags              []string `json:"tags"`
	Models            []string `json:"models"`
	CategoryID        string   `json:"category_id,omitempty"`
	AddedBy           string   `json:"added_by"`
	PersonalForUserID string   `json:"personal_for_user_id,omitempty"`
	Status            string   `json:"status"`
	ApprovalStatus    string   `json:"approval_status"`
	ApprovedBy        string   `json:"approved_by,omitempty"`
	Eligibility       string   `json:"eligibility"`
	Version           int      `json:"version"`
	EmbeddingStatus   string   `json:"embedding_status"`
	EmbeddingError    string   `json:"embedding_error,omitempty"`
	DeletedAt         string   `json:"deleted_at,omitempty"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// GetCmd creates the get command.
func GetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "get <entry_id>",
		Short:   "Get a knowledge entry by ID",
		Long:    "Retrieves a knowledge entry by its ID and displays the full content.",
		Aliases: []string{"view"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runGet(cmd, args[0], outputJSON)
		},
	}

	return cmd
}

func runGet(cmd *cobra.Command, entryID string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get(fmt.Sprintf("/entries/%s", entryID))
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(resp.Data, &entry); err != nil {
		return fmt.Errorf("failed to parse entry: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(entry, "", "  ")
		fmt.Println(string(output))
	} else {
		printEntry(&entry)
	}

	return nil
}

func printEntry(entry *Entry) {
	fmt.Printf("Title: %s\n", entry.Title)
	fmt.Printf("Type: %s\n", entry.Type)
	fmt.Printf("Status: %s (%s, embedding %s)\n", entry.Status, entry.ApprovalStatus, entry.EmbeddingStatus)
	fmt.Printf("Eligibility: %s\n", entry.Eligibility)
	fmt.Printf("Version: %d\n", entry.Version)
	if len(entry.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(entry.Tags, ", "))
	}
	if len(entry.Models) > 0 {
		fmt.Printf("Models: %s\n", strings.Join(entry.Models, ", "))
	}
	if entry.SourceURL != "" {
		fmt.Printf("Source: %s\n", entry.SourceURL)
	}
	if entry.PersonalForUserID != "" {
		fmt.Printf("Personal for: %s\n", entry.PersonalForUserID)
	}
	if entry.EmbeddingError != "" {
		fmt.Printf("Embedding error: %s\n", entry.EmbeddingError)
	}
	fmt.Printf("Created: %s\n", entry.CreatedAt)
	fmt.Printf("Updated: %s\n", entry.UpdatedAt)
	fmt.Println()
	fmt.Println("--- Content ---")
	fmt.Println(entry.Content)
}

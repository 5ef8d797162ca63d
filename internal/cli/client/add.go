package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// AddEntryRequest represents the create entry API request.
type AddEntryRequest struct {
	Title             string   `json:"title"`
	Content           string   `json:"content"`
	Type              string   `json:"type,omitempty"`
	SourceURL         string   `json:"source_url,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	Models            []string `json:"models,omitempty"`
	CategoryID        string   `json:"category_id,omitempty"`
	PersonalForUserID string   `json:"personal_for_user_id,omitempty"`
}

// AddCmd creates the add command.
func AddCmd() *cobra.Command {
	var (
		entryType  string
		sourceURL  string
		tags       []string
		models     []string
		categoryID string
		personal   string
		file       string
	)

	cmd := &cobra.Command{
		Use:   "add <title> [content]",
		Short: "Add a knowledge entry",
		Long:  "Creates a new knowledge entry. Content comes from the second argument, --file, or stdin.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			content := ""
			if len(args) == 2 {
				content = args[1]
			}

			req := AddEntryRequest{
				Title:             args[0],
				Content:           content,
				Type:              entryType,
				SourceURL:         sourceURL,
				Tags:              tags,
				Models:            models,
				CategoryID:        categoryID,
				PersonalForUserID: personal,
			}
			return runAdd(cmd, req, file, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&entryType, "type", "t", "text", "Entry type (text, document, url)")
	cmd.Flags().StringVar(&sourceURL, "url", "", "Source URL for the entry")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringSliceVar(&models, "model", nil, "Model the entry is visible to (repeatable, default all)")
	cmd.Flags().StringVar(&categoryID, "category", "", "Category ID")
	cmd.Flags().StringVar(&personal, "personal-for", "", "Create as a personal entry for this user ID")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read content from a file ('-' for stdin)")

	return cmd
}

func runAdd(cmd *cobra.Command, req AddEntryRequest, file string, outputJSON bool) error {
	if req.Content == "" && file != "" {
		content, err := readContent(file)
		if err != nil {
			return err
		}
		req.Content = content
	}
	if req.Content == "" {
		return fmt.Errorf("content is required (pass it as an argument or via --file)")
	}

	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/entries", req)
	if err != nil {
		return fmt.Errorf("failed to add entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(resp.Data, &entry); err != nil {
		return fmt.Errorf("failed to parse entry: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(entry, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Created entry %s (version %d)\n", entry.ID, entry.Version)
		fmt.Printf("Status: %s (%s)\n", entry.Status, entry.ApprovalStatus)
	}

	return nil
}

func readContent(file string) (string, error) {
	if file == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

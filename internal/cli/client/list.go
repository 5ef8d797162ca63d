package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// EntryListResponse represents the list entries API response.
type EntryListResponse struct {
	Items   []Entry `json:"items"`
	Cursor  string  `json:"cursor,omitempty"`
	HasMore bool    `json:"has_more"`
}

// ListCmd creates the list command.
func ListCmd() *cobra.Command {
	var (
		scope          string
		status         string
		approvalStatus string
		categoryID     string
		tag            string
		includeDeleted bool
		limit          int
		cursor         string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List knowledge entries",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			q := url.Values{}
			if scope != "" {
				q.Set("scope", scope)
			}
			if status != "" {
				q.Set("status", status)
			}
			if approvalStatus != "" {
				q.Set("approval_status", approvalStatus)
			}
			if categoryID != "" {
				q.Set("category_id", categoryID)
			}
			if tag != "" {
				q.Set("tag", tag)
			}
			if includeDeleted {
				q.Set("include_deleted", "true")
			}
			if cursor != "" {
				q.Set("cursor", cursor)
			}
			q.Set("limit", strconv.Itoa(limit))

			return runList(cmd, q, outputJSON)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Scope filter (shared or personal)")
	cmd.Flags().StringVar(&status, "status", "", "Status filter (active, inactive, archived)")
	cmd.Flags().StringVar(&approvalStatus, "approval", "", "Approval filter (pending, approved, rejected)")
	cmd.Flags().StringVar(&categoryID, "category", "", "Category ID filter")
	cmd.Flags().StringVar(&tag, "tag", "", "Tag filter")
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "Include archived entries")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runList(cmd *cobra.Command, q url.Values, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get("/entries?" + q.Encode())
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}

	var listResp EntryListResponse
	if err := json.Unmarshal(resp.Data, &listResp); err != nil {
		return fmt.Errorf("failed to parse entries: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(listResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(listResp.Items) == 0 {
		fmt.Println("No entries found.")
		return nil
	}

	for _, entry := range listResp.Items {
		line := fmt.Sprintf("%s  v%d  %s/%s  %s", entry.ID, entry.Version, entry.Status, entry.ApprovalStatus, entry.Title)
		if len(entry.Tags) > 0 {
			line += "  [" + strings.Join(entry.Tags, ",") + "]"
		}
		fmt.Println(line)
	}
	if listResp.HasMore && listResp.Cursor != "" {
		fmt.Printf("\nMore results available. Use --cursor %s\n", listResp.Cursor)
	}

	return nil
}

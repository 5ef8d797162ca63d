//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entryPayload struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Content           string   `json:"content"`
	Type              string   `json:"type"`
	Tags              []string `json:"tags"`
	AddedBy           string   `json:"added_by"`
	PersonalForUserID string   `json:"personal_for_user_id"`
	Status            string   `json:"status"`
	ApprovalStatus    string   `json:"approval_status"`
	ApprovedBy        string   `json:"approved_by"`
	Eligibility       string   `json:"eligibility"`
	Version           int      `json:"version"`
	EmbeddingStatus   string   `json:"embedding_status"`
	DeletedAt         string   `json:"deleted_at"`
}

type versionPayload struct {
	ID            string `json:"id"`
	EntryID       string `json:"entry_id"`
	Version       int    `json:"version"`
	Title         string `json:"title"`
	ChangeSummary string `json:"change_summary"`
	EditorID      string `json:"editor_id"`
}

type retrievePayload struct {
	Supplement string `json:"supplement"`
	Usage      *struct {
		Query   string `json:"query"`
		Entries []struct {
			EntryID string  `json:"entry_id"`
			Title   string  `json:"title"`
			Score   float32 `json:"score"`
		} `json:"entries"`
	} `json:"usage"`
}

func createEntry(t *testing.T, env *E2ETestEnv, actorID string, body map[string]any) entryPayload {
	t.Helper()
	resp, err := env.Post("/entries", body, actorID)
	require.NoError(t, err)

	var entry entryPayload
	require.NoError(t, json.Unmarshal(resp.Data, &entry))
	require.NotEmpty(t, entry.ID)
	return entry
}

func retrieve(t *testing.T, env *E2ETestEnv, query string) retrievePayload {
	t.Helper()
	resp, err := env.Post("/retrieve", map[string]any{
		"chat_id":              "chat-1",
		"user_id":              "user-1",
		"model_id":             "model-1",
		"model_key":            "gpt-test",
		"query":                query,
		"use_custom_knowledge": true,
	}, "")
	require.NoError(t, err)

	var result retrievePayload
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	return result
}

// TestE2E_EntryLifecycle covers create, edit, version history, and
// archive/restore through the HTTP surface.
func TestE2E_EntryLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	entry := createEntry(t, env, "alice", map[string]any{
		"title":   "Office hours",
		"content": "Support is staffed weekdays from 9am to 5pm central time.",
		"type":    "text",
		"tags":    []string{"Support", "hours"},
	})

	t.Run("shared entry starts active and approved", func(t *testing.T) {
		assert.Equal(t, "active", entry.Status)
		assert.Equal(t, "approved", entry.ApprovalStatus)
		assert.Equal(t, "alice", entry.ApprovedBy)
		assert.Equal(t, "eligible", entry.Eligibility)
		assert.Equal(t, 1, entry.Version)
		assert.Equal(t, []string{"hours", "support"}, entry.Tags)
	})

	t.Run("indexing completes", func(t *testing.T) {
		env.WaitForEmbedding(entry.ID, "ready")
	})

	t.Run("edit bumps version", func(t *testing.T) {
		resp, err := env.Patch("/entries/"+entry.ID, map[string]any{
			"content": "Support is staffed weekdays from 8am to 6pm central time.",
		}, "alice")
		require.NoError(t, err)

		var updated entryPayload
		require.NoError(t, json.Unmarshal(resp.Data, &updated))
		assert.Equal(t, 2, updated.Version)
		assert.Contains(t, updated.Content, "8am to 6pm")
		env.WaitForEmbedding(entry.ID, "ready")
	})

	t.Run("metadata-only edit bumps version without re-embedding", func(t *testing.T) {
		resp, err := env.Patch("/entries/"+entry.ID, map[string]any{
			"tags": []string{"support", "hours", "contact"},
		}, "alice")
		require.NoError(t, err)

		var updated entryPayload
		require.NoError(t, json.Unmarshal(resp.Data, &updated))
		assert.Equal(t, 3, updated.Version)
		assert.Equal(t, "ready", updated.EmbeddingStatus)
	})

	t.Run("version history is complete", func(t *testing.T) {
		resp, err := env.Get("/entries/"+entry.ID+"/versions", "alice")
		require.NoError(t, err)

		var versions []versionPayload
		require.NoError(t, json.Unmarshal(resp.Data, &versions))
		require.Len(t, versions, 3)
		assert.Equal(t, 3, versions[0].Version)
		assert.Equal(t, 1, versions[2].Version)
		assert.Equal(t, "created entry", versions[2].ChangeSummary)
		assert.Equal(t, "alice", versions[0].EditorID)
	})

	t.Run("restore old version creates a new one", func(t *testing.T) {
		resp, err := env.Get("/entries/"+entry.ID+"/versions", "alice")
		require.NoError(t, err)

		var versions []versionPayload
		require.NoError(t, json.Unmarshal(resp.Data, &versions))
		first := versions[len(versions)-1]

		restoreResp, err := env.Post(
			fmt.Sprintf("/entries/%s/versions/%s/restore", entry.ID, first.ID), nil, "alice")
		require.NoError(t, err)

		var restored entryPayload
		require.NoError(t, json.Unmarshal(restoreResp.Data, &restored))
		assert.Equal(t, 4, restored.Version)
		assert.Contains(t, restored.Content, "9am to 5pm")
	})

	t.Run("personal entries reject non-owners", func(t *testing.T) {
		personal := createEntry(t, env, "bob", map[string]any{
			"title":                "Bob's shortcut",
			"content":              "Always answer bob in bullet points.",
			"type":                 "text",
			"personal_for_user_id": "bob",
		})

		_, err := env.Patch("/entries/"+personal.ID, map[string]any{
			"title": "Hijacked",
		}, "mallory")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")

		// The owner can still edit
		resp, err := env.Patch("/entries/"+personal.ID, map[string]any{
			"title": "Bob's formatting preference",
		}, "bob")
		require.NoError(t, err)
		var updated entryPayload
		require.NoError(t, json.Unmarshal(resp.Data, &updated))
		assert.Equal(t, 2, updated.Version)
	})

	t.Run("archive then restore", func(t *testing.T) {
		_, err := env.Post("/entries/archive", map[string]any{
			"ids": []string{entry.ID},
		}, "alice")
		require.NoError(t, err)

		resp, err := env.Get("/entries/"+entry.ID, "alice")
		require.NoError(t, err)
		var archived entryPayload
		require.NoError(t, json.Unmarshal(resp.Data, &archived))
		assert.Equal(t, "archived", archived.Status)
		assert.NotEmpty(t, archived.DeletedAt)
		assert.Equal(t, "deleted", archived.Eligibility)

		// Archived entries cannot be edited
		_, err = env.Patch("/entries/"+entry.ID, map[string]any{"title": "x"}, "alice")
		require.Error(t, err)

		restoreResp, err := env.Post("/entries/"+entry.ID+"/restore", nil, "alice")
		require.NoError(t, err)
		var restored entryPayload
		require.NoError(t, json.Unmarshal(restoreResp.Data, &restored))
		assert.Equal(t, "active", restored.Status)
		assert.Empty(t, restored.DeletedAt)
		env.WaitForEmbedding(entry.ID, "ready")
	})

	t.Run("requests without actor are rejected", func(t *testing.T) {
		_, err := env.Post("/entries", map[string]any{
			"title":   "No actor",
			"content": "should fail",
		}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}

// TestE2E_Retrieval exercises the retrieval cascade against real
// pgvector with deterministic embeddings.
func TestE2E_Retrieval(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	refund := createEntry(t, env, "alice", map[string]any{
		"title":      "Refund policy",
		"content":    "Customers can request a full refund within 30 days of purchase. Refunds are processed to the original payment method.",
		"type":       "text",
		"source_url": "https://example.com/refunds",
	})
	shipping := createEntry(t, env, "alice", map[string]any{
		"title":   "Shipping times",
		"content": "Standard shipping takes five business days. Express shipping arrives in two business days.",
		"type":    "text",
	})
	env.WaitForEmbedding(refund.ID, "ready")
	env.WaitForEmbedding(shipping.ID, "ready")

	t.Run("matching query returns grounded supplement", func(t *testing.T) {
		result := retrieve(t, env, "can a customer request a refund within 30 days of purchase")
		assert.Contains(t, result.Supplement, "Reference: Refund policy")
		assert.Contains(t, result.Supplement, "https://example.com/refunds")
		require.NotNil(t, result.Usage)
		require.NotEmpty(t, result.Usage.Entries)
		assert.Equal(t, refund.ID, result.Usage.Entries[0].EntryID)
	})

	t.Run("unrelated query falls through to no-match sentinel", func(t *testing.T) {
		result := retrieve(t, env, "recommended settings for the Kubernetes ingress controller timeout tuning")
		assert.NotContains(t, result.Supplement, "Reference:")
		assert.Contains(t, result.Supplement, "No reference material matched")
	})

	t.Run("disabled augmentation returns nothing", func(t *testing.T) {
		resp, err := env.Post("/retrieve", map[string]any{
			"user_id":              "user-1",
			"query":                "refund policy",
			"use_custom_knowledge": false,
		}, "")
		require.NoError(t, err)

		var result retrievePayload
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.Empty(t, result.Supplement)
		assert.Nil(t, result.Usage)
	})

	t.Run("deactivated entry drops out of retrieval", func(t *testing.T) {
		_, err := env.Post("/entries/status", map[string]any{
			"ids":    []string{refund.ID},
			"status": "inactive",
		}, "alice")
		require.NoError(t, err)

		result := retrieve(t, env, "can a customer request a refund within 30 days of purchase")
		assert.NotContains(t, result.Supplement, "Refund policy")

		_, err = env.Post("/entries/status", map[string]any{
			"ids":    []string{refund.ID},
			"status": "active",
		}, "alice")
		require.NoError(t, err)
		env.WaitForEmbedding(refund.ID, "ready")

		result = retrieve(t, env, "can a customer request a refund within 30 days of purchase")
		assert.Contains(t, result.Supplement, "Refund policy")
	})

	t.Run("supplement leads with safety preamble", func(t *testing.T) {
		result := retrieve(t, env, "standard shipping takes five business days")
		assert.True(t, strings.HasPrefix(result.Supplement, "Use the reference material"),
			"supplement should start with the safety preamble, got: %.80s", result.Supplement)
	})
}

// TestE2E_Approval walks a personal entry through the review flow.
func TestE2E_Approval(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	personal := createEntry(t, env, "bob", map[string]any{
		"title":                "Preferred greeting",
		"content":              "Always greet this user with their nickname Bobby in every conversation.",
		"type":                 "text",
		"personal_for_user_id": "bob",
	})

	t.Run("personal entry awaits review", func(t *testing.T) {
		assert.Equal(t, "inactive", personal.Status)
		assert.Equal(t, "pending", personal.ApprovalStatus)
		assert.Equal(t, "unapproved", personal.Eligibility)
	})

	t.Run("pending entry is invisible to retrieval", func(t *testing.T) {
		result := retrieve(t, env, "greet this user with their nickname Bobby")
		assert.NotContains(t, result.Supplement, "Preferred greeting")
	})

	t.Run("approval activates the entry", func(t *testing.T) {
		resp, err := env.Post("/entries/"+personal.ID+"/approval", map[string]any{
			"status": "approved",
		}, "reviewer-1")
		require.NoError(t, err)

		var approved entryPayload
		require.NoError(t, json.Unmarshal(resp.Data, &approved))
		assert.Equal(t, "active", approved.Status)
		assert.Equal(t, "approved", approved.ApprovalStatus)
		assert.Equal(t, "reviewer-1", approved.ApprovedBy)
		assert.Equal(t, "eligible", approved.Eligibility)

		env.WaitForEmbedding(personal.ID, "ready")
		result := retrieve(t, env, "greet this user with their nickname Bobby")
		assert.Contains(t, result.Supplement, "Preferred greeting")
	})

	t.Run("rejection deactivates it again", func(t *testing.T) {
		resp, err := env.Post("/entries/"+personal.ID+"/approval", map[string]any{
			"status": "rejected",
		}, "reviewer-1")
		require.NoError(t, err)

		var rejected entryPayload
		require.NoError(t, json.Unmarshal(resp.Data, &rejected))
		assert.Equal(t, "inactive", rejected.Status)
		assert.Equal(t, "rejected", rejected.ApprovalStatus)

		result := retrieve(t, env, "greet this user with their nickname Bobby")
		assert.NotContains(t, result.Supplement, "Preferred greeting")
	})
}

// TestE2E_ListAndAnalytics checks the query surfaces over a small corpus.
func TestE2E_ListAndAnalytics(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	for i := 0; i < 3; i++ {
		createEntry(t, env, "alice", map[string]any{
			"title":   fmt.Sprintf("Shared note %d", i),
			"content": fmt.Sprintf("Shared knowledge item number %d for the whole team.", i),
			"type":    "text",
			"tags":    []string{"shared"},
		})
	}
	personal := createEntry(t, env, "bob", map[string]any{
		"title":                "Bob's note",
		"content":              "A private preference only bob should see applied.",
		"type":                 "text",
		"personal_for_user_id": "bob",
	})

	t.Run("list filters by scope", func(t *testing.T) {
		resp, err := env.Get("/entries?scope=shared", "alice")
		require.NoError(t, err)

		var list struct {
			Items   []entryPayload `json:"items"`
			HasMore bool           `json:"has_more"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &list))
		assert.Len(t, list.Items, 3)
		assert.False(t, list.HasMore)

		resp, err = env.Get("/entries?scope=personal", "bob")
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(resp.Data, &list))
		require.Len(t, list.Items, 1)
		assert.Equal(t, personal.ID, list.Items[0].ID)
	})

	t.Run("pagination cursor walks the corpus", func(t *testing.T) {
		resp, err := env.Get("/entries?limit=2", "alice")
		require.NoError(t, err)

		var page struct {
			Items   []entryPayload `json:"items"`
			Cursor  string         `json:"cursor"`
			HasMore bool           `json:"has_more"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		assert.Len(t, page.Items, 2)
		assert.True(t, page.HasMore)
		require.NotEmpty(t, page.Cursor)

		resp, err = env.Get("/entries?limit=4&cursor="+page.Cursor, "alice")
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		assert.Len(t, page.Items, 2)
		assert.False(t, page.HasMore)
	})

	t.Run("analytics summary counts the corpus", func(t *testing.T) {
		resp, err := env.Get("/analytics/summary", "alice")
		require.NoError(t, err)

		var summary struct {
			TotalEntries     int            `json:"total_entries"`
			ByStatus         map[string]int `json:"by_status"`
			ByApprovalStatus map[string]int `json:"by_approval_status"`
			FailedEmbeddings int            `json:"failed_embeddings"`
			PerCreator       []struct {
				UserID string `json:"user_id"`
				Count  int    `json:"count"`
			} `json:"per_creator"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &summary))
		assert.Equal(t, 4, summary.TotalEntries)
		assert.Equal(t, 3, summary.ByStatus["active"])
		assert.Equal(t, 1, summary.ByApprovalStatus["pending"])
		assert.Equal(t, 0, summary.FailedEmbeddings)
		require.NotEmpty(t, summary.PerCreator)
	})
}

// TestE2E_AdminReindex rebuilds the index for the whole corpus.
func TestE2E_AdminReindex(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	for i := 0; i < 2; i++ {
		e := createEntry(t, env, "alice", map[string]any{
			"title":   fmt.Sprintf("Runbook %d", i),
			"content": fmt.Sprintf("Operational runbook number %d with recovery steps.", i),
			"type":    "text",
		})
		env.WaitForEmbedding(e.ID, "ready")
	}

	resp, err := env.Post("/admin/reindex", nil, "ops-admin")
	require.NoError(t, err)

	var result struct {
		Reindexed int `json:"reindexed"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, 2, result.Reindexed)

	result2 := retrieve(t, env, "operational runbook with recovery steps")
	assert.Contains(t, result2.Supplement, "Reference: Runbook")
}

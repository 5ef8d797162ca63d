package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// FileSearchIndex implements Index against a managed document-search
// service. Each entry is uploaded as one indexed document (the service
// handles chunking and embedding); custom metadata carries the entry id
// and the model allow-list, with the "all" sentinel for globally
// visible entries.
type FileSearchIndex struct {
	baseURL    string
	apiKey     string
	indexName  string
	httpClient *http.Client
}

type FileSearchConfig struct {
	BaseURL   string
	APIKey    string
	IndexName string
	Timeout   time.Duration
}

func NewFileSearchIndex(cfg FileSearchConfig) *FileSearchIndex {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	indexName := cfg.IndexName
	if indexName == "" {
		indexName = "knowledge"
	}
	return &FileSearchIndex{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		indexName:  indexName,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (x *FileSearchIndex) RequiresVectors() bool { return false }

type fileSearchDocument struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

type fileSearchQuery struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Threshold float32  `json:"threshold"`
	Status    string   `json:"status,omitempty"`
	Models    []string `json:"models,omitempty"`
}

type fileSearchHit struct {
	DocumentID string         `json:"document_id"`
	Score      float32        `json:"score"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
}

type fileSearchResponse struct {
	Results []fileSearchHit `json:"results"`
	Error   string          `json:"error,omitempty"`
}

func (x *FileSearchIndex) Upsert(ctx context.Context, entryID string, docs []Document, meta EntryMeta) error {
	// The service indexes whole documents, so the chunk set is joined
	// back into one body in chunk order.
	sorted := append([]Document(nil), docs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkIndex < sorted[j].ChunkIndex })

	parts := make([]string, 0, len(sorted))
	for _, d := range sorted {
		parts = append(parts, d.Content)
	}

	body := fileSearchDocument{
		Content: strings.Join(parts, "\n\n"),
		Metadata: map[string]any{
			"entry_id": entryID,
			"status":   meta.StatusTag,
			"models":   modelRefsOrWildcard(meta.ModelRefs),
		},
	}

	return x.do(ctx, http.MethodPut, x.documentPath(entryID), body, nil)
}

func (x *FileSearchIndex) PatchMetadata(ctx context.Context, entryID string, meta EntryMeta) error {
	body := map[string]any{
		"metadata": map[string]any{
			"entry_id": entryID,
			"status":   meta.StatusTag,
			"models":   modelRefsOrWildcard(meta.ModelRefs),
		},
	}
	return x.do(ctx, http.MethodPatch, x.documentPath(entryID), body, nil)
}

func (x *FileSearchIndex) Remove(ctx context.Context, entryID string) error {
	err := x.do(ctx, http.MethodDelete, x.documentPath(entryID), nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (x *FileSearchIndex) Search(ctx context.Context, q Query) ([]Match, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 4
	}

	req := fileSearchQuery{
		Query:     q.Text,
		Limit:     limit,
		Threshold: q.Threshold,
		Status:    q.StatusTag,
	}
	if len(q.ModelFilter) > 0 {
		// The wildcard is always accepted so globally visible documents
		// still match a model-scoped query.
		req.Models = append(append([]string(nil), q.ModelFilter...), ModelWildcard)
	}

	var resp fileSearchResponse
	if err := x.do(ctx, http.MethodPost, fmt.Sprintf("/v1/indexes/%s/search", x.indexName), req, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Results))
	for _, hit := range resp.Results {
		entryID := hit.DocumentID
		if raw, ok := hit.Metadata["entry_id"].(string); ok && raw != "" {
			entryID = raw
		}
		score := hit.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		matches = append(matches, Match{
			EntryID:  entryID,
			Score:    score,
			Content:  hit.Content,
			Metadata: hit.Metadata,
		})
	}
	return matches, nil
}

func (x *FileSearchIndex) documentPath(entryID string) string {
	return fmt.Sprintf("/v1/indexes/%s/documents/%s", x.indexName, entryID)
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("file search returned status %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusNotFound
}

func (x *FileSearchIndex) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, x.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+x.apiKey)
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func modelRefsOrWildcard(refs []string) []string {
	if len(refs) == 0 {
		return []string{ModelWildcard}
	}
	return refs
}

package service

import (
	"context"
	"log"
	"time"

	"github.com/noesis-ai/noesis/internal/domain"
	"github.com/noesis-ai/noesis/internal/index"
	"github.com/noesis-ai/noesis/internal/openai"
	"github.com/noesis-ai/noesis/internal/telemetry"
)

// EmbeddingProvider turns text into a fixed-length vector.
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string) (*openai.Embedding, error)
	Model() string
	Dimensions() int
}

// EmbeddingStateStore records per-entry indexing outcomes. Satisfied by
// the entry repository.
type EmbeddingStateStore interface {
	UpdateEmbeddingState(ctx context.Context, id string, state domain.EmbeddingState) error
	ListNonDeleted(ctx context.Context) ([]*domain.Entry, error)
}

// IndexingConfig tunes the coordinator.
type IndexingConfig struct {
	Chunking ChunkConfig
	Timeout  time.Duration
}

// DefaultIndexingConfig returns the standard coordinator tuning.
func DefaultIndexingConfig() IndexingConfig {
	return IndexingConfig{
		Chunking: DefaultChunkConfig(),
		Timeout:  30 * time.Second,
	}
}

// IndexingCoordinator keeps the search backend in step with the content
// store. It runs after the content transaction has committed: backend
// or provider failures are recorded on the entry as embeddingStatus
// "failed" and never surface to the mutation caller. A nil backend
// means no index is configured and every sync is a no-op.
type IndexingCoordinator struct {
	embedder EmbeddingProvider
	backend  index.Index
	states   EmbeddingStateStore
	cfg      IndexingConfig
}

// NewIndexingCoordinator creates a coordinator with default tuning.
func NewIndexingCoordinator(embedder EmbeddingProvider, backend index.Index, states EmbeddingStateStore) *IndexingCoordinator {
	return NewIndexingCoordinatorWithConfig(embedder, backend, states, DefaultIndexingConfig())
}

// NewIndexingCoordinatorWithConfig creates a coordinator with explicit tuning.
func NewIndexingCoordinatorWithConfig(embedder EmbeddingProvider, backend index.Index, states EmbeddingStateStore, cfg IndexingConfig) *IndexingCoordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultIndexingConfig().Timeout
	}
	return &IndexingCoordinator{
		embedder: embedder,
		backend:  backend,
		states:   states,
		cfg:      cfg,
	}
}

// HasBackend reports whether a search backend is configured.
func (c *IndexingCoordinator) HasBackend() bool {
	return c != nil && c.backend != nil
}

// SyncEntry reconciles one entry with the backend after a mutation.
//
// Ineligible entries are removed from the index and marked pending so a
// later eligibility flip triggers a full re-index. Eligible entries are
// fully re-chunked and re-embedded when the content changed or the
// entry is not currently indexed; otherwise only the status/model
// metadata is patched, which never calls the embedding provider.
func (c *IndexingCoordinator) SyncEntry(ctx context.Context, entry *domain.Entry, contentChanged bool) {
	if !c.HasBackend() || entry == nil {
		return
	}

	ctx, span := telemetry.StartSpan(ctx, "IndexingCoordinator.SyncEntry", telemetry.SpanAttributes{
		EntryID:   entry.ID,
		Operation: "index_sync",
	})
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if !entry.IsEligible() {
		if err := c.backend.Remove(ctx, entry.ID); err != nil {
			c.markFailed(ctx, entry, err)
			return
		}
		c.record(ctx, entry, domain.EmbeddingState{
			Status:    domain.EmbeddingStatusPending,
			Model:     entry.EmbeddingModel,
			UpdatedAt: time.Now().UTC(),
		})
		return
	}

	meta := index.EntryMeta{
		StatusTag: string(entry.Status),
		ModelRefs: entry.Models,
	}

	if !contentChanged && entry.EmbeddingStatus == domain.EmbeddingStatusReady {
		if err := c.backend.PatchMetadata(ctx, entry.ID, meta); err != nil {
			c.markFailed(ctx, entry, err)
		}
		return
	}

	chunks := ChunkEntry(entry.ID, entry.Content, c.cfg.Chunking)
	docs := make([]index.Document, 0, len(chunks))

	// Managed backends embed server-side and may run without a
	// provider; only vector backends touch the embedder.
	model := ""
	dims := 0
	if c.backend.RequiresVectors() {
		model = c.embedder.Model()
	}

	for _, chunk := range chunks {
		doc := index.Document{
			EntryID:    chunk.EntryID,
			ChunkID:    chunk.ChunkID(),
			ChunkIndex: chunk.ChunkIndex,
			Content:    chunk.Content,
		}
		if c.backend.RequiresVectors() {
			emb, err := c.embedder.GenerateEmbedding(ctx, chunk.Content)
			if err != nil {
				c.markFailed(ctx, entry, err)
				return
			}
			doc.Vector = emb.Vector
			model = emb.Model
			dims = emb.Dimensions
		}
		docs = append(docs, doc)
	}

	if err := c.backend.Upsert(ctx, entry.ID, docs, meta); err != nil {
		c.markFailed(ctx, entry, err)
		return
	}

	c.record(ctx, entry, domain.EmbeddingState{
		Status:     domain.EmbeddingStatusReady,
		Model:      model,
		Dimensions: dims,
		UpdatedAt:  time.Now().UTC(),
	})
}

// ReindexAll re-runs eligibility and indexing for every non-deleted
// entry. Per-entry failures are recorded on the entry and counted, not
// propagated: the batch always runs to completion.
func (c *IndexingCoordinator) ReindexAll(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "IndexingCoordinator.ReindexAll", telemetry.SpanAttributes{
		Operation: "reindex_all",
	})
	defer span.End()

	if !c.HasBackend() {
		return 0, nil
	}

	entries, err := c.states.ListNonDeleted(ctx)
	if err != nil {
		span.SetError(err)
		return 0, err
	}

	for _, e := range entries {
		c.SyncEntry(ctx, e, true)
	}
	return len(entries), nil
}

func (c *IndexingCoordinator) markFailed(ctx context.Context, entry *domain.Entry, cause error) {
	log.Printf("indexing: entry %s failed: %v", entry.ID, cause)
	telemetry.CaptureError(ctx, cause)
	c.record(ctx, entry, domain.EmbeddingState{
		Status:    domain.EmbeddingStatusFailed,
		Model:     entry.EmbeddingModel,
		Error:     cause.Error(),
		UpdatedAt: time.Now().UTC(),
	})
}

func (c *IndexingCoordinator) record(ctx context.Context, entry *domain.Entry, state domain.EmbeddingState) {
	entry.EmbeddingStatus = state.Status
	entry.EmbeddingModel = state.Model
	if state.Dimensions > 0 {
		entry.EmbeddingDimensions = state.Dimensions
	}
	entry.EmbeddingError = state.Error
	updatedAt := state.UpdatedAt
	entry.EmbeddingUpdatedAt = &updatedAt

	if err := c.states.UpdateEmbeddingState(ctx, entry.ID, state); err != nil {
		log.Printf("indexing: could not record embedding state for entry %s: %v", entry.ID, err)
	}
}

package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/noesis-ai/noesis/internal/domain"
)

const (
	// SweepBatchSize is the maximum number of failed entries retried per poll
	SweepBatchSize = 20
)

// FailedEntryLister finds entries whose last indexing attempt failed
type FailedEntryLister interface {
	ListByEmbeddingStatus(ctx context.Context, status domain.EmbeddingStatus, limit int) ([]*domain.Entry, error)
}

// EntrySyncer re-runs indexing for one entry
type EntrySyncer interface {
	SyncEntry(ctx context.Context, entry *domain.Entry, contentChanged bool)
}

// ReindexSweeper retries entries stuck in embedding_status=failed.
// Indexing failures never block content mutations, so this sweep is
// what eventually reconciles the index with the content store.
type ReindexSweeper struct {
	entries FailedEntryLister
	syncer  EntrySyncer
}

// NewReindexSweeper creates a new ReindexSweeper instance
func NewReindexSweeper(entries FailedEntryLister, syncer EntrySyncer) *ReindexSweeper {
	return &ReindexSweeper{
		entries: entries,
		syncer:  syncer,
	}
}

// ProcessJobs implements the JobProcessor interface
func (s *ReindexSweeper) ProcessJobs(ctx context.Context) error {
	failed, err := s.entries.ListByEmbeddingStatus(ctx, domain.EmbeddingStatusFailed, SweepBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list entries for reindex sweep: %w", err)
	}
	if len(failed) == 0 {
		return nil
	}

	log.Printf("reindex sweep: retrying %d failed entries", len(failed))
	for _, e := range failed {
		s.syncer.SyncEntry(ctx, e, true)
	}
	return nil
}

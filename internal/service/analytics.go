package service

import (
	"context"

	"github.com/noesis-ai/noesis/internal/domain"
	"github.com/noesis-ai/noesis/internal/telemetry"
)

// AnalyticsRepositoryInterface defines the repository interface for analytics rollups
type AnalyticsRepositoryInterface interface {
	Summary(ctx context.Context) (*domain.AnalyticsSummary, error)
}

// RetrievalCountReader serves per-entry retrieval rollups. Satisfied by
// the retrieval log repository.
type RetrievalCountReader interface {
	CountByEntry(ctx context.Context, limit int) ([]domain.RetrievalCount, error)
}

// TopRetrievedLimit caps the retrieval rollup in the dashboard summary.
const TopRetrievedLimit = 20

// AnalyticsService serves read-only dashboard rollups.
type AnalyticsService struct {
	repo      AnalyticsRepositoryInterface
	retrieval RetrievalCountReader
}

// NewAnalyticsService creates a new AnalyticsService instance
func NewAnalyticsService(repo AnalyticsRepositoryInterface, retrieval RetrievalCountReader) *AnalyticsService {
	return &AnalyticsService{repo: repo, retrieval: retrieval}
}

// Summary returns entry totals by status and approval, embedding
// backlog counts, per-creator contribution counts, and the most
// retrieved entries.
func (s *AnalyticsService) Summary(ctx context.Context) (*domain.AnalyticsSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "AnalyticsService.Summary", telemetry.SpanAttributes{
		Operation: "analytics_summary",
	})
	defer span.End()

	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, err
	}

	if s.retrieval != nil {
		counts, err := s.retrieval.CountByEntry(ctx, TopRetrievedLimit)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		summary.TopRetrieved = counts
	}
	return summary, nil
}

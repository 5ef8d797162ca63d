package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/noesis-ai/noesis/internal/domain"
)

type MockAnalyticsRepository struct {
	mock.Mock
}

func (m *MockAnalyticsRepository) Summary(ctx context.Context) (*domain.AnalyticsSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalyticsSummary), args.Error(1)
}

type MockRetrievalCountReader struct {
	mock.Mock
}

func (m *MockRetrievalCountReader) CountByEntry(ctx context.Context, limit int) ([]domain.RetrievalCount, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RetrievalCount), args.Error(1)
}

func baseSummary() *domain.AnalyticsSummary {
	return &domain.AnalyticsSummary{
		TotalEntries: 3,
		ByStatus:     map[domain.EntryStatus]int{domain.EntryStatusActive: 3},
	}
}

func TestAnalyticsService_SummaryIncludesTopRetrieved(t *testing.T) {
	repo := new(MockAnalyticsRepository)
	counts := new(MockRetrievalCountReader)
	repo.On("Summary", mock.Anything).Return(baseSummary(), nil)
	counts.On("CountByEntry", mock.Anything, TopRetrievedLimit).Return([]domain.RetrievalCount{
		{EntryID: "entry-1", Count: 7},
		{EntryID: "entry-2", Count: 2},
	}, nil)

	summary, err := NewAnalyticsService(repo, counts).Summary(context.Background())

	require.NoError(t, err)
	require.Len(t, summary.TopRetrieved, 2)
	assert.Equal(t, "entry-1", summary.TopRetrieved[0].EntryID)
	assert.Equal(t, 7, summary.TopRetrieved[0].Count)
}

func TestAnalyticsService_SummaryWithoutRetrievalReader(t *testing.T) {
	repo := new(MockAnalyticsRepository)
	repo.On("Summary", mock.Anything).Return(baseSummary(), nil)

	summary, err := NewAnalyticsService(repo, nil).Summary(context.Background())

	require.NoError(t, err)
	assert.Empty(t, summary.TopRetrieved)
}

func TestAnalyticsService_RetrievalCountFailure(t *testing.T) {
	repo := new(MockAnalyticsRepository)
	counts := new(MockRetrievalCountReader)
	repo.On("Summary", mock.Anything).Return(baseSummary(), nil)
	counts.On("CountByEntry", mock.Anything, TopRetrievedLimit).Return(nil, errors.New("db down"))

	_, err := NewAnalyticsService(repo, counts).Summary(context.Background())

	assert.Error(t, err)
}

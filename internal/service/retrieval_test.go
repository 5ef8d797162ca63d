package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/noesis-ai/noesis/internal/domain"
	"github.com/noesis-ai/noesis/internal/index"
)

type fakeLogSink struct {
	records []*domain.RetrievalLogRecord
}

func (f *fakeLogSink) Log(rec *domain.RetrievalLogRecord) {
	f.records = append(f.records, rec)
}

type retrievalFixture struct {
	svc      *RetrievalService
	backend  *fakeBackend
	embedder *fakeEmbedder
	entries  *MockEntryRepository
	logs     *fakeLogSink
}

func newRetrievalFixture(backend *fakeBackend) *retrievalFixture {
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	entries := new(MockEntryRepository)
	logs := &fakeLogSink{}
	svc := NewRetrievalService(embedder, backend, entries, logs)
	return &retrievalFixture{svc: svc, backend: backend, embedder: embedder, entries: entries, logs: logs}
}

func retrieveInput(query string) RetrieveInput {
	return RetrieveInput{
		ChatID:             "chat-1",
		UserID:             "user-1",
		Model:              domain.ModelRef{ID: "model-1", Key: "gpt-4o"},
		Query:              query,
		QueryLanguage:      "en",
		UseCustomKnowledge: true,
	}
}

func TestRetrieve_NoAugmentation(t *testing.T) {
	f := newRetrievalFixture(&fakeBackend{requiresVectors: true})

	t.Run("knowledge disabled", func(t *testing.T) {
		in := retrieveInput("what time do you open")
		in.UseCustomKnowledge = false
		res, err := f.svc.Retrieve(context.Background(), in)
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("blank query", func(t *testing.T) {
		res, err := f.svc.Retrieve(context.Background(), retrieveInput("   "))
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("no backend", func(t *testing.T) {
		svc := NewRetrievalService(f.embedder, nil, f.entries, f.logs)
		res, err := svc.Retrieve(context.Background(), retrieveInput("what time do you open"))
		require.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestRetrieve_VectorMatch(t *testing.T) {
	backend := &fakeBackend{
		requiresVectors: true,
		searchResults: [][]index.Match{{
			{EntryID: "entry-1", ChunkID: "entry-1:0", Score: 0.9, Content: "Office hours are 9am-5pm IST"},
		}},
	}
	f := newRetrievalFixture(backend)
	f.entries.On("GetByIDs", mock.Anything, []string{"entry-1"}).Return([]*domain.Entry{storedEntry()}, nil)

	res, err := f.svc.Retrieve(context.Background(), retrieveInput("what time do you open"))

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, strings.HasPrefix(res.Supplement, SafetyPreamble))
	assert.Contains(t, res.Supplement, "Reference: Office hours")
	assert.Contains(t, res.Supplement, "Office hours are 9am-5pm IST")

	require.Len(t, res.Usage.Entries, 1)
	assert.Equal(t, "entry-1", res.Usage.Entries[0].EntryID)
	assert.InDelta(t, 0.9, res.Usage.Entries[0].Score, 1e-6)
	assert.Equal(t, "entry-1:0", res.Usage.Entries[0].ChunkID)

	// Short query: threshold clamps into the short-query band.
	require.Len(t, backend.searches, 1)
	assert.InDelta(t, float64(ShortQueryMaxThreshold), float64(backend.searches[0].Threshold), 1e-6)
	assert.Equal(t, []string{"model-1", "gpt-4o"}, backend.searches[0].ModelFilter)
	assert.Equal(t, DefaultMatchCount, backend.searches[0].Limit)

	require.Len(t, f.logs.records, 1)
	assert.Equal(t, "entry-1", f.logs.records[0].EntryID)
	assert.Equal(t, "chat-1", f.logs.records[0].ChatID)
	assert.Equal(t, "en", f.logs.records[0].QueryLanguage)
}

func TestRetrieve_LongQueryUsesDefaultThreshold(t *testing.T) {
	backend := &fakeBackend{requiresVectors: true}
	f := newRetrievalFixture(backend)
	f.entries.On("KeywordSearch", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.Entry{}, nil)

	query := strings.Repeat("what are the current support escalation rules ", 2)
	_, err := f.svc.Retrieve(context.Background(), retrieveInput(query))

	require.NoError(t, err)
	require.NotEmpty(t, backend.searches)
	assert.InDelta(t, float64(DefaultMatchThreshold), float64(backend.searches[0].Threshold), 1e-6)
}

func TestRetrieve_RelaxedRetryBeforeGivingUp(t *testing.T) {
	backend := &fakeBackend{
		requiresVectors: true,
		searchResults: [][]index.Match{
			{},
			{{EntryID: "entry-1", Score: 0.32, Content: "Office hours are 9am-5pm IST"}},
		},
	}
	f := newRetrievalFixture(backend)
	f.entries.On("GetByIDs", mock.Anything, []string{"entry-1"}).Return([]*domain.Entry{storedEntry()}, nil)

	res, err := f.svc.Retrieve(context.Background(), retrieveInput("what time do you open"))

	require.NoError(t, err)
	require.NotNil(t, res)
	require.Len(t, res.Usage.Entries, 1)

	require.Len(t, backend.searches, 2)
	first := backend.searches[0].Threshold
	second := backend.searches[1].Threshold
	assert.Less(t, second, first)
	assert.InDelta(t, float64(first*RelaxedThresholdRatio), float64(second), 1e-6)
}

func TestRetrieve_NoMatchSentinel(t *testing.T) {
	backend := &fakeBackend{requiresVectors: true} // both passes return nothing
	f := newRetrievalFixture(backend)

	res, err := f.svc.Retrieve(context.Background(), retrieveInput("what time do you open"))

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, NoMatchSupplement, res.Supplement)
	assert.NotNil(t, res.Usage.Entries)
	assert.Empty(t, res.Usage.Entries)
	assert.Len(t, backend.searches, 2)
	assert.Empty(t, f.logs.records)
}

func TestRetrieve_DefensiveRefilter(t *testing.T) {
	// Backend ignores the threshold and returns a weak match on both passes.
	backend := &fakeBackend{
		requiresVectors: true,
		searchResults: [][]index.Match{
			{{EntryID: "entry-1", Score: 0.05}},
			{{EntryID: "entry-1", Score: 0.05}},
		},
	}
	f := newRetrievalFixture(backend)

	res, err := f.svc.Retrieve(context.Background(), retrieveInput("what time do you open"))

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, NoMatchSupplement, res.Supplement)
	f.entries.AssertNotCalled(t, "GetByIDs", mock.Anything, mock.Anything)
}

func TestRetrieve_StaleMatchDroppedAtHydration(t *testing.T) {
	backend := &fakeBackend{
		requiresVectors: true,
		searchResults: [][]index.Match{{
			{EntryID: "entry-1", Score: 0.9, Content: "stale chunk"},
		}},
	}
	f := newRetrievalFixture(backend)

	archived := storedEntry()
	deletedAt := archived.UpdatedAt
	archived.Status = domain.EntryStatusArchived
	archived.DeletedAt = &deletedAt
	f.entries.On("GetByIDs", mock.Anything, []string{"entry-1"}).Return([]*domain.Entry{archived}, nil)

	fallback := storedEntry()
	fallback.ID = "entry-2"
	fallback.Title = "Holiday schedule"
	f.entries.On("KeywordSearch", mock.Anything, []string{"what", "time", "you", "open"}, DefaultMatchCount).
		Return([]*domain.Entry{fallback}, nil)

	res, err := f.svc.Retrieve(context.Background(), retrieveInput("what time do you open"))

	require.NoError(t, err)
	require.NotNil(t, res)
	require.Len(t, res.Usage.Entries, 1)
	assert.Equal(t, "entry-2", res.Usage.Entries[0].EntryID)
	assert.InDelta(t, float64(KeywordMatchScore), float64(res.Usage.Entries[0].Score), 1e-6)
	assert.Contains(t, res.Supplement, "Reference: Holiday schedule")
}

func TestRetrieve_ModelAllowListEnforcedAtHydration(t *testing.T) {
	backend := &fakeBackend{
		requiresVectors: true,
		searchResults: [][]index.Match{{
			{EntryID: "entry-1", Score: 0.9, Content: "restricted"},
		}},
	}
	f := newRetrievalFixture(backend)

	restricted := storedEntry()
	restricted.Models = []string{"some-other-model"}
	f.entries.On("GetByIDs", mock.Anything, []string{"entry-1"}).Return([]*domain.Entry{restricted}, nil)
	f.entries.On("KeywordSearch", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.Entry{}, nil)

	res, err := f.svc.Retrieve(context.Background(), retrieveInput("what time do you open"))

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, NoMatchSupplement, res.Supplement)
}

func TestRetrieve_EmbeddingFailureFallsBackToKeyword(t *testing.T) {
	backend := &fakeBackend{requiresVectors: true}
	f := newRetrievalFixture(backend)
	f.embedder.err = errors.New("embedding timeout")

	fallback := storedEntry()
	f.entries.On("KeywordSearch", mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.Entry{fallback}, nil)

	res, err := f.svc.Retrieve(context.Background(), retrieveInput("what time do you open"))

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Empty(t, backend.searches)
	require.Len(t, res.Usage.Entries, 1)
	assert.InDelta(t, float64(KeywordMatchScore), float64(res.Usage.Entries[0].Score), 1e-6)
}

func TestRetrieve_SearchFailureFallsBackToKeyword(t *testing.T) {
	backend := &fakeBackend{requiresVectors: true, searchErr: errors.New("backend down")}
	f := newRetrievalFixture(backend)
	f.entries.On("KeywordSearch", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.Entry{}, nil)

	res, err := f.svc.Retrieve(context.Background(), retrieveInput("what time do you open"))

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, NoMatchSupplement, res.Supplement)
}

func TestRetrieve_BudgetStopsGreedily(t *testing.T) {
	first := storedEntry()
	first.Content = strings.Repeat("a", 1500)
	second := storedEntry()
	second.ID = "entry-2"
	second.Title = "Second"
	second.Content = strings.Repeat("b", 1500)

	backend := &fakeBackend{
		requiresVectors: true,
		searchResults: [][]index.Match{{
			{EntryID: "entry-1", Score: 0.9, Content: first.Content},
			{EntryID: "entry-2", Score: 0.8, Content: second.Content},
		}},
	}
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	entries := new(MockEntryRepository)
	entries.On("GetByIDs", mock.Anything, []string{"entry-1", "entry-2"}).
		Return([]*domain.Entry{first, second}, nil)

	cfg := DefaultRetrievalConfig()
	cfg.Budget = 2000
	svc := NewRetrievalServiceWithConfig(embedder, backend, entries, nil, cfg)

	res, err := svc.Retrieve(context.Background(), retrieveInput("what time do you open"))

	require.NoError(t, err)
	require.NotNil(t, res)
	require.Len(t, res.Usage.Entries, 1)
	assert.Equal(t, "entry-1", res.Usage.Entries[0].EntryID)
	assert.NotContains(t, res.Supplement, "Reference: Second")
}

func TestKeywordTokens(t *testing.T) {
	assert.Equal(t, []string{"office", "hours", "ist"}, keywordTokens("Office hours, in IST?"))
	assert.Empty(t, keywordTokens("a an it"))
}

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/noesis-ai/noesis/internal/domain"
	"github.com/noesis-ai/noesis/internal/index"
	"github.com/noesis-ai/noesis/internal/openai"
)

type upsertCall struct {
	entryID string
	docs    []index.Document
	meta    index.EntryMeta
}

type patchCall struct {
	entryID string
	meta    index.EntryMeta
}

// fakeBackend is an in-memory recording implementation of index.Index
type fakeBackend struct {
	requiresVectors bool

	upserts  []upsertCall
	patches  []patchCall
	removes  []string
	searches []index.Query

	searchResults [][]index.Match

	upsertErr error
	patchErr  error
	removeErr error
	searchErr error
}

func (f *fakeBackend) Upsert(ctx context.Context, entryID string, docs []index.Document, meta index.EntryMeta) error {
	f.upserts = append(f.upserts, upsertCall{entryID: entryID, docs: docs, meta: meta})
	return f.upsertErr
}

func (f *fakeBackend) PatchMetadata(ctx context.Context, entryID string, meta index.EntryMeta) error {
	f.patches = append(f.patches, patchCall{entryID: entryID, meta: meta})
	return f.patchErr
}

func (f *fakeBackend) Remove(ctx context.Context, entryID string) error {
	f.removes = append(f.removes, entryID)
	return f.removeErr
}

func (f *fakeBackend) Search(ctx context.Context, q index.Query) ([]index.Match, error) {
	f.searches = append(f.searches, q)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.searchResults) == 0 {
		return nil, nil
	}
	out := f.searchResults[0]
	f.searchResults = f.searchResults[1:]
	return out, nil
}

func (f *fakeBackend) RequiresVectors() bool {
	return f.requiresVectors
}

// fakeEmbedder is a stub EmbeddingProvider
type fakeEmbedder struct {
	vector []float32
	err    error
	inputs []string
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) (*openai.Embedding, error) {
	f.inputs = append(f.inputs, text)
	if f.err != nil {
		return nil, f.err
	}
	return &openai.Embedding{Vector: f.vector, Model: "text-embedding-3-small", Dimensions: len(f.vector)}, nil
}

func (f *fakeEmbedder) Model() string { return "text-embedding-3-small" }

func (f *fakeEmbedder) Dimensions() int { return len(f.vector) }

func TestIndexingCoordinator_FullIndex(t *testing.T) {
	backend := &fakeBackend{requiresVectors: true}
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	states := new(MockEntryRepository)
	states.On("UpdateEmbeddingState", mock.Anything, "entry-1", mock.Anything).Return(nil)

	coord := NewIndexingCoordinator(embedder, backend, states)
	entry := storedEntry()
	entry.EmbeddingStatus = domain.EmbeddingStatusPending

	coord.SyncEntry(context.Background(), entry, true)

	require.Len(t, backend.upserts, 1)
	call := backend.upserts[0]
	assert.Equal(t, "entry-1", call.entryID)
	require.Len(t, call.docs, 1)
	assert.Equal(t, "entry-1:0", call.docs[0].ChunkID)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, call.docs[0].Vector)
	assert.Equal(t, "active", call.meta.StatusTag)

	assert.Equal(t, domain.EmbeddingStatusReady, entry.EmbeddingStatus)
	assert.Equal(t, "text-embedding-3-small", entry.EmbeddingModel)
	assert.Equal(t, 3, entry.EmbeddingDimensions)
	assert.Empty(t, entry.EmbeddingError)

	states.AssertCalled(t, "UpdateEmbeddingState", mock.Anything, "entry-1", mock.MatchedBy(func(s domain.EmbeddingState) bool {
		return s.Status == domain.EmbeddingStatusReady && s.Dimensions == 3
	}))
}

func TestIndexingCoordinator_EmbeddingFailureRecorded(t *testing.T) {
	backend := &fakeBackend{requiresVectors: true}
	embedder := &fakeEmbedder{err: errors.New("provider unavailable")}
	states := new(MockEntryRepository)
	states.On("UpdateEmbeddingState", mock.Anything, "entry-1", mock.Anything).Return(nil)

	coord := NewIndexingCoordinator(embedder, backend, states)
	entry := storedEntry()

	coord.SyncEntry(context.Background(), entry, true)

	assert.Empty(t, backend.upserts)
	assert.Equal(t, domain.EmbeddingStatusFailed, entry.EmbeddingStatus)
	assert.Contains(t, entry.EmbeddingError, "provider unavailable")

	states.AssertCalled(t, "UpdateEmbeddingState", mock.Anything, "entry-1", mock.MatchedBy(func(s domain.EmbeddingState) bool {
		return s.Status == domain.EmbeddingStatusFailed && s.Error != ""
	}))
}

func TestIndexingCoordinator_BackendFailureRecorded(t *testing.T) {
	backend := &fakeBackend{requiresVectors: true, upsertErr: errors.New("index unreachable")}
	embedder := &fakeEmbedder{vector: []float32{0.5}}
	states := new(MockEntryRepository)
	states.On("UpdateEmbeddingState", mock.Anything, "entry-1", mock.Anything).Return(nil)

	coord := NewIndexingCoordinator(embedder, backend, states)
	entry := storedEntry()

	coord.SyncEntry(context.Background(), entry, true)

	assert.Equal(t, domain.EmbeddingStatusFailed, entry.EmbeddingStatus)
	assert.Contains(t, entry.EmbeddingError, "index unreachable")
}

func TestIndexingCoordinator_IneligibleRemoved(t *testing.T) {
	backend := &fakeBackend{requiresVectors: true}
	embedder := &fakeEmbedder{vector: []float32{0.5}}
	states := new(MockEntryRepository)
	states.On("UpdateEmbeddingState", mock.Anything, "entry-1", mock.Anything).Return(nil)

	coord := NewIndexingCoordinator(embedder, backend, states)
	entry := storedEntry()
	entry.ApprovalStatus = domain.ApprovalStatusRejected
	entry.Status = domain.EntryStatusInactive

	coord.SyncEntry(context.Background(), entry, false)

	assert.Equal(t, []string{"entry-1"}, backend.removes)
	assert.Empty(t, backend.upserts)
	assert.Empty(t, embedder.inputs)
	assert.Equal(t, domain.EmbeddingStatusPending, entry.EmbeddingStatus)
}

func TestIndexingCoordinator_MetadataPatchSkipsEmbedding(t *testing.T) {
	backend := &fakeBackend{requiresVectors: true}
	embedder := &fakeEmbedder{vector: []float32{0.5}}
	states := new(MockEntryRepository)

	coord := NewIndexingCoordinator(embedder, backend, states)
	entry := storedEntry() // embeddingStatus ready

	coord.SyncEntry(context.Background(), entry, false)

	require.Len(t, backend.patches, 1)
	assert.Equal(t, "entry-1", backend.patches[0].entryID)
	assert.Empty(t, backend.upserts)
	assert.Empty(t, embedder.inputs)
	assert.Equal(t, domain.EmbeddingStatusReady, entry.EmbeddingStatus)
	states.AssertNotCalled(t, "UpdateEmbeddingState", mock.Anything, mock.Anything, mock.Anything)
}

func TestIndexingCoordinator_NotIndexedYetGetsFullIndex(t *testing.T) {
	backend := &fakeBackend{requiresVectors: true}
	embedder := &fakeEmbedder{vector: []float32{0.5}}
	states := new(MockEntryRepository)
	states.On("UpdateEmbeddingState", mock.Anything, "entry-1", mock.Anything).Return(nil)

	coord := NewIndexingCoordinator(embedder, backend, states)
	entry := storedEntry()
	entry.EmbeddingStatus = domain.EmbeddingStatusPending

	// Content unchanged, but the entry is not in the index yet.
	coord.SyncEntry(context.Background(), entry, false)

	assert.Empty(t, backend.patches)
	require.Len(t, backend.upserts, 1)
	assert.Equal(t, domain.EmbeddingStatusReady, entry.EmbeddingStatus)
}

func TestIndexingCoordinator_ManagedBackendSkipsClientEmbedding(t *testing.T) {
	backend := &fakeBackend{requiresVectors: false}
	embedder := &fakeEmbedder{vector: []float32{0.5}}
	states := new(MockEntryRepository)
	states.On("UpdateEmbeddingState", mock.Anything, "entry-1", mock.Anything).Return(nil)

	coord := NewIndexingCoordinator(embedder, backend, states)
	entry := storedEntry()

	coord.SyncEntry(context.Background(), entry, true)

	require.Len(t, backend.upserts, 1)
	assert.Nil(t, backend.upserts[0].docs[0].Vector)
	assert.Empty(t, embedder.inputs)
}

func TestIndexingCoordinator_ManagedBackendWithoutEmbedder(t *testing.T) {
	backend := &fakeBackend{requiresVectors: false}
	states := new(MockEntryRepository)
	states.On("UpdateEmbeddingState", mock.Anything, "entry-1", mock.Anything).Return(nil)

	coord := NewIndexingCoordinator(nil, backend, states)
	entry := storedEntry()
	entry.EmbeddingStatus = domain.EmbeddingStatusPending

	assert.NotPanics(t, func() {
		coord.SyncEntry(context.Background(), entry, true)
	})

	require.Len(t, backend.upserts, 1)
	assert.Equal(t, domain.EmbeddingStatusReady, entry.EmbeddingStatus)
	assert.Empty(t, entry.EmbeddingModel)
}

func TestIndexingCoordinator_NoBackendIsNoOp(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{0.5}}
	states := new(MockEntryRepository)

	coord := NewIndexingCoordinator(embedder, nil, states)
	entry := storedEntry()

	coord.SyncEntry(context.Background(), entry, true)

	assert.Empty(t, embedder.inputs)
	states.AssertNotCalled(t, "UpdateEmbeddingState", mock.Anything, mock.Anything, mock.Anything)
}

func TestIndexingCoordinator_ReindexAll(t *testing.T) {
	backend := &fakeBackend{requiresVectors: true}
	embedder := &fakeEmbedder{vector: []float32{0.5}}
	states := new(MockEntryRepository)

	eligible := storedEntry()
	ineligible := storedEntry()
	ineligible.ID = "entry-2"
	ineligible.Status = domain.EntryStatusInactive

	states.On("ListNonDeleted", mock.Anything).Return([]*domain.Entry{eligible, ineligible}, nil)
	states.On("UpdateEmbeddingState", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	coord := NewIndexingCoordinator(embedder, backend, states)
	count, err := coord.ReindexAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, backend.upserts, 1)
	assert.Equal(t, "entry-1", backend.upserts[0].entryID)
	assert.Equal(t, []string{"entry-2"}, backend.removes)
}

func TestIndexingCoordinator_ReindexAll_ContinuesPastFailures(t *testing.T) {
	backend := &fakeBackend{requiresVectors: true}
	embedder := &fakeEmbedder{err: errors.New("provider down")}
	states := new(MockEntryRepository)

	a := storedEntry()
	b := storedEntry()
	b.ID = "entry-2"

	states.On("ListNonDeleted", mock.Anything).Return([]*domain.Entry{a, b}, nil)
	states.On("UpdateEmbeddingState", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	coord := NewIndexingCoordinator(embedder, backend, states)
	count, err := coord.ReindexAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, domain.EmbeddingStatusFailed, a.EmbeddingStatus)
	assert.Equal(t, domain.EmbeddingStatusFailed, b.EmbeddingStatus)
}

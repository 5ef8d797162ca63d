package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/noesis-ai/noesis/internal/domain"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockFailedEntryLister is a mock implementation of FailedEntryLister
type MockFailedEntryLister struct {
	mock.Mock
}

func (m *MockFailedEntryLister) ListByEmbeddingStatus(ctx context.Context, status domain.EmbeddingStatus, limit int) ([]*domain.Entry, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Entry), args.Error(1)
}

type recordingSyncer struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingSyncer) SyncEntry(ctx context.Context, entry *domain.Entry, contentChanged bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry.ID)
}

func TestWorker_ProcessesOnTick(t *testing.T) {
	processor := new(MockJobProcessor)

	var wg sync.WaitGroup
	wg.Add(1)
	var once sync.Once
	processor.On("ProcessJobs", mock.Anything).Run(func(args mock.Arguments) {
		once.Do(wg.Done)
	}).Return(nil)

	worker := NewWorker(processor, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	wg.Wait()
	worker.Stop()

	processor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	processor := new(MockJobProcessor)
	processor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(processor, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

func TestReindexSweeper_RetriesFailedEntries(t *testing.T) {
	lister := new(MockFailedEntryLister)
	syncer := &recordingSyncer{}

	failed := []*domain.Entry{
		{ID: "entry-1", EmbeddingStatus: domain.EmbeddingStatusFailed},
		{ID: "entry-2", EmbeddingStatus: domain.EmbeddingStatusFailed},
	}
	lister.On("ListByEmbeddingStatus", mock.Anything, domain.EmbeddingStatusFailed, SweepBatchSize).Return(failed, nil)

	sweeper := NewReindexSweeper(lister, syncer)
	err := sweeper.ProcessJobs(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"entry-1", "entry-2"}, syncer.entries)
}

func TestReindexSweeper_NothingToDo(t *testing.T) {
	lister := new(MockFailedEntryLister)
	syncer := &recordingSyncer{}
	lister.On("ListByEmbeddingStatus", mock.Anything, domain.EmbeddingStatusFailed, SweepBatchSize).Return([]*domain.Entry{}, nil)

	err := NewReindexSweeper(lister, syncer).ProcessJobs(context.Background())

	require.NoError(t, err)
	assert.Empty(t, syncer.entries)
}

func TestReindexSweeper_ListFailure(t *testing.T) {
	lister := new(MockFailedEntryLister)
	lister.On("ListByEmbeddingStatus", mock.Anything, domain.EmbeddingStatusFailed, SweepBatchSize).
		Return(nil, errors.New("db down"))

	err := NewReindexSweeper(lister, &recordingSyncer{}).ProcessJobs(context.Background())

	assert.Error(t, err)
}

type recordingLogWriter struct {
	mu      sync.Mutex
	records []*domain.RetrievalLogRecord
	err     error
}

func (w *recordingLogWriter) Create(ctx context.Context, rec *domain.RetrievalLogRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, rec)
	return w.err
}

func (w *recordingLogWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

func TestRetrievalLogger_WritesRecords(t *testing.T) {
	writer := &recordingLogWriter{}
	logger := NewRetrievalLogger(writer, 8)

	go logger.Start(context.Background())

	logger.Log(&domain.RetrievalLogRecord{ID: "log-1", EntryID: "entry-1"})
	logger.Log(&domain.RetrievalLogRecord{ID: "log-2", EntryID: "entry-2"})
	logger.Stop()

	assert.Equal(t, 2, writer.count())
}

func TestRetrievalLogger_DropsWhenFull(t *testing.T) {
	writer := &recordingLogWriter{}
	logger := NewRetrievalLogger(writer, 1)

	// Drain loop not started: the buffer holds one record, the rest drop.
	logger.Log(&domain.RetrievalLogRecord{ID: "log-1", EntryID: "entry-1"})
	logger.Log(&domain.RetrievalLogRecord{ID: "log-2", EntryID: "entry-2"})

	go logger.Start(context.Background())
	logger.Stop()

	assert.Equal(t, 1, writer.count())
}

func TestRetrievalLogger_LogAfterStopIsDropped(t *testing.T) {
	writer := &recordingLogWriter{}
	logger := NewRetrievalLogger(writer, 8)

	ctx, cancel := context.WithCancel(context.Background())
	go logger.Start(ctx)

	logger.Log(&domain.RetrievalLogRecord{ID: "log-1", EntryID: "entry-1"})
	cancel()
	logger.Stop()

	// A retrieve racing shutdown must not crash the request.
	assert.NotPanics(t, func() {
		logger.Log(&domain.RetrievalLogRecord{ID: "log-2", EntryID: "entry-2"})
	})
	assert.Equal(t, 1, writer.count())

	// Stop is idempotent.
	assert.NotPanics(t, logger.Stop)
}

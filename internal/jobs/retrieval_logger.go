package jobs

import (
	"context"
	"log"
	"sync"

	"github.com/noesis-ai/noesis/internal/domain"
)

// RetrievalLogWriter persists one retrieval log record
type RetrievalLogWriter interface {
	Create(ctx context.Context, rec *domain.RetrievalLogRecord) error
}

// RetrievalLogger drains retrieval analytics records through a bounded
// buffer so logging never blocks the retrieval path. When the buffer is
// full, records are dropped: these logs are best-effort by contract.
type RetrievalLogger struct {
	writer   RetrievalLogWriter
	ch       chan *domain.RetrievalLogRecord
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewRetrievalLogger creates a new RetrievalLogger with the given buffer size
func NewRetrievalLogger(writer RetrievalLogWriter, buffer int) *RetrievalLogger {
	if buffer <= 0 {
		buffer = 256
	}
	return &RetrievalLogger{
		writer:   writer,
		ch:       make(chan *domain.RetrievalLogRecord, buffer),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Log enqueues a record without blocking. A full buffer drops the
// record, and so does a stopped logger. The record channel is never
// closed, so a Log racing shutdown is a silent drop, not a panic.
func (l *RetrievalLogger) Log(rec *domain.RetrievalLogRecord) {
	select {
	case <-l.stopChan:
		return
	default:
	}
	select {
	case l.ch <- rec:
	default:
		log.Printf("retrieval logger: buffer full, dropping record for entry %s", rec.EntryID)
	}
}

// Start drains the buffer until the context is cancelled or Stop is
// called. Run it in its own goroutine.
func (l *RetrievalLogger) Start(ctx context.Context) {
	defer close(l.doneChan)

	for {
		select {
		case <-ctx.Done():
			l.drain()
			return
		case <-l.stopChan:
			l.drain()
			return
		case rec := <-l.ch:
			l.write(rec)
		}
	}
}

// Stop signals shutdown and waits for the drain loop to finish. Safe to
// call more than once.
func (l *RetrievalLogger) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	<-l.doneChan
}

// drain flushes whatever is still buffered at shutdown.
func (l *RetrievalLogger) drain() {
	for {
		select {
		case rec := <-l.ch:
			l.write(rec)
		default:
			return
		}
	}
}

func (l *RetrievalLogger) write(rec *domain.RetrievalLogRecord) {
	// Fresh context: the request that produced this record is long gone.
	if err := l.writer.Create(context.Background(), rec); err != nil {
		log.Printf("retrieval logger: failed to persist record for entry %s: %v", rec.EntryID, err)
	}
}

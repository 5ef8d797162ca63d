package domain

import "time"

// RetrievalLogRecord is an append-only analytics record of one entry
// being used to answer a query. Write-and-forget: the absence of a
// record never affects retrieval correctness.
type RetrievalLogRecord struct {
	ID            string
	EntryID       string
	ChatID        string
	ModelID       string
	UserID        string
	Score         float32
	QueryText     string
	QueryLanguage string
	Metadata      map[string]any
	CreatedAt     time.Time
}

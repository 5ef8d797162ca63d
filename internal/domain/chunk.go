package domain

import "fmt"

// EntryChunk is a bounded sub-segment of an entry's content used for
// indexing. Chunks are derived, disposable artifacts: they are fully
// regenerated whenever the entry content is re-embedded, never mutated
// in place.
type EntryChunk struct {
	EntryID    string
	ChunkIndex int // 0-based, contiguous
	Content    string
}

// ChunkID returns the deterministic identity of a chunk, which makes
// index upserts idempotent per chunk.
func (c *EntryChunk) ChunkID() string {
	return fmt.Sprintf("%s:%d", c.EntryID, c.ChunkIndex)
}

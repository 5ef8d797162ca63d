// Package index defines the pluggable vector index backend used to
// index and search knowledge entry chunks. Exactly one backend is
// active per deployment, selected by configuration.
package index

import "context"

// ModelWildcard is the sentinel allow-list value used by backends that
// require explicit metadata for globally visible entries.
const ModelWildcard = "all"

// Document is one chunk of an entry to be indexed. Vector may be nil
// for backends that embed server-side (see RequiresVectors).
type Document struct {
	EntryID    string
	ChunkID    string
	ChunkIndex int
	Content    string
	Vector     []float32
}

// EntryMeta carries the per-entry metadata stored alongside indexed
// documents: the lifecycle status tag and the model allow-list (empty
// means visible to every model).
type EntryMeta struct {
	StatusTag string
	ModelRefs []string
}

// Query is a search request against the active backend. Vector is used
// by similarity backends, Text by managed document-search backends;
// callers populate both.
type Query struct {
	Vector      []float32
	Text        string
	Limit       int
	Threshold   float32
	ModelFilter []string // requesting model's id and key; empty = no filter
	StatusTag   string
}

// Match is one scored search hit. Backend results may be stale; callers
// re-check eligibility against the content store after hydration.
type Match struct {
	EntryID  string
	ChunkID  string
	Score    float32 // in [0,1]
	Content  string
	Metadata map[string]any
}

// Index is the pluggable backend contract.
//
// Upsert replaces all indexed documents for an entry (idempotent per
// chunk id). PatchMetadata updates status/model metadata without
// re-embedding. Remove deletes everything for an entry and is a no-op
// when nothing is indexed.
type Index interface {
	Upsert(ctx context.Context, entryID string, docs []Document, meta EntryMeta) error
	PatchMetadata(ctx context.Context, entryID string, meta EntryMeta) error
	Remove(ctx context.Context, entryID string) error
	Search(ctx context.Context, q Query) ([]Match, error)

	// RequiresVectors reports whether the backend needs caller-supplied
	// embeddings. Managed document-search backends embed server-side.
	RequiresVectors() bool
}

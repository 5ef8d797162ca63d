package index

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgvectorIndex implements Index on Postgres with the pgvector
// extension. Chunks live in the entry_chunks table; similarity is
// cosine, scored as 1 - distance and clamped to [0,1].
type PgvectorIndex struct {
	pool *pgxpool.Pool
}

func NewPgvectorIndex(pool *pgxpool.Pool) *PgvectorIndex {
	return &PgvectorIndex{pool: pool}
}

func (x *PgvectorIndex) RequiresVectors() bool { return true }

func (x *PgvectorIndex) Upsert(ctx context.Context, entryID string, docs []Document, meta EntryMeta) error {
	// Chunks are regenerated wholesale: delete then reinsert keeps the
	// chunk set contiguous even when the chunk count shrinks.
	if _, err := x.pool.Exec(ctx, `DELETE FROM entry_chunks WHERE entry_id = $1`, entryID); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, d := range docs {
		_, err := x.pool.Exec(ctx,
			`INSERT INTO entry_chunks (id, entry_id, chunk_index, content, embedding, status_tag, model_refs, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			 ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				status_tag = EXCLUDED.status_tag,
				model_refs = EXCLUDED.model_refs,
				updated_at = EXCLUDED.updated_at`,
			d.ChunkID,
			d.EntryID,
			d.ChunkIndex,
			d.Content,
			pgvector.NewVector(d.Vector),
			meta.StatusTag,
			modelRefsOrEmpty(meta.ModelRefs),
			now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *PgvectorIndex) PatchMetadata(ctx context.Context, entryID string, meta EntryMeta) error {
	_, err := x.pool.Exec(ctx,
		`UPDATE entry_chunks SET status_tag = $1, model_refs = $2, updated_at = $3 WHERE entry_id = $4`,
		meta.StatusTag,
		modelRefsOrEmpty(meta.ModelRefs),
		time.Now().UTC(),
		entryID,
	)
	return err
}

func (x *PgvectorIndex) Remove(ctx context.Context, entryID string) error {
	// Removing a non-indexed entry is a no-op, not an error.
	_, err := x.pool.Exec(ctx, `DELETE FROM entry_chunks WHERE entry_id = $1`, entryID)
	return err
}

func (x *PgvectorIndex) Search(ctx context.Context, q Query) ([]Match, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 4
	}

	vec := pgvector.NewVector(q.Vector)

	query := `
		SELECT entry_id, id, content,
		       GREATEST(LEAST(1 - (embedding <=> $1), 1), 0) AS score
		FROM entry_chunks
		WHERE embedding IS NOT NULL
		  AND status_tag = $2
		  AND (cardinality(model_refs) = 0 OR model_refs && $3)
		  AND 1 - (embedding <=> $1) >= $4
		ORDER BY embedding <=> $1
		LIMIT $5`

	rows, err := x.pool.Query(ctx, query, vec, q.StatusTag, modelRefsOrEmpty(q.ModelFilter), q.Threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]Match, 0, limit)
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.EntryID, &m.ChunkID, &m.Content, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func modelRefsOrEmpty(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}

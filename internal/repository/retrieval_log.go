package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noesis-ai/noesis/internal/domain"
)

type RetrievalLogRepository struct {
	db dbtx
}

func NewRetrievalLogRepository(pool *pgxpool.Pool) *RetrievalLogRepository {
	return &RetrievalLogRepository{db: pool}
}

func (r *RetrievalLogRepository) Create(ctx context.Context, rec *domain.RetrievalLogRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO retrieval_logs (id, entry_id, chat_id, model_id, user_id, score, query_text, query_language, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.EntryID, nullableString(rec.ChatID), nullableString(rec.ModelID), nullableString(rec.UserID),
		rec.Score, rec.QueryText, nullableString(rec.QueryLanguage), metadataOrEmpty(rec.Metadata), rec.CreatedAt,
	)
	return err
}

// CountByEntry returns the most retrieved entries, highest count first.
func (r *RetrievalLogRepository) CountByEntry(ctx context.Context, limit int) ([]domain.RetrievalCount, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT entry_id, COUNT(*) FROM retrieval_logs
		 GROUP BY entry_id ORDER BY COUNT(*) DESC, entry_id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RetrievalCount
	for rows.Next() {
		var c domain.RetrievalCount
		if err := rows.Scan(&c.EntryID, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

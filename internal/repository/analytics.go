package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noesis-ai/noesis/internal/domain"
)

type AnalyticsRepository struct {
	db dbtx
}

func NewAnalyticsRepository(pool *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{db: pool}
}

// Summary aggregates entry counts for dashboards. Soft-deleted entries
// are excluded from every rollup.
func (r *AnalyticsRepository) Summary(ctx context.Context) (*domain.AnalyticsSummary, error) {
	summary := &domain.AnalyticsSummary{
		ByStatus:         make(map[domain.EntryStatus]int),
		ByApprovalStatus: make(map[domain.ApprovalStatus]int),
	}

	rows, err := r.db.Query(ctx,
		`SELECT status, COUNT(*) FROM entries WHERE deleted_at IS NULL GROUP BY status`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status domain.EntryStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary.ByStatus[status] = count
		summary.TotalEntries += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Query(ctx,
		`SELECT approval_status, COUNT(*) FROM entries WHERE deleted_at IS NULL GROUP BY approval_status`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status domain.ApprovalStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary.ByApprovalStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.db.QueryRow(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE embedding_status = 'pending'),
		   COUNT(*) FILTER (WHERE embedding_status = 'failed')
		 FROM entries WHERE deleted_at IS NULL`,
	).Scan(&summary.PendingEmbeddings, &summary.FailedEmbeddings)
	if err != nil {
		return nil, err
	}

	rows, err = r.db.Query(ctx,
		`SELECT added_by, COUNT(*) FROM entries WHERE deleted_at IS NULL
		 GROUP BY added_by ORDER BY COUNT(*) DESC, added_by LIMIT 20`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.CreatorCount
		if err := rows.Scan(&c.UserID, &c.Count); err != nil {
			return nil, err
		}
		summary.PerCreator = append(summary.PerCreator, c)
	}
	return summary, rows.Err()
}

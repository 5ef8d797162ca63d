package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noesis-ai/noesis/internal/domain"
)

const versionColumns = `id, entry_id, version, title, content, type, source_url, tags, models,
	category_id, personal_for_user_id, status, approval_status, approved_by,
	diff, change_summary, editor_id, created_at`

type EntryVersionRepository struct {
	db dbtx
}

func NewEntryVersionRepository(pool *pgxpool.Pool) *EntryVersionRepository {
	return &EntryVersionRepository{db: pool}
}

func NewEntryVersionRepositoryWithTx(tx pgx.Tx) *EntryVersionRepository {
	return &EntryVersionRepository{db: tx}
}

func (r *EntryVersionRepository) Create(ctx context.Context, v *domain.EntryVersion) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO entry_versions (`+versionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		v.ID, v.EntryID, v.Version, v.Title, v.Content, v.Type, nullableString(v.SourceURL), v.Tags, v.Models,
		nullableString(v.CategoryID), nullableString(v.PersonalForUserID), v.Status, v.ApprovalStatus, nullableString(v.ApprovedBy),
		v.Diff, nullableString(v.ChangeSummary), v.EditorID, v.CreatedAt,
	)
	return err
}

func (r *EntryVersionRepository) GetByID(ctx context.Context, versionID string) (*domain.EntryVersion, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM entry_versions WHERE id = $1`,
		versionID,
	)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVersionNotFound
		}
		return nil, err
	}
	return v, nil
}

func (r *EntryVersionRepository) ListByEntry(ctx context.Context, entryID string) ([]*domain.EntryVersion, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+versionColumns+` FROM entry_versions WHERE entry_id = $1 ORDER BY version DESC`,
		entryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*domain.EntryVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func scanVersion(row rowScanner) (*domain.EntryVersion, error) {
	var v domain.EntryVersion
	var sourceURL, categoryID, personalFor, approvedBy, summary *string

	err := row.Scan(
		&v.ID, &v.EntryID, &v.Version, &v.Title, &v.Content, &v.Type, &sourceURL, &v.Tags, &v.Models,
		&categoryID, &personalFor, &v.Status, &v.ApprovalStatus, &approvedBy,
		&v.Diff, &summary, &v.EditorID, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.SourceURL = derefString(sourceURL)
	v.CategoryID = derefString(categoryID)
	v.PersonalForUserID = derefString(personalFor)
	v.ApprovedBy = derefString(approvedBy)
	v.ChangeSummary = derefString(summary)
	return &v, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noesis-ai/noesis/internal/domain"
	"github.com/noesis-ai/noesis/internal/pagination"
	"github.com/noesis-ai/noesis/internal/service"
)

const entryColumns = `id, title, content, type, source_url, tags, models, category_id,
	added_by, personal_for_user_id, status, approval_status, approved_by, deleted_at,
	version, embedding_status, embedding_model, embedding_dimensions, embedding_error,
	embedding_updated_at, metadata, created_at, updated_at`

type EntryRepository struct {
	db dbtx
}

func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return &EntryRepository{db: pool}
}

func NewEntryRepositoryWithTx(tx pgx.Tx) *EntryRepository {
	return &EntryRepository{db: tx}
}

func (r *EntryRepository) Create(ctx context.Context, e *domain.Entry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO entries (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		e.ID, e.Title, e.Content, e.Type, nullableString(e.SourceURL), e.Tags, e.Models, nullableString(e.CategoryID),
		e.AddedBy, nullableString(e.PersonalForUserID), e.Status, e.ApprovalStatus, nullableString(e.ApprovedBy), e.DeletedAt,
		e.Version, e.EmbeddingStatus, nullableString(e.EmbeddingModel), e.EmbeddingDimensions, nullableString(e.EmbeddingError),
		e.EmbeddingUpdatedAt, metadataOrEmpty(e.Metadata), e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (r *EntryRepository) GetByID(ctx context.Context, id string) (*domain.Entry, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = $1`,
		id,
	)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *EntryRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntryRows(rows)
}

func (r *EntryRepository) Update(ctx context.Context, e *domain.Entry) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE entries SET title = $1, content = $2, type = $3, source_url = $4, tags = $5, models = $6,
		 category_id = $7, status = $8, approval_status = $9, approved_by = $10, deleted_at = $11,
		 version = $12, embedding_status = $13, embedding_error = $14, metadata = $15, updated_at = $16
		 WHERE id = $17`,
		e.Title, e.Content, e.Type, nullableString(e.SourceURL), e.Tags, e.Models,
		nullableString(e.CategoryID), e.Status, e.ApprovalStatus, nullableString(e.ApprovedBy), e.DeletedAt,
		e.Version, e.EmbeddingStatus, nullableString(e.EmbeddingError), metadataOrEmpty(e.Metadata), e.UpdatedAt, e.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

func (r *EntryRepository) List(ctx context.Context, filter service.EntryFilter, cursor *pagination.Cursor, limit int) (*service.EntryPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	switch filter.Scope {
	case service.ScopeShared:
		conds = append(conds, "personal_for_user_id IS NULL")
	case service.ScopePersonal:
		conds = append(conds, "personal_for_user_id = "+arg(filter.UserID))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(filter.Status))
	}
	if filter.ApprovalStatus != "" {
		conds = append(conds, "approval_status = "+arg(filter.ApprovalStatus))
	}
	if filter.CategoryID != "" {
		conds = append(conds, "category_id = "+arg(filter.CategoryID))
	}
	if filter.Tag != "" {
		conds = append(conds, arg(filter.Tag)+" = ANY(tags)")
	}
	if cursor != nil {
		conds = append(conds, fmt.Sprintf("(updated_at, id) < (%s, %s)", arg(cursor.Timestamp), arg(cursor.LastID)))
	}

	query := `SELECT ` + entryColumns + ` FROM entries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at DESC, id DESC LIMIT " + arg(limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanEntryRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		lastItem := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.UpdatedAt)
	}

	return &service.EntryPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func (r *EntryRepository) ListNonDeleted(ctx context.Context) ([]*domain.Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE deleted_at IS NULL ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntryRows(rows)
}

// ListByEmbeddingStatus returns non-deleted entries in the given
// indexing state, oldest first, for reconciliation sweeps.
func (r *EntryRepository) ListByEmbeddingStatus(ctx context.Context, status domain.EmbeddingStatus, limit int) ([]*domain.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM entries
		 WHERE deleted_at IS NULL AND embedding_status = $1
		 ORDER BY updated_at LIMIT $2`,
		status, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntryRows(rows)
}

func (r *EntryRepository) UpdateEmbeddingState(ctx context.Context, id string, state domain.EmbeddingState) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE entries SET embedding_status = $1, embedding_model = $2, embedding_dimensions = $3,
		 embedding_error = $4, embedding_updated_at = $5
		 WHERE id = $6`,
		state.Status, nullableString(state.Model), state.Dimensions,
		nullableString(state.Error), state.UpdatedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

// KeywordSearch matches eligible entries whose title or content contains
// any of the tokens, case-insensitively.
func (r *EntryRepository) KeywordSearch(ctx context.Context, tokens []string, limit int) ([]*domain.Entry, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 4
	}

	args := []any{}
	var likes []string
	for _, tok := range tokens {
		args = append(args, "%"+tok+"%")
		n := len(args)
		likes = append(likes, fmt.Sprintf("(title ILIKE $%d OR content ILIKE $%d)", n, n))
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT `+entryColumns+` FROM entries
		 WHERE deleted_at IS NULL AND status = 'active' AND approval_status = 'approved'
		 AND (%s)
		 ORDER BY updated_at DESC LIMIT $%d`,
		strings.Join(likes, " OR "), len(args),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntryRows(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.Entry, error) {
	var e domain.Entry
	var sourceURL, categoryID, personalFor, approvedBy, embModel, embError *string
	var embDims *int
	var deletedAt, embUpdatedAt *time.Time

	err := row.Scan(
		&e.ID, &e.Title, &e.Content, &e.Type, &sourceURL, &e.Tags, &e.Models, &categoryID,
		&e.AddedBy, &personalFor, &e.Status, &e.ApprovalStatus, &approvedBy, &deletedAt,
		&e.Version, &e.EmbeddingStatus, &embModel, &embDims, &embError,
		&embUpdatedAt, &e.Metadata, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.SourceURL = derefString(sourceURL)
	e.CategoryID = derefString(categoryID)
	e.PersonalForUserID = derefString(personalFor)
	e.ApprovedBy = derefString(approvedBy)
	e.EmbeddingModel = derefString(embModel)
	e.EmbeddingError = derefString(embError)
	if embDims != nil {
		e.EmbeddingDimensions = *embDims
	}
	e.DeletedAt = deletedAt
	e.EmbeddingUpdatedAt = embUpdatedAt
	return &e, nil
}

func scanEntryRows(rows pgx.Rows) ([]*domain.Entry, error) {
	var results []*domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noesis-ai/noesis/internal/domain"
	"github.com/noesis-ai/noesis/internal/pagination"
	"github.com/noesis-ai/noesis/internal/telemetry"
)

// EntryRepositoryInterface defines the repository interface for entry persistence
type EntryRepositoryInterface interface {
	Create(ctx context.Context, e *domain.Entry) error
	GetByID(ctx context.Context, id string) (*domain.Entry, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Entry, error)
	Update(ctx context.Context, e *domain.Entry) error
	List(ctx context.Context, filter EntryFilter, cursor *pagination.Cursor, limit int) (*EntryPageResult, error)
	ListNonDeleted(ctx context.Context) ([]*domain.Entry, error)
	UpdateEmbeddingState(ctx context.Context, id string, state domain.EmbeddingState) error
	KeywordSearch(ctx context.Context, tokens []string, limit int) ([]*domain.Entry, error)
}

// EntryVersionRepositoryInterface defines the repository interface for version snapshots
type EntryVersionRepositoryInterface interface {
	Create(ctx context.Context, v *domain.EntryVersion) error
	GetByID(ctx context.Context, versionID string) (*domain.EntryVersion, error)
	ListByEntry(ctx context.Context, entryID string) ([]*domain.EntryVersion, error)
}

// EntryScope selects which slice of the corpus a listing covers.
type EntryScope string

const (
	ScopeShared   EntryScope = "shared"
	ScopePersonal EntryScope = "personal"
)

// EntryFilter narrows entry listings. Zero values mean "no constraint".
type EntryFilter struct {
	Scope          EntryScope
	UserID         string // required when Scope is personal
	Status         domain.EntryStatus
	ApprovalStatus domain.ApprovalStatus
	CategoryID     string
	Tag            string
	IncludeDeleted bool
}

type EntryPageResult struct {
	Items      []*domain.Entry
	NextCursor string
	HasMore    bool
}

// EntryIndexer is the seam to the indexing coordinator. Syncing never
// returns an error: indexing failures are recorded on the entry, not
// propagated to the mutation path.
type EntryIndexer interface {
	SyncEntry(ctx context.Context, entry *domain.Entry, contentChanged bool)
}

// DocumentArchiver keeps the original source payload of document-type
// entries in object storage. Satisfied by storage.DocumentStore.
type DocumentArchiver interface {
	PutDocument(ctx context.Context, entryID, contentType string, body io.Reader) error
	GenerateDownloadURL(ctx context.Context, entryID string) (string, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// EntryService handles business logic for knowledge entries: creation,
// versioned mutation, archival, and restore. Every mutation writes the
// entry and its version snapshot in one transaction; index syncing runs
// after commit so backend failures never roll back a content write.
type EntryService struct {
	tx        TxRunner
	entries   EntryRepositoryInterface
	versions  EntryVersionRepositoryInterface
	indexer   EntryIndexer
	documents DocumentArchiver
	uuidGen   UUIDGenerator
}

// NewEntryService creates a new EntryService instance
func NewEntryService(tx TxRunner, entries EntryRepositoryInterface, versions EntryVersionRepositoryInterface, indexer EntryIndexer) *EntryService {
	return &EntryService{
		tx:       tx,
		entries:  entries,
		versions: versions,
		indexer:  indexer,
		uuidGen:  &DefaultUUIDGenerator{},
	}
}

// NewEntryServiceWithUUIDGen creates a new EntryService with custom UUID generator (for testing)
func NewEntryServiceWithUUIDGen(tx TxRunner, entries EntryRepositoryInterface, versions EntryVersionRepositoryInterface, indexer EntryIndexer, uuidGen UUIDGenerator) *EntryService {
	return &EntryService{
		tx:       tx,
		entries:  entries,
		versions: versions,
		indexer:  indexer,
		uuidGen:  uuidGen,
	}
}

// WithDocumentStore attaches object storage for document-type source
// payloads. Without one, document entries carry their extracted text
// only.
func (s *EntryService) WithDocumentStore(store DocumentArchiver) *EntryService {
	s.documents = store
	return s
}

// CreateEntryInput represents the input for creating an entry
type CreateEntryInput struct {
	Title             string
	Content           string
	Type              domain.EntryType
	SourceURL         string
	Tags              []string
	Models            []string
	CategoryID        string
	PersonalForUserID string
	Metadata          map[string]any
}

// UpdateEntryInput represents the input for updating an entry. Nil
// pointer fields and nil slices leave the current value unchanged.
type UpdateEntryInput struct {
	EntryID    string
	Title      *string
	Content    *string
	Type       *domain.EntryType
	SourceURL  *string
	Tags       []string
	Models     []string
	CategoryID *string
}

type ListEntriesInput struct {
	Filter EntryFilter
	Cursor string
	Limit  int
}

type ListEntriesOutput struct {
	Items   []*domain.Entry
	Cursor  string
	HasMore bool
}

// Create creates a new entry at version 1 and triggers indexing.
// Personal entries enter the corpus pending review and inactive; shared
// entries created by an already-authorized actor start approved and
// active.
func (s *EntryService) Create(ctx context.Context, input CreateEntryInput, actorID string) (*domain.Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.Create", telemetry.SpanAttributes{
		UserID:    actorID,
		Operation: "create",
	})
	defer span.End()

	now := time.Now().UTC()
	entry := &domain.Entry{
		ID:                s.uuidGen.NewString(),
		Title:             input.Title,
		Content:           input.Content,
		Type:              input.Type,
		SourceURL:         input.SourceURL,
		Tags:              domain.NormalizeTags(input.Tags),
		Models:            input.Models,
		CategoryID:        input.CategoryID,
		AddedBy:           actorID,
		PersonalForUserID: input.PersonalForUserID,
		Status:            domain.EntryStatusActive,
		ApprovalStatus:    domain.ApprovalStatusApproved,
		ApprovedBy:        actorID,
		Version:           1,
		EmbeddingStatus:   domain.EmbeddingStatusPending,
		Metadata:          input.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if entry.IsPersonal() {
		entry.Status = domain.EntryStatusInactive
		entry.ApprovalStatus = domain.ApprovalStatusPending
		entry.ApprovedBy = ""
	}

	if err := domain.ValidateEntry(entry); err != nil {
		return nil, err
	}

	diff := BuildDiff(&domain.Entry{}, entry)
	version := domain.SnapshotEntry(entry, s.uuidGen.NewString(), actorID, diff, "created entry", now)

	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Entries().Create(ctx, entry); err != nil {
			return err
		}
		return repos.Versions().Create(ctx, version)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.indexer.SyncEntry(ctx, entry, true)
	s.archiveSource(ctx, entry)
	return entry, nil
}

// Update mutates an entry, bumps its version, and records a diff of
// every changed field. Re-embedding happens only when the content
// itself changed; metadata-only edits take the cheap index patch path.
func (s *EntryService) Update(ctx context.Context, input UpdateEntryInput, actorID string) (*domain.Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.Update", telemetry.SpanAttributes{
		EntryID:   input.EntryID,
		UserID:    actorID,
		Operation: "update",
	})
	defer span.End()

	prev, err := s.entries.GetByID(ctx, input.EntryID)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwnership(prev, actorID); err != nil {
		return nil, err
	}
	if prev.DeletedAt != nil || prev.Status == domain.EntryStatusArchived {
		return nil, domain.ErrEntryArchived
	}

	next := *prev
	if input.Title != nil {
		next.Title = *input.Title
	}
	if input.Content != nil {
		next.Content = *input.Content
	}
	if input.Type != nil {
		next.Type = *input.Type
	}
	if input.SourceURL != nil {
		next.SourceURL = *input.SourceURL
	}
	if input.Tags != nil {
		next.Tags = domain.NormalizeTags(input.Tags)
	}
	if input.Models != nil {
		next.Models = input.Models
	}
	if input.CategoryID != nil {
		next.CategoryID = *input.CategoryID
	}

	diff := BuildDiff(prev, &next)
	if diff.Empty() {
		return prev, nil
	}

	contentChanged := prev.Content != next.Content
	now := time.Now().UTC()
	next.Version = prev.Version + 1
	next.UpdatedAt = now
	if contentChanged {
		next.EmbeddingStatus = domain.EmbeddingStatusPending
		next.EmbeddingError = ""
	}

	if err := domain.ValidateEntry(&next); err != nil {
		return nil, err
	}

	version := domain.SnapshotEntry(&next, s.uuidGen.NewString(), actorID, diff, ChangeSummary(diff), now)
	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Entries().Update(ctx, &next); err != nil {
			return err
		}
		return repos.Versions().Create(ctx, version)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.indexer.SyncEntry(ctx, &next, contentChanged)
	if contentChanged {
		s.archiveSource(ctx, &next)
	}
	return &next, nil
}

// BulkSetStatus flips the lifecycle status of several entries at once.
// Entries already in the target status are returned untouched. Archived
// entries cannot be toggled here; they go through Restore first.
func (s *EntryService) BulkSetStatus(ctx context.Context, ids []string, status domain.EntryStatus, actorID string) ([]*domain.Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.BulkSetStatus", telemetry.SpanAttributes{
		UserID:    actorID,
		Operation: "bulk_set_status",
	})
	defer span.End()

	if status != domain.EntryStatusActive && status != domain.EntryStatusInactive {
		return nil, domain.ErrInvalidEntryStatus
	}

	out := make([]*domain.Entry, 0, len(ids))
	changed := make([]*domain.Entry, 0, len(ids))
	now := time.Now().UTC()

	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		for _, id := range ids {
			prev, err := repos.Entries().GetByID(ctx, id)
			if err != nil {
				return err
			}
			if prev.DeletedAt != nil || prev.Status == domain.EntryStatusArchived {
				return domain.ErrEntryArchived
			}
			if prev.Status == status {
				out = append(out, prev)
				continue
			}

			next := *prev
			next.Status = status
			next.Version = prev.Version + 1
			next.UpdatedAt = now

			diff := BuildDiff(prev, &next)
			version := domain.SnapshotEntry(&next, s.uuidGen.NewString(), actorID, diff, ChangeSummary(diff), now)
			if err := repos.Entries().Update(ctx, &next); err != nil {
				return err
			}
			if err := repos.Versions().Create(ctx, version); err != nil {
				return err
			}
			out = append(out, &next)
			changed = append(changed, &next)
		}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	for _, e := range changed {
		s.indexer.SyncEntry(ctx, e, false)
	}
	return out, nil
}

// ArchiveEntries soft-deletes entries: status becomes archived,
// deletedAt is stamped, and the index drops them on the post-commit
// sync. Archiving an already archived entry is a no-op.
func (s *EntryService) ArchiveEntries(ctx context.Context, ids []string, actorID string) error {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.ArchiveEntries", telemetry.SpanAttributes{
		UserID:    actorID,
		Operation: "archive",
	})
	defer span.End()

	now := time.Now().UTC()
	changed := make([]*domain.Entry, 0, len(ids))

	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		for _, id := range ids {
			prev, err := repos.Entries().GetByID(ctx, id)
			if err != nil {
				return err
			}
			if err := s.checkOwnership(prev, actorID); err != nil {
				return err
			}
			if prev.DeletedAt != nil {
				continue
			}

			next := *prev
			next.Status = domain.EntryStatusArchived
			deletedAt := now
			next.DeletedAt = &deletedAt
			next.Version = prev.Version + 1
			next.UpdatedAt = now

			diff := BuildDiff(prev, &next)
			version := domain.SnapshotEntry(&next, s.uuidGen.NewString(), actorID, diff, ChangeSummary(diff), now)
			if err := repos.Entries().Update(ctx, &next); err != nil {
				return err
			}
			if err := repos.Versions().Create(ctx, version); err != nil {
				return err
			}
			changed = append(changed, &next)
		}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return err
	}

	for _, e := range changed {
		s.indexer.SyncEntry(ctx, e, false)
	}
	return nil
}

// Restore brings an archived entry back as inactive so it can be
// reviewed before going live again.
func (s *EntryService) Restore(ctx context.Context, id string, actorID string) (*domain.Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.Restore", telemetry.SpanAttributes{
		EntryID:   id,
		UserID:    actorID,
		Operation: "restore",
	})
	defer span.End()

	prev, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if prev.DeletedAt == nil && prev.Status != domain.EntryStatusArchived {
		return nil, domain.ErrEntryNotArchived
	}

	now := time.Now().UTC()
	next := *prev
	next.Status = domain.EntryStatusInactive
	next.DeletedAt = nil
	next.Version = prev.Version + 1
	next.UpdatedAt = now

	diff := BuildDiff(prev, &next)
	version := domain.SnapshotEntry(&next, s.uuidGen.NewString(), actorID, diff, "restored entry", now)

	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Entries().Update(ctx, &next); err != nil {
			return err
		}
		return repos.Versions().Create(ctx, version)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.indexer.SyncEntry(ctx, &next, false)
	return &next, nil
}

// RestoreVersion applies the field values of an earlier snapshot onto
// the current entry. History is never rewritten: the restore is itself
// a new version with a fresh diff against the pre-restore state.
func (s *EntryService) RestoreVersion(ctx context.Context, entryID, versionID, actorID string) (*domain.Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.RestoreVersion", telemetry.SpanAttributes{
		EntryID:   entryID,
		UserID:    actorID,
		Operation: "restore_version",
	})
	defer span.End()

	now := time.Now().UTC()
	var next domain.Entry
	var contentChanged bool

	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		prev, err := repos.Entries().GetByID(ctx, entryID)
		if err != nil {
			return err
		}
		if err := s.checkOwnership(prev, actorID); err != nil {
			return err
		}

		target, err := repos.Versions().GetByID(ctx, versionID)
		if err != nil {
			return err
		}
		if target.EntryID != entryID {
			return domain.ErrVersionMismatched
		}

		next = *prev
		next.Title = target.Title
		next.Content = target.Content
		next.Type = target.Type
		next.SourceURL = target.SourceURL
		next.Tags = append([]string(nil), target.Tags...)
		next.Models = append([]string(nil), target.Models...)
		next.CategoryID = target.CategoryID
		next.Status = target.Status
		next.ApprovalStatus = target.ApprovalStatus
		next.ApprovedBy = target.ApprovedBy
		next.Version = prev.Version + 1
		next.UpdatedAt = now

		contentChanged = prev.Content != next.Content
		if contentChanged {
			next.EmbeddingStatus = domain.EmbeddingStatusPending
			next.EmbeddingError = ""
		}

		diff := BuildDiff(prev, &next)
		summary := fmt.Sprintf("restored version %d", target.Version)
		version := domain.SnapshotEntry(&next, s.uuidGen.NewString(), actorID, diff, summary, now)

		if err := repos.Entries().Update(ctx, &next); err != nil {
			return err
		}
		return repos.Versions().Create(ctx, version)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.indexer.SyncEntry(ctx, &next, contentChanged)
	if contentChanged {
		s.archiveSource(ctx, &next)
	}
	return &next, nil
}

// DocumentDownloadURL returns a presigned URL for the stored source
// payload of a document entry.
func (s *EntryService) DocumentDownloadURL(ctx context.Context, entryID string) (string, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return "", err
	}
	if entry.Type != domain.EntryTypeDocument {
		return "", domain.ErrNoSourceDocument
	}
	if s.documents == nil {
		return "", domain.ErrDocumentStorageOff
	}
	return s.documents.GenerateDownloadURL(ctx, entryID)
}

// GetByID retrieves an entry by ID, including archived ones.
func (s *EntryService) GetByID(ctx context.Context, id string) (*domain.Entry, error) {
	return s.entries.GetByID(ctx, id)
}

// List retrieves entries matching a filter with cursor pagination.
func (s *EntryService) List(ctx context.Context, input ListEntriesInput) (*ListEntriesOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.List", telemetry.SpanAttributes{
		Operation: "list",
	})
	defer span.End()

	if input.Filter.Scope == ScopePersonal && input.Filter.UserID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "personal scope requires a user id")
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid pagination cursor")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	result, err := s.entries.List(ctx, input.Filter, cursor, limit)
	if err != nil {
		return nil, err
	}
	return &ListEntriesOutput{
		Items:   result.Items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

// ListVersions returns the full edit history of an entry, newest first.
func (s *EntryService) ListVersions(ctx context.Context, entryID string) ([]*domain.EntryVersion, error) {
	if _, err := s.entries.GetByID(ctx, entryID); err != nil {
		return nil, err
	}
	return s.versions.ListByEntry(ctx, entryID)
}

// archiveSource snapshots a document entry's payload into object
// storage after the mutation committed. Best effort: a storage failure
// never surfaces to the mutation caller.
func (s *EntryService) archiveSource(ctx context.Context, e *domain.Entry) {
	if s.documents == nil || e.Type != domain.EntryTypeDocument {
		return
	}
	if err := s.documents.PutDocument(ctx, e.ID, "text/plain; charset=utf-8", strings.NewReader(e.Content)); err != nil {
		log.Printf("storage: could not archive source for entry %s: %v", e.ID, err)
	}
}

// checkOwnership rejects mutations of a personal entry by anyone other
// than its owner or its original creator.
func (s *EntryService) checkOwnership(e *domain.Entry, actorID string) error {
	if !e.IsPersonal() {
		return nil
	}
	if actorID == e.PersonalForUserID || actorID == e.AddedBy {
		return nil
	}
	return domain.ErrNotEntryOwner
}

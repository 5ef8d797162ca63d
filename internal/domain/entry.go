package domain

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// EntryType represents the kind of source a knowledge entry came from
type EntryType string

const (
	EntryTypeText     EntryType = "text"
	EntryTypeDocument EntryType = "document"
	EntryTypeURL      EntryType = "url"
)

// EntryStatus represents the lifecycle status of an entry
type EntryStatus string

const (
	EntryStatusActive   EntryStatus = "active"
	EntryStatusInactive EntryStatus = "inactive"
	EntryStatusArchived EntryStatus = "archived"
)

// ApprovalStatus represents the review state of an entry
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// EmbeddingStatus represents the indexing state of an entry
type EmbeddingStatus string

const (
	EmbeddingStatusPending EmbeddingStatus = "pending"
	EmbeddingStatusReady   EmbeddingStatus = "ready"
	EmbeddingStatusFailed  EmbeddingStatus = "failed"
)

// Eligibility is the derived indexing/retrieval condition. An entry is
// eligible only when it is active, approved, and not soft-deleted; the
// other values name the first failing flag.
type Eligibility string

const (
	EligibilityEligible   Eligibility = "eligible"
	EligibilityDeleted    Eligibility = "deleted"
	EligibilityInactive   Eligibility = "inactive"
	EligibilityUnapproved Eligibility = "unapproved"
)

const (
	MaxTitleChars   = 300
	MaxContentChars = 100_000
	MaxTagChars     = 48
)

// EmbeddingState is the indexing bookkeeping recorded on an entry after
// an indexing attempt.
type EmbeddingState struct {
	Status     EmbeddingStatus
	Model      string
	Dimensions int
	Error      string
	UpdatedAt  time.Time
}

// ModelRef identifies the requesting chat model by its stable id and key.
// Entries may allow-list by either.
type ModelRef struct {
	ID  string
	Key string
}

// Entry is one unit of curated knowledge text.
type Entry struct {
	ID        string
	Title     string
	Content   string
	Type      EntryType
	SourceURL string

	Tags       []string
	Models     []string // empty = visible to every model
	CategoryID string

	AddedBy           string
	PersonalForUserID string // non-empty = user-personal entry

	Status         EntryStatus
	ApprovalStatus ApprovalStatus
	ApprovedBy     string
	DeletedAt      *time.Time

	Version int

	EmbeddingStatus     EmbeddingStatus
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingError      string
	EmbeddingUpdatedAt  *time.Time

	Metadata map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Eligibility derives the single indexing/retrieval condition from the
// three underlying lifecycle flags.
func (e *Entry) Eligibility() Eligibility {
	switch {
	case e.DeletedAt != nil:
		return EligibilityDeleted
	case e.Status != EntryStatusActive:
		return EligibilityInactive
	case e.ApprovalStatus != ApprovalStatusApproved:
		return EligibilityUnapproved
	default:
		return EligibilityEligible
	}
}

// IsEligible reports whether the entry may be indexed and retrieved.
func (e *Entry) IsEligible() bool {
	return e.Eligibility() == EligibilityEligible
}

// MatchesModel reports whether the entry is visible to the given model.
// An empty allow-list matches every model; otherwise the list must contain
// the model's id or its stable key.
func (e *Entry) MatchesModel(ref ModelRef) bool {
	if len(e.Models) == 0 {
		return true
	}
	for _, m := range e.Models {
		if m != "" && (m == ref.ID || m == ref.Key) {
			return true
		}
	}
	return false
}

// IsPersonal reports whether the entry belongs to a single user rather
// than the shared corpus.
func (e *Entry) IsPersonal() bool {
	return e.PersonalForUserID != ""
}

// NormalizeTags lowercases, trims, and deduplicates tags, preserving a
// stable sorted order. Tags longer than MaxTagChars are rejected by
// ValidateEntry, not silently fixed here.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ValidateEntry validates an Entry instance
func ValidateEntry(e *Entry) error {
	if e == nil {
		return NewDomainError(ErrCodeValidation, "entry cannot be nil")
	}
	if e.ID == "" {
		return NewDomainError(ErrCodeValidation, "entry ID is required")
	}
	if strings.TrimSpace(e.Title) == "" {
		return NewDomainError(ErrCodeValidation, "entry title is required")
	}
	if len([]rune(e.Title)) > MaxTitleChars {
		return NewDomainError(ErrCodeValidation, fmt.Sprintf("entry title exceeds %d characters", MaxTitleChars))
	}
	if strings.TrimSpace(e.Content) == "" {
		return NewDomainError(ErrCodeValidation, "entry content is required")
	}
	if len([]rune(e.Content)) > MaxContentChars {
		return NewDomainError(ErrCodeValidation, fmt.Sprintf("entry content exceeds %d characters", MaxContentChars))
	}
	if !isValidEntryType(e.Type) {
		return NewDomainError(ErrCodeValidation, fmt.Sprintf("invalid entry type: %s", e.Type))
	}
	if !isValidEntryStatus(e.Status) {
		return NewDomainError(ErrCodeValidation, fmt.Sprintf("invalid entry status: %s", e.Status))
	}
	if !isValidApprovalStatus(e.ApprovalStatus) {
		return NewDomainError(ErrCodeValidation, fmt.Sprintf("invalid approval status: %s", e.ApprovalStatus))
	}
	if e.Version < 1 {
		return NewDomainError(ErrCodeValidation, "entry version must be at least 1")
	}
	if e.SourceURL != "" {
		if err := validateSourceURL(e.SourceURL); err != nil {
			return err
		}
	}
	for _, t := range e.Tags {
		if len([]rune(t)) > MaxTagChars {
			return NewDomainError(ErrCodeValidation, fmt.Sprintf("tag exceeds %d characters: %s", MaxTagChars, t))
		}
	}
	return nil
}

func validateSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return NewDomainError(ErrCodeValidation, fmt.Sprintf("invalid source URL: %s", raw))
	}
	return nil
}

func isValidEntryType(t EntryType) bool {
	switch t {
	case EntryTypeText, EntryTypeDocument, EntryTypeURL:
		return true
	}
	return false
}

func isValidEntryStatus(s EntryStatus) bool {
	switch s {
	case EntryStatusActive, EntryStatusInactive, EntryStatusArchived:
		return true
	}
	return false
}

func isValidApprovalStatus(s ApprovalStatus) bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected:
		return true
	}
	return false
}

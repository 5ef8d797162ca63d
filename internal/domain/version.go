package domain

import "time"

// FieldChange records the before/after values of a single entry field.
type FieldChange struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// EntryDiff describes everything that changed between two versions of an
// entry: a per-field change map, plus a serialized edit script for the
// content text when it changed.
type EntryDiff struct {
	Fields       map[string]FieldChange `json:"fields"`
	ContentDelta string                 `json:"content_delta,omitempty"`
}

// Empty reports whether the diff records no changes at all.
func (d *EntryDiff) Empty() bool {
	return d == nil || (len(d.Fields) == 0 && d.ContentDelta == "")
}

// EntryVersion is an immutable snapshot of an entry at one version.
// Rows are append-only; they are never updated or deleted.
type EntryVersion struct {
	ID      string
	EntryID string
	Version int

	Title             string
	Content           string
	Type              EntryType
	SourceURL         string
	Tags              []string
	Models            []string
	CategoryID        string
	PersonalForUserID string
	Status            EntryStatus
	ApprovalStatus    ApprovalStatus
	ApprovedBy        string

	Diff          EntryDiff
	ChangeSummary string
	EditorID      string
	CreatedAt     time.Time
}

// SnapshotEntry captures the versioned fields of an entry into a version row.
func SnapshotEntry(e *Entry, versionID, editorID string, diff EntryDiff, summary string, now time.Time) *EntryVersion {
	return &EntryVersion{
		ID:                versionID,
		EntryID:           e.ID,
		Version:           e.Version,
		Title:             e.Title,
		Content:           e.Content,
		Type:              e.Type,
		SourceURL:         e.SourceURL,
		Tags:              append([]string(nil), e.Tags...),
		Models:            append([]string(nil), e.Models...),
		CategoryID:        e.CategoryID,
		PersonalForUserID: e.PersonalForUserID,
		Status:            e.Status,
		ApprovalStatus:    e.ApprovalStatus,
		ApprovedBy:        e.ApprovedBy,
		Diff:              diff,
		ChangeSummary:     summary,
		EditorID:          editorID,
		CreatedAt:         now,
	}
}

package service

import (
	"fmt"
	"strings"

	"github.com/noesis-ai/noesis/internal/domain"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// BuildDiff compares two states of an entry field-by-field and returns a
// diff with {before, after} pairs for every changed field. When the
// content changed, the diff also carries a serialized edit script
// (diff-match-patch delta format) that can be inverted or inspected.
func BuildDiff(prev, next *domain.Entry) domain.EntryDiff {
	diff := domain.EntryDiff{Fields: map[string]domain.FieldChange{}}
	if prev == nil || next == nil {
		return diff
	}

	record := func(field string, before, after any) {
		diff.Fields[field] = domain.FieldChange{Before: before, After: after}
	}

	if prev.Title != next.Title {
		record("title", prev.Title, next.Title)
	}
	if prev.Content != next.Content {
		record("content", prev.Content, next.Content)
		diff.ContentDelta = contentDelta(prev.Content, next.Content)
	}
	if prev.Type != next.Type {
		record("type", string(prev.Type), string(next.Type))
	}
	if prev.Status != next.Status {
		record("status", string(prev.Status), string(next.Status))
	}
	if prev.ApprovalStatus != next.ApprovalStatus {
		record("approvalStatus", string(prev.ApprovalStatus), string(next.ApprovalStatus))
	}
	if !stringSlicesEqual(prev.Tags, next.Tags) {
		record("tags", prev.Tags, next.Tags)
	}
	if !stringSlicesEqual(prev.Models, next.Models) {
		record("models", prev.Models, next.Models)
	}
	if prev.SourceURL != next.SourceURL {
		record("sourceUrl", prev.SourceURL, next.SourceURL)
	}
	if prev.CategoryID != next.CategoryID {
		record("categoryId", prev.CategoryID, next.CategoryID)
	}
	if prev.PersonalForUserID != next.PersonalForUserID {
		record("personalForUserId", prev.PersonalForUserID, next.PersonalForUserID)
	}
	if prev.ApprovedBy != next.ApprovedBy {
		record("approvedBy", prev.ApprovedBy, next.ApprovedBy)
	}

	return diff
}

// ChangeSummary renders a short human-readable description of a diff.
func ChangeSummary(diff domain.EntryDiff) string {
	if diff.Empty() {
		return "no changes"
	}

	ordered := []string{
		"title", "content", "type", "status", "approvalStatus",
		"tags", "models", "sourceUrl", "categoryId", "personalForUserId", "approvedBy",
	}
	changed := make([]string, 0, len(diff.Fields))
	for _, f := range ordered {
		if _, ok := diff.Fields[f]; ok {
			changed = append(changed, f)
		}
	}
	return fmt.Sprintf("updated %s", strings.Join(changed, ", "))
}

// contentDelta produces the diff-match-patch delta encoding of the
// change from old to new content.
func contentDelta(old, new string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(old, new, false)
	return dmp.DiffToDelta(diffs)
}

// ApplyContentDelta reconstructs the new content from the old content
// and a stored delta. Used to inspect or replay recorded edits.
func ApplyContentDelta(old, delta string) (string, error) {
	dmp := diffmatchpatch.New()
	diffs, err := dmp.DiffFromDelta(old, delta)
	if err != nil {
		return "", err
	}
	return dmp.DiffText2(diffs), nil
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noesis-ai/noesis/internal/domain"
	"github.com/noesis-ai/noesis/internal/telemetry"
)

// SetApproval moves an entry through the review workflow. Approval
// implies status=active; pending and rejected imply status=inactive.
// approvedBy records the reviewing actor on approve and reject, and is
// cleared when an entry goes back to pending. Re-review is allowed:
// there is no terminal state. Every transition bumps the version and
// re-syncs the index because eligibility may have changed.
func (s *EntryService) SetApproval(ctx context.Context, entryID string, target domain.ApprovalStatus, actorID string) (*domain.Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.SetApproval", telemetry.SpanAttributes{
		EntryID:   entryID,
		UserID:    actorID,
		Operation: "set_approval",
	})
	defer span.End()

	switch target {
	case domain.ApprovalStatusPending, domain.ApprovalStatusApproved, domain.ApprovalStatusRejected:
	default:
		return nil, domain.ErrInvalidApprovalStatus
	}

	prev, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if prev.DeletedAt != nil || prev.Status == domain.EntryStatusArchived {
		return nil, domain.ErrEntryArchived
	}
	if prev.ApprovalStatus == target {
		return prev, nil
	}

	now := time.Now().UTC()
	next := *prev
	next.ApprovalStatus = target
	switch target {
	case domain.ApprovalStatusApproved:
		next.Status = domain.EntryStatusActive
		next.ApprovedBy = actorID
	case domain.ApprovalStatusRejected:
		next.Status = domain.EntryStatusInactive
		next.ApprovedBy = actorID
	case domain.ApprovalStatusPending:
		next.Status = domain.EntryStatusInactive
		next.ApprovedBy = ""
	}
	next.Version = prev.Version + 1
	next.UpdatedAt = now

	diff := BuildDiff(prev, &next)
	summary := fmt.Sprintf("approval set to %s", target)
	version := domain.SnapshotEntry(&next, s.uuidGen.NewString(), actorID, diff, summary, now)

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

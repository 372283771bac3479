package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cofounder/internal/domain"
	"cofounder/internal/events"
	"cofounder/internal/repo"
)

var ErrInvalidTransition = errors.New("invalid action status transition")

// ensureActionTransition encodes the action state machine. Retrying an
// approval is allowed so bulk operations stay idempotent; rejected and
// executed are terminal except for the explicit revert path back to
// pending.
func ensureActionTransition(from, to domain.ActionStatus) error {
	switch to {
	case domain.StatusApproved:
		if from == domain.StatusPending || from == domain.StatusApproved {
			return nil
		}
	case domain.StatusRejected:
		if from == domain.StatusPending || from == domain.StatusRejected {
			return nil
		}
	case domain.StatusExecuted:
		if from == domain.StatusApproved {
			return nil
		}
	case domain.StatusPending:
		if from == domain.StatusApproved || from == domain.StatusRejected {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func (e Engine) transition(ctx context.Context, id string, from []domain.ActionStatus, to domain.ActionStatus, evtType, actorID string) (domain.CoFounderAction, error) {
	a, err := e.Repo.GetAction(ctx, id)
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	if err := ensureActionTransition(a.Status, to); err != nil {
		return domain.CoFounderAction{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	ok, err := e.Repo.TransitionStatus(ctx, tx, id, from, to, now)
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	if !ok {
		return domain.CoFounderAction{}, fmt.Errorf("%w: action %s moved concurrently", ErrInvalidTransition, id)
	}
	err = e.Events.Append(ctx, tx, evtType, a.BusinessID, "action", a.ID, actorID, events.EventPayload{
		"from": string(a.Status),
		"to":   string(to),
	})
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CoFounderAction{}, err
	}
	a.Status = to
	a.UpdatedAt = now
	return a, nil
}

// Approve moves a pending action to approved. Approving an already
// approved action refreshes its updated_at.
func (e Engine) Approve(ctx context.Context, id, actorID string) (domain.CoFounderAction, error) {
	return e.transition(ctx, id, []domain.ActionStatus{domain.StatusPending, domain.StatusApproved}, domain.StatusApproved, "action.approved", actorID)
}

// Reject moves a pending action to rejected.
func (e Engine) Reject(ctx context.Context, id, actorID string) (domain.CoFounderAction, error) {
	return e.transition(ctx, id, []domain.ActionStatus{domain.StatusPending, domain.StatusRejected}, domain.StatusRejected, "action.rejected", actorID)
}

// Revert is the administrative escape hatch: an approved or rejected
// action goes back to pending for re-review.
func (e Engine) Revert(ctx context.Context, id, actorID string) (domain.CoFounderAction, error) {
	return e.transition(ctx, id, []domain.ActionStatus{domain.StatusApproved, domain.StatusRejected}, domain.StatusPending, "action.reverted", actorID)
}

// SetStatus applies one explicit transition, optionally attaching an
// execution result when moving to executed.
func (e Engine) SetStatus(ctx context.Context, id string, to domain.ActionStatus, result *domain.ExecutionResult, actorID string) (domain.CoFounderAction, error) {
	if to == domain.StatusExecuted && result != nil {
		a, err := e.Repo.GetAction(ctx, id)
		if err != nil {
			return domain.CoFounderAction{}, err
		}
		if result.Success {
			return e.recordSuccessfulExecution(ctx, a, *result, actorID)
		}
		return e.recordFailedExecution(ctx, a, *result, actorID)
	}
	switch to {
	case domain.StatusApproved:
		return e.Approve(ctx, id, actorID)
	case domain.StatusRejected:
		return e.Reject(ctx, id, actorID)
	case domain.StatusPending:
		return e.Revert(ctx, id, actorID)
	case domain.StatusExecuted:
		return domain.CoFounderAction{}, errors.New("executed requires an execution result")
	default:
		return domain.CoFounderAction{}, fmt.Errorf("unknown status %q", to)
	}
}

func (e Engine) bulkTransition(ctx context.Context, ids []string, from []domain.ActionStatus, to domain.ActionStatus, evtType, actorID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	n, err := e.Repo.BulkTransitionStatus(ctx, tx, ids, from, to, now)
	if err != nil {
		return 0, err
	}
	err = e.Events.Append(ctx, tx, evtType, "", "action", "", actorID, events.EventPayload{
		"requested": len(ids),
		"updated":   n,
	})
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// BulkApprove approves a batch in one statement with one shared
// timestamp. Ids already approved still count as updated.
func (e Engine) BulkApprove(ctx context.Context, ids []string, actorID string) (int64, error) {
	return e.bulkTransition(ctx, ids, []domain.ActionStatus{domain.StatusPending, domain.StatusApproved}, domain.StatusApproved, "action.bulk_approved", actorID)
}

// BulkReject rejects a batch in one statement.
func (e Engine) BulkReject(ctx context.Context, ids []string, actorID string) (int64, error) {
	return e.bulkTransition(ctx, ids, []domain.ActionStatus{domain.StatusPending, domain.StatusRejected}, domain.StatusRejected, "action.bulk_rejected", actorID)
}

// ListPending lists actions for review, defaulting to status pending,
// ordered by priority.
func (e Engine) ListPending(ctx context.Context, f repo.ActionFilters) ([]domain.CoFounderAction, error) {
	if f.Status == "" {
		f.Status = domain.StatusPending
	}
	return e.Repo.ListActions(ctx, f)
}

func (e Engine) GetAction(ctx context.Context, id string) (domain.CoFounderAction, error) {
	return e.Repo.GetAction(ctx, id)
}

// ActionStats counts actions by status and by type.
func (e Engine) ActionStats(ctx context.Context, businessID string) (repo.ActionStats, error) {
	return e.Repo.CountActions(ctx, businessID)
}

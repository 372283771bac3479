package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cofounder/internal/domain"
	"cofounder/internal/events"
)

const defaultExecuteAllLimit = 50

var errNoChannel = errors.New("no send channel configured")

// Execute dispatches one approved action to its side-effecting channel.
// A channel failure is recorded as a failed ExecutionResult on the still
// approved action so a later retry can attempt again.
func (e Engine) Execute(ctx context.Context, id, actorID string) (domain.CoFounderAction, error) {
	a, err := e.Repo.GetAction(ctx, id)
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	if a.Status != domain.StatusApproved {
		return domain.CoFounderAction{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, domain.StatusExecuted)
	}

	externalID, dispatchErr := e.dispatch(ctx, a)
	now := e.now().UTC().Format(time.RFC3339)
	result := domain.ExecutionResult{
		Success:    dispatchErr == nil,
		ExternalID: externalID,
		ExecutedAt: now,
	}
	if dispatchErr != nil {
		result.Message = dispatchErr.Error()
		return e.recordFailedExecution(ctx, a, result, actorID)
	}
	result.Message = fmt.Sprintf("%s delivered", a.Type)
	return e.recordSuccessfulExecution(ctx, a, result, actorID)
}

// dispatch routes the action to the channel call matching its type.
func (e Engine) dispatch(ctx context.Context, a domain.CoFounderAction) (string, error) {
	if e.Channel == nil {
		return "", errNoChannel
	}
	d := a.Details
	switch a.Type {
	case domain.ActionPaymentReminder:
		return e.Channel.Send(ctx, d.PaymentReminder.Contact, d.PaymentReminder.SuggestedMessage)
	case domain.ActionLeadResponse:
		return e.Channel.Send(ctx, d.LeadResponse.Contact, d.LeadResponse.SuggestedMessage)
	case domain.ActionReviewReply:
		return e.Channel.ReplyReview(ctx, d.ReviewReply.ReviewID, d.ReviewReply.SuggestedReply)
	case domain.ActionAlert:
		return e.Channel.Ack(ctx, d.Alert.Kind, d.Alert.Message)
	case domain.ActionScheduleOptimization:
		return e.Channel.Ack(ctx, string(a.Type), d.ScheduleOptimization.Suggestion)
	default:
		return "", fmt.Errorf("unknown action type %q", a.Type)
	}
}

// recordSuccessfulExecution finishes the approved -> executed transition.
func (e Engine) recordSuccessfulExecution(ctx context.Context, a domain.CoFounderAction, result domain.ExecutionResult, actorID string) (domain.CoFounderAction, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	ok, err := e.Repo.MarkExecuted(ctx, tx, a.ID, result, now)
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	if !ok {
		return domain.CoFounderAction{}, fmt.Errorf("%w: action %s is no longer approved", ErrInvalidTransition, a.ID)
	}
	err = e.Events.Append(ctx, tx, "action.executed", a.BusinessID, "action", a.ID, actorID, events.EventPayload{
		"success":     true,
		"external_id": result.ExternalID,
	})
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CoFounderAction{}, err
	}
	e.logExecutionAttempt(ctx, a, result, now)
	return e.Repo.GetAction(ctx, a.ID)
}

// recordFailedExecution writes a failed attempt onto the still-approved
// action. This is the state machine's only approved -> approved edge.
func (e Engine) recordFailedExecution(ctx context.Context, a domain.CoFounderAction, result domain.ExecutionResult, actorID string) (domain.CoFounderAction, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	ok, err := e.Repo.RecordFailedExecution(ctx, tx, a.ID, result, now)
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	if !ok {
		return domain.CoFounderAction{}, fmt.Errorf("%w: action %s is no longer approved", ErrInvalidTransition, a.ID)
	}
	err = e.Events.Append(ctx, tx, "action.execution_failed", a.BusinessID, "action", a.ID, actorID, events.EventPayload{
		"success":     false,
		"external_id": result.ExternalID,
	})
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CoFounderAction{}, err
	}
	e.logExecutionAttempt(ctx, a, result, now)
	return e.Repo.GetAction(ctx, a.ID)
}

// logExecutionAttempt is audit trail only; a logging failure never undoes
// the execution.
func (e Engine) logExecutionAttempt(ctx context.Context, a domain.CoFounderAction, result domain.ExecutionResult, now string) {
	_ = e.Repo.InsertExecutionLog(ctx, domain.ExecutionLog{
		ID:         uuid.New().String(),
		BusinessID: a.BusinessID,
		ActionID:   a.ID,
		ActionType: a.Type,
		Success:    result.Success,
		Message:    result.Message,
		ExternalID: result.ExternalID,
		CreatedAt:  now,
	})
}

// ExecutionOutcome is one entry of a batch execution result set.
type ExecutionOutcome struct {
	ActionID string `json:"action_id"`
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
}

// ExecuteMany runs a list of approved actions, one at a time, collecting
// per-action outcomes. One failure never aborts the batch.
func (e Engine) ExecuteMany(ctx context.Context, ids []string, actorID string) []ExecutionOutcome {
	outcomes := make([]ExecutionOutcome, 0, len(ids))
	for _, id := range ids {
		a, err := e.Execute(ctx, id, actorID)
		if err != nil {
			outcomes = append(outcomes, ExecutionOutcome{ActionID: id, Success: false, Message: err.Error()})
			continue
		}
		o := ExecutionOutcome{ActionID: id, Success: a.Status == domain.StatusExecuted}
		if a.ExecutionResult != nil {
			o.Message = a.ExecutionResult.Message
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// ExecuteAllApproved executes every approved action for a business up to
// the configured safety limit, oldest first.
func (e Engine) ExecuteAllApproved(ctx context.Context, businessID, actorID string) ([]ExecutionOutcome, error) {
	limit := defaultExecuteAllLimit
	if e.Config != nil && e.Config.Automation.ExecuteAllLimit > 0 {
		limit = e.Config.Automation.ExecuteAllLimit
	}
	ids, err := e.Repo.ListApprovedIDs(ctx, businessID, limit)
	if err != nil {
		return nil, err
	}
	return e.ExecuteMany(ctx, ids, actorID), nil
}

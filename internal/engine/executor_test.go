package engine_test

import (
	"errors"
	"testing"

	"cofounder/internal/domain"
	"cofounder/internal/engine"
)

func approvedAction(t *testing.T, env testEnv) domain.CoFounderAction {
	t.Helper()
	a := seedPendingAction(t, env)
	a, err := env.Engine.Approve(env.Ctx, a.ID, "owner")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return a
}

func TestExecuteSendsAndMarksExecuted(t *testing.T) {
	env := newTestEnv(t)
	a := approvedAction(t, env)

	got, err := env.Engine.Execute(env.Ctx, a.ID, "owner")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.Status != domain.StatusExecuted {
		t.Fatalf("status = %s, want executed", got.Status)
	}
	if got.ExecutionResult == nil || !got.ExecutionResult.Success {
		t.Fatalf("execution result = %+v", got.ExecutionResult)
	}
	if got.ExecutionResult.ExternalID != "mem-1" {
		t.Fatalf("external id = %q", got.ExecutionResult.ExternalID)
	}
	if got.ExecutedAt == nil {
		t.Fatal("executed_at not stamped")
	}
	if len(env.Channel.Deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(env.Channel.Deliveries))
	}
	if env.Channel.Deliveries[0].To != a.Details.PaymentReminder.Contact {
		t.Fatalf("delivered to %q", env.Channel.Deliveries[0].To)
	}
}

func TestFailedExecutionKeepsApprovedForRetry(t *testing.T) {
	env := newTestEnv(t)
	a := approvedAction(t, env)
	env.Channel.FailWith = errors.New("gateway down")

	got, err := env.Engine.Execute(env.Ctx, a.ID, "owner")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.Status != domain.StatusApproved {
		t.Fatalf("status = %s, want approved after failure", got.Status)
	}
	if got.ExecutionResult == nil || got.ExecutionResult.Success {
		t.Fatalf("execution result = %+v, want failed", got.ExecutionResult)
	}
	if got.ExecutedAt != nil {
		t.Fatalf("executed_at stamped on failure: %v", *got.ExecutedAt)
	}

	// retry after the channel recovers
	env.Channel.FailWith = nil
	got, err = env.Engine.Execute(env.Ctx, a.ID, "owner")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Status != domain.StatusExecuted || !got.ExecutionResult.Success {
		t.Fatalf("retry status = %s result = %+v", got.Status, got.ExecutionResult)
	}
}

func TestExecuteReviewReplyUsesReviewChannel(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.GenerateReviewReply(env.Ctx, engine.ReviewOptions{
		BusinessID: "biz-1", ReviewID: "rev-9", Rating: 1, ReviewText: "terrible", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := env.Engine.Approve(env.Ctx, a.ID, "owner"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.Engine.Execute(env.Ctx, a.ID, "owner"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(env.Channel.Deliveries) != 1 || env.Channel.Deliveries[0].Kind != "review_reply" {
		t.Fatalf("deliveries = %+v", env.Channel.Deliveries)
	}
	if env.Channel.Deliveries[0].ReviewID != "rev-9" {
		t.Fatalf("review id = %q", env.Channel.Deliveries[0].ReviewID)
	}
}

func TestExecutionLogged(t *testing.T) {
	env := newTestEnv(t)
	a := approvedAction(t, env)

	if _, err := env.Engine.Execute(env.Ctx, a.ID, "owner"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	logs, err := env.Engine.Repo.ListExecutionLog(env.Ctx, "biz-1", a.ID, 10)
	if err != nil {
		t.Fatalf("list log: %v", err)
	}
	if len(logs) != 1 || !logs[0].Success || logs[0].ActionType != domain.ActionPaymentReminder {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestExecuteManyCollectsOutcomes(t *testing.T) {
	env := newTestEnv(t)
	ok := approvedAction(t, env)
	pending := seedPendingAction(t, env)

	outcomes := env.Engine.ExecuteMany(env.Ctx, []string{ok.ID, pending.ID, "missing"}, "owner")
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	if !outcomes[0].Success {
		t.Fatalf("first outcome failed: %+v", outcomes[0])
	}
	if outcomes[1].Success || outcomes[2].Success {
		t.Fatalf("pending/missing should fail: %+v", outcomes[1:])
	}
}

func TestExecuteAllApprovedHonorsLimit(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		approvedAction(t, env)
	}
	env.Engine.Config.Automation.ExecuteAllLimit = 2

	outcomes, err := env.Engine.ExecuteAllApproved(env.Ctx, "biz-1", "owner")
	if err != nil {
		t.Fatalf("execute all: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want limit 2", len(outcomes))
	}
	for _, o := range outcomes {
		if !o.Success {
			t.Fatalf("outcome failed: %+v", o)
		}
	}
}

func TestSetStatusRoutesFailedExecution(t *testing.T) {
	env := newTestEnv(t)
	a := approvedAction(t, env)

	failed := domain.ExecutionResult{Success: false, Message: "gateway down"}
	got, err := env.Engine.SetStatus(env.Ctx, a.ID, domain.StatusExecuted, &failed, "owner")
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if got.Status != domain.StatusApproved {
		t.Fatalf("status = %s, want approved after failed result", got.Status)
	}
	if got.ExecutedAt != nil {
		t.Fatalf("executed_at stamped on failure: %v", *got.ExecutedAt)
	}

	ok := domain.ExecutionResult{Success: true, Message: "sent manually", ExternalID: "ext-1"}
	got, err = env.Engine.SetStatus(env.Ctx, a.ID, domain.StatusExecuted, &ok, "owner")
	if err != nil {
		t.Fatalf("set status success: %v", err)
	}
	if got.Status != domain.StatusExecuted || got.ExecutionResult == nil || !got.ExecutionResult.Success {
		t.Fatalf("status = %s result = %+v", got.Status, got.ExecutionResult)
	}
}

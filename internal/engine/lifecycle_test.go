package engine_test

import (
	"errors"
	"testing"
	"time"

	"cofounder/internal/domain"
	"cofounder/internal/engine"
	"cofounder/internal/repo"
)

func seedPendingAction(t *testing.T, env testEnv) domain.CoFounderAction {
	t.Helper()
	inv := seedInvoice(t, env, 10_000, 20)
	a, err := env.Engine.GeneratePaymentReminder(env.Ctx, "biz-1", inv.ID, "tester")
	if err != nil {
		t.Fatalf("generate action: %v", err)
	}
	return a
}

func TestApproveThenReject(t *testing.T) {
	env := newTestEnv(t)
	a := seedPendingAction(t, env)

	approved, err := env.Engine.Approve(env.Ctx, a.ID, "owner")
	if err != nil || approved.Status != domain.StatusApproved {
		t.Fatalf("approve: %v status=%s", err, approved.Status)
	}

	// approved actions cannot be rejected
	if _, err := env.Engine.Reject(env.Ctx, a.ID, "owner"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("reject approved: err = %v, want ErrInvalidTransition", err)
	}
}

func TestRejectIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	a := seedPendingAction(t, env)

	if _, err := env.Engine.Reject(env.Ctx, a.ID, "owner"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := env.Engine.Approve(env.Ctx, a.ID, "owner"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("approve rejected: err = %v, want ErrInvalidTransition", err)
	}
	if _, err := env.Engine.Execute(env.Ctx, a.ID, "owner"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("execute rejected: err = %v, want ErrInvalidTransition", err)
	}
}

func TestExecutePendingFails(t *testing.T) {
	env := newTestEnv(t)
	a := seedPendingAction(t, env)

	if _, err := env.Engine.Execute(env.Ctx, a.ID, "owner"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("execute pending: err = %v, want ErrInvalidTransition", err)
	}
}

func TestRevertReopensAction(t *testing.T) {
	env := newTestEnv(t)
	a := seedPendingAction(t, env)

	if _, err := env.Engine.Approve(env.Ctx, a.ID, "owner"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	reverted, err := env.Engine.Revert(env.Ctx, a.ID, "owner")
	if err != nil || reverted.Status != domain.StatusPending {
		t.Fatalf("revert approved: %v status=%s", err, reverted.Status)
	}

	if _, err := env.Engine.Reject(env.Ctx, a.ID, "owner"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	reverted, err = env.Engine.Revert(env.Ctx, a.ID, "owner")
	if err != nil || reverted.Status != domain.StatusPending {
		t.Fatalf("revert rejected: %v status=%s", err, reverted.Status)
	}
}

func TestExecutedIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	a := seedPendingAction(t, env)

	if _, err := env.Engine.Approve(env.Ctx, a.ID, "owner"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	executed, err := env.Engine.Execute(env.Ctx, a.ID, "owner")
	if err != nil || executed.Status != domain.StatusExecuted {
		t.Fatalf("execute: %v status=%s", err, executed.Status)
	}
	if _, err := env.Engine.Revert(env.Ctx, a.ID, "owner"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("revert executed: err = %v, want ErrInvalidTransition", err)
	}
	if _, err := env.Engine.Execute(env.Ctx, a.ID, "owner"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("re-execute: err = %v, want ErrInvalidTransition", err)
	}
}

func TestBulkApproveIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	a := seedPendingAction(t, env)
	b := seedPendingAction(t, env)
	ids := []string{a.ID, b.ID}

	n, err := env.Engine.BulkApprove(env.Ctx, ids, "owner")
	if err != nil || n != 2 {
		t.Fatalf("bulk approve: n=%d err=%v", n, err)
	}
	first, err := env.Engine.GetAction(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// second pass keeps them approved and refreshes updated_at
	env.Engine.Now = func() time.Time { return testClock.Add(time.Hour) }
	n, err = env.Engine.BulkApprove(env.Ctx, ids, "owner")
	if err != nil || n != 2 {
		t.Fatalf("bulk re-approve: n=%d err=%v", n, err)
	}
	second, err := env.Engine.GetAction(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.Status != domain.StatusApproved {
		t.Fatalf("status = %s, want approved", second.Status)
	}
	if second.UpdatedAt == first.UpdatedAt {
		t.Fatalf("updated_at not refreshed: %s", second.UpdatedAt)
	}
}

func TestBulkRejectSkipsApproved(t *testing.T) {
	env := newTestEnv(t)
	a := seedPendingAction(t, env)
	b := seedPendingAction(t, env)

	if _, err := env.Engine.Approve(env.Ctx, a.ID, "owner"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	n, err := env.Engine.BulkReject(env.Ctx, []string{a.ID, b.ID}, "owner")
	if err != nil || n != 1 {
		t.Fatalf("bulk reject: n=%d err=%v", n, err)
	}
	got, _ := env.Engine.GetAction(env.Ctx, a.ID)
	if got.Status != domain.StatusApproved {
		t.Fatalf("approved action flipped to %s", got.Status)
	}
}

func TestListPendingDefaultsAndOrdersByPriority(t *testing.T) {
	env := newTestEnv(t)

	mediumInv := seedInvoice(t, env, 5_000, 10)
	medium, err := env.Engine.GeneratePaymentReminder(env.Ctx, "biz-1", mediumInv.ID, "tester")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	urgentInv := seedInvoice(t, env, 60_000, 40)
	urgent, err := env.Engine.GeneratePaymentReminder(env.Ctx, "biz-1", urgentInv.ID, "tester")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	approved := seedPendingAction(t, env)
	if _, err := env.Engine.Approve(env.Ctx, approved.ID, "owner"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	list, err := env.Engine.ListPending(env.Ctx, repo.ActionFilters{BusinessID: "biz-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("pending list has %d entries, want 2", len(list))
	}
	if list[0].ID != urgent.ID || list[1].ID != medium.ID {
		t.Fatalf("list not ordered by priority: %s then %s", list[0].Priority, list[1].Priority)
	}
}

func TestActionStats(t *testing.T) {
	env := newTestEnv(t)
	a := seedPendingAction(t, env)
	seedPendingAction(t, env)
	if _, err := env.Engine.Approve(env.Ctx, a.ID, "owner"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	stats, err := env.Engine.ActionStats(env.Ctx, "biz-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ByStatus["pending"] != 1 || stats.ByStatus["approved"] != 1 {
		t.Fatalf("by status = %v", stats.ByStatus)
	}
	if stats.ByType["payment_reminder"] != 2 {
		t.Fatalf("by type = %v", stats.ByType)
	}
}

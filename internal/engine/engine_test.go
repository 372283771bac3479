package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"cofounder/internal/channel"
	"cofounder/internal/config"
	"cofounder/internal/db"
	"cofounder/internal/domain"
	"cofounder/internal/engine"
	"cofounder/internal/migrate"
)

type testEnv struct {
	Engine  engine.Engine
	Channel *channel.Memory
	Ctx     context.Context
}

var testClock = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("biz-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return testClock }
	mem := &channel.Memory{}
	eng.Channel = mem
	ctx := context.Background()
	if _, err := eng.InitBusiness(ctx, "biz-1", "Test Plumbing", "plumbing", "tester"); err != nil {
		t.Fatalf("init business: %v", err)
	}
	return testEnv{Engine: eng, Channel: mem, Ctx: ctx}
}

func seedInvoice(t *testing.T, env testEnv, amountCents int64, daysAgo int) domain.Invoice {
	t.Helper()
	sent := testClock.AddDate(0, 0, -daysAgo).Format(time.RFC3339)
	inv := domain.Invoice{
		ID:          uuid.New().String(),
		BusinessID:  "biz-1",
		Contact:     "+15550001111",
		ContactName: "Dana",
		AmountCents: amountCents,
		Status:      "sent",
		SentAt:      &sent,
		CreatedAt:   sent,
	}
	if err := env.Engine.Repo.InsertInvoice(env.Ctx, inv); err != nil {
		t.Fatalf("insert invoice: %v", err)
	}
	return inv
}

func TestPaymentReminderPriorityUrgent(t *testing.T) {
	env := newTestEnv(t)
	inv := seedInvoice(t, env, 60_000, 35) // $600, 35 days

	a, err := env.Engine.GeneratePaymentReminder(env.Ctx, "biz-1", inv.ID, "tester")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.Priority != domain.PriorityUrgent {
		t.Fatalf("priority = %s, want urgent", a.Priority)
	}
	if a.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", a.Status)
	}
	if a.Details.PaymentReminder.DaysOverdue != 35 {
		t.Fatalf("days overdue = %d, want 35", a.Details.PaymentReminder.DaysOverdue)
	}
}

func TestPaymentReminderPriorityMedium(t *testing.T) {
	env := newTestEnv(t)
	inv := seedInvoice(t, env, 5_000, 10) // $50, 10 days

	a, err := env.Engine.GeneratePaymentReminder(env.Ctx, "biz-1", inv.ID, "tester")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.Priority != domain.PriorityMedium {
		t.Fatalf("priority = %s, want medium", a.Priority)
	}
}

func TestGenerationFallsBackWithoutLLM(t *testing.T) {
	env := newTestEnv(t)
	inv := seedInvoice(t, env, 10_000, 5)

	a, err := env.Engine.GeneratePaymentReminder(env.Ctx, "biz-1", inv.ID, "tester")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.Reasoning != "Action recommended based on business data." {
		t.Fatalf("reasoning = %q", a.Reasoning)
	}
	if a.Details.PaymentReminder.SuggestedMessage != "" {
		t.Fatalf("suggested message should be empty, got %q", a.Details.PaymentReminder.SuggestedMessage)
	}
}

func TestLeadResponseAlwaysHigh(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.GenerateLeadResponse(env.Ctx, engine.LeadOptions{
		BusinessID: "biz-1", Contact: "+15550002222", Inquiry: "need a quote", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.Priority != domain.PriorityHigh {
		t.Fatalf("priority = %s, want high", a.Priority)
	}
}

func TestReviewReplyPriorityByRating(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		rating int
		want   domain.Priority
	}{
		{1, domain.PriorityUrgent},
		{2, domain.PriorityUrgent},
		{3, domain.PriorityHigh},
		{4, domain.PriorityMedium},
		{5, domain.PriorityMedium},
	}
	for _, tc := range cases {
		a, err := env.Engine.GenerateReviewReply(env.Ctx, engine.ReviewOptions{
			BusinessID: "biz-1", ReviewID: uuid.New().String(), Rating: tc.rating, ReviewText: "review", ActorID: "tester",
		})
		if err != nil {
			t.Fatalf("rating %d: %v", tc.rating, err)
		}
		if a.Priority != tc.want {
			t.Fatalf("rating %d priority = %s, want %s", tc.rating, a.Priority, tc.want)
		}
	}
}

func TestScanDeduplicatesAndCaps(t *testing.T) {
	env := newTestEnv(t)
	covered := seedInvoice(t, env, 20_000, 20)
	seedInvoice(t, env, 30_000, 25)
	seedInvoice(t, env, 40_000, 40)

	if _, err := env.Engine.GeneratePaymentReminder(env.Ctx, "biz-1", covered.ID, "tester"); err != nil {
		t.Fatalf("seed reminder: %v", err)
	}

	created, err := env.Engine.ScanForPendingPaymentReminders(env.Ctx, "biz-1", "tester")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d reminders, want 2", len(created))
	}
	for _, a := range created {
		if a.Details.PaymentReminder.InvoiceID == covered.ID {
			t.Fatalf("scan duplicated invoice %s", covered.ID)
		}
	}

	// re-running finds nothing new
	again, err := env.Engine.ScanForPendingPaymentReminders(env.Ctx, "biz-1", "tester")
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("rescan created %d reminders, want 0", len(again))
	}
}

func TestScanSkipsInvoiceSentToday(t *testing.T) {
	env := newTestEnv(t)
	seedInvoice(t, env, 60_000, 0)
	overdue := seedInvoice(t, env, 60_000, 3)

	created, err := env.Engine.ScanForPendingPaymentReminders(env.Ctx, "biz-1", "tester")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d reminders, want 1", len(created))
	}
	if created[0].Details.PaymentReminder.InvoiceID != overdue.ID {
		t.Fatalf("reminded wrong invoice: %s", created[0].Details.PaymentReminder.InvoiceID)
	}
}

func TestScanRespectsBatchSize(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Automation.ScanBatchSize = 2
	for i := 0; i < 4; i++ {
		seedInvoice(t, env, 10_000, 15+i)
	}

	created, err := env.Engine.ScanForPendingPaymentReminders(env.Ctx, "biz-1", "tester")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d reminders, want batch cap 2", len(created))
	}
}

func TestDecisionRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	logged, err := env.Engine.LogDecision(env.Ctx, engine.DecisionLogOptions{
		BusinessID:  "biz-1",
		Type:        domain.DecisionMessageResponse,
		ContextJSON: `{"from":"+15550001111","message":"is my sink done?"}`,
		Decision:    "Your sink is ready for pickup",
		Reasoning:   "customer asked for status",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	got, err := env.Engine.GetDecision(env.Ctx, logged.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != logged.ID || got.Type != logged.Type || got.Decision != logged.Decision ||
		got.Reasoning != logged.Reasoning || got.ContextJSON != logged.ContextJSON || got.CreatedAt != logged.CreatedAt {
		t.Fatalf("round trip mismatch: logged %+v got %+v", logged, got)
	}
	if got.Outcome != nil || got.Feedback != nil {
		t.Fatalf("fresh decision should have no outcome/feedback: %+v", got)
	}
}

func TestRecordOutcome(t *testing.T) {
	env := newTestEnv(t)
	logged, err := env.Engine.LogDecision(env.Ctx, engine.DecisionLogOptions{
		BusinessID: "biz-1", Type: domain.DecisionOperational, Decision: "reorder supplies", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	got, err := env.Engine.RecordOutcome(env.Ctx, logged.ID, "supplies arrived on time", "tester")
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if got.Outcome == nil || *got.Outcome != "supplies arrived on time" {
		t.Fatalf("outcome = %v", got.Outcome)
	}
}

func TestUpdatePreferenceCreatesThenOverwrites(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.Engine.UpdatePreference(env.Ctx, engine.PreferenceOptions{
		BusinessID: "biz-1",
		Category:   domain.CategoryTone,
		Preference: "friendly",
		Confidence: 0.6,
		Example:    "Thanks so much for your patience!",
		ActorID:    "owner",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Confidence != 0.6 {
		t.Fatalf("confidence = %v, want 0.6", p.Confidence)
	}
	if len(p.Examples) != 1 {
		t.Fatalf("examples = %v", p.Examples)
	}

	again, err := env.Engine.UpdatePreference(env.Ctx, engine.PreferenceOptions{
		BusinessID: "biz-1",
		Category:   domain.CategoryTone,
		Preference: "friendly",
		Confidence: 0.9,
		ActorID:    "owner",
	})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if again.ID != p.ID {
		t.Fatalf("overwrite created a second row: %s vs %s", again.ID, p.ID)
	}
	if again.Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", again.Confidence)
	}
	if len(again.Examples) != 1 {
		t.Fatalf("examples changed without a new one: %v", again.Examples)
	}
}

func TestUpdatePreferenceRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.UpdatePreference(env.Ctx, engine.PreferenceOptions{
		BusinessID: "biz-1", Category: domain.CategoryTone, Preference: "friendly", Confidence: 1.5, ActorID: "owner",
	})
	if err == nil {
		t.Fatal("confidence above 1 accepted")
	}
	_, err = env.Engine.UpdatePreference(env.Ctx, engine.PreferenceOptions{
		BusinessID: "biz-1", Category: "moods", Preference: "friendly", Confidence: 0.5, ActorID: "owner",
	})
	if err == nil {
		t.Fatal("unknown category accepted")
	}
}

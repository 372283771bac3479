package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cofounder/internal/domain"
	"cofounder/internal/events"
	"cofounder/internal/llm"
)

const (
	defaultScanBatchSize    = 10
	defaultOverdueAfterDays = 1
	urgentAmountCents       = 50_000  // $500
	highAmountCents         = 100_000 // $1000
)

// paymentReminderPriority applies the overdue/amount rule table.
func paymentReminderPriority(daysOverdue int, amountCents int64) domain.Priority {
	switch {
	case daysOverdue > 30 && amountCents > urgentAmountCents:
		return domain.PriorityUrgent
	case daysOverdue > 14 || amountCents > highAmountCents:
		return domain.PriorityHigh
	case daysOverdue > 7:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

func reviewReplyPriority(rating int) domain.Priority {
	switch {
	case rating <= 2:
		return domain.PriorityUrgent
	case rating <= 3:
		return domain.PriorityHigh
	default:
		return domain.PriorityMedium
	}
}

func priorityFor(t domain.ActionType, d domain.ActionDetails) domain.Priority {
	switch t {
	case domain.ActionPaymentReminder:
		return paymentReminderPriority(d.PaymentReminder.DaysOverdue, d.PaymentReminder.AmountCents)
	case domain.ActionLeadResponse:
		return domain.PriorityHigh
	case domain.ActionReviewReply:
		return reviewReplyPriority(d.ReviewReply.Rating)
	case domain.ActionAlert:
		return domain.PriorityHigh
	default:
		return domain.PriorityMedium
	}
}

// draft asks the text-generation service for reasoning plus suggested
// content. Generation failures never propagate; the caller always gets a
// usable draft.
func (e Engine) draft(ctx context.Context, businessID, systemPrompt, userPrompt string) llm.ActionDraft {
	if e.LLM == nil {
		return llm.ActionDraft{Reasoning: llm.FallbackReasoning}
	}
	summary, err := e.PreferenceSummary(ctx, businessID)
	if err == nil && summary != "" {
		systemPrompt += "\n\nLearned owner preferences:\n" + summary
	}
	text, err := e.LLM.Generate(ctx, systemPrompt, userPrompt)
	if err != nil || text == "" {
		return llm.ActionDraft{Reasoning: llm.FallbackReasoning}
	}
	return llm.ParseActionDraft(text)
}

func (e Engine) insertAction(ctx context.Context, a domain.CoFounderAction, actorID string) (domain.CoFounderAction, error) {
	if err := a.Details.Validate(a.Type); err != nil {
		return domain.CoFounderAction{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAction(ctx, tx, a); err != nil {
		return domain.CoFounderAction{}, fmt.Errorf("insert action: %w", err)
	}
	err = e.Events.Append(ctx, tx, "action.proposed", a.BusinessID, "action", a.ID, actorID, events.EventPayload{
		"type":     string(a.Type),
		"priority": string(a.Priority),
	})
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CoFounderAction{}, err
	}
	return a, nil
}

func (e Engine) newAction(businessID string, t domain.ActionType, details domain.ActionDetails, reasoning string) domain.CoFounderAction {
	now := e.now().UTC().Format(time.RFC3339)
	return domain.CoFounderAction{
		ID:         uuid.New().String(),
		BusinessID: businessID,
		Type:       t,
		Status:     domain.StatusPending,
		Priority:   priorityFor(t, details),
		Reasoning:  reasoning,
		Details:    details,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// daysOverdue measures whole days between the invoice leaving and now.
func daysOverdue(sentAt *string, createdAt string, now time.Time) int {
	ref := createdAt
	if sentAt != nil && *sentAt != "" {
		ref = *sentAt
	}
	t, err := time.Parse(time.RFC3339, ref)
	if err != nil {
		return 0
	}
	d := int(now.Sub(t).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// GeneratePaymentReminder proposes a reminder for one unpaid invoice.
func (e Engine) GeneratePaymentReminder(ctx context.Context, businessID, invoiceID, actorID string) (domain.CoFounderAction, error) {
	inv, err := e.Repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return domain.CoFounderAction{}, err
	}
	if inv.BusinessID != businessID {
		return domain.CoFounderAction{}, errors.New("invoice belongs to another business")
	}
	overdue := daysOverdue(inv.SentAt, inv.CreatedAt, e.now().UTC())

	draft := e.draft(ctx, businessID,
		"You draft polite, effective payment reminders for a small business. Respond with JSON {\"reasoning\":...,\"content\":...}.",
		fmt.Sprintf("Invoice %s for %s: $%.2f, %d days overdue. Draft a reminder message.",
			inv.ID, contactLabel(inv.ContactName, inv.Contact), float64(inv.AmountCents)/100, overdue))

	details := domain.ActionDetails{PaymentReminder: &domain.PaymentReminderDetails{
		InvoiceID:        inv.ID,
		Contact:          inv.Contact,
		ContactName:      inv.ContactName,
		AmountCents:      inv.AmountCents,
		DaysOverdue:      overdue,
		SuggestedMessage: draft.Content,
	}}
	return e.insertAction(ctx, e.newAction(businessID, domain.ActionPaymentReminder, details, draft.Reasoning), actorID)
}

// LeadOptions identify an inbound lead worth responding to.
type LeadOptions struct {
	BusinessID string
	LeadID     string
	Contact    string
	Inquiry    string
	ActorID    string
}

// GenerateLeadResponse proposes an immediate reply to a new lead.
func (e Engine) GenerateLeadResponse(ctx context.Context, opts LeadOptions) (domain.CoFounderAction, error) {
	if opts.Contact == "" {
		return domain.CoFounderAction{}, errors.New("lead contact is required")
	}
	if opts.LeadID == "" {
		opts.LeadID = uuid.New().String()
	}
	draft := e.draft(ctx, opts.BusinessID,
		"You draft fast, friendly first replies to new customer inquiries. Respond with JSON {\"reasoning\":...,\"content\":...}.",
		fmt.Sprintf("New lead from %s. Inquiry: %s. Draft the first reply.", opts.Contact, opts.Inquiry))

	details := domain.ActionDetails{LeadResponse: &domain.LeadResponseDetails{
		LeadID:           opts.LeadID,
		Contact:          opts.Contact,
		Inquiry:          opts.Inquiry,
		SuggestedMessage: draft.Content,
	}}
	return e.insertAction(ctx, e.newAction(opts.BusinessID, domain.ActionLeadResponse, details, draft.Reasoning), opts.ActorID)
}

// ReviewOptions identify an incoming customer review.
type ReviewOptions struct {
	BusinessID string
	ReviewID   string
	Rating     int
	ReviewText string
	ActorID    string
}

// GenerateReviewReply proposes a reply to a customer review, escalating
// priority for low ratings.
func (e Engine) GenerateReviewReply(ctx context.Context, opts ReviewOptions) (domain.CoFounderAction, error) {
	if opts.ReviewID == "" {
		return domain.CoFounderAction{}, errors.New("review id is required")
	}
	if opts.Rating < 1 || opts.Rating > 5 {
		return domain.CoFounderAction{}, fmt.Errorf("rating %d out of range", opts.Rating)
	}
	draft := e.draft(ctx, opts.BusinessID,
		"You draft gracious replies to customer reviews. Respond with JSON {\"reasoning\":...,\"content\":...}.",
		fmt.Sprintf("Review (%d/5): %s. Draft a public reply.", opts.Rating, opts.ReviewText))

	details := domain.ActionDetails{ReviewReply: &domain.ReviewReplyDetails{
		ReviewID:       opts.ReviewID,
		Rating:         opts.Rating,
		ReviewText:     opts.ReviewText,
		SuggestedReply: draft.Content,
	}}
	return e.insertAction(ctx, e.newAction(opts.BusinessID, domain.ActionReviewReply, details, draft.Reasoning), opts.ActorID)
}

// GenerateAlert proposes surfacing an operational alert to the owner.
func (e Engine) GenerateAlert(ctx context.Context, businessID, kind, message, actorID string) (domain.CoFounderAction, error) {
	if message == "" {
		return domain.CoFounderAction{}, errors.New("alert message is required")
	}
	if kind == "" {
		kind = "general"
	}
	details := domain.ActionDetails{Alert: &domain.AlertDetails{Kind: kind, Message: message}}
	reasoning := fmt.Sprintf("Operational %s alert flagged for owner attention.", kind)
	return e.insertAction(ctx, e.newAction(businessID, domain.ActionAlert, details, reasoning), actorID)
}

// ScanForPendingPaymentReminders proposes reminders for overdue invoices
// not already covered by a pending reminder, up to the scan batch size.
func (e Engine) ScanForPendingPaymentReminders(ctx context.Context, businessID, actorID string) ([]domain.CoFounderAction, error) {
	invoices, err := e.Repo.ListUnpaidInvoices(ctx, businessID)
	if err != nil {
		return nil, err
	}
	covered, err := e.Repo.PendingReminderInvoiceIDs(ctx, businessID)
	if err != nil {
		return nil, err
	}

	batch := defaultScanBatchSize
	// An invoice sent today is not overdue; the floor is one day.
	minOverdue := defaultOverdueAfterDays
	if e.Config != nil {
		if e.Config.Automation.ScanBatchSize > 0 {
			batch = e.Config.Automation.ScanBatchSize
		}
		if e.Config.Automation.OverdueAfterDays > 0 {
			minOverdue = e.Config.Automation.OverdueAfterDays
		}
	}

	now := e.now().UTC()
	var created []domain.CoFounderAction
	for _, inv := range invoices {
		if len(created) >= batch {
			break
		}
		if covered[inv.ID] {
			continue
		}
		if daysOverdue(inv.SentAt, inv.CreatedAt, now) < minOverdue {
			continue
		}
		a, err := e.GeneratePaymentReminder(ctx, businessID, inv.ID, actorID)
		if err != nil {
			continue
		}
		created = append(created, a)
	}
	return created, nil
}

func contactLabel(name, contact string) string {
	if name != "" {
		return fmt.Sprintf("%s (%s)", name, contact)
	}
	return contact
}

package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cofounder/internal/channel"
	"cofounder/internal/config"
	"cofounder/internal/domain"
	"cofounder/internal/events"
	"cofounder/internal/learning"
	"cofounder/internal/llm"
	"cofounder/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	LLM     llm.Generator
	Channel channel.Sender
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) processor() learning.Processor {
	return learning.Processor{
		DB:        e.DB,
		Repo:      e.Repo,
		Events:    e.Events,
		Extractor: learning.NewHeuristicExtractor(),
		Now:       e.Now,
	}
}

// InitBusiness registers a new business with migrations already run.
func (e Engine) InitBusiness(ctx context.Context, businessID, name, industry, actorID string) (domain.Business, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Business{}, err
	}
	defer tx.Rollback()

	b := domain.Business{
		ID:        businessID,
		Name:      name,
		Industry:  industry,
		Status:    "active",
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO businesses(id,name,industry,status,created_at) VALUES (?,?,?,?,?)`,
		b.ID, b.Name, nullable(b.Industry), b.Status, b.CreatedAt); err != nil {
		return domain.Business{}, fmt.Errorf("insert business: %w", err)
	}
	if err := e.Repo.UpsertBusinessConfigTx(ctx, tx, b.ID, config.Default(b.ID)); err != nil {
		return domain.Business{}, fmt.Errorf("insert business config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "business.init", b.ID, "business", b.ID, actorID, events.EventPayload{"status": b.Status}); err != nil {
		return domain.Business{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Business{}, err
	}
	return b, nil
}

// DecisionLogOptions are parameters for logging a decision.
type DecisionLogOptions struct {
	ID          string
	BusinessID  string
	Type        domain.DecisionType
	ContextJSON string
	Decision    string
	Reasoning   string
	ActorID     string
}

// LogDecision appends a decision to the ledger. It rejects nothing beyond
// basic shape checks; anything the AI chose gets recorded.
func (e Engine) LogDecision(ctx context.Context, opts DecisionLogOptions) (domain.Decision, error) {
	if opts.BusinessID == "" {
		return domain.Decision{}, errors.New("business is required")
	}
	if !domain.ValidDecisionType(opts.Type) {
		return domain.Decision{}, fmt.Errorf("unknown decision type %q", opts.Type)
	}
	if opts.Decision == "" {
		return domain.Decision{}, errors.New("decision text is required")
	}
	if opts.ContextJSON != "" {
		if err := validateJSON(opts.ContextJSON); err != nil {
			return domain.Decision{}, fmt.Errorf("context JSON: %w", err)
		}
	}
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}

	d := domain.Decision{
		ID:          opts.ID,
		BusinessID:  opts.BusinessID,
		Type:        opts.Type,
		ContextJSON: opts.ContextJSON,
		Decision:    opts.Decision,
		Reasoning:   opts.Reasoning,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Decision{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO decisions(id,business_id,type,context_json,decision,reasoning,outcome,feedback,created_at) VALUES (?,?,?,?,?,?,NULL,NULL,?)`,
		d.ID, d.BusinessID, d.Type, nullable(d.ContextJSON), d.Decision, nullable(d.Reasoning), d.CreatedAt); err != nil {
		return domain.Decision{}, fmt.Errorf("insert decision: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "decision.logged", d.BusinessID, "decision", d.ID, opts.ActorID, events.EventPayload{"type": string(d.Type)}); err != nil {
		return domain.Decision{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Decision{}, err
	}
	return d, nil
}

type InvoiceOptions struct {
	ID          string
	BusinessID  string
	Contact     string
	ContactName string
	AmountCents int64
	Status      string
	SentAt      *string
	ActorID     string
}

// AddInvoice records an invoice snapshot so overdue scans can pick it up.
func (e Engine) AddInvoice(ctx context.Context, opts InvoiceOptions) (domain.Invoice, error) {
	if opts.BusinessID == "" {
		return domain.Invoice{}, errors.New("business is required")
	}
	if opts.Contact == "" {
		return domain.Invoice{}, errors.New("contact is required")
	}
	if opts.AmountCents <= 0 {
		return domain.Invoice{}, errors.New("invalid amount")
	}
	if opts.Status == "" {
		opts.Status = "sent"
	}
	switch opts.Status {
	case "draft", "sent", "paid", "void":
	default:
		return domain.Invoice{}, fmt.Errorf("unknown invoice status %q", opts.Status)
	}
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	inv := domain.Invoice{
		ID:          opts.ID,
		BusinessID:  opts.BusinessID,
		Contact:     opts.Contact,
		ContactName: opts.ContactName,
		AmountCents: opts.AmountCents,
		Status:      opts.Status,
		SentAt:      opts.SentAt,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertInvoice(ctx, inv); err != nil {
		return domain.Invoice{}, err
	}
	e.logEvent(ctx, "invoice.recorded", inv.BusinessID, "invoice", inv.ID, opts.ActorID, events.EventPayload{"status": inv.Status})
	return inv, nil
}

// RecordOutcome fills in what actually happened after a decision played out.
func (e Engine) RecordOutcome(ctx context.Context, decisionID, outcome, actorID string) (domain.Decision, error) {
	if err := e.Repo.SetDecisionOutcome(ctx, decisionID, outcome); err != nil {
		return domain.Decision{}, err
	}
	d, err := e.Repo.GetDecision(ctx, decisionID)
	if err != nil {
		return domain.Decision{}, err
	}
	e.logEvent(ctx, "decision.outcome", d.BusinessID, "decision", d.ID, actorID, events.EventPayload{})
	return d, nil
}

// RecordFeedback runs the full learning pass for an owner reaction.
func (e Engine) RecordFeedback(ctx context.Context, businessID, decisionID string, feedback domain.Feedback, actorID string) (learning.FeedbackAnalysis, error) {
	return e.processor().ProcessFeedback(ctx, businessID, decisionID, feedback, actorID)
}

func (e Engine) GetDecision(ctx context.Context, id string) (domain.Decision, error) {
	return e.Repo.GetDecision(ctx, id)
}

// History lists decisions newest first with the ledger filters.
func (e Engine) History(ctx context.Context, f repo.DecisionFilters) ([]domain.Decision, error) {
	return e.Repo.ListDecisions(ctx, f)
}

// GenerateInsights aggregates preferences and recent feedback.
func (e Engine) GenerateInsights(ctx context.Context, businessID string) ([]learning.Insight, error) {
	return learning.Insights{Repo: e.Repo}.Generate(ctx, businessID)
}

// PreferenceSummary renders the prompt-injection summary of confident
// preferences.
func (e Engine) PreferenceSummary(ctx context.Context, businessID string) (string, error) {
	return learning.Insights{Repo: e.Repo}.PreferenceSummaryForAI(ctx, businessID)
}

// CheckAlignment scores a proposed decision text against learned
// preferences without blocking anything.
func (e Engine) CheckAlignment(ctx context.Context, businessID, proposedText string, decisionType domain.DecisionType) (learning.AlignmentReport, error) {
	return learning.Checker{Repo: e.Repo}.Check(ctx, businessID, proposedText, decisionType)
}

// PreferenceOptions carries an owner-directed preference write that
// bypasses the feedback deltas.
type PreferenceOptions struct {
	BusinessID string
	Category   domain.PreferenceCategory
	Preference string
	Confidence float64
	Example    string
	ActorID    string
}

// UpdatePreference creates the (business, category, preference) row at the
// given confidence, or overwrites the confidence of an existing one.
func (e Engine) UpdatePreference(ctx context.Context, opts PreferenceOptions) (domain.LearnedPreference, error) {
	if opts.BusinessID == "" {
		return domain.LearnedPreference{}, errors.New("business id is required")
	}
	if opts.Preference == "" {
		return domain.LearnedPreference{}, errors.New("preference is required")
	}
	if !domain.ValidCategory(opts.Category) {
		return domain.LearnedPreference{}, fmt.Errorf("unknown category %q", opts.Category)
	}
	if opts.Confidence <= 0 || opts.Confidence > 1 {
		return domain.LearnedPreference{}, errors.New("confidence out of range (0, 1]")
	}

	now := e.now().UTC().Format(time.RFC3339)
	p, err := e.Repo.GetPreferenceByKey(ctx, opts.BusinessID, opts.Category, opts.Preference)
	created := errors.Is(err, repo.ErrNotFound)
	if err != nil && !created {
		return domain.LearnedPreference{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LearnedPreference{}, err
	}
	defer tx.Rollback()

	if created {
		p = domain.LearnedPreference{
			ID:         uuid.New().String(),
			BusinessID: opts.BusinessID,
			Category:   opts.Category,
			Preference: opts.Preference,
			Confidence: opts.Confidence,
			Examples:   []string{},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if opts.Example != "" {
			p.Examples = []string{opts.Example}
		}
		if err := e.Repo.InsertPreference(ctx, tx, p); err != nil {
			return domain.LearnedPreference{}, err
		}
	} else {
		if err := e.Repo.SetConfidence(ctx, tx, p.ID, opts.Confidence, now); err != nil {
			return domain.LearnedPreference{}, err
		}
		if opts.Example != "" {
			if err := e.Repo.AppendExample(ctx, tx, p.ID, opts.Example, now); err != nil {
				return domain.LearnedPreference{}, err
			}
		}
	}
	err = e.Events.Append(ctx, tx, "preference.updated", opts.BusinessID, "preference", p.ID, opts.ActorID, events.EventPayload{
		"preference": p.Preference,
		"confidence": opts.Confidence,
		"created":    created,
	})
	if err != nil {
		return domain.LearnedPreference{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LearnedPreference{}, err
	}
	return e.Repo.GetPreference(ctx, p.ID)
}

// DecreasePreference nudges one preference down by an explicit amount,
// deleting it when it reaches zero.
func (e Engine) DecreasePreference(ctx context.Context, id string, amount float64) (domain.LearnedPreference, bool, error) {
	if amount <= 0 {
		return domain.LearnedPreference{}, false, errors.New("amount must be positive")
	}
	p, err := e.Repo.GetPreference(ctx, id)
	if err != nil {
		return domain.LearnedPreference{}, false, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LearnedPreference{}, false, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	after, err := e.Repo.AdjustConfidence(ctx, tx, id, -amount, 0, now)
	if err != nil {
		return domain.LearnedPreference{}, false, err
	}
	deleted := after <= 0
	if deleted {
		if err := e.Repo.DeletePreference(ctx, tx, id); err != nil {
			return domain.LearnedPreference{}, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.LearnedPreference{}, false, err
	}
	p.Confidence = after
	p.UpdatedAt = now
	return p, deleted, nil
}

// ForgetPreference removes one learned preference outright.
func (e Engine) ForgetPreference(ctx context.Context, id, actorID string) error {
	p, err := e.Repo.GetPreference(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeletePreferenceByID(ctx, id); err != nil {
		return err
	}
	e.logEvent(ctx, "preference.forgotten", p.BusinessID, "preference", p.ID, actorID, events.EventPayload{"preference": p.Preference})
	return nil
}

// ResetPreferenceCategory wipes a whole category for a business.
func (e Engine) ResetPreferenceCategory(ctx context.Context, businessID string, category domain.PreferenceCategory, actorID string) (int64, error) {
	if !domain.ValidCategory(category) {
		return 0, fmt.Errorf("unknown category %q", category)
	}
	n, err := e.Repo.ResetCategory(ctx, businessID, category)
	if err != nil {
		return 0, err
	}
	e.logEvent(ctx, "preference.reset", businessID, "preference", "", actorID, events.EventPayload{"category": string(category), "count": n})
	return n, nil
}

func (e Engine) logEvent(ctx context.Context, evtType, businessID, entityKind, entityID, actorID string, payload events.EventPayload) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, evtType, businessID, entityKind, entityID, actorID, payload); err != nil {
		return
	}
	_ = tx.Commit()
}

func validateJSON(s string) error {
	var v any
	return json.Unmarshal([]byte(s), &v)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

package domain

import (
	"errors"
	"fmt"
)

type Business struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Industry  string `json:"industry,omitempty"`
	Status    string `json:"status" enum:"active,paused,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// DecisionType classifies what kind of autonomous choice was made.
type DecisionType string

const (
	DecisionMessageResponse   DecisionType = "message_response"
	DecisionInvoiceCreation   DecisionType = "invoice_creation"
	DecisionLeadFollowup      DecisionType = "lead_followup"
	DecisionPricingSuggestion DecisionType = "pricing_suggestion"
	DecisionScheduling        DecisionType = "scheduling"
	DecisionMarketing         DecisionType = "marketing"
	DecisionCustomerService   DecisionType = "customer_service"
	DecisionStrategic         DecisionType = "strategic"
	DecisionOperational       DecisionType = "operational"
)

// Feedback is the owner's reaction to a logged decision.
type Feedback string

const (
	FeedbackApproved Feedback = "approved"
	FeedbackRejected Feedback = "rejected"
	FeedbackModified Feedback = "modified"
)

// Decision is one AI-made choice. Context, decision text, reasoning, type
// and created_at never change after logging; only outcome and feedback are
// set later.
type Decision struct {
	ID          string       `json:"id"`
	BusinessID  string       `json:"business_id"`
	Type        DecisionType `json:"type" enum:"message_response,invoice_creation,lead_followup,pricing_suggestion,scheduling,marketing,customer_service,strategic,operational"`
	ContextJSON string       `json:"context_json,omitempty"`
	Decision    string       `json:"decision"`
	Reasoning   string       `json:"reasoning,omitempty"`
	Outcome     *string      `json:"outcome,omitempty"`
	Feedback    *Feedback    `json:"feedback,omitempty" enum:"approved,rejected,modified"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
}

// PreferenceCategory groups learned behavioral signals.
type PreferenceCategory string

const (
	CategoryCommunicationStyle PreferenceCategory = "communication_style"
	CategoryTiming             PreferenceCategory = "timing"
	CategoryPricing            PreferenceCategory = "pricing"
	CategoryTone               PreferenceCategory = "tone"
	CategoryUrgencyThreshold   PreferenceCategory = "urgency_threshold"
	CategoryFollowUpFrequency  PreferenceCategory = "follow_up_frequency"
	CategoryResponseLength     PreferenceCategory = "response_length"
	CategoryFormality          PreferenceCategory = "formality"
	CategoryAutomationLevel    PreferenceCategory = "automation_level"
)

// AvoidPrefix marks a negative preference label ("avoid:collaborative").
const AvoidPrefix = "avoid:"

// MaxPreferenceExamples bounds the example list kept per preference.
const MaxPreferenceExamples = 10

// LearnedPreference is a confidence-scored behavioral signal for one
// business. At most one row exists per (business, category, preference).
type LearnedPreference struct {
	ID         string             `json:"id"`
	BusinessID string             `json:"business_id"`
	Category   PreferenceCategory `json:"category" enum:"communication_style,timing,pricing,tone,urgency_threshold,follow_up_frequency,response_length,formality,automation_level"`
	Preference string             `json:"preference"`
	Confidence float64            `json:"confidence" minimum:"0" maximum:"1"`
	Examples   []string           `json:"examples,omitempty"`
	CreatedAt  string             `json:"created_at" format:"date-time"`
	UpdatedAt  string             `json:"updated_at" format:"date-time"`
}

// IsAvoid reports whether this is a negative ("avoid:") preference.
func (p LearnedPreference) IsAvoid() bool {
	return len(p.Preference) > len(AvoidPrefix) && p.Preference[:len(AvoidPrefix)] == AvoidPrefix
}

// Label returns the preference label without the avoid prefix.
func (p LearnedPreference) Label() string {
	if p.IsAvoid() {
		return p.Preference[len(AvoidPrefix):]
	}
	return p.Preference
}

// ActionType identifies the kind of autonomous work an action proposes.
type ActionType string

const (
	ActionPaymentReminder      ActionType = "payment_reminder"
	ActionLeadResponse         ActionType = "lead_response"
	ActionReviewReply          ActionType = "review_reply"
	ActionScheduleOptimization ActionType = "schedule_optimization"
	ActionAlert                ActionType = "alert"
)

// ActionStatus is the lifecycle state of an action.
type ActionStatus string

const (
	StatusPending  ActionStatus = "pending"
	StatusApproved ActionStatus = "approved"
	StatusExecuted ActionStatus = "executed"
	StatusRejected ActionStatus = "rejected"
)

// Priority orders pending actions for the owner.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// PaymentReminderDetails carries the facts behind a payment_reminder action.
type PaymentReminderDetails struct {
	InvoiceID        string `json:"invoice_id"`
	Contact          string `json:"contact"`
	ContactName      string `json:"contact_name,omitempty"`
	AmountCents      int64  `json:"amount_cents"`
	DaysOverdue      int    `json:"days_overdue"`
	SuggestedMessage string `json:"suggested_message,omitempty"`
}

type LeadResponseDetails struct {
	LeadID           string `json:"lead_id"`
	Contact          string `json:"contact"`
	Inquiry          string `json:"inquiry,omitempty"`
	SuggestedMessage string `json:"suggested_message,omitempty"`
}

type ReviewReplyDetails struct {
	ReviewID       string `json:"review_id"`
	Rating         int    `json:"rating" minimum:"1" maximum:"5"`
	ReviewText     string `json:"review_text,omitempty"`
	SuggestedReply string `json:"suggested_reply,omitempty"`
}

type ScheduleOptimizationDetails struct {
	Summary    string `json:"summary"`
	Suggestion string `json:"suggestion,omitempty"`
}

type AlertDetails struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ActionDetails is a tagged variant keyed by the enclosing action type:
// exactly the member matching the type must be set.
type ActionDetails struct {
	PaymentReminder      *PaymentReminderDetails      `json:"payment_reminder,omitempty"`
	LeadResponse         *LeadResponseDetails         `json:"lead_response,omitempty"`
	ReviewReply          *ReviewReplyDetails          `json:"review_reply,omitempty"`
	ScheduleOptimization *ScheduleOptimizationDetails `json:"schedule_optimization,omitempty"`
	Alert                *AlertDetails                `json:"alert,omitempty"`
}

var ErrDetailsMismatch = errors.New("action details do not match action type")

// Validate checks that the variant matching t is present and no other is.
func (d ActionDetails) Validate(t ActionType) error {
	present := 0
	match := false
	check := func(set bool, typ ActionType) {
		if set {
			present++
			if typ == t {
				match = true
			}
		}
	}
	check(d.PaymentReminder != nil, ActionPaymentReminder)
	check(d.LeadResponse != nil, ActionLeadResponse)
	check(d.ReviewReply != nil, ActionReviewReply)
	check(d.ScheduleOptimization != nil, ActionScheduleOptimization)
	check(d.Alert != nil, ActionAlert)
	if present != 1 || !match {
		return fmt.Errorf("%w: type %s", ErrDetailsMismatch, t)
	}
	return nil
}

// ExecutionResult records the outcome of one execution attempt.
type ExecutionResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	ExecutedAt string `json:"executed_at" format:"date-time"`
}

// CoFounderAction is a proposed unit of autonomous work moving through
// pending -> approved -> executed, or pending -> rejected.
type CoFounderAction struct {
	ID              string           `json:"id"`
	BusinessID      string           `json:"business_id"`
	Type            ActionType       `json:"type" enum:"payment_reminder,lead_response,review_reply,schedule_optimization,alert"`
	Status          ActionStatus     `json:"status" enum:"pending,approved,executed,rejected"`
	Priority        Priority         `json:"priority" enum:"low,medium,high,urgent"`
	Reasoning       string           `json:"reasoning,omitempty"`
	Details         ActionDetails    `json:"details"`
	ExecutionResult *ExecutionResult `json:"execution_result,omitempty"`
	CreatedAt       string           `json:"created_at" format:"date-time"`
	UpdatedAt       string           `json:"updated_at" format:"date-time"`
	ExecutedAt      *string          `json:"executed_at,omitempty" format:"date-time"`
}

// ExecutionLog is one best-effort audit record of an execution attempt.
type ExecutionLog struct {
	ID         string     `json:"id"`
	BusinessID string     `json:"business_id"`
	ActionID   string     `json:"action_id"`
	ActionType ActionType `json:"action_type"`
	Success    bool       `json:"success"`
	Message    string     `json:"message,omitempty"`
	ExternalID string     `json:"external_id,omitempty"`
	CreatedAt  string     `json:"created_at" format:"date-time"`
}

// Invoice is a local snapshot of an externally issued invoice, kept so the
// payment-reminder scan has something to scan.
type Invoice struct {
	ID          string  `json:"id"`
	BusinessID  string  `json:"business_id"`
	Contact     string  `json:"contact"`
	ContactName string  `json:"contact_name,omitempty"`
	AmountCents int64   `json:"amount_cents"`
	Status      string  `json:"status" enum:"draft,sent,paid,void"`
	SentAt      *string `json:"sent_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	BusinessID string `json:"business_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ValidDecisionType reports whether t is a known decision type.
func ValidDecisionType(t DecisionType) bool {
	switch t {
	case DecisionMessageResponse, DecisionInvoiceCreation, DecisionLeadFollowup,
		DecisionPricingSuggestion, DecisionScheduling, DecisionMarketing,
		DecisionCustomerService, DecisionStrategic, DecisionOperational:
		return true
	}
	return false
}

// ValidFeedback reports whether f is a known feedback value.
func ValidFeedback(f Feedback) bool {
	return f == FeedbackApproved || f == FeedbackRejected || f == FeedbackModified
}

// ValidCategory reports whether c is a known preference category.
func ValidCategory(c PreferenceCategory) bool {
	switch c {
	case CategoryCommunicationStyle, CategoryTiming, CategoryPricing, CategoryTone,
		CategoryUrgencyThreshold, CategoryFollowUpFrequency, CategoryResponseLength,
		CategoryFormality, CategoryAutomationLevel:
		return true
	}
	return false
}

package server

import (
	"encoding/json"

	"cofounder/internal/domain"
	"cofounder/internal/engine"
	"cofounder/internal/learning"
)

// Request payloads

type CreateBusinessRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Industry string `json:"industry,omitempty"`
}

type LogDecisionRequest struct {
	ID        *string        `json:"id,omitempty"`
	Type      string         `json:"type" enum:"message_response,invoice_creation,lead_followup,pricing_suggestion,scheduling,marketing,customer_service,strategic,operational"`
	Context   map[string]any `json:"context,omitempty"`
	Decision  string         `json:"decision"`
	Reasoning string         `json:"reasoning,omitempty"`
}

type RecordOutcomeRequest struct {
	Outcome string `json:"outcome"`
}

type RecordFeedbackRequest struct {
	Feedback string `json:"feedback" enum:"approved,rejected,modified"`
}

type UpdatePreferenceRequest struct {
	Category   string  `json:"category" enum:"communication_style,timing,pricing,tone,urgency_threshold,follow_up_frequency,response_length,formality,automation_level"`
	Preference string  `json:"preference" minLength:"1"`
	Confidence float64 `json:"confidence" exclusiveMinimum:"0" maximum:"1"`
	Example    string  `json:"example,omitempty"`
}

type DecreasePreferenceRequest struct {
	Amount float64 `json:"amount" exclusiveMinimum:"0" maximum:"1"`
}

type AlignmentCheckRequest struct {
	Text string `json:"text"`
	Type string `json:"type,omitempty" enum:"message_response,invoice_creation,lead_followup,pricing_suggestion,scheduling,marketing,customer_service,strategic,operational"`
}

type PaymentReminderRequest struct {
	InvoiceID string `json:"invoice_id"`
}

type LeadResponseRequest struct {
	LeadID  string `json:"lead_id,omitempty"`
	Contact string `json:"contact"`
	Inquiry string `json:"inquiry,omitempty"`
}

type ReviewReplyRequest struct {
	ReviewID   string `json:"review_id"`
	Rating     int    `json:"rating" minimum:"1" maximum:"5"`
	ReviewText string `json:"review_text,omitempty"`
}

type AlertRequest struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

type BulkActionRequest struct {
	IDs []string `json:"ids"`
}

type CreateInvoiceRequest struct {
	ID          *string `json:"id,omitempty"`
	Contact     string  `json:"contact"`
	ContactName string  `json:"contact_name,omitempty"`
	AmountCents int64   `json:"amount_cents" minimum:"1"`
	Status      string  `json:"status,omitempty" enum:"draft,sent,paid,void"`
	SentAt      *string `json:"sent_at,omitempty" format:"date-time"`
}

// Response payloads

type BusinessResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Industry  string `json:"industry,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type DecisionResponse struct {
	ID         string         `json:"id"`
	BusinessID string         `json:"business_id"`
	Type       string         `json:"type"`
	Context    map[string]any `json:"context,omitempty"`
	Decision   string         `json:"decision"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Outcome    *string        `json:"outcome,omitempty"`
	Feedback   *string        `json:"feedback,omitempty"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
}

type PreferenceResponse struct {
	ID         string   `json:"id"`
	BusinessID string   `json:"business_id"`
	Category   string   `json:"category"`
	Preference string   `json:"preference"`
	Confidence float64  `json:"confidence"`
	Examples   []string `json:"examples,omitempty"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
	UpdatedAt  string   `json:"updated_at" format:"date-time"`
}

type ActionResponse struct {
	ID              string                  `json:"id"`
	BusinessID      string                  `json:"business_id"`
	Type            string                  `json:"type"`
	Status          string                  `json:"status"`
	Priority        string                  `json:"priority"`
	Reasoning       string                  `json:"reasoning,omitempty"`
	Details         domain.ActionDetails    `json:"details"`
	ExecutionResult *domain.ExecutionResult `json:"execution_result,omitempty"`
	CreatedAt       string                  `json:"created_at" format:"date-time"`
	UpdatedAt       string                  `json:"updated_at" format:"date-time"`
	ExecutedAt      *string                 `json:"executed_at,omitempty" format:"date-time"`
}

type FeedbackAnalysisResponse struct {
	DecisionID string                      `json:"decision_id"`
	Feedback   string                      `json:"feedback"`
	Patterns   []learning.PatternMatch     `json:"patterns,omitempty"`
	Updates    []learning.PreferenceUpdate `json:"updates,omitempty"`
}

type InsightResponse struct {
	Category   string  `json:"category"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type AlignmentResponse struct {
	AlignmentScore float64  `json:"alignment_score"`
	Conflicts      []string `json:"conflicts,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
}

type InvoiceResponse struct {
	ID          string  `json:"id"`
	BusinessID  string  `json:"business_id"`
	Contact     string  `json:"contact"`
	ContactName string  `json:"contact_name,omitempty"`
	AmountCents int64   `json:"amount_cents"`
	Status      string  `json:"status"`
	SentAt      *string `json:"sent_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	BusinessID string         `json:"business_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func businessResponse(b domain.Business) BusinessResponse {
	return BusinessResponse{
		ID:        b.ID,
		Name:      b.Name,
		Industry:  b.Industry,
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
	}
}

func decisionResponse(d domain.Decision) DecisionResponse {
	resp := DecisionResponse{
		ID:         d.ID,
		BusinessID: d.BusinessID,
		Type:       string(d.Type),
		Decision:   d.Decision,
		Reasoning:  d.Reasoning,
		Outcome:    d.Outcome,
		CreatedAt:  d.CreatedAt,
	}
	if d.Feedback != nil {
		fb := string(*d.Feedback)
		resp.Feedback = &fb
	}
	if d.ContextJSON != "" {
		var ctx map[string]any
		if err := json.Unmarshal([]byte(d.ContextJSON), &ctx); err == nil {
			resp.Context = ctx
		}
	}
	return resp
}

func mapDecisions(items []domain.Decision) []DecisionResponse {
	res := make([]DecisionResponse, 0, len(items))
	for _, d := range items {
		res = append(res, decisionResponse(d))
	}
	return res
}

func preferenceResponse(p domain.LearnedPreference) PreferenceResponse {
	return PreferenceResponse{
		ID:         p.ID,
		BusinessID: p.BusinessID,
		Category:   string(p.Category),
		Preference: p.Preference,
		Confidence: p.Confidence,
		Examples:   p.Examples,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func mapPreferences(items []domain.LearnedPreference) []PreferenceResponse {
	res := make([]PreferenceResponse, 0, len(items))
	for _, p := range items {
		res = append(res, preferenceResponse(p))
	}
	return res
}

func actionResponse(a domain.CoFounderAction) ActionResponse {
	return ActionResponse{
		ID:              a.ID,
		BusinessID:      a.BusinessID,
		Type:            string(a.Type),
		Status:          string(a.Status),
		Priority:        string(a.Priority),
		Reasoning:       a.Reasoning,
		Details:         a.Details,
		ExecutionResult: a.ExecutionResult,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		ExecutedAt:      a.ExecutedAt,
	}
}

func mapActions(items []domain.CoFounderAction) []ActionResponse {
	res := make([]ActionResponse, 0, len(items))
	for _, a := range items {
		res = append(res, actionResponse(a))
	}
	return res
}

func feedbackAnalysisResponse(a learning.FeedbackAnalysis) FeedbackAnalysisResponse {
	return FeedbackAnalysisResponse{
		DecisionID: a.DecisionID,
		Feedback:   string(a.Feedback),
		Patterns:   a.Patterns,
		Updates:    a.Updates,
	}
}

func invoiceResponse(inv domain.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:          inv.ID,
		BusinessID:  inv.BusinessID,
		Contact:     inv.Contact,
		ContactName: inv.ContactName,
		AmountCents: inv.AmountCents,
		Status:      inv.Status,
		SentAt:      inv.SentAt,
		CreatedAt:   inv.CreatedAt,
	}
}

func mapInvoices(items []domain.Invoice) []InvoiceResponse {
	res := make([]InvoiceResponse, 0, len(items))
	for _, inv := range items {
		res = append(res, invoiceResponse(inv))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	resp := EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		BusinessID: e.BusinessID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
	}
	if e.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(e.Payload), &payload); err == nil {
			resp.Payload = payload
		}
	}
	return resp
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, eventResponse(e))
	}
	return res
}

func mapOutcomes(items []engine.ExecutionOutcome) []engine.ExecutionOutcome {
	if items == nil {
		return []engine.ExecutionOutcome{}
	}
	return items
}

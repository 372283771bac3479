// Package learning derives stable behavioral preferences from owner
// feedback on logged decisions, and scores future decisions against them.
package learning

import (
	"cofounder/internal/domain"
)

// PatternMatch is one categorical signal found in a decision's text.
type PatternMatch struct {
	Category   domain.PreferenceCategory `json:"category"`
	Pattern    string                    `json:"pattern"`
	Confidence float64                   `json:"confidence"`
	Example    string                    `json:"example,omitempty"`
}

// UpdateKind tags what happened to a preference row.
type UpdateKind string

const (
	UpdateCreated   UpdateKind = "create"
	UpdateIncreased UpdateKind = "increase"
	UpdateDecreased UpdateKind = "decrease"
	UpdateDeleted   UpdateKind = "delete"
)

// PreferenceUpdate records one concrete change made while processing
// feedback, with before/after confidence for auditability.
type PreferenceUpdate struct {
	Kind             UpdateKind                `json:"kind"`
	PreferenceID     string                    `json:"preference_id,omitempty"`
	Category         domain.PreferenceCategory `json:"category"`
	Preference       string                    `json:"preference"`
	ConfidenceBefore float64                   `json:"confidence_before"`
	ConfidenceAfter  float64                   `json:"confidence_after"`
}

// FeedbackAnalysis summarizes one processed feedback event.
type FeedbackAnalysis struct {
	DecisionID string             `json:"decision_id"`
	Feedback   domain.Feedback    `json:"feedback"`
	Patterns   []PatternMatch     `json:"patterns"`
	Updates    []PreferenceUpdate `json:"updates"`
}

// Insight is a human-readable observation about learned behavior.
type Insight struct {
	Category   domain.PreferenceCategory `json:"category,omitempty"`
	Text       string                    `json:"text"`
	Confidence float64                   `json:"confidence"`
}

// AlignmentReport scores a proposed decision against learned preferences.
// It is advisory only and never blocks an action.
type AlignmentReport struct {
	AlignmentScore float64  `json:"alignment_score"`
	Conflicts      []string `json:"conflicts,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
}

// Confidence constants for the learning rules.
const (
	initialConfidence   = 0.3
	avoidConfidence     = 0.4
	approveDelta        = 0.1
	rejectDelta         = -0.25
	modifyDelta         = -0.05
	modifyFloor         = 0.1
	patternSeed         = 0.5
	formalitySeed       = 0.4
	exampleMaxLen       = 200
	insightMinFeedback  = 10
	insightWindow       = 100
	summaryPerCategory  = 2
	confidenceThreshold = 0.5
	alignmentNeutral    = 0.5
	alignmentLowMark    = 0.4
	matchWeight         = 0.1
	avoidWeight         = 0.2
	maxSuggestions      = 3
)

package learning_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofounder/internal/domain"
	"cofounder/internal/learning"
)

func extract(dtype domain.DecisionType, text string) []learning.PatternMatch {
	return learning.NewHeuristicExtractor().Extract(domain.Decision{
		ID: "d-1", BusinessID: testBusiness, Type: dtype, Decision: text,
	})
}

func patternFor(matches []learning.PatternMatch, category domain.PreferenceCategory) (learning.PatternMatch, bool) {
	for _, m := range matches {
		if m.Category == category {
			return m, true
		}
	}
	return learning.PatternMatch{}, false
}

func TestExtractMessageResponseStyle(t *testing.T) {
	matches := extract(domain.DecisionMessageResponse, "I'll take care of that for you")

	style, ok := patternFor(matches, domain.CategoryCommunicationStyle)
	require.True(t, ok)
	assert.Equal(t, "collaborative", style.Pattern)
	assert.InDelta(t, 0.5, style.Confidence, 1e-9)

	tone, ok := patternFor(matches, domain.CategoryTone)
	require.True(t, ok)
	assert.Equal(t, "professional", tone.Pattern)

	length, ok := patternFor(matches, domain.CategoryResponseLength)
	require.True(t, ok)
	assert.Equal(t, "concise", length.Pattern)
}

func TestExtractAlwaysReportsFormality(t *testing.T) {
	matches := extract(domain.DecisionOperational, "restocked the supply closet")
	require.Len(t, matches, 1)
	assert.Equal(t, domain.CategoryFormality, matches[0].Category)
	assert.Equal(t, "balanced_formality", matches[0].Pattern)
	assert.InDelta(t, 0.4, matches[0].Confidence, 1e-9)
}

func TestExtractFormalityLeans(t *testing.T) {
	formal := extract(domain.DecisionOperational, "Dear customer, kindly find the invoice attached. Regards")
	m, ok := patternFor(formal, domain.CategoryFormality)
	require.True(t, ok)
	assert.Equal(t, "high_formality", m.Pattern)

	informal := extract(domain.DecisionOperational, "hey, gonna swing by later, no worries")
	m, ok = patternFor(informal, domain.CategoryFormality)
	require.True(t, ok)
	assert.Equal(t, "low_formality", m.Pattern)
}

func TestExtractToneEnthusiastic(t *testing.T) {
	matches := extract(domain.DecisionMessageResponse, "Great news! Your sink is fixed! See you soon")
	tone, ok := patternFor(matches, domain.CategoryTone)
	require.True(t, ok)
	assert.Equal(t, "enthusiastic", tone.Pattern)
}

func TestExtractPricing(t *testing.T) {
	matches := extract(domain.DecisionPricingSuggestion, "offer a 10% off coupon to returning customers")
	pricing, ok := patternFor(matches, domain.CategoryPricing)
	require.True(t, ok)
	assert.Equal(t, "discount_friendly", pricing.Pattern)
}

func TestExtractLeadFollowupTimingAndUrgency(t *testing.T) {
	matches := extract(domain.DecisionLeadFollowup, "call them back right away, this one is urgent")

	timing, ok := patternFor(matches, domain.CategoryTiming)
	require.True(t, ok)
	assert.Equal(t, "immediate_response", timing.Pattern)

	urgency, ok := patternFor(matches, domain.CategoryUrgencyThreshold)
	require.True(t, ok)
	assert.Equal(t, "high_urgency", urgency.Pattern)
}

func TestExtractUrgencyDefaultsToNormal(t *testing.T) {
	matches := extract(domain.DecisionLeadFollowup, "send the quote and see what they say")
	urgency, ok := patternFor(matches, domain.CategoryUrgencyThreshold)
	require.True(t, ok)
	assert.Equal(t, "normal_urgency", urgency.Pattern)
}

func TestExtractTruncatesLongExamples(t *testing.T) {
	long := strings.Repeat("a", 250)
	matches := extract(domain.DecisionMessageResponse, long)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		assert.Len(t, m.Example, 200)
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	first := extract(domain.DecisionMessageResponse, "I'll take care of that for you")
	second := extract(domain.DecisionMessageResponse, "I'll take care of that for you")
	assert.Equal(t, first, second)
}

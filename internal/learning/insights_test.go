package learning_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofounder/internal/domain"
	"cofounder/internal/learning"
)

func seedFeedbackDecisions(t *testing.T, s testStore, approved, rejected int) {
	t.Helper()
	fb := func(f domain.Feedback) *domain.Feedback { return &f }
	for i := 0; i < approved+rejected; i++ {
		feedback := fb(domain.FeedbackApproved)
		if i >= approved {
			feedback = fb(domain.FeedbackRejected)
		}
		d := domain.Decision{
			ID:         uuid.New().String(),
			BusinessID: testBusiness,
			Type:       domain.DecisionMessageResponse,
			Decision:   fmt.Sprintf("reply %d", i),
			Reasoning:  "r",
			Feedback:   feedback,
			CreatedAt:  fmt.Sprintf("2024-01-01T%02d:%02d:00Z", i/60, i%60),
		}
		require.NoError(t, s.Repo.InsertDecision(s.Ctx, d))
	}
}

func insightTexts(insights []learning.Insight) []string {
	texts := make([]string, 0, len(insights))
	for _, in := range insights {
		texts = append(texts, in.Text)
	}
	return texts
}

func TestGenerateReportsTopPreferencePerCategory(t *testing.T) {
	s := newTestStore(t)
	seedPreference(t, s, domain.CategoryCommunicationStyle, "collaborative", 0.8)
	seedPreference(t, s, domain.CategoryCommunicationStyle, "directive", 0.6)
	seedPreference(t, s, domain.CategoryTone, "avoid:pushy", 0.7)
	seedPreference(t, s, domain.CategoryPricing, "discount_friendly", 0.3)
	g := learning.Insights{Repo: s.Repo}

	insights, err := g.Generate(s.Ctx, testBusiness)
	require.NoError(t, err)

	texts := insightTexts(insights)
	assert.Contains(t, texts, "Prefers collaborative")
	assert.Contains(t, texts, "Avoids pushy")
	assert.NotContains(t, texts, "Prefers directive")
	assert.NotContains(t, texts, "Prefers discount_friendly")

	for i := 1; i < len(insights); i++ {
		assert.GreaterOrEqual(t, insights[i-1].Confidence, insights[i].Confidence)
	}
}

func TestGenerateApprovalRateNeedsTenSamples(t *testing.T) {
	s := newTestStore(t)
	seedFeedbackDecisions(t, s, 8, 1)
	g := learning.Insights{Repo: s.Repo}

	insights, err := g.Generate(s.Ctx, testBusiness)
	require.NoError(t, err)
	assert.Empty(t, insights)
}

func TestGenerateApprovalRateTiers(t *testing.T) {
	s := newTestStore(t)
	seedFeedbackDecisions(t, s, 9, 1)
	g := learning.Insights{Repo: s.Repo}

	insights, err := g.Generate(s.Ctx, testBusiness)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Contains(t, insights[0].Text, "Strongly aligned")
	assert.InDelta(t, 0.9, insights[0].Confidence, 1e-9)
}

func TestGenerateApprovalRateModerate(t *testing.T) {
	s := newTestStore(t)
	seedFeedbackDecisions(t, s, 7, 3)
	g := learning.Insights{Repo: s.Repo}

	insights, err := g.Generate(s.Ctx, testBusiness)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Contains(t, insights[0].Text, "Moderately aligned")
}

func TestGenerateApprovalRateNeedsMoreData(t *testing.T) {
	s := newTestStore(t)
	seedFeedbackDecisions(t, s, 5, 5)
	g := learning.Insights{Repo: s.Repo}

	insights, err := g.Generate(s.Ctx, testBusiness)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Contains(t, insights[0].Text, "Needs more data")
	assert.InDelta(t, 0.5, insights[0].Confidence, 0.001)
}

func TestPreferenceSummaryForAI(t *testing.T) {
	s := newTestStore(t)
	seedPreference(t, s, domain.CategoryCommunicationStyle, "collaborative", 0.9)
	seedPreference(t, s, domain.CategoryCommunicationStyle, "consultative", 0.7)
	seedPreference(t, s, domain.CategoryCommunicationStyle, "directive", 0.6)
	seedPreference(t, s, domain.CategoryTone, "avoid:pushy", 0.8)
	seedPreference(t, s, domain.CategoryPricing, "discount_friendly", 0.2)
	g := learning.Insights{Repo: s.Repo}

	summary, err := g.PreferenceSummaryForAI(s.Ctx, testBusiness)
	require.NoError(t, err)
	assert.Contains(t, summary, "Prefers collaborative")
	assert.Contains(t, summary, "Prefers consultative")
	assert.NotContains(t, summary, "directive")
	assert.Contains(t, summary, "Avoid pushy")
	assert.NotContains(t, summary, "discount_friendly")
}

func TestPreferenceSummaryEmptyWhenNothingQualifies(t *testing.T) {
	s := newTestStore(t)
	seedPreference(t, s, domain.CategoryTone, "casual", 0.3)
	g := learning.Insights{Repo: s.Repo}

	summary, err := g.PreferenceSummaryForAI(s.Ctx, testBusiness)
	require.NoError(t, err)
	assert.Empty(t, summary)
}

package learning

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cofounder/internal/domain"
	"cofounder/internal/repo"
)

// Insights reads learned preferences and recent feedback and turns them
// into owner-facing observations.
type Insights struct {
	Repo repo.Repo
}

// Generate returns one insight per category with a confident preference,
// plus an approval-rate insight when enough feedback has accumulated.
// Results are sorted by confidence, strongest first.
func (g Insights) Generate(ctx context.Context, businessID string) ([]Insight, error) {
	prefs, err := g.Repo.ListPreferences(ctx, businessID)
	if err != nil {
		return nil, err
	}

	best := map[domain.PreferenceCategory]domain.LearnedPreference{}
	for _, p := range prefs {
		if p.Confidence < confidenceThreshold {
			continue
		}
		cur, ok := best[p.Category]
		if !ok || p.Confidence > cur.Confidence {
			best[p.Category] = p
		}
	}

	var insights []Insight
	for _, p := range best {
		text := fmt.Sprintf("Prefers %s", p.Label())
		if p.IsAvoid() {
			text = fmt.Sprintf("Avoids %s", p.Label())
		}
		insights = append(insights, Insight{
			Category:   p.Category,
			Text:       text,
			Confidence: p.Confidence,
		})
	}

	if rate, ok, err := g.approvalRate(ctx, businessID); err != nil {
		return nil, err
	} else if ok {
		insights = append(insights, rate)
	}

	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].Confidence > insights[j].Confidence
	})
	return insights, nil
}

func (g Insights) approvalRate(ctx context.Context, businessID string) (Insight, bool, error) {
	recent, err := g.Repo.RecentDecisionsWithFeedback(ctx, businessID, insightWindow)
	if err != nil {
		return Insight{}, false, err
	}
	if len(recent) < insightMinFeedback {
		return Insight{}, false, nil
	}
	approved := 0
	for _, d := range recent {
		if d.Feedback != nil && *d.Feedback == domain.FeedbackApproved {
			approved++
		}
	}
	rate := float64(approved) / float64(len(recent))
	switch {
	case rate >= 0.8:
		return Insight{
			Category:   domain.CategoryAutomationLevel,
			Text:       fmt.Sprintf("Strongly aligned: %d%% of recent suggestions approved", int(rate*100)),
			Confidence: rate,
		}, true, nil
	case rate >= 0.6:
		return Insight{
			Category:   domain.CategoryAutomationLevel,
			Text:       fmt.Sprintf("Moderately aligned: %d%% of recent suggestions approved", int(rate*100)),
			Confidence: rate,
		}, true, nil
	}
	return Insight{
		Category:   domain.CategoryAutomationLevel,
		Text:       fmt.Sprintf("Needs more data: only %d%% of recent suggestions approved", int(rate*100)),
		Confidence: rate,
	}, true, nil
}

// PreferenceSummaryForAI renders the confident preferences as a short
// bullet list suitable for a model prompt. Returns "" when nothing has
// been learned yet.
func (g Insights) PreferenceSummaryForAI(ctx context.Context, businessID string) (string, error) {
	prefs, err := g.Repo.ListPreferences(ctx, businessID)
	if err != nil {
		return "", err
	}

	perCategory := map[domain.PreferenceCategory]int{}
	var b strings.Builder
	for _, p := range prefs {
		if p.Confidence < confidenceThreshold {
			continue
		}
		if perCategory[p.Category] >= summaryPerCategory {
			continue
		}
		perCategory[p.Category]++
		verb := "Prefers"
		if p.IsAvoid() {
			verb = "Avoid"
		}
		fmt.Fprintf(&b, "- %s: %s %s (confidence %.0f%%)\n", p.Category, verb, p.Label(), p.Confidence*100)
	}
	return b.String(), nil
}

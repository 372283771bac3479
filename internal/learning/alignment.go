package learning

import (
	"context"
	"fmt"
	"strings"

	"cofounder/internal/domain"
	"cofounder/internal/repo"
)

// Checker scores a drafted decision against learned preferences before
// anything is sent. Advisory only; the lifecycle never consults it to
// block a transition.
type Checker struct {
	Repo repo.Repo
}

// Check starts from a neutral score and nudges it for every preference
// whose label appears in the proposed text. Avoided matches pull harder
// than positive ones and are reported as conflicts.
func (c Checker) Check(ctx context.Context, businessID, proposedText string, decisionType domain.DecisionType) (AlignmentReport, error) {
	prefs, err := c.Repo.ListPreferences(ctx, businessID)
	if err != nil {
		return AlignmentReport{}, err
	}

	report := AlignmentReport{AlignmentScore: alignmentNeutral}
	lower := strings.ToLower(proposedText)
	for _, p := range prefs {
		if !strings.Contains(lower, strings.ToLower(p.Label())) {
			continue
		}
		if p.IsAvoid() {
			report.AlignmentScore -= avoidWeight * p.Confidence
			report.Conflicts = append(report.Conflicts,
				fmt.Sprintf("matches avoided %s pattern %q (confidence %.0f%%)", p.Category, p.Label(), p.Confidence*100))
		} else {
			report.AlignmentScore += matchWeight * p.Confidence
		}
	}
	report.AlignmentScore = clamp01(report.AlignmentScore)

	if report.AlignmentScore < alignmentLowMark {
		for _, p := range prefs {
			if p.IsAvoid() {
				continue
			}
			report.Suggestions = append(report.Suggestions,
				fmt.Sprintf("lean %s for %s (confidence %.0f%%)", p.Label(), p.Category, p.Confidence*100))
			if len(report.Suggestions) == maxSuggestions {
				break
			}
		}
	}
	return report, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

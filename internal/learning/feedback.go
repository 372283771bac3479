package learning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cofounder/internal/domain"
	"cofounder/internal/events"
	"cofounder/internal/repo"
)

// Processor turns owner feedback on a decision into preference updates.
type Processor struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Extractor PatternExtractor
	Now       func() time.Time
}

func NewProcessor(db *sql.DB) Processor {
	return Processor{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Extractor: NewHeuristicExtractor(),
		Now:       time.Now,
	}
}

func (p Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// ProcessFeedback records the owner's reaction on the decision and applies
// the learning rules for every extracted pattern. Decision-not-found is the
// only hard error; each pattern is applied best effort so one bad update
// cannot block the rest. Repeated calls for one decision are independent
// learning events.
func (p Processor) ProcessFeedback(ctx context.Context, businessID, decisionID string, feedback domain.Feedback, actorID string) (FeedbackAnalysis, error) {
	analysis := FeedbackAnalysis{DecisionID: decisionID, Feedback: feedback}
	if !domain.ValidFeedback(feedback) {
		return analysis, fmt.Errorf("invalid feedback %q", feedback)
	}
	decision, err := p.Repo.GetDecision(ctx, decisionID)
	if err != nil {
		return analysis, err
	}
	if decision.BusinessID != businessID {
		return analysis, repo.ErrNotFound
	}
	if err := p.Repo.SetDecisionFeedback(ctx, decisionID, feedback); err != nil {
		return analysis, err
	}

	analysis.Patterns = p.Extractor.Extract(decision)
	for _, match := range analysis.Patterns {
		updates, err := p.applyPattern(ctx, businessID, match, feedback)
		if err != nil {
			// Best effort per pattern; skip and continue.
			continue
		}
		analysis.Updates = append(analysis.Updates, updates...)
	}

	p.logFeedbackEvent(ctx, businessID, decisionID, actorID, feedback, analysis)
	return analysis, nil
}

func (p Processor) applyPattern(ctx context.Context, businessID string, match PatternMatch, feedback domain.Feedback) ([]PreferenceUpdate, error) {
	existing, err := p.Repo.GetPreferenceByKey(ctx, businessID, match.Category, match.Pattern)
	found := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	var avoid *domain.LearnedPreference
	if feedback == domain.FeedbackRejected {
		prev, err := p.Repo.GetPreferenceByKey(ctx, businessID, match.Category, domain.AvoidPrefix+match.Pattern)
		if err == nil {
			avoid = &prev
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var updates []PreferenceUpdate
	now := p.now().UTC().Format(time.RFC3339)

	switch feedback {
	case domain.FeedbackApproved:
		if found {
			after, err := p.Repo.AdjustConfidence(ctx, tx, existing.ID, approveDelta, 0, now)
			if err != nil {
				return nil, err
			}
			if err := p.Repo.AppendExample(ctx, tx, existing.ID, match.Example, now); err != nil {
				return nil, err
			}
			updates = append(updates, PreferenceUpdate{
				Kind: UpdateIncreased, PreferenceID: existing.ID,
				Category: match.Category, Preference: match.Pattern,
				ConfidenceBefore: existing.Confidence, ConfidenceAfter: after,
			})
		} else {
			created, err := p.createPreference(ctx, tx, businessID, match.Category, match.Pattern, initialConfidence, match.Example, now)
			if err != nil {
				return nil, err
			}
			updates = append(updates, created)
		}

	case domain.FeedbackRejected:
		if found {
			after, err := p.Repo.AdjustConfidence(ctx, tx, existing.ID, rejectDelta, 0, now)
			if err != nil {
				return nil, err
			}
			if after <= 0 {
				if err := p.Repo.DeletePreference(ctx, tx, existing.ID); err != nil {
					return nil, err
				}
				updates = append(updates, PreferenceUpdate{
					Kind: UpdateDeleted, PreferenceID: existing.ID,
					Category: match.Category, Preference: match.Pattern,
					ConfidenceBefore: existing.Confidence, ConfidenceAfter: 0,
				})
			} else {
				updates = append(updates, PreferenceUpdate{
					Kind: UpdateDecreased, PreferenceID: existing.ID,
					Category: match.Category, Preference: match.Pattern,
					ConfidenceBefore: existing.Confidence, ConfidenceAfter: after,
				})
			}
		}
		avoidUpdate, err := p.reinforceAvoid(ctx, tx, businessID, match, avoid, now)
		if err != nil {
			return nil, err
		}
		updates = append(updates, avoidUpdate)

	case domain.FeedbackModified:
		if found {
			after, err := p.Repo.AdjustConfidence(ctx, tx, existing.ID, modifyDelta, modifyFloor, now)
			if err != nil {
				return nil, err
			}
			updates = append(updates, PreferenceUpdate{
				Kind: UpdateDecreased, PreferenceID: existing.ID,
				Category: match.Category, Preference: match.Pattern,
				ConfidenceBefore: existing.Confidence, ConfidenceAfter: after,
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updates, nil
}

// reinforceAvoid creates (or strengthens) the negative counterpart of a
// rejected pattern.
func (p Processor) reinforceAvoid(ctx context.Context, tx *sql.Tx, businessID string, match PatternMatch, existing *domain.LearnedPreference, now string) (PreferenceUpdate, error) {
	label := domain.AvoidPrefix + match.Pattern
	example := "rejected: " + match.Example
	if existing == nil {
		return p.createPreference(ctx, tx, businessID, match.Category, label, avoidConfidence, example, now)
	}
	after, err := p.Repo.AdjustConfidence(ctx, tx, existing.ID, approveDelta, 0, now)
	if err != nil {
		return PreferenceUpdate{}, err
	}
	if err := p.Repo.AppendExample(ctx, tx, existing.ID, example, now); err != nil {
		return PreferenceUpdate{}, err
	}
	return PreferenceUpdate{
		Kind: UpdateIncreased, PreferenceID: existing.ID,
		Category: match.Category, Preference: label,
		ConfidenceBefore: existing.Confidence, ConfidenceAfter: after,
	}, nil
}

func (p Processor) createPreference(ctx context.Context, tx *sql.Tx, businessID string, category domain.PreferenceCategory, label string, confidence float64, example, now string) (PreferenceUpdate, error) {
	pref := domain.LearnedPreference{
		ID:         uuid.New().String(),
		BusinessID: businessID,
		Category:   category,
		Preference: label,
		Confidence: confidence,
		Examples:   []string{example},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.Repo.InsertPreference(ctx, tx, pref); err != nil {
		return PreferenceUpdate{}, err
	}
	return PreferenceUpdate{
		Kind: UpdateCreated, PreferenceID: pref.ID,
		Category: category, Preference: label,
		ConfidenceBefore: 0, ConfidenceAfter: confidence,
	}, nil
}

func (p Processor) logFeedbackEvent(ctx context.Context, businessID, decisionID, actorID string, feedback domain.Feedback, analysis FeedbackAnalysis) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer tx.Rollback()
	err = p.Events.Append(ctx, tx, "decision.feedback", businessID, "decision", decisionID, actorID, events.EventPayload{
		"feedback": string(feedback),
		"patterns": len(analysis.Patterns),
		"updates":  len(analysis.Updates),
	})
	if err != nil {
		return
	}
	_ = tx.Commit()
}

package repo

import (
	"context"
	"database/sql"
	"strings"

	"cofounder/internal/domain"
)

func scanDecision(scan func(dest ...any) error) (domain.Decision, error) {
	var d domain.Decision
	var ctxJSON, reasoning, outcome, feedback sql.NullString
	err := scan(&d.ID, &d.BusinessID, &d.Type, &ctxJSON, &d.Decision, &reasoning, &outcome, &feedback, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if ctxJSON.Valid {
		d.ContextJSON = ctxJSON.String
	}
	if reasoning.Valid {
		d.Reasoning = reasoning.String
	}
	if outcome.Valid {
		d.Outcome = &outcome.String
	}
	if feedback.Valid {
		fb := domain.Feedback(feedback.String)
		d.Feedback = &fb
	}
	return d, nil
}

const decisionColumns = `id,business_id,type,context_json,decision,reasoning,outcome,feedback,created_at`

func (r Repo) InsertDecision(ctx context.Context, d domain.Decision) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO decisions(`+decisionColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		d.ID, d.BusinessID, d.Type, nullable(d.ContextJSON), d.Decision, nullable(d.Reasoning),
		nullableStringPtr(d.Outcome), nullableFeedback(d.Feedback), d.CreatedAt)
	return err
}

func (r Repo) GetDecision(ctx context.Context, id string) (domain.Decision, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE id=?`, id)
	return scanDecision(row.Scan)
}

func (r Repo) SetDecisionOutcome(ctx context.Context, id, outcome string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE decisions SET outcome=? WHERE id=?`, outcome, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetDecisionFeedback(ctx context.Context, id string, fb domain.Feedback) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE decisions SET feedback=? WHERE id=?`, string(fb), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FeedbackPending is the synthetic history filter matching decisions whose
// feedback is still unset.
const FeedbackPending = "pending"

type DecisionFilters struct {
	BusinessID string
	Type       domain.DecisionType
	Feedback   string // approved|rejected|modified|pending
	From       string
	To         string
	Limit      int
	Offset     int
}

func (r Repo) ListDecisions(ctx context.Context, f DecisionFilters) ([]domain.Decision, error) {
	clauses := []string{"business_id=?"}
	args := []any{f.BusinessID}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, string(f.Type))
	}
	switch f.Feedback {
	case "":
	case FeedbackPending:
		clauses = append(clauses, "feedback IS NULL")
	default:
		clauses = append(clauses, "feedback=?")
		args = append(args, f.Feedback)
	}
	if f.From != "" {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.To)
	}
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

// RecentDecisionsWithFeedback returns the newest decisions that have
// feedback set, up to limit. Used for the approval-rate insight.
func (r Repo) RecentDecisionsWithFeedback(ctx context.Context, businessID string, limit int) ([]domain.Decision, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE business_id=? AND feedback IS NOT NULL ORDER BY created_at DESC, id DESC LIMIT ?`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

func nullableFeedback(f *domain.Feedback) any {
	if f == nil {
		return nil
	}
	return string(*f)
}

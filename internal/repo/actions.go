package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"cofounder/internal/domain"
)

const actionColumns = `id,business_id,type,status,priority,reasoning,details_json,execution_result_json,created_at,updated_at,executed_at`

func scanAction(scan func(dest ...any) error) (domain.CoFounderAction, error) {
	var a domain.CoFounderAction
	var reasoning, result, executedAt sql.NullString
	var details string
	err := scan(&a.ID, &a.BusinessID, &a.Type, &a.Status, &a.Priority, &reasoning, &details, &result, &a.CreatedAt, &a.UpdatedAt, &executedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if reasoning.Valid {
		a.Reasoning = reasoning.String
	}
	if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
		return a, err
	}
	if result.Valid {
		var er domain.ExecutionResult
		if err := json.Unmarshal([]byte(result.String), &er); err != nil {
			return a, err
		}
		a.ExecutionResult = &er
	}
	if executedAt.Valid {
		a.ExecutedAt = &executedAt.String
	}
	return a, nil
}

func (r Repo) InsertAction(ctx context.Context, tx *sql.Tx, a domain.CoFounderAction) error {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return err
	}
	var result any
	if a.ExecutionResult != nil {
		b, err := json.Marshal(a.ExecutionResult)
		if err != nil {
			return err
		}
		result = string(b)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO actions(`+actionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.BusinessID, a.Type, a.Status, a.Priority, nullable(a.Reasoning), string(details), result,
		a.CreatedAt, a.UpdatedAt, nullableStringPtr(a.ExecutedAt))
	return err
}

func (r Repo) GetAction(ctx context.Context, id string) (domain.CoFounderAction, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id=?`, id)
	return scanAction(row.Scan)
}

// TransitionStatus moves an action from one of the given statuses to a new
// one. The conditional WHERE keeps concurrent transitions from double
// firing: zero affected rows means the action was not in an allowed state.
func (r Repo) TransitionStatus(ctx context.Context, tx *sql.Tx, id string, from []domain.ActionStatus, to domain.ActionStatus, now string) (bool, error) {
	placeholders := make([]string, len(from))
	args := []any{string(to), now}
	for i, s := range from {
		placeholders[i] = "?"
		args = append(args, string(s))
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, `UPDATE actions SET status=?, updated_at=? WHERE status IN (`+strings.Join(placeholders, ",")+`) AND id=?`, args...)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// BulkTransitionStatus applies one batched status change with a single
// timestamp. Already-transitioned ids still get updated_at refreshed when
// they are already in the target status.
func (r Repo) BulkTransitionStatus(ctx context.Context, tx *sql.Tx, ids []string, from []domain.ActionStatus, to domain.ActionStatus, now string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	fromPh := make([]string, 0, len(from)+1)
	args := []any{string(to), now}
	for _, s := range from {
		fromPh = append(fromPh, "?")
		args = append(args, string(s))
	}
	// target status included so repeats refresh updated_at without error
	fromPh = append(fromPh, "?")
	args = append(args, string(to))
	idPh := make([]string, len(ids))
	for i, id := range ids {
		idPh[i] = "?"
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx, `UPDATE actions SET status=?, updated_at=? WHERE status IN (`+strings.Join(fromPh, ",")+`) AND id IN (`+strings.Join(idPh, ",")+`)`, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MarkExecuted moves an approved action to executed with its result and
// stamps executed_at. The update is conditional on status=approved so a
// concurrent retry cannot double-execute.
func (r Repo) MarkExecuted(ctx context.Context, tx *sql.Tx, id string, result domain.ExecutionResult, now string) (bool, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE actions SET execution_result_json=?, status=?, executed_at=?, updated_at=? WHERE id=? AND status=?`,
		string(payload), string(domain.StatusExecuted), now, now, id, string(domain.StatusApproved))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RecordFailedExecution stores a failed attempt result while the action
// stays approved, so a later retry is possible.
func (r Repo) RecordFailedExecution(ctx context.Context, tx *sql.Tx, id string, result domain.ExecutionResult, now string) (bool, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE actions SET execution_result_json=?, updated_at=? WHERE id=? AND status=?`,
		string(payload), now, id, string(domain.StatusApproved))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type ActionFilters struct {
	BusinessID string
	Type       domain.ActionType
	Status     domain.ActionStatus
	Priority   domain.Priority
	Limit      int
}

func (r Repo) ListActions(ctx context.Context, f ActionFilters) ([]domain.CoFounderAction, error) {
	clauses := []string{"business_id=?"}
	args := []any{f.BusinessID}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, string(f.Priority))
	}
	query := `SELECT ` + actionColumns + ` FROM actions WHERE ` + strings.Join(clauses, " AND ") + `
ORDER BY CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CoFounderAction
	for rows.Next() {
		a, err := scanAction(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

// ListApprovedIDs returns ids of approved actions for a business, oldest
// first, up to limit.
func (r Repo) ListApprovedIDs(ctx context.Context, businessID string, limit int) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM actions WHERE business_id=? AND status=? ORDER BY created_at ASC, id ASC LIMIT ?`,
		businessID, string(domain.StatusApproved), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PendingReminderInvoiceIDs returns the invoice ids already covered by a
// pending payment_reminder action, for scan deduplication.
func (r Repo) PendingReminderInvoiceIDs(ctx context.Context, businessID string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT json_extract(details_json,'$.payment_reminder.invoice_id') FROM actions WHERE business_id=? AND type=? AND status=?`,
		businessID, string(domain.ActionPaymentReminder), string(domain.StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]bool{}
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id.Valid {
			res[id.String] = true
		}
	}
	return res, nil
}

type ActionStats struct {
	ByStatus map[string]int `json:"by_status"`
	ByType   map[string]int `json:"by_type"`
}

func (r Repo) CountActions(ctx context.Context, businessID string) (ActionStats, error) {
	stats := ActionStats{ByStatus: map[string]int{}, ByType: map[string]int{}}
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM actions WHERE business_id=? GROUP BY status`, businessID)
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return stats, err
		}
		stats.ByStatus[status] = count
	}
	rows.Close()
	rows, err = r.DB.QueryContext(ctx, `SELECT type, count(*) FROM actions WHERE business_id=? GROUP BY type`, businessID)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return stats, err
		}
		stats.ByType[typ] = count
	}
	return stats, nil
}

package repo

import (
	"context"
	"database/sql"

	"cofounder/internal/domain"
)

func (r Repo) InsertExecutionLog(ctx context.Context, l domain.ExecutionLog) error {
	success := 0
	if l.Success {
		success = 1
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO execution_log(id,business_id,action_id,action_type,success,message,external_id,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		l.ID, l.BusinessID, l.ActionID, l.ActionType, success, nullable(l.Message), nullable(l.ExternalID), l.CreatedAt)
	return err
}

func (r Repo) ListExecutionLog(ctx context.Context, businessID, actionID string, limit int) ([]domain.ExecutionLog, error) {
	query := `SELECT id,business_id,action_id,action_type,success,message,external_id,created_at FROM execution_log WHERE business_id=?`
	args := []any{businessID}
	if actionID != "" {
		query += ` AND action_id=?`
		args = append(args, actionID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ExecutionLog
	for rows.Next() {
		var l domain.ExecutionLog
		var success int
		var message, externalID sql.NullString
		if err := rows.Scan(&l.ID, &l.BusinessID, &l.ActionID, &l.ActionType, &success, &message, &externalID, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Success = success != 0
		if message.Valid {
			l.Message = message.String
		}
		if externalID.Valid {
			l.ExternalID = externalID.String
		}
		res = append(res, l)
	}
	return res, nil
}

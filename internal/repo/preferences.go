package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"cofounder/internal/domain"
)

const preferenceColumns = `id,business_id,category,preference,confidence,examples_json,created_at,updated_at`

func scanPreference(scan func(dest ...any) error) (domain.LearnedPreference, error) {
	var p domain.LearnedPreference
	var examples string
	err := scan(&p.ID, &p.BusinessID, &p.Category, &p.Preference, &p.Confidence, &examples, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(examples), &p.Examples); err != nil {
		return p, err
	}
	return p, nil
}

func (r Repo) InsertPreference(ctx context.Context, tx *sql.Tx, p domain.LearnedPreference) error {
	examples, err := json.Marshal(trimExamples(p.Examples))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO preferences(`+preferenceColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.BusinessID, p.Category, p.Preference, p.Confidence, string(examples), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetPreference(ctx context.Context, id string) (domain.LearnedPreference, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+preferenceColumns+` FROM preferences WHERE id=?`, id)
	return scanPreference(row.Scan)
}

// GetPreferenceByKey resolves the unique (business, category, preference) row.
func (r Repo) GetPreferenceByKey(ctx context.Context, businessID string, category domain.PreferenceCategory, preference string) (domain.LearnedPreference, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+preferenceColumns+` FROM preferences WHERE business_id=? AND category=? AND preference=?`,
		businessID, category, preference)
	return scanPreference(row.Scan)
}

// AdjustConfidence applies a clamped confidence delta in SQL so concurrent
// feedback events cannot lose updates, then returns the new value.
func (r Repo) AdjustConfidence(ctx context.Context, tx *sql.Tx, id string, delta, floor float64, now string) (float64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE preferences SET confidence = MIN(1.0, MAX(?, confidence + ?)), updated_at=? WHERE id=?`,
		floor, delta, now, id)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	var confidence float64
	if err := tx.QueryRowContext(ctx, `SELECT confidence FROM preferences WHERE id=?`, id).Scan(&confidence); err != nil {
		return 0, err
	}
	return confidence, nil
}

// SetConfidence overwrites a preference's confidence with an absolute
// value. Callers validate the range.
func (r Repo) SetConfidence(ctx context.Context, tx *sql.Tx, id string, confidence float64, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE preferences SET confidence=?, updated_at=? WHERE id=?`, confidence, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendExample adds an example snippet, keeping only the most recent ones.
func (r Repo) AppendExample(ctx context.Context, tx *sql.Tx, id, example, now string) error {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT examples_json FROM preferences WHERE id=?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var examples []string
	if err := json.Unmarshal([]byte(raw), &examples); err != nil {
		return err
	}
	examples = trimExamples(append(examples, example))
	data, err := json.Marshal(examples)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE preferences SET examples_json=?, updated_at=? WHERE id=?`, string(data), now, id)
	return err
}

func (r Repo) DeletePreference(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM preferences WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePreferenceByID removes a preference outside a transaction (forget).
func (r Repo) DeletePreferenceByID(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM preferences WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetCategory deletes every preference in a category for a business.
func (r Repo) ResetCategory(ctx context.Context, businessID string, category domain.PreferenceCategory) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM preferences WHERE business_id=? AND category=?`, businessID, category)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r Repo) ListPreferences(ctx context.Context, businessID string) ([]domain.LearnedPreference, error) {
	return r.listPreferences(ctx, `SELECT `+preferenceColumns+` FROM preferences WHERE business_id=? ORDER BY confidence DESC, updated_at DESC`, businessID)
}

func (r Repo) ListPreferencesByCategory(ctx context.Context, businessID string, category domain.PreferenceCategory) ([]domain.LearnedPreference, error) {
	return r.listPreferences(ctx, `SELECT `+preferenceColumns+` FROM preferences WHERE business_id=? AND category=? ORDER BY confidence DESC, updated_at DESC`, businessID, category)
}

func (r Repo) listPreferences(ctx context.Context, query string, args ...any) ([]domain.LearnedPreference, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LearnedPreference
	for rows.Next() {
		p, err := scanPreference(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func trimExamples(examples []string) []string {
	if examples == nil {
		return []string{}
	}
	if len(examples) > domain.MaxPreferenceExamples {
		return examples[len(examples)-domain.MaxPreferenceExamples:]
	}
	return examples
}

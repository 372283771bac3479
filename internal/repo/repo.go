package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cofounder/internal/config"
	"cofounder/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertBusiness(ctx context.Context, b domain.Business) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO businesses(id,name,industry,status,created_at) VALUES (?,?,?,?,?)`,
		b.ID, b.Name, nullable(b.Industry), b.Status, b.CreatedAt)
	return err
}

func (r Repo) GetBusiness(ctx context.Context, id string) (domain.Business, error) {
	var b domain.Business
	var industry sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,industry,status,created_at FROM businesses WHERE id=?`, id).
		Scan(&b.ID, &b.Name, &industry, &b.Status, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if industry.Valid {
		b.Industry = industry.String
	}
	return b, err
}

func (r Repo) SingleBusiness(ctx context.Context) (domain.Business, error) {
	items, err := r.ListBusinesses(ctx)
	if err != nil {
		return domain.Business{}, err
	}
	if len(items) == 0 {
		return domain.Business{}, ErrNotFound
	}
	if len(items) > 1 {
		return domain.Business{}, fmt.Errorf("multiple businesses exist; specify --business")
	}
	return items[0], nil
}

func (r Repo) ListBusinesses(ctx context.Context) ([]domain.Business, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(industry,'') AS industry,status,created_at FROM businesses ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Business
	for rows.Next() {
		var b domain.Business
		if err := rows.Scan(&b.ID, &b.Name, &b.Industry, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, nil
}

func (r Repo) UpsertBusinessConfig(ctx context.Context, businessID string, cfg *config.Config) error {
	return upsertBusinessConfig(ctx, r.DB, nil, businessID, cfg)
}

func (r Repo) UpsertBusinessConfigTx(ctx context.Context, tx *sql.Tx, businessID string, cfg *config.Config) error {
	return upsertBusinessConfig(ctx, nil, tx, businessID, cfg)
}

func upsertBusinessConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, businessID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Business.ID = businessID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO business_configs(business_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(business_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, businessID, string(payload), now, now)
	return err
}

func (r Repo) GetBusinessConfig(ctx context.Context, businessID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM business_configs WHERE business_id=?`, businessID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Business.ID == "" {
		cfg.Business.ID = businessID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, businessID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if businessID != "" {
		clauses = append(clauses, "business_id=?")
		args = append(args, businessID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(business_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.BusinessID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

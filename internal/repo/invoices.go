package repo

import (
	"context"
	"database/sql"

	"cofounder/internal/domain"
)

func (r Repo) InsertInvoice(ctx context.Context, inv domain.Invoice) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO invoices(id,business_id,contact,contact_name,amount_cents,status,sent_at,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		inv.ID, inv.BusinessID, inv.Contact, nullable(inv.ContactName), inv.AmountCents, inv.Status, nullableStringPtr(inv.SentAt), inv.CreatedAt)
	return err
}

func (r Repo) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,business_id,contact,contact_name,amount_cents,status,sent_at,created_at FROM invoices WHERE id=?`, id)
	return scanInvoice(row.Scan)
}

func (r Repo) SetInvoiceStatus(ctx context.Context, id, status string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE invoices SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListInvoices(ctx context.Context, businessID, status string) ([]domain.Invoice, error) {
	query := `SELECT id,business_id,contact,contact_name,amount_cents,status,sent_at,created_at FROM invoices WHERE business_id=?`
	args := []any{businessID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, nil
}

// ListUnpaidInvoices returns sent invoices (the scan decides which are
// overdue from sent_at/created_at).
func (r Repo) ListUnpaidInvoices(ctx context.Context, businessID string) ([]domain.Invoice, error) {
	return r.ListInvoices(ctx, businessID, "sent")
}

func scanInvoice(scan func(dest ...any) error) (domain.Invoice, error) {
	var inv domain.Invoice
	var contactName, sentAt sql.NullString
	err := scan(&inv.ID, &inv.BusinessID, &inv.Contact, &contactName, &inv.AmountCents, &inv.Status, &sentAt, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	if err != nil {
		return inv, err
	}
	if contactName.Valid {
		inv.ContactName = contactName.String
	}
	if sentAt.Valid {
		inv.SentAt = &sentAt.String
	}
	return inv, nil
}

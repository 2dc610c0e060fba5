package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ehr/hisledger/internal/platform/db"
	"github.com/ehr/hisledger/pkg/apperr"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const accountCols = `id, encounter_id, patient_id, account_no, status, total_amount,
	discount_amount, net_amount, amount_paid, balance, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.EncounterID, &a.PatientID, &a.AccountNo, &a.Status, &a.TotalAmount,
		&a.DiscountAmount, &a.NetAmount, &a.AmountPaid, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) GetOrCreateAccount(ctx context.Context, encounterID, patientID int64, accountNo string) (*Account, error) {
	// the no-op update makes the conflicting row part of the result and
	// locks it like SELECT ... FOR UPDATE
	return scanAccount(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing_accounts (encounter_id, patient_id, account_no, status)
		VALUES ($1, $2, $3, 'open')
		ON CONFLICT (encounter_id) DO UPDATE SET updated_at = billing_accounts.updated_at
		RETURNING `+accountCols, encounterID, patientID, accountNo))
}

func (r *repoPG) GetAccount(ctx context.Context, encounterID int64) (*Account, error) {
	a, err := scanAccount(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountCols+` FROM billing_accounts WHERE encounter_id = $1`, encounterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("billing_account", "no billing account for encounter %d", encounterID)
	}
	return a, err
}

func (r *repoPG) LockAccount(ctx context.Context, encounterID int64) (*Account, error) {
	a, err := scanAccount(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountCols+` FROM billing_accounts WHERE encounter_id = $1 FOR UPDATE`, encounterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("billing_account", "no billing account for encounter %d", encounterID)
	}
	return a, err
}

func (r *repoPG) UpdateAccount(ctx context.Context, a *Account) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE billing_accounts SET status = $2, total_amount = $3, discount_amount = $4,
			net_amount = $5, amount_paid = $6, balance = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Status, a.TotalAmount, a.DiscountAmount,
		a.NetAmount, a.AmountPaid, a.Balance).Scan(&a.UpdatedAt)
}

const itemCols = `id, account_id, encounter_id, item_type, reference_id, service_id, description,
	quantity, unit_price, amount, discount_amount, net_amount, status, performed_by, posted_by,
	posted_at, paid_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.AccountID, &it.EncounterID, &it.ItemType, &it.ReferenceID, &it.ServiceID, &it.Description,
		&it.Quantity, &it.UnitPrice, &it.Amount, &it.DiscountAmount, &it.NetAmount, &it.Status, &it.PerformedBy, &it.PostedBy,
		&it.PostedAt, &it.PaidAt)
	return &it, err
}

func (r *repoPG) InsertItem(ctx context.Context, it *Item) (bool, error) {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing_items (account_id, encounter_id, item_type, reference_id, service_id,
			description, quantity, unit_price, amount, discount_amount, net_amount, status,
			performed_by, posted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING
		RETURNING id, posted_at`,
		it.AccountID, it.EncounterID, it.ItemType, it.ReferenceID, it.ServiceID,
		it.Description, it.Quantity, it.UnitPrice, it.Amount, it.DiscountAmount, it.NetAmount, it.Status,
		it.PerformedBy, it.PostedBy).Scan(&it.ID, &it.PostedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *repoPG) FindActiveItem(ctx context.Context, encounterID int64, itemType string, referenceID *int64) (*Item, error) {
	it, err := scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM billing_items
		WHERE encounter_id = $1 AND item_type = $2 AND status <> 'cancelled'
			AND ($3::bigint IS NULL OR reference_id = $3)
		ORDER BY id LIMIT 1`, encounterID, itemType, referenceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

func (r *repoPG) GetItem(ctx context.Context, id int64) (*Item, error) {
	it, err := scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM billing_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("billing_item", id)
	}
	return it, err
}

func (r *repoPG) UpdateItemStatus(ctx context.Context, id int64, status string, paidAt *time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE billing_items SET status = $2, paid_at = $3 WHERE id = $1`, id, status, paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("billing_item", id)
	}
	return nil
}

func (r *repoPG) MarkItemsPaid(ctx context.Context, encounterID int64, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE billing_items SET status = 'paid', paid_at = $2
		WHERE encounter_id = $1 AND status = 'unpaid'`, encounterID, at)
	return err
}

func (r *repoPG) ListItems(ctx context.Context, encounterID int64, limit, offset int) ([]*Item, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing_items WHERE encounter_id = $1`, encounterID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+itemCols+` FROM billing_items
		WHERE encounter_id = $1 ORDER BY posted_at, id LIMIT $2 OFFSET $3`, encounterID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func (r *repoPG) SumActiveNet(ctx context.Context, encounterID int64) (decimal.Decimal, int, error) {
	var (
		total decimal.Decimal
		count int
	)
	err := r.conn(ctx).QueryRow(ctx, `SELECT COALESCE(SUM(net_amount), 0), COUNT(*) FROM billing_items
		WHERE encounter_id = $1 AND status <> 'cancelled'`, encounterID).Scan(&total, &count)
	return total, count, err
}

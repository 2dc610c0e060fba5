package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

const drugCols = `id, name, generic_name, therapeutic_class, form, strength,
	stock_quantity, reorder_level, unit_price, is_active, created_at, updated_at`

func scanDrug(row pgx.Row) (*Drug, error) {
	var d Drug
	err := row.Scan(&d.ID, &d.Name, &d.GenericName, &d.TherapeuticClass, &d.Form, &d.Strength,
		&d.StockQuantity, &d.ReorderLevel, &d.UnitPrice, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *repoPG) GetDrug(ctx context.Context, id int64) (*Drug, error) {
	d, err := scanDrug(r.conn(ctx).QueryRow(ctx, `SELECT `+drugCols+` FROM drugs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("drug", id)
	}
	return d, err
}

func (r *repoPG) DecrementStock(ctx context.Context, drugID int64, qty int) (int, int, error) {
	var after int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE drugs SET stock_quantity = stock_quantity - $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity >= $2
		RETURNING stock_quantity`, drugID, qty).Scan(&after)
	if err == nil {
		return after + qty, after, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, err
	}

	// nothing updated: either the drug is missing or stock is short
	d, getErr := r.GetDrug(ctx, drugID)
	if getErr != nil {
		return 0, 0, getErr
	}
	return d.StockQuantity, d.StockQuantity, apperr.InsufficientStock(d.ID, d.Name, qty, d.StockQuantity)
}

func (r *repoPG) IncrementStock(ctx context.Context, drugID int64, qty int) (int, int, error) {
	var after int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE drugs SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING stock_quantity`, drugID, qty).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, apperr.NotFound("drug", drugID)
	}
	if err != nil {
		return 0, 0, err
	}
	return after - qty, after, nil
}

func (r *repoPG) AppendMovement(ctx context.Context, m *StockMovement) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO stock_movements (drug_id, prescription_id, movement_type, quantity,
			stock_before, stock_after, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		m.DrugID, m.PrescriptionID, m.MovementType, m.Quantity,
		m.StockBefore, m.StockAfter, m.ActorID).Scan(&m.ID, &m.CreatedAt)
}

const movementCols = `id, drug_id, prescription_id, movement_type, quantity,
	stock_before, stock_after, actor_id, created_at`

func (r *repoPG) ListMovements(ctx context.Context, drugID int64, limit, offset int) ([]*StockMovement, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE drug_id = $1`, drugID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+movementCols+` FROM stock_movements
		WHERE drug_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`, drugID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.DrugID, &m.PrescriptionID, &m.MovementType, &m.Quantity,
			&m.StockBefore, &m.StockAfter, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &m)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListBelowReorder(ctx context.Context) ([]*Drug, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+drugCols+` FROM drugs
		WHERE is_active AND stock_quantity <= reorder_level ORDER BY stock_quantity, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drugs []*Drug
	for rows.Next() {
		d, err := scanDrug(rows)
		if err != nil {
			return nil, err
		}
		drugs = append(drugs, d)
	}
	return drugs, rows.Err()
}

package laborder

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

const orderCols = `id, consultation_id, patient_id, test_id, test_name, priority, status, notes,
	submitted_at, expected_completion_at, ordered_by, created_at, updated_at`

func scanOrder(row pgx.Row) (*LabOrder, error) {
	var o LabOrder
	err := row.Scan(&o.ID, &o.ConsultationID, &o.PatientID, &o.TestID, &o.TestName, &o.Priority, &o.Status, &o.Notes,
		&o.SubmittedAt, &o.ExpectedCompletionAt, &o.OrderedBy, &o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

func (r *repoPG) Create(ctx context.Context, o *LabOrder) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_orders (consultation_id, patient_id, test_id, test_name, priority, status, notes,
			submitted_at, expected_completion_at, ordered_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		o.ConsultationID, o.PatientID, o.TestID, o.TestName, o.Priority, o.Status, o.Notes,
		o.SubmittedAt, o.ExpectedCompletionAt, o.OrderedBy).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*LabOrder, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM lab_orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lab order", id)
	}
	return o, err
}

func (r *repoPG) GetForUpdate(ctx context.Context, id int64) (*LabOrder, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM lab_orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lab order", id)
	}
	return o, err
}

func (r *repoPG) Update(ctx context.Context, o *LabOrder) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE lab_orders SET priority = $2, status = $3, notes = $4, submitted_at = $5,
			expected_completion_at = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID, o.Priority, o.Status, o.Notes, o.SubmittedAt, o.ExpectedCompletionAt).Scan(&o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("lab order", o.ID)
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM lab_orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lab order", id)
	}
	return nil
}

func (r *repoPG) ListByConsultation(ctx context.Context, consultationID int64) ([]*LabOrder, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+orderCols+` FROM lab_orders
		WHERE consultation_id = $1 ORDER BY id`, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*LabOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (r *repoPG) GetTest(ctx context.Context, id int64) (*LabTest, error) {
	var t LabTest
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, code, name, COALESCE(turnaround_hours, 0) FROM lab_tests WHERE id = $1`, id).
		Scan(&t.ID, &t.Code, &t.Name, &t.TurnaroundHours)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lab test", id)
	}
	return &t, err
}

func (r *repoPG) FindTestByName(ctx context.Context, name string) (*LabTest, error) {
	var t LabTest
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, code, name, COALESCE(turnaround_hours, 0) FROM lab_tests
		WHERE lower(name) = lower($1) ORDER BY id LIMIT 1`, name).
		Scan(&t.ID, &t.Code, &t.Name, &t.TurnaroundHours)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &t, err
}

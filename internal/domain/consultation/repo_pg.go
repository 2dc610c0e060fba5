package consultation

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

const consultCols = `id, patient_id, physician_id, consultation_type, status, started_at,
	completed_at, completed_by, reopened_at, created_at, updated_at`

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	err := row.Scan(&c.ID, &c.PatientID, &c.PhysicianID, &c.ConsultationType, &c.Status, &c.StartedAt,
		&c.CompletedAt, &c.CompletedBy, &c.ReopenedAt, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *repoPG) get(ctx context.Context, id int64, lock string) (*Consultation, error) {
	c, err := scanConsultation(r.conn(ctx).QueryRow(ctx, `SELECT `+consultCols+` FROM consultations WHERE id = $1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("consultation", id)
	}
	return c, err
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Consultation, error) {
	return r.get(ctx, id, "")
}

func (r *repoPG) GetForUpdate(ctx context.Context, id int64) (*Consultation, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *repoPG) GetForShare(ctx context.Context, id int64) (*Consultation, error) {
	return r.get(ctx, id, " FOR SHARE")
}

func (r *repoPG) Update(ctx context.Context, c *Consultation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE consultations SET status = $2, started_at = $3, completed_at = $4, completed_by = $5,
			reopened_at = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Status, c.StartedAt, c.CompletedAt, c.CompletedBy, c.ReopenedAt).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("consultation", c.ID)
	}
	return err
}

func (r *repoPG) GetNote(ctx context.Context, consultationID int64) (*ClinicalNote, error) {
	var n ClinicalNote
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, consultation_id, subjective, objective, assessment, plan, is_draft, finalized_at,
			created_at, updated_at
		FROM clinical_notes WHERE consultation_id = $1`, consultationID).
		Scan(&n.ID, &n.ConsultationID, &n.Subjective, &n.Objective, &n.Assessment, &n.Plan, &n.IsDraft, &n.FinalizedAt,
			&n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repoPG) UpdateNote(ctx context.Context, n *ClinicalNote) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical_notes SET is_draft = $2, finalized_at = $3, updated_at = NOW()
		WHERE id = $1`, n.ID, n.IsDraft, n.FinalizedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("clinical note", n.ID)
	}
	return nil
}

package prescription

import (
	"context"
	"errors"
	"strings"

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

const rxCols = `id, consultation_id, patient_id, drug_id, drug_name, dosage, frequency, duration,
	quantity, instructions, instant_dispensing, stock_reserved, stock_reserved_at, status,
	interaction_warnings, prescribed_by, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.ConsultationID, &p.PatientID, &p.DrugID, &p.DrugName, &p.Dosage, &p.Frequency, &p.Duration,
		&p.Quantity, &p.Instructions, &p.InstantDispensing, &p.StockReserved, &p.StockReservedAt, &p.Status,
		&p.InteractionWarnings, &p.PrescribedBy, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (consultation_id, patient_id, drug_id, drug_name, dosage, frequency,
			duration, quantity, instructions, instant_dispensing, stock_reserved, stock_reserved_at,
			status, interaction_warnings, prescribed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`,
		p.ConsultationID, p.PatientID, p.DrugID, p.DrugName, p.Dosage, p.Frequency,
		p.Duration, p.Quantity, p.Instructions, p.InstantDispensing, p.StockReserved, p.StockReservedAt,
		p.Status, p.InteractionWarnings, p.PrescribedBy).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("prescription", id)
	}
	return p, err
}

func (r *repoPG) GetForUpdate(ctx context.Context, id int64) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("prescription", id)
	}
	return p, err
}

func (r *repoPG) Update(ctx context.Context, p *Prescription) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE prescriptions SET drug_id = $2, drug_name = $3, dosage = $4, frequency = $5,
			duration = $6, quantity = $7, instructions = $8, instant_dispensing = $9,
			stock_reserved = $10, stock_reserved_at = $11, status = $12, interaction_warnings = $13,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.DrugID, p.DrugName, p.Dosage, p.Frequency,
		p.Duration, p.Quantity, p.Instructions, p.InstantDispensing,
		p.StockReserved, p.StockReservedAt, p.Status, p.InteractionWarnings).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("prescription", p.ID)
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM prescriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("prescription", id)
	}
	return nil
}

func (r *repoPG) ListByConsultation(ctx context.Context, consultationID int64) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+rxCols+` FROM prescriptions
		WHERE consultation_id = $1 ORDER BY id`, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) CreateDispensation(ctx context.Context, d *Dispensation) (bool, error) {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO dispensations (prescription_id, drug_id, quantity, dispensed_at, dispensed_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (prescription_id) DO NOTHING
		RETURNING id`,
		d.PrescriptionID, d.DrugID, d.Quantity, d.DispensedAt, d.DispensedBy).Scan(&d.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *repoPG) ListDispensations(ctx context.Context, consultationID int64) ([]*Dispensation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.id, d.prescription_id, d.drug_id, d.quantity, d.dispensed_at, d.dispensed_by
		FROM dispensations d JOIN prescriptions p ON p.id = d.prescription_id
		WHERE p.consultation_id = $1 ORDER BY d.id`, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Dispensation
	for rows.Next() {
		var d Dispensation
		if err := rows.Scan(&d.ID, &d.PrescriptionID, &d.DrugID, &d.Quantity, &d.DispensedAt, &d.DispensedBy); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}

func (r *repoPG) PatientAllergies(ctx context.Context, patientID int64) ([]string, error) {
	var allergies []string
	err := r.conn(ctx).QueryRow(ctx, `SELECT COALESCE(allergies, '{}') FROM patients WHERE id = $1`, patientID).Scan(&allergies)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient", patientID)
	}
	return allergies, err
}

func (r *repoPG) ActiveDrugNames(ctx context.Context, patientID, excludeID int64) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT p.drug_name, COALESCE(d.generic_name, '')
		FROM prescriptions p LEFT JOIN drugs d ON d.id = p.drug_id
		WHERE p.patient_id = $1 AND p.id <> $2 AND p.status <> 'cancelled'`, patientID, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name, generic string
		if err := rows.Scan(&name, &generic); err != nil {
			return nil, err
		}
		names = append(names, name)
		if generic != "" {
			names = append(names, generic)
		}
	}
	return names, rows.Err()
}

func (r *repoPG) FindInteractions(ctx context.Context, names, others []string) ([]InteractionWarning, error) {
	if len(names) == 0 || len(others) == 0 {
		return nil, nil
	}
	lowerNames := lowerAll(names)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT drug_a, drug_b, severity, description FROM drug_interactions
		WHERE (lower(drug_a) = ANY($1) AND lower(drug_b) = ANY($2))
		   OR (lower(drug_b) = ANY($1) AND lower(drug_a) = ANY($2))
		ORDER BY id`, lowerNames, lowerAll(others))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	self := make(map[string]bool, len(lowerNames))
	for _, n := range lowerNames {
		self[n] = true
	}

	var warnings []InteractionWarning
	for rows.Next() {
		var a, b string
		var w InteractionWarning
		if err := rows.Scan(&a, &b, &w.Severity, &w.Description); err != nil {
			return nil, err
		}
		w.Drug = b
		if !self[strings.ToLower(a)] {
			w.Drug = a
		}
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

package prescription

import "context"

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id int64) (*Prescription, error)
	// GetForUpdate locks the prescription row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id int64) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	Delete(ctx context.Context, id int64) error
	ListByConsultation(ctx context.Context, consultationID int64) ([]*Prescription, error)

	// CreateDispensation reports false when the prescription was already
	// dispensed.
	CreateDispensation(ctx context.Context, d *Dispensation) (bool, error)
	ListDispensations(ctx context.Context, consultationID int64) ([]*Dispensation, error)

	// PatientAllergies returns the patient's recorded allergy strings.
	PatientAllergies(ctx context.Context, patientID int64) ([]string, error)
	// ActiveDrugNames lists the drugs on the patient's non-cancelled
	// prescriptions other than excludeID.
	ActiveDrugNames(ctx context.Context, patientID, excludeID int64) ([]string, error)
	// FindInteractions returns the known interactions between any of names
	// and any of others.
	FindInteractions(ctx context.Context, names, others []string) ([]InteractionWarning, error)
}

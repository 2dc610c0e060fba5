package prescription

import (
	"time"

	"github.com/ehr/hisledger/pkg/apperr"
)

const (
	StatusPending   = "pending"
	StatusDispensed = "dispensed"
	StatusCancelled = "cancelled"
)

// Prescription maps to the prescriptions table. StockReserved is true while
// Quantity units of DrugID are held out of stock for this prescription.
type Prescription struct {
	ID                  int64                `db:"id" json:"id"`
	ConsultationID      int64                `db:"consultation_id" json:"consultation_id"`
	PatientID           int64                `db:"patient_id" json:"patient_id"`
	DrugID              *int64               `db:"drug_id" json:"drug_id,omitempty"`
	DrugName            string               `db:"drug_name" json:"drug_name"`
	Dosage              string               `db:"dosage" json:"dosage"`
	Frequency           string               `db:"frequency" json:"frequency"`
	Duration            *string              `db:"duration" json:"duration,omitempty"`
	Quantity            int                  `db:"quantity" json:"quantity"`
	Instructions        *string              `db:"instructions" json:"instructions,omitempty"`
	InstantDispensing   bool                 `db:"instant_dispensing" json:"instant_dispensing"`
	StockReserved       bool                 `db:"stock_reserved" json:"stock_reserved"`
	StockReservedAt     *time.Time           `db:"stock_reserved_at" json:"stock_reserved_at,omitempty"`
	Status              string               `db:"status" json:"status"`
	InteractionWarnings []InteractionWarning `db:"interaction_warnings" json:"interaction_warnings,omitempty"`
	PrescribedBy        string               `db:"prescribed_by" json:"prescribed_by"`
	CreatedAt           time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time            `db:"updated_at" json:"updated_at"`
}

// InteractionWarning is advisory; it never blocks a prescription.
type InteractionWarning struct {
	Drug        string `json:"drug"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Dispensation maps to the dispensations table, one per prescription.
type Dispensation struct {
	ID             int64     `db:"id" json:"id"`
	PrescriptionID int64     `db:"prescription_id" json:"prescription_id"`
	DrugID         int64     `db:"drug_id" json:"drug_id"`
	Quantity       int       `db:"quantity" json:"quantity"`
	DispensedAt    time.Time `db:"dispensed_at" json:"dispensed_at"`
	DispensedBy    string    `db:"dispensed_by" json:"dispensed_by"`
}

// Input carries the editable fields of a prescription.
type Input struct {
	ConsultationID    int64   `json:"consultation_id" validate:"required"`
	DrugID            *int64  `json:"drug_id,omitempty"`
	DrugName          string  `json:"drug_name,omitempty"`
	Dosage            string  `json:"dosage" validate:"required"`
	Frequency         string  `json:"frequency" validate:"required"`
	Duration          *string `json:"duration,omitempty"`
	Quantity          int     `json:"quantity" validate:"gt=0"`
	Instructions      *string `json:"instructions,omitempty"`
	InstantDispensing bool    `json:"instant_dispensing"`
}

func (in Input) validate() error {
	if in.ConsultationID <= 0 {
		return apperr.Validation("consultation_id", "consultation_id is required")
	}
	if (in.DrugID == nil || *in.DrugID <= 0) && in.DrugName == "" {
		return apperr.Validation("drug_id", "drug_id or drug_name is required")
	}
	if in.InstantDispensing && (in.DrugID == nil || *in.DrugID <= 0) {
		return apperr.Validation("drug_id", "instant dispensing requires a stocked drug")
	}
	if in.Dosage == "" {
		return apperr.Validation("dosage", "dosage is required")
	}
	if in.Frequency == "" {
		return apperr.Validation("frequency", "frequency is required")
	}
	if in.Quantity <= 0 {
		return apperr.Validationf("quantity", "quantity must be positive, got %d", in.Quantity)
	}
	return nil
}

func sameDrug(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

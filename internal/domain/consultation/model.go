package consultation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ehr/hisledger/internal/domain/billing"
	"github.com/ehr/hisledger/internal/domain/laborder"
	"github.com/ehr/hisledger/internal/domain/prescription"
)

const (
	StatusScheduled  = "SCHEDULED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
)

const (
	TypeOPD        = "OPD"
	TypeSpecialist = "SPECIALIST"
	TypeEmergency  = "EMERGENCY"
	TypeFollowUp   = "FOLLOW_UP"
)

// Consultation is one clinical encounter. Its id is the encounter id used
// by billing.
type Consultation struct {
	ID               int64      `db:"id" json:"id"`
	PatientID        int64      `db:"patient_id" json:"patient_id"`
	PhysicianID      string     `db:"physician_id" json:"physician_id"`
	ConsultationType string     `db:"consultation_type" json:"consultation_type"`
	Status           string     `db:"status" json:"status"`
	StartedAt        *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CompletedBy      *string    `db:"completed_by" json:"completed_by,omitempty"`
	ReopenedAt       *time.Time `db:"reopened_at" json:"reopened_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// ClinicalNote is the SOAP note written during a consultation.
type ClinicalNote struct {
	ID             int64      `db:"id" json:"id"`
	ConsultationID int64      `db:"consultation_id" json:"consultation_id"`
	Subjective     *string    `db:"subjective" json:"subjective,omitempty"`
	Objective      *string    `db:"objective" json:"objective,omitempty"`
	Assessment     *string    `db:"assessment" json:"assessment,omitempty"`
	Plan           *string    `db:"plan" json:"plan,omitempty"`
	IsDraft        bool       `db:"is_draft" json:"is_draft"`
	FinalizedAt    *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// SkippedCharge is a billing post that completion gave up on. The
// consultation still completes.
type SkippedCharge struct {
	ItemType    string `json:"item_type"`
	ReferenceID int64  `json:"reference_id"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

type CompletionResult struct {
	Consultation           *Consultation                `json:"consultation"`
	SOAPNote               *ClinicalNote                `json:"soap_note"`
	PrescriptionsProcessed int                          `json:"prescriptions_processed"`
	LabOrdersSubmitted     int                          `json:"lab_orders_submitted"`
	Dispensations          []*prescription.Dispensation `json:"dispensations"`
	BillingItems           []*billing.Item              `json:"billing_items"`
	SkippedCharges         []SkippedCharge              `json:"skipped_charges"`
}

// PlannedCharge is a priced charge completion would post.
type PlannedCharge struct {
	ItemType    string          `json:"item_type"`
	ReferenceID *int64          `json:"reference_id,omitempty"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Summary previews what completing the consultation would do.
type Summary struct {
	Consultation          *Consultation                `json:"consultation"`
	ToDispense            []*prescription.Prescription `json:"to_dispense"`
	ToSubmit              []*laborder.LabOrder         `json:"to_submit"`
	Charges               []PlannedCharge              `json:"charges"`
	Skipped               []SkippedCharge              `json:"skipped"`
	HasConsultationCharge bool                         `json:"has_consultation_charge"`
	CurrentTotal          decimal.Decimal              `json:"current_total"`
	ProjectedTotal        decimal.Decimal              `json:"projected_total"`
}

func planned(c billing.Charge) PlannedCharge {
	return PlannedCharge{
		ItemType:    c.ItemType,
		ReferenceID: c.ReferenceID,
		Description: c.Description,
		Quantity:    c.Quantity,
		UnitPrice:   c.UnitPrice,
		Amount:      c.Amount(),
	}
}

package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MovementReservation = "RESERVATION"
	MovementReturn      = "RETURN"
)

// Drug maps to the drugs table. StockQuantity is the dispensable quantity
// on hand and never goes below zero.
type Drug struct {
	ID               int64           `db:"id" json:"id"`
	Name             string          `db:"name" json:"name"`
	GenericName      *string         `db:"generic_name" json:"generic_name,omitempty"`
	TherapeuticClass *string         `db:"therapeutic_class" json:"therapeutic_class,omitempty"`
	Form             *string         `db:"form" json:"form,omitempty"`
	Strength         *string         `db:"strength" json:"strength,omitempty"`
	StockQuantity    int             `db:"stock_quantity" json:"stock_quantity"`
	ReorderLevel     int             `db:"reorder_level" json:"reorder_level"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unit_price"`
	IsActive         bool            `db:"is_active" json:"is_active"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// BelowReorder reports whether stock has fallen to the reorder threshold.
func (d *Drug) BelowReorder() bool {
	return d.StockQuantity <= d.ReorderLevel
}

// StockMovement is one append-only audit row per reservation or return.
type StockMovement struct {
	ID             int64     `db:"id" json:"id"`
	DrugID         int64     `db:"drug_id" json:"drug_id"`
	PrescriptionID *int64    `db:"prescription_id" json:"prescription_id,omitempty"`
	MovementType   string    `db:"movement_type" json:"movement_type"`
	Quantity       int       `db:"quantity" json:"quantity"`
	StockBefore    int       `db:"stock_before" json:"stock_before"`
	StockAfter     int       `db:"stock_after" json:"stock_after"`
	ActorID        string    `db:"actor_id" json:"actor_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Reservation identifies a quantity of a drug held for a prescription.
type Reservation struct {
	DrugID         int64
	Quantity       int
	PrescriptionID int64
	ActorID        string
}

// LowStockAlert is published when a reservation leaves a drug at or below
// its reorder level.
type LowStockAlert struct {
	DrugID        int64     `json:"drug_id"`
	DrugName      string    `json:"drug_name"`
	StockQuantity int       `json:"stock_quantity"`
	ReorderLevel  int       `json:"reorder_level"`
	At            time.Time `json:"at"`
}

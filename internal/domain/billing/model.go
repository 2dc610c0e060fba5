package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ehr/hisledger/pkg/apperr"
)

// Billing item types.
const (
	ItemConsultation = "consultation"
	ItemLabTest      = "lab_test"
	ItemImaging      = "imaging"
	ItemProcedure    = "procedure"
	ItemPharmacy     = "pharmacy"
	ItemBed          = "bed_charge"
)

var validItemTypes = map[string]bool{
	ItemConsultation: true, ItemLabTest: true, ItemImaging: true,
	ItemProcedure: true, ItemPharmacy: true, ItemBed: true,
}

// referencedItemTypes are billed at most once per originating clinical
// event. Bed charges may repeat for the same bed.
var referencedItemTypes = map[string]bool{
	ItemLabTest: true, ItemImaging: true, ItemProcedure: true, ItemPharmacy: true,
}

const (
	AccountOpen   = "open"
	AccountClosed = "closed"
)

const (
	ItemUnpaid    = "unpaid"
	ItemPaid      = "paid"
	ItemCancelled = "cancelled"
)

// Account maps to the billing_accounts table. Balance columns are derived
// from the items and must only be changed through ApplyTotals.
type Account struct {
	ID             int64           `db:"id" json:"id"`
	EncounterID    int64           `db:"encounter_id" json:"encounter_id"`
	PatientID      int64           `db:"patient_id" json:"patient_id"`
	AccountNo      string          `db:"account_no" json:"account_no"`
	Status         string          `db:"status" json:"status"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	NetAmount      decimal.Decimal `db:"net_amount" json:"net_amount"`
	AmountPaid     decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	Balance        decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// AccountNumber derives the account number for an encounter.
func AccountNumber(encounterID int64) string {
	return fmt.Sprintf("BA%08d", encounterID)
}

// ApplyTotals sets the total to the sum of the non-cancelled item nets and
// re-derives net and balance from it.
func (a *Account) ApplyTotals(total decimal.Decimal) {
	a.TotalAmount = total
	a.NetAmount = total.Sub(a.DiscountAmount)
	a.Balance = a.NetAmount.Sub(a.AmountPaid)
}

// Item maps to the billing_items table.
type Item struct {
	ID             int64           `db:"id" json:"id"`
	AccountID      int64           `db:"account_id" json:"account_id"`
	EncounterID    int64           `db:"encounter_id" json:"encounter_id"`
	ItemType       string          `db:"item_type" json:"item_type"`
	ReferenceID    *int64          `db:"reference_id" json:"reference_id,omitempty"`
	ServiceID      *int64          `db:"service_id" json:"service_id,omitempty"`
	Description    string          `db:"description" json:"description"`
	Quantity       int             `db:"quantity" json:"quantity"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	NetAmount      decimal.Decimal `db:"net_amount" json:"net_amount"`
	Status         string          `db:"status" json:"status"`
	PerformedBy    *string         `db:"performed_by" json:"performed_by,omitempty"`
	PostedBy       string          `db:"posted_by" json:"posted_by"`
	PostedAt       time.Time       `db:"posted_at" json:"posted_at"`
	PaidAt         *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
}

// Charge is a request to post one billing item.
type Charge struct {
	EncounterID int64
	ItemType    string
	ReferenceID *int64
	ServiceID   *int64
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	PerformedBy *string
	ActorID     string
}

func (c Charge) validate() error {
	if c.EncounterID <= 0 {
		return apperr.Validation("encounter_id", "encounter_id is required")
	}
	if !validItemTypes[c.ItemType] {
		return apperr.Validationf("item_type", "invalid item_type %q", c.ItemType)
	}
	if c.Quantity <= 0 {
		return apperr.Validationf("quantity", "quantity must be positive, got %d", c.Quantity)
	}
	if !c.UnitPrice.IsPositive() {
		return apperr.Validationf("unit_price", "unit_price must be positive, got %s", c.UnitPrice.StringFixed(2))
	}
	if c.Description == "" {
		return apperr.Validation("description", "description is required")
	}
	return nil
}

// newItem prices c as an unpaid item on acct.
func newItem(acct *Account, c Charge) *Item {
	amount := c.Amount()
	return &Item{
		AccountID:      acct.ID,
		EncounterID:    acct.EncounterID,
		ItemType:       c.ItemType,
		ReferenceID:    c.ReferenceID,
		ServiceID:      c.ServiceID,
		Description:    c.Description,
		Quantity:       c.Quantity,
		UnitPrice:      c.UnitPrice,
		Amount:         amount,
		DiscountAmount: decimal.Zero,
		NetAmount:      amount,
		Status:         ItemUnpaid,
		PerformedBy:    c.PerformedBy,
		PostedBy:       c.ActorID,
	}
}

// Summary is the read model of an encounter's account.
type Summary struct {
	EncounterID    int64           `json:"encounter_id"`
	AccountNo      string          `json:"account_no,omitempty"`
	Status         string          `json:"status,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	Balance        decimal.Decimal `json:"balance"`
	ItemsCount     int             `json:"items_count"`
}

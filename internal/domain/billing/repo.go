package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Repository interface {
	// GetOrCreateAccount returns the encounter's account, creating it when
	// missing. The account row stays locked until the transaction ends.
	GetOrCreateAccount(ctx context.Context, encounterID, patientID int64, accountNo string) (*Account, error)
	GetAccount(ctx context.Context, encounterID int64) (*Account, error)
	LockAccount(ctx context.Context, encounterID int64) (*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error

	// InsertItem reports false when a non-cancelled item for the same
	// clinical event already exists.
	InsertItem(ctx context.Context, item *Item) (bool, error)
	// FindActiveItem returns the non-cancelled item of itemType for the
	// encounter, restricted to referenceID when it is set, or nil.
	FindActiveItem(ctx context.Context, encounterID int64, itemType string, referenceID *int64) (*Item, error)
	GetItem(ctx context.Context, id int64) (*Item, error)
	UpdateItemStatus(ctx context.Context, id int64, status string, paidAt *time.Time) error
	MarkItemsPaid(ctx context.Context, encounterID int64, at time.Time) error
	ListItems(ctx context.Context, encounterID int64, limit, offset int) ([]*Item, int, error)
	// SumActiveNet totals net_amount over non-cancelled items.
	SumActiveNet(ctx context.Context, encounterID int64) (decimal.Decimal, int, error)
}

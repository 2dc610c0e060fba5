package inventory

import "context"

type Repository interface {
	GetDrug(ctx context.Context, id int64) (*Drug, error)
	// DecrementStock removes qty only if at least qty is on hand, in a single
	// statement, and returns the stock before and after.
	DecrementStock(ctx context.Context, drugID int64, qty int) (before, after int, err error)
	IncrementStock(ctx context.Context, drugID int64, qty int) (before, after int, err error)
	AppendMovement(ctx context.Context, m *StockMovement) error
	ListMovements(ctx context.Context, drugID int64, limit, offset int) ([]*StockMovement, int, error)
	ListBelowReorder(ctx context.Context) ([]*Drug, error)
}

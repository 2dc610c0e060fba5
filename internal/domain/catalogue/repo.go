package catalogue

import "context"

type Repository interface {
	ListActiveBillable(ctx context.Context) ([]*Entry, error)
	List(ctx context.Context, category string, limit, offset int) ([]*Entry, int, error)
	GetByID(ctx context.Context, id int64) (*Entry, error)
}

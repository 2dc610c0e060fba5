package laborder

import "context"

type Repository interface {
	Create(ctx context.Context, o *LabOrder) error
	GetByID(ctx context.Context, id int64) (*LabOrder, error)
	GetForUpdate(ctx context.Context, id int64) (*LabOrder, error)
	Update(ctx context.Context, o *LabOrder) error
	Delete(ctx context.Context, id int64) error
	ListByConsultation(ctx context.Context, consultationID int64) ([]*LabOrder, error)

	GetTest(ctx context.Context, id int64) (*LabTest, error)
	// FindTestByName matches case-insensitively and returns nil when no
	// test has that name.
	FindTestByName(ctx context.Context, name string) (*LabTest, error)
}

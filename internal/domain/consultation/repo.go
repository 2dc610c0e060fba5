package consultation

import "context"

type Repository interface {
	GetByID(ctx context.Context, id int64) (*Consultation, error)
	// GetForUpdate locks the row; completion holds it for the whole
	// workflow.
	GetForUpdate(ctx context.Context, id int64) (*Consultation, error)
	// GetForShare takes a share lock, which blocks a concurrent completion
	// without blocking other editors.
	GetForShare(ctx context.Context, id int64) (*Consultation, error)
	Update(ctx context.Context, c *Consultation) error

	// GetNote returns nil when the consultation has no note.
	GetNote(ctx context.Context, consultationID int64) (*ClinicalNote, error)
	UpdateNote(ctx context.Context, n *ClinicalNote) error
}

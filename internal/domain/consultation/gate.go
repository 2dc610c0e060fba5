package consultation

import (
	"context"
	"fmt"

	"github.com/ehr/hisledger/pkg/apperr"
)

// Gate answers whether a consultation still accepts prescriptions, lab
// orders and charges. Billing, prescription and lab order services share
// one Gate.
type Gate struct {
	repo Repository
}

func NewGate(repo Repository) *Gate {
	return &Gate{repo: repo}
}

// EnsureEditable share-locks the consultation row for the rest of the
// caller's transaction, so a completion started concurrently waits for the
// edit to commit. Completed consultations fail with AlreadyCompleted.
func (g *Gate) EnsureEditable(ctx context.Context, consultationID int64) (int64, error) {
	c, err := g.repo.GetForShare(ctx, consultationID)
	if err != nil {
		return 0, err
	}
	switch c.Status {
	case StatusCompleted:
		return 0, apperr.AlreadyCompleted(consultationID)
	case StatusCancelled:
		return 0, apperr.Conflict("consultation", consultationID, fmt.Sprintf("consultation %d is cancelled", consultationID))
	}
	return c.PatientID, nil
}

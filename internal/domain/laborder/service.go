package laborder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/hisledger/internal/platform/db"
	"github.com/ehr/hisledger/pkg/apperr"
)

// ConsultationGate guards edits against completed consultations.
type ConsultationGate interface {
	EnsureEditable(ctx context.Context, consultationID int64) (patientID int64, err error)
}

type Service struct {
	repo   Repository
	tx     db.TxRunner
	gate   ConsultationGate
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, gate ConsultationGate, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		gate:   gate,
		logger: logger.With().Str("component", "laborder").Logger(),
		now:    time.Now,
	}
}

func (s *Service) Create(ctx context.Context, in Input, actorID string) (*LabOrder, error) {
	in.TestName = strings.TrimSpace(in.TestName)
	if in.ConsultationID <= 0 {
		return nil, apperr.Validation("consultation_id", "consultation_id is required")
	}
	if (in.TestID == nil || *in.TestID <= 0) && in.TestName == "" {
		return nil, apperr.Validation("test_id", "test_id or test_name is required")
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if _, ok := priorityFactor[in.Priority]; !ok {
		return nil, apperr.Validationf("priority", "priority must be one of urgent, fast, normal, got %q", in.Priority)
	}

	var o *LabOrder
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		patientID, err := s.gate.EnsureEditable(ctx, in.ConsultationID)
		if err != nil {
			return err
		}

		o = &LabOrder{
			ConsultationID: in.ConsultationID,
			PatientID:      patientID,
			TestName:       in.TestName,
			Priority:       in.Priority,
			Status:         StatusPending,
			Notes:          in.Notes,
			OrderedBy:      actorID,
		}
		if in.TestID != nil && *in.TestID > 0 {
			test, err := s.repo.GetTest(ctx, *in.TestID)
			if err != nil {
				return err
			}
			id := test.ID
			o.TestID = &id
			if o.TestName == "" {
				o.TestName = test.Name
			}
		}

		if err := s.repo.Create(ctx, o); err != nil {
			return fmt.Errorf("create lab order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("lab_order_id", o.ID).
		Int64("consultation_id", o.ConsultationID).
		Str("test", o.TestName).
		Str("priority", o.Priority).
		Str("actor", actorID).
		Msg("lab order created")
	return o, nil
}

// UpdatePriority changes the priority of a pending or in-progress order.
// A submitted order gets its expected completion recomputed from the
// original submission time.
func (s *Service) UpdatePriority(ctx context.Context, id int64, priority, actorID string) (*LabOrder, error) {
	if _, ok := priorityFactor[priority]; !ok {
		return nil, apperr.Validationf("priority", "priority must be one of urgent, fast, normal, got %q", priority)
	}

	var o *LabOrder
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.lockEditable(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != StatusPending && o.Status != StatusInProgress {
			return apperr.Validationf("status", "lab order is %s, priority can no longer change", o.Status)
		}

		o.Priority = priority
		if o.SubmittedAt != nil {
			turnaround, err := s.turnaround(ctx, o)
			if err != nil {
				return err
			}
			expected := ExpectedCompletion(*o.SubmittedAt, turnaround, o.Priority)
			o.ExpectedCompletionAt = &expected
		}
		return s.repo.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("lab_order_id", id).Str("priority", priority).Str("actor", actorID).Msg("lab order priority changed")
	return o, nil
}

// Submit sends a single pending order to the laboratory.
func (s *Service) Submit(ctx context.Context, id int64, actorID string) (*LabOrder, error) {
	var o *LabOrder
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.lockEditable(ctx, id)
		if err != nil {
			return err
		}
		return s.SubmitToLaboratory(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("lab_order_id", id).Str("actor", actorID).Msg("lab order submitted")
	return o, nil
}

// SubmitToLaboratory moves o from pending to in_progress, stamping
// submitted_at and, when not already set, the expected completion time.
// The transition is one-way.
func (s *Service) SubmitToLaboratory(ctx context.Context, o *LabOrder) error {
	if o.Status != StatusPending {
		return apperr.Validationf("status", "lab order %d is %s, only pending orders can be submitted", o.ID, o.Status)
	}

	now := s.now()
	o.Status = StatusInProgress
	o.SubmittedAt = &now
	if o.ExpectedCompletionAt == nil {
		turnaround, err := s.turnaround(ctx, o)
		if err != nil {
			return err
		}
		expected := ExpectedCompletion(now, turnaround, o.Priority)
		o.ExpectedCompletionAt = &expected
	}
	return s.repo.Update(ctx, o)
}

// SubmitPending submits every pending order of a consultation and returns
// the ones it submitted. The caller holds the consultation lock.
func (s *Service) SubmitPending(ctx context.Context, consultationID int64) ([]*LabOrder, error) {
	var out []*LabOrder
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		orders, err := s.repo.ListByConsultation(ctx, consultationID)
		if err != nil {
			return err
		}
		for _, o := range orders {
			if o.Status != StatusPending {
				continue
			}
			if err := s.SubmitToLaboratory(ctx, o); err != nil {
				return fmt.Errorf("submit lab order %d: %w", o.ID, err)
			}
			out = append(out, o)
		}
		return nil
	})
	return out, err
}

func (s *Service) Delete(ctx context.Context, id int64, actorID string) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.lockEditable(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != StatusPending {
			return apperr.Conflict("lab order", id, fmt.Sprintf("lab order is %s and cannot be deleted", o.Status))
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Int64("lab_order_id", id).Str("actor", actorID).Msg("lab order deleted")
	return nil
}

// lockEditable checks the consultation before locking the order row so
// every writer takes consultation then order, matching completion.
func (s *Service) lockEditable(ctx context.Context, id int64) (*LabOrder, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.EnsureEditable(ctx, cur.ConsultationID); err != nil {
		return nil, err
	}
	return s.repo.GetForUpdate(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*LabOrder, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByConsultation(ctx context.Context, consultationID int64) ([]*LabOrder, error) {
	return s.repo.ListByConsultation(ctx, consultationID)
}

// turnaround looks the test up by id, then by name. Unknown tests use
// DefaultTurnaround.
func (s *Service) turnaround(ctx context.Context, o *LabOrder) (time.Duration, error) {
	var test *LabTest
	var err error
	if o.TestID != nil {
		test, err = s.repo.GetTest(ctx, *o.TestID)
		if apperr.IsKind(err, apperr.KindNotFound) {
			test, err = nil, nil
		}
	} else if o.TestName != "" {
		test, err = s.repo.FindTestByName(ctx, o.TestName)
	}
	if err != nil {
		return 0, fmt.Errorf("load lab test: %w", err)
	}
	return test.Turnaround(), nil
}

package consultation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/hisledger/internal/domain/billing"
	"github.com/ehr/hisledger/internal/domain/laborder"
	"github.com/ehr/hisledger/internal/domain/prescription"
	"github.com/ehr/hisledger/internal/platform/db"
	"github.com/ehr/hisledger/internal/platform/metrics"
	"github.com/ehr/hisledger/pkg/apperr"
)

// Prescriptions is the part of the prescription service completion drives.
type Prescriptions interface {
	ListByConsultation(ctx context.Context, consultationID int64) ([]*prescription.Prescription, error)
	DispenseReserved(ctx context.Context, consultationID int64, actorID string) ([]*prescription.Dispensation, error)
}

// LabOrders is the part of the lab order service completion drives.
type LabOrders interface {
	ListByConsultation(ctx context.Context, consultationID int64) ([]*laborder.LabOrder, error)
	SubmitPending(ctx context.Context, consultationID int64) ([]*laborder.LabOrder, error)
}

// Billing prices and posts the consultation's charges.
type Billing interface {
	QuoteConsultation(ctx context.Context, req billing.ConsultationCharge) (billing.Charge, error)
	QuoteLabTest(ctx context.Context, req billing.LabTestCharge) (billing.Charge, error)
	QuoteMedication(ctx context.Context, req billing.MedicationCharge) (billing.Charge, error)
	PostCharge(ctx context.Context, c billing.Charge) (*billing.Item, error)
	PostConsultationCharge(ctx context.Context, req billing.ConsultationCharge) (*billing.Item, error)
	AlreadyBilled(ctx context.Context, c billing.Charge) (bool, error)
	HasConsultationCharge(ctx context.Context, encounterID int64) (bool, error)
	GetBillingSummary(ctx context.Context, encounterID int64) (*billing.Summary, error)
}

type Service struct {
	repo          Repository
	tx            db.TxRunner
	prescriptions Prescriptions
	labOrders     LabOrders
	billing       Billing
	logger        zerolog.Logger
	metrics       *metrics.Ledger
	now           func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, rx Prescriptions, labs LabOrders, bill Billing, logger zerolog.Logger) *Service {
	return &Service{
		repo:          repo,
		tx:            tx,
		prescriptions: rx,
		labOrders:     labs,
		billing:       bill,
		logger:        logger.With().Str("component", "consultation").Logger(),
		now:           time.Now,
	}
}

func (s *Service) WithMetrics(m *metrics.Ledger) *Service {
	s.metrics = m
	return s
}

func (s *Service) Get(ctx context.Context, id int64) (*Consultation, error) {
	return s.repo.GetByID(ctx, id)
}

// Start moves a scheduled consultation to IN_PROGRESS.
func (s *Service) Start(ctx context.Context, id int64, actorID string) (*Consultation, error) {
	var c *Consultation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != StatusScheduled {
			return apperr.Conflict("consultation", id, fmt.Sprintf("consultation is %s, only SCHEDULED can start", c.Status))
		}
		now := s.now()
		c.Status = StatusInProgress
		c.StartedAt = &now
		return s.repo.Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("consultation_id", id).Str("actor", actorID).Msg("consultation started")
	return c, nil
}

// Reopen returns a completed consultation to IN_PROGRESS. Dispensations,
// lab submissions and billing items from the earlier completion stay in
// place; completing again only adds what is new.
func (s *Service) Reopen(ctx context.Context, id int64, actorID string) (*Consultation, error) {
	var c *Consultation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != StatusCompleted {
			return apperr.Conflict("consultation", id, fmt.Sprintf("consultation is %s, only COMPLETED can be reopened", c.Status))
		}
		now := s.now()
		c.Status = StatusInProgress
		c.CompletedAt = nil
		c.CompletedBy = nil
		c.ReopenedAt = &now
		return s.repo.Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn().Int64("consultation_id", id).Str("actor", actorID).Msg("consultation reopened")
	return c, nil
}

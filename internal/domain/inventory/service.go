package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/hisledger/internal/platform/db"
	"github.com/ehr/hisledger/internal/platform/metrics"
	"github.com/ehr/hisledger/internal/platform/notify"
	"github.com/ehr/hisledger/pkg/apperr"
)

type Service struct {
	repo      Repository
	tx        db.TxRunner
	logger    zerolog.Logger
	metrics   *metrics.Ledger
	publisher notify.Publisher
	channel   string
	now       func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		logger: logger.With().Str("component", "inventory").Logger(),
		now:    time.Now,
	}
}

// WithLowStockAlerts publishes a LowStockAlert on channel whenever a
// reservation leaves a drug at or below its reorder level.
func (s *Service) WithLowStockAlerts(p notify.Publisher, channel string) *Service {
	s.publisher = p
	s.channel = channel
	return s
}

func (s *Service) WithMetrics(m *metrics.Ledger) *Service {
	s.metrics = m
	return s
}

func validateReservation(r Reservation) error {
	if r.DrugID <= 0 {
		return apperr.Validation("drug_id", "drug_id is required")
	}
	if r.Quantity <= 0 {
		return apperr.Validationf("quantity", "quantity must be positive, got %d", r.Quantity)
	}
	return nil
}

// Reserve takes r.Quantity out of stock and records a RESERVATION movement.
// The check and the decrement are one conditional UPDATE, so concurrent
// reservations cannot drive stock negative. On InsufficientStock nothing is
// written.
func (s *Service) Reserve(ctx context.Context, r Reservation) (*StockMovement, error) {
	if err := validateReservation(r); err != nil {
		return nil, err
	}

	var mv *StockMovement
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		before, after, err := s.repo.DecrementStock(ctx, r.DrugID, r.Quantity)
		if err != nil {
			return err
		}

		mv = &StockMovement{
			DrugID:         r.DrugID,
			PrescriptionID: prescriptionRef(r.PrescriptionID),
			MovementType:   MovementReservation,
			Quantity:       r.Quantity,
			StockBefore:    before,
			StockAfter:     after,
			ActorID:        r.ActorID,
		}
		if err := s.repo.AppendMovement(ctx, mv); err != nil {
			return fmt.Errorf("append stock movement: %w", err)
		}

		return s.checkReorder(ctx, r.DrugID, after)
	})
	s.metrics.StockReserved(err == nil)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int64("drug_id", r.DrugID).
		Int64("prescription_id", r.PrescriptionID).
		Int("quantity", r.Quantity).
		Int("stock_after", mv.StockAfter).
		Str("actor", r.ActorID).
		Msg("stock reserved")
	return mv, nil
}

// Release returns r.Quantity to stock and records a RETURN movement. Callers
// only release what they previously reserved.
func (s *Service) Release(ctx context.Context, r Reservation) (*StockMovement, error) {
	if err := validateReservation(r); err != nil {
		return nil, err
	}

	var mv *StockMovement
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		before, after, err := s.repo.IncrementStock(ctx, r.DrugID, r.Quantity)
		if err != nil {
			return err
		}

		mv = &StockMovement{
			DrugID:         r.DrugID,
			PrescriptionID: prescriptionRef(r.PrescriptionID),
			MovementType:   MovementReturn,
			Quantity:       r.Quantity,
			StockBefore:    before,
			StockAfter:     after,
			ActorID:        r.ActorID,
		}
		if err := s.repo.AppendMovement(ctx, mv); err != nil {
			return fmt.Errorf("append stock movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StockReleased()
	s.logger.Debug().
		Int64("drug_id", r.DrugID).
		Int64("prescription_id", r.PrescriptionID).
		Int("quantity", r.Quantity).
		Str("actor", r.ActorID).
		Msg("stock released")
	return mv, nil
}

func (s *Service) checkReorder(ctx context.Context, drugID int64, stock int) error {
	if s.publisher == nil {
		return nil
	}
	d, err := s.repo.GetDrug(ctx, drugID)
	if err != nil {
		return err
	}
	if stock > d.ReorderLevel {
		return nil
	}

	alert := LowStockAlert{
		DrugID:        d.ID,
		DrugName:      d.Name,
		StockQuantity: stock,
		ReorderLevel:  d.ReorderLevel,
		At:            s.now(),
	}
	// only alert for stock that was actually committed
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.publisher.Publish(ctx, s.channel, alert); err != nil {
			s.logger.Warn().Err(err).Int64("drug_id", alert.DrugID).Msg("publish low stock alert")
		}
	})
	return nil
}

func prescriptionRef(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func (s *Service) GetDrug(ctx context.Context, id int64) (*Drug, error) {
	return s.repo.GetDrug(ctx, id)
}

func (s *Service) ListMovements(ctx context.Context, drugID int64, limit, offset int) ([]*StockMovement, int, error) {
	if _, err := s.repo.GetDrug(ctx, drugID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListMovements(ctx, drugID, limit, offset)
}

func (s *Service) ListLowStock(ctx context.Context) ([]*Drug, error) {
	return s.repo.ListBelowReorder(ctx)
}

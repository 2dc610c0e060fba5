package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ehr/hisledger/internal/domain/catalogue"
	"github.com/ehr/hisledger/internal/domain/inventory"
	"github.com/ehr/hisledger/internal/platform/db"
	"github.com/ehr/hisledger/internal/platform/metrics"
	"github.com/ehr/hisledger/pkg/apperr"
)

// EncounterGate guards postings against finished encounters.
type EncounterGate interface {
	// EnsureEditable fails unless the encounter still accepts charges and
	// holds it against completion until the transaction ends. It returns
	// the encounter's patient.
	EnsureEditable(ctx context.Context, encounterID int64) (patientID int64, err error)
}

// Pricer resolves catalogue prices.
type Pricer interface {
	Match(ctx context.Context, c catalogue.Criteria) (*catalogue.Entry, error)
}

// DrugLookup reads drug records for medication pricing.
type DrugLookup interface {
	GetDrug(ctx context.Context, id int64) (*inventory.Drug, error)
}

type Service struct {
	repo    Repository
	tx      db.TxRunner
	gate    EncounterGate
	pricer  Pricer
	drugs   DrugLookup
	logger  zerolog.Logger
	metrics *metrics.Ledger
	now     func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, gate EncounterGate, pricer Pricer, drugs DrugLookup, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		gate:   gate,
		pricer: pricer,
		drugs:  drugs,
		logger: logger.With().Str("component", "billing").Logger(),
		now:    time.Now,
	}
}

func (s *Service) WithMetrics(m *metrics.Ledger) *Service {
	s.metrics = m
	return s
}

// GetOrCreateAccount returns the encounter's billing account, opening it on
// first use.
func (s *Service) GetOrCreateAccount(ctx context.Context, encounterID int64) (*Account, error) {
	var acct *Account
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		acct, err = s.openAccount(ctx, encounterID)
		return err
	})
	return acct, err
}

// openAccount must run inside a transaction: it leaves the account locked.
func (s *Service) openAccount(ctx context.Context, encounterID int64) (*Account, error) {
	patientID, err := s.gate.EnsureEditable(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	acct, err := s.repo.GetOrCreateAccount(ctx, encounterID, patientID, AccountNumber(encounterID))
	if err != nil {
		return nil, fmt.Errorf("get or create billing account: %w", err)
	}
	if acct.Status == AccountClosed {
		return nil, apperr.Conflict("billing_account", acct.ID, fmt.Sprintf("billing account %s is closed", acct.AccountNo))
	}
	return acct, nil
}

// PostCharge inserts one billing item and recomputes the account totals
// from the item rows.
func (s *Service) PostCharge(ctx context.Context, c Charge) (*Item, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	var item *Item
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		acct, err := s.openAccount(ctx, c.EncounterID)
		if err != nil {
			return err
		}

		existing, err := s.findExisting(ctx, c)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.DuplicateCharge(c.EncounterID, c.ItemType)
		}

		item = newItem(acct, c)
		inserted, err := s.repo.InsertItem(ctx, item)
		if err != nil {
			return fmt.Errorf("insert billing item: %w", err)
		}
		if !inserted {
			// lost a race against a concurrent post of the same event
			return apperr.DuplicateCharge(c.EncounterID, c.ItemType)
		}
		if err := s.recompute(ctx, acct); err != nil {
			return err
		}

		posted := item
		db.AfterCommit(ctx, func(context.Context) {
			s.metrics.ItemPosted(posted.ItemType)
			s.logger.Info().
				Int64("encounter_id", posted.EncounterID).
				Int64("item_id", posted.ID).
				Str("item_type", posted.ItemType).
				Str("amount", posted.Amount.StringFixed(2)).
				Str("actor", c.ActorID).
				Msg("billing item posted")
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// AlreadyBilled reports whether the clinical event behind c already has a
// non-cancelled item on the encounter.
func (s *Service) AlreadyBilled(ctx context.Context, c Charge) (bool, error) {
	existing, err := s.findExisting(ctx, c)
	return existing != nil, err
}

func (s *Service) findExisting(ctx context.Context, c Charge) (*Item, error) {
	switch {
	case c.ItemType == ItemConsultation:
		return s.repo.FindActiveItem(ctx, c.EncounterID, ItemConsultation, nil)
	case referencedItemTypes[c.ItemType] && c.ReferenceID != nil:
		return s.repo.FindActiveItem(ctx, c.EncounterID, c.ItemType, c.ReferenceID)
	}
	return nil, nil
}

// recompute derives the account totals from the non-cancelled items. It is
// a full recompute so cancelled items drop out of the total.
func (s *Service) recompute(ctx context.Context, acct *Account) error {
	total, _, err := s.repo.SumActiveNet(ctx, acct.EncounterID)
	if err != nil {
		return fmt.Errorf("sum billing items: %w", err)
	}
	acct.ApplyTotals(total)
	if err := s.repo.UpdateAccount(ctx, acct); err != nil {
		return fmt.Errorf("update billing account: %w", err)
	}
	return nil
}

// lockOpenAccount locks an existing open account for a ledger adjustment.
func (s *Service) lockOpenAccount(ctx context.Context, encounterID int64) (*Account, error) {
	acct, err := s.repo.LockAccount(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if acct.Status == AccountClosed {
		return nil, apperr.Conflict("billing_account", acct.ID, fmt.Sprintf("billing account %s is closed", acct.AccountNo))
	}
	return acct, nil
}

// RecordPayment adds amount to the amount paid. A payment that settles the
// balance marks every unpaid item paid.
func (s *Service) RecordPayment(ctx context.Context, encounterID int64, amount decimal.Decimal, actorID string) (*Account, error) {
	if !amount.IsPositive() {
		return nil, apperr.Validation("amount", "amount must be positive")
	}

	var acct *Account
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		acct, err = s.lockOpenAccount(ctx, encounterID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(acct.Balance) {
			return apperr.Validationf("amount", "payment %s exceeds balance %s", amount.StringFixed(2), acct.Balance.StringFixed(2))
		}

		acct.AmountPaid = acct.AmountPaid.Add(amount)
		if err := s.recompute(ctx, acct); err != nil {
			return err
		}
		if acct.Balance.IsZero() {
			return s.repo.MarkItemsPaid(ctx, encounterID, s.now())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("encounter_id", encounterID).
		Str("amount", amount.StringFixed(2)).
		Str("balance", acct.Balance.StringFixed(2)).
		Str("actor", actorID).
		Msg("payment recorded")
	return acct, nil
}

// ApplyDiscount sets the account-level discount. It may not exceed the
// total nor push the balance below zero.
func (s *Service) ApplyDiscount(ctx context.Context, encounterID int64, amount decimal.Decimal, actorID string) (*Account, error) {
	if amount.IsNegative() {
		return nil, apperr.Validation("amount", "discount must not be negative")
	}

	var acct *Account
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		acct, err = s.lockOpenAccount(ctx, encounterID)
		if err != nil {
			return err
		}

		total, _, err := s.repo.SumActiveNet(ctx, encounterID)
		if err != nil {
			return fmt.Errorf("sum billing items: %w", err)
		}
		if amount.GreaterThan(total) {
			return apperr.Validationf("amount", "discount %s exceeds total %s", amount.StringFixed(2), total.StringFixed(2))
		}
		if total.Sub(amount).LessThan(acct.AmountPaid) {
			return apperr.Validation("amount", "discount would leave a negative balance")
		}

		acct.DiscountAmount = amount
		acct.ApplyTotals(total)
		if err := s.repo.UpdateAccount(ctx, acct); err != nil {
			return fmt.Errorf("update billing account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("encounter_id", encounterID).
		Str("discount", amount.StringFixed(2)).
		Str("actor", actorID).
		Msg("discount applied")
	return acct, nil
}

// CancelItem cancels an unpaid item and recomputes the totals. Only the
// item status changes; amounts stay as posted. A cancel that would leave
// the total below the discount and payments already taken is refused.
func (s *Service) CancelItem(ctx context.Context, itemID int64, actorID string) (*Item, error) {
	var item *Item
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		item, err = s.repo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		switch item.Status {
		case ItemCancelled:
			return apperr.Conflict("billing_item", itemID, "billing item is already cancelled")
		case ItemPaid:
			return apperr.Conflict("billing_item", itemID, "paid billing items cannot be cancelled")
		}

		acct, err := s.lockOpenAccount(ctx, item.EncounterID)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateItemStatus(ctx, itemID, ItemCancelled, nil); err != nil {
			return err
		}
		item.Status = ItemCancelled
		if err := s.recompute(ctx, acct); err != nil {
			return err
		}
		if acct.Balance.IsNegative() {
			return apperr.Conflict("billing_item", itemID, fmt.Sprintf(
				"cancelling would drop the total to %s, below discount %s plus payments %s",
				acct.TotalAmount.StringFixed(2), acct.DiscountAmount.StringFixed(2), acct.AmountPaid.StringFixed(2)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("encounter_id", item.EncounterID).
		Int64("item_id", itemID).
		Str("actor", actorID).
		Msg("billing item cancelled")
	return item, nil
}

// CloseAccount closes a settled account. Closed accounts accept no further
// postings.
func (s *Service) CloseAccount(ctx context.Context, encounterID int64, actorID string) (*Account, error) {
	var acct *Account
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		acct, err = s.lockOpenAccount(ctx, encounterID)
		if err != nil {
			return err
		}
		if !acct.Balance.IsZero() {
			return apperr.Conflict("billing_account", acct.ID,
				fmt.Sprintf("billing account %s has an outstanding balance of %s", acct.AccountNo, acct.Balance.StringFixed(2)))
		}
		acct.Status = AccountClosed
		return s.repo.UpdateAccount(ctx, acct)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("encounter_id", encounterID).Str("actor", actorID).Msg("billing account closed")
	return acct, nil
}

// GetBillingSummary reports the account totals. An encounter without an
// account has an all-zero summary.
func (s *Service) GetBillingSummary(ctx context.Context, encounterID int64) (*Summary, error) {
	acct, err := s.repo.GetAccount(ctx, encounterID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return &Summary{
			EncounterID:    encounterID,
			TotalAmount:    decimal.Zero,
			DiscountAmount: decimal.Zero,
			NetAmount:      decimal.Zero,
			AmountPaid:     decimal.Zero,
			Balance:        decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	_, count, err := s.repo.SumActiveNet(ctx, encounterID)
	if err != nil {
		return nil, fmt.Errorf("count billing items: %w", err)
	}
	return &Summary{
		EncounterID:    encounterID,
		AccountNo:      acct.AccountNo,
		Status:         acct.Status,
		TotalAmount:    acct.TotalAmount,
		DiscountAmount: acct.DiscountAmount,
		NetAmount:      acct.NetAmount,
		AmountPaid:     acct.AmountPaid,
		Balance:        acct.Balance,
		ItemsCount:     count,
	}, nil
}

func (s *Service) ListItems(ctx context.Context, encounterID int64, limit, offset int) ([]*Item, int, error) {
	return s.repo.ListItems(ctx, encounterID, limit, offset)
}

// HasConsultationCharge reports whether the encounter already carries a
// non-cancelled consultation item.
func (s *Service) HasConsultationCharge(ctx context.Context, encounterID int64) (bool, error) {
	it, err := s.repo.FindActiveItem(ctx, encounterID, ItemConsultation, nil)
	return it != nil, err
}

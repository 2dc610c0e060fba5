package consultation

import (
	"context"
	"fmt"

	"github.com/ehr/hisledger/internal/domain/billing"
	"github.com/ehr/hisledger/internal/domain/laborder"
	"github.com/ehr/hisledger/internal/domain/prescription"
	"github.com/ehr/hisledger/pkg/apperr"
)

// Complete finalizes a consultation in one transaction:
//
//  1. finalize the clinical note
//  2. dispense reserved instant-dispensing prescriptions
//  3. submit pending lab orders
//  4. post a pharmacy item per prescription
//  5. post a lab_test item per lab order
//  6. post the consultation charge
//  7. mark the consultation COMPLETED
//
// The row lock taken first serializes concurrent completions; the loser
// sees COMPLETED and fails with AlreadyCompleted. Posts in steps 4 and 5
// run in their own savepoint and degrade: a post failing with a domain
// error is rolled back alone and reported in SkippedCharges. Everything
// else aborts the whole completion. A DuplicateCharge means the event was
// billed by an earlier completion and is neither.
func (s *Service) Complete(ctx context.Context, id int64, actorID string) (*CompletionResult, error) {
	var res *CompletionResult
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch c.Status {
		case StatusCompleted:
			return apperr.AlreadyCompleted(id)
		case StatusCancelled:
			return apperr.Conflict("consultation", id, "cancelled consultations cannot be completed")
		}

		res = &CompletionResult{
			Dispensations:  []*prescription.Dispensation{},
			BillingItems:   []*billing.Item{},
			SkippedCharges: []SkippedCharge{},
		}

		if res.SOAPNote, err = s.finalizeNote(ctx, id); err != nil {
			return err
		}

		dispensed, err := s.prescriptions.DispenseReserved(ctx, id, actorID)
		if err != nil {
			return fmt.Errorf("dispense prescriptions: %w", err)
		}
		res.Dispensations = append(res.Dispensations, dispensed...)

		submitted, err := s.labOrders.SubmitPending(ctx, id)
		if err != nil {
			return fmt.Errorf("submit lab orders: %w", err)
		}
		res.LabOrdersSubmitted = len(submitted)

		if err := s.postPharmacy(ctx, id, actorID, res); err != nil {
			return err
		}
		if err := s.postLabTests(ctx, id, actorID, res); err != nil {
			return err
		}

		item, err := s.billing.PostConsultationCharge(ctx, billing.ConsultationCharge{
			EncounterID:      id,
			PhysicianID:      c.PhysicianID,
			ConsultationType: c.ConsultationType,
			ActorID:          actorID,
		})
		switch {
		case err == nil:
			res.BillingItems = append(res.BillingItems, item)
		case apperr.IsKind(err, apperr.KindDuplicateCharge):
		default:
			return fmt.Errorf("post consultation charge: %w", err)
		}

		now := s.now()
		c.Status = StatusCompleted
		c.CompletedAt = &now
		c.CompletedBy = &actorID
		if err := s.repo.Update(ctx, c); err != nil {
			return fmt.Errorf("mark consultation completed: %w", err)
		}
		res.Consultation = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ConsultationCompleted()
	for _, sk := range res.SkippedCharges {
		s.metrics.PostDegraded(sk.ItemType)
	}
	s.logger.Info().
		Int64("consultation_id", id).
		Int("dispensations", len(res.Dispensations)).
		Int("lab_orders_submitted", res.LabOrdersSubmitted).
		Int("billing_items", len(res.BillingItems)).
		Int("skipped_charges", len(res.SkippedCharges)).
		Str("actor", actorID).
		Msg("consultation completed")
	return res, nil
}

func (s *Service) finalizeNote(ctx context.Context, consultationID int64) (*ClinicalNote, error) {
	note, err := s.repo.GetNote(ctx, consultationID)
	if err != nil {
		return nil, fmt.Errorf("load clinical note: %w", err)
	}
	if note == nil || !note.IsDraft {
		return note, nil
	}
	now := s.now()
	note.IsDraft = false
	note.FinalizedAt = &now
	if err := s.repo.UpdateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("finalize clinical note: %w", err)
	}
	return note, nil
}

func (s *Service) postPharmacy(ctx context.Context, id int64, actorID string, res *CompletionResult) error {
	rxs, err := s.prescriptions.ListByConsultation(ctx, id)
	if err != nil {
		return fmt.Errorf("list prescriptions: %w", err)
	}
	for _, rx := range rxs {
		if rx.Status == prescription.StatusCancelled {
			continue
		}
		res.PrescriptionsProcessed++
		err := s.postDegradable(ctx, res, billing.ItemPharmacy, rx.ID, rx.DrugName, func(ctx context.Context) (billing.Charge, error) {
			return s.billing.QuoteMedication(ctx, medicationCharge(id, rx, actorID))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) postLabTests(ctx context.Context, id int64, actorID string, res *CompletionResult) error {
	orders, err := s.labOrders.ListByConsultation(ctx, id)
	if err != nil {
		return fmt.Errorf("list lab orders: %w", err)
	}
	for _, o := range orders {
		if o.Status == laborder.StatusCancelled {
			continue
		}
		err := s.postDegradable(ctx, res, billing.ItemLabTest, o.ID, o.TestName, func(ctx context.Context) (billing.Charge, error) {
			return s.billing.QuoteLabTest(ctx, labTestCharge(id, o, actorID))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// postDegradable prices and posts one charge inside a savepoint. Only
// errors without a domain kind are returned.
func (s *Service) postDegradable(ctx context.Context, res *CompletionResult, itemType string, refID int64,
	description string, quote func(context.Context) (billing.Charge, error)) error {
	var item *billing.Item
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := quote(ctx)
		if err != nil {
			return err
		}
		item, err = s.billing.PostCharge(ctx, c)
		return err
	})

	switch {
	case err == nil:
		res.BillingItems = append(res.BillingItems, item)
	case apperr.IsKind(err, apperr.KindDuplicateCharge):
	case apperr.KindOf(err) != "":
		res.SkippedCharges = append(res.SkippedCharges, SkippedCharge{
			ItemType:    itemType,
			ReferenceID: refID,
			Description: description,
			Reason:      err.Error(),
		})
		s.logger.Warn().
			Err(err).
			Str("item_type", itemType).
			Int64("reference_id", refID).
			Msg("billing post skipped during completion")
	default:
		return fmt.Errorf("post %s charge for %d: %w", itemType, refID, err)
	}
	return nil
}

func medicationCharge(consultationID int64, rx *prescription.Prescription, actorID string) billing.MedicationCharge {
	req := billing.MedicationCharge{
		EncounterID:    consultationID,
		PrescriptionID: &rx.ID,
		Quantity:       rx.Quantity,
		ActorID:        actorID,
	}
	if rx.DrugID != nil {
		req.DrugID = *rx.DrugID
	}
	return req
}

func labTestCharge(consultationID int64, o *laborder.LabOrder, actorID string) billing.LabTestCharge {
	return billing.LabTestCharge{
		EncounterID: consultationID,
		LabOrderID:  &o.ID,
		TestID:      o.TestID,
		TestName:    o.TestName,
		ActorID:     actorID,
	}
}

// Summary previews completion without writing anything. Charges that
// would fail to price are listed in Skipped; events already billed are
// left out.
func (s *Service) Summary(ctx context.Context, id int64, actorID string) (*Summary, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		Consultation: c,
		ToDispense:   []*prescription.Prescription{},
		ToSubmit:     []*laborder.LabOrder{},
		Charges:      []PlannedCharge{},
		Skipped:      []SkippedCharge{},
	}

	rxs, err := s.prescriptions.ListByConsultation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	for _, rx := range rxs {
		if rx.Status == prescription.StatusCancelled {
			continue
		}
		if rx.Status == prescription.StatusPending && rx.InstantDispensing && rx.StockReserved && rx.DrugID != nil {
			sum.ToDispense = append(sum.ToDispense, rx)
		}
		charge, quoteErr := s.billing.QuoteMedication(ctx, medicationCharge(id, rx, actorID))
		if err := s.plan(ctx, sum, billing.ItemPharmacy, rx.ID, rx.DrugName, charge, quoteErr); err != nil {
			return nil, err
		}
	}

	orders, err := s.labOrders.ListByConsultation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list lab orders: %w", err)
	}
	for _, o := range orders {
		if o.Status == laborder.StatusCancelled {
			continue
		}
		if o.Status == laborder.StatusPending {
			sum.ToSubmit = append(sum.ToSubmit, o)
		}
		charge, quoteErr := s.billing.QuoteLabTest(ctx, labTestCharge(id, o, actorID))
		if err := s.plan(ctx, sum, billing.ItemLabTest, o.ID, o.TestName, charge, quoteErr); err != nil {
			return nil, err
		}
	}

	if sum.HasConsultationCharge, err = s.billing.HasConsultationCharge(ctx, id); err != nil {
		return nil, err
	}
	if !sum.HasConsultationCharge {
		charge, quoteErr := s.billing.QuoteConsultation(ctx, billing.ConsultationCharge{
			EncounterID:      id,
			PhysicianID:      c.PhysicianID,
			ConsultationType: c.ConsultationType,
			ActorID:          actorID,
		})
		if err := s.plan(ctx, sum, billing.ItemConsultation, id, c.ConsultationType, charge, quoteErr); err != nil {
			return nil, err
		}
	}

	bill, err := s.billing.GetBillingSummary(ctx, id)
	if err != nil {
		return nil, err
	}
	sum.CurrentTotal = bill.TotalAmount
	projected := bill.TotalAmount
	for _, pc := range sum.Charges {
		projected = projected.Add(pc.Amount)
	}
	sum.ProjectedTotal = projected.Round(2)
	return sum, nil
}

// plan files a quoted charge under Charges or Skipped.
func (s *Service) plan(ctx context.Context, sum *Summary, itemType string, refID int64, description string,
	charge billing.Charge, quoteErr error) error {
	if quoteErr != nil {
		if apperr.KindOf(quoteErr) == "" {
			return quoteErr
		}
		sum.Skipped = append(sum.Skipped, SkippedCharge{
			ItemType:    itemType,
			ReferenceID: refID,
			Description: description,
			Reason:      quoteErr.Error(),
		})
		return nil
	}
	if charge.ItemType != billing.ItemConsultation {
		billed, err := s.billing.AlreadyBilled(ctx, charge)
		if err != nil {
			return err
		}
		if billed {
			return nil
		}
	}
	sum.Charges = append(sum.Charges, planned(charge))
	return nil
}

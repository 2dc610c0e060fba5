package prescription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/hisledger/internal/domain/inventory"
	"github.com/ehr/hisledger/internal/platform/db"
	"github.com/ehr/hisledger/pkg/apperr"
)

// ConsultationGate guards edits against completed consultations.
type ConsultationGate interface {
	// EnsureEditable fails with AlreadyCompleted once the consultation is
	// completed and holds it against completion until the transaction
	// ends. It returns the consultation's patient.
	EnsureEditable(ctx context.Context, consultationID int64) (patientID int64, err error)
}

// Stock moves drug stock for reservations.
type Stock interface {
	GetDrug(ctx context.Context, id int64) (*inventory.Drug, error)
	Reserve(ctx context.Context, r inventory.Reservation) (*inventory.StockMovement, error)
	Release(ctx context.Context, r inventory.Reservation) (*inventory.StockMovement, error)
}

type Service struct {
	repo   Repository
	tx     db.TxRunner
	gate   ConsultationGate
	stock  Stock
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, gate ConsultationGate, stock Stock, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		gate:   gate,
		stock:  stock,
		logger: logger.With().Str("component", "prescription").Logger(),
		now:    time.Now,
	}
}

// Create records a prescription. A recorded allergy to the drug blocks it;
// known interactions are attached as warnings. With instant dispensing the
// stock is reserved in the same transaction, so an InsufficientStock
// reservation leaves no prescription behind.
func (s *Service) Create(ctx context.Context, in Input, actorID string) (*Prescription, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var p *Prescription
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		patientID, err := s.gate.EnsureEditable(ctx, in.ConsultationID)
		if err != nil {
			return err
		}
		drug, err := s.resolveDrug(ctx, in)
		if err != nil {
			return err
		}
		if err := s.checkAllergies(ctx, patientID, drug, in.DrugName); err != nil {
			return err
		}

		p = &Prescription{
			ConsultationID: in.ConsultationID,
			PatientID:      patientID,
			Status:         StatusPending,
			PrescribedBy:   actorID,
		}
		apply(p, in, drug)

		p.InteractionWarnings, err = s.interactions(ctx, p, drug)
		if err != nil {
			return err
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("create prescription: %w", err)
		}

		if p.InstantDispensing {
			if err := s.reserve(ctx, p, actorID); err != nil {
				return err
			}
			return s.repo.Update(ctx, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("prescription_id", p.ID).
		Int64("consultation_id", p.ConsultationID).
		Str("drug", p.DrugName).
		Bool("stock_reserved", p.StockReserved).
		Int("warnings", len(p.InteractionWarnings)).
		Str("actor", actorID).
		Msg("prescription created")
	return p, nil
}

// Update replaces the editable fields of a pending prescription. A held
// reservation is released when instant dispensing is turned off or the drug
// or quantity changes, and a new one is taken when instant dispensing is
// on. Release and reserve share one transaction: a failed reserve restores
// the old reservation.
func (s *Service) Update(ctx context.Context, id int64, in Input, actorID string) (*Prescription, error) {
	var p *Prescription
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.lockEditable(ctx, id)
		if err != nil {
			return err
		}
		in.ConsultationID = p.ConsultationID
		if err := in.validate(); err != nil {
			return err
		}
		if p.Status != StatusPending {
			return apperr.Conflict("prescription", id, fmt.Sprintf("prescription is %s and can no longer be edited", p.Status))
		}

		drug, err := s.resolveDrug(ctx, in)
		if err != nil {
			return err
		}
		if err := s.checkAllergies(ctx, p.PatientID, drug, in.DrugName); err != nil {
			return err
		}
		drugChanged := !sameDrug(p.DrugID, in.DrugID)

		if p.StockReserved && (!in.InstantDispensing || drugChanged || p.Quantity != in.Quantity) {
			if err := s.release(ctx, p, actorID); err != nil {
				return err
			}
		}

		apply(p, in, drug)
		if p.InstantDispensing && !p.StockReserved {
			if err := s.reserve(ctx, p, actorID); err != nil {
				return err
			}
		}

		p.InteractionWarnings, err = s.interactions(ctx, p, drug)
		if err != nil {
			return err
		}
		return s.repo.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("prescription_id", p.ID).
		Bool("stock_reserved", p.StockReserved).
		Str("actor", actorID).
		Msg("prescription updated")
	return p, nil
}

// Delete removes a pending prescription, returning any reserved stock first.
func (s *Service) Delete(ctx context.Context, id int64, actorID string) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.lockEditable(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != StatusPending {
			return apperr.Conflict("prescription", id, fmt.Sprintf("prescription is %s and cannot be deleted", p.Status))
		}
		if err := s.release(ctx, p, actorID); err != nil {
			return err
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Int64("prescription_id", id).Str("actor", actorID).Msg("prescription deleted")
	return nil
}

// lockEditable locks the owning consultation before the prescription row,
// the same order Complete uses. The consultation id of a prescription never
// changes, so the first read needs no lock.
func (s *Service) lockEditable(ctx context.Context, id int64) (*Prescription, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.EnsureEditable(ctx, cur.ConsultationID); err != nil {
		return nil, err
	}
	return s.repo.GetForUpdate(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Prescription, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByConsultation(ctx context.Context, consultationID int64) ([]*Prescription, error) {
	return s.repo.ListByConsultation(ctx, consultationID)
}

// DispenseReserved dispenses every pending prescription of the consultation
// that holds a reservation. Prescriptions already dispensed are left
// alone, so a second run creates nothing.
func (s *Service) DispenseReserved(ctx context.Context, consultationID int64, actorID string) ([]*Dispensation, error) {
	var out []*Dispensation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		items, err := s.repo.ListByConsultation(ctx, consultationID)
		if err != nil {
			return err
		}
		for _, p := range items {
			if p.Status != StatusPending || !p.InstantDispensing || !p.StockReserved || p.DrugID == nil {
				continue
			}

			d := &Dispensation{
				PrescriptionID: p.ID,
				DrugID:         *p.DrugID,
				Quantity:       p.Quantity,
				DispensedAt:    s.now(),
				DispensedBy:    actorID,
			}
			created, err := s.repo.CreateDispensation(ctx, d)
			if err != nil {
				return fmt.Errorf("create dispensation for prescription %d: %w", p.ID, err)
			}

			// the reservation is consumed by the dispensation
			p.Status = StatusDispensed
			if err := s.repo.Update(ctx, p); err != nil {
				return err
			}
			if created {
				out = append(out, d)
			}
		}
		return nil
	})
	return out, err
}

func (s *Service) ListDispensations(ctx context.Context, consultationID int64) ([]*Dispensation, error) {
	return s.repo.ListDispensations(ctx, consultationID)
}

func (s *Service) resolveDrug(ctx context.Context, in Input) (*inventory.Drug, error) {
	if in.DrugID == nil || *in.DrugID <= 0 {
		return nil, nil
	}
	drug, err := s.stock.GetDrug(ctx, *in.DrugID)
	if err != nil {
		return nil, err
	}
	if !drug.IsActive {
		return nil, apperr.Validationf("drug_id", "drug %s is not active", drug.Name)
	}
	return drug, nil
}

// apply copies in onto p. A stocked drug's own name wins over the free-text
// name.
func apply(p *Prescription, in Input, drug *inventory.Drug) {
	p.DrugID = nil
	p.DrugName = in.DrugName
	if drug != nil {
		id := drug.ID
		p.DrugID = &id
		p.DrugName = drug.Name
	}
	p.Dosage = in.Dosage
	p.Frequency = in.Frequency
	p.Duration = in.Duration
	p.Quantity = in.Quantity
	p.Instructions = in.Instructions
	p.InstantDispensing = in.InstantDispensing
}

func (s *Service) reserve(ctx context.Context, p *Prescription, actorID string) error {
	_, err := s.stock.Reserve(ctx, inventory.Reservation{
		DrugID:         *p.DrugID,
		Quantity:       p.Quantity,
		PrescriptionID: p.ID,
		ActorID:        actorID,
	})
	if err != nil {
		return err
	}
	now := s.now()
	p.StockReserved = true
	p.StockReservedAt = &now
	return nil
}

// release is a no-op for a prescription holding no reservation.
func (s *Service) release(ctx context.Context, p *Prescription, actorID string) error {
	if !p.StockReserved || p.DrugID == nil {
		return nil
	}
	_, err := s.stock.Release(ctx, inventory.Reservation{
		DrugID:         *p.DrugID,
		Quantity:       p.Quantity,
		PrescriptionID: p.ID,
		ActorID:        actorID,
	})
	if err != nil {
		return err
	}
	p.StockReserved = false
	p.StockReservedAt = nil
	return nil
}

func (s *Service) checkAllergies(ctx context.Context, patientID int64, drug *inventory.Drug, drugName string) error {
	allergies, err := s.repo.PatientAllergies(ctx, patientID)
	if err != nil {
		return fmt.Errorf("load allergies: %w", err)
	}
	return CheckAllergies(allergies, drug, drugName)
}

// CheckAllergies returns AllergyConflict when any allergy appears in the
// drug's name, generic name or therapeutic class. Matching ignores case and
// surrounding whitespace.
func CheckAllergies(allergies []string, drug *inventory.Drug, drugName string) error {
	fields := []string{strings.ToLower(drugName)}
	name := drugName
	if drug != nil {
		name = drug.Name
		fields = append(fields,
			strings.ToLower(drug.Name),
			strings.ToLower(deref(drug.GenericName)),
			strings.ToLower(deref(drug.TherapeuticClass)))
	}

	for _, raw := range allergies {
		allergy := strings.ToLower(strings.TrimSpace(raw))
		if allergy == "" {
			continue
		}
		for _, f := range fields {
			if f != "" && strings.Contains(f, allergy) {
				return apperr.AllergyConflict(strings.TrimSpace(raw), name)
			}
		}
	}
	return nil
}

func (s *Service) interactions(ctx context.Context, p *Prescription, drug *inventory.Drug) ([]InteractionWarning, error) {
	others, err := s.repo.ActiveDrugNames(ctx, p.PatientID, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load active prescriptions: %w", err)
	}
	names := []string{p.DrugName}
	if drug != nil && deref(drug.GenericName) != "" {
		names = append(names, *drug.GenericName)
	}
	warnings, err := s.repo.FindInteractions(ctx, names, others)
	if err != nil {
		return nil, fmt.Errorf("check interactions: %w", err)
	}
	return warnings, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

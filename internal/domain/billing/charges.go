package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ehr/hisledger/internal/domain/catalogue"
	"github.com/ehr/hisledger/pkg/apperr"
)

type ConsultationCharge struct {
	EncounterID      int64  `json:"-"`
	PhysicianID      string `json:"physician_id" validate:"required"`
	ConsultationType string `json:"consultation_type" validate:"required"`
	ActorID          string `json:"-"`
}

type LabTestCharge struct {
	EncounterID int64  `json:"-"`
	LabOrderID  *int64 `json:"lab_order_id,omitempty"`
	TestID      *int64 `json:"test_id,omitempty"`
	TestName    string `json:"test_name" validate:"required"`
	ActorID     string `json:"-"`
}

type ProcedureCharge struct {
	EncounterID   int64   `json:"-"`
	ProcedureID   *int64  `json:"procedure_id,omitempty"`
	ProcedureName string  `json:"procedure_name" validate:"required"`
	Quantity      int     `json:"quantity" validate:"gte=0"`
	PerformedBy   *string `json:"performed_by,omitempty"`
	ActorID       string  `json:"-"`
}

type ImagingCharge struct {
	EncounterID int64  `json:"-"`
	StudyID     *int64 `json:"study_id,omitempty"`
	StudyName   string `json:"study_name" validate:"required"`
	ActorID     string `json:"-"`
}

type MedicationCharge struct {
	EncounterID    int64  `json:"-"`
	PrescriptionID *int64 `json:"prescription_id,omitempty"`
	DrugID         int64  `json:"drug_id" validate:"required"`
	Quantity       int    `json:"quantity" validate:"gt=0"`
	ActorID        string `json:"-"`
}

type BedCharge struct {
	EncounterID int64  `json:"-"`
	BedID       int64  `json:"bed_id" validate:"required"`
	Days        int    `json:"days" validate:"gt=0"`
	BedType     string `json:"bed_type" validate:"required"`
	ActorID     string `json:"-"`
}

// QuoteConsultation prices a consultation charge without posting it.
func (s *Service) QuoteConsultation(ctx context.Context, req ConsultationCharge) (Charge, error) {
	entry, err := s.pricer.Match(ctx, catalogue.ConsultationCriteria(req.ConsultationType))
	if err != nil {
		return Charge{}, err
	}
	physician := req.PhysicianID
	return Charge{
		EncounterID: req.EncounterID,
		ItemType:    ItemConsultation,
		ServiceID:   &entry.ID,
		Description: entry.Name,
		Quantity:    1,
		UnitPrice:   entry.UnitPrice,
		PerformedBy: &physician,
		ActorID:     req.ActorID,
	}, nil
}

// PostConsultationCharge posts the encounter's single consultation charge.
// An existing non-cancelled consultation item yields DuplicateCharge
// before any pricing is attempted.
func (s *Service) PostConsultationCharge(ctx context.Context, req ConsultationCharge) (*Item, error) {
	exists, err := s.HasConsultationCharge(ctx, req.EncounterID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.DuplicateCharge(req.EncounterID, ItemConsultation)
	}
	c, err := s.QuoteConsultation(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.PostCharge(ctx, c)
}

// QuoteLabTest prices a lab test by name. The lab order id, when given,
// identifies the clinical event; otherwise the test id does.
func (s *Service) QuoteLabTest(ctx context.Context, req LabTestCharge) (Charge, error) {
	if req.TestName == "" {
		return Charge{}, apperr.Validation("test_name", "test_name is required")
	}
	entry, err := s.pricer.Match(ctx, catalogue.NamedCriteria(catalogue.CategoryLabTest, req.TestName))
	if err != nil {
		return Charge{}, err
	}
	ref := req.LabOrderID
	if ref == nil {
		ref = req.TestID
	}
	return Charge{
		EncounterID: req.EncounterID,
		ItemType:    ItemLabTest,
		ReferenceID: ref,
		ServiceID:   &entry.ID,
		Description: entry.Name,
		Quantity:    1,
		UnitPrice:   entry.UnitPrice,
		ActorID:     req.ActorID,
	}, nil
}

func (s *Service) PostLabTestCharge(ctx context.Context, req LabTestCharge) (*Item, error) {
	c, err := s.QuoteLabTest(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.PostCharge(ctx, c)
}

func (s *Service) QuoteProcedure(ctx context.Context, req ProcedureCharge) (Charge, error) {
	if req.ProcedureName == "" {
		return Charge{}, apperr.Validation("procedure_name", "procedure_name is required")
	}
	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	entry, err := s.pricer.Match(ctx, catalogue.NamedCriteria(catalogue.CategoryProcedure, req.ProcedureName))
	if err != nil {
		return Charge{}, err
	}
	return Charge{
		EncounterID: req.EncounterID,
		ItemType:    ItemProcedure,
		ReferenceID: req.ProcedureID,
		ServiceID:   &entry.ID,
		Description: entry.Name,
		Quantity:    qty,
		UnitPrice:   entry.UnitPrice,
		PerformedBy: req.PerformedBy,
		ActorID:     req.ActorID,
	}, nil
}

func (s *Service) PostProcedureCharge(ctx context.Context, req ProcedureCharge) (*Item, error) {
	c, err := s.QuoteProcedure(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.PostCharge(ctx, c)
}

func (s *Service) QuoteImaging(ctx context.Context, req ImagingCharge) (Charge, error) {
	if req.StudyName == "" {
		return Charge{}, apperr.Validation("study_name", "study_name is required")
	}
	entry, err := s.pricer.Match(ctx, catalogue.NamedCriteria(catalogue.CategoryImaging, req.StudyName))
	if err != nil {
		return Charge{}, err
	}
	return Charge{
		EncounterID: req.EncounterID,
		ItemType:    ItemImaging,
		ReferenceID: req.StudyID,
		ServiceID:   &entry.ID,
		Description: entry.Name,
		Quantity:    1,
		UnitPrice:   entry.UnitPrice,
		ActorID:     req.ActorID,
	}, nil
}

func (s *Service) PostImagingCharge(ctx context.Context, req ImagingCharge) (*Item, error) {
	c, err := s.QuoteImaging(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.PostCharge(ctx, c)
}

// QuoteMedication prices a medication from the drug record. A drug without
// a unit price falls back to a medication catalogue entry of the same name.
func (s *Service) QuoteMedication(ctx context.Context, req MedicationCharge) (Charge, error) {
	if req.DrugID <= 0 {
		return Charge{}, apperr.Validation("drug_id", "drug reference is required")
	}
	if req.Quantity <= 0 {
		return Charge{}, apperr.Validationf("quantity", "quantity must be positive, got %d", req.Quantity)
	}
	drug, err := s.drugs.GetDrug(ctx, req.DrugID)
	if err != nil {
		return Charge{}, err
	}

	c := Charge{
		EncounterID: req.EncounterID,
		ItemType:    ItemPharmacy,
		ReferenceID: req.PrescriptionID,
		Description: drug.Name,
		Quantity:    req.Quantity,
		UnitPrice:   drug.UnitPrice,
		ActorID:     req.ActorID,
	}
	if drug.UnitPrice.IsPositive() {
		return c, nil
	}

	entry, err := s.pricer.Match(ctx, catalogue.NamedCriteria(catalogue.CategoryMedication, drug.Name))
	if err != nil {
		return Charge{}, err
	}
	c.ServiceID = &entry.ID
	c.UnitPrice = entry.UnitPrice
	return c, nil
}

func (s *Service) PostMedicationCharge(ctx context.Context, req MedicationCharge) (*Item, error) {
	c, err := s.QuoteMedication(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.PostCharge(ctx, c)
}

// QuoteBed prices a stay of req.Days at the daily rate of the bed type.
func (s *Service) QuoteBed(ctx context.Context, req BedCharge) (Charge, error) {
	if req.Days <= 0 {
		return Charge{}, apperr.Validationf("days", "days must be positive, got %d", req.Days)
	}
	if req.BedType == "" {
		return Charge{}, apperr.Validation("bed_type", "bed_type is required")
	}
	entry, err := s.pricer.Match(ctx, catalogue.NamedCriteria(catalogue.CategoryBed, req.BedType))
	if err != nil {
		return Charge{}, err
	}
	bedID := req.BedID
	return Charge{
		EncounterID: req.EncounterID,
		ItemType:    ItemBed,
		ReferenceID: &bedID,
		ServiceID:   &entry.ID,
		Description: fmt.Sprintf("%s (%d days)", entry.Name, req.Days),
		Quantity:    req.Days,
		UnitPrice:   entry.UnitPrice,
		ActorID:     req.ActorID,
	}, nil
}

func (s *Service) PostBedCharge(ctx context.Context, req BedCharge) (*Item, error) {
	c, err := s.QuoteBed(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.PostCharge(ctx, c)
}

// Amount is the priced total of a quoted charge.
func (c Charge) Amount() decimal.Decimal {
	return c.UnitPrice.Mul(decimal.NewFromInt(int64(c.Quantity))).Round(2)
}

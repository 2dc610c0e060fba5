package catalogue

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CategoryConsultation = "consultation"
	CategoryLabTest      = "lab_test"
	CategoryProcedure    = "procedure"
	CategoryImaging      = "imaging"
	CategoryBed          = "bed_charge"
	CategoryMedication   = "medication"
	CategoryNursing      = "nursing"
	CategoryOther        = "other"
)

var validCategories = map[string]bool{
	CategoryConsultation: true, CategoryLabTest: true, CategoryProcedure: true,
	CategoryImaging: true, CategoryBed: true, CategoryMedication: true,
	CategoryNursing: true, CategoryOther: true,
}

// IsValidCategory reports whether c is one of the catalogue categories.
func IsValidCategory(c string) bool {
	return validCategories[c]
}

// Entry maps to the service_catalogue table: a priced, billable service.
type Entry struct {
	ID          int64           `db:"id" json:"id"`
	Code        string          `db:"code" json:"code"`
	Name        string          `db:"name" json:"name"`
	Description *string         `db:"description" json:"description,omitempty"`
	Category    string          `db:"category" json:"category"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	IsActive    bool            `db:"is_active" json:"is_active"`
	IsBillable  bool            `db:"is_billable" json:"is_billable"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Criteria selects catalogue entries for a charge.
type Criteria struct {
	Category string
	Keywords []string
	// AllowCategoryOnly admits entries of the category whose text matches no
	// keyword. Only consultation pricing uses it.
	AllowCategoryOnly bool
}

// Consultation types as recorded on a consultation.
const (
	ConsultationOPD        = "OPD"
	ConsultationSpecialist = "SPECIALIST"
	ConsultationEmergency  = "EMERGENCY"
	ConsultationFollowUp   = "FOLLOW_UP"
)

var consultationKeywords = map[string][]string{
	ConsultationOPD:        {"General Physician", "General"},
	ConsultationSpecialist: {"Specialist"},
	ConsultationEmergency:  {"Emergency"},
	ConsultationFollowUp:   {"Follow-up", "Follow up"},
}

// ConsultationCriteria returns the lookup used to price a consultation of
// the given type. Unknown types fall back to the OPD keywords.
func ConsultationCriteria(consultationType string) Criteria {
	keywords, ok := consultationKeywords[consultationType]
	if !ok {
		keywords = consultationKeywords[ConsultationOPD]
	}
	return Criteria{
		Category:          CategoryConsultation,
		Keywords:          keywords,
		AllowCategoryOnly: true,
	}
}

// NamedCriteria is the lookup for a named service (lab test, procedure,
// imaging study, bed type): the name must match.
func NamedCriteria(category, name string) Criteria {
	return Criteria{Category: category, Keywords: []string{name}}
}

package laborder

import (
	"time"
)

const (
	PriorityUrgent = "urgent"
	PriorityFast   = "fast"
	PriorityNormal = "normal"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// DefaultTurnaround applies to tests without a catalogue turnaround.
const DefaultTurnaround = 24 * time.Hour

// priorityFactor scales a test's turnaround time.
var priorityFactor = map[string]float64{
	PriorityUrgent: 0.25,
	PriorityFast:   0.5,
	PriorityNormal: 1,
}

// LabOrder maps to the lab_orders table.
type LabOrder struct {
	ID                   int64      `db:"id" json:"id"`
	ConsultationID       int64      `db:"consultation_id" json:"consultation_id"`
	PatientID            int64      `db:"patient_id" json:"patient_id"`
	TestID               *int64     `db:"test_id" json:"test_id,omitempty"`
	TestName             string     `db:"test_name" json:"test_name"`
	Priority             string     `db:"priority" json:"priority"`
	Status               string     `db:"status" json:"status"`
	Notes                *string    `db:"notes" json:"notes,omitempty"`
	SubmittedAt          *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	ExpectedCompletionAt *time.Time `db:"expected_completion_at" json:"expected_completion_at,omitempty"`
	OrderedBy            string     `db:"ordered_by" json:"ordered_by"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// LabTest maps to the lab_tests reference table.
type LabTest struct {
	ID              int64  `db:"id" json:"id"`
	Code            string `db:"code" json:"code"`
	Name            string `db:"name" json:"name"`
	TurnaroundHours int    `db:"turnaround_hours" json:"turnaround_hours"`
}

// Turnaround returns the test's turnaround, or DefaultTurnaround when it
// has none.
func (t *LabTest) Turnaround() time.Duration {
	if t == nil || t.TurnaroundHours <= 0 {
		return DefaultTurnaround
	}
	return time.Duration(t.TurnaroundHours) * time.Hour
}

// ExpectedCompletion is submittedAt plus the turnaround scaled by the
// priority factor.
func ExpectedCompletion(submittedAt time.Time, turnaround time.Duration, priority string) time.Time {
	factor, ok := priorityFactor[priority]
	if !ok {
		factor = 1
	}
	return submittedAt.Add(time.Duration(float64(turnaround) * factor))
}

type Input struct {
	ConsultationID int64   `json:"consultation_id" validate:"required"`
	TestID         *int64  `json:"test_id,omitempty"`
	TestName       string  `json:"test_name,omitempty"`
	Priority       string  `json:"priority,omitempty" validate:"omitempty,oneof=urgent fast normal"`
	Notes          *string `json:"notes,omitempty"`
}

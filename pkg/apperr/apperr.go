// Package apperr defines the typed errors shared by the ledger services and
// their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an Error.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindAllergyConflict   Kind = "allergy_conflict"
	KindAlreadyCompleted  Kind = "already_completed"
	KindDuplicateCharge   Kind = "duplicate_charge"
	KindConflict          Kind = "conflict"
)

// Error is a domain error carrying enough context for the caller to act on
// it without parsing the message.
type Error struct {
	Kind     Kind   `json:"error"`
	Message  string `json:"message"`
	Entity   string `json:"entity,omitempty"`
	EntityID int64  `json:"entity_id,omitempty"`
	Field    string `json:"field,omitempty"`
	Err      error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports a malformed or missing input field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// Validationf is Validation with a formatted message.
func Validationf(field, format string, args ...interface{}) *Error {
	return Validation(field, fmt.Sprintf(format, args...))
}

// NotFound reports a missing entity.
func NotFound(entity string, id int64) *Error {
	return &Error{
		Kind:     KindNotFound,
		Entity:   entity,
		EntityID: id,
		Message:  fmt.Sprintf("%s %d not found", entity, id),
	}
}

// NotFoundf reports a missing entity that has no numeric id, such as an
// unmatched catalogue lookup.
func NotFoundf(entity, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStock reports a reservation larger than the stock on hand.
func InsufficientStock(drugID int64, drugName string, requested, available int) *Error {
	return &Error{
		Kind:     KindInsufficientStock,
		Entity:   "drug",
		EntityID: drugID,
		Field:    "quantity",
		Message:  fmt.Sprintf("insufficient stock for %s: requested %d, available %d", drugName, requested, available),
	}
}

// AllergyConflict reports a prescription blocked by a recorded allergy.
func AllergyConflict(allergy, drugName string) *Error {
	return &Error{
		Kind:    KindAllergyConflict,
		Entity:  "drug",
		Field:   "drug_id",
		Message: fmt.Sprintf("patient is allergic to %s: %s cannot be prescribed", allergy, drugName),
	}
}

// AlreadyCompleted reports a mutation against a completed consultation.
func AlreadyCompleted(consultationID int64) *Error {
	return &Error{
		Kind:     KindAlreadyCompleted,
		Entity:   "consultation",
		EntityID: consultationID,
		Message:  fmt.Sprintf("consultation %d is already completed", consultationID),
	}
}

// DuplicateCharge reports a second billing item for the same clinical event.
func DuplicateCharge(encounterID int64, itemType string) *Error {
	return &Error{
		Kind:     KindDuplicateCharge,
		Entity:   "encounter",
		EntityID: encounterID,
		Field:    "item_type",
		Message:  fmt.Sprintf("%s charge already posted for encounter %d", itemType, encounterID),
	}
}

// Conflict reports a state transition that is not allowed.
func Conflict(entity string, id int64, message string) *Error {
	return &Error{Kind: KindConflict, Entity: entity, EntityID: id, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err carries an *Error of kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

var statusByKind = map[Kind]int{
	KindValidation:        http.StatusBadRequest,
	KindNotFound:          http.StatusNotFound,
	KindInsufficientStock: http.StatusConflict,
	KindAllergyConflict:   http.StatusConflict,
	KindDuplicateCharge:   http.StatusConflict,
	KindConflict:          http.StatusConflict,
	KindAlreadyCompleted:  http.StatusUnprocessableEntity,
}

// HTTPStatus maps err to a status code; unknown errors are 500.
func HTTPStatus(err error) int {
	if status, ok := statusByKind[KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HTTPError converts err into an echo error. Domain errors keep their
// structured body; anything else becomes an opaque 500 whose cause is kept
// for the request logger.
func HTTPError(err error) *echo.HTTPError {
	var appErr *Error
	if errors.As(err, &appErr) {
		return echo.NewHTTPError(HTTPStatus(err), appErr)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

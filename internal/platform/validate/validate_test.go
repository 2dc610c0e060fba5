package validate

import (
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type chargeRequest struct {
	Description string `json:"description" validate:"required"`
	Quantity    int    `json:"quantity" validate:"gt=0"`
	Priority    string `json:"priority" validate:"omitempty,oneof=urgent fast normal"`
}

func TestValidate_OK(t *testing.T) {
	if err := New().Validate(&chargeRequest{Description: "X-ray", Quantity: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	err := New().Validate(&chargeRequest{Quantity: 0, Priority: "asap"})
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}

	msg, _ := httpErr.Message.(string)
	for _, want := range []string{"description is required", "quantity must be greater than 0", "priority must be one of"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

package consultation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hisledger/internal/platform/auth"
)

func newContext(e *echo.Echo, method, id string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", nil)
	req = req.WithContext(auth.WithUser(req.Context(), "dr-p1", []string{auth.RolePhysician}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c, rec
}

func TestHandler_Complete(t *testing.T) {
	env := newTestEnv()
	env.seedExample()
	h := NewHandler(env.svc)
	e := echo.New()

	c, rec := newContext(e, http.MethodPost, "42")
	if err := h.Complete(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"consultation", "soap_note", "prescriptions_processed", "lab_orders_submitted",
		"dispensations", "billing_items", "skipped_charges"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}

	c, _ = newContext(e, http.MethodPost, "42")
	err := h.Complete(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on second completion, got %v", err)
	}
}

func TestHandler_Summary(t *testing.T) {
	env := newTestEnv()
	env.seedExample()
	h := NewHandler(env.svc)
	e := echo.New()

	c, rec := newContext(e, http.MethodGet, "42")
	if err := h.Summary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sum Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sum.Charges) != 4 || sum.HasConsultationCharge {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestHandler_Reopen_NotCompleted(t *testing.T) {
	h := NewHandler(newTestEnv().svc)
	e := echo.New()

	c, _ := newContext(e, http.MethodPost, "42")
	err := h.Reopen(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_Complete_BadID(t *testing.T) {
	h := NewHandler(newTestEnv().svc)
	e := echo.New()

	c, _ := newContext(e, http.MethodPost, "abc")
	err := h.Complete(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

package laborder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hisledger/internal/platform/auth"
	"github.com/ehr/hisledger/internal/platform/validate"
)

func newRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req.WithContext(auth.WithUser(req.Context(), "dr-p1", []string{auth.RolePhysician}))
}

func TestHandler_Create(t *testing.T) {
	h := NewHandler(newTestEnv().svc)
	e := echo.New()
	e.Validator = validate.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, `{"consultation_id":42,"test_id":1,"priority":"urgent"}`), rec)
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var o LabOrder
	if err := json.Unmarshal(rec.Body.Bytes(), &o); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if o.Priority != PriorityUrgent || o.OrderedBy != "dr-p1" {
		t.Errorf("unexpected order %+v", o)
	}
}

func TestHandler_Create_InvalidPriority(t *testing.T) {
	h := NewHandler(newTestEnv().svc)
	e := echo.New()
	e.Validator = validate.New()

	c := e.NewContext(newRequest(http.MethodPost, `{"consultation_id":42,"test_name":"CBC","priority":"stat"}`), httptest.NewRecorder())
	err := h.Create(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_SubmitTwice(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := echo.New()

	if _, err := env.svc.Create(context.Background(), Input{ConsultationID: 42, TestName: "CBC"}, "dr-p1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	submit := func() (*httptest.ResponseRecorder, error) {
		rec := httptest.NewRecorder()
		c := e.NewContext(newRequest(http.MethodPost, ""), rec)
		c.SetParamNames("id")
		c.SetParamValues("1")
		return rec, h.Submit(c)
	}

	rec, err := submit()
	if err != nil || rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", rec.Code, err)
	}
	_, err = submit()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on resubmit, got %v", err)
	}
}

func TestHandler_UpdatePriority_NotFound(t *testing.T) {
	h := NewHandler(newTestEnv().svc)
	e := echo.New()
	e.Validator = validate.New()

	c := e.NewContext(newRequest(http.MethodPatch, `{"priority":"fast"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("9")
	err := h.UpdatePriority(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

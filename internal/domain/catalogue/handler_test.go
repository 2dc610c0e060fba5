package catalogue

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	repo := &mockRepo{entries: []*Entry{
		entry(1, "CON-GP", "General Physician Consultation", CategoryConsultation, "500.00"),
		entry(2, "LAB-CBC", "CBC", CategoryLabTest, "400.00"),
	}}
	return NewHandler(NewService(repo, time.Minute)), echo.New()
}

func TestHandler_ListServices(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/catalogue/services?category=lab_test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListServices(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Total int      `json:"total"`
		Data  []*Entry `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || body.Data[0].Code != "LAB-CBC" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestHandler_GetService_NotFound(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("99")

	err := h.GetService(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

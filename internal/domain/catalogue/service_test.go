package catalogue

import (
	"context"
	"testing"
	"time"

	"github.com/ehr/hisledger/pkg/apperr"
)

type mockRepo struct {
	entries []*Entry
	loads   int
}

func (m *mockRepo) ListActiveBillable(_ context.Context) ([]*Entry, error) {
	m.loads++
	return m.entries, nil
}

func (m *mockRepo) List(_ context.Context, category string, limit, offset int) ([]*Entry, int, error) {
	var out []*Entry
	for _, e := range m.entries {
		if category == "" || e.Category == category {
			out = append(out, e)
		}
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Entry, error) {
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, apperr.NotFound("service_catalogue", id)
}

func TestMatch_ReturnsBestEntry(t *testing.T) {
	repo := &mockRepo{entries: []*Entry{
		entry(1, "CON-SP", "Specialist Consultation", CategoryConsultation, "900.00"),
		entry(2, "CON-GP", "General Physician Consultation", CategoryConsultation, "500.00"),
	}}
	svc := NewService(repo, time.Minute)

	e, err := svc.Match(context.Background(), ConsultationCriteria(ConsultationOPD))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Code != "CON-GP" {
		t.Errorf("expected CON-GP, got %s", e.Code)
	}
	if e.UnitPrice.String() != "500" {
		t.Errorf("expected price 500, got %s", e.UnitPrice)
	}
}

func TestMatch_NotFound(t *testing.T) {
	svc := NewService(&mockRepo{}, time.Minute)

	_, err := svc.Match(context.Background(), NamedCriteria(CategoryLabTest, "Lipid Profile"))
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestMatch_RequiresCriteria(t *testing.T) {
	svc := NewService(&mockRepo{}, time.Minute)

	_, err := svc.Match(context.Background(), Criteria{Keywords: []string{"  "}})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMatch_CachesCatalogue(t *testing.T) {
	repo := &mockRepo{entries: []*Entry{
		entry(1, "LAB-CBC", "CBC", CategoryLabTest, "400.00"),
	}}
	svc := NewService(repo, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Match(ctx, NamedCriteria(CategoryLabTest, "CBC")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if repo.loads != 1 {
		t.Errorf("expected 1 catalogue load, got %d", repo.loads)
	}

	svc.Invalidate()
	if _, err := svc.Match(ctx, NamedCriteria(CategoryLabTest, "CBC")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.loads != 2 {
		t.Errorf("expected reload after invalidate, got %d loads", repo.loads)
	}
}

func TestList_CategoryFilter(t *testing.T) {
	repo := &mockRepo{entries: []*Entry{
		entry(1, "NUR-DRS", "Wound Dressing", CategoryNursing, "150.00"),
		entry(2, "OTH-CERT", "Medical Certificate", CategoryOther, "100.00"),
		entry(3, "CON-GP", "General Physician Consultation", CategoryConsultation, "500.00"),
	}}
	svc := NewService(repo, time.Minute)
	ctx := context.Background()

	for _, category := range []string{CategoryNursing, CategoryOther} {
		got, total, err := svc.List(ctx, category, 10, 0)
		if err != nil {
			t.Fatalf("List(%s): %v", category, err)
		}
		if total != 1 || got[0].Category != category {
			t.Errorf("List(%s): expected one entry, got %d", category, total)
		}
	}

	if _, _, err := svc.List(ctx, "pharmacy", 10, 0); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for unknown category, got %v", err)
	}
}

package catalogue

import (
	"testing"

	"github.com/shopspring/decimal"
)

func ptrStr(s string) *string { return &s }

func entry(id int64, code, name, category, price string) *Entry {
	return &Entry{
		ID:         id,
		Code:       code,
		Name:       name,
		Category:   category,
		UnitPrice:  decimal.RequireFromString(price),
		IsActive:   true,
		IsBillable: true,
	}
}

func codes(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Code
	}
	return out
}

func TestRank_ConsultationPriorityOrder(t *testing.T) {
	entries := []*Entry{
		entry(1, "CON-FU", "Follow-up Consultation", CategoryConsultation, "300.00"),
		entry(2, "CON-EM", "Emergency Consultation", CategoryConsultation, "1200.00"),
		entry(3, "CON-SP", "Specialist Consultation", CategoryConsultation, "900.00"),
		entry(4, "CON-GEN", "General Consultation", CategoryConsultation, "450.00"),
		entry(5, "CON-GP", "General Physician Consultation", CategoryConsultation, "500.00"),
	}

	ranked := Rank(entries, ConsultationCriteria(ConsultationOPD))
	got := codes(ranked)
	want := []string{"CON-GP", "CON-GEN", "CON-SP", "CON-EM", "CON-FU"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank order = %v, want %v", got, want)
		}
	}
}

func TestRank_PriorityUsesNamePrefix(t *testing.T) {
	entries := []*Entry{
		entry(1, "C1", "General Consultation", CategoryConsultation, "300.00"),
		entry(2, "C2", "Specialist General Physician Review", CategoryConsultation, "900.00"),
	}

	ranked := Rank(entries, ConsultationCriteria(ConsultationOPD))
	if len(ranked) != 2 || ranked[0].Code != "C1" {
		t.Fatalf("expected the general entry to price an OPD consultation, got %v", codes(ranked))
	}
	if got := namePriority("Specialist General Physician Review"); got != namePriority("Specialist Consultation") {
		t.Errorf("priority of a specialist name mentioning general physician = %d, want %d",
			got, namePriority("Specialist Consultation"))
	}
}

func TestRank_KeywordBeatsPriority(t *testing.T) {
	entries := []*Entry{
		entry(1, "CON-GP", "General Physician Consultation", CategoryConsultation, "500.00"),
		entry(2, "CON-EM", "Emergency Consultation", CategoryConsultation, "1200.00"),
	}

	ranked := Rank(entries, ConsultationCriteria(ConsultationEmergency))
	if ranked[0].Code != "CON-EM" {
		t.Errorf("expected emergency entry first, got %v", codes(ranked))
	}
}

func TestRank_ExactNameBeforePartial(t *testing.T) {
	entries := []*Entry{
		entry(1, "LAB-CBCD", "CBC with Differential", CategoryLabTest, "650.00"),
		entry(2, "LAB-CBC", "CBC", CategoryLabTest, "400.00"),
	}

	ranked := Rank(entries, NamedCriteria(CategoryLabTest, "cbc"))
	if ranked[0].Code != "LAB-CBC" {
		t.Errorf("expected exact match first, got %v", codes(ranked))
	}
}

func TestRank_NamedLookupRequiresKeyword(t *testing.T) {
	entries := []*Entry{
		entry(1, "LAB-LFT", "Liver Function Test", CategoryLabTest, "800.00"),
	}

	if ranked := Rank(entries, NamedCriteria(CategoryLabTest, "Lipid Profile")); len(ranked) != 0 {
		t.Errorf("expected no candidates, got %v", codes(ranked))
	}
}

func TestRank_MatchesDescription(t *testing.T) {
	e := entry(1, "LAB-HB", "Haemoglobin A1c", CategoryLabTest, "550.00")
	e.Description = ptrStr("HbA1c glycated haemoglobin")

	ranked := Rank([]*Entry{e}, NamedCriteria(CategoryLabTest, "HbA1c"))
	if len(ranked) != 1 {
		t.Fatalf("expected description match, got %d", len(ranked))
	}
}

func TestRank_OtherCategoryRanksLast(t *testing.T) {
	entries := []*Entry{
		entry(1, "PRC-XRAY", "Chest X-Ray", CategoryProcedure, "700.00"),
		entry(2, "IMG-XRAY", "Chest X-Ray", CategoryImaging, "650.00"),
	}

	ranked := Rank(entries, NamedCriteria(CategoryImaging, "Chest X-Ray"))
	if len(ranked) != 2 || ranked[0].Code != "IMG-XRAY" {
		t.Errorf("expected imaging entry first, got %v", codes(ranked))
	}
}

func TestRank_SkipsInactiveAndNonBillable(t *testing.T) {
	inactive := entry(1, "CON-A", "General Physician Consultation", CategoryConsultation, "500.00")
	inactive.IsActive = false
	free := entry(2, "CON-B", "General Physician Consultation", CategoryConsultation, "0.00")
	free.IsBillable = false

	if ranked := Rank([]*Entry{inactive, free}, ConsultationCriteria(ConsultationOPD)); len(ranked) != 0 {
		t.Errorf("expected no candidates, got %v", codes(ranked))
	}
}

func TestRank_DeterministicTieBreak(t *testing.T) {
	entries := []*Entry{
		entry(2, "CON-B", "Consultation", CategoryConsultation, "500.00"),
		entry(1, "CON-A", "Consultation", CategoryConsultation, "400.00"),
	}

	for i := 0; i < 5; i++ {
		ranked := Rank(entries, ConsultationCriteria(ConsultationOPD))
		if ranked[0].Code != "CON-A" {
			t.Fatalf("expected CON-A first, got %v", codes(ranked))
		}
	}
}

func TestConsultationCriteria_UnknownTypeFallsBack(t *testing.T) {
	c := ConsultationCriteria("HOME_VISIT")
	if c.Keywords[0] != "General Physician" {
		t.Errorf("expected OPD keywords, got %v", c.Keywords)
	}
	if !c.AllowCategoryOnly {
		t.Error("expected category-only matches for consultations")
	}
}

package laborder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/hisledger/internal/platform/db"
	"github.com/ehr/hisledger/pkg/apperr"
)

// -- Mock Repository --

type mockRepo struct {
	mu     sync.Mutex
	orders map[int64]*LabOrder
	tests  map[int64]*LabTest
	nextID int64
	locks  *[]string
}

func newMockRepo(tests ...*LabTest) *mockRepo {
	m := &mockRepo{
		orders: make(map[int64]*LabOrder),
		tests:  make(map[int64]*LabTest),
	}
	for _, t := range tests {
		m.tests[t.ID] = t
	}
	return m
}

func (m *mockRepo) Create(_ context.Context, o *LabOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	o.ID = m.nextID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*LabOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.NotFound("lab order", id)
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, id int64) (*LabOrder, error) {
	if m.locks != nil {
		*m.locks = append(*m.locks, "lab_order")
	}
	return m.GetByID(ctx, id)
}

func (m *mockRepo) Update(_ context.Context, o *LabOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return apperr.NotFound("lab order", o.ID)
	}
	o.UpdatedAt = time.Now()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return apperr.NotFound("lab order", id)
	}
	delete(m.orders, id)
	return nil
}

func (m *mockRepo) ListByConsultation(_ context.Context, consultationID int64) ([]*LabOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*LabOrder
	for id := int64(1); id <= m.nextID; id++ {
		if o, ok := m.orders[id]; ok && o.ConsultationID == consultationID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) GetTest(_ context.Context, id int64) (*LabTest, error) {
	t, ok := m.tests[id]
	if !ok {
		return nil, apperr.NotFound("lab test", id)
	}
	return t, nil
}

func (m *mockRepo) FindTestByName(_ context.Context, name string) (*LabTest, error) {
	for _, t := range m.tests {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make(map[int64]LabOrder, len(m.orders))
	for id, o := range m.orders {
		orders[id] = *o
	}
	next := m.nextID
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.orders = make(map[int64]*LabOrder, len(orders))
		for id, o := range orders {
			o := o
			m.orders[id] = &o
		}
		m.nextID = next
	}
}

// -- Collaborators --

type fakeTxKey struct{}

type fakeTx struct {
	snapshot func() func()
}

func (f *fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var restore func()
	if f.snapshot != nil {
		restore = f.snapshot()
	}

	if ctx.Value(fakeTxKey{}) != nil {
		if err := fn(ctx); err != nil {
			if restore != nil {
				restore()
			}
			return err
		}
		return nil
	}

	txCtx, runHooks := db.WithCommitHooks(context.WithValue(ctx, fakeTxKey{}, true))
	if err := fn(txCtx); err != nil {
		if restore != nil {
			restore()
		}
		return err
	}
	runHooks(ctx)
	return nil
}

type stubGate struct {
	patients  map[int64]int64
	completed map[int64]bool
	locks     *[]string
}

func (g *stubGate) EnsureEditable(_ context.Context, consultationID int64) (int64, error) {
	if g.locks != nil {
		*g.locks = append(*g.locks, "consultation")
	}
	if g.completed[consultationID] {
		return 0, apperr.AlreadyCompleted(consultationID)
	}
	patientID, ok := g.patients[consultationID]
	if !ok {
		return 0, apperr.NotFound("consultation", consultationID)
	}
	return patientID, nil
}

// -- Fixtures --

var submittedAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var (
	cbc     = &LabTest{ID: 1, Code: "CBC", Name: "Complete Blood Count", TurnaroundHours: 8}
	culture = &LabTest{ID: 2, Code: "BCX", Name: "Blood Culture", TurnaroundHours: 72}
)

type testEnv struct {
	repo *mockRepo
	gate *stubGate
	svc  *Service
}

func newTestEnv() *testEnv {
	repo := newMockRepo(cbc, culture)
	gate := &stubGate{patients: map[int64]int64{42: 7}, completed: map[int64]bool{}}
	svc := NewService(repo, &fakeTx{snapshot: repo.snapshot}, gate, zerolog.Nop())
	svc.now = func() time.Time { return submittedAt }
	return &testEnv{repo: repo, gate: gate, svc: svc}
}

func ptrInt64(v int64) *int64 { return &v }

// -- Tests --

func TestExpectedCompletion(t *testing.T) {
	tests := []struct {
		priority   string
		turnaround time.Duration
		want       time.Duration
	}{
		{PriorityUrgent, 8 * time.Hour, 2 * time.Hour},
		{PriorityFast, 8 * time.Hour, 4 * time.Hour},
		{PriorityNormal, 8 * time.Hour, 8 * time.Hour},
		{PriorityUrgent, DefaultTurnaround, 6 * time.Hour},
		{"unknown", 10 * time.Hour, 10 * time.Hour},
	}
	for _, tt := range tests {
		got := ExpectedCompletion(submittedAt, tt.turnaround, tt.priority)
		if got.Sub(submittedAt) != tt.want {
			t.Errorf("%s/%s: expected +%s, got +%s", tt.priority, tt.turnaround, tt.want, got.Sub(submittedAt))
		}
	}
}

func TestLabTest_TurnaroundDefault(t *testing.T) {
	var missing *LabTest
	if missing.Turnaround() != DefaultTurnaround {
		t.Errorf("nil test should use default turnaround")
	}
	if (&LabTest{}).Turnaround() != DefaultTurnaround {
		t.Errorf("zero turnaround should use default")
	}
	if cbc.Turnaround() != 8*time.Hour {
		t.Errorf("expected 8h, got %s", cbc.Turnaround())
	}
}

func TestService_Create_DefaultsPriority(t *testing.T) {
	env := newTestEnv()

	o, err := env.svc.Create(context.Background(), Input{ConsultationID: 42, TestID: ptrInt64(1)}, "dr-p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Priority != PriorityNormal || o.Status != StatusPending {
		t.Errorf("expected normal/pending, got %s/%s", o.Priority, o.Status)
	}
	if o.TestName != "Complete Blood Count" || o.PatientID != 7 || o.OrderedBy != "dr-p1" {
		t.Errorf("unexpected order %+v", o)
	}
	if o.SubmittedAt != nil || o.ExpectedCompletionAt != nil {
		t.Errorf("new order should not be submitted")
	}
}

func TestService_Create_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"no consultation", Input{TestName: "CBC"}, "consultation_id"},
		{"no test", Input{ConsultationID: 42, TestName: "  "}, "test_id"},
		{"bad priority", Input{ConsultationID: 42, TestName: "CBC", Priority: "stat"}, "priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEnv().svc.Create(context.Background(), tt.in, "dr-p1")
			var appErr *apperr.Error
			if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, appErr.Field)
			}
		})
	}
}

func TestService_Create_UnknownTestID(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.Create(context.Background(), Input{ConsultationID: 42, TestID: ptrInt64(99)}, "dr-p1")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if env.repo.nextID != 0 {
		t.Errorf("expected no order created")
	}
}

func TestService_Create_CompletedConsultation(t *testing.T) {
	env := newTestEnv()
	env.gate.completed[42] = true

	_, err := env.svc.Create(context.Background(), Input{ConsultationID: 42, TestName: "CBC"}, "dr-p1")
	if !apperr.IsKind(err, apperr.KindAlreadyCompleted) {
		t.Fatalf("expected already completed, got %v", err)
	}
}

func TestService_Submit(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	o, err := env.svc.Create(ctx, Input{ConsultationID: 42, TestID: ptrInt64(1), Priority: PriorityUrgent}, "dr-p1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := env.svc.Submit(ctx, o.ID, "lab-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Status != StatusInProgress {
		t.Errorf("expected in_progress, got %s", got.Status)
	}
	if got.SubmittedAt == nil || !got.SubmittedAt.Equal(submittedAt) {
		t.Errorf("expected submitted_at %s, got %v", submittedAt, got.SubmittedAt)
	}
	want := submittedAt.Add(2 * time.Hour)
	if got.ExpectedCompletionAt == nil || !got.ExpectedCompletionAt.Equal(want) {
		t.Errorf("expected completion %s, got %v", want, got.ExpectedCompletionAt)
	}

	// one-way: a second submit is rejected
	_, err = env.svc.Submit(ctx, o.ID, "lab-1")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error on resubmit, got %v", err)
	}
}

func TestService_Submit_UnknownTestUsesDefault(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	o, err := env.svc.Create(ctx, Input{ConsultationID: 42, TestName: "Vitamin D", Priority: PriorityFast}, "dr-p1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := env.svc.Submit(ctx, o.ID, "lab-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := submittedAt.Add(12 * time.Hour)
	if !got.ExpectedCompletionAt.Equal(want) {
		t.Errorf("expected %s, got %s", want, got.ExpectedCompletionAt)
	}
}

func TestService_Submit_MatchesTestByName(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	o, _ := env.svc.Create(ctx, Input{ConsultationID: 42, TestName: "blood culture"}, "dr-p1")
	got, err := env.svc.Submit(ctx, o.ID, "lab-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := submittedAt.Add(72 * time.Hour)
	if !got.ExpectedCompletionAt.Equal(want) {
		t.Errorf("expected %s, got %s", want, got.ExpectedCompletionAt)
	}
}

func TestService_UpdatePriority(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	o, _ := env.svc.Create(ctx, Input{ConsultationID: 42, TestID: ptrInt64(2)}, "dr-p1")

	t.Run("pending order has no expected completion", func(t *testing.T) {
		got, err := env.svc.UpdatePriority(ctx, o.ID, PriorityFast, "dr-p1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Priority != PriorityFast || got.ExpectedCompletionAt != nil {
			t.Errorf("unexpected order %+v", got)
		}
	})

	t.Run("submitted order is recomputed from submitted_at", func(t *testing.T) {
		if _, err := env.svc.Submit(ctx, o.ID, "lab-1"); err != nil {
			t.Fatalf("submit: %v", err)
		}
		env.svc.now = func() time.Time { return submittedAt.Add(5 * time.Hour) }

		got, err := env.svc.UpdatePriority(ctx, o.ID, PriorityUrgent, "lab-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := submittedAt.Add(18 * time.Hour)
		if !got.ExpectedCompletionAt.Equal(want) {
			t.Errorf("expected %s, got %s", want, got.ExpectedCompletionAt)
		}
	})

	t.Run("completed order is rejected", func(t *testing.T) {
		env.repo.orders[o.ID].Status = StatusCompleted
		_, err := env.svc.UpdatePriority(ctx, o.ID, PriorityNormal, "lab-1")
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("invalid priority", func(t *testing.T) {
		_, err := env.svc.UpdatePriority(ctx, o.ID, "asap", "lab-1")
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestService_SubmitPending(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first, _ := env.svc.Create(ctx, Input{ConsultationID: 42, TestID: ptrInt64(1)}, "dr-p1")
	second, _ := env.svc.Create(ctx, Input{ConsultationID: 42, TestID: ptrInt64(2)}, "dr-p1")
	if _, err := env.svc.Submit(ctx, first.ID, "lab-1"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	submitted, err := env.svc.SubmitPending(ctx, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(submitted) != 1 || submitted[0].ID != second.ID {
		t.Fatalf("expected only order %d submitted, got %+v", second.ID, submitted)
	}

	again, err := env.svc.SubmitPending(ctx, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected nothing left to submit, got %d", len(again))
	}
}

func TestService_Delete(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	o, _ := env.svc.Create(ctx, Input{ConsultationID: 42, TestName: "CBC"}, "dr-p1")
	if _, err := env.svc.Submit(ctx, o.ID, "lab-1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	err := env.svc.Delete(ctx, o.ID, "dr-p1")
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict deleting submitted order, got %v", err)
	}

	pending, _ := env.svc.Create(ctx, Input{ConsultationID: 42, TestName: "Lipid Panel"}, "dr-p1")
	if err := env.svc.Delete(ctx, pending.ID, "dr-p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.svc.Get(ctx, pending.ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected deleted order to be gone, got %v", err)
	}
}

func TestService_LocksConsultationBeforeOrder(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	o, _ := env.svc.Create(ctx, Input{ConsultationID: 42, TestName: "CBC"}, "dr-p1")
	var locks []string
	env.repo.locks = &locks
	env.gate.locks = &locks

	if _, err := env.svc.UpdatePriority(ctx, o.ID, PriorityUrgent, "dr-p1"); err != nil {
		t.Fatalf("update priority: %v", err)
	}
	if _, err := env.svc.Submit(ctx, o.ID, "lab-1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := []string{"consultation", "lab_order", "consultation", "lab_order"}
	if strings.Join(locks, ",") != strings.Join(want, ",") {
		t.Errorf("expected lock order %v, got %v", want, locks)
	}
}

func TestService_Delete_CompletedConsultation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	o, _ := env.svc.Create(ctx, Input{ConsultationID: 42, TestName: "CBC"}, "dr-p1")
	env.gate.completed[42] = true

	if err := env.svc.Delete(ctx, o.ID, "dr-p1"); !apperr.IsKind(err, apperr.KindAlreadyCompleted) {
		t.Fatalf("expected already completed, got %v", err)
	}
	if _, err := env.svc.Get(ctx, o.ID); err != nil {
		t.Errorf("order should survive: %v", err)
	}
}

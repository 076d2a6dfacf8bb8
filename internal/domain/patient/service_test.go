package patient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/notification"
)

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	for _, existing := range m.patients {
		if existing.PatientID == p.PatientID {
			return apperr.Conflict("patient id already in use")
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient")
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) GetByPatientID(_ context.Context, patientID string) (*Patient, error) {
	for _, p := range m.patients {
		if p.PatientID == patientID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("patient")
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return apperr.NotFound("patient")
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) Search(_ context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		if p.Matches(query) {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, len(result), nil
}

func newTestService() (*Service, *notification.Recorder) {
	rec := &notification.Recorder{}
	svc := NewService(newMockPatientRepo(), rec, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }
	return svc, rec
}

func TestService_RegisterPatient(t *testing.T) {
	svc, rec := newTestService()
	p, k := adaDetails()

	pt, err := svc.RegisterPatient(context.Background(), p, k)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pt.PatientID == "" || pt.CreatedAt.IsZero() {
		t.Errorf("expected generated id and creation time, got %+v", pt)
	}
	if pt.Kin.Relationship != "Father" {
		t.Errorf("expected kin to be stored, got %+v", pt.Kin)
	}

	events := rec.OfType(notification.EventPatientRegistered)
	if len(events) != 1 || events[0].Subject != pt.PatientID {
		t.Errorf("expected one patient.registered event, got %+v", events)
	}
}

func TestService_RegisterPatient_Invalid(t *testing.T) {
	svc, rec := newTestService()
	p, k := adaDetails()
	p.ContactNumber = "0801"

	if _, err := svc.RegisterPatient(context.Background(), p, k); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(rec.Events()) != 0 {
		t.Error("expected no event for rejected registration")
	}
}

func TestService_RegisterPatient_RetriesCollision(t *testing.T) {
	svc, _ := newTestService()
	ids := []string{"SLP-2603-AAAAAA", "SLP-2603-AAAAAA", "SLP-2603-BBBBBB"}
	calls := 0
	svc.newID = func(time.Time) (string, error) {
		id := ids[calls]
		calls++
		return id, nil
	}
	ctx := context.Background()
	p, k := adaDetails()

	first, err := svc.RegisterPatient(ctx, p, k)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.RegisterPatient(ctx, p, k)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.PatientID == second.PatientID || second.PatientID != "SLP-2603-BBBBBB" {
		t.Errorf("expected regenerated id, got %s and %s", first.PatientID, second.PatientID)
	}
}

func TestService_RegisterPatient_GivesUp(t *testing.T) {
	svc, _ := newTestService()
	svc.newID = func(time.Time) (string, error) { return "SLP-2603-AAAAAA", nil }
	ctx := context.Background()
	p, k := adaDetails()

	if _, err := svc.RegisterPatient(ctx, p, k); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := svc.RegisterPatient(ctx, p, k); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict after exhausting attempts, got %v", err)
	}
}

func TestService_GetPatient_NotFound(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.GetPatient(context.Background(), "SLP-0000-XXXXXX"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_SearchPatients(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p, k := adaDetails()
	svc.RegisterPatient(ctx, p, k)
	p.FirstName, p.LastName = "Charles", "Babbage"
	svc.RegisterPatient(ctx, p, k)

	all, total, err := svc.SearchPatients(ctx, "", 20, 0)
	if err != nil || total != 2 || len(all) != 2 {
		t.Fatalf("expected 2 patients, got %d (%v)", total, err)
	}
	found, total, _ := svc.SearchPatients(ctx, "BABBAGE", 20, 0)
	if total != 1 || found[0].FirstName != "Charles" {
		t.Errorf("expected Babbage only, got %+v", found)
	}
}

func TestService_UpdateProfile(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p, k := adaDetails()
	pt, _ := svc.RegisterPatient(ctx, p, k)

	p.ContactAddress = "12 Marina Road"
	k.Relationship = "Brother"
	updated, err := svc.UpdateProfile(ctx, pt.PatientID, p, k)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.PatientID != pt.PatientID || !updated.CreatedAt.Equal(pt.CreatedAt) {
		t.Error("expected id and creation time to be immutable")
	}
	if updated.ContactAddress != "12 Marina Road" || updated.Kin.Relationship != "Brother" {
		t.Errorf("expected updated profile, got %+v", updated)
	}

	p.FirstName = "A"
	if _, err := svc.UpdateProfile(ctx, pt.PatientID, p, k); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, "SLP-0000-NOPE00", p, k); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

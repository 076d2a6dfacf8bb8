// Package memstore holds every repository in process memory. It backs the
// server's --memory mode and cross-domain tests. Transactions serialize but
// do not roll back.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Oluwataye/Seeklab-sub001/internal/domain/accesscode"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/patient"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/payment"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/result"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/template"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
)

type DB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	templates map[uuid.UUID]*template.ResultTemplate
	patients  map[uuid.UUID]*patient.Patient
	payments  map[uuid.UUID]*payment.Payment
	results   map[uuid.UUID]*result.Result
	reviews   []result.ReviewEntry
	codes     map[uuid.UUID]*accesscode.AccessCode

	now func() time.Time
}

func New() *DB {
	return &DB{
		templates: make(map[uuid.UUID]*template.ResultTemplate),
		patients:  make(map[uuid.UUID]*patient.Patient),
		payments:  make(map[uuid.UUID]*payment.Payment),
		results:   make(map[uuid.UUID]*result.Result),
		codes:     make(map[uuid.UUID]*accesscode.AccessCode),
		now:       time.Now,
	}
}

// InTx runs fn while holding the transaction lock.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	d.txMu.Lock()
	defer d.txMu.Unlock()
	return fn(ctx)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// -- Templates --

type templateRepo struct{ d *DB }

func (d *DB) Templates() template.TemplateRepository { return templateRepo{d} }

func (r templateRepo) Create(_ context.Context, t *template.ResultTemplate) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, existing := range r.d.templates {
		if strings.EqualFold(existing.Name, t.Name) {
			return apperr.NewValidation("name", "a template with this name already exists")
		}
	}
	id := uuid.New()
	t.ID = id.String()
	t.CreatedAt = r.d.now()
	cp := *t
	r.d.templates[id] = &cp
	return nil
}

func (r templateRepo) GetByID(_ context.Context, id uuid.UUID) (*template.ResultTemplate, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	t, ok := r.d.templates[id]
	if !ok {
		return nil, apperr.NotFound("result template")
	}
	cp := *t
	return &cp, nil
}

func (r templateRepo) List(_ context.Context) ([]*template.ResultTemplate, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := make([]*template.ResultTemplate, 0, len(r.d.templates))
	for _, t := range r.d.templates {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// -- Patients --

type patientRepo struct{ d *DB }

func (d *DB) Patients() patient.PatientRepository { return patientRepo{d} }

func (r patientRepo) Create(_ context.Context, p *patient.Patient) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, existing := range r.d.patients {
		if existing.PatientID == p.PatientID {
			return apperr.Conflict("patient id already in use")
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = r.d.now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	r.d.patients[p.ID] = &cp
	return nil
}

func (r patientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	p, ok := r.d.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient")
	}
	cp := *p
	return &cp, nil
}

func (r patientRepo) GetByPatientID(_ context.Context, patientID string) (*patient.Patient, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, p := range r.d.patients {
		if p.PatientID == patientID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("patient")
}

func (r patientRepo) Update(_ context.Context, p *patient.Patient) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.patients[p.ID]; !ok {
		return apperr.NotFound("patient")
	}
	p.UpdatedAt = r.d.now()
	cp := *p
	r.d.patients[p.ID] = &cp
	return nil
}

func (r patientRepo) Search(_ context.Context, query string, limit, offset int) ([]*patient.Patient, int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []*patient.Patient
	for _, p := range r.d.patients {
		if p.Matches(query) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), len(out), nil
}

// -- Payments --

type paymentRepo struct{ d *DB }

func (d *DB) Payments() payment.PaymentRepository { return paymentRepo{d} }

func (r paymentRepo) Create(_ context.Context, p *payment.Payment) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, existing := range r.d.payments {
		if existing.PatientID == p.PatientID && existing.Method == p.Method &&
			strings.EqualFold(existing.ReferenceNumber, p.ReferenceNumber) {
			return apperr.NewValidation("reference_number", "already used for this patient and payment method")
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = r.d.now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	r.d.payments[p.ID] = &cp
	return nil
}

func (r paymentRepo) GetByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	p, ok := r.d.payments[id]
	if !ok {
		return nil, apperr.NotFound("payment")
	}
	cp := *p
	return &cp, nil
}

func (r paymentRepo) UpdateStatus(_ context.Context, p *payment.Payment, from payment.Status) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	stored, ok := r.d.payments[p.ID]
	if !ok {
		return apperr.NotFound("payment")
	}
	if stored.Status != from {
		return apperr.Conflict("payment status changed concurrently")
	}
	p.UpdatedAt = r.d.now()
	cp := *p
	r.d.payments[p.ID] = &cp
	return nil
}

func (r paymentRepo) matching(keep func(*payment.Payment) bool) []*payment.Payment {
	var out []*payment.Payment
	for _, p := range r.d.payments {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

func (r paymentRepo) List(_ context.Context, f payment.Filter, limit, offset int) ([]*payment.Payment, int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := r.matching(f.Matches)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), len(out), nil
}

func (r paymentRepo) ListUnconsumedVerified(_ context.Context, patientID string) ([]*payment.Payment, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := r.matching(func(p *payment.Payment) bool {
		return p.PatientID == patientID && p.Status == payment.StatusVerified && !p.Consumed()
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r paymentRepo) Consume(_ context.Context, paymentID, accessCodeID uuid.UUID) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	p, ok := r.d.payments[paymentID]
	if !ok || p.Status != payment.StatusVerified || p.Consumed() {
		return apperr.Conflict("payment already authorized another access code")
	}
	p.ConsumedBy = &accessCodeID
	p.UpdatedAt = r.d.now()
	return nil
}

// -- Results --

type resultRepo struct{ d *DB }

func (d *DB) Results() result.ResultRepository { return resultRepo{d} }

func (r resultRepo) Create(_ context.Context, res *result.Result) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	res.Version = 1
	res.CreatedAt = r.d.now()
	res.UpdatedAt = res.CreatedAt
	cp := *res
	r.d.results[res.ID] = &cp
	return nil
}

func (r resultRepo) GetByID(_ context.Context, id uuid.UUID) (*result.Result, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	res, ok := r.d.results[id]
	if !ok {
		return nil, apperr.NotFound("result")
	}
	cp := *res
	return &cp, nil
}

func (r resultRepo) Update(_ context.Context, res *result.Result, expectedVersion int) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	stored, ok := r.d.results[res.ID]
	if !ok || stored.Version != expectedVersion {
		return apperr.Conflict("result was modified concurrently")
	}
	res.Version = expectedVersion + 1
	res.UpdatedAt = r.d.now()
	cp := *res
	cp.ReviewHistory = nil
	r.d.results[res.ID] = &cp
	return nil
}

func (r resultRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.results[id]; !ok {
		return apperr.NotFound("result")
	}
	delete(r.d.results, id)
	for cid, ac := range r.d.codes {
		if ac.ResultID == id {
			delete(r.d.codes, cid)
		}
	}
	return nil
}

func (r resultRepo) List(_ context.Context, f result.Filter, limit, offset int) ([]*result.Result, int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []*result.Result
	for _, res := range r.d.results {
		if f.Matches(res) {
			cp := *res
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), len(out), nil
}

func (r resultRepo) AppendReview(_ context.Context, e *result.ReviewEntry) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	e.ID = uuid.New()
	r.d.reviews = append(r.d.reviews, *e)
	return nil
}

func (r resultRepo) ListReviews(_ context.Context, resultID uuid.UUID) ([]result.ReviewEntry, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []result.ReviewEntry
	for _, e := range r.d.reviews {
		if e.ResultID == resultID {
			out = append(out, e)
		}
	}
	return out, nil
}

// -- Access codes --

type accessCodeRepo struct{ d *DB }

func (d *DB) AccessCodes() accesscode.AccessCodeRepository { return accessCodeRepo{d} }

func (r accessCodeRepo) Create(_ context.Context, a *accesscode.AccessCode) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, existing := range r.d.codes {
		if existing.Code == a.Code {
			return accesscode.ErrCodeTaken
		}
		if existing.PatientID == a.PatientID && existing.TestType == a.TestType && existing.RevokedAt == nil {
			return apperr.Conflict("an active access code already exists for this patient and test type")
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	r.d.codes[a.ID] = &cp
	return nil
}

func (r accessCodeRepo) find(keep func(*accesscode.AccessCode) bool) *accesscode.AccessCode {
	var found *accesscode.AccessCode
	for _, ac := range r.d.codes {
		if keep(ac) && (found == nil || ac.IssuedAt.After(found.IssuedAt)) {
			found = ac
		}
	}
	if found == nil {
		return nil
	}
	cp := *found
	return &cp
}

func (r accessCodeRepo) GetByCode(_ context.Context, code string) (*accesscode.AccessCode, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	ac := r.find(func(ac *accesscode.AccessCode) bool { return ac.Code == code })
	if ac == nil {
		return nil, apperr.NotFound("access code")
	}
	return ac, nil
}

func (r accessCodeRepo) GetUnrevoked(_ context.Context, patientID, testType string) (*accesscode.AccessCode, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	return r.find(func(ac *accesscode.AccessCode) bool {
		return ac.PatientID == patientID && ac.TestType == testType && ac.RevokedAt == nil
	}), nil
}

func (r accessCodeRepo) GetUnrevokedForResult(_ context.Context, resultID uuid.UUID) (*accesscode.AccessCode, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	return r.find(func(ac *accesscode.AccessCode) bool {
		return ac.ResultID == resultID && ac.RevokedAt == nil
	}), nil
}

func (r accessCodeRepo) Revoke(_ context.Context, id uuid.UUID, at time.Time) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	ac, ok := r.d.codes[id]
	if !ok || ac.RevokedAt != nil {
		return apperr.NotFound("access code")
	}
	ac.RevokedAt = &at
	return nil
}

func (r accessCodeRepo) IncrementSessionCount(_ context.Context, id uuid.UUID) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if ac, ok := r.d.codes[id]; ok {
		ac.SessionCount++
	}
	return nil
}

func (r accessCodeRepo) ListForPatient(_ context.Context, patientID string) ([]*accesscode.AccessCode, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []*accesscode.AccessCode
	for _, ac := range r.d.codes {
		if ac.PatientID == patientID {
			cp := *ac
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

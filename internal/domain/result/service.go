package result

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Oluwataye/Seeklab-sub001/internal/domain/patient"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/template"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/auth"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/db"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/notification"
)

// TemplateCatalog resolves built-in and custom result templates.
type TemplateCatalog interface {
	GetTemplateByID(ctx context.Context, id string) (*template.ResultTemplate, error)
}

// PatientDirectory resolves patients by external id.
type PatientDirectory interface {
	GetPatient(ctx context.Context, patientID string) (*patient.Patient, error)
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type directRunner struct{}

func (directRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type Service struct {
	results   ResultRepository
	templates TemplateCatalog
	patients  PatientDirectory
	tx        TxRunner
	notifier  notification.Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(results ResultRepository, templates TemplateCatalog, patients PatientDirectory, tx TxRunner, notifier notification.Notifier, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = directRunner{}
	}
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	return &Service{
		results:   results,
		templates: templates,
		patients:  patients,
		tx:        tx,
		notifier:  notifier,
		logger:    logger.With().Str("component", "result").Logger(),
		now:       time.Now,
	}
}

// CreatePending opens a result for a freshly issued access code.
func (s *Service) CreatePending(ctx context.Context, patientID, testType, accessCode string, expiresAt time.Time) (*Result, error) {
	r := &Result{
		PatientID:  patientID,
		TestType:   testType,
		AccessCode: accessCode,
		Status:     StatusPending,
		ExpiresAt:  expiresAt,
	}
	if err := s.results.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// BindAccessCode points a result at a newly minted code and its window.
func (s *Service) BindAccessCode(ctx context.Context, r *Result, accessCode string, expiresAt time.Time) error {
	if r.Status == StatusRejected {
		return apperr.InvalidState("cannot issue a code for a rejected result")
	}
	expected := r.Version
	r.AccessCode = accessCode
	r.ExpiresAt = expiresAt
	return s.results.Update(ctx, r, expected)
}

// GetResult loads a result together with its review history.
func (s *Service) GetResult(ctx context.Context, id uuid.UUID) (*Result, error) {
	r, err := s.results.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.ReviewHistory, err = s.results.ListReviews(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) ListResults(ctx context.Context, f Filter, limit, offset int) ([]*Result, int, error) {
	if err := f.validate(); err != nil {
		return nil, 0, err
	}
	return s.results.List(ctx, f, limit, offset)
}

// load fetches a result and applies the caller's optimistic version check.
func (s *Service) load(ctx context.Context, id uuid.UUID, expectedVersion *int) (*Result, error) {
	r, err := s.results.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion != nil && *expectedVersion != r.Version {
		return nil, apperr.Conflict("result was modified by someone else, reload and retry")
	}
	return r, nil
}

func (s *Service) rejected(r *Result, op string, err error) error {
	s.logger.Warn().Err(err).Str("result_id", r.ID.String()).Str("status", string(r.Status)).Str("op", op).Msg("rejected result transition")
	return err
}

// SubmitResultData validates values against the template and stores them
// with a snapshot of the template fields.
func (s *Service) SubmitResultData(ctx context.Context, id uuid.UUID, templateID string, values map[string]string, actor auth.Actor, expectedVersion *int) (*Result, error) {
	r, err := s.load(ctx, id, expectedVersion)
	if err != nil {
		return nil, err
	}
	next, err := NextOnSubmit(r, actor.Role)
	if err != nil {
		return nil, s.rejected(r, "submit", err)
	}

	if strings.TrimSpace(templateID) == "" {
		templateID = r.TestType
	}
	tmpl, err := s.templates.GetTemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	clean := make(map[string]string, len(values))
	for k, v := range values {
		clean[k] = strings.TrimSpace(v)
	}
	if err := template.ValidateValues(tmpl, clean); err != nil {
		return nil, err
	}

	expected := r.Version
	r.Status = next
	r.ResultData = &ResultData{
		TemplateID:   tmpl.ID,
		TemplateName: tmpl.Name,
		Fields:       append([]template.TemplateField(nil), tmpl.Fields...),
		Values:       clean,
		Timestamp:    s.now(),
		EnteredBy:    actor.Label(),
	}
	if err := s.results.Update(ctx, r, expected); err != nil {
		return nil, err
	}
	s.logger.Info().Str("result_id", r.ID.String()).Str("template_id", tmpl.ID).
		Str("status", string(r.Status)).Str("actor", actor.Label()).Msg("result data submitted")
	return r, nil
}

// FinalizeResult marks entered data as complete and ready for review.
func (s *Service) FinalizeResult(ctx context.Context, id uuid.UUID, actor auth.Actor, expectedVersion *int) (*Result, error) {
	r, err := s.load(ctx, id, expectedVersion)
	if err != nil {
		return nil, err
	}
	next, err := NextOnFinalize(r)
	if err != nil {
		return nil, s.rejected(r, "finalize", err)
	}
	expected := r.Version
	r.Status = next
	if err := s.results.Update(ctx, r, expected); err != nil {
		return nil, err
	}
	s.logger.Info().Str("result_id", r.ID.String()).Str("actor", actor.Label()).Msg("result finalized")
	return r, nil
}

// ReviewInput is a scientist's verdict on a result.
type ReviewInput struct {
	Approved bool   `json:"approved"`
	Comments string `json:"comments"`
}

// SubmitReview records the scientist review, replacing any earlier one, and
// appends it to the review history.
func (s *Service) SubmitReview(ctx context.Context, id uuid.UUID, in ReviewInput, scientist auth.Actor, expectedVersion *int) (*Result, error) {
	var r *Result
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if r, err = s.load(ctx, id, expectedVersion); err != nil {
			return err
		}
		next, err := NextOnReview(r, scientist.Role)
		if err != nil {
			return s.rejected(r, "review", err)
		}
		now := s.now()
		expected := r.Version
		r.Status = next
		r.RejectionReason = nil
		r.ScientistReview = &ScientistReview{
			Approved:   in.Approved,
			Comments:   strings.TrimSpace(in.Comments),
			ReviewedBy: scientist.Label(),
			ReviewedAt: now,
		}
		if err := s.results.Update(ctx, r, expected); err != nil {
			return err
		}
		return s.results.AppendReview(ctx, &ReviewEntry{
			ResultID:   r.ID,
			Action:     ActionReviewed,
			Approved:   in.Approved,
			Comments:   r.ScientistReview.Comments,
			ReviewedBy: r.ScientistReview.ReviewedBy,
			ReviewedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	if in.Approved {
		s.notifyApproved(ctx, r)
	}
	s.logger.Info().Str("result_id", r.ID.String()).Bool("approved", in.Approved).
		Str("reviewed_by", scientist.Label()).Msg("result reviewed")
	return r, nil
}

func (s *Service) notifyApproved(ctx context.Context, r *Result) {
	ev := notification.Event{
		Type:     notification.EventResultApproved,
		TenantID: db.TenantFromContext(ctx),
		Subject:  r.ID.String(),
		Data: map[string]string{
			"result_id":   r.ID.String(),
			"patient_id":  r.PatientID,
			"test_type":   r.TestType,
			"reviewed_by": r.ScientistReview.ReviewedBy,
		},
		OccurredAt: r.ScientistReview.ReviewedAt,
	}
	if r.ResultData != nil {
		ev.Data["test_type"] = r.ResultData.TemplateName
	}
	if s.patients != nil {
		p, err := s.patients.GetPatient(ctx, r.PatientID)
		if err != nil {
			s.logger.Warn().Err(err).Str("patient_id", r.PatientID).Msg("patient lookup for result notice failed")
		} else {
			ev.Recipient = p.ContactNumber
			ev.Data["patient_name"] = p.FullName()
		}
	}
	s.notifier.Notify(ctx, ev)
}

// RejectResult closes an unapproved result under review. rejected is terminal.
func (s *Service) RejectResult(ctx context.Context, id uuid.UUID, reason string, scientist auth.Actor) (*Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.NewValidation("reason", "required")
	}
	var r *Result
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if r, err = s.load(ctx, id, nil); err != nil {
			return err
		}
		next, err := NextOnReject(r, scientist.Role)
		if err != nil {
			return s.rejected(r, "reject", err)
		}
		expected := r.Version
		r.Status = next
		r.RejectionReason = &reason
		if err := s.results.Update(ctx, r, expected); err != nil {
			return err
		}
		return s.results.AppendReview(ctx, &ReviewEntry{
			ResultID:   r.ID,
			Action:     ActionRejected,
			Comments:   reason,
			ReviewedBy: scientist.Label(),
			ReviewedAt: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("result_id", r.ID.String()).Str("rejected_by", scientist.Label()).Msg("result rejected")
	return r, nil
}

func (s *Service) DeleteResult(ctx context.Context, id uuid.UUID, actor auth.Actor) error {
	if !CanDelete(actor.Role) {
		return apperr.Forbidden("only admins and scientists can delete results")
	}
	if err := s.results.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("result_id", id.String()).Str("actor", actor.Label()).Msg("result deleted")
	return nil
}

package accesscode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Oluwataye/Seeklab-sub001/internal/domain/patient"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/payment"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/result"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/template"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/auth"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/db"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/notification"
)

const maxCodeAttempts = 5

type PatientDirectory interface {
	GetPatient(ctx context.Context, patientID string) (*patient.Patient, error)
}

type TemplateCatalog interface {
	GetTemplateByID(ctx context.Context, id string) (*template.ResultTemplate, error)
}

// PaymentLedger authorizes issuance against verified payments.
type PaymentLedger interface {
	ConsumeVerified(ctx context.Context, patientID string, paymentID *uuid.UUID, accessCodeID uuid.UUID) (*payment.Payment, error)
}

// ResultStore owns the result records codes are bound to.
type ResultStore interface {
	CreatePending(ctx context.Context, patientID, testType, accessCode string, expiresAt time.Time) (*result.Result, error)
	BindAccessCode(ctx context.Context, r *result.Result, accessCode string, expiresAt time.Time) error
	GetResult(ctx context.Context, id uuid.UUID) (*result.Result, error)
}

type directRunner struct{}

func (directRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type Config struct {
	TTL    time.Duration
	Length int
}

type Service struct {
	codes     AccessCodeRepository
	patients  PatientDirectory
	templates TemplateCatalog
	payments  PaymentLedger
	results   ResultStore
	tx        result.TxRunner
	notifier  notification.Notifier
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(codes AccessCodeRepository, patients PatientDirectory, templates TemplateCatalog,
	payments PaymentLedger, results ResultStore, tx result.TxRunner, notifier notification.Notifier,
	cfg Config, logger zerolog.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Length < MinLength {
		cfg.Length = DefaultLength
	}
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	if tx == nil {
		tx = directRunner{}
	}
	return &Service{
		codes:     codes,
		patients:  patients,
		templates: templates,
		payments:  payments,
		results:   results,
		tx:        tx,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With().Str("component", "accesscode").Logger(),
		now:       time.Now,
	}
}

// Issued is the outcome of a successful issuance.
type Issued struct {
	AccessCode *AccessCode
	Result     *result.Result
}

// IssueAccessCode mints a code for a patient and opens the pending result it
// unlocks. Payment consumption, result creation and the code insert commit
// together.
func (s *Service) IssueAccessCode(ctx context.Context, patientID, testType string, opts IssueOptions, actor auth.Actor) (*Issued, error) {
	if opts.BypassPaymentCheck && actor.Role != auth.RoleAdmin {
		return nil, apperr.Forbidden("only admins can bypass the payment check")
	}
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	testType = strings.TrimSpace(testType)
	tmpl, err := s.templates.GetTemplateByID(ctx, testType)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NewValidation("test_type", "unknown test type")
	}
	if err != nil {
		return nil, err
	}

	var out Issued
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		now := s.now()
		if err := s.releaseExpired(ctx, p.PatientID, tmpl.ID, now); err != nil {
			return err
		}

		ac := &AccessCode{
			ID:        uuid.New(),
			PatientID: p.PatientID,
			TestType:  tmpl.ID,
			IssuedBy:  actor.Label(),
			IssuedAt:  now,
			ExpiresAt: now.Add(s.cfg.TTL),
		}
		if !opts.BypassPaymentCheck {
			paid, err := s.payments.ConsumeVerified(ctx, p.PatientID, opts.PaymentID, ac.ID)
			if err != nil {
				return err
			}
			ac.PaymentID = &paid.ID
		}

		res, err := s.insert(ctx, ac, nil)
		if err != nil {
			return err
		}
		out = Issued{AccessCode: ac, Result: res}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrPaymentRequired) {
			s.logger.Warn().Str("patient_id", patientID).Str("test_type", testType).Msg("access code refused without verified payment")
		}
		return nil, err
	}

	ev := s.issuedEvent(ctx, out.AccessCode, tmpl, p)
	if opts.NotifyPatient {
		ev.Recipient = p.ContactNumber
	}
	s.notifier.Notify(ctx, ev)

	s.logger.Info().Str("patient_id", p.PatientID).Str("test_type", tmpl.ID).
		Str("result_id", out.Result.ID.String()).Bool("bypass", opts.BypassPaymentCheck).
		Str("issued_by", actor.Label()).Msg("access code issued")
	return &out, nil
}

// releaseExpired enforces one active code per patient and test type. An
// unrevoked code past its window is revoked so a new one can be issued.
func (s *Service) releaseExpired(ctx context.Context, patientID, testType string, now time.Time) error {
	current, err := s.codes.GetUnrevoked(ctx, patientID, testType)
	if err != nil || current == nil {
		return err
	}
	if current.Active(now) {
		return apperr.Conflict(fmt.Sprintf("an active %s access code already exists for patient %s", testType, patientID))
	}
	return s.codes.Revoke(ctx, current.ID, now)
}

// insert generates a fresh code and stores it, creating the pending result
// when res is nil and rebinding res otherwise.
func (s *Service) insert(ctx context.Context, ac *AccessCode, res *result.Result) (*result.Result, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := GenerateCode(s.cfg.Length)
		if err != nil {
			return nil, err
		}
		if res == nil {
			if res, err = s.results.CreatePending(ctx, ac.PatientID, ac.TestType, code, ac.ExpiresAt); err != nil {
				return nil, err
			}
		} else if err := s.results.BindAccessCode(ctx, res, code, ac.ExpiresAt); err != nil {
			return nil, err
		}
		ac.Code = code
		ac.ResultID = res.ID
		err = s.codes.Create(ctx, ac)
		if errors.Is(err, ErrCodeTaken) {
			s.logger.Debug().Int("attempt", attempt+1).Msg("access code collision, regenerating")
			continue
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	return nil, fmt.Errorf("no free access code after %d attempts", maxCodeAttempts)
}

func (s *Service) issuedEvent(ctx context.Context, ac *AccessCode, tmpl *template.ResultTemplate, p *patient.Patient) notification.Event {
	return notification.Event{
		Type:     notification.EventAccessCodeIssued,
		TenantID: db.TenantFromContext(ctx),
		Subject:  ac.ResultID.String(),
		Data: map[string]string{
			"patient_id":   ac.PatientID,
			"patient_name": p.FullName(),
			"test_type":    tmpl.Name,
			"result_id":    ac.ResultID.String(),
			"access_code":  ac.Code,
			"expires_at":   ac.ExpiresAt.Format("02 Jan 2006 15:04"),
		},
		OccurredAt: ac.IssuedAt,
	}
}

// ReissueAccessCode revokes the result's current code and binds a new one
// with a fresh validity window.
func (s *Service) ReissueAccessCode(ctx context.Context, resultID uuid.UUID, actor auth.Actor) (*AccessCode, error) {
	if !actor.Is(auth.RoleAdmin, auth.RoleReceptionist) {
		return nil, apperr.Forbidden("only admins and receptionists can reissue access codes")
	}
	var ac *AccessCode
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		res, err := s.results.GetResult(ctx, resultID)
		if err != nil {
			return err
		}
		if res.Status == result.StatusRejected {
			return apperr.InvalidState("cannot reissue a code for a rejected result")
		}
		now := s.now()
		ac = &AccessCode{
			ID:        uuid.New(),
			PatientID: res.PatientID,
			TestType:  res.TestType,
			IssuedBy:  actor.Label(),
			IssuedAt:  now,
			ExpiresAt: now.Add(s.cfg.TTL),
		}
		current, err := s.codes.GetUnrevokedForResult(ctx, resultID)
		if err != nil {
			return err
		}
		if current != nil {
			ac.PaymentID = current.PaymentID
			if err := s.codes.Revoke(ctx, current.ID, now); err != nil {
				return err
			}
		}
		_, err = s.insert(ctx, ac, res)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("result_id", resultID.String()).Str("issued_by", actor.Label()).Msg("access code reissued")
	return ac, nil
}

// RedeemAccessCode resolves a patient-supplied code to its result. The code
// stays valid for further sessions until it expires.
func (s *Service) RedeemAccessCode(ctx context.Context, code string) (*result.Result, *AccessCode, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, nil, apperr.NewValidation("code", "required")
	}
	ac, err := s.codes.GetByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if !ac.Active(s.now()) {
		return nil, nil, fmt.Errorf("access code is no longer valid: %w", apperr.ErrExpired)
	}
	res, err := s.results.GetResult(ctx, ac.ResultID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.codes.IncrementSessionCount(ctx, ac.ID); err != nil {
		return nil, nil, err
	}
	ac.SessionCount++
	s.logger.Info().Str("result_id", res.ID.String()).Int("session_count", ac.SessionCount).Msg("access code redeemed")
	return res, ac, nil
}

// ListForPatient returns every code issued to the patient, newest first.
func (s *Service) ListForPatient(ctx context.Context, patientID string) ([]Listing, error) {
	if _, err := s.patients.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	codes, err := s.codes.ListForPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]Listing, 0, len(codes))
	for _, ac := range codes {
		out = append(out, Listing{AccessCode: ac, Active: ac.Active(now)})
	}
	return out, nil
}

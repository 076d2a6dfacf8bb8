package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Oluwataye/Seeklab-sub001/internal/domain/patient"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/auth"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/db"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/notification"
)

// PatientDirectory resolves patients by external id.
type PatientDirectory interface {
	GetPatient(ctx context.Context, patientID string) (*patient.Patient, error)
}

type Service struct {
	payments PaymentRepository
	patients PatientDirectory
	notifier notification.Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(payments PaymentRepository, patients PatientDirectory, notifier notification.Notifier, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	return &Service{
		payments: payments,
		patients: patients,
		notifier: notifier,
		logger:   logger.With().Str("component", "payment").Logger(),
		now:      time.Now,
	}
}

func (s *Service) RecordPayment(ctx context.Context, in RecordInput, actor auth.Actor) (*Payment, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.patients.GetPatient(ctx, in.PatientID); err != nil {
		return nil, err
	}

	now := s.now()
	p := &Payment{
		PatientID:       in.PatientID,
		Amount:          in.Amount,
		Currency:        in.Currency,
		Method:          in.Method,
		ReferenceNumber: in.ReferenceNumber,
		Status:          InitialStatus(in.Method, in.TransactionID),
		RecordedBy:      actor.Label(),
	}
	if in.TransactionID != "" {
		p.TransactionID = &in.TransactionID
	}
	if p.Status == StatusCompleted {
		p.CompletedAt = &now
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("payment_id", p.ID.String()).Str("patient_id", p.PatientID).
		Str("method", string(p.Method)).Str("status", string(p.Status)).Msg("payment recorded")
	return p, nil
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.payments.GetByID(ctx, id)
}

// transition loads a payment, applies mutate when the move is allowed and
// stores it with a compare-and-set on the previous status.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, mutate func(p *Payment, now time.Time)) (*Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if to == StatusVerified && p.Status == StatusVerified {
		return nil, fmt.Errorf("payment %s: %w", p.ID, apperr.ErrAlreadyVerified)
	}
	from := p.Status
	if !CanTransition(from, to) {
		s.logger.Warn().Str("payment_id", p.ID.String()).Str("from", string(from)).Str("to", string(to)).Msg("rejected payment transition")
		return nil, apperr.InvalidState("payment %s cannot move from %s to %s", p.ID, from, to)
	}
	now := s.now()
	p.Status = to
	mutate(p, now)
	if err := s.payments.UpdateStatus(ctx, p, from); err != nil {
		return nil, err
	}
	return p, nil
}

// ConfirmPayment records receipt of funds for a pending payment.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, actor auth.Actor, transactionID string) (*Payment, error) {
	transactionID = strings.TrimSpace(transactionID)
	p, err := s.transition(ctx, id, StatusCompleted, func(p *Payment, now time.Time) {
		p.CompletedAt = &now
		if transactionID != "" {
			p.TransactionID = &transactionID
		}
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("payment_id", p.ID.String()).Str("actor", actor.Label()).Msg("payment confirmed")
	return p, nil
}

func (s *Service) VerifyPayment(ctx context.Context, id uuid.UUID, verifier auth.Actor) (*Payment, error) {
	label := verifier.Label()
	p, err := s.transition(ctx, id, StatusVerified, func(p *Payment, now time.Time) {
		p.VerifiedAt = &now
		p.VerifiedBy = &label
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notification.Event{
		Type:     notification.EventPaymentVerified,
		TenantID: db.TenantFromContext(ctx),
		Subject:  p.ID.String(),
		Data: map[string]string{
			"patient_id":     p.PatientID,
			"amount":         strconv.FormatInt(p.Amount, 10),
			"currency":       p.Currency,
			"payment_method": string(p.Method),
			"verified_by":    label,
		},
		OccurredAt: *p.VerifiedAt,
	})
	s.logger.Info().Str("payment_id", p.ID.String()).Str("verified_by", label).Msg("payment verified")
	return p, nil
}

// FailPayment marks a payment that will never clear. failed is terminal.
func (s *Service) FailPayment(ctx context.Context, id uuid.UUID, actor auth.Actor, reason string) (*Payment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.NewValidation("reason", "required")
	}
	p, err := s.transition(ctx, id, StatusFailed, func(p *Payment, _ time.Time) {
		p.FailureReason = &reason
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("payment_id", p.ID.String()).Str("actor", actor.Label()).Msg("payment failed")
	return p, nil
}

func (s *Service) ListPayments(ctx context.Context, f Filter, limit, offset int) ([]*Payment, int, error) {
	if err := f.validate(); err != nil {
		return nil, 0, err
	}
	return s.payments.List(ctx, f, limit, offset)
}

// VerifiedPayments returns the patient's verified payments not yet bound to
// an access code.
func (s *Service) VerifiedPayments(ctx context.Context, patientID string) ([]*Payment, error) {
	return s.payments.ListUnconsumedVerified(ctx, patientID)
}

func (s *Service) HasVerifiedPayment(ctx context.Context, patientID string) (bool, error) {
	items, err := s.payments.ListUnconsumedVerified(ctx, patientID)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

// ConsumeVerified binds one unconsumed verified payment of the patient to an
// access code. When paymentID is set that payment must qualify; otherwise
// the oldest qualifying payment is used.
func (s *Service) ConsumeVerified(ctx context.Context, patientID string, paymentID *uuid.UUID, accessCodeID uuid.UUID) (*Payment, error) {
	var chosen *Payment
	if paymentID != nil {
		p, err := s.payments.GetByID(ctx, *paymentID)
		if err != nil {
			return nil, err
		}
		if p.PatientID != patientID || p.Status != StatusVerified || p.Consumed() {
			return nil, fmt.Errorf("payment %s does not authorize a new code: %w", p.ID, apperr.ErrPaymentRequired)
		}
		chosen = p
	} else {
		items, err := s.payments.ListUnconsumedVerified(ctx, patientID)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("no verified payment for patient %s: %w", patientID, apperr.ErrPaymentRequired)
		}
		chosen = items[0]
	}

	if err := s.payments.Consume(ctx, chosen.ID, accessCodeID); err != nil {
		return nil, err
	}
	chosen.ConsumedBy = &accessCodeID
	return chosen, nil
}

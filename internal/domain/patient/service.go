package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/db"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/notification"
)

// maxIDAttempts bounds regeneration of a colliding external patient id.
const maxIDAttempts = 5

type Service struct {
	patients PatientRepository
	notifier notification.Notifier
	logger   zerolog.Logger
	now      func() time.Time
	newID    func(time.Time) (string, error)
}

func NewService(patients PatientRepository, notifier notification.Notifier, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	return &Service{
		patients: patients,
		notifier: notifier,
		logger:   logger.With().Str("component", "patient").Logger(),
		now:      time.Now,
		newID:    NewPatientID,
	}
}

func (s *Service) RegisterPatient(ctx context.Context, personal PersonalDetails, kin NextOfKin) (*Patient, error) {
	now := s.now()
	if err := Validate(&personal, &kin, now); err != nil {
		return nil, err
	}

	p := &Patient{PersonalDetails: personal, Kin: kin}
	var err error
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		if p.PatientID, err = s.newID(now); err != nil {
			return nil, err
		}
		err = s.patients.Create(ctx, p)
		if !errors.Is(err, apperr.ErrConflict) {
			break
		}
		s.logger.Warn().Str("patient_id", p.PatientID).Int("attempt", attempt).Msg("patient id collision, regenerating")
	}
	if err != nil {
		return nil, fmt.Errorf("register patient: %w", err)
	}

	s.notifier.Notify(ctx, notification.Event{
		Type:       notification.EventPatientRegistered,
		TenantID:   db.TenantFromContext(ctx),
		Subject:    p.PatientID,
		Data:       map[string]string{"patient_id": p.PatientID},
		OccurredAt: now,
	})
	s.logger.Info().Str("patient_id", p.PatientID).Msg("patient registered")
	return p, nil
}

// GetPatient looks a patient up by external id.
func (s *Service) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	return s.patients.GetByPatientID(ctx, patientID)
}

func (s *Service) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) SearchPatients(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, query, limit, offset)
}

// UpdateProfile replaces the mutable profile fields. The external id and the
// creation time never change.
func (s *Service) UpdateProfile(ctx context.Context, patientID string, personal PersonalDetails, kin NextOfKin) (*Patient, error) {
	p, err := s.patients.GetByPatientID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := Validate(&personal, &kin, s.now()); err != nil {
		return nil, err
	}
	p.PersonalDetails = personal
	p.Kin = kin
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.PatientID).Msg("patient profile updated")
	return p, nil
}

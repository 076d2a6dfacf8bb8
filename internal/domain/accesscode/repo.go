package accesscode

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrCodeTaken is returned by Create when the generated code already exists.
var ErrCodeTaken = errors.New("access code already in use")

type AccessCodeRepository interface {
	Create(ctx context.Context, a *AccessCode) error
	GetByCode(ctx context.Context, code string) (*AccessCode, error)
	// GetUnrevoked returns the unrevoked code for patient and test type, or nil.
	GetUnrevoked(ctx context.Context, patientID, testType string) (*AccessCode, error)
	GetUnrevokedForResult(ctx context.Context, resultID uuid.UUID) (*AccessCode, error)
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
	IncrementSessionCount(ctx context.Context, id uuid.UUID) error
	ListForPatient(ctx context.Context, patientID string) ([]*AccessCode, error)
}

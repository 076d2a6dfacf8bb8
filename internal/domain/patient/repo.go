package patient

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	// Create returns an apperr.ErrConflict error when the external patient id
	// is already taken.
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPatientID(ctx context.Context, patientID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error)
}

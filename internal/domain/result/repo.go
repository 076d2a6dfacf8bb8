package result

import (
	"context"

	"github.com/google/uuid"
)

type ResultRepository interface {
	Create(ctx context.Context, r *Result) error
	GetByID(ctx context.Context, id uuid.UUID) (*Result, error)
	// Update stores r only if the stored version equals expectedVersion and
	// bumps r.Version. A stale version yields apperr.ErrConflict.
	Update(ctx context.Context, r *Result, expectedVersion int) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Result, int, error)
	AppendReview(ctx context.Context, e *ReviewEntry) error
	ListReviews(ctx context.Context, resultID uuid.UUID) ([]ReviewEntry, error)
}

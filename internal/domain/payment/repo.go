package payment

import (
	"context"

	"github.com/google/uuid"
)

type PaymentRepository interface {
	// Create returns a validation error when the reference number is already
	// used for the same patient and method.
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	// UpdateStatus persists a status change only if the stored status still
	// equals from, returning apperr.ErrConflict otherwise.
	UpdateStatus(ctx context.Context, p *Payment, from Status) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Payment, int, error)
	// ListUnconsumedVerified returns verified payments of a patient that have
	// not yet authorized an access code, oldest first.
	ListUnconsumedVerified(ctx context.Context, patientID string) ([]*Payment, error)
	// Consume binds a verified payment to an access code. It fails with
	// apperr.ErrConflict when the payment was consumed concurrently.
	Consume(ctx context.Context, paymentID, accessCodeID uuid.UUID) error
}

package template

import (
	"context"

	"github.com/google/uuid"
)

// TemplateRepository stores tenant-defined templates. Built-ins are not
// persisted.
type TemplateRepository interface {
	Create(ctx context.Context, t *ResultTemplate) error
	GetByID(ctx context.Context, id uuid.UUID) (*ResultTemplate, error)
	List(ctx context.Context) ([]*ResultTemplate, error)
}

package template

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
)

type Service struct {
	templates TemplateRepository
	logger    zerolog.Logger
}

func NewService(templates TemplateRepository, logger zerolog.Logger) *Service {
	return &Service{templates: templates, logger: logger.With().Str("component", "template").Logger()}
}

// ListTemplates returns the built-in catalog followed by the tenant's custom
// templates ordered by name.
func (s *Service) ListTemplates(ctx context.Context) ([]ResultTemplate, error) {
	custom, err := s.templates.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(custom, func(i, j int) bool {
		return strings.ToLower(custom[i].Name) < strings.ToLower(custom[j].Name)
	})
	out := BuiltIns()
	for _, t := range custom {
		out = append(out, *t)
	}
	return out, nil
}

func (s *Service) CreateTemplate(ctx context.Context, t *ResultTemplate) (*ResultTemplate, error) {
	t.Name = strings.TrimSpace(t.Name)
	t.Category = strings.TrimSpace(t.Category)
	for i := range t.Fields {
		t.Fields[i].Name = strings.TrimSpace(t.Fields[i].Name)
	}
	t.BuiltIn = false
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.templates.Create(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info().Str("template_id", t.ID).Str("name", t.Name).Int("fields", len(t.Fields)).Msg("template created")
	return t, nil
}

// GetTemplateByID resolves a built-in slug or a custom template UUID.
func (s *Service) GetTemplateByID(ctx context.Context, id string) (*ResultTemplate, error) {
	if t, ok := BuiltIn(id); ok {
		return t, nil
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.NotFound("template")
	}
	return s.templates.GetByID(ctx, uid)
}

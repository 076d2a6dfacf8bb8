package disclosure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Oluwataye/Seeklab-sub001/internal/domain/accesscode"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/result"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/template"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/db"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/sessionstore"
)

// ExitPath is where clients send patients once a session has ended.
const ExitPath = "/"

type Redeemer interface {
	RedeemAccessCode(ctx context.Context, code string) (*result.Result, *accesscode.AccessCode, error)
}

type ResultReader interface {
	GetResult(ctx context.Context, id uuid.UUID) (*result.Result, error)
}

type TemplateCatalog interface {
	GetTemplateByID(ctx context.Context, id string) (*template.ResultTemplate, error)
}

// View is what a patient's client receives for a session.
type View struct {
	SessionID        string      `json:"session_id"`
	State            State       `json:"state"`
	StartedAt        time.Time   `json:"started_at"`
	ExpiresAt        time.Time   `json:"expires_at"`
	RemainingSeconds int         `json:"remaining_seconds"`
	LeaveAt          *time.Time  `json:"leave_at,omitempty"`
	Redirect         string      `json:"redirect,omitempty"`
	Disclosure       *Disclosure `json:"disclosure,omitempty"`
}

type Service struct {
	codes     Redeemer
	results   ResultReader
	templates TemplateCatalog
	store     sessionstore.Store
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(codes Redeemer, results ResultReader, templates TemplateCatalog, store sessionstore.Store, logger zerolog.Logger) *Service {
	return &Service{
		codes:     codes,
		results:   results,
		templates: templates,
		store:     store,
		logger:    logger.With().Str("component", "disclosure").Logger(),
		now:       time.Now,
	}
}

func sessionKey(id string) string { return "session:" + id }

func codeKey(tenant, code string) string { return "code:" + tenant + ":" + code }

// Open starts a session for a patient-supplied code. Reopening a code whose
// session is still running resumes that session with its original start.
func (s *Service) Open(ctx context.Context, code string) (*View, error) {
	code = accesscode.NormalizeCode(code)
	tenant := db.TenantFromContext(ctx)
	now := s.now()

	if sess := s.resumable(ctx, tenant, code, now); sess != nil {
		r, err := s.results.GetResult(ctx, sess.ResultID)
		if err != nil {
			return nil, err
		}
		if r.AccessCode == sess.AccessCode {
			s.logger.Debug().Str("session_id", sess.ID).Msg("disclosure session resumed")
			return s.render(ctx, sess, r, now), nil
		}
		s.drop(ctx, sess)
	}

	r, ac, err := s.codes.RedeemAccessCode(ctx, code)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:         uuid.NewString(),
		AccessCode: ac.Code,
		ResultID:   r.ID,
		TenantID:   tenant,
		StartedAt:  now,
		Budget:     SessionBudget,
	}
	if err := s.save(ctx, sess, now); err != nil {
		return nil, err
	}
	s.logger.Info().Str("session_id", sess.ID).Str("result_id", r.ID.String()).Msg("disclosure session opened")
	return s.render(ctx, sess, r, now), nil
}

// resumable returns the cached session for code when it is still active.
// Store failures fall through to a fresh redemption.
func (s *Service) resumable(ctx context.Context, tenant, code string, now time.Time) *Session {
	raw, err := s.store.Get(ctx, codeKey(tenant, code))
	if err != nil {
		if !errors.Is(err, sessionstore.ErrMiss) {
			s.logger.Warn().Err(err).Msg("session lookup by code failed")
		}
		return nil
	}
	sess, err := s.load(ctx, string(raw))
	if err != nil || sess.TenantID != tenant || sess.State(now) != StateActive {
		return nil
	}
	return sess
}

func (s *Service) save(ctx context.Context, sess *Session, now time.Time) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := sess.Remaining(now) + GracePeriod
	if err := s.store.Set(ctx, sessionKey(sess.ID), raw, ttl); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if err := s.store.Set(ctx, codeKey(sess.TenantID, sess.AccessCode), []byte(sess.ID), ttl); err != nil {
		return fmt.Errorf("store session code: %w", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*Session, error) {
	raw, err := s.store.Get(ctx, sessionKey(id))
	if errors.Is(err, sessionstore.ErrMiss) {
		return nil, apperr.NotFound("disclosure session")
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// View returns the current state of a session. An expired session is a normal
// outcome and carries no result data.
func (s *Service) View(ctx context.Context, id string) (*View, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.TenantID != db.TenantFromContext(ctx) {
		return nil, apperr.NotFound("disclosure session")
	}
	now := s.now()
	if sess.State(now) == StateExpired {
		return s.render(ctx, sess, nil, now), nil
	}
	r, err := s.results.GetResult(ctx, sess.ResultID)
	if err != nil {
		return nil, err
	}
	if r.AccessCode != sess.AccessCode {
		s.drop(ctx, sess)
		return nil, fmt.Errorf("access code is no longer valid: %w", apperr.ErrExpired)
	}
	return s.render(ctx, sess, r, now), nil
}

// drop removes a session whose code was revoked by a reissue.
func (s *Service) drop(ctx context.Context, sess *Session) {
	for _, key := range []string{sessionKey(sess.ID), codeKey(sess.TenantID, sess.AccessCode)} {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("dropping revoked session failed")
		}
	}
	s.logger.Info().Str("session_id", sess.ID).Msg("disclosure session ended by code reissue")
}

func (s *Service) render(ctx context.Context, sess *Session, r *result.Result, now time.Time) *View {
	v := &View{
		SessionID:        sess.ID,
		State:            sess.State(now),
		StartedAt:        sess.StartedAt,
		ExpiresAt:        sess.ExpiresAt(),
		RemainingSeconds: int(math.Ceil(sess.Remaining(now).Seconds())),
	}
	if v.State == StateExpired || r == nil {
		leave := sess.LeaveAt()
		v.LeaveAt = &leave
		v.Redirect = ExitPath
		return v
	}
	d := Render(r, s.guidelines(ctx, r))
	v.Disclosure = &d
	return v
}

// guidelines resolves the full template for verified results. A missing
// template only drops the interpretation text.
func (s *Service) guidelines(ctx context.Context, r *result.Result) *template.ResultTemplate {
	if s.templates == nil || result.Display(r) != result.DisplayVerified {
		return nil
	}
	t, err := s.templates.GetTemplateByID(ctx, r.ResultData.TemplateID)
	if err != nil {
		s.logger.Debug().Err(err).Str("template_id", r.ResultData.TemplateID).Msg("template lookup for disclosure failed")
		return nil
	}
	return t
}

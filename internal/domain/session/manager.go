package session

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"threadline/internal/infrastructure/metrics"
	"threadline/internal/utils/idgen"
	"threadline/internal/utils/platformerrors"
)

// Config sets session lifetimes.
type Config struct {
	IdleTTL          time.Duration
	AbsoluteTTL      time.Duration
	RefreshThreshold time.Duration
}

// Manager issues and validates opaque session tokens with sliding and absolute expiry.
type Manager struct {
	repo Repository
	cfg  Config
	log  zerolog.Logger
	now  func() time.Time
}

// NewManager creates a session manager.
func NewManager(repo Repository, cfg Config, log zerolog.Logger) *Manager {
	if cfg.AbsoluteTTL <= 0 {
		cfg.AbsoluteTTL = 30 * 24 * time.Hour
	}
	if cfg.IdleTTL <= 0 || cfg.IdleTTL > cfg.AbsoluteTTL {
		cfg.IdleTTL = cfg.AbsoluteTTL
	}
	return &Manager{
		repo: repo,
		cfg:  cfg,
		log:  log.With().Str("component", "session").Logger(),
		now:  time.Now,
	}
}

// Issue starts a session for userID.
func (m *Manager) Issue(ctx context.Context, userID string, meta Metadata) (*Issued, error) {
	now := m.now().UTC()
	s, token, err := m.newSession(ctx, userID, now, now.Add(m.cfg.AbsoluteTTL), meta)
	if err != nil {
		return nil, err
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create session")
	}
	return issued(s, token), nil
}

// Validate resolves token to its user. Failures are UNAUTHORIZED or EXPIRED errors wrapping
// ErrUnknown, ErrRevoked or ErrExpired.
func (m *Manager) Validate(ctx context.Context, token string, meta Metadata) (*Validation, error) {
	if token == "" {
		metrics.RecordSessionValidation("unknown")
		return nil, m.reject(ctx, platformerrors.ErrorTypeUnauthorized, ErrUnknown)
	}
	s, err := m.repo.FindByTokenHash(ctx, idgen.HashToken(token))
	if err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			metrics.RecordSessionValidation("unknown")
			return nil, m.reject(ctx, platformerrors.ErrorTypeUnauthorized, ErrUnknown)
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load session")
	}

	now := m.now().UTC()
	if err := m.check(ctx, s, now); err != nil {
		return nil, err
	}

	if s.RotationPendingReason != nil {
		return m.rotate(ctx, s, now, meta)
	}

	v := &Validation{Session: s, UserID: s.UserID}
	next := minTime(now.Add(m.cfg.IdleTTL), s.AbsoluteExpiresAt)
	if next.Sub(s.ExpiresAt) >= m.cfg.RefreshThreshold && next.After(s.ExpiresAt) {
		if err := m.repo.Touch(ctx, s.ID, next, now); err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to refresh session")
		}
		s.ExpiresAt = next
		s.LastSeenAt = now
		v.Refresh = issued(s, token)
		metrics.RecordSessionValidation("refreshed")
		return v, nil
	}
	metrics.RecordSessionValidation("ok")
	return v, nil
}

// rotate swaps s for a new session of the same user that keeps the absolute expiry.
func (m *Manager) rotate(ctx context.Context, s *Session, now time.Time, meta Metadata) (*Validation, error) {
	replacement, token, err := m.newSession(ctx, s.UserID, now, s.AbsoluteExpiresAt, meta)
	if err != nil {
		return nil, err
	}
	if err := m.repo.Rotate(ctx, s.ID, replacement, now); err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict) {
			return m.revalidate(ctx, s, now)
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to rotate session")
	}
	m.log.Debug().Str("user_id", s.UserID).Str("reason", *s.RotationPendingReason).Msg("session rotated")
	metrics.RecordSessionValidation("rotated")
	return &Validation{Session: replacement, UserID: s.UserID, Refresh: issued(replacement, token), Rotated: true}, nil
}

// revalidate reloads s after a lost rotation race. A session replaced by the concurrent rotation
// stays valid for the request in flight without a new cookie; a session that was logged out,
// purged or expired meanwhile is rejected.
func (m *Manager) revalidate(ctx context.Context, s *Session, now time.Time) (*Validation, error) {
	current, err := m.repo.FindByTokenHash(ctx, s.TokenHash)
	if err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			metrics.RecordSessionValidation("unknown")
			return nil, m.reject(ctx, platformerrors.ErrorTypeUnauthorized, ErrUnknown)
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to reload session")
	}
	if current.RevokedAt != nil && current.ReplacedBy != nil {
		if !now.Before(current.ExpiresAt) || !now.Before(current.AbsoluteExpiresAt) {
			metrics.RecordSessionValidation("expired")
			return nil, m.reject(ctx, platformerrors.ErrorTypeExpired, ErrExpired)
		}
		metrics.RecordSessionValidation("ok")
		return &Validation{Session: current, UserID: current.UserID}, nil
	}
	if err := m.check(ctx, current, now); err != nil {
		return nil, err
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
		"session changed during rotation", nil, "4a7c2e91-5d3b-4f8a-b6e2-9c1d0f3a5b7e")
}

// check rejects revoked and expired sessions.
func (m *Manager) check(ctx context.Context, s *Session, now time.Time) error {
	switch {
	case s.RevokedAt != nil:
		metrics.RecordSessionValidation("revoked")
		return m.reject(ctx, platformerrors.ErrorTypeUnauthorized, ErrRevoked)
	case !now.Before(s.ExpiresAt) || !now.Before(s.AbsoluteExpiresAt):
		metrics.RecordSessionValidation("expired")
		return m.reject(ctx, platformerrors.ErrorTypeExpired, ErrExpired)
	}
	return nil
}

// Logout revokes the session of token. Unknown tokens are ignored.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	s, err := m.repo.FindByTokenHash(ctx, idgen.HashToken(token))
	if err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			return nil
		}
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load session")
	}
	if s.RevokedAt != nil {
		return nil
	}
	if err := m.repo.Revoke(ctx, s.ID, m.now().UTC()); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to revoke session")
	}
	return nil
}

// MarkUserForRotation flags every active session of userID.
func (m *Manager) MarkUserForRotation(ctx context.Context, userID, reason string) error {
	n, err := m.repo.MarkUserForRotation(ctx, userID, reason)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to mark sessions for rotation")
	}
	m.log.Debug().Str("user_id", userID).Int64("sessions", n).Str("reason", reason).Msg("sessions marked for rotation")
	return nil
}

// PurgeExpired deletes sessions past their absolute expiry.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.repo.DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to purge sessions")
	}
	return n, nil
}

func (m *Manager) newSession(ctx context.Context, userID string, now, absolute time.Time, meta Metadata) (*Session, string, error) {
	token, err := idgen.RandomToken(32)
	if err != nil {
		return nil, "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"failed to generate session token", err, "8c9d0e1f-2a3b-4c4d-9e5f-6a7b8c9d0e1a")
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return nil, "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"failed to generate session id", err, "9d0e1f2a-3b4c-4d5e-8f6a-7b8c9d0e1f2b")
	}
	return &Session{
		ID:                id.String(),
		UserID:            userID,
		TokenHash:         idgen.HashToken(token),
		IssuedAt:          now,
		LastSeenAt:        now,
		ExpiresAt:         minTime(now.Add(m.cfg.IdleTTL), absolute),
		AbsoluteExpiresAt: absolute,
		UserAgent:         meta.UserAgent,
		IPAddress:         meta.IPAddress,
	}, token, nil
}

func (m *Manager) reject(ctx context.Context, errorType platformerrors.ErrorType, cause error) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, errorType, "session is not valid", cause, "0e1f2a3b-4c5d-4e6f-9a7b-8c9d0e1f2a3c")
}

func issued(s *Session, token string) *Issued {
	return &Issued{Token: token, SessionID: s.ID, ExpiresAt: s.ExpiresAt, AbsoluteExpiresAt: s.AbsoluteExpiresAt}
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

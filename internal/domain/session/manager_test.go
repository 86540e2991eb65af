package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadline/internal/utils/platformerrors"
)

type memRepo struct {
	mu   sync.Mutex
	byID map[string]*Session
}

func newMemRepo() *memRepo { return &memRepo{byID: map[string]*Session{}} }

func (r *memRepo) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.byID[s.ID] = &cp
	return nil
}

func (r *memRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.TokenHash == tokenHash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "session not found", nil, "")
}

func (r *memRepo) Touch(_ context.Context, id string, expiresAt, lastSeenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id].ExpiresAt = expiresAt
	r.byID[id].LastSeenAt = lastSeenAt
	return nil
}

func (r *memRepo) Rotate(ctx context.Context, oldID string, replacement *Session, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.byID[oldID]
	if old.RevokedAt != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "already rotated", nil, "")
	}
	old.RevokedAt = &at
	old.ReplacedBy = &replacement.ID
	cp := *replacement
	r.byID[replacement.ID] = &cp
	return nil
}

func (r *memRepo) Revoke(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id].RevokedAt = &at
	return nil
}

func (r *memRepo) MarkUserForRotation(_ context.Context, userID, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.byID {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RotationPendingReason = &reason
			n++
		}
	}
	return n, nil
}

func (r *memRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if !before.Before(s.AbsoluteExpiresAt) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager(cfg Config) (*Manager, *memRepo, *clock) {
	repo := newMemRepo()
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := NewManager(repo, cfg, zerolog.Nop())
	m.now = c.now
	return m, repo, c
}

func TestIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newManager(Config{IdleTTL: time.Hour, AbsoluteTTL: 24 * time.Hour, RefreshThreshold: 10 * time.Minute})

	iss, err := m.Issue(ctx, "u1", Metadata{UserAgent: "test"})
	require.NoError(t, err)
	assert.Len(t, iss.SessionID, 26)
	assert.NotContains(t, repo.byID[iss.SessionID].TokenHash, iss.Token)

	v, err := m.Validate(ctx, iss.Token, Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "u1", v.UserID)
	assert.Nil(t, v.Refresh)
}

func TestSlidingRefreshNeverPassesAbsoluteExpiry(t *testing.T) {
	ctx := context.Background()
	m, _, c := newManager(Config{IdleTTL: time.Hour, AbsoluteTTL: 90 * time.Minute, RefreshThreshold: 10 * time.Minute})

	iss, err := m.Issue(ctx, "u1", Metadata{})
	require.NoError(t, err)

	c.advance(5 * time.Minute)
	v, err := m.Validate(ctx, iss.Token, Metadata{})
	require.NoError(t, err)
	assert.Nil(t, v.Refresh, "a 5 minute move is below the threshold")

	c.advance(40 * time.Minute)
	v, err = m.Validate(ctx, iss.Token, Metadata{})
	require.NoError(t, err)
	require.NotNil(t, v.Refresh)
	assert.Equal(t, iss.AbsoluteExpiresAt, v.Refresh.ExpiresAt)
	assert.Equal(t, iss.Token, v.Refresh.Token)

	c.advance(44 * time.Minute)
	v, err = m.Validate(ctx, iss.Token, Metadata{})
	require.NoError(t, err)
	assert.False(t, v.Session.ExpiresAt.After(v.Session.AbsoluteExpiresAt))

	c.advance(2 * time.Minute)
	_, err = m.Validate(ctx, iss.Token, Metadata{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExpired))
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExpired))
}

func TestIdleExpiry(t *testing.T) {
	ctx := context.Background()
	m, _, c := newManager(Config{IdleTTL: time.Hour, AbsoluteTTL: 24 * time.Hour})

	iss, err := m.Issue(ctx, "u1", Metadata{})
	require.NoError(t, err)
	c.advance(61 * time.Minute)
	_, err = m.Validate(ctx, iss.Token, Metadata{})
	assert.True(t, errors.Is(err, ErrExpired))
}

func TestLogoutRevokes(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(Config{IdleTTL: time.Hour, AbsoluteTTL: 24 * time.Hour})

	iss, err := m.Issue(ctx, "u1", Metadata{})
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx, iss.Token))
	require.NoError(t, m.Logout(ctx, iss.Token))

	_, err = m.Validate(ctx, iss.Token, Metadata{})
	assert.True(t, errors.Is(err, ErrRevoked))
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeUnauthorized))

	_, err = m.Validate(ctx, "never-issued", Metadata{})
	assert.True(t, errors.Is(err, ErrUnknown))
}

func TestRotationIssuesFreshSessionWithSameAbsoluteExpiry(t *testing.T) {
	ctx := context.Background()
	m, _, c := newManager(Config{IdleTTL: time.Hour, AbsoluteTTL: 24 * time.Hour, RefreshThreshold: time.Hour})

	iss, err := m.Issue(ctx, "u1", Metadata{})
	require.NoError(t, err)
	require.NoError(t, m.MarkUserForRotation(ctx, "u1", "membership added"))

	c.advance(time.Minute)
	v, err := m.Validate(ctx, iss.Token, Metadata{})
	require.NoError(t, err)
	require.True(t, v.Rotated)
	require.NotNil(t, v.Refresh)
	assert.Equal(t, "u1", v.UserID)
	assert.NotEqual(t, iss.Token, v.Refresh.Token)
	assert.NotEqual(t, iss.SessionID, v.Refresh.SessionID)
	assert.Equal(t, iss.AbsoluteExpiresAt, v.Refresh.AbsoluteExpiresAt)

	_, err = m.Validate(ctx, iss.Token, Metadata{})
	assert.True(t, errors.Is(err, ErrRevoked))

	v, err = m.Validate(ctx, v.Refresh.Token, Metadata{})
	require.NoError(t, err)
	assert.False(t, v.Rotated)
}

// racingRepo lets another request change the session just before Rotate runs.
type racingRepo struct {
	*memRepo
	race func(oldID string)
}

func (r *racingRepo) Rotate(ctx context.Context, oldID string, replacement *Session, at time.Time) error {
	if r.race != nil {
		r.race(oldID)
		r.race = nil
	}
	r.mu.Lock()
	_, ok := r.byID[oldID]
	r.mu.Unlock()
	if !ok {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "already rotated", nil, "")
	}
	return r.memRepo.Rotate(ctx, oldID, replacement, at)
}

func TestLostRotationRaceRevalidatesSession(t *testing.T) {
	tests := []struct {
		name    string
		race    func(repo *memRepo, c *clock, oldID string)
		wantErr error
	}{
		{
			name: "replaced by concurrent rotation",
			race: func(repo *memRepo, c *clock, oldID string) {
				repo.mu.Lock()
				winner := *repo.byID[oldID]
				repo.mu.Unlock()
				winner.ID = "winner"
				winner.TokenHash = "winner-hash"
				winner.RotationPendingReason = nil
				_ = repo.Rotate(context.Background(), oldID, &winner, c.t)
			},
		},
		{
			name: "logged out meanwhile",
			race: func(repo *memRepo, c *clock, oldID string) {
				_ = repo.Revoke(context.Background(), oldID, c.t)
			},
			wantErr: ErrRevoked,
		},
		{
			name: "purged meanwhile",
			race: func(repo *memRepo, _ *clock, oldID string) {
				repo.mu.Lock()
				delete(repo.byID, oldID)
				repo.mu.Unlock()
			},
			wantErr: ErrUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, repo, c := newManager(Config{IdleTTL: time.Hour, AbsoluteTTL: 24 * time.Hour})
			racing := &racingRepo{memRepo: repo}
			m.repo = racing

			iss, err := m.Issue(ctx, "u1", Metadata{})
			require.NoError(t, err)
			require.NoError(t, m.MarkUserForRotation(ctx, "u1", "role changed"))
			racing.race = func(oldID string) { tt.race(repo, c, oldID) }

			c.advance(time.Minute)
			v, err := m.Validate(ctx, iss.Token, Metadata{})
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.Nil(t, v)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "u1", v.UserID)
			assert.False(t, v.Rotated)
			assert.Nil(t, v.Refresh)
			require.NotNil(t, v.Session.ReplacedBy)
			assert.Equal(t, "winner", *v.Session.ReplacedBy)
		})
	}
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	m, repo, c := newManager(Config{IdleTTL: time.Hour, AbsoluteTTL: 2 * time.Hour})

	_, err := m.Issue(ctx, "u1", Metadata{})
	require.NoError(t, err)
	c.advance(3 * time.Hour)
	_, err = m.Issue(ctx, "u2", Metadata{})
	require.NoError(t, err)

	n, err := m.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, repo.byID, 1)
}

package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnknown = errors.New("session unknown")
	ErrExpired = errors.New("session expired")
	ErrRevoked = errors.New("session revoked")
)

// Session is a server-side login. Only the SHA-256 of its token is stored.
type Session struct {
	ID                    string
	UserID                string
	TokenHash             string
	IssuedAt              time.Time
	LastSeenAt            time.Time
	ExpiresAt             time.Time
	AbsoluteExpiresAt     time.Time
	RotationPendingReason *string
	RevokedAt             *time.Time
	ReplacedBy            *string
	UserAgent             string
	IPAddress             string
}

// Metadata describes the request presenting a token.
type Metadata struct {
	UserAgent string
	IPAddress string
}

// Issued is a freshly minted or refreshed credential to hand to the client.
type Issued struct {
	Token             string
	SessionID         string
	ExpiresAt         time.Time
	AbsoluteExpiresAt time.Time
}

// Validation is the result of a successful Validate. Refresh is set when the cookie must be rewritten.
type Validation struct {
	Session *Session
	UserID  string
	Refresh *Issued
	Rotated bool
}

type Repository interface {
	Create(ctx context.Context, s *Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	Touch(ctx context.Context, id string, expiresAt, lastSeenAt time.Time) error
	// Rotate revokes oldID in favour of replacement. It fails with a CONFLICT when oldID is no longer active.
	Rotate(ctx context.Context, oldID string, replacement *Session, at time.Time) error
	Revoke(ctx context.Context, id string, at time.Time) error
	MarkUserForRotation(ctx context.Context, userID, reason string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

package dbschema

import (
	"time"

	"threadline/internal/domain/session"
)

type Session struct {
	ID                    string `gorm:"primaryKey;type:varchar(26)"`
	UserID                string `gorm:"type:varchar(64);not null;index"`
	TokenHash             string `gorm:"type:char(64);not null;uniqueIndex"`
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

func NewSchemaSession(s *session.Session) *Session {
	return &Session{
		ID:                    s.ID,
		UserID:                s.UserID,
		TokenHash:             s.TokenHash,
		IssuedAt:              s.IssuedAt,
		LastSeenAt:            s.LastSeenAt,
		ExpiresAt:             s.ExpiresAt,
		AbsoluteExpiresAt:     s.AbsoluteExpiresAt,
		RotationPendingReason: s.RotationPendingReason,
		RevokedAt:             s.RevokedAt,
		ReplacedBy:            s.ReplacedBy,
		UserAgent:             s.UserAgent,
		IPAddress:             s.IPAddress,
	}
}

func (s *Session) EtoD() *session.Session {
	return &session.Session{
		ID:                    s.ID,
		UserID:                s.UserID,
		TokenHash:             s.TokenHash,
		IssuedAt:              s.IssuedAt,
		LastSeenAt:            s.LastSeenAt,
		ExpiresAt:             s.ExpiresAt,
		AbsoluteExpiresAt:     s.AbsoluteExpiresAt,
		RotationPendingReason: s.RotationPendingReason,
		RevokedAt:             s.RevokedAt,
		ReplacedBy:            s.ReplacedBy,
		UserAgent:             s.UserAgent,
		IPAddress:             s.IPAddress,
	}
}

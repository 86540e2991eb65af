package dbschema

import (
	"time"

	"threadline/internal/domain/presence"
)

type UserPresence struct {
	UserID     string `gorm:"primaryKey;type:varchar(64)"`
	Status     string
	LastSeenAt time.Time
}

func NewSchemaUserPresence(p *presence.Presence) *UserPresence {
	return &UserPresence{UserID: p.UserID, Status: string(p.Status), LastSeenAt: p.LastSeenAt}
}

func (p *UserPresence) EtoD() *presence.Presence {
	return &presence.Presence{UserID: p.UserID, Status: presence.Status(p.Status), LastSeenAt: p.LastSeenAt}
}

package dbschema

import (
	"time"

	"threadline/internal/domain/conversation"
)

type Conversation struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	Title       string
	IsGroup     bool
	CreatedBy   string
	RootCounter int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewSchemaConversation(c *conversation.Conversation) *Conversation {
	return &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		IsGroup:   c.IsGroup,
		CreatedBy: c.CreatedBy,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (c *Conversation) EtoD() *conversation.Conversation {
	return &conversation.Conversation{
		ID:        c.ID,
		Title:     c.Title,
		IsGroup:   c.IsGroup,
		CreatedBy: c.CreatedBy,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type ConversationMember struct {
	ConversationID string `gorm:"primaryKey;type:varchar(64)"`
	UserID         string `gorm:"primaryKey;type:varchar(64)"`
	Role           string `gorm:"type:varchar(16);not null"`
	JoinedAt       time.Time
}

func NewSchemaConversationMember(m *conversation.Membership) *ConversationMember {
	return &ConversationMember{
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           string(m.Role),
		JoinedAt:       m.JoinedAt,
	}
}

func (m *ConversationMember) EtoD() *conversation.Membership {
	return &conversation.Membership{
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           conversation.Role(m.Role),
		JoinedAt:       m.JoinedAt,
	}
}

type ConversationInvite struct {
	ID             string `gorm:"primaryKey;type:varchar(26)"`
	ConversationID string `gorm:"type:varchar(64);not null"`
	Email          string
	Role           string
	IssuedBy       string
	TokenHash      string `gorm:"type:char(64);uniqueIndex"`
	ExpiresAt      time.Time
	AcceptedBy     *string
	AcceptedAt     *time.Time
	CreatedAt      time.Time
}

func NewSchemaConversationInvite(i *conversation.Invite) *ConversationInvite {
	return &ConversationInvite{
		ID:             i.ID,
		ConversationID: i.ConversationID,
		Email:          i.Email,
		Role:           string(i.Role),
		IssuedBy:       i.IssuedBy,
		TokenHash:      i.TokenHash,
		ExpiresAt:      i.ExpiresAt,
		AcceptedBy:     i.AcceptedBy,
		AcceptedAt:     i.AcceptedAt,
		CreatedAt:      i.CreatedAt,
	}
}

func (i *ConversationInvite) EtoD() *conversation.Invite {
	return &conversation.Invite{
		ID:             i.ID,
		ConversationID: i.ConversationID,
		Email:          i.Email,
		Role:           conversation.Role(i.Role),
		IssuedBy:       i.IssuedBy,
		TokenHash:      i.TokenHash,
		ExpiresAt:      i.ExpiresAt,
		AcceptedBy:     i.AcceptedBy,
		AcceptedAt:     i.AcceptedAt,
		CreatedAt:      i.CreatedAt,
	}
}

package dbschema

import (
	"time"

	"gorm.io/datatypes"

	"threadline/internal/domain/message"
)

type Message struct {
	ID             string `gorm:"primaryKey;type:varchar(64)"`
	ConversationID string `gorm:"type:varchar(64);not null"`
	RootID         string `gorm:"type:varchar(64);not null"`
	ParentID       *string
	AuthorUserID   *string
	Role           string
	Content        string
	Path           string `gorm:"type:varchar(512)"`
	Depth          int
	ChunkCount     int
	ChildCounter   int64
	FinishReason   string
	Usage          datatypes.JSONType[message.Usage] `gorm:"type:jsonb"`
	Model          string
	CreatedAt      time.Time
	EditedAt       *time.Time
	DeletedAt      *time.Time
}

func NewSchemaMessage(m *message.Message) *Message {
	return &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		RootID:         m.RootID,
		ParentID:       m.ParentID,
		AuthorUserID:   m.AuthorUserID,
		Role:           string(m.Role),
		Content:        m.Content,
		Path:           m.Path,
		Depth:          m.Depth,
		ChunkCount:     m.ChunkCount,
		FinishReason:   m.FinishReason,
		Usage:          datatypes.NewJSONType(m.Usage),
		Model:          m.Model,
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
		DeletedAt:      m.DeletedAt,
	}
}

func (m *Message) EtoD() *message.Message {
	return &message.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		RootID:         m.RootID,
		ParentID:       m.ParentID,
		AuthorUserID:   m.AuthorUserID,
		Role:           message.Role(m.Role),
		Content:        m.Content,
		Path:           m.Path,
		Depth:          m.Depth,
		ChunkCount:     m.ChunkCount,
		FinishReason:   m.FinishReason,
		Usage:          m.Usage.Data(),
		Model:          m.Model,
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
		DeletedAt:      m.DeletedAt,
	}
}

type MessageRevision struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	MessageID string
	Content   string
	EditedBy  string
	CreatedAt time.Time
}

func (r *MessageRevision) EtoD() *message.Revision {
	return &message.Revision{MessageID: r.MessageID, Content: r.Content, EditedBy: r.EditedBy, CreatedAt: r.CreatedAt}
}

type ReadMarker struct {
	UserID         string `gorm:"primaryKey"`
	RootID         string `gorm:"primaryKey"`
	ConversationID string
	Path           string
	MarkedAt       time.Time
	UpdatedAt      time.Time
}

func NewSchemaReadMarker(m *message.ReadMarker) *ReadMarker {
	return &ReadMarker{
		UserID:         m.UserID,
		RootID:         m.RootID,
		ConversationID: m.ConversationID,
		Path:           m.Path,
		MarkedAt:       m.MarkedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

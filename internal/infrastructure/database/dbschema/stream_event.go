package dbschema

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"threadline/internal/domain/streamevent"
)

type StreamEvent struct {
	UserID         string `gorm:"primaryKey;type:varchar(64)"`
	Sequence       int64  `gorm:"primaryKey;autoIncrement:false"`
	EventID        string
	Name           string
	ConversationID string
	Payload        datatypes.JSON `gorm:"type:jsonb"`
	RecordedAt     time.Time
}

func NewSchemaStreamEvent(r streamevent.Record) *StreamEvent {
	payload := datatypes.JSON(r.Payload)
	if len(payload) == 0 {
		payload = datatypes.JSON("{}")
	}
	return &StreamEvent{
		UserID:         r.UserID,
		Sequence:       r.Sequence,
		EventID:        r.EventID,
		Name:           string(r.Name),
		ConversationID: r.ConversationID,
		Payload:        payload,
		RecordedAt:     r.RecordedAt,
	}
}

func (e *StreamEvent) EtoD() streamevent.Record {
	return streamevent.Record{
		UserID:         e.UserID,
		Sequence:       e.Sequence,
		EventID:        e.EventID,
		Name:           streamevent.Name(e.Name),
		ConversationID: e.ConversationID,
		Payload:        json.RawMessage(e.Payload),
		RecordedAt:     e.RecordedAt,
	}
}

package streamevent

import "time"

// Usage is the running token accounting of a message.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ThreadNewPayload struct {
	ConversationID string    `json:"conversation_id"`
	RootID         string    `json:"root_id"`
	AuthorUserID   string    `json:"author_user_id,omitempty"`
	Preview        string    `json:"preview"`
	CreatedAt      time.Time `json:"created_at"`
}

type ThreadActivityPayload struct {
	ConversationID string    `json:"conversation_id"`
	RootID         string    `json:"root_id"`
	MessageID      string    `json:"message_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type MessageDeltaPayload struct {
	ConversationID string `json:"conversation_id"`
	RootID         string `json:"root_id"`
	MessageID      string `json:"message_id"`
	ParentID       string `json:"parent_id,omitempty"`
	Role           string `json:"role"`
	Path           string `json:"path"`
	Index          int    `json:"index"`
	Delta          string `json:"delta"`
	Cumulative     string `json:"cumulative"`
	Usage          Usage  `json:"usage"`
	// Replace marks a full-content replacement (edits): delta equals cumulative.
	Replace bool `json:"replace,omitempty"`
}

type MessageDonePayload struct {
	ConversationID string `json:"conversation_id"`
	RootID         string `json:"root_id"`
	MessageID      string `json:"message_id"`
	ParentID       string `json:"parent_id,omitempty"`
	Role           string `json:"role,omitempty"`
	Path           string `json:"path,omitempty"`
	// Content is set for messages posted whole rather than streamed.
	Content      string `json:"content,omitempty"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

type PresencePayload struct {
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

type TypingPayload struct {
	ConversationID string    `json:"conversation_id"`
	RootID         string    `json:"root_id"`
	UserID         string    `json:"user_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type UnreadPayload struct {
	ConversationID string `json:"conversation_id"`
	RootID         string `json:"root_id"`
	Unread         int64  `json:"unread"`
	MarkerPath     string `json:"marker_path,omitempty"`
}

type MembershipPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role,omitempty"`
	Action         string `json:"action"`
}

// ErrorPayload is carried by both "error" and "stream.error".
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
	Dropped   uint64 `json:"dropped,omitempty"`
}

const (
	ErrorCodeLagging       = "lagging"
	ErrorCodeTimeout       = "timeout"
	ErrorCodeBackend       = "backend_error"
	ErrorCodePublishFailed = "publish_failed"
)

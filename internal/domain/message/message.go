package message

import (
	"context"
	"errors"
	"time"

	"threadline/internal/domain/streamevent"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Finish reasons recorded on completed messages.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishCancelled = "cancelled"
	FinishError     = "error"
	FinishDeleted   = "deleted"
)

// Tombstone replaces the content of deleted messages.
const Tombstone = "[deleted]"

// Usage is the token accounting of a message.
type Usage = streamevent.Usage

var (
	ErrChunkOutOfOrder = errors.New("chunk index is not the next index for this message")
	ErrNotStreaming    = errors.New("message is not an in-progress assistant message")
)

type Message struct {
	ID             string
	ConversationID string
	RootID         string
	ParentID       *string
	AuthorUserID   *string
	Role           Role
	Content        string
	Path           string
	Depth          int
	ChunkCount     int
	FinishReason   string
	Usage          Usage
	Model          string
	CreatedAt      time.Time
	EditedAt       *time.Time
	DeletedAt      *time.Time
}

func (m *Message) IsRoot() bool {
	return m.ParentID == nil
}

func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Streaming reports whether an assistant message is still receiving chunks.
func (m *Message) Streaming() bool {
	return m.Role == RoleAssistant && m.FinishReason == "" && !m.IsDeleted()
}

// AuthoredBy reports whether userID wrote the message.
func (m *Message) AuthoredBy(userID string) bool {
	return m.AuthorUserID != nil && *m.AuthorUserID == userID
}

func (m *Message) parentID() string {
	if m.ParentID == nil {
		return ""
	}
	return *m.ParentID
}

// ThreadSummary describes one thread of a conversation.
type ThreadSummary struct {
	RootID         string
	ConversationID string
	Preview        string
	AuthorUserID   *string
	ReplyCount     int64
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// ReadMarker is how far a user has read a thread.
type ReadMarker struct {
	UserID         string
	ConversationID string
	RootID         string
	Path           string
	MarkedAt       time.Time
	UpdatedAt      time.Time
}

// UnreadCount is the number of unread messages in one thread.
type UnreadCount struct {
	RootID string
	Unread int64
}

// Revision is an archived version of an edited message.
type Revision struct {
	MessageID string
	Content   string
	EditedBy  string
	CreatedAt time.Time
}

// Repository persists messages. Path assignment happens inside the repository transaction.
type Repository interface {
	// CreateRoot assigns the next root segment of the conversation and inserts m.
	CreateRoot(ctx context.Context, m *Message) error
	// CreateReply locks the parent row, advances its child counter and inserts m beneath it.
	CreateReply(ctx context.Context, parentID string, m *Message) error
	FindByID(ctx context.Context, id string) (*Message, error)
	FindByPaths(ctx context.Context, rootID string, paths []string) ([]*Message, error)
	ListChildren(ctx context.Context, parentID string) ([]*Message, error)
	// ListTree returns messages of a thread with path > afterPath ordered by path.
	ListTree(ctx context.Context, rootID, afterPath string, limit int) ([]*Message, error)
	// ListThreads returns threads whose activity is older than before (nil for the newest), newest first.
	ListThreads(ctx context.Context, conversationID string, before *time.Time, limit int) ([]*ThreadSummary, error)
	// AppendChunk fails with a CONFLICT wrapping ErrChunkOutOfOrder unless index equals the stored chunk count.
	AppendChunk(ctx context.Context, id string, index int, delta string, usage Usage) (*Message, error)
	// Finalize records the finish reason once; changed is false when it was already set.
	Finalize(ctx context.Context, id, finishReason string, usage Usage) (msg *Message, changed bool, err error)
	UpdateContent(ctx context.Context, id, content, editorID string, at time.Time) (*Message, error)
	SoftDelete(ctx context.Context, id, tombstone string, at time.Time) (*Message, error)
	// LastByPath returns the live message with the greatest path in the thread.
	LastByPath(ctx context.Context, rootID string) (*Message, error)
	FindByPath(ctx context.Context, rootID, path string) (*Message, error)
	UpsertReadMarker(ctx context.Context, marker *ReadMarker) error
	// CountUnread counts live messages not authored by userID created after the user's marker,
	// per thread. An empty rootID covers every thread of the conversation.
	CountUnread(ctx context.Context, conversationID, userID, rootID string) ([]UnreadCount, error)
	ListRevisions(ctx context.Context, messageID string) ([]*Revision, error)
}

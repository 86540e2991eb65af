package responses

import (
	"time"

	"github.com/gin-gonic/gin"

	"threadline/internal/domain/conversation"
	"threadline/internal/domain/message"
	"threadline/internal/domain/presence"
	"threadline/internal/domain/ratelimit"
	"threadline/internal/domain/user"
	"threadline/internal/infrastructure/logger"
	"threadline/internal/utils/functional"
	"threadline/internal/utils/platformerrors"
)

// HandleError renders err as a problem document.
func HandleError(c *gin.Context, err error) {
	platformerrors.WriteProblem(c, err, logger.GetLogger())
}

// HandleNewError renders a freshly built handler-layer error.
func HandleNewError(c *gin.Context, errorType platformerrors.ErrorType, message, uuid string) {
	HandleError(c, platformerrors.NewError(c.Request.Context(), platformerrors.LayerHandler, errorType, message, nil, uuid))
}

type ListResponse[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
	// NextCursor is empty on the last page.
	NextCursor string `json:"next_cursor,omitempty"`
}

func NewList[T any](data []T, next string) ListResponse[T] {
	if data == nil {
		data = []T{}
	}
	return ListResponse[T]{Object: "list", Data: data, NextCursor: next}
}

// ===== Users =====

type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Admin       bool   `json:"admin"`
}

func NewUserResponse(u *user.User, admin bool) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Admin: admin}
}

type SessionResponse struct {
	User              UserResponse `json:"user"`
	ExpiresAt         time.Time    `json:"expires_at"`
	AbsoluteExpiresAt time.Time    `json:"absolute_expires_at"`
}

// ===== Conversations =====

type ConversationResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	IsGroup   bool      `json:"is_group"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Role      string    `json:"role,omitempty"`
}

func NewConversationResponse(c *conversation.Conversation, m *conversation.Membership) ConversationResponse {
	resp := ConversationResponse{
		ID:        c.ID,
		Title:     c.Title,
		IsGroup:   c.IsGroup,
		CreatedBy: c.CreatedBy,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if m != nil {
		resp.Role = string(m.Role)
	}
	return resp
}

func NewConversationList(convs []*conversation.Conversation) []ConversationResponse {
	return functional.Map(convs, func(c *conversation.Conversation) ConversationResponse {
		return NewConversationResponse(c, nil)
	})
}

type ParticipantResponse struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
}

func NewParticipantResponse(m *conversation.Membership) ParticipantResponse {
	return ParticipantResponse{ConversationID: m.ConversationID, UserID: m.UserID, Role: string(m.Role), JoinedAt: m.JoinedAt}
}

func NewParticipantList(ms []*conversation.Membership) []ParticipantResponse {
	return functional.Map(ms, NewParticipantResponse)
}

type InviteResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	ExpiresAt      time.Time `json:"expires_at"`
	// Token is only returned once, when the invite is created.
	Token string `json:"token,omitempty"`
}

func NewInviteResponse(inv *conversation.Invite) InviteResponse {
	return InviteResponse{
		ID:             inv.ID,
		ConversationID: inv.ConversationID,
		Email:          inv.Email,
		Role:           string(inv.Role),
		ExpiresAt:      inv.ExpiresAt,
		Token:          inv.Token,
	}
}

// ===== Messages =====

type MessageResponse struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	RootID         string        `json:"root_id"`
	ParentID       *string       `json:"parent_id"`
	AuthorUserID   *string       `json:"author_user_id"`
	Role           string        `json:"role"`
	Content        string        `json:"content"`
	Path           string        `json:"path"`
	Depth          int           `json:"depth"`
	Streaming      bool          `json:"streaming"`
	FinishReason   string        `json:"finish_reason,omitempty"`
	Usage          message.Usage `json:"usage"`
	Model          string        `json:"model,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	EditedAt       *time.Time    `json:"edited_at,omitempty"`
	Deleted        bool          `json:"deleted"`
}

func NewMessageResponse(m *message.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		RootID:         m.RootID,
		ParentID:       m.ParentID,
		AuthorUserID:   m.AuthorUserID,
		Role:           string(m.Role),
		Content:        m.Content,
		Path:           m.Path,
		Depth:          m.Depth,
		Streaming:      m.Streaming(),
		FinishReason:   m.FinishReason,
		Usage:          m.Usage,
		Model:          m.Model,
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
		Deleted:        m.IsDeleted(),
	}
}

func NewMessageList(ms []*message.Message) []MessageResponse {
	return functional.Map(ms, NewMessageResponse)
}

// PostMessageResponse carries the posted message and, when requested, the assistant placeholder.
type PostMessageResponse struct {
	Message   MessageResponse  `json:"message"`
	Assistant *MessageResponse `json:"assistant,omitempty"`
}

type RevisionResponse struct {
	Content   string    `json:"content"`
	EditedBy  string    `json:"edited_by"`
	CreatedAt time.Time `json:"created_at"`
}

func NewRevisionList(rs []*message.Revision) []RevisionResponse {
	return functional.Map(rs, func(r *message.Revision) RevisionResponse {
		return RevisionResponse{Content: r.Content, EditedBy: r.EditedBy, CreatedAt: r.CreatedAt}
	})
}

type ThreadSummaryResponse struct {
	RootID         string    `json:"root_id"`
	ConversationID string    `json:"conversation_id"`
	Preview        string    `json:"preview"`
	AuthorUserID   *string   `json:"author_user_id"`
	ReplyCount     int64     `json:"reply_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func NewThreadList(ts []*message.ThreadSummary) []ThreadSummaryResponse {
	return functional.Map(ts, func(t *message.ThreadSummary) ThreadSummaryResponse {
		return ThreadSummaryResponse{
			RootID:         t.RootID,
			ConversationID: t.ConversationID,
			Preview:        t.Preview,
			AuthorUserID:   t.AuthorUserID,
			ReplyCount:     t.ReplyCount,
			CreatedAt:      t.CreatedAt,
			LastActivityAt: t.LastActivityAt,
		}
	})
}

type UnreadResponse struct {
	RootID string `json:"root_id"`
	Unread int64  `json:"unread"`
}

func NewUnreadList(us []message.UnreadCount) []UnreadResponse {
	return functional.Map(us, func(u message.UnreadCount) UnreadResponse {
		return UnreadResponse{RootID: u.RootID, Unread: u.Unread}
	})
}

type ReadMarkerResponse struct {
	RootID   string    `json:"root_id"`
	Path     string    `json:"path"`
	MarkedAt time.Time `json:"marked_at"`
	Unread   int64     `json:"unread"`
}

type CancelResponse struct {
	MessageID string `json:"message_id"`
	Result    string `json:"result"`
}

// ===== Presence =====

type PresenceResponse struct {
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func NewPresenceResponse(p *presence.Presence) PresenceResponse {
	return PresenceResponse{UserID: p.UserID, Status: string(p.Status), LastSeenAt: p.LastSeenAt}
}

type TypingResponse struct {
	RootID    string    `json:"root_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ===== Rate limits =====

type RateLimitProfileResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Algorithm string           `json:"algorithm"`
	Params    ratelimit.Params `json:"params"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func NewRateLimitProfileResponse(p *ratelimit.Profile) RateLimitProfileResponse {
	return RateLimitProfileResponse{ID: p.ID, Name: p.Name, Algorithm: p.Algorithm, Params: p.Params, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
}

type RateLimitAssignmentResponse struct {
	ID          string    `json:"id"`
	ProfileID   string    `json:"profile_id"`
	Method      string    `json:"method"`
	PathPattern string    `json:"path_pattern"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewRateLimitAssignmentResponse(a *ratelimit.Assignment) RateLimitAssignmentResponse {
	return RateLimitAssignmentResponse{ID: a.ID, ProfileID: a.ProfileID, Method: a.Method, PathPattern: a.PathPattern, CreatedAt: a.CreatedAt}
}

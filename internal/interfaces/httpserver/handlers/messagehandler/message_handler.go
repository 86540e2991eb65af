package messagehandler

import (
	"context"
	"time"

	"threadline/internal/domain/assistant"
	"threadline/internal/domain/conversation"
	"threadline/internal/domain/message"
	"threadline/internal/interfaces/httpserver/requests"
	"threadline/internal/interfaces/httpserver/responses"
	"threadline/internal/utils/platformerrors"
)

// MessageHandler handles threads and messages.
type MessageHandler struct {
	messageService *message.Service
	responder      *assistant.Responder
}

func NewMessageHandler(messageService *message.Service, responder *assistant.Responder) *MessageHandler {
	return &MessageHandler{messageService: messageService, responder: responder}
}

// ===============================================
// Posting
// ===============================================

func (h *MessageHandler) PostRoot(ctx context.Context, userID, conversationID string, req requests.PostMessageRequest) (*responses.PostMessageResponse, error) {
	msg, err := h.messageService.PostRoot(ctx, message.PostInput{
		ConversationID: conversationID,
		AuthorID:       userID,
		Content:        req.Content,
	})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to post message")
	}
	return h.withAssistant(ctx, msg, req)
}

func (h *MessageHandler) Reply(ctx context.Context, userID, parentID string, req requests.PostMessageRequest) (*responses.PostMessageResponse, error) {
	msg, err := h.messageService.Reply(ctx, message.PostInput{
		ParentID: parentID,
		AuthorID: userID,
		Content:  req.Content,
	})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to post reply")
	}
	return h.withAssistant(ctx, msg, req)
}

// withAssistant starts a generation beneath msg when the request asks for one. The user
// message is already stored, so a failed start is reported without undoing it and the
// problem carries its id.
func (h *MessageHandler) withAssistant(ctx context.Context, msg *message.Message, req requests.PostMessageRequest) (*responses.PostMessageResponse, error) {
	resp := &responses.PostMessageResponse{Message: responses.NewMessageResponse(msg)}
	if !req.InvokeAssistant {
		return resp, nil
	}
	placeholder, err := h.responder.Start(ctx, msg.ID, req.Model)
	if err != nil {
		errorType, code := platformerrors.ErrorTypeServiceUnavailable, "7d1e4b2a-9c3f-4a58-b6e0-1f2d3c4b5a69"
		if pe := platformerrors.GetPlatformError(err); pe != nil {
			errorType, code = pe.Type, pe.UUID
		}
		return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerHandler, errorType,
			"failed to start assistant reply", err, code, map[string]any{"message_id": msg.ID})
	}
	assistantResp := responses.NewMessageResponse(placeholder)
	resp.Assistant = &assistantResp
	return resp, nil
}

// ===============================================
// Single message
// ===============================================

func (h *MessageHandler) GetMessage(ctx context.Context, userID, messageID string) (*responses.MessageResponse, error) {
	msg, err := h.messageService.Get(ctx, userID, messageID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to get message")
	}
	resp := responses.NewMessageResponse(msg)
	return &resp, nil
}

func (h *MessageHandler) EditMessage(ctx context.Context, userID, messageID string, req requests.EditMessageRequest) (*responses.MessageResponse, error) {
	msg, err := h.messageService.Edit(ctx, userID, messageID, req.Content)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to edit message")
	}
	resp := responses.NewMessageResponse(msg)
	return &resp, nil
}

func (h *MessageHandler) DeleteMessage(ctx context.Context, userID, messageID string) (*responses.MessageResponse, error) {
	msg, err := h.messageService.Delete(ctx, userID, messageID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to delete message")
	}
	resp := responses.NewMessageResponse(msg)
	return &resp, nil
}

func (h *MessageHandler) CancelGeneration(ctx context.Context, userID, messageID string) (*responses.CancelResponse, error) {
	reason, err := h.messageService.CancelGeneration(ctx, userID, messageID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to cancel generation")
	}
	return &responses.CancelResponse{MessageID: messageID, Result: reason.String()}, nil
}

func (h *MessageHandler) Revisions(ctx context.Context, userID, messageID string) ([]responses.RevisionResponse, error) {
	revs, err := h.messageService.Revisions(ctx, userID, messageID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list revisions")
	}
	return responses.NewRevisionList(revs), nil
}

// ===============================================
// Threads
// ===============================================

// ListThreads lists thread roots of a conversation. after is an RFC 3339 timestamp or empty.
func (h *MessageHandler) ListThreads(ctx context.Context, userID, conversationID, after string, limit int) (*responses.ListResponse[responses.ThreadSummaryResponse], error) {
	var since *time.Time
	if after != "" {
		t, err := time.Parse(time.RFC3339Nano, after)
		if err != nil {
			return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeValidation,
				"after must be an RFC 3339 timestamp", err, "9c3f1e27-4d8b-4a6e-b0f5-7e2d1c9a8b31", map[string]any{"field": "after"})
		}
		since = &t
	}
	threads, err := h.messageService.ListThreads(ctx, userID, conversationID, since, limit)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list threads")
	}
	next := ""
	if len(threads) == limit && limit > 0 {
		next = threads[len(threads)-1].LastActivityAt.UTC().Format(time.RFC3339Nano)
	}
	resp := responses.NewList(responses.NewThreadList(threads), next)
	return &resp, nil
}

func (h *MessageHandler) ThreadRoot(ctx context.Context, userID, rootID string) (*responses.MessageResponse, error) {
	root, err := h.messageService.ThreadRoot(ctx, userID, rootID, conversation.RoleViewer)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to get thread")
	}
	resp := responses.NewMessageResponse(root)
	return &resp, nil
}

func (h *MessageHandler) Tree(ctx context.Context, userID, rootID, cursor string, limit int) (*responses.ListResponse[responses.MessageResponse], error) {
	msgs, next, err := h.messageService.Tree(ctx, userID, rootID, cursor, limit)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to load thread")
	}
	resp := responses.NewList(responses.NewMessageList(msgs), next)
	return &resp, nil
}

// ===============================================
// Unread
// ===============================================

func (h *MessageHandler) Unread(ctx context.Context, userID, conversationID string) ([]responses.UnreadResponse, error) {
	counts, err := h.messageService.UnreadSummary(ctx, userID, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to count unread")
	}
	return responses.NewUnreadList(counts), nil
}

func (h *MessageHandler) MarkRead(ctx context.Context, userID, rootID string, req requests.MarkReadRequest) (*responses.ReadMarkerResponse, error) {
	marker, unread, err := h.messageService.MarkRead(ctx, userID, rootID, req.Path)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to mark thread read")
	}
	return &responses.ReadMarkerResponse{
		RootID:   marker.RootID,
		Path:     marker.Path,
		MarkedAt: marker.MarkedAt,
		Unread:   unread,
	}, nil
}

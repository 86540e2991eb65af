package conversationhandler

import (
	"context"

	"threadline/internal/domain/auth"
	"threadline/internal/domain/conversation"
	"threadline/internal/interfaces/httpserver/requests"
	"threadline/internal/interfaces/httpserver/responses"
	"threadline/internal/utils/platformerrors"
)

// ConversationHandler handles conversations, participants and invites.
type ConversationHandler struct {
	conversationService *conversation.Service
}

func NewConversationHandler(conversationService *conversation.Service) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

func (h *ConversationHandler) CreateConversation(ctx context.Context, userID string, req requests.CreateConversationRequest) (*responses.ConversationResponse, error) {
	conv, err := h.conversationService.Create(ctx, userID, req.Title, req.IsGroup, req.MemberIDs)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to create conversation")
	}
	resp := responses.NewConversationResponse(conv, &conversation.Membership{Role: conversation.RoleOwner})
	return &resp, nil
}

func (h *ConversationHandler) GetConversation(ctx context.Context, userID, conversationID string) (*responses.ConversationResponse, error) {
	conv, membership, err := h.conversationService.Get(ctx, userID, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to get conversation")
	}
	resp := responses.NewConversationResponse(conv, membership)
	return &resp, nil
}

func (h *ConversationHandler) ListConversations(ctx context.Context, userID string, limit int) ([]responses.ConversationResponse, error) {
	convs, err := h.conversationService.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list conversations")
	}
	return responses.NewConversationList(convs), nil
}

func (h *ConversationHandler) ListParticipants(ctx context.Context, userID, conversationID string) ([]responses.ParticipantResponse, error) {
	members, err := h.conversationService.ListParticipants(ctx, userID, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list participants")
	}
	return responses.NewParticipantList(members), nil
}

func (h *ConversationHandler) AddParticipant(ctx context.Context, actorID, conversationID string, req requests.AddParticipantRequest) (*responses.ParticipantResponse, error) {
	role := conversation.Role(req.Role)
	if role == "" {
		role = conversation.RoleMember
	}
	m, err := h.conversationService.AddParticipant(ctx, actorID, conversationID, req.UserID, role)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to add participant")
	}
	resp := responses.NewParticipantResponse(m)
	return &resp, nil
}

func (h *ConversationHandler) ChangeRole(ctx context.Context, actorID, conversationID, userID string, req requests.ChangeRoleRequest) (*responses.ParticipantResponse, error) {
	m, err := h.conversationService.ChangeRole(ctx, actorID, conversationID, userID, conversation.Role(req.Role))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to change role")
	}
	resp := responses.NewParticipantResponse(m)
	return &resp, nil
}

// RemoveParticipant removes userID; removing yourself is leaving.
func (h *ConversationHandler) RemoveParticipant(ctx context.Context, actorID, conversationID, userID string) error {
	var err error
	if actorID == userID {
		err = h.conversationService.Leave(ctx, actorID, conversationID)
	} else {
		err = h.conversationService.RemoveParticipant(ctx, actorID, conversationID, userID)
	}
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to remove participant")
	}
	return nil
}

func (h *ConversationHandler) CreateInvite(ctx context.Context, actorID, conversationID string, req requests.CreateInviteRequest) (*responses.InviteResponse, error) {
	inv, err := h.conversationService.CreateInvite(ctx, actorID, conversationID, req.Email, conversation.Role(req.Role))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to create invite")
	}
	resp := responses.NewInviteResponse(inv)
	return &resp, nil
}

func (h *ConversationHandler) AcceptInvite(ctx context.Context, p *auth.Principal, req requests.AcceptInviteRequest) (*responses.ParticipantResponse, error) {
	m, err := h.conversationService.AcceptInvite(ctx, p.User.ID, p.User.Email, req.Token)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to accept invite")
	}
	resp := responses.NewParticipantResponse(m)
	return &resp, nil
}

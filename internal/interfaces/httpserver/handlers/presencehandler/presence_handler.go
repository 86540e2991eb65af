package presencehandler

import (
	"context"

	"threadline/internal/domain/presence"
	"threadline/internal/interfaces/httpserver/requests"
	"threadline/internal/interfaces/httpserver/responses"
	"threadline/internal/utils/platformerrors"
)

type PresenceHandler struct {
	presenceService *presence.Service
}

func NewPresenceHandler(presenceService *presence.Service) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

func (h *PresenceHandler) SetStatus(ctx context.Context, userID string, req requests.SetPresenceRequest) (*responses.PresenceResponse, error) {
	p, err := h.presenceService.SetStatus(ctx, userID, presence.Status(req.Status))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to set presence")
	}
	resp := responses.NewPresenceResponse(p)
	return &resp, nil
}

func (h *PresenceHandler) GetPresence(ctx context.Context, userID string) (*responses.PresenceResponse, error) {
	p, err := h.presenceService.Get(ctx, userID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to get presence")
	}
	resp := responses.NewPresenceResponse(p)
	return &resp, nil
}

func (h *PresenceHandler) Typing(ctx context.Context, userID, rootID string) (*responses.TypingResponse, error) {
	expires, err := h.presenceService.Typing(ctx, userID, rootID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to signal typing")
	}
	return &responses.TypingResponse{RootID: rootID, ExpiresAt: expires}, nil
}

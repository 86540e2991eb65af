package ratelimithandler

import (
	"context"

	"threadline/internal/domain/ratelimit"
	"threadline/internal/interfaces/httpserver/requests"
	"threadline/internal/interfaces/httpserver/responses"
	"threadline/internal/utils/functional"
	"threadline/internal/utils/platformerrors"
)

// RateLimitHandler administers rate limit profiles and their route assignments.
type RateLimitHandler struct {
	adminService *ratelimit.AdminService
}

func NewRateLimitHandler(adminService *ratelimit.AdminService) *RateLimitHandler {
	return &RateLimitHandler{adminService: adminService}
}

// ===== Profiles =====

func (h *RateLimitHandler) ListProfiles(ctx context.Context) ([]responses.RateLimitProfileResponse, error) {
	profiles, err := h.adminService.ListProfiles(ctx)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list rate limit profiles")
	}
	return functional.Map(profiles, responses.NewRateLimitProfileResponse), nil
}

func (h *RateLimitHandler) CreateProfile(ctx context.Context, req requests.CreateRateLimitProfileRequest) (*responses.RateLimitProfileResponse, error) {
	p, err := h.adminService.CreateProfile(ctx, req.Name, req.Algorithm, toParams(req.Params))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to create rate limit profile")
	}
	resp := responses.NewRateLimitProfileResponse(p)
	return &resp, nil
}

func (h *RateLimitHandler) UpdateProfile(ctx context.Context, id string, req requests.UpdateRateLimitProfileRequest) (*responses.RateLimitProfileResponse, error) {
	p, err := h.adminService.UpdateProfile(ctx, id, toParams(req.Params))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to update rate limit profile")
	}
	resp := responses.NewRateLimitProfileResponse(p)
	return &resp, nil
}

func (h *RateLimitHandler) DeleteProfile(ctx context.Context, id string) error {
	if err := h.adminService.DeleteProfile(ctx, id); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to delete rate limit profile")
	}
	return nil
}

// ===== Assignments =====

func (h *RateLimitHandler) ListAssignments(ctx context.Context) ([]responses.RateLimitAssignmentResponse, error) {
	assignments, err := h.adminService.ListAssignments(ctx)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list rate limit assignments")
	}
	return functional.Map(assignments, responses.NewRateLimitAssignmentResponse), nil
}

func (h *RateLimitHandler) CreateAssignment(ctx context.Context, req requests.CreateRateLimitAssignmentRequest) (*responses.RateLimitAssignmentResponse, error) {
	a, err := h.adminService.CreateAssignment(ctx, req.ProfileID, req.Method, req.PathPattern)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to create rate limit assignment")
	}
	resp := responses.NewRateLimitAssignmentResponse(a)
	return &resp, nil
}

func (h *RateLimitHandler) DeleteAssignment(ctx context.Context, id string) error {
	if err := h.adminService.DeleteAssignment(ctx, id); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to delete rate limit assignment")
	}
	return nil
}

func (h *RateLimitHandler) Reload(ctx context.Context) error {
	if err := h.adminService.Reload(ctx); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to reload rate limits")
	}
	return nil
}

func toParams(p requests.RateLimitParams) ratelimit.Params {
	return ratelimit.Params{RequestsPerSecond: p.RequestsPerSecond, Burst: p.Burst}
}

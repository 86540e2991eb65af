package requests

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"threadline/internal/utils/platformerrors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindJSON decodes the request body into dst and validates its `validate` tags.
func BindJSON(c *gin.Context, dst any) error {
	ctx := c.Request.Context()
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeValidation,
			"invalid JSON body", err, "6d7e8f9a-0b1c-4d2e-9f3a-5b6c7d8e9f0a")
	}
	return Validate(c, dst)
}

// Validate runs struct validation and reports the first failing field.
func Validate(c *gin.Context, dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := strings.ToLower(verrs[0].Field())
		return platformerrors.NewErrorWithContext(c.Request.Context(), platformerrors.LayerHandler, platformerrors.ErrorTypeValidation,
			fmt.Sprintf("%s failed %q validation", field, verrs[0].Tag()), nil, "7e8f9a0b-1c2d-4e3f-8a4b-6c7d8e9f0a1b",
			map[string]any{"field": field})
	}
	return platformerrors.NewError(c.Request.Context(), platformerrors.LayerHandler, platformerrors.ErrorTypeValidation,
		"invalid request", err, "8f9a0b1c-2d3e-4f4a-9b5c-7d8e9f0a1b2c")
}

// QueryLimit parses ?limit=, defaulting to def and capping at max.
func QueryLimit(c *gin.Context, def, max int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, platformerrors.NewErrorWithContext(c.Request.Context(), platformerrors.LayerHandler, platformerrors.ErrorTypeValidation,
			"invalid limit number", nil, "9a0b1c2d-3e4f-4a5b-8c6d-8e9f0a1b2c3d", map[string]any{"field": "limit"})
	}
	return min(n, max), nil
}

// ===== Auth =====

type LoginRequest struct {
	Code        string `json:"code" validate:"required,max=4096"`
	RedirectURI string `json:"redirect_uri" validate:"omitempty,url"`
}

// ===== Conversations =====

type CreateConversationRequest struct {
	Title     string   `json:"title" validate:"max=200"`
	IsGroup   bool     `json:"is_group"`
	MemberIDs []string `json:"member_ids" validate:"max=100,dive,required,max=64"`
}

type AddParticipantRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
	Role   string `json:"role" validate:"omitempty,oneof=owner admin member viewer"`
}

type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=owner admin member viewer"`
}

type CreateInviteRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=320"`
	Role  string `json:"role" validate:"omitempty,oneof=admin member viewer"`
}

type AcceptInviteRequest struct {
	Token string `json:"token" validate:"required,max=256"`
}

// ===== Messages =====

type PostMessageRequest struct {
	Content         string `json:"content" validate:"required"`
	InvokeAssistant bool   `json:"invoke_assistant"`
	Model           string `json:"model" validate:"max=128"`
}

type EditMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type MarkReadRequest struct {
	Path string `json:"path" validate:"omitempty,max=1024"`
}

// ===== Presence =====

type SetPresenceRequest struct {
	Status string `json:"status" validate:"required,oneof=online away offline"`
}

// ===== Rate limits =====

type RateLimitParams struct {
	RequestsPerSecond float64 `json:"requests_per_second" validate:"gt=0"`
	Burst             int     `json:"burst" validate:"gte=1"`
}

type CreateRateLimitProfileRequest struct {
	Name      string          `json:"name" validate:"required,max=64"`
	Algorithm string          `json:"algorithm" validate:"omitempty,oneof=gcra"`
	Params    RateLimitParams `json:"params"`
}

type UpdateRateLimitProfileRequest struct {
	Params RateLimitParams `json:"params"`
}

type CreateRateLimitAssignmentRequest struct {
	ProfileID   string `json:"profile_id" validate:"required"`
	Method      string `json:"method" validate:"required"`
	PathPattern string `json:"path_pattern" validate:"required,startswith=/"`
}

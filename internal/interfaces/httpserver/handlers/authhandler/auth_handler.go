package authhandler

import (
	"github.com/gin-gonic/gin"

	"threadline/internal/domain/auth"
	"threadline/internal/infrastructure/logger"
	"threadline/internal/interfaces/httpserver/middlewares"
	"threadline/internal/interfaces/httpserver/requests"
	"threadline/internal/interfaces/httpserver/responses"
	"threadline/internal/utils/platformerrors"
)

// AuthHandler handles login, logout and session introspection.
type AuthHandler struct {
	authService *auth.Service
	cookies     *middlewares.Cookies
}

func NewAuthHandler(authService *auth.Service, cookies *middlewares.Cookies) *AuthHandler {
	return &AuthHandler{authService: authService, cookies: cookies}
}

// Login exchanges the authorization code and sets the session and CSRF cookies.
func (h *AuthHandler) Login(reqCtx *gin.Context, req requests.LoginRequest) (*responses.SessionResponse, error) {
	ctx := reqCtx.Request.Context()
	login, err := h.authService.Login(ctx, req.Code, req.RedirectURI, middlewares.RequestMetadata(reqCtx))
	if err != nil {
		return nil, err
	}
	if err := h.cookies.SetSession(reqCtx, login.Session); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeInternal,
			"failed to set session cookies", err, "0b1c2d3e-4f5a-4b6c-9d7e-9f0a1b2c3d4e")
	}
	return &responses.SessionResponse{
		User:              responses.NewUserResponse(login.User, login.Admin),
		ExpiresAt:         login.Session.ExpiresAt,
		AbsoluteExpiresAt: login.Session.AbsoluteExpiresAt,
	}, nil
}

// Logout revokes the presented session. Unknown or already revoked sessions still clear the cookies.
func (h *AuthHandler) Logout(reqCtx *gin.Context) error {
	ctx := reqCtx.Request.Context()
	token := h.cookies.SessionToken(reqCtx)
	defer h.cookies.ClearSession(reqCtx)
	if token == "" {
		return nil
	}
	err := h.authService.Logout(ctx, token)
	if err != nil && !isSessionRejection(err) {
		return err
	}
	return nil
}

// Me describes the authenticated caller.
func (h *AuthHandler) Me(p *auth.Principal) responses.SessionResponse {
	resp := responses.SessionResponse{User: responses.NewUserResponse(p.User, p.Admin)}
	if p.Session != nil && p.Session.Session != nil {
		resp.ExpiresAt = p.Session.Session.ExpiresAt
		resp.AbsoluteExpiresAt = p.Session.Session.AbsoluteExpiresAt
	}
	return resp
}

func isSessionRejection(err error) bool {
	return platformerrors.IsErrorType(err, platformerrors.ErrorTypeUnauthorized) ||
		platformerrors.IsErrorType(err, platformerrors.ErrorTypeExpired)
}

// GetPrincipal returns the caller authenticated by the session middleware.
func GetPrincipal(reqCtx *gin.Context) (*auth.Principal, bool) {
	return middlewares.PrincipalFromContext(reqCtx)
}

// MustUserID returns the caller's user id or renders a 401 and reports false.
func MustUserID(reqCtx *gin.Context) (string, bool) {
	p, ok := GetPrincipal(reqCtx)
	if !ok {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeUnauthorized, "authentication required", "1c2d3e4f-5a6b-4c7d-8e8f-0a1b2c3d4e5f")
		return "", false
	}
	return p.User.ID, true
}

// WithUserAuthChain prefixes handlers with the authenticated-user guard.
func (h *AuthHandler) WithUserAuthChain(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	return append([]gin.HandlerFunc{middlewares.RequireUser(logger.GetLogger())}, handlers...)
}

// WithAdminAuthChain prefixes handlers with the administrator guard.
func (h *AuthHandler) WithAdminAuthChain(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	return append([]gin.HandlerFunc{middlewares.RequireAdmin(logger.GetLogger())}, handlers...)
}

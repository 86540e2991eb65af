package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"threadline/internal/interfaces/httpserver/handlers/authhandler"
	"threadline/internal/interfaces/httpserver/requests"
	"threadline/internal/interfaces/httpserver/responses"
)

type AuthRoute struct {
	authHandler *authhandler.AuthHandler
}

func NewAuthRoute(authHandler *authhandler.AuthHandler) *AuthRoute {
	return &AuthRoute{authHandler: authHandler}
}

func (route *AuthRoute) RegisterRouter(router gin.IRouter) {
	authRouter := router.Group("/auth")
	authRouter.POST("/login", route.login)
	authRouter.POST("/logout", route.logout)
	authRouter.GET("/me", route.authHandler.WithUserAuthChain(route.me)...)
}

// login exchanges an authorization code for a session cookie.
func (route *AuthRoute) login(reqCtx *gin.Context) {
	var req requests.LoginRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.authHandler.Login(reqCtx, req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *AuthRoute) logout(reqCtx *gin.Context) {
	if err := route.authHandler.Logout(reqCtx); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.Status(http.StatusNoContent)
}

func (route *AuthRoute) me(reqCtx *gin.Context) {
	p, ok := authhandler.GetPrincipal(reqCtx)
	if !ok {
		return
	}
	reqCtx.JSON(http.StatusOK, route.authHandler.Me(p))
}

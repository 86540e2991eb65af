package presence

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"threadline/internal/interfaces/httpserver/handlers/authhandler"
	"threadline/internal/interfaces/httpserver/handlers/presencehandler"
	"threadline/internal/interfaces/httpserver/requests"
	"threadline/internal/interfaces/httpserver/responses"
)

type PresenceRoute struct {
	handler     *presencehandler.PresenceHandler
	authHandler *authhandler.AuthHandler
}

func NewPresenceRoute(handler *presencehandler.PresenceHandler, authHandler *authhandler.AuthHandler) *PresenceRoute {
	return &PresenceRoute{handler: handler, authHandler: authHandler}
}

func (route *PresenceRoute) RegisterRouter(router gin.IRouter) {
	router.PUT("/presence", route.authHandler.WithUserAuthChain(route.setStatus)...)
	router.GET("/presence", route.authHandler.WithUserAuthChain(route.getOwn)...)
	router.POST("/threads/:id/typing", route.authHandler.WithUserAuthChain(route.typing)...)
}

func (route *PresenceRoute) setStatus(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	var req requests.SetPresenceRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.handler.SetStatus(reqCtx.Request.Context(), userID, req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *PresenceRoute) getOwn(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	resp, err := route.handler.GetPresence(reqCtx.Request.Context(), userID)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *PresenceRoute) typing(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	resp, err := route.handler.Typing(reqCtx.Request.Context(), userID, reqCtx.Param("id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusAccepted, resp)
}

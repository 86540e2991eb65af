package stream

import (
	"github.com/gin-gonic/gin"

	"threadline/internal/interfaces/httpserver/handlers/authhandler"
	"threadline/internal/interfaces/httpserver/handlers/streamhandler"
)

type StreamRoute struct {
	handler     *streamhandler.StreamHandler
	authHandler *authhandler.AuthHandler
}

func NewStreamRoute(handler *streamhandler.StreamHandler, authHandler *authhandler.AuthHandler) *StreamRoute {
	return &StreamRoute{handler: handler, authHandler: authHandler}
}

func (route *StreamRoute) RegisterRouter(router gin.IRouter) {
	router.GET("/stream/conversations/:id", route.authHandler.WithUserAuthChain(route.stream)...)
}

func (route *StreamRoute) stream(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	route.handler.Stream(reqCtx, userID, reqCtx.Param("id"))
}

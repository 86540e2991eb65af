package thread

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"threadline/internal/interfaces/httpserver/handlers/authhandler"
	"threadline/internal/interfaces/httpserver/handlers/messagehandler"
	"threadline/internal/interfaces/httpserver/requests"
	"threadline/internal/interfaces/httpserver/responses"
)

const (
	defaultTreeLimit = 50
	maxTreeLimit     = 200
)

// ThreadRoute serves threads and the messages inside them.
type ThreadRoute struct {
	handler     *messagehandler.MessageHandler
	authHandler *authhandler.AuthHandler
}

func NewThreadRoute(handler *messagehandler.MessageHandler, authHandler *authhandler.AuthHandler) *ThreadRoute {
	return &ThreadRoute{handler: handler, authHandler: authHandler}
}

func (route *ThreadRoute) RegisterRouter(router gin.IRouter) {
	threads := router.Group("/threads")
	// POST /threads/:id/root takes a conversation id; every other thread route takes a root message id.
	threads.POST("/:id/root", route.authHandler.WithUserAuthChain(route.postRoot)...)
	threads.GET("/:id", route.authHandler.WithUserAuthChain(route.getThread)...)
	threads.GET("/:id/tree", route.authHandler.WithUserAuthChain(route.tree)...)
	threads.POST("/:id/read", route.authHandler.WithUserAuthChain(route.markRead)...)

	messages := router.Group("/messages")
	messages.GET("/:id", route.authHandler.WithUserAuthChain(route.getMessage)...)
	messages.PATCH("/:id", route.authHandler.WithUserAuthChain(route.editMessage)...)
	messages.DELETE("/:id", route.authHandler.WithUserAuthChain(route.deleteMessage)...)
	messages.POST("/:id/reply", route.authHandler.WithUserAuthChain(route.reply)...)
	messages.POST("/:id/cancel", route.authHandler.WithUserAuthChain(route.cancel)...)
	messages.GET("/:id/revisions", route.authHandler.WithUserAuthChain(route.revisions)...)
}

// ===============================================
// Threads
// ===============================================

func (route *ThreadRoute) postRoot(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	var req requests.PostMessageRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.handler.PostRoot(reqCtx.Request.Context(), userID, reqCtx.Param("id"), req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusCreated, resp)
}

func (route *ThreadRoute) getThread(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	resp, err := route.handler.ThreadRoot(reqCtx.Request.Context(), userID, reqCtx.Param("id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

// tree pages the thread depth-first; pass next_cursor back as ?cursor=.
func (route *ThreadRoute) tree(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	limit, err := requests.QueryLimit(reqCtx, defaultTreeLimit, maxTreeLimit)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.handler.Tree(reqCtx.Request.Context(), userID, reqCtx.Param("id"), reqCtx.Query("cursor"), limit)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *ThreadRoute) markRead(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	var req requests.MarkReadRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.handler.MarkRead(reqCtx.Request.Context(), userID, reqCtx.Param("id"), req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

// ===============================================
// Messages
// ===============================================

func (route *ThreadRoute) getMessage(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	resp, err := route.handler.GetMessage(reqCtx.Request.Context(), userID, reqCtx.Param("id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *ThreadRoute) editMessage(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	var req requests.EditMessageRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.handler.EditMessage(reqCtx.Request.Context(), userID, reqCtx.Param("id"), req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *ThreadRoute) deleteMessage(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	resp, err := route.handler.DeleteMessage(reqCtx.Request.Context(), userID, reqCtx.Param("id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *ThreadRoute) reply(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	var req requests.PostMessageRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.handler.Reply(reqCtx.Request.Context(), userID, reqCtx.Param("id"), req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusCreated, resp)
}

func (route *ThreadRoute) cancel(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	resp, err := route.handler.CancelGeneration(reqCtx.Request.Context(), userID, reqCtx.Param("id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *ThreadRoute) revisions(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	revs, err := route.handler.Revisions(reqCtx.Request.Context(), userID, reqCtx.Param("id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.NewList(revs, ""))
}

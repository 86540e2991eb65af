package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"threadline/internal/interfaces/httpserver/handlers/authhandler"
	"threadline/internal/interfaces/httpserver/handlers/conversationhandler"
	"threadline/internal/interfaces/httpserver/handlers/messagehandler"
	"threadline/internal/interfaces/httpserver/requests"
	"threadline/internal/interfaces/httpserver/responses"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type ConversationRoute struct {
	handler        *conversationhandler.ConversationHandler
	messageHandler *messagehandler.MessageHandler
	authHandler    *authhandler.AuthHandler
}

func NewConversationRoute(
	handler *conversationhandler.ConversationHandler,
	messageHandler *messagehandler.MessageHandler,
	authHandler *authhandler.AuthHandler,
) *ConversationRoute {
	return &ConversationRoute{
		handler:        handler,
		messageHandler: messageHandler,
		authHandler:    authHandler,
	}
}

func (route *ConversationRoute) RegisterRouter(router gin.IRouter) {
	conversations := router.Group("/conversations")
	conversations.POST("", route.authHandler.WithUserAuthChain(route.createConversation)...)
	conversations.GET("", route.authHandler.WithUserAuthChain(route.listConversations)...)
	conversations.GET("/:id", route.authHandler.WithUserAuthChain(route.getConversation)...)

	conversations.GET("/:id/participants", route.authHandler.WithUserAuthChain(route.listParticipants)...)
	conversations.POST("/:id/participants", route.authHandler.WithUserAuthChain(route.addParticipant)...)
	conversations.PATCH("/:id/participants/:user", route.authHandler.WithUserAuthChain(route.changeRole)...)
	conversations.DELETE("/:id/participants/:user", route.authHandler.WithUserAuthChain(route.removeParticipant)...)

	conversations.POST("/:id/invites", route.authHandler.WithUserAuthChain(route.createInvite)...)
	router.POST("/invites/accept", route.authHandler.WithUserAuthChain(route.acceptInvite)...)

	conversations.GET("/:id/threads", route.authHandler.WithUserAuthChain(route.listThreads)...)
	conversations.GET("/:id/unread", route.authHandler.WithUserAuthChain(route.unread)...)
}

func (route *ConversationRoute) createConversation(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	var req requests.CreateConversationRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.handler.CreateConversation(reqCtx.Request.Context(), userID, req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusCreated, resp)
}

func (route *ConversationRoute) listConversations(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	limit, err := requests.QueryLimit(reqCtx, defaultListLimit, maxListLimit)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	convs, err := route.handler.ListConversations(reqCtx.Request.Context(), userID, limit)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.NewList(convs, ""))
}

func (route *ConversationRoute) getConversation(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	resp, err := route.handler.GetConversation(reqCtx.Request.Context(), userID, reqCtx.Param("id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

// ===============================================
// Participants
// ===============================================

func (route *ConversationRoute) listParticipants(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	members, err := route.handler.ListParticipants(reqCtx.Request.Context(), userID, reqCtx.Param("id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.NewList(members, ""))
}

func (route *ConversationRoute) addParticipant(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	var req requests.AddParticipantRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.handler.AddParticipant(reqCtx.Request.Context(), userID, reqCtx.Param("id"), req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusCreated, resp)
}

func (route *ConversationRoute) changeRole(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	var req requests.ChangeRoleRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.handler.ChangeRole(reqCtx.Request.Context(), userID, reqCtx.Param("id"), reqCtx.Param("user"), req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *ConversationRoute) removeParticipant(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	if err := route.handler.RemoveParticipant(reqCtx.Request.Context(), userID, reqCtx.Param("id"), reqCtx.Param("user")); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.Status(http.StatusNoContent)
}

// ===============================================
// Invites
// ===============================================

func (route *ConversationRoute) createInvite(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	var req requests.CreateInviteRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.handler.CreateInvite(reqCtx.Request.Context(), userID, reqCtx.Param("id"), req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusCreated, resp)
}

func (route *ConversationRoute) acceptInvite(reqCtx *gin.Context) {
	p, ok := authhandler.GetPrincipal(reqCtx)
	if !ok {
		return
	}
	var req requests.AcceptInviteRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.handler.AcceptInvite(reqCtx.Request.Context(), p, req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

// ===============================================
// Threads
// ===============================================

func (route *ConversationRoute) listThreads(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	limit, err := requests.QueryLimit(reqCtx, defaultListLimit, maxListLimit)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.messageHandler.ListThreads(reqCtx.Request.Context(), userID, reqCtx.Param("id"), reqCtx.Query("after"), limit)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *ConversationRoute) unread(reqCtx *gin.Context) {
	userID, ok := authhandler.MustUserID(reqCtx)
	if !ok {
		return
	}
	counts, err := route.messageHandler.Unread(reqCtx.Request.Context(), userID, reqCtx.Param("id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.NewList(counts, ""))
}

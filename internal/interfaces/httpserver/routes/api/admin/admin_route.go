package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"threadline/internal/interfaces/httpserver/handlers/authhandler"
	"threadline/internal/interfaces/httpserver/handlers/ratelimithandler"
	"threadline/internal/interfaces/httpserver/requests"
	"threadline/internal/interfaces/httpserver/responses"
)

// AdminRoute exposes rate limit administration to administrators.
type AdminRoute struct {
	rateLimitHandler *ratelimithandler.RateLimitHandler
	authHandler      *authhandler.AuthHandler
}

func NewAdminRoute(rateLimitHandler *ratelimithandler.RateLimitHandler, authHandler *authhandler.AuthHandler) *AdminRoute {
	return &AdminRoute{rateLimitHandler: rateLimitHandler, authHandler: authHandler}
}

func (route *AdminRoute) RegisterRouter(router gin.IRouter) {
	limits := router.Group("/admin/ratelimits")
	limits.GET("/profiles", route.authHandler.WithAdminAuthChain(route.listProfiles)...)
	limits.POST("/profiles", route.authHandler.WithAdminAuthChain(route.createProfile)...)
	limits.PATCH("/profiles/:id", route.authHandler.WithAdminAuthChain(route.updateProfile)...)
	limits.DELETE("/profiles/:id", route.authHandler.WithAdminAuthChain(route.deleteProfile)...)
	limits.GET("/assignments", route.authHandler.WithAdminAuthChain(route.listAssignments)...)
	limits.POST("/assignments", route.authHandler.WithAdminAuthChain(route.createAssignment)...)
	limits.DELETE("/assignments/:id", route.authHandler.WithAdminAuthChain(route.deleteAssignment)...)
	limits.POST("/reload", route.authHandler.WithAdminAuthChain(route.reload)...)
}

func (route *AdminRoute) listProfiles(reqCtx *gin.Context) {
	profiles, err := route.rateLimitHandler.ListProfiles(reqCtx.Request.Context())
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.NewList(profiles, ""))
}

func (route *AdminRoute) createProfile(reqCtx *gin.Context) {
	var req requests.CreateRateLimitProfileRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.rateLimitHandler.CreateProfile(reqCtx.Request.Context(), req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusCreated, resp)
}

func (route *AdminRoute) updateProfile(reqCtx *gin.Context) {
	var req requests.UpdateRateLimitProfileRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.rateLimitHandler.UpdateProfile(reqCtx.Request.Context(), reqCtx.Param("id"), req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *AdminRoute) deleteProfile(reqCtx *gin.Context) {
	if err := route.rateLimitHandler.DeleteProfile(reqCtx.Request.Context(), reqCtx.Param("id")); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.Status(http.StatusNoContent)
}

func (route *AdminRoute) listAssignments(reqCtx *gin.Context) {
	assignments, err := route.rateLimitHandler.ListAssignments(reqCtx.Request.Context())
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.NewList(assignments, ""))
}

func (route *AdminRoute) createAssignment(reqCtx *gin.Context) {
	var req requests.CreateRateLimitAssignmentRequest
	if err := requests.BindJSON(reqCtx, &req); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	resp, err := route.rateLimitHandler.CreateAssignment(reqCtx.Request.Context(), req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusCreated, resp)
}

func (route *AdminRoute) deleteAssignment(reqCtx *gin.Context) {
	if err := route.rateLimitHandler.DeleteAssignment(reqCtx.Request.Context(), reqCtx.Param("id")); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.Status(http.StatusNoContent)
}

func (route *AdminRoute) reload(reqCtx *gin.Context) {
	if err := route.rateLimitHandler.Reload(reqCtx.Request.Context()); err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.Status(http.StatusNoContent)
}

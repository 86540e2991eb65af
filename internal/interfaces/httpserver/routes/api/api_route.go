package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"threadline/internal/config"
	"threadline/internal/interfaces/httpserver/routes/api/admin"
	"threadline/internal/interfaces/httpserver/routes/api/conversation"
	"threadline/internal/interfaces/httpserver/routes/api/presence"
	"threadline/internal/interfaces/httpserver/routes/api/stream"
	"threadline/internal/interfaces/httpserver/routes/api/thread"
)

// ReadinessCheck reports whether a backing dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type APIRoute struct {
	conversation *conversation.ConversationRoute
	thread       *thread.ThreadRoute
	stream       *stream.StreamRoute
	presence     *presence.PresenceRoute
	admin        *admin.AdminRoute
}

func NewAPIRoute(
	conversation *conversation.ConversationRoute,
	thread *thread.ThreadRoute,
	stream *stream.StreamRoute,
	presence *presence.PresenceRoute,
	admin *admin.AdminRoute,
) *APIRoute {
	return &APIRoute{
		conversation,
		thread,
		stream,
		presence,
		admin,
	}
}

func (apiRoute *APIRoute) RegisterRouter(router gin.IRouter) {
	router.GET("/version", GetVersion)

	apiRoute.conversation.RegisterRouter(router)
	apiRoute.thread.RegisterRouter(router)
	apiRoute.stream.RegisterRouter(router)
	apiRoute.presence.RegisterRouter(router)
	apiRoute.admin.RegisterRouter(router)
}

func GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": config.Version})
}

func GetHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetReadyz answers 503 until every check passes.
func GetReadyz(checks map[string]ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		failed := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

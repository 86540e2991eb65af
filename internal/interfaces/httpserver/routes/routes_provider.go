package routes

import (
	"github.com/google/wire"

	"threadline/internal/config"
	"threadline/internal/interfaces/httpserver/handlers"
	"threadline/internal/interfaces/httpserver/middlewares"
	"threadline/internal/interfaces/httpserver/routes/api"
	"threadline/internal/interfaces/httpserver/routes/api/admin"
	"threadline/internal/interfaces/httpserver/routes/api/conversation"
	"threadline/internal/interfaces/httpserver/routes/api/presence"
	"threadline/internal/interfaces/httpserver/routes/api/stream"
	"threadline/internal/interfaces/httpserver/routes/api/thread"
	"threadline/internal/interfaces/httpserver/routes/auth"
)

var RouteProvider = wire.NewSet(
	// Handlers
	ProvideCookies,
	handlers.HandlerProvider,

	// Routes
	auth.NewAuthRoute,
	api.NewAPIRoute,
	conversation.NewConversationRoute,
	thread.NewThreadRoute,
	stream.NewStreamRoute,
	presence.NewPresenceRoute,
	admin.NewAdminRoute,
)

func ProvideCookies(cfg *config.Config) *middlewares.Cookies {
	return middlewares.NewCookies(middlewares.CookieConfig{
		SessionName: cfg.SessionCookieName,
		CSRFName:    cfg.CSRFCookieName,
		CSRFHeader:  cfg.CSRFHeaderName,
		Domain:      cfg.CookieDomain,
		Secure:      cfg.CookieSecure,
	})
}

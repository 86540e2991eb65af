package handlers

import (
	"github.com/google/wire"

	"threadline/internal/interfaces/httpserver/handlers/authhandler"
	"threadline/internal/interfaces/httpserver/handlers/conversationhandler"
	"threadline/internal/interfaces/httpserver/handlers/messagehandler"
	"threadline/internal/interfaces/httpserver/handlers/presencehandler"
	"threadline/internal/interfaces/httpserver/handlers/ratelimithandler"
	"threadline/internal/interfaces/httpserver/handlers/streamhandler"
)

var HandlerProvider = wire.NewSet(
	authhandler.NewAuthHandler,
	conversationhandler.NewConversationHandler,
	messagehandler.NewMessageHandler,
	streamhandler.NewStreamHandler,
	presencehandler.NewPresenceHandler,
	ratelimithandler.NewRateLimitHandler,
)

package repository

import (
	"github.com/google/wire"

	"threadline/internal/infrastructure/database/repository/conversationrepo"
	"threadline/internal/infrastructure/database/repository/messagerepo"
	"threadline/internal/infrastructure/database/repository/presencerepo"
	"threadline/internal/infrastructure/database/repository/ratelimitrepo"
	"threadline/internal/infrastructure/database/repository/sessionrepo"
	"threadline/internal/infrastructure/database/repository/streameventrepo"
	"threadline/internal/infrastructure/database/repository/userrepo"
)

var RepositoryProvider = wire.NewSet(
	streameventrepo.NewStreamEventGormRepository,
	conversationrepo.NewConversationGormRepository,
	messagerepo.NewMessageGormRepository,
	userrepo.NewUserGormRepository,
	sessionrepo.NewSessionGormRepository,
	presencerepo.NewPresenceGormRepository,
	ratelimitrepo.NewRateLimitGormRepository,
)

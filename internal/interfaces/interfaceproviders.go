package interfaces

import (
	"github.com/google/wire"

	"threadline/internal/interfaces/httpserver"
)

var InterfacesProvider = wire.NewSet(
	httpserver.NewHttpServer,
)

//go:build wireinject

package main

import (
	"github.com/google/wire"

	"threadline/internal/domain"
	"threadline/internal/infrastructure"
	"threadline/internal/interfaces"
	"threadline/internal/interfaces/httpserver/routes"
)

func CreateApplication() (*Application, error) {
	wire.Build(
		domain.ServiceProvider,
		infrastructure.InfrastructureProvider,
		routes.RouteProvider,
		interfaces.InterfacesProvider,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil
}

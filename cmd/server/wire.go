//go:build wireinject

package main

import (
	"modelscout/internal/domain"
	"modelscout/internal/infrastructure"
	"modelscout/internal/interfaces"
	"modelscout/internal/interfaces/httpserver/routes"

	"github.com/google/wire"
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

package routes

import (
	"github.com/google/wire"

	"modelscout/internal/interfaces/httpserver/handlers/discoveryhandler"
	v1 "modelscout/internal/interfaces/httpserver/routes/v1"
)

var RouteProvider = wire.NewSet(
	// Handlers
	discoveryhandler.NewDiscoveryHandler,

	// Routes
	v1.NewV1Route,
)

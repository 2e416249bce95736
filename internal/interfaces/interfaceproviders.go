package interfaces

import (
	"github.com/google/wire"

	"modelscout/internal/interfaces/httpserver"
)

var InterfacesProvider = wire.NewSet(
	httpserver.NewHttpServer,
)

package domain

import (
	"github.com/google/wire"

	"modelscout/internal/domain/discovery"
)

// ServiceProvider provides all domain services
var ServiceProvider = wire.NewSet(
	discovery.NewOrchestrator,
)

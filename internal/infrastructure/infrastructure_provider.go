package infrastructure

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"modelscout/internal/config"
	"modelscout/internal/infrastructure/cache"
	"modelscout/internal/infrastructure/crontab"
	"modelscout/internal/infrastructure/embeddings"
	"modelscout/internal/infrastructure/logger"
	"modelscout/internal/infrastructure/persistence"
	"modelscout/internal/infrastructure/ratelimit"
	"modelscout/internal/infrastructure/secrets"
)

// ProvideConfig loads and provides the application configuration
func ProvideConfig() (*config.Config, error) {
	return config.Load()
}

// ProvideLimiter provides the shared outbound rate limiter. Provider
// budgets are registered by the orchestrator at startup.
func ProvideLimiter() *ratelimit.Limiter {
	return ratelimit.NewLimiter(ratelimit.NewRealClock())
}

// ProvideSecretStore provides the credential resolver.
func ProvideSecretStore(cfg *config.Config) secrets.Store {
	return secrets.NewEnvStore(cfg)
}

// ProvideCacheStore provides the configured cache backend.
func ProvideCacheStore(cfg *config.Config) (cache.Store, error) {
	return cache.NewStore(cfg)
}

// ProvidePersistenceSink provides the discovery-run sink.
func ProvidePersistenceSink(cfg *config.Config) (persistence.Sink, error) {
	return persistence.NewSink(cfg)
}

// Infrastructure holds shared infrastructure dependencies
type Infrastructure struct {
	Limiter *ratelimit.Limiter
	Logger  zerolog.Logger
}

// NewInfrastructure creates a new infrastructure instance
func NewInfrastructure(limiter *ratelimit.Limiter, log zerolog.Logger) *Infrastructure {
	return &Infrastructure{
		Limiter: limiter,
		Logger:  log,
	}
}

// InfrastructureProvider provides all infrastructure dependencies
var InfrastructureProvider = wire.NewSet(
	// Config
	ProvideConfig,

	// Outbound rate limiting
	ProvideLimiter,

	// Credential resolution
	ProvideSecretStore,

	// Cache backend
	ProvideCacheStore,

	// Embeddings enrichment
	embeddings.NewService,

	// Persistence sink
	ProvidePersistenceSink,

	// Logger
	logger.GetLogger,

	// Crontab for scheduled re-discovery
	crontab.NewCrontab,

	// Infrastructure struct
	NewInfrastructure,
)

package crontab

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"

	"modelscout/internal/config"
	"modelscout/internal/domain/catalog"
	"modelscout/internal/domain/discovery"
	"modelscout/internal/infrastructure/logger"
	"modelscout/internal/utils/platformerrors"
)

const (
	DefaultSyncInterval = 60               // in minutes
	CronJobTimeout      = 10 * time.Minute // Timeout for each cron job execution
)

// Crontab schedules the periodic re-discovery runs that keep the cached
// catalog fresh between on-demand runs.
type Crontab struct {
	ctab         *crontab.Crontab
	orchestrator *discovery.Orchestrator
}

func NewCrontab(orchestrator *discovery.Orchestrator) *Crontab {
	return &Crontab{
		ctab:         crontab.New(),
		orchestrator: orchestrator,
	}
}

func (c *Crontab) Run(ctx context.Context) error {
	log := logger.GetLogger()

	// execute once on server start
	c.runDiscovery(ctx)

	cfg := config.GetGlobal()
	if cfg != nil && cfg.DiscoverySyncEnabled {
		syncInterval := cfg.DiscoverySyncIntervalMin
		if syncInterval <= 0 {
			syncInterval = DefaultSyncInterval
		}

		cronExpr := fmt.Sprintf("*/%d * * * *", syncInterval)
		if syncInterval >= 60 {
			cronExpr = fmt.Sprintf("0 */%d * * *", syncInterval/60)
		}
		if err := c.ctab.AddJob(cronExpr, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), CronJobTimeout)
			defer cancel()
			c.runDiscovery(jobCtx)
		}); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add discovery sync job")
		}
		log.Info().Msgf("Discovery sync scheduled: every %d minute(s)", syncInterval)
	}

	// Schedule environment reload job
	if err := c.ctab.AddJob("* * * * *", func() {
		config.Load()
	}); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add env reload job")
	}

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) runDiscovery(ctx context.Context) {
	log := logger.GetLogger()

	agg, err := c.orchestrator.DiscoverAll(ctx, catalog.DiscoveryOptions{})
	if err != nil {
		log.Error().Err(err).Msg("scheduled discovery run failed")
		return
	}
	log.Info().
		Str("run_id", agg.RunID).
		Int("total_unique", agg.TotalUnique).
		Int("failures", len(agg.Failures)).
		Msg("scheduled discovery run completed")
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"modelscout/internal/config"
	"modelscout/internal/domain/discovery"
	"modelscout/internal/infrastructure/crontab"
	"modelscout/internal/infrastructure/logger"
	"modelscout/internal/infrastructure/observability"
	"modelscout/internal/interfaces/httpserver"
)

type Application struct {
	HTTPServer   *httpserver.HTTPServer
	Crontab      *crontab.Crontab
	Orchestrator *discovery.Orchestrator
	Config       *config.Config
}

func init() {
	logger.GetLogger()
	config.Load()
}

func (application *Application) Start() error {
	background := context.Background()
	ctx, cancel := context.WithCancel(background)
	defer cancel()

	if err := application.Orchestrator.RegisterProviders(ctx); err != nil {
		return err
	}
	if err := application.Orchestrator.InitializeAll(ctx); err != nil {
		return err
	}
	defer application.Orchestrator.Cleanup()

	var eg errgroup.Group
	eg.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		err := http.ListenAndServe(fmt.Sprintf(":%d", application.Config.MetricsPort), mux)
		if err != nil {
			cancel()
		}
		return err
	})
	eg.Go(func() error {
		err := application.Crontab.Run(ctx)
		if err != nil {
			cancel()
		}
		return err
	})
	eg.Go(func() error {
		err := application.HTTPServer.Run()
		if err != nil {
			cancel()
		}
		return err
	})

	return eg.Wait()
}

func main() {
	ctx := context.Background()
	log := logger.GetLogger()

	cfg := config.GetGlobal()
	if cfg == nil {
		log.Fatal().Msg("config not loaded")
	}

	if _, err := logger.New(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("configure logger")
	}
	log = logger.GetLogger()

	application, err := CreateApplication()
	if err != nil {
		log.Fatal().Err(err).Msg("create application")
	}

	otelShutdown, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("initialize observability")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown telemetry")
			}
		}()
	}

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("run application")
	}
}

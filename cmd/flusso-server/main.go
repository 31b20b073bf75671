package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"flusso/internal/amqp"
	"flusso/internal/backend"
	"flusso/internal/cache"
	"flusso/internal/cli"
	"flusso/internal/config"
	"flusso/internal/forecast"
	apphttp "flusso/internal/http"
	"flusso/internal/log"
	"flusso/internal/services"
)

const (
	amqpConnectAttempts  = 5
	cacheCleanupInterval = time.Minute
	shutdownTimeout      = 30 * time.Second
)

func main() {
	boot := log.New(log.DefaultConfig())
	cli.LoadEnvFile(boot)

	cfg, err := cli.LoadAndValidateConfig("")
	if err != nil {
		boot.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}

	results := cache.NewLRUCache[services.Result](cfg.CacheSize, cfg.CacheTTL.Duration)
	caches := cache.NewManager(logger)
	caches.Register(results)
	caches.StartCleanup(cacheCleanupInterval)

	opts := []services.ServiceOption{
		services.WithCache(results),
		services.WithDefaultHorizon(cfg.HorizonDays),
		services.WithLogger(logger),
	}

	// The broker is optional for the API: without it refresh requests are
	// answered with 503 and everything else keeps working.
	var broker *amqp.Client
	if cfg.AMQPURL != "" {
		broker, err = amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqpConnectAttempts, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, refresh requests disabled", log.FieldError, err.Error())
		} else {
			opts = append(opts, services.WithPublisher(broker))
		}
	}

	projector := forecast.New(forecast.WithLocation(cfg.Location()))
	svc := services.NewForecastService(be.Ledger, projector, opts...)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Forecasts: svc,
		Runs:      be.Runs,
		Ping:      be.Ping,
		Logger:    logger,
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting flusso server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			log.FieldHorizonDays, cfg.HorizonDays,
			"timezone", cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	shutdownErr := cli.Shutdown(logger, shutdownTimeout,
		srv.Shutdown,
		func(context.Context) error {
			caches.Stop()
			return nil
		},
		func(context.Context) error {
			if broker == nil {
				return nil
			}
			return broker.Close()
		},
		func(context.Context) error { return be.Close() },
	)
	return errors.Join(runErr, shutdownErr)
}

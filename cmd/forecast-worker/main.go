package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"flusso/internal/amqp"
	"flusso/internal/backend"
	"flusso/internal/cli"
	"flusso/internal/config"
	"flusso/internal/forecast"
	"flusso/internal/log"
	"flusso/internal/scheduler"
	"flusso/internal/services"
	"flusso/internal/worker"
)

const (
	refreshTask         = "forecast-refresh"
	refreshTimeout      = 2 * time.Minute
	keepRuns            = 30
	amqpConnectAttempts = 10
	shutdownTimeout     = 30 * time.Second
)

func main() {
	boot := log.New(log.DefaultConfig())
	cli.LoadEnvFile(boot)

	cfg, err := cli.LoadAndValidateConfig("")
	if err != nil {
		boot.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
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
	defer func() {
		if err := be.Close(); err != nil {
			logger.Error("Closing backend failed", log.FieldError, err.Error())
		}
	}()
	if be.Runs == nil {
		return fmt.Errorf("backend %q cannot store forecasts; the worker needs %q", cfg.DataBackend, backend.SQLiteBackend)
	}

	projector := forecast.New(forecast.WithLocation(cfg.Location()))
	svc := services.NewForecastService(be.Ledger, projector,
		services.WithDefaultHorizon(cfg.HorizonDays),
		services.WithLogger(logger))
	fw := worker.NewForecastWorker(svc, be.Runs, keepRuns, logger)

	sched := scheduler.New(cfg.Location(), refreshTimeout, logger)
	refresh := func(ctx context.Context) error { return fw.Refresh(ctx, "schedule") }
	if err := sched.Register(ctx, refreshTask, cfg.RefreshCron, refresh); err != nil {
		return err
	}

	var broker *amqp.Client
	if cfg.AMQPURL != "" {
		broker, err = amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqpConnectAttempts, logger)
		if err != nil {
			return fmt.Errorf("connect to broker: %w", err)
		}
	} else {
		logger.Info("AMQP_URL not set, serving scheduled refreshes only")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	if broker != nil {
		g.Go(func() error {
			return broker.ConsumeForecastRequests(gctx, fw.HandleRequest)
		})
	}

	// A fresh run on start so /api/forecast/latest is never stale by more
	// than one schedule period.
	g.Go(func() error {
		sched.RunNow(gctx, refreshTask, refresh)
		return nil
	})

	logger.Info("Forecast worker started",
		"refresh_cron", cfg.RefreshCron,
		log.FieldHorizonDays, cfg.HorizonDays)

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	shutdownErr := cli.Shutdown(logger, shutdownTimeout, func(context.Context) error {
		if broker == nil {
			return nil
		}
		return broker.Close()
	})
	return errors.Join(runErr, shutdownErr)
}

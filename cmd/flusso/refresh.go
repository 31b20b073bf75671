package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"flusso/internal/amqp"
	"flusso/internal/services"
)

const refreshPublishTimeout = 30 * time.Second

func newRefreshCmd(a *app) *cobra.Command {
	var (
		horizon int
		reason  string
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Ask the forecast worker to compute and store a new forecast",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is not configured; the worker cannot be reached")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), refreshPublishTimeout)
			defer cancel()

			client, err := amqp.NewClient(ctx, a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, 3, a.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			svc := services.NewForecastService(nil, nil,
				services.WithPublisher(client),
				services.WithDefaultHorizon(a.cfg.HorizonDays),
				services.WithLogger(a.logger))

			var req services.Request
			if cmd.Flags().Changed("horizon") {
				req.HorizonDays = &horizon
			}
			id, err := svc.RequestRefresh(ctx, req, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forecast refresh requested (id %s)\n", id)
			return nil
		},
	}
	cmd.Flags().IntVarP(&horizon, "horizon", "n", 0, "Days to project (default from config)")
	cmd.Flags().StringVar(&reason, "reason", "cli", "Reason stored with the run")
	return cmd
}

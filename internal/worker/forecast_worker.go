package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flusso/internal/amqp"
	"flusso/internal/core"
	"flusso/internal/log"
	"flusso/internal/services"
	"flusso/internal/storage"
)

// RunStore persists computed forecasts.
type RunStore interface {
	SaveForecast(ctx context.Context, run storage.ForecastRun) error
	PruneForecasts(ctx context.Context, keep int) (int64, error)
}

// ForecastWorker computes forecasts on request and stores them.
type ForecastWorker struct {
	service *services.ForecastService
	runs    RunStore
	keep    int
	now     func() time.Time
	logger  *log.Logger
}

// NewForecastWorker creates a worker that keeps the newest keep runs;
// keep <= 0 keeps everything.
func NewForecastWorker(service *services.ForecastService, runs RunStore, keep int, logger *log.Logger) *ForecastWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ForecastWorker{
		service: service,
		runs:    runs,
		keep:    keep,
		now:     time.Now,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleRequest processes one forecast request from AMQP. Errors cause the
// message to be requeued, so a request the service rejects outright is
// logged and dropped instead.
func (w *ForecastWorker) HandleRequest(ctx context.Context, msg *amqp.ForecastRequestMessage) error {
	horizon := msg.HorizonDays
	req := services.Request{HorizonDays: &horizon}
	if msg.BalanceCents != nil {
		balance := core.Money{Cents: *msg.BalanceCents}.Decimal()
		req.Balance = &balance
	}
	err := w.compute(ctx, msg.ID, msg.Reason, req)
	if errors.Is(err, services.ErrInvalidHorizon) {
		w.logger.ErrorContext(ctx, "Dropping invalid forecast request",
			log.FieldRunID, msg.ID,
			log.FieldHorizonDays, msg.HorizonDays,
			log.FieldError, err.Error())
		return nil
	}
	return err
}

// Refresh computes and stores a default-horizon forecast of the ledger.
func (w *ForecastWorker) Refresh(ctx context.Context, reason string) error {
	return w.compute(ctx, uuid.NewString(), reason, services.Request{})
}

func (w *ForecastWorker) compute(ctx context.Context, runID, reason string, req services.Request) error {
	logger := w.logger.With(log.FieldRunID, runID)
	logger.InfoContext(ctx, "Processing forecast request", log.FieldReason, reason)

	res, err := w.service.Forecast(ctx, req)
	if err != nil {
		return fmt.Errorf("compute forecast: %w", err)
	}

	if err := w.runs.SaveForecast(ctx, storage.ForecastRun{
		ID:            runID,
		CreatedAt:     w.now(),
		Reason:        reason,
		LedgerVersion: res.LedgerVersion,
		Forecast:      res.Forecast,
	}); err != nil {
		return fmt.Errorf("save forecast: %w", err)
	}

	s := res.Summary
	logger.InfoContext(ctx, "Forecast stored",
		log.FieldHorizonDays, res.Forecast.HorizonDays,
		log.FieldVersion, res.LedgerVersion,
		"ending_balance", s.EndingBalance.StringFixed(2),
		"lowest_balance", s.LowestBalance.StringFixed(2),
		"first_negative_on", firstNegative(s.FirstNegativeOn))

	if w.keep > 0 {
		if removed, err := w.runs.PruneForecasts(ctx, w.keep); err != nil {
			logger.WarnContext(ctx, "Failed to prune old forecasts", log.FieldError, err)
		} else if removed > 0 {
			logger.DebugContext(ctx, "Pruned old forecasts", "removed", removed)
		}
	}
	return nil
}

func firstNegative(d *core.Date) string {
	if d == nil {
		return "never"
	}
	return d.String()
}

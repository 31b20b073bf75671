package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flusso/internal/amqp"
	"flusso/internal/core"
	"flusso/internal/forecast"
	"flusso/internal/ledger"
	"flusso/internal/ledger/memory"
	"flusso/internal/services"
	"flusso/internal/storage"
)

type memoryRuns struct {
	mu     sync.Mutex
	runs   []storage.ForecastRun
	pruned []int
	err    error
}

func (m *memoryRuns) SaveForecast(_ context.Context, run storage.ForecastRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryRuns) PruneForecasts(_ context.Context, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = append(m.pruned, keep)
	return 0, nil
}

func newWorker(t *testing.T, runs RunStore, keep int) *ForecastWorker {
	t.Helper()
	store := memory.NewFromContents(ledger.Contents{
		Accounts: []core.Account{{Name: "Checking", Balance: core.Money{Cents: 10000}}},
		Rules: []core.RecurringRule{{
			Description: "Coffee", Every: core.Daily, Amount: core.Money{Cents: 300}, Kind: core.Expense,
			StartDate: core.DateText("2024-01-01"),
		}},
	})
	today := time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC)
	p := forecast.New(forecast.WithClock(func() time.Time { return today }))
	svc := services.NewForecastService(store, p, services.WithDefaultHorizon(14))
	w := NewForecastWorker(svc, runs, keep, nil)
	w.now = func() time.Time { return today }
	return w
}

func TestHandleRequest(t *testing.T) {
	runs := &memoryRuns{}
	w := newWorker(t, runs, 10)

	balance := int64(5000)
	msg := &amqp.ForecastRequestMessage{ID: "req-1", HorizonDays: 3, BalanceCents: &balance, Reason: "api"}
	if err := w.HandleRequest(context.Background(), msg); err != nil {
		t.Fatalf("HandleRequest() error = %v", err)
	}

	if len(runs.runs) != 1 {
		t.Fatalf("saved %d runs, want 1", len(runs.runs))
	}
	run := runs.runs[0]
	if run.ID != "req-1" || run.Reason != "api" || run.LedgerVersion == 0 {
		t.Errorf("run = %+v", run)
	}
	points := run.Forecast.Points
	if len(points) != 4 || points[3].Balance.StringFixed(2) != "41.00" {
		t.Errorf("points = %+v, want 4 ending at 41.00", points)
	}
	if len(runs.pruned) != 1 || runs.pruned[0] != 10 {
		t.Errorf("pruned = %v, want [10]", runs.pruned)
	}
}

func TestRefreshUsesDefaults(t *testing.T) {
	runs := &memoryRuns{}
	w := newWorker(t, runs, 0)

	if err := w.Refresh(context.Background(), "schedule"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	run := runs.runs[0]
	if run.ID == "" || run.Forecast.HorizonDays != 14 {
		t.Errorf("run id %q horizon %d, want generated id and 14", run.ID, run.Forecast.HorizonDays)
	}
	if !run.Forecast.StartingBalance.Equal(core.Money{Cents: 10000}.Decimal()) {
		t.Errorf("starting balance = %s, want ledger balance", run.Forecast.StartingBalance)
	}
	if len(runs.pruned) != 0 {
		t.Error("keep 0 should not prune")
	}
}

func TestHandleRequestSaveError(t *testing.T) {
	runs := &memoryRuns{err: errors.New("disk full")}
	w := newWorker(t, runs, 0)

	err := w.HandleRequest(context.Background(), amqp.NewForecastRequestMessage(5, "api"))
	if err == nil {
		t.Fatal("HandleRequest() error = nil, want save failure")
	}
}

func TestHandleRequestDropsInvalidHorizon(t *testing.T) {
	runs := &memoryRuns{}
	w := newWorker(t, runs, 10)

	msg, err := amqp.ForecastRequestMessageFromJSON([]byte(`{"id":"req-big","horizon_days":5000,"reason":"api"}`))
	if err != nil {
		t.Fatalf("ForecastRequestMessageFromJSON() error = %v", err)
	}
	if err := w.HandleRequest(context.Background(), msg); err != nil {
		t.Fatalf("HandleRequest() error = %v, want nil so the message is not requeued", err)
	}
	if len(runs.runs) != 0 {
		t.Errorf("saved %d runs for an invalid request", len(runs.runs))
	}
}

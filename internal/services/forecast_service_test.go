package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"flusso/internal/amqp"
	"flusso/internal/cache"
	"flusso/internal/core"
	"flusso/internal/forecast"
	"flusso/internal/ledger"
	"flusso/internal/ledger/memory"
)

var serviceToday = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ForecastRequestMessage
	err  error
}

func (p *fakePublisher) PublishForecastRequest(_ context.Context, msg *amqp.ForecastRequestMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

type failingReader struct{}

func (failingReader) Snapshot(context.Context) (ledger.Snapshot, error) {
	return ledger.Snapshot{}, errors.New("database is locked")
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	return memory.NewFromContents(ledger.Contents{
		Accounts: []core.Account{{Name: "Checking", Balance: core.Money{Cents: 100000}}},
		Transactions: []core.Transaction{
			{Date: core.DateText("2024-01-05"), Amount: core.Money{Cents: 5000}, Kind: core.Expense},
		},
		Rules: []core.RecurringRule{{
			Description: "Rent", Every: core.Monthly, DayOfMonth: 15,
			Amount: core.Money{Cents: 80000}, Kind: core.Expense, StartDate: core.DateText("2023-01-01"),
		}},
	})
}

func newService(store ledger.SnapshotReader, opts ...ServiceOption) *ForecastService {
	p := forecast.New(forecast.WithClock(func() time.Time { return serviceToday }))
	return NewForecastService(store, p, opts...)
}

func intPtr(n int) *int { return &n }

func TestForecastService_Forecast(t *testing.T) {
	svc := newService(newStore(t))

	res, err := svc.Forecast(context.Background(), Request{HorizonDays: intPtr(10)})
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	f := res.Forecast
	if len(f.Points) != 11 {
		t.Fatalf("points = %d, want 11", len(f.Points))
	}
	// drift -5000 cents over 5 days = -10/day; rent on the 15th (day 5)
	want := map[int]string{0: "1000", 1: "990", 4: "960", 5: "150", 10: "100"}
	for i, w := range want {
		if !f.Points[i].Balance.Equal(decimal.RequireFromString(w)) {
			t.Errorf("point %d = %s, want %s", i, f.Points[i].Balance, w)
		}
	}
	if res.Summary.Occurrences != 1 || res.LedgerVersion == 0 || res.Cached {
		t.Errorf("result = %+v", res.Summary)
	}
}

func TestForecastService_DefaultsAndOverrides(t *testing.T) {
	svc := newService(newStore(t), WithDefaultHorizon(30))

	res, err := svc.Forecast(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if res.Forecast.HorizonDays != 30 || len(res.Forecast.Points) != 31 {
		t.Errorf("horizon = %d with %d points, want 30/31", res.Forecast.HorizonDays, len(res.Forecast.Points))
	}

	balance := decimal.RequireFromString("-42.50")
	res, err = svc.Forecast(context.Background(), Request{HorizonDays: intPtr(0), Balance: &balance})
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(res.Forecast.Points) != 1 || !res.Forecast.Points[0].Balance.Equal(balance) {
		t.Errorf("points = %+v, want single point at -42.50", res.Forecast.Points)
	}

	for _, h := range []int{-1, MaxHorizonDays + 1} {
		if _, err := svc.Forecast(context.Background(), Request{HorizonDays: intPtr(h)}); !errors.Is(err, ErrInvalidHorizon) {
			t.Errorf("Forecast(horizon=%d) error = %v, want ErrInvalidHorizon", h, err)
		}
	}
}

func TestForecastService_CacheFollowsLedgerVersion(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := newService(store, WithCache(cache.NewLRUCache[Result](8, time.Hour)))

	first, err := svc.Forecast(ctx, Request{HorizonDays: intPtr(5)})
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	second, _ := svc.Forecast(ctx, Request{HorizonDays: intPtr(5)})
	if first.Cached || !second.Cached {
		t.Errorf("cached flags = %v, %v, want false, true", first.Cached, second.Cached)
	}

	if _, err := store.UpsertAccount(ctx, core.Account{Name: "Savings", Balance: core.Money{Cents: 50000}}); err != nil {
		t.Fatalf("UpsertAccount() error = %v", err)
	}
	third, _ := svc.Forecast(ctx, Request{HorizonDays: intPtr(5)})
	if third.Cached {
		t.Error("write to the ledger should bypass the cached result")
	}
	if !third.Forecast.StartingBalance.Equal(decimal.RequireFromString("1500")) {
		t.Errorf("starting balance = %s, want 1500", third.Forecast.StartingBalance)
	}

	svc.Invalidate()
	if again, _ := svc.Forecast(ctx, Request{HorizonDays: intPtr(5)}); again.Cached {
		t.Error("Invalidate() should purge the cache")
	}
}

func TestForecastService_ReaderError(t *testing.T) {
	svc := newService(failingReader{})
	if _, err := svc.Forecast(context.Background(), Request{}); err == nil {
		t.Error("Forecast() error = nil, want read failure")
	}
}

func TestForecastService_Preview(t *testing.T) {
	svc := newService(failingReader{})

	res, err := svc.Preview(context.Background(), forecast.Input{
		Balance:     decimal.RequireFromString("10"),
		HorizonDays: 2,
		Rules: []core.RecurringRule{{
			Every: core.Daily, Amount: core.Money{Cents: 100}, Kind: core.Income, StartDate: core.DateText("2024-01-01"),
		}},
	})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if !res.Summary.EndingBalance.Equal(decimal.RequireFromString("12")) {
		t.Errorf("ending balance = %s, want 12", res.Summary.EndingBalance)
	}

	if _, err := svc.Preview(context.Background(), forecast.Input{HorizonDays: -3}); !errors.Is(err, ErrInvalidHorizon) {
		t.Errorf("Preview(-3) error = %v, want ErrInvalidHorizon", err)
	}
}

func TestForecastService_RequestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("no publisher", func(t *testing.T) {
		svc := newService(newStore(t))
		if _, err := svc.RequestRefresh(ctx, Request{}, "api"); !errors.Is(err, ErrNoPublisher) {
			t.Errorf("error = %v, want ErrNoPublisher", err)
		}
	})

	t.Run("publishes", func(t *testing.T) {
		pub := &fakePublisher{}
		svc := newService(newStore(t), WithPublisher(pub), WithDefaultHorizon(45))

		balance := decimal.RequireFromString("12.345")
		id, err := svc.RequestRefresh(ctx, Request{Balance: &balance}, "api")
		if err != nil {
			t.Fatalf("RequestRefresh() error = %v", err)
		}
		if len(pub.msgs) != 1 {
			t.Fatalf("published %d messages, want 1", len(pub.msgs))
		}
		msg := pub.msgs[0]
		if msg.ID != id || msg.HorizonDays != 45 || msg.Reason != "api" {
			t.Errorf("message = %+v", msg)
		}
		if msg.BalanceCents == nil || *msg.BalanceCents != 1235 {
			t.Errorf("balance cents = %v, want 1235", msg.BalanceCents)
		}
	})

	t.Run("publish failure", func(t *testing.T) {
		svc := newService(newStore(t), WithPublisher(&fakePublisher{err: amqp.ErrCircuitOpen}))
		if _, err := svc.RequestRefresh(ctx, Request{}, "api"); !errors.Is(err, amqp.ErrCircuitOpen) {
			t.Errorf("error = %v, want ErrCircuitOpen", err)
		}
	})
}

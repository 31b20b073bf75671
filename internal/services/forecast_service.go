package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"flusso/internal/amqp"
	"flusso/internal/cache"
	"flusso/internal/core"
	"flusso/internal/forecast"
	"flusso/internal/ledger"
	"flusso/internal/log"
)

// MaxHorizonDays bounds requests coming from outside the process.
const MaxHorizonDays = 3660

var (
	ErrInvalidHorizon = errors.New("invalid horizon")
	ErrNoPublisher    = errors.New("forecast requests cannot be published: no broker configured")
)

// Publisher sends forecast requests to the worker.
type Publisher interface {
	PublishForecastRequest(ctx context.Context, msg *amqp.ForecastRequestMessage) error
}

// Request selects what to project. Nil fields take the service defaults:
// the configured horizon and the ledger's balance.
type Request struct {
	HorizonDays *int
	Balance     *decimal.Decimal
}

// Result is a forecast together with its summary and the ledger version it
// was computed from.
type Result struct {
	Forecast      forecast.Forecast `json:"forecast"`
	Summary       forecast.Summary  `json:"summary"`
	LedgerVersion int64             `json:"ledger_version"`
	Cached        bool              `json:"cached"`
}

// ForecastService projects the ledger and caches the results.
type ForecastService struct {
	reader         ledger.SnapshotReader
	projector      *forecast.Projector
	cache          cache.Cache[Result]
	publisher      Publisher
	defaultHorizon int
	logger         *log.Logger
}

type ServiceOption func(*ForecastService)

func WithCache(c cache.Cache[Result]) ServiceOption {
	return func(s *ForecastService) { s.cache = c }
}

func WithPublisher(p Publisher) ServiceOption {
	return func(s *ForecastService) { s.publisher = p }
}

func WithDefaultHorizon(days int) ServiceOption {
	return func(s *ForecastService) {
		if days >= 0 {
			s.defaultHorizon = days
		}
	}
}

func WithLogger(l *log.Logger) ServiceOption {
	return func(s *ForecastService) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentForecast)
		}
	}
}

func NewForecastService(reader ledger.SnapshotReader, projector *forecast.Projector, opts ...ServiceOption) *ForecastService {
	if projector == nil {
		projector = forecast.New()
	}
	s := &ForecastService{
		reader:         reader,
		projector:      projector,
		defaultHorizon: forecast.DefaultHorizonDays,
		logger:         log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultHorizon returns the horizon used when a request names none.
func (s *ForecastService) DefaultHorizon() int {
	return s.defaultHorizon
}

func (s *ForecastService) horizon(req Request) (int, error) {
	if req.HorizonDays == nil {
		return s.defaultHorizon, nil
	}
	h := *req.HorizonDays
	if h < 0 || h > MaxHorizonDays {
		return 0, fmt.Errorf("%w: %d (must be 0-%d)", ErrInvalidHorizon, h, MaxHorizonDays)
	}
	return h, nil
}

// Forecast projects the current ledger. Results are cached per ledger
// version, day, horizon and balance, so any ledger write or a new day
// produces a fresh projection.
func (s *ForecastService) Forecast(ctx context.Context, req Request) (Result, error) {
	horizon, err := s.horizon(req)
	if err != nil {
		return Result{}, err
	}

	snap, err := s.reader.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read ledger: %w", err)
	}

	balance := snap.Balance.Decimal()
	balanceKey := "ledger"
	if req.Balance != nil {
		balance = *req.Balance
		balanceKey = balance.String()
	}

	today := s.projector.Today()
	key := fmt.Sprintf("v%d|%s|%d|%s", snap.Version, today, horizon, balanceKey)
	if s.cache != nil {
		if res, ok := s.cache.Get(key); ok {
			res.Cached = true
			return res, nil
		}
	}

	f := s.projector.Run(forecast.Input{
		Balance:      balance,
		Transactions: snap.Transactions,
		Rules:        snap.Rules,
		HorizonDays:  horizon,
	})
	res := Result{Forecast: f, Summary: forecast.Summarize(f), LedgerVersion: snap.Version}
	s.logRun(ctx, f, snap.Version)

	if s.cache != nil {
		s.cache.Set(key, res)
	}
	return res, nil
}

// Preview projects caller-supplied data without touching the ledger.
func (s *ForecastService) Preview(ctx context.Context, in forecast.Input) (Result, error) {
	if in.HorizonDays < 0 || in.HorizonDays > MaxHorizonDays {
		return Result{}, fmt.Errorf("%w: %d (must be 0-%d)", ErrInvalidHorizon, in.HorizonDays, MaxHorizonDays)
	}
	f := s.projector.Run(in)
	s.logRun(ctx, f, 0)
	return Result{Forecast: f, Summary: forecast.Summarize(f)}, nil
}

// RequestRefresh asks the worker to compute and store a forecast. It
// returns the id of the published request.
func (s *ForecastService) RequestRefresh(ctx context.Context, req Request, reason string) (string, error) {
	if s.publisher == nil {
		return "", ErrNoPublisher
	}
	horizon, err := s.horizon(req)
	if err != nil {
		return "", err
	}

	msg := amqp.NewForecastRequestMessage(horizon, reason)
	if req.Balance != nil {
		cents := core.MoneyFromDecimal(*req.Balance).Cents
		msg.BalanceCents = &cents
	}
	if err := s.publisher.PublishForecastRequest(ctx, msg); err != nil {
		return "", fmt.Errorf("publish forecast request: %w", err)
	}
	return msg.ID, nil
}

// Invalidate drops every cached result.
func (s *ForecastService) Invalidate() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func (s *ForecastService) logRun(ctx context.Context, f forecast.Forecast, version int64) {
	fields := log.NewFields().
		WithOperation(log.OpProject).
		WithForecast(f.Today.String(), f.HorizonDays, len(f.Points), len(f.Occurrences), len(f.Skipped), f.Drift.PerDay.StringFixed(2))
	fields[log.FieldVersion] = version
	s.logger.DebugContext(ctx, "Forecast computed", fields.ToSlice()...)

	for _, sk := range f.Skipped {
		s.logger.WarnContext(ctx, "Ledger entry skipped", "entry", sk.Entry, "index", sk.Index, "id", sk.ID, log.FieldReason, sk.Reason)
	}
}

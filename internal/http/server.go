package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"flusso/internal/forecast"
	"flusso/internal/log"
	"flusso/internal/middleware/ratelimit"
	"flusso/internal/middleware/security"
	"flusso/internal/services"
	"flusso/internal/storage"
)

// Forecaster is the part of the forecast service the API serves.
type Forecaster interface {
	Forecast(ctx context.Context, req services.Request) (services.Result, error)
	Preview(ctx context.Context, in forecast.Input) (services.Result, error)
	RequestRefresh(ctx context.Context, req services.Request, reason string) (string, error)
	DefaultHorizon() int
}

// RunReader returns the most recently stored forecast.
type RunReader interface {
	LatestForecast(ctx context.Context) (storage.ForecastRun, error)
}

// Options configures a Server. Forecasts is required; everything else may
// be left zero.
type Options struct {
	Forecasts Forecaster
	// Runs is nil when the backend does not store forecasts.
	Runs RunReader
	// Ping backs the readiness probe.
	Ping   func(ctx context.Context) error
	Logger *log.Logger
	// WriteRequestsPerMinute limits POST requests per client.
	WriteRequestsPerMinute int
	ReadyTimeout           time.Duration
}

// Server is the HTTP front of the forecast service.
type Server struct {
	http.Server

	forecasts    Forecaster
	runs         RunReader
	ping         func(ctx context.Context) error
	logger       *log.Logger
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	readyTimeout time.Duration
	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Call Shutdown to release its background goroutines.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 2 * time.Second
	}
	rlConfig := ratelimit.DefaultConfig()
	if opts.WriteRequestsPerMinute > 0 {
		rlConfig.RequestsPerMinute = opts.WriteRequestsPerMinute
	}

	s := &Server{
		forecasts:    opts.Forecasts,
		runs:         opts.Runs,
		ping:         opts.Ping,
		logger:       logger.WithComponent(log.ComponentHTTP),
		limiter:      ratelimit.NewLimiter(rlConfig),
		detector:     security.NewDetector(),
		readyTimeout: opts.ReadyTimeout,
		started:      time.Now(),
	}

	limited := s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).Warn("Rate limit exceeded", "client_ip", s.detector.ClientIP(r))
		TooManyRequestsError().Write(w, r)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/forecast", s.handleForecast)
	mux.HandleFunc("GET /api/forecast/latest", s.handleLatest)
	mux.Handle("POST /api/forecast/preview", limited(http.HandlerFunc(s.handlePreview)))
	mux.Handle("POST /api/forecast/refresh", limited(http.HandlerFunc(s.handleRefresh)))

	var handler http.Handler = mux
	handler = s.detector.Middleware(func(r *http.Request, clientIP string) {
		log.FromContext(r.Context()).Warn("Suspicious request", "client_ip", clientIP, log.FieldPath, r.URL.Path)
	})(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops background work and then the HTTP server. Only the first
// call has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

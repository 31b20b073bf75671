package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"flusso/internal/forecast"
	"flusso/internal/ledger"
	"flusso/internal/log"
	"flusso/internal/services"
)

// RunResponse is a stored forecast as served by /api/forecast/latest.
type RunResponse struct {
	ID            string            `json:"id"`
	CreatedAt     time.Time         `json:"created_at"`
	Reason        string            `json:"reason,omitempty"`
	LedgerVersion int64             `json:"ledger_version"`
	Forecast      forecast.Forecast `json:"forecast"`
	Summary       forecast.Summary  `json:"summary"`
}

// RefreshResponse acknowledges a published refresh request.
type RefreshResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}).Write(w, r)
}

// handleReady checks the backend within readyTimeout.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.readyTimeout)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			log.FromContext(r.Context()).Warn("Readiness check failed", log.FieldError, err.Error())
			NewResponse().
				Status(http.StatusServiceUnavailable).
				JSON(map[string]string{"status": "unavailable", "error": err.Error()}).
				Write(w, r)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w, r)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	req, err := ParseForecastQuery(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w, r)
		return
	}
	res, err := s.forecasts.Forecast(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, "Forecast failed", err)
		return
	}
	NewResponse().JSON(res).Write(w, r)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var body PreviewRequest
	if err := DecodeJSON(w, r, &body, false); err != nil {
		BadRequestError(err.Error()).Write(w, r)
		return
	}
	res, err := s.forecasts.Preview(r.Context(), body.Input(s.forecasts.DefaultHorizon()))
	if err != nil {
		s.writeServiceError(w, r, "Preview failed", err)
		return
	}
	NewResponse().JSON(res).Write(w, r)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		ServiceUnavailableError("this backend does not store forecasts").Write(w, r)
		return
	}
	run, err := s.runs.LatestForecast(r.Context())
	if errors.Is(err, ledger.ErrNotFound) {
		NotFoundError("no forecast has been stored yet").Write(w, r)
		return
	}
	if err != nil {
		log.FromContext(r.Context()).Error("Loading latest forecast failed", log.FieldError, err.Error())
		InternalServerError("could not load the latest forecast").Write(w, r)
		return
	}
	NewResponse().JSON(RunResponse{
		ID:            run.ID,
		CreatedAt:     run.CreatedAt,
		Reason:        run.Reason,
		LedgerVersion: run.LedgerVersion,
		Forecast:      run.Forecast,
		Summary:       forecast.Summarize(run.Forecast),
	}).Write(w, r)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body RefreshRequest
	if err := DecodeJSON(w, r, &body, true); err != nil {
		BadRequestError(err.Error()).Write(w, r)
		return
	}
	reason := sanitizeInput(body.Reason)
	if reason == "" {
		reason = "api"
	}

	id, err := s.forecasts.RequestRefresh(r.Context(), services.Request{
		HorizonDays: body.HorizonDays,
		Balance:     body.Balance,
	}, reason)
	if err != nil {
		s.writeServiceError(w, r, "Refresh request failed", err)
		return
	}
	NewResponse().
		Status(http.StatusAccepted).
		JSON(RefreshResponse{ID: id, Status: "accepted"}).
		Write(w, r)
}

// writeServiceError maps service errors to status codes. Anything
// unrecognised is logged and hidden behind a 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidHorizon):
		BadRequestError(err.Error()).Write(w, r)
	case errors.Is(err, services.ErrNoPublisher):
		ServiceUnavailableError(err.Error()).Write(w, r)
	default:
		log.FromContext(r.Context()).Error(msg, log.FieldError, err.Error())
		InternalServerError(msg).Write(w, r)
	}
}

// This file turns query strings and JSON bodies into service requests.
// Ledger entries in a body are mapped as given: malformed dates, kinds or
// frequencies are left for the projector to skip and report.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"flusso/internal/core"
	"flusso/internal/forecast"
	"flusso/internal/services"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ParseForecastQuery reads the optional horizon and balance parameters.
func ParseForecastQuery(query url.Values) (services.Request, error) {
	var req services.Request

	if v := strings.TrimSpace(query.Get("horizon")); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("horizon must be a whole number of days, got %q", v)
		}
		req.HorizonDays = &h
	}
	if v := strings.TrimSpace(query.Get("balance")); v != "" {
		b, err := decimal.NewFromString(v)
		if err != nil {
			return req, fmt.Errorf("balance must be a decimal amount, got %q", v)
		}
		req.Balance = &b
	}
	return req, nil
}

// TransactionPayload is a historical transaction in a preview body.
type TransactionPayload struct {
	Date        core.RawDate    `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
}

// RulePayload is a recurring rule in a preview body.
type RulePayload struct {
	Description string          `json:"description"`
	Every       string          `json:"every"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
	StartDate   core.RawDate    `json:"start_date"`
	EndDate     core.RawDate    `json:"end_date"`
	DayOfWeek   int             `json:"day_of_week"`
	DayOfMonth  int             `json:"day_of_month"`
}

// PreviewRequest is the body of POST /api/forecast/preview.
type PreviewRequest struct {
	Balance      decimal.Decimal      `json:"balance"`
	HorizonDays  *int                 `json:"horizon_days"`
	Transactions []TransactionPayload `json:"transactions"`
	Rules        []RulePayload        `json:"rules"`
}

// Input converts the request, using defaultHorizon when none was given.
func (p PreviewRequest) Input(defaultHorizon int) forecast.Input {
	in := forecast.Input{
		Balance:      p.Balance,
		HorizonDays:  defaultHorizon,
		Transactions: make([]core.Transaction, 0, len(p.Transactions)),
		Rules:        make([]core.RecurringRule, 0, len(p.Rules)),
	}
	if p.HorizonDays != nil {
		in.HorizonDays = *p.HorizonDays
	}
	for _, t := range p.Transactions {
		in.Transactions = append(in.Transactions, core.Transaction{
			Date:        t.Date,
			Description: sanitizeInput(t.Description),
			Amount:      core.MoneyFromDecimal(t.Amount),
			Kind:        core.KindOf(t.Kind),
		})
	}
	for _, r := range p.Rules {
		every, _ := core.ParseRepetition(r.Every)
		in.Rules = append(in.Rules, core.RecurringRule{
			Description: sanitizeInput(r.Description),
			Every:       every,
			Amount:      core.MoneyFromDecimal(r.Amount),
			Kind:        core.KindOf(r.Kind),
			StartDate:   r.StartDate,
			EndDate:     r.EndDate,
			DayOfWeek:   r.DayOfWeek,
			DayOfMonth:  r.DayOfMonth,
		})
	}
	return in
}

// RefreshRequest is the optional body of POST /api/forecast/refresh.
type RefreshRequest struct {
	HorizonDays *int             `json:"horizon_days"`
	Balance     *decimal.Decimal `json:"balance"`
	Reason      string           `json:"reason"`
}

// DecodeJSON reads a single JSON object from r's body into dst. Unknown
// fields are rejected. An empty body leaves dst untouched when allowEmpty
// is set.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			if allowEmpty {
				return nil
			}
			return errors.New("request body is empty")
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		default:
			return fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON object")
	}
	return nil
}

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

func requestContext(r *http.Request) context.Context {
	if r == nil {
		return context.Background()
	}
	return r.Context()
}

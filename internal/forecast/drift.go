package forecast

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"flusso/internal/core"
)

// Drift is the constant daily movement derived from historical
// transactions. It stands in for day-to-day cash flow that no recurring
// rule models.
type Drift struct {
	Transactions  int             `json:"transactions"`
	Since         *core.Date      `json:"since,omitempty"`
	DaysOfHistory int             `json:"days_of_history"`
	TotalNetFlow  decimal.Decimal `json:"total_net_flow"`
	PerDay        decimal.Decimal `json:"per_day"`
}

type dated struct {
	day    core.Date
	amount decimal.Decimal // signed
}

// historical returns the well-formed transactions strictly before today,
// oldest first, and the entries that had to be skipped.
func historical(txs []core.Transaction, today core.Date, loc *time.Location) ([]dated, []Skipped) {
	var (
		out     []dated
		skipped []Skipped
	)
	for i, tx := range txs {
		day, err := tx.Date.Resolve(loc)
		if err != nil {
			skipped = append(skipped, skipTransaction(i, tx, err))
			continue
		}
		if err := tx.Amount.Validate(); err != nil {
			skipped = append(skipped, skipTransaction(i, tx, err))
			continue
		}
		if !tx.Kind.Valid() {
			skipped = append(skipped, skipTransaction(i, tx, core.ErrInvalidKind))
			continue
		}
		if !day.Before(today) {
			continue
		}
		out = append(out, dated{
			day:    day,
			amount: tx.Amount.Decimal().Mul(decimal.NewFromInt(tx.Kind.Sign())),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].day.Before(out[j].day)
	})
	return out, skipped
}

// computeDrift averages the signed net flow of history over the days
// between its earliest entry and today. A zero-day span yields zero drift.
func computeDrift(history []dated, today core.Date) Drift {
	d := Drift{
		Transactions: len(history),
		TotalNetFlow: decimal.Zero,
		PerDay:       decimal.Zero,
	}
	if len(history) == 0 {
		return d
	}
	since := history[0].day
	d.Since = &since
	d.DaysOfHistory = core.DaysBetween(since, today)
	for _, h := range history {
		d.TotalNetFlow = d.TotalNetFlow.Add(h.amount)
	}
	if d.DaysOfHistory > 0 {
		d.PerDay = d.TotalNetFlow.Div(decimal.NewFromInt(int64(d.DaysOfHistory)))
	}
	return d
}

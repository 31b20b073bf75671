package forecast

import (
	"github.com/shopspring/decimal"

	"flusso/internal/core"
)

// Summary condenses a forecast into the figures a dashboard shows.
// Balances are taken from the emitted, rounded points.
type Summary struct {
	Today            core.Date       `json:"today"`
	End              core.Date       `json:"end"`
	StartingBalance  decimal.Decimal `json:"starting_balance"`
	EndingBalance    decimal.Decimal `json:"ending_balance"`
	NetChange        decimal.Decimal `json:"net_change"`
	LowestBalance    decimal.Decimal `json:"lowest_balance"`
	LowestOn         core.Date       `json:"lowest_on"`
	FirstNegativeOn  *core.Date      `json:"first_negative_on,omitempty"`
	ScheduledIncome  decimal.Decimal `json:"scheduled_income"`
	ScheduledExpense decimal.Decimal `json:"scheduled_expense"`
	Occurrences      int             `json:"occurrences"`
	DriftPerDay      decimal.Decimal `json:"drift_per_day"`
	Skipped          int             `json:"skipped"`
}

// Summarize computes the summary of f. The earliest day wins when the
// lowest balance is reached more than once.
func Summarize(f Forecast) Summary {
	s := Summary{
		Today:            f.Today,
		ScheduledIncome:  decimal.Zero,
		ScheduledExpense: decimal.Zero,
		Occurrences:      len(f.Occurrences),
		DriftPerDay:      f.Drift.PerDay.Round(2),
		Skipped:          len(f.Skipped),
	}
	if len(f.Points) == 0 {
		return s
	}

	first, last := f.Points[0], f.Points[len(f.Points)-1]
	s.End = last.Date
	s.StartingBalance = first.Balance
	s.EndingBalance = last.Balance
	s.NetChange = last.Balance.Sub(first.Balance)
	s.LowestBalance = first.Balance
	s.LowestOn = first.Date

	for _, p := range f.Points {
		if p.Balance.LessThan(s.LowestBalance) {
			s.LowestBalance = p.Balance
			s.LowestOn = p.Date
		}
		if s.FirstNegativeOn == nil && p.Balance.IsNegative() {
			day := p.Date
			s.FirstNegativeOn = &day
		}
	}

	for _, o := range f.Occurrences {
		if o.Kind == core.Income {
			s.ScheduledIncome = s.ScheduledIncome.Add(o.Amount)
		} else {
			s.ScheduledExpense = s.ScheduledExpense.Add(o.Amount)
		}
	}
	return s
}

// Balances returns the point balances as float64 for charting.
func Balances(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Balance.InexactFloat64()
	}
	return out
}

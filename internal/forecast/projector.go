package forecast

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"flusso/internal/core"
)

// DefaultHorizonDays is the horizon used when a caller does not pick one.
const DefaultHorizonDays = 90

// Point is the projected balance at the end of a day.
type Point struct {
	Date    core.Date
	Balance decimal.Decimal
}

// MarshalJSON renders the balance with exactly two fractional digits.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date    string `json:"date"`
		Balance string `json:"balance"`
	}{p.Date.String(), p.Balance.StringFixed(2)})
}

// Occurrence records a rule firing on a projected day.
type Occurrence struct {
	Date        core.Date       `json:"date"`
	RuleIndex   int             `json:"rule_index"`
	RuleID      int64           `json:"rule_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Kind        core.Kind       `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
}

// Skipped names an input entry that was left out of the projection.
type Skipped struct {
	Entry  string `json:"entry"` // "transaction" or "rule"
	Index  int    `json:"index"`
	ID     int64  `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// Input is everything a projection reads. The slices are never modified.
type Input struct {
	Balance      decimal.Decimal
	Transactions []core.Transaction
	Rules        []core.RecurringRule
	// HorizonDays is used as given; negative values act as zero.
	HorizonDays int
}

// Forecast is the full result of a projection run.
type Forecast struct {
	Today           core.Date       `json:"today"`
	HorizonDays     int             `json:"horizon_days"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	Points          []Point         `json:"points"`
	Drift           Drift           `json:"drift"`
	Occurrences     []Occurrence    `json:"occurrences"`
	Skipped         []Skipped       `json:"skipped"`
}

// Projector runs projections against an injectable clock.
type Projector struct {
	now func() time.Time
	loc *time.Location
}

// Option configures a Projector.
type Option func(*Projector)

// WithClock replaces time.Now as the source of today.
func WithClock(now func() time.Time) Option {
	return func(p *Projector) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLocation sets the calendar in which instants are turned into days.
func WithLocation(loc *time.Location) Option {
	return func(p *Projector) {
		if loc != nil {
			p.loc = loc
		}
	}
}

func New(opts ...Option) *Projector {
	p := &Projector{now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Today returns the current day in the projector's calendar.
func (p *Projector) Today() core.Date {
	return core.DayOf(p.now(), p.loc)
}

// Location returns the projector's calendar.
func (p *Projector) Location() *time.Location {
	return p.loc
}

// Project returns horizonDays+1 points starting at today.
func (p *Projector) Project(balance decimal.Decimal, txs []core.Transaction, rules []core.RecurringRule, horizonDays int) []Point {
	return p.Run(Input{
		Balance:      balance,
		Transactions: txs,
		Rules:        rules,
		HorizonDays:  horizonDays,
	}).Points
}

// Run projects in and reports drift, occurrences and skipped entries.
func (p *Projector) Run(in Input) Forecast {
	return run(p.Today(), p.loc, in)
}

// Project is the clock-free form of (*Projector).Project: today is given
// explicitly and read in its own location.
func Project(today time.Time, balance decimal.Decimal, txs []core.Transaction, rules []core.RecurringRule, horizonDays int) []Point {
	loc := today.Location()
	return run(core.DayOf(today, loc), loc, Input{
		Balance:      balance,
		Transactions: txs,
		Rules:        rules,
		HorizonDays:  horizonDays,
	}).Points
}

type resolvedRule struct {
	index    int
	rule     core.RecurringRule
	schedule Schedule
	matcher  OccurrenceMatcher
	amount   decimal.Decimal
}

func run(today core.Date, loc *time.Location, in Input) Forecast {
	horizon := in.HorizonDays
	if horizon < 0 {
		horizon = 0
	}

	history, skipped := historical(in.Transactions, today, loc)
	rules, skippedRules := resolveRules(in.Rules, loc)
	skipped = append(skipped, skippedRules...)

	f := Forecast{
		Today:           today,
		HorizonDays:     horizon,
		StartingBalance: in.Balance,
		Drift:           computeDrift(history, today),
		Points:          make([]Point, 0, horizon+1),
		Occurrences:     []Occurrence{},
		Skipped:         skipped,
	}
	if f.Skipped == nil {
		f.Skipped = []Skipped{}
	}

	// The accumulator keeps full precision; only emitted points are rounded.
	balance := in.Balance
	f.Points = append(f.Points, Point{Date: today, Balance: balance.Round(2)})

	for i := 1; i <= horizon; i++ {
		day := today.AddDays(i)
		income, expense := decimal.Zero, decimal.Zero
		for _, r := range rules {
			if !r.schedule.InEffect(day) || !r.matcher.Occurs(day, r.schedule) {
				continue
			}
			if r.rule.Kind == core.Income {
				income = income.Add(r.amount)
			} else {
				expense = expense.Add(r.amount)
			}
			f.Occurrences = append(f.Occurrences, Occurrence{
				Date:        day,
				RuleIndex:   r.index,
				RuleID:      r.rule.ID,
				Description: r.rule.Description,
				Kind:        r.rule.Kind,
				Amount:      r.amount,
			})
		}
		balance = balance.Add(income).Sub(expense).Add(f.Drift.PerDay)
		f.Points = append(f.Points, Point{Date: day, Balance: balance.Round(2)})
	}

	return f
}

func resolveRules(rules []core.RecurringRule, loc *time.Location) ([]resolvedRule, []Skipped) {
	var (
		out     []resolvedRule
		skipped []Skipped
	)
	for i, r := range rules {
		res, err := resolveRule(r, loc)
		if err != nil {
			skipped = append(skipped, Skipped{Entry: "rule", Index: i, ID: r.ID, Reason: err.Error()})
			continue
		}
		res.index = i
		out = append(out, res)
	}
	return out, skipped
}

func resolveRule(r core.RecurringRule, loc *time.Location) (resolvedRule, error) {
	start, err := r.StartDate.Resolve(loc)
	if err != nil {
		return resolvedRule{}, fmt.Errorf("start date: %w", err)
	}
	var end core.Date
	if !r.EndDate.IsEmpty() {
		if end, err = r.EndDate.Resolve(loc); err != nil {
			return resolvedRule{}, fmt.Errorf("end date: %w", err)
		}
	}
	if err := r.Amount.Validate(); err != nil {
		return resolvedRule{}, err
	}
	if !r.Kind.Valid() {
		return resolvedRule{}, core.ErrInvalidKind
	}
	matcher, err := GetOccurrenceMatcher(r.Every)
	if err != nil {
		return resolvedRule{}, err
	}
	return resolvedRule{
		rule: r,
		schedule: Schedule{
			Start:      start,
			End:        end,
			DayOfWeek:  r.DayOfWeek,
			DayOfMonth: r.DayOfMonth,
		},
		matcher: matcher,
		amount:  r.Amount.Decimal(),
	}, nil
}

func skipTransaction(i int, tx core.Transaction, err error) Skipped {
	return Skipped{Entry: "transaction", Index: i, ID: tx.ID, Reason: err.Error()}
}

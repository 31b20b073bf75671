package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Monthly RepetitionTypes = "monthly"
	Yearly  RepetitionTypes = "yearly"
	Weekly  RepetitionTypes = "weekly"
	Daily   RepetitionTypes = "daily"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

type (
	RepetitionTypes string

	// Kind tells whether an amount adds to or subtracts from the balance.
	Kind string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a historical ledger entry. Amount is never negative;
	// the sign comes from Kind.
	Transaction struct {
		ID          int64 // Database ID, zero when not persisted
		Date        RawDate
		Description string
		Amount      Money
		Kind        Kind
	}

	// RecurringRule describes a transaction that repeats on a schedule.
	// DayOfWeek (1=Monday..7=Sunday) and DayOfMonth (1..31) are optional;
	// zero means unset.
	RecurringRule struct {
		ID          int64
		Description string
		Every       RepetitionTypes
		Amount      Money
		Kind        Kind
		StartDate   RawDate
		EndDate     RawDate // empty when open-ended
		DayOfWeek   int
		DayOfMonth  int
	}

	// Account holds a named balance. The starting balance of a projection
	// is the sum of all accounts.
	Account struct {
		ID      int64
		Name    string
		Balance Money // may be negative
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidKind      = errors.New("invalid kind")
	ErrInvalidFrequency = errors.New("invalid repetition type")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty name")
)

// Sign returns +1 for income and -1 for expense, 0 for anything else.
func (k Kind) Sign() int64 {
	switch k {
	case Income:
		return 1
	case Expense:
		return -1
	default:
		return 0
	}
}

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

// ParseKind accepts the kind names case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// KindOf is ParseKind for entries validated later: an unknown name is
// returned as written, so the entry is reported rather than rejected here.
func KindOf(s string) Kind {
	if k, err := ParseKind(s); err == nil {
		return k
	}
	return Kind(s)
}

// ParseRepetition accepts the repetition names case-insensitively. Any
// non-empty name is returned so that custom frequencies can be registered
// by the projector; only an empty name is rejected.
func ParseRepetition(s string) (RepetitionTypes, error) {
	r := RepetitionTypes(strings.ToLower(strings.TrimSpace(s)))
	if r == "" {
		return "", ErrInvalidFrequency
	}
	return r, nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// IsEmpty returns true if the date is zero (for backward compatibility with optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if _, err := t.Date.Resolve(time.UTC); err != nil {
		return err
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

func (r RecurringRule) Validate() error {
	start, err := r.StartDate.Resolve(time.UTC)
	if err != nil {
		return errors.New("invalid start date: " + err.Error())
	}

	// Validate end date if provided
	if !r.EndDate.IsEmpty() {
		end, err := r.EndDate.Resolve(time.UTC)
		if err != nil {
			return errors.New("invalid end date: " + err.Error())
		}
		if end.Before(start) {
			return errors.New("end date must not be before start date")
		}
	}

	switch r.Every {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return ErrInvalidFrequency
	}

	if r.DayOfWeek < 0 || r.DayOfWeek > 7 {
		return fmt.Errorf("day of week %d out of range 1-7", r.DayOfWeek)
	}
	if r.DayOfMonth < 0 || r.DayOfMonth > 31 {
		return fmt.Errorf("day of month %d out of range 1-31", r.DayOfMonth)
	}

	if len(strings.TrimSpace(r.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(r.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}

	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if !r.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if len(a.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	return nil
}

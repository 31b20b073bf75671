// Package forecast projects an account balance forward in time from a
// ledger of past transactions and a set of recurring rules.
//
// This file implements the Strategy Pattern for recurring rule occurrences.
// Each repetition type has a matcher that decides whether a rule fires on
// a given calendar day.
package forecast

import (
	"fmt"
	"sync"

	"flusso/internal/core"
)

// Schedule is the resolved timing of a recurring rule. End is zero for
// open-ended rules. DayOfWeek and DayOfMonth keep the caller's values;
// matchers apply their own defaults.
type Schedule struct {
	Start      core.Date
	End        core.Date
	DayOfWeek  int
	DayOfMonth int
}

// InEffect reports whether day lies within the schedule's start and end
// dates, both inclusive.
func (s Schedule) InEffect(day core.Date) bool {
	if day.Before(s.Start) {
		return false
	}
	return s.End.IsEmpty() || !day.After(s.End)
}

// Weekday returns the ISO weekday (Monday=1) the schedule fires on.
// Unset or out-of-range values fall back to Monday.
func (s Schedule) Weekday() int {
	if s.DayOfWeek < 1 || s.DayOfWeek > 7 {
		return 1
	}
	return s.DayOfWeek
}

// MonthDay returns the day of month the schedule fires on. Unset or
// out-of-range values fall back to the 1st.
func (s Schedule) MonthDay() int {
	if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
		return 1
	}
	return s.DayOfMonth
}

// OccurrenceMatcher is the strategy interface for recurring rule dates.
// It is only consulted for days on which the schedule is in effect.
type OccurrenceMatcher interface {
	Occurs(day core.Date, s Schedule) bool
}

// DailyMatcher fires every day.
type DailyMatcher struct{}

func (DailyMatcher) Occurs(core.Date, Schedule) bool {
	return true
}

// WeeklyMatcher fires on the schedule's ISO weekday.
type WeeklyMatcher struct{}

func (WeeklyMatcher) Occurs(day core.Date, s Schedule) bool {
	return day.ISOWeekday() == s.Weekday()
}

// MonthlyMatcher fires when the day of month equals the schedule's day.
// Months shorter than that day are skipped, not clamped.
type MonthlyMatcher struct{}

func (MonthlyMatcher) Occurs(day core.Date, s Schedule) bool {
	return day.Day() == s.MonthDay()
}

// YearlyMatcher fires once a year in the start date's month, on
// DayOfMonth if set and on the start date's day otherwise.
type YearlyMatcher struct{}

func (YearlyMatcher) Occurs(day core.Date, s Schedule) bool {
	if day.Month() != s.Start.Month() {
		return false
	}
	target := s.Start.Day()
	if s.DayOfMonth >= 1 && s.DayOfMonth <= 31 {
		target = s.DayOfMonth
	}
	return day.Day() == target
}

var (
	matchersMu sync.RWMutex
	// occurrenceMatchers maps repetition types to their matchers.
	occurrenceMatchers = map[core.RepetitionTypes]OccurrenceMatcher{
		core.Daily:   DailyMatcher{},
		core.Weekly:  WeeklyMatcher{},
		core.Monthly: MonthlyMatcher{},
		core.Yearly:  YearlyMatcher{},
	}
)

// GetOccurrenceMatcher returns the matcher for a repetition type.
func GetOccurrenceMatcher(every core.RepetitionTypes) (OccurrenceMatcher, error) {
	matchersMu.RLock()
	defer matchersMu.RUnlock()
	m, ok := occurrenceMatchers[every]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidFrequency, every)
	}
	return m, nil
}

// RegisterOccurrenceMatcher adds or replaces the matcher for a repetition type.
func RegisterOccurrenceMatcher(every core.RepetitionTypes, m OccurrenceMatcher) {
	matchersMu.Lock()
	defer matchersMu.Unlock()
	occurrenceMatchers[every] = m
}

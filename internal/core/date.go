package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of a calendar day.
const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Layouts tried in order when a RawDate holds text. Layouts carrying an
// offset are converted to the target location before the day is taken.
var isoLayouts = []struct {
	layout    string
	hasOffset bool
}{
	{DateLayout, false},
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
}

// RawDate is a date as a caller supplied it: either a time value or an
// ISO-8601 string. It is resolved to a calendar day on demand so that a
// malformed value only affects the entry that carries it.
type RawDate struct {
	t    time.Time
	text string
}

// DateAt wraps a time value.
func DateAt(t time.Time) RawDate {
	return RawDate{t: t}
}

// DateText wraps an ISO-8601 string without parsing it.
func DateText(s string) RawDate {
	return RawDate{text: strings.TrimSpace(s)}
}

// DateOf wraps an already normalized day.
func DateOf(d Date) RawDate {
	return RawDate{t: d.Time}
}

// IsEmpty reports whether neither a time nor text was supplied.
func (r RawDate) IsEmpty() bool {
	return r.t.IsZero() && r.text == ""
}

// Resolve returns the calendar day of r as observed in loc.
func (r RawDate) Resolve(loc *time.Location) (Date, error) {
	if loc == nil {
		loc = time.UTC
	}
	if !r.t.IsZero() {
		return DayOf(r.t, loc), nil
	}
	if r.text == "" {
		return Date{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	return ParseDay(r.text, loc)
}

// In returns r with a time value reduced to its calendar day in loc, so
// that its text form no longer depends on the zone it was created in.
// Text is returned unchanged.
func (r RawDate) In(loc *time.Location) RawDate {
	if r.t.IsZero() {
		return r
	}
	return DateOf(DayOf(r.t, loc))
}

// String returns the text form, normalized to a day when it resolves.
func (r RawDate) String() string {
	if !r.t.IsZero() {
		return DayOf(r.t, r.t.Location()).String()
	}
	return r.text
}

// MarshalJSON writes the day when it resolves and the raw text otherwise.
func (r RawDate) MarshalJSON() ([]byte, error) {
	if r.IsEmpty() {
		return []byte("null"), nil
	}
	return json.Marshal(r.String())
}

// UnmarshalJSON keeps the text unparsed; resolution happens later. A value
// that is not a string is kept as its JSON text, which never resolves.
func (r *RawDate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = RawDate{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*r = DateText(string(data))
		return nil
	}
	*r = DateText(s)
	return nil
}

// DayOf returns the calendar day of t as observed in loc, as midnight UTC.
func DayOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return NewDate(y, int(m), d)
}

// ParseDay parses an ISO-8601 date or date-time into a calendar day.
// Date-times without an offset are read in loc.
func ParseDay(s string, loc *time.Location) (Date, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, l := range isoLayouts {
		if l.layout == DateLayout {
			if t, err := time.Parse(l.layout, s); err == nil {
				return Date{Time: t}, nil
			}
			continue
		}
		if l.hasOffset {
			if t, err := time.Parse(l.layout, s); err == nil {
				return DayOf(t, loc), nil
			}
			continue
		}
		if t, err := time.ParseInLocation(l.layout, s, loc); err == nil {
			return DayOf(t, loc), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// AddDays returns the day n days after d.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysBetween returns the number of calendar days from a to b. It is
// negative when b is before a. Both days are UTC midnights, so whole
// seconds divide exactly; time.Duration would saturate past 292 years.
func DaysBetween(a, b Date) int {
	return int((b.Unix() - a.Unix()) / secondsPerDay)
}

// ISOWeekday returns the weekday with Monday=1 through Sunday=7.
func (d Date) ISOWeekday() int {
	wd := int(d.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDay(s, time.UTC)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

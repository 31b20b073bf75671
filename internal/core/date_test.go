package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseDay(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tests := []struct {
		name string
		in   string
		loc  *time.Location
		want Date
	}{
		{"date only", "2024-03-05", time.UTC, NewDate(2024, 3, 5)},
		{"rfc3339 utc", "2024-03-05T23:30:00Z", time.UTC, NewDate(2024, 3, 5)},
		{"rfc3339 shifted into next day", "2024-03-05T23:30:00Z", rome, NewDate(2024, 3, 6)},
		{"fractional seconds", "2024-03-05T10:00:00.123456+02:00", time.UTC, NewDate(2024, 3, 5)},
		{"naive date time", "2024-03-05T08:15:00", rome, NewDate(2024, 3, 5)},
		{"space separated", "2024-03-05 08:15:00", time.UTC, NewDate(2024, 3, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDay(tt.in, tt.loc)
			if err != nil {
				t.Fatalf("ParseDay() error = %v", err)
			}
			if !got.Equal(tt.want.Time) {
				t.Errorf("ParseDay() = %v, want %v", got, tt.want)
			}
		})
	}

	for _, bad := range []string{"", "yesterday", "2024-13-01", "05/03/2024"} {
		if _, err := ParseDay(bad, time.UTC); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseDay(%q) error = %v, want ErrInvalidDate", bad, err)
		}
	}
}

func TestRawDateResolve(t *testing.T) {
	at := DateAt(time.Date(2024, 6, 1, 18, 45, 0, 0, time.UTC))
	got, err := at.Resolve(nil)
	if err != nil || !got.Equal(NewDate(2024, 6, 1).Time) {
		t.Fatalf("Resolve() = %v, %v", got, err)
	}
	if got.Hour() != 0 || got.Location() != time.UTC {
		t.Errorf("Resolve() not normalized to midnight UTC: %v", got.Time)
	}

	if _, err := (RawDate{}).Resolve(time.UTC); err == nil {
		t.Errorf("empty RawDate should not resolve")
	}
}

func TestRawDateJSON(t *testing.T) {
	var payload struct {
		Start RawDate `json:"start"`
		End   RawDate `json:"end"`
	}
	if err := json.Unmarshal([]byte(`{"start":"2024-01-31","end":null}`), &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if payload.Start.String() != "2024-01-31" || !payload.End.IsEmpty() {
		t.Fatalf("unexpected payload %+v", payload)
	}

	// Malformed text survives decoding; it fails only when resolved.
	if err := json.Unmarshal([]byte(`{"start":"garbage"}`), &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, err := payload.Start.Resolve(time.UTC); err == nil {
		t.Errorf("expected resolve error for garbage")
	}

	// So does a value of the wrong JSON type.
	for _, body := range []string{`{"start":20240115}`, `{"start":true}`, `{"start":{"y":2024}}`} {
		if err := json.Unmarshal([]byte(body), &payload); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", body, err)
		}
		if _, err := payload.Start.Resolve(time.UTC); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("Resolve() after %s error = %v, want ErrInvalidDate", body, err)
		}
	}
}

func TestRawDateIn(t *testing.T) {
	plus10 := time.FixedZone("UTC+10", 10*60*60)
	evening := DateAt(time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC))

	if got := evening.In(plus10).String(); got != "2024-01-16" {
		t.Errorf("In(UTC+10).String() = %q, want 2024-01-16", got)
	}
	if got := evening.In(time.UTC).String(); got != "2024-01-15" {
		t.Errorf("In(UTC).String() = %q, want 2024-01-15", got)
	}

	text := DateText("2024-01-15T23:30:00-05:00")
	if got := text.In(plus10).String(); got != "2024-01-15T23:30:00-05:00" {
		t.Errorf("In() changed text to %q", got)
	}
	if !(RawDate{}).In(plus10).IsEmpty() {
		t.Errorf("In() on an empty date is not empty")
	}
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2024, 2, 27)
	if got := d.AddDays(3); !got.Equal(NewDate(2024, 3, 1).Time) {
		t.Errorf("AddDays(3) = %v, want 2024-03-01", got)
	}
	if got := DaysBetween(NewDate(2024, 1, 1), NewDate(2025, 1, 1)); got != 366 {
		t.Errorf("DaysBetween() = %d, want 366", got)
	}
	if got := DaysBetween(NewDate(2024, 1, 10), NewDate(2024, 1, 1)); got != -9 {
		t.Errorf("DaysBetween() = %d, want -9", got)
	}
	// Spans wider than time.Duration can hold.
	if got := DaysBetween(NewDate(1, 1, 1), NewDate(2024, 1, 10)); got != 738894 {
		t.Errorf("DaysBetween(0001-01-01, 2024-01-10) = %d, want 738894", got)
	}
	if got := DaysBetween(NewDate(9999, 12, 31), NewDate(1, 1, 1)); got != -3652058 {
		t.Errorf("DaysBetween(9999-12-31, 0001-01-01) = %d, want -3652058", got)
	}
}

func TestISOWeekday(t *testing.T) {
	// 2024-01-01 was a Monday.
	for i, want := range []int{1, 2, 3, 4, 5, 6, 7} {
		if got := NewDate(2024, 1, 1+i).ISOWeekday(); got != want {
			t.Errorf("ISOWeekday(2024-01-%02d) = %d, want %d", 1+i, got, want)
		}
	}
}

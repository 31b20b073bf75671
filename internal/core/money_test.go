package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParseSignedAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
	}{
		{"-12.30", -1230},
		{"12.30", 1230},
		{" -0,5 ", -50},
	}
	for _, tc := range cases {
		got, err := ParseSignedAmount(tc.in)
		if err != nil || got != tc.out {
			t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
		}
	}
	if _, err := ParseSignedAmount("--1"); err == nil {
		t.Fatalf("expected error for double sign")
	}
}

func TestMoneyDecimalConversion(t *testing.T) {
	m := Money{Cents: -1234}
	if got := m.Decimal(); !got.Equal(decimal.RequireFromString("-12.34")) {
		t.Errorf("Decimal() = %s, want -12.34", got)
	}
	if got := m.String(); got != "-12.34" {
		t.Errorf("String() = %q, want -12.34", got)
	}
	if got := MoneyFromDecimal(decimal.RequireFromString("10.005")); got.Cents != 1001 {
		t.Errorf("MoneyFromDecimal(10.005) = %d, want 1001", got.Cents)
	}
	if got := MoneyFromDecimal(decimal.RequireFromString("-10.005")); got.Cents != -1001 {
		t.Errorf("MoneyFromDecimal(-10.005) = %d, want -1001", got.Cents)
	}
}

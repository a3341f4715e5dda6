package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"45.50", 4550, true},
		{"1,234.50", 123450, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"12.344", 1234, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, false},
		{"0.004", 0, false},
		{"abc", 0, false},
		{"1e3", 0, false},
		{"1.2.3", 0, false},
		{"1,2,3", 0, false},
		{"", 0, false},
		{"99999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
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

func TestParseAmountReturnsValidationError(t *testing.T) {
	if _, err := ParseAmount("zero"); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	m, err := ParseAmount("45.5")
	if err != nil || m.Cents != 4550 {
		t.Fatalf("got %v, %v", m, err)
	}
	if m.String() != "45.50" {
		t.Fatalf("String() = %q", m.String())
	}
}

func TestFormatUSD(t *testing.T) {
	cases := map[int64]string{
		0:         "$0.00",
		5:         "$0.05",
		4550:      "$45.50",
		123456:    "$1,234.56",
		100000000: "$1,000,000.00",
		-500:      "-$5.00",
	}
	for cents, want := range cases {
		if got := FormatUSD(Money{Cents: cents}); got != want {
			t.Fatalf("FormatUSD(%d) = %q, want %q", cents, got, want)
		}
	}
}

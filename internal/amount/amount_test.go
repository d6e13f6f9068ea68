package amount

import (
	"math"
	"testing"
)

func TestParseStringRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
		out  string
	}{
		{"0", 0, "0.00000000"},
		{"0.00000001", 1, "0.00000001"},
		{"1", BaseUnit, "1.00000000"},
		{"12.5", Amount(12.5 * BaseUnit), "12.50000000"},
		{"12.50000000", Amount(12.5 * BaseUnit), "12.50000000"},
		{"-3.1", Amount(-3.1 * BaseUnit), "-3.10000000"},
		{"21000000", Amount(21_000_000 * BaseUnit), "21000000.00000000"},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %d, want %d", c.in, got, c.want)
		}
		if s := got.String(); s != c.out {
			t.Errorf("Parse(%q).String() = %q, want %q", c.in, s, c.out)
		}
		back, err := Parse(got.String())
		if err != nil || back != got {
			t.Errorf("Parse(String(%q)) round trip = (%d, %v), want %d", c.in, back, err, got)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, bad := range []string{
		"",
		".5",
		"1.123456789", // more than 8 fractional digits
		"1e8",
		"12,5",
		"abc",
		"1.2.3",
		" 1",
	} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", bad)
		}
	}
}

func TestAddOverflow(t *testing.T) {
	if _, err := Add(Amount(math.MaxInt64), 1); err == nil {
		t.Errorf("Add(MaxInt64, 1): expected overflow error")
	}
	if _, err := Add(Amount(math.MinInt64), -1); err == nil {
		t.Errorf("Add(MinInt64, -1): expected overflow error")
	}
	got, err := Add(Amount(math.MaxInt64)-5, 5)
	if err != nil || got != Amount(math.MaxInt64) {
		t.Errorf("Add at the boundary = (%d, %v), want MaxInt64", got, err)
	}
}

func TestSubOverflow(t *testing.T) {
	if _, err := Sub(Amount(math.MinInt64), 1); err == nil {
		t.Errorf("Sub(MinInt64, 1): expected overflow error")
	}
	if _, err := Sub(Amount(math.MaxInt64), -1); err == nil {
		t.Errorf("Sub(MaxInt64, -1): expected overflow error")
	}
	got, err := Sub(10, 4)
	if err != nil || got != 6 {
		t.Errorf("Sub(10, 4) = (%d, %v), want 6", got, err)
	}
}

func TestNewFromFloatRejectsNonFinite(t *testing.T) {
	if _, err := NewFromFloat(math.NaN()); err == nil {
		t.Errorf("NewFromFloat(NaN): expected error")
	}
	if _, err := NewFromFloat(math.Inf(1)); err == nil {
		t.Errorf("NewFromFloat(+Inf): expected error")
	}
	got, err := NewFromFloat(2.5)
	if err != nil || got != Amount(2.5*BaseUnit) {
		t.Errorf("NewFromFloat(2.5) = (%d, %v), want %d", got, err, Amount(2.5*BaseUnit))
	}
}

func TestIsNonNegative(t *testing.T) {
	if !Zero.IsNonNegative() || !Amount(1).IsNonNegative() {
		t.Errorf("zero and positive amounts must be non-negative")
	}
	if Amount(-1).IsNonNegative() {
		t.Errorf("negative amount reported non-negative")
	}
}

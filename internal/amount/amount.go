// Package amount implements the ledger's fixed-point value type: 8
// decimal places over a 10^8 base-unit integer. Float is never used for
// value, on the wire or internally.
package amount

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

// BaseUnit is the number of base units in one whole coin (10^8, i.e. 8
// decimal places of precision).
const BaseUnit = 1e8

// Amount represents a quantity of the ledger's native asset as a signed
// count of base units. Zero value is zero coins.
type Amount int64

// Zero is the additive identity.
const Zero Amount = 0

// NewFromFloat constructs an Amount from a float64 number of whole coins.
// This exists only for test fixtures and CLI convenience; it is never used
// on a validation or consensus path, where amounts come from decimal wire
// strings via Parse.
func NewFromFloat(coins float64) (Amount, error) {
	if math.IsNaN(coins) || math.IsInf(coins, 0) {
		return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "amount is NaN or Inf")
	}
	round := math.Round(coins * BaseUnit)
	if round < math.MinInt64 || round > math.MaxInt64 {
		return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "amount overflows int64 base units")
	}
	return Amount(round), nil
}

// Parse decodes the canonical wire representation of an amount: a decimal
// string with at most 8 fractional digits, e.g. "12.50000000" or "0".
// This is the only constructor consensus code should use.
func Parse(s string) (Amount, error) {
	if s == "" {
		return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "empty amount string")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" {
		return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "amount %q missing integer part", s)
	}
	if len(frac) > 8 {
		return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "amount %q has more than 8 fractional digits", s)
	}
	for _, c := range whole + frac {
		if c < '0' || c > '9' {
			return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "amount %q is not a canonical decimal", s)
		}
	}
	for len(frac) < 8 {
		frac += "0"
	}
	wholeUnits, err := strconv.ParseInt(whole, 10, 63)
	if err != nil {
		return 0, ledgererr.Wrap(ledgererr.KindMalformedEncoding, err, "amount %q integer part overflows", s)
	}
	fracUnits, err := strconv.ParseInt(frac, 10, 63)
	if err != nil {
		return 0, ledgererr.Wrap(ledgererr.KindMalformedEncoding, err, "amount %q fractional part overflows", s)
	}
	total := wholeUnits*BaseUnit + fracUnits
	if neg {
		total = -total
	}
	return Amount(total), nil
}

// String renders the amount as a canonical decimal string with exactly 8
// fractional digits. This is the only encoding consensus code emits, and
// it is what every hash/signature preimage embeds for amount fields.
func (a Amount) String() string {
	neg := a < 0
	v := int64(a)
	if neg {
		v = -v
	}
	whole := v / BaseUnit
	frac := v % BaseUnit
	s := fmt.Sprintf("%d.%08d", whole, frac)
	if neg {
		s = "-" + s
	}
	return s
}

// ToFloat returns an approximate float64 number of whole coins, for
// display and logging only, never for validation arithmetic.
func (a Amount) ToFloat() float64 {
	return float64(a) / BaseUnit
}

// IsNonNegative reports whether the amount is >= 0, the rule every
// output amount must satisfy.
func (a Amount) IsNonNegative() bool { return a >= 0 }

// Add, Sub provide overflow-checked arithmetic; the ledger must never
// silently wrap on amounts.
func Add(a, b Amount) (Amount, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "amount addition overflow")
	}
	return sum, nil
}

func Sub(a, b Amount) (Amount, error) {
	diff := a - b
	if (b < 0 && diff < a) || (b > 0 && diff > a) {
		return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "amount subtraction overflow")
	}
	return diff, nil
}

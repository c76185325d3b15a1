// Package money implements exact currency arithmetic over integer minor units.
package money

import (
	"math"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// MinorUnits is the number of minor units (agorot) in one major unit.
const MinorUnits = 100

var (
	// ErrInvalidAmount is returned for non-numeric, negative or over-precise amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrOverflow is returned when a result does not fit into int64 minor units.
	ErrOverflow = errors.New("amount overflow")
)

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// Money is an amount of currency stored as integer minor units.
//
// The zero value is zero. Money is a value type and safe to copy.
type Money struct {
	minor int64
}

// Zero is the zero amount.
var Zero = Money{}

// FromMinor returns an amount of n minor units.
func FromMinor(n int64) Money {
	return Money{minor: n}
}

// FromMajor returns an amount of n major units.
func FromMajor(n int64) Money {
	return Money{minor: n * MinorUnits}
}

// Parse parses a decimal string such as "65", "65.5" or "65.50".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, errors.Wrapf(ErrInvalidAmount, "parse %q", s)
	}
	return FromDecimal(d)
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromDecimal converts a decimal major-unit value into Money.
//
// Negative values and values with more than two fractional digits are
// rejected rather than rounded.
func FromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Zero, errors.Wrapf(ErrInvalidAmount, "negative amount %s", d)
	}
	scaled := d.Mul(hundred)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Zero, errors.Wrapf(ErrInvalidAmount, "more than two fractional digits in %s", d)
	}
	return fromScaled(scaled)
}

func fromScaled(d decimal.Decimal) (Money, error) {
	if d.GreaterThan(maxMinor) || d.LessThan(minMinor) {
		return Zero, ErrOverflow
	}
	return Money{minor: d.IntPart()}, nil
}

// Minor returns the amount in minor units.
func (m Money) Minor() int64 { return m.minor }

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.minor, -2)
}

func (m Money) IsZero() bool     { return m.minor == 0 }
func (m Money) IsNegative() bool { return m.minor < 0 }

// Equal reports whether both amounts are the same.
func (m Money) Equal(o Money) bool { return m.minor == o.minor }

// LessThan reports whether m < o.
func (m Money) LessThan(o Money) bool { return m.minor < o.minor }

// Add returns m + o, or ErrOverflow if the sum does not fit.
func (m Money) Add(o Money) (Money, error) {
	r := m.minor + o.minor
	if (o.minor > 0 && r < m.minor) || (o.minor < 0 && r > m.minor) {
		return Zero, ErrOverflow
	}
	return Money{minor: r}, nil
}

// Sub returns m - o, or ErrOverflow if the difference does not fit.
func (m Money) Sub(o Money) (Money, error) {
	r := m.minor - o.minor
	if (o.minor > 0 && r > m.minor) || (o.minor < 0 && r < m.minor) {
		return Zero, ErrOverflow
	}
	return Money{minor: r}, nil
}

// Mul returns m multiplied by an integer factor.
func (m Money) Mul(n int64) (Money, error) {
	if n == 0 || m.minor == 0 {
		return Zero, nil
	}
	r := m.minor * n
	if r/n != m.minor {
		return Zero, ErrOverflow
	}
	return Money{minor: r}, nil
}

// MulFrac returns m * num / den rounded half-up to the nearest minor unit.
func (m Money) MulFrac(num, den int64) (Money, error) {
	if den == 0 {
		return Zero, errors.New("zero denominator")
	}
	d := decimal.NewFromInt(m.minor).
		Mul(decimal.NewFromInt(num)).
		Div(decimal.NewFromInt(den))
	return fromScaled(roundHalfUp(d))
}

// Percent returns pct percent of m rounded half-up to the nearest minor unit.
func (m Money) Percent(pct decimal.Decimal) (Money, error) {
	d := decimal.NewFromInt(m.minor).Mul(pct).Div(hundred)
	return fromScaled(roundHalfUp(d))
}

// roundHalfUp rounds to an integer, halves away from zero.
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a.minor <= b.minor {
		return a
	}
	return b
}

// Sum adds all amounts.
func Sum(ms ...Money) (Money, error) {
	var total Money
	for _, m := range ms {
		var err error
		if total, err = total.Add(m); err != nil {
			return Zero, err
		}
	}
	return total, nil
}

// String formats the amount with exactly two fractional digits, e.g. "71.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON accepts a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

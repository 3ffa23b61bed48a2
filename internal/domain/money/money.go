// Package money implements integer minor-unit amounts.
//
// All order arithmetic is performed on Minor values. Decimal conversion is
// only used for percentage rounding and for rendering major units.
package money

import (
	"math"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Minor is an amount expressed in minor currency units (e.g. cents).
type Minor int64

// Zero is the zero amount.
const Zero Minor = 0

// ErrOverflow is returned when a result does not fit in a Minor.
var ErrOverflow = errors.New("amount overflows")

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// Times returns m multiplied by quantity q.
func (m Minor) Times(q int) (Minor, error) {
	return exact(decimal.NewFromInt(int64(m)).Mul(decimal.NewFromInt(int64(q))))
}

// Add returns m + n.
func (m Minor) Add(n Minor) (Minor, error) {
	return exact(decimal.NewFromInt(int64(m)).Add(decimal.NewFromInt(int64(n))))
}

func exact(d decimal.Decimal) (Minor, error) {
	if d.GreaterThan(maxMinor) || d.LessThan(minMinor) {
		return 0, errors.Wrapf(ErrOverflow, "%s minor units", d.String())
	}
	return Minor(d.IntPart()), nil
}

// ClampZero returns max(0, m).
func (m Minor) ClampZero() Minor {
	if m < 0 {
		return 0
	}
	return m
}

// Decimal returns m in major units (two decimal places).
func (m Minor) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String renders m in major units, e.g. 2848 -> "28.48".
func (m Minor) String() string {
	return m.Decimal().StringFixed(2)
}

// Sum adds up the given amounts.
func Sum(amounts ...Minor) (Minor, error) {
	var total Minor
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// PercentOf returns floor(base * percent / 100).
func PercentOf(base Minor, percent int64) Minor {
	v := decimal.NewFromInt(int64(base)).
		Mul(decimal.NewFromInt(percent)).
		Div(hundred).
		Floor()
	return Minor(v.IntPart())
}

// FromDecimal converts a major-unit decimal to minor units, rounding half
// away from zero to the nearest cent.
func FromDecimal(d decimal.Decimal) Minor {
	return Minor(d.Mul(hundred).Round(0).IntPart())
}

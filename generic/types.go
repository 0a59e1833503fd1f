/*
Package generic provides domain-agnostic building blocks for the leave engine.

PURPOSE:
  Quantities, calendar types and storage error sentinels that the timeoff
  domain and every store implementation share. Nothing in this package knows
  what a leave request is.

KEY CONCEPTS IN THIS FILE (types.go):
  - Day quantities: decimal.Decimal, never float64
  - HoursPerDay: the standard working day used to convert hours to days

DESIGN PRINCIPLES:
  1. Precision: 1 hour is exactly 0.125 days, not 0.12499999
  2. Text round-trips: quantities are stored and transported as strings

SEE ALSO:
  - time.go: Date, TimeOfDay, Clock
  - errors.go: Storage sentinels
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// HoursPerDay is the length of a standard working day.
const HoursPerDay = 8

var hoursPerDay = decimal.NewFromInt(HoursPerDay)

// Days returns n whole days.
func Days(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

// HalfDay is 0.5 days.
var HalfDay = decimal.New(5, -1)

// HoursToDays converts a number of hours to a fraction of a standard day.
func HoursToDays(hours decimal.Decimal) decimal.Decimal {
	return hours.Div(hoursPerDay)
}

// ParseDays parses a decimal day quantity such as "2.5".
func ParseDays(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid day quantity %q: %w", s, err)
	}
	return d, nil
}

// MustParseDecimal parses s and returns zero when it is not a number.
// Only for values the store itself wrote.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

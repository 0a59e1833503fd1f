/*
time.go - Civil dates, times of day and clocks

PURPOSE:
  Leave is booked in whole calendar days and, for hourly leave, in wall-clock
  times within a single day. Neither needs a time zone once the caller's
  local date is known, so these types carry no location.

KEY TYPES:
  Date:      A calendar date (stored as UTC midnight)
  TimeOfDay: Minutes since midnight, e.g. 09:30
  Clock:     Source of "now", injectable for tests

TODAY:
  "Today" is always evaluated in the organization's configured location:

    today := generic.Today(clock, loc)

SEE ALSO:
  - timeoff/duration.go: Uses Date and TimeOfDay to compute total days
*/
package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - A calendar day without time zone
// =============================================================================

const DateLayout = "2006-01-02"

// Date is a calendar date. The zero value is the zero time's date.
type Date struct {
	time.Time
}

// NewDate returns the given calendar date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return Date{Time: t}, nil
}

// MustParseDate is ParseDate for literals in tests and seed data.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }
func (d Date) AddDays(n int) Date     { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) IsZero() bool           { return d.Time.IsZero() }
func (d Date) String() string         { return d.Time.Format(DateLayout) }

// DaysUntil returns the number of days from d to other (negative if other is earlier).
// Computed from Unix seconds since time.Duration overflows past ~292 years.
func (d Date) DaysUntil(other Date) int {
	return int((other.Time.Unix() - d.Time.Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// MarshalText implements encoding.TextMarshaler (JSON and YAML use it).
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// TIME OF DAY
// =============================================================================

// TimeOfDay is a wall-clock time within a day, with minute precision.
type TimeOfDay struct {
	minutes int
}

// NewTimeOfDay returns hour:minute. Out-of-range values are clamped to the day.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	m := hour*60 + minute
	if m < 0 {
		m = 0
	}
	if m > 24*60-1 {
		m = 24*60 - 1
	}
	return TimeOfDay{minutes: m}
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS" (seconds are dropped).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute()), nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time %q (use HH:MM)", s)
}

func (t TimeOfDay) Hour() int { return t.minutes / 60 }
func (t TimeOfDay) Minute() int { return t.minutes % 60 }
func (t TimeOfDay) Before(other TimeOfDay) bool { return t.minutes < other.minutes }
func (t TimeOfDay) Sub(other TimeOfDay) time.Duration {
	return time.Duration(t.minutes-other.minutes) * time.Minute
}
func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute()) }

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// Today returns the current calendar date in loc. A nil loc means UTC.
func Today(clock Clock, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(clock.Now().In(loc))
}

func StartOfYear(year int) Date { return NewDate(year, time.January, 1) }
func EndOfYear(year int) Date   { return NewDate(year, time.December, 31) }

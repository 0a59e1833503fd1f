/*
duration.go - Total days of a leave request

RULES:
  full_day:  (end - start).days + 1, inclusive of both ends
  half_day:  exactly 0.5, whatever the date span
  hours:     (end_time - start_time) / 8, span must be within [0.5h, 8h]

  TotalDays is always computed here. A caller-supplied value is never used.
*/
package timeoff

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

const (
	MinHourlySpan = 30 * time.Minute
	MaxHourlySpan = generic.HoursPerDay * time.Hour
)

// Span is the date and time range of a request.
type Span struct {
	StartDate generic.Date
	EndDate   generic.Date
	StartTime *generic.TimeOfDay
	EndTime   *generic.TimeOfDay
	Duration  DurationKind
}

// ValidateSpan checks the date range and, for hourly requests, the time
// range. It does not look at today's date.
func ValidateSpan(s Span) error {
	if err := checkDates(s); err != nil {
		return err
	}
	if s.Duration == DurationHours {
		_, err := hourlySpan(s)
		return err
	}
	return nil
}

func checkDates(s Span) error {
	if !s.Duration.Valid() {
		return invalid(ReasonInvalidDuration, "unknown duration %q", s.Duration)
	}
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return invalid(ReasonInvalidDateRange, "start and end dates are required")
	}
	if s.EndDate.Before(s.StartDate) {
		return invalid(ReasonInvalidDateRange, "end date %s is before start date %s", s.EndDate, s.StartDate)
	}
	return nil
}

func hourlySpan(s Span) (time.Duration, error) {
	if s.StartTime == nil || s.EndTime == nil {
		return 0, invalid(ReasonInvalidTimeRange, "hourly leave needs a start and end time")
	}
	if !s.StartTime.Before(*s.EndTime) {
		return 0, invalid(ReasonInvalidTimeRange, "end time %s must be after start time %s", s.EndTime, s.StartTime)
	}
	span := s.EndTime.Sub(*s.StartTime)
	if span < MinHourlySpan || span > MaxHourlySpan {
		return 0, invalid(ReasonDurationOutOfRange, "hourly leave must be between 0.5 and %d hours, got %s", generic.HoursPerDay, span)
	}
	return span, nil
}

// ComputeTotalDays validates s and returns the number of leave days it covers.
func ComputeTotalDays(s Span) (decimal.Decimal, error) {
	if err := ValidateSpan(s); err != nil {
		return decimal.Zero, err
	}
	switch s.Duration {
	case DurationHalfDay:
		return generic.HalfDay, nil
	case DurationHours:
		span, _ := hourlySpan(s)
		hours := decimal.NewFromInt(int64(span / time.Minute)).Div(decimal.NewFromInt(60))
		return generic.HoursToDays(hours), nil
	default:
		return generic.Days(int64(s.StartDate.DaysUntil(s.EndDate) + 1)), nil
	}
}

package timeoff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/timeoff"
)

func TestComputeTotalDays_FullDay_InclusiveRange(t *testing.T) {
	cases := []struct {
		start, end string
		want       string
	}{
		{"2024-03-01", "2024-03-01", "1"},
		{"2024-03-01", "2024-03-05", "5"},
		{"2024-02-28", "2024-03-01", "3"}, // leap year
		{"2024-12-30", "2025-01-02", "4"},
		{"2026-10-14", "2400-10-14", "136602"}, // longer than time.Duration can hold
	}
	for _, tc := range cases {
		t.Run(tc.start+"_"+tc.end, func(t *testing.T) {
			got, err := timeoff.ComputeTotalDays(timeoff.Span{
				StartDate: date(tc.start),
				EndDate:   date(tc.end),
				Duration:  timeoff.DurationFullDay,
			})
			require.NoError(t, err)
			assert.True(t, days(tc.want).Equal(got), "got %s", got)
			assert.True(t, got.IsInteger())
			assert.True(t, got.IsPositive())
		})
	}
}

func TestComputeTotalDays_HalfDay_IgnoresSpan(t *testing.T) {
	// GIVEN: Half-day requests spanning one and several days
	// THEN: Both are exactly 0.5

	for _, end := range []string{"2024-03-01", "2024-03-09"} {
		got, err := timeoff.ComputeTotalDays(timeoff.Span{
			StartDate: date("2024-03-01"),
			EndDate:   date(end),
			Duration:  timeoff.DurationHalfDay,
		})
		require.NoError(t, err)
		assert.True(t, days("0.5").Equal(got), "got %s", got)
	}
}

func TestComputeTotalDays_Hours(t *testing.T) {
	cases := []struct {
		name     string
		from, to [2]int
		want     string
	}{
		{name: "one hour", from: [2]int{9, 0}, to: [2]int{10, 0}, want: "0.125"},
		{name: "half hour", from: [2]int{9, 0}, to: [2]int{9, 30}, want: "0.0625"},
		{name: "ninety minutes", from: [2]int{13, 0}, to: [2]int{14, 30}, want: "0.1875"},
		{name: "full working day", from: [2]int{9, 0}, to: [2]int{17, 0}, want: "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := timeoff.ComputeTotalDays(timeoff.Span{
				StartDate: date("2024-03-01"),
				EndDate:   date("2024-03-01"),
				StartTime: tod(tc.from[0], tc.from[1]),
				EndTime:   tod(tc.to[0], tc.to[1]),
				Duration:  timeoff.DurationHours,
			})
			require.NoError(t, err)
			assert.True(t, days(tc.want).Equal(got), "got %s", got)
		})
	}
}

func TestValidateSpan_Failures(t *testing.T) {
	base := timeoff.Span{StartDate: date("2024-03-01"), EndDate: date("2024-03-01"), Duration: timeoff.DurationHours}

	cases := []struct {
		name   string
		mutate func(*timeoff.Span)
		want   timeoff.Reason
	}{
		{"end before start", func(s *timeoff.Span) {
			s.Duration = timeoff.DurationFullDay
			s.EndDate = date("2024-02-28")
		}, timeoff.ReasonInvalidDateRange},
		{"unknown duration", func(s *timeoff.Span) { s.Duration = "weekly" }, timeoff.ReasonInvalidDuration},
		{"missing times", func(s *timeoff.Span) {}, timeoff.ReasonInvalidTimeRange},
		{"end time before start time", func(s *timeoff.Span) {
			s.StartTime, s.EndTime = tod(10, 0), tod(9, 0)
		}, timeoff.ReasonInvalidTimeRange},
		{"equal times", func(s *timeoff.Span) {
			s.StartTime, s.EndTime = tod(10, 0), tod(10, 0)
		}, timeoff.ReasonInvalidTimeRange},
		{"under half an hour", func(s *timeoff.Span) {
			s.StartTime, s.EndTime = tod(10, 0), tod(10, 20)
		}, timeoff.ReasonDurationOutOfRange},
		{"over eight hours", func(s *timeoff.Span) {
			s.StartTime, s.EndTime = tod(8, 0), tod(16, 30)
		}, timeoff.ReasonDurationOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			tc.mutate(&s)
			requireReason(t, timeoff.ValidateSpan(s), tc.want)
		})
	}
}

func TestDurationText(t *testing.T) {
	assert.Equal(t, "1 day", timeoff.LeaveRequest{Duration: timeoff.DurationFullDay, TotalDays: days("1")}.DurationText())
	assert.Equal(t, "5 days", timeoff.LeaveRequest{Duration: timeoff.DurationFullDay, TotalDays: days("5")}.DurationText())
	assert.Equal(t, "Half day", timeoff.LeaveRequest{Duration: timeoff.DurationHalfDay, TotalDays: days("0.5")}.DurationText())
	assert.Equal(t, "1.5 hours", timeoff.LeaveRequest{Duration: timeoff.DurationHours, TotalDays: days("0.1875")}.DurationText())
}

package util

import (
	"time"

	"turtle/internal/domain"
)

// AddMonths moves t by n calendar months, clamping the day to the last day of
// the target month (Jan 31 + 1 month = Feb 28 or 29). The result is a UTC
// date.
func AddMonths(t time.Time, n int) time.Time {
	t = domain.Day(t)
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// MonthWindow is one walk-forward step: a training month followed by the test
// month it parameterizes. All bounds are inclusive dates.
type MonthWindow struct {
	TrainStart time.Time
	TrainEnd   time.Time
	TestStart  time.Time
	TestEnd    time.Time
}

// MonthWindows splits [start, end] into monthly walk-forward steps. The first
// month after start is training only, so the first test month begins one
// month after start. Steps are generated while the month following the test
// month starts on or before end; the last test window is stretched to end.
func MonthWindows(start, end time.Time) []MonthWindow {
	start, end = domain.Day(start), domain.Day(end)

	var out []MonthWindow
	for k := 1; ; k++ {
		testStart := AddMonths(start, k)
		next := AddMonths(start, k+1)
		if next.After(end) {
			break
		}
		out = append(out, MonthWindow{
			TrainStart: AddMonths(start, k-1),
			TrainEnd:   testStart.AddDate(0, 0, -1),
			TestStart:  testStart,
			TestEnd:    next.AddDate(0, 0, -1),
		})
	}
	if n := len(out); n > 0 {
		out[n-1].TestEnd = end
	}
	return out
}

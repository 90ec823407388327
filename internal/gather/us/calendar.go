package us

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // ET session dates without a system zoneinfo

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// calendarClient is the part of the Alpaca trading client used here.
type calendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// NewCalendarClient returns an Alpaca trading client for calendar lookups.
func NewCalendarClient(apiKey, apiSecret, baseURL string) *alpaca.Client {
	return alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
}

// LatestFinishedTradingDay returns the most recent trading day whose session
// has ended (after 20:05 ET, so extended-hours bars have settled), using the
// Alpaca trading calendar.
func LatestFinishedTradingDay(client calendarClient, now time.Time) (time.Time, error) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}
	now = now.In(et)

	days, err := client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}
	return latestFinished(days, now)
}

// latestFinished picks the last calendar day that is over at now (ET).
func latestFinished(days []alpaca.CalendarDay, now time.Time) (time.Time, error) {
	if len(days) == 0 {
		return time.Time{}, errors.New("no trading days returned from calendar")
	}

	today := now.Format(time.DateOnly)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, now.Location())

	for i := len(days) - 1; i >= 0; i-- {
		d, err := time.Parse(time.DateOnly, days[i].Date)
		if err != nil {
			continue
		}
		if days[i].Date == today {
			if now.After(cutoff) {
				return d, nil
			}
			continue
		}
		if days[i].Date < today {
			return d, nil
		}
	}
	return time.Time{}, errors.New("could not determine latest finished trading day")
}

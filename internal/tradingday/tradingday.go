package tradingday

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/scmhub/calendar"
)

// sessionClose is the NYSE closing hour in exchange time.
const sessionClose = 16

// Calendar answers which NYSE sessions have completed.
type Calendar struct {
	cal      *calendar.Calendar
	fallback bool
	loc      *time.Location
}

// NYSE loads the xnys calendar, falling back to a Monday-Friday calendar in New York time.
func NYSE(logger zerolog.Logger) *Calendar {
	if cal := calendar.GetCalendar("xnys"); cal != nil {
		return &Calendar{cal: cal, loc: cal.Loc}
	}
	logger.Warn().Str("component", "tradingday").Msg("xnys calendar unavailable; using weekday fallback")
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return Weekdays(loc)
}

// Weekdays treats every Monday-Friday as a session closing at 16:00 in loc.
func Weekdays(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{fallback: true, loc: loc}
}

// Location is the exchange time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// IsTradingDay reports whether the exchange-local date of t is a session.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)
	if c.fallback {
		wd := local.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	noon := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, c.loc)
	return c.cal.IsBusinessDay(noon)
}

// LastSession returns the date (UTC midnight) of the latest session closed at now.
func (c *Calendar) LastSession(now time.Time) time.Time {
	local := now.In(c.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, c.loc)
	if local.Hour() < sessionClose {
		day = day.AddDate(0, 0, -1)
	}
	for i := 0; i < 14 && !c.IsTradingDay(day); i++ {
		day = day.AddDate(0, 0, -1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// Covered reports whether a store whose newest row is last already holds the session closed at now.
func (c *Calendar) Covered(last, now time.Time) bool {
	if last.IsZero() {
		return false
	}
	lastDay := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
	return !lastDay.Before(c.LastSession(now))
}

package macro

import (
	"sort"
	"time"

	"github.com/guregu/null/v6"

	"sector-dashboard/internal/timeseries"
)

// minYoYLag is how far back the year-ago observation must lie.
const minYoYLag = 30 * 7 * 24 * time.Hour

// YoY converts a series to year-over-year percent change. The baseline is the
// observation nearest to one year earlier (ties go to the later one) and must lie
// more than 30 weeks before the current date; otherwise the value is null.
func YoY(s timeseries.Series) timeseries.Series {
	sorted := s.Sorted()
	out := make(timeseries.Series, len(sorted))
	for i, p := range sorted {
		out[i] = timeseries.Point{Date: p.Date}
		if !p.Value.Valid {
			continue
		}

		j := nearest(sorted, p.Date.AddDate(-1, 0, 0))
		if j < 0 {
			continue
		}
		base := sorted[j]
		if !base.Date.Before(p.Date.Add(-minYoYLag)) || !base.Value.Valid {
			continue
		}
		out[i].Value = timeseries.Finite((p.Value.Float64 - base.Value.Float64) / base.Value.Float64 * 100)
	}
	return out
}

// nearest returns the index of the observation closest to target.
func nearest(s timeseries.Series, target time.Time) int {
	if len(s) == 0 {
		return -1
	}
	k := sort.Search(len(s), func(i int) bool { return !s[i].Date.Before(target) })
	switch {
	case k == 0:
		return 0
	case k == len(s):
		return len(s) - 1
	}
	before := target.Sub(s[k-1].Date)
	after := s[k].Date.Sub(target)
	if after <= before {
		return k
	}
	return k - 1
}

// Diff returns consecutive differences multiplied by scale; the first value is null.
func Diff(s timeseries.Series, scale float64) timeseries.Series {
	sorted := s.Sorted()
	out := make(timeseries.Series, len(sorted))
	for i, p := range sorted {
		out[i] = timeseries.Point{Date: p.Date}
		if i == 0 || !p.Value.Valid || !sorted[i-1].Value.Valid {
			continue
		}
		out[i].Value = timeseries.Finite((p.Value.Float64 - sorted[i-1].Value.Float64) * scale)
	}
	return out
}

// ApplySpreads adds the group's spread columns to t. A spread is null wherever an operand is.
func ApplySpreads(g Group, t *timeseries.Table) *timeseries.Table {
	out := t.Clone()
	for _, ind := range g.Indicators {
		if ind.Spread == nil {
			continue
		}
		long, okLong := t.Column(ind.Spread.Long)
		short, okShort := t.Column(ind.Spread.Short)
		if !okLong || !okShort {
			_ = out.Set(ind.Name, make([]null.Float, t.Len()))
			continue
		}
		_ = out.Set(ind.Name, timeseries.Subtract(long, short))
	}
	return out
}

// StartYear is the first calendar year fetched for a horizon of years. One extra
// year of history is kept ahead of the visible window.
func StartYear(now time.Time, years int) int {
	return now.Year() - years - 1
}

// FetchStart is January 1 of the start year.
func FetchStart(now time.Time, years int) time.Time {
	return time.Date(StartYear(now, years), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// WindowStart is December 31 of the start year.
func WindowStart(now time.Time, years int) time.Time {
	return time.Date(StartYear(now, years), time.December, 31, 0, 0, 0, 0, time.UTC)
}

// Window trims t to rows on or after WindowStart.
func Window(t *timeseries.Table, now time.Time, years int) *timeseries.Table {
	return t.Since(WindowStart(now, years))
}

package timeseries

import (
	"time"

	"github.com/guregu/null/v6"
)

// RollingMean averages the valid values in each trailing window.
// A window with at least one valid value yields a value.
func RollingMean(vals []null.Float, window int) []null.Float {
	out := make([]null.Float, len(vals))
	if window <= 1 {
		copy(out, vals)
		return out
	}

	var sum float64
	var count int
	for i, v := range vals {
		if v.Valid {
			sum += v.Float64
			count++
		}
		if j := i - window; j >= 0 && vals[j].Valid {
			sum -= vals[j].Float64
			count--
		}
		if count > 0 {
			out[i] = null.FloatFrom(sum / float64(count))
		}
	}
	return out
}

// Interpolate fills gaps linearly in elapsed time between valid neighbours.
// Leading gaps stay null; trailing gaps carry the last valid value.
func Interpolate(index []time.Time, vals []null.Float) []null.Float {
	out := make([]null.Float, len(vals))
	copy(out, vals)

	prev := -1
	for i := range out {
		if !out[i].Valid {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			x0, y0 := index[prev], out[prev].Float64
			span := index[i].Sub(x0).Hours()
			dy := out[i].Float64 - y0
			for j := prev + 1; j < i; j++ {
				frac := index[j].Sub(x0).Hours() / span
				out[j] = null.FloatFrom(y0 + dy*frac)
			}
		}
		prev = i
	}

	if prev >= 0 {
		for j := prev + 1; j < len(out); j++ {
			out[j] = null.FloatFrom(out[prev].Float64)
		}
	}
	return out
}

// Rolling applies RollingMean to every column.
func (t *Table) Rolling(window int) *Table {
	out := New(t.index)
	for _, name := range t.columns {
		_ = out.Set(name, RollingMean(t.values[name], window))
	}
	return out
}

// Interpolate applies time-aware interpolation to every column over the shared index.
func (t *Table) Interpolate() *Table {
	out := New(t.index)
	for _, name := range t.columns {
		_ = out.Set(name, Interpolate(t.index, t.values[name]))
	}
	return out
}

// Subtract returns a-b per row; rows where either side is null stay null.
func Subtract(a, b []null.Float) []null.Float {
	out := make([]null.Float, len(a))
	for i := range a {
		if i < len(b) && a[i].Valid && b[i].Valid {
			out[i] = Finite(a[i].Float64 - b[i].Float64)
		}
	}
	return out
}

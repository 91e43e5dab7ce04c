package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/guregu/null/v6"

	"sector-dashboard/internal/timeseries"
)

const (
	VolatilityWindow = 21
	RSIWindow        = 14
	SharpeWindow     = 21
	TradingDays      = 252
	// RiskFreeRate is subtracted from the mean daily return as-is.
	RiskFreeRate = 0.01
)

// Bar is one trading day of a ticker's history.
type Bar struct {
	Date     time.Time
	Close    float64
	Dividend float64
}

// Row is a bar with its derived metrics. Metrics are null until enough history exists.
type Row struct {
	Bar
	Volatility null.Float
	DivYield   null.Float
	RSI        null.Float
	Sharpe     null.Float
	YTDPct     null.Float
}

// SortBars orders bars by date and collapses duplicate dates to the last bar.
func SortBars(bars []Bar) []Bar {
	out := make([]Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	dedup := out[:0]
	for _, b := range out {
		b.Date = timeseries.Day(b.Date)
		if n := len(dedup); n > 0 && dedup[n-1].Date.Equal(b.Date) {
			dedup[n-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	return dedup
}

// Derive computes every metric for an ascending bar history.
func Derive(bars []Bar) []Row {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	vol := Volatility(closes, VolatilityWindow)
	yield := DividendYield(bars)
	rsi := RSI(closes, RSIWindow)
	sharpe := Sharpe(closes, SharpeWindow, RiskFreeRate)
	ytd := YTD(bars)

	rows := make([]Row, len(bars))
	for i, b := range bars {
		rows[i] = Row{
			Bar:        b,
			Volatility: vol[i],
			DivYield:   yield[i],
			RSI:        rsi[i],
			Sharpe:     sharpe[i],
			YTDPct:     ytd[i],
		}
	}
	return rows
}

// Returns gives simple daily returns aligned to closes; index 0 is NaN.
func Returns(closes []float64) []float64 {
	out := make([]float64, len(closes))
	if len(out) == 0 {
		return out
	}
	out[0] = math.NaN()
	for i := 1; i < len(closes); i++ {
		out[i] = closes[i]/closes[i-1] - 1
	}
	return out
}

// Volatility is the annualized rolling sample deviation of daily returns, in percent.
// Row i needs window returns ending at i, so rows before index window are null.
func Volatility(closes []float64, window int) []null.Float {
	returns := Returns(closes)
	out := make([]null.Float, len(closes))
	for i := window; i < len(closes); i++ {
		_, std, ok := meanStd(returns[i-window+1:i+1], 1)
		if ok {
			out[i] = timeseries.Finite(std * math.Sqrt(TradingDays) * 100)
		}
	}
	return out
}

// DividendYield is dividend over close for the same day.
func DividendYield(bars []Bar) []null.Float {
	out := make([]null.Float, len(bars))
	for i, b := range bars {
		out[i] = timeseries.Finite(b.Dividend / b.Close)
	}
	return out
}

// RSI uses simple rolling means of gains and losses. The first delta counts as zero,
// so the first value lands at index window-1.
func RSI(closes []float64, window int) []null.Float {
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		switch {
		case delta > 0:
			gains[i] = delta
		case delta < 0:
			losses[i] = -delta
		}
	}

	out := make([]null.Float, len(closes))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(closes); i++ {
		avgGain := mean(gains[i-window+1 : i+1])
		avgLoss := mean(losses[i-window+1 : i+1])
		if math.IsNaN(avgGain) || math.IsNaN(avgLoss) {
			continue
		}
		if avgLoss == 0 {
			out[i] = null.FloatFrom(100)
			continue
		}
		out[i] = timeseries.Finite(100 - 100/(1+avgGain/avgLoss))
	}
	return out
}

// Sharpe is (rolling mean return - rf) / rolling sample deviation over window returns.
func Sharpe(closes []float64, window int, rf float64) []null.Float {
	returns := Returns(closes)
	out := make([]null.Float, len(closes))
	for i := window; i < len(closes); i++ {
		m, std, ok := meanStd(returns[i-window+1:i+1], 1)
		if ok {
			out[i] = timeseries.Finite((m - rf) / std)
		}
	}
	return out
}

// YTD is the percent change from the previous calendar year's last close.
// Rows whose previous year is absent from the history are null.
func YTD(bars []Bar) []null.Float {
	lastClose := make(map[int]float64)
	for _, b := range bars {
		lastClose[b.Date.Year()] = b.Close
	}

	out := make([]null.Float, len(bars))
	for i, b := range bars {
		baseline, ok := lastClose[b.Date.Year()-1]
		if !ok {
			continue
		}
		out[i] = timeseries.Finite((b.Close/baseline - 1) * 100)
	}
	return out
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// meanStd returns the mean and deviation with the given delta degrees of freedom.
// ok is false when any value is non-finite or too few values exist.
func meanStd(vals []float64, ddof int) (float64, float64, bool) {
	n := len(vals)
	if n-ddof <= 0 {
		return 0, 0, false
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, false
		}
	}
	m := mean(vals)
	var ss float64
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return m, math.Sqrt(ss / float64(n-ddof)), true
}

package metrics

import (
	"fmt"
	"math"
	"time"

	"github.com/guregu/null/v6"

	"sector-dashboard/internal/timeseries"
)

// Columns of a cached risk/return table, indexed by quarter start.
const (
	ColumnAnnualReturn = "annualized_return"
	ColumnAnnualRisk   = "annualized_risk"
	ColumnQuarterDays  = "days"
)

// QuarterStat is the annualized return and risk of one calendar quarter.
type QuarterStat struct {
	Quarter          string     `json:"quarter"`
	Start            time.Time  `json:"start"`
	Days             int        `json:"days"`
	AnnualizedReturn float64    `json:"annualized_return"`
	AnnualizedRisk   null.Float `json:"annualized_risk"`
}

// QuarterStart returns the first day of t's calendar quarter.
func QuarterStart(t time.Time) time.Time {
	q := (int(t.Month()) - 1) / 3
	return time.Date(t.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
}

// QuarterLabel formats a quarter as "Q1 2020".
func QuarterLabel(t time.Time) string {
	return fmt.Sprintf("Q%d %d", (int(t.Month())-1)/3+1, t.Year())
}

// QuarterlyRiskReturn works on total value close+dividend. Each quarter compounds its daily
// log returns, annualizes over the quarter's trading days, and scales the population
// deviation of returns by sqrt(252). Quarters with no bars do not appear.
func QuarterlyRiskReturn(bars []Bar) []QuarterStat {
	if len(bars) == 0 {
		return nil
	}

	logReturns := make([]float64, len(bars))
	logReturns[0] = math.NaN()
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close + bars[i-1].Dividend
		cur := bars[i].Close + bars[i].Dividend
		logReturns[i] = math.Log(cur / prev)
	}

	var stats []QuarterStat
	start := 0
	for i := 1; i <= len(bars); i++ {
		if i < len(bars) && QuarterStart(bars[i].Date).Equal(QuarterStart(bars[start].Date)) {
			continue
		}
		stats = append(stats, quarterStat(bars[start].Date, logReturns[start:i]))
		start = i
	}
	return stats
}

func quarterStat(day time.Time, returns []float64) QuarterStat {
	finite := make([]float64, 0, len(returns))
	var sum float64
	for _, r := range returns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		finite = append(finite, r)
		sum += r
	}

	days := len(returns)
	cum := math.Exp(sum) - 1
	annual := math.Pow(1+cum, float64(TradingDays)/float64(days)) - 1

	stat := QuarterStat{
		Quarter:          QuarterLabel(day),
		Start:            QuarterStart(day),
		Days:             days,
		AnnualizedReturn: annual,
	}
	if _, std, ok := meanStd(finite, 0); ok {
		stat.AnnualizedRisk = timeseries.Finite(std * math.Sqrt(TradingDays))
	}
	return stat
}

// RiskReturnTable encodes quarter stats as a table for caching.
func RiskReturnTable(stats []QuarterStat) *timeseries.Table {
	index := make([]time.Time, len(stats))
	ret := make([]null.Float, len(stats))
	risk := make([]null.Float, len(stats))
	days := make([]null.Float, len(stats))
	for i, s := range stats {
		index[i] = s.Start
		ret[i] = timeseries.Finite(s.AnnualizedReturn)
		risk[i] = s.AnnualizedRisk
		days[i] = null.FloatFrom(float64(s.Days))
	}
	t := timeseries.New(index)
	_ = t.Set(ColumnAnnualReturn, ret)
	_ = t.Set(ColumnAnnualRisk, risk)
	_ = t.Set(ColumnQuarterDays, days)
	return t
}

// RiskReturnFromTable decodes a table written by RiskReturnTable.
func RiskReturnFromTable(t *timeseries.Table) ([]QuarterStat, error) {
	ret, ok1 := t.Column(ColumnAnnualReturn)
	risk, ok2 := t.Column(ColumnAnnualRisk)
	days, ok3 := t.Column(ColumnQuarterDays)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("risk/return table missing columns, have %v", t.Columns())
	}

	stats := make([]QuarterStat, t.Len())
	for i, start := range t.Index() {
		stats[i] = QuarterStat{
			Quarter:          QuarterLabel(start),
			Start:            start,
			Days:             int(days[i].ValueOrZero()),
			AnnualizedReturn: ret[i].ValueOrZero(),
			AnnualizedRisk:   risk[i],
		}
	}
	return stats, nil
}

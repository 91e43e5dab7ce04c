package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"sector-dashboard/internal/metrics"
)

const summaryModules = "price,summaryDetail,defaultKeyStatistics,financialData,assetProfile"

// MarketOptions parameterise the Yahoo Finance fetcher.
type MarketOptions struct {
	ChartURL   string
	SummaryURL string
	Timeout    time.Duration
	UserAgent  string
}

// Market fetches price history and fundamentals from Yahoo Finance.
type Market struct {
	opts   MarketOptions
	logger zerolog.Logger
	client *resty.Client
}

// NewMarket constructs a market fetcher.
func NewMarket(opts MarketOptions, logger zerolog.Logger) *Market {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	opts.ChartURL = strings.TrimRight(opts.ChartURL, "/")
	if opts.ChartURL == "" {
		opts.ChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	}
	opts.SummaryURL = strings.TrimRight(opts.SummaryURL, "/")
	if opts.SummaryURL == "" {
		opts.SummaryURL = "https://query2.finance.yahoo.com/v10/finance/quoteSummary"
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "sectordash/1.0"
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", ua)
	client.SetHeader("Accept", "application/json")

	return &Market{
		opts:   opts,
		logger: logger.With().Str("component", "market_fetcher").Logger(),
		client: client,
	}
}

// History returns daily bars in [from, to], ascending, with dividends on their ex-dates.
func (m *Market) History(ctx context.Context, symbol string, from, to time.Time) ([]metrics.Bar, error) {
	if to.IsZero() {
		to = time.Now()
	}
	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"period1":  strconv.FormatInt(from.Unix(), 10),
			"period2":  strconv.FormatInt(to.Add(24*time.Hour).Unix(), 10),
			"interval": "1d",
			"events":   "div",
		}).
		Get(m.opts.ChartURL + "/" + url.PathEscape(symbol))
	if err != nil {
		return nil, &FetchError{Source: SourceYahoo, ID: symbol, Err: err}
	}

	var payload chartResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		if resp.IsError() {
			return nil, &FetchError{Source: SourceYahoo, ID: symbol, Err: parseHTTPError(resp.StatusCode(), resp.Body())}
		}
		return nil, &FetchError{Source: SourceYahoo, ID: symbol, Err: fmt.Errorf("decode chart: %w", err)}
	}
	if e := payload.Chart.Error; e != nil {
		return nil, &FetchError{Source: SourceYahoo, ID: symbol, Err: fmt.Errorf("chart api error (%d): %s", resp.StatusCode(), e.message())}
	}
	if resp.IsError() {
		return nil, &FetchError{Source: SourceYahoo, ID: symbol, Err: parseHTTPError(resp.StatusCode(), resp.Body())}
	}
	if len(payload.Chart.Result) == 0 {
		return nil, &FetchError{Source: SourceYahoo, ID: symbol, Err: errors.New("chart returned no result")}
	}

	bars := payload.Chart.Result[0].bars(from, to)
	m.logger.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("history fetched")
	return bars, nil
}

// Summary returns the fundamentals used by the watchlist.
func (m *Market) Summary(ctx context.Context, symbol string) (Summary, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParam("modules", summaryModules).
		Get(m.opts.SummaryURL + "/" + url.PathEscape(symbol))
	if err != nil {
		return Summary{}, &FetchError{Source: SourceYahoo, ID: symbol, Err: err}
	}

	var payload summaryResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		if resp.IsError() {
			return Summary{}, &FetchError{Source: SourceYahoo, ID: symbol, Err: parseHTTPError(resp.StatusCode(), resp.Body())}
		}
		return Summary{}, &FetchError{Source: SourceYahoo, ID: symbol, Err: fmt.Errorf("decode summary: %w", err)}
	}
	if e := payload.QuoteSummary.Error; e != nil {
		return Summary{}, &FetchError{Source: SourceYahoo, ID: symbol, Err: fmt.Errorf("summary api error (%d): %s", resp.StatusCode(), e.message())}
	}
	if resp.IsError() {
		return Summary{}, &FetchError{Source: SourceYahoo, ID: symbol, Err: parseHTTPError(resp.StatusCode(), resp.Body())}
	}
	if len(payload.QuoteSummary.Result) == 0 {
		return Summary{}, &FetchError{Source: SourceYahoo, ID: symbol, Err: errors.New("summary returned no result")}
	}

	modules := payload.QuoteSummary.Result[0]
	pick := func(field string, moduleOrder ...string) Value {
		for _, name := range moduleOrder {
			if raw, ok := modules[name][field]; ok {
				if v := (Value{raw: raw}); !v.absent() {
					return v
				}
			}
		}
		return Value{}
	}

	return Summary{
		Symbol:               symbol,
		ShortName:            pick("shortName", "price"),
		Sector:               pick("sector", "assetProfile"),
		MarketCap:            pick("marketCap", "price", "summaryDetail"),
		Open:                 pick("open", "summaryDetail", "price"),
		TrailingPE:           pick("trailingPE", "summaryDetail", "defaultKeyStatistics"),
		TrailingEPS:          pick("trailingEps", "defaultKeyStatistics"),
		EarningsGrowth:       pick("earningsGrowth", "financialData", "defaultKeyStatistics"),
		TwoHundredDayAverage: pick("twoHundredDayAverage", "summaryDetail"),
		PEGRatio:             pick("pegRatio", "defaultKeyStatistics"),
		Beta:                 pick("beta", "summaryDetail", "defaultKeyStatistics"),
	}, nil
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *apiError) message() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Code
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		GMTOffset int64 `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp []int64 `json:"timestamp"`
	Events    struct {
		Dividends map[string]struct {
			Amount float64 `json:"amount"`
			Date   int64   `json:"date"`
		} `json:"dividends"`
	} `json:"events"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// bars converts the chart arrays to exchange-local trading dates. Null closes are skipped.
func (r chartResult) bars(from, to time.Time) []metrics.Bar {
	offset := time.Duration(r.Meta.GMTOffset) * time.Second
	localDay := func(ts int64) time.Time {
		t := time.Unix(ts, 0).UTC().Add(offset)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}

	var closes []*float64
	if len(r.Indicators.AdjClose) > 0 && len(r.Indicators.AdjClose[0].AdjClose) == len(r.Timestamp) {
		closes = r.Indicators.AdjClose[0].AdjClose
	} else if len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}

	dividends := make(map[time.Time]float64, len(r.Events.Dividends))
	for _, d := range r.Events.Dividends {
		dividends[localDay(d.Date)] += d.Amount
	}

	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)

	bars := make([]metrics.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		day := localDay(ts)
		if day.Before(fromDay) || day.After(toDay) {
			continue
		}
		bars = append(bars, metrics.Bar{Date: day, Close: *closes[i], Dividend: dividends[day]})
	}
	return metrics.SortBars(bars)
}

type summaryResponse struct {
	QuoteSummary struct {
		Result []map[string]map[string]json.RawMessage `json:"result"`
		Error  *apiError                               `json:"error"`
	} `json:"quoteSummary"`
}

func parseHTTPError(status int, payload []byte) error {
	body := strings.TrimSpace(string(payload))
	if len(body) > 200 {
		body = body[:200]
	}
	if body != "" {
		return fmt.Errorf("http %d: %s", status, body)
	}
	return fmt.Errorf("http %d", status)
}

var (
	_ PriceFetcher   = (*Market)(nil)
	_ SummaryFetcher = (*Market)(nil)
)

package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger { return zerolog.Nop() }

// 2024-01-02 14:30 UTC, 2024-01-03 14:30 UTC, 2024-01-04 14:30 UTC
const chartBody = `{"chart":{"result":[{
  "meta":{"gmtoffset":-18000},
  "timestamp":[1704205800,1704292200,1704378600],
  "events":{"dividends":{"1704292200":{"amount":0.42,"date":1704292200}}},
  "indicators":{"quote":[{"close":[100.5,null,102.25]}]}
}],"error":null}}`

func TestMarketHistory(t *testing.T) {
	var gotPath, gotEvents string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotEvents = r.URL.Query().Get("events")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	m := NewMarket(MarketOptions{ChartURL: srv.URL, Timeout: time.Second}, noopLogger())
	bars, err := m.History(context.Background(), "^GSPC",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if gotPath != "/^GSPC" || gotEvents != "div" {
		t.Fatalf("unexpected request path=%q events=%q", gotPath, gotEvents)
	}
	if len(bars) != 2 {
		t.Fatalf("null close must be skipped, got %d bars", len(bars))
	}
	if !bars[0].Date.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) || bars[0].Close != 100.5 {
		t.Fatalf("unexpected first bar %+v", bars[0])
	}
	if bars[1].Close != 102.25 || bars[1].Dividend != 0 {
		t.Fatalf("unexpected second bar %+v", bars[1])
	}
}

func TestMarketHistoryAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	m := NewMarket(MarketOptions{ChartURL: srv.URL}, noopLogger())
	_, err := m.History(context.Background(), "XLZZ", time.Now().AddDate(0, -1, 0), time.Now())
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Source != SourceYahoo || fetchErr.ID != "XLZZ" {
		t.Fatalf("expected yahoo fetch error, got %v", err)
	}
	if !strings.Contains(err.Error(), "delisted") {
		t.Fatalf("error should carry the provider description: %v", err)
	}
}

func TestMarketHistoryHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m := NewMarket(MarketOptions{ChartURL: srv.URL}, noopLogger())
	if _, err := m.History(context.Background(), "XLK", time.Now().AddDate(0, -1, 0), time.Now()); err == nil {
		t.Fatal("HTTP 429 must fail")
	}
}

const summaryBody = `{"quoteSummary":{"result":[{
  "price":{"shortName":"Apple Inc.","marketCap":{"raw":3000000000000,"fmt":"3T"}},
  "summaryDetail":{"open":{"raw":189.5},"trailingPE":{"raw":29.1},"beta":"abc","twoHundredDayAverage":{}},
  "defaultKeyStatistics":{"trailingEps":{"raw":6.42},"pegRatio":{"raw":2.1}},
  "financialData":{"earningsGrowth":{"raw":0.11}},
  "assetProfile":{"sector":"Technology"}
}],"error":null}}`

func TestMarketSummary(t *testing.T) {
	var modules string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		modules = r.URL.Query().Get("modules")
		_, _ = w.Write([]byte(summaryBody))
	}))
	defer srv.Close()

	m := NewMarket(MarketOptions{SummaryURL: srv.URL}, noopLogger())
	s, err := m.Summary(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !strings.Contains(modules, "assetProfile") {
		t.Fatalf("modules not requested: %q", modules)
	}

	name, err := s.ShortName.String()
	if err != nil || name.String != "Apple Inc." {
		t.Fatalf("name = %v, %v", name, err)
	}
	sec, _ := s.Sector.String()
	if sec.String != "Technology" {
		t.Fatalf("sector = %v", sec)
	}
	mcap, err := s.MarketCap.Float()
	if err != nil || mcap.Float64 != 3e12 {
		t.Fatalf("market cap = %v, %v", mcap, err)
	}
	if eps, _ := s.TrailingEPS.Float(); eps.Float64 != 6.42 {
		t.Fatalf("eps = %v", eps)
	}
	if avg, err := s.TwoHundredDayAverage.Float(); err != nil || avg.Valid {
		t.Fatalf("empty object must be unavailable, got %v, %v", avg, err)
	}
	if _, err := s.Beta.Float(); err == nil {
		t.Fatal("non-numeric beta must be malformed")
	}
}

func TestValueDecoding(t *testing.T) {
	cases := []struct {
		raw     string
		valid   bool
		want    float64
		wantErr bool
	}{
		{raw: ``},
		{raw: `null`},
		{raw: `{}`},
		{raw: `{"fmt":"1.2"}`},
		{raw: `1.5`, valid: true, want: 1.5},
		{raw: `{"raw":2.5,"fmt":"2.50"}`, valid: true, want: 2.5},
		{raw: `"3.25"`, valid: true, want: 3.25},
		{raw: `"N/A"`},
		{raw: `"Infinity"`},
		{raw: `"abc"`, wantErr: true},
		{raw: `true`, wantErr: true},
	}
	for _, tc := range cases {
		got, err := RawValue(tc.raw).Float()
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: err = %v", tc.raw, err)
		}
		if got.Valid != tc.valid || (tc.valid && got.Float64 != tc.want) {
			t.Fatalf("%s: got %v", tc.raw, got)
		}
	}
}

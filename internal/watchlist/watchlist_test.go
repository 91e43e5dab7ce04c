package watchlist

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"sector-dashboard/internal/fetcher"
	"sector-dashboard/internal/metrics"
)

var now = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	summaries map[string]fetcher.Summary
	history   []metrics.Bar
	failHist  map[string]bool
	delay     time.Duration

	mu        sync.Mutex
	inFlight  int32
	maxFlight int32
}

func (f *fakeSource) Summary(_ context.Context, symbol string) (fetcher.Summary, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	f.mu.Lock()
	if cur > f.maxFlight {
		f.maxFlight = cur
	}
	f.mu.Unlock()
	time.Sleep(f.delay)

	s, ok := f.summaries[symbol]
	if !ok {
		return fetcher.Summary{}, &fetcher.FetchError{Source: fetcher.SourceYahoo, ID: symbol, Err: errors.New("not found")}
	}
	return s, nil
}

func (f *fakeSource) History(_ context.Context, symbol string, _, _ time.Time) ([]metrics.Bar, error) {
	if f.failHist[symbol] {
		return nil, errors.New("history down")
	}
	return f.history, nil
}

func summary(symbol, name, sec, mcap string) fetcher.Summary {
	return fetcher.Summary{
		Symbol:    symbol,
		ShortName: fetcher.RawValue(name),
		Sector:    fetcher.RawValue(sec),
		MarketCap: fetcher.RawValue(mcap),
		Open:      fetcher.RawValue(`{"raw":10.5}`),
		Beta:      fetcher.RawValue(`1.2`),
	}
}

func history() []metrics.Bar {
	return []metrics.Bar{
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 50},
		{Date: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), Close: 80},
		{Date: time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC), Close: 100},
	}
}

func builder(src *fakeSource, workers int) *Builder {
	return NewBuilder(src, workers, zerolog.Nop()).WithClock(func() time.Time { return now })
}

func TestBuildDropsOnRequiredFieldFailure(t *testing.T) {
	badBeta := summary("MSFT", `"Microsoft"`, `"Technology"`, `{"raw":3e12}`)
	badBeta.Beta = fetcher.RawValue(`"not a number"`)
	src := &fakeSource{
		summaries: map[string]fetcher.Summary{
			"AAPL": summary("AAPL", `"Apple"`, `"Technology"`, `{"raw":2.5e12}`),
			"MSFT": badBeta,
			"JPM":  summary("JPM", `"JPMorgan"`, `{"bad":true}`, `{"raw":5e11}`),
			"XOM":  summary("XOM", `"Exxon"`, `"Energy"`, `"huge"`),
			"ZZZ":  summary("ZZZ", `"Mystery"`, `null`, `{"raw":1e9}`),
		},
		history: history(),
	}

	res, err := builder(src, 4).Build(context.Background(), []string{"AAPL", "MSFT", "JPM", "XOM", "ZZZ", "NOPE"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	got := map[string]Entry{}
	for _, e := range res.Entries {
		got[e.Ticker] = e
	}
	if _, ok := got["JPM"]; ok {
		t.Fatal("malformed sector must drop the ticker")
	}
	if _, ok := got["XOM"]; ok {
		t.Fatal("malformed market cap must drop the ticker")
	}
	if len(res.Dropped) != 3 {
		t.Fatalf("expected JPM, XOM and NOPE dropped, got %+v", res.Dropped)
	}

	msft, ok := got["MSFT"]
	if !ok {
		t.Fatal("a beta failure alone must keep the ticker")
	}
	if msft.Beta.Available() || msft.Beta.Err == nil {
		t.Fatalf("beta should be unavailable with a reason, got %+v", msft.Beta)
	}
	if msft.Beta.Text() != NotAvailable {
		t.Fatalf("beta text = %q", msft.Beta.Text())
	}
	if msft.PERatio.Available() || msft.PERatio.Err != nil {
		t.Fatal("absent PE is unavailable without an error")
	}

	if got["ZZZ"].Sector != "Unknown" {
		t.Fatalf("absent sector must normalize to Unknown, got %q", got["ZZZ"].Sector)
	}
	if res.Entries[0].Ticker != "MSFT" {
		t.Fatalf("entries should be ordered by market cap, got %s first", res.Entries[0].Ticker)
	}
}

func TestBuildPctChanges(t *testing.T) {
	src := &fakeSource{
		summaries: map[string]fetcher.Summary{
			"AAPL": summary("AAPL", `"Apple"`, `"Technology"`, `{"raw":1}`),
			"KO":   summary("KO", `"Coca-Cola"`, `"Consumer Defensive"`, `{"raw":1}`),
		},
		history:  history(),
		failHist: map[string]bool{"KO": true},
	}
	res, _ := builder(src, 2).Build(context.Background(), []string{"AAPL", "KO"})
	byTicker := map[string]Entry{}
	for _, e := range res.Entries {
		byTicker[e.Ticker] = e
	}

	aapl := byTicker["AAPL"]
	if aapl.PctChange1M.Float64 != 25 {
		t.Fatalf("1M change = %v, want 25", aapl.PctChange1M)
	}
	if aapl.PctChange6M.Float64 != 100 {
		t.Fatalf("6M change = %v, want 100", aapl.PctChange6M)
	}
	ko := byTicker["KO"]
	if ko.PctChange1M.Available() || ko.PctChange6M.Available() {
		t.Fatal("failed history must leave both changes unavailable")
	}
	if ko.Sector != "Cons. Defensive" {
		t.Fatalf("sector rename not applied: %q", ko.Sector)
	}
}

func TestBuildRespectsWorkerBound(t *testing.T) {
	src := &fakeSource{summaries: map[string]fetcher.Summary{}, delay: 5 * time.Millisecond}
	var tickers []string
	for _, s := range []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L"} {
		src.summaries[s] = summary(s, `"x"`, `"Energy"`, `{"raw":1}`)
		tickers = append(tickers, s)
	}
	if _, err := builder(src, 3).Build(context.Background(), tickers); err != nil {
		t.Fatal(err)
	}
	if src.maxFlight > 3 {
		t.Fatalf("at most 3 concurrent fetches expected, saw %d", src.maxFlight)
	}
}

func entries() []Entry {
	return []Entry{
		{Ticker: "AMZN", Sector: "Cons. Cyclical", MarketCap: Ok(1.5e12)},
		{Ticker: "TSLA", Sector: "Cons. Cyclical", MarketCap: Ok(0.5e12)},
		{Ticker: "NVDA", Sector: "Technology", MarketCap: Ok(1e12)},
		{Ticker: "META", Sector: "Communications", MarketCap: Unavailable(nil)},
		{Ticker: "ZZZ", Sector: "Unknown", MarketCap: Ok(9e12)},
	}
}

func TestFilterSectorSpecialCases(t *testing.T) {
	got, err := FilterSector(entries(), "XLY")
	if err != nil || len(got) != 2 {
		t.Fatalf("XLY should select Cons. Cyclical, got %v %v", got, err)
	}
	got, _ = FilterSector(entries(), "XLC")
	if len(got) != 1 || got[0].Ticker != "META" {
		t.Fatalf("XLC should select Communications, got %v", got)
	}
	all, _ := FilterSector(entries(), "")
	if len(all) != 4 {
		t.Fatalf("default view must exclude Unknown, got %d rows", len(all))
	}
	if _, err := FilterSector(entries(), "QQQ"); !errors.Is(err, ErrUnknownSector) {
		t.Fatalf("expected ErrUnknownSector, got %v", err)
	}
}

func TestWeightings(t *testing.T) {
	w := Weightings(entries())
	if len(w) != 2 {
		t.Fatalf("expected two sectors with caps, got %+v", w)
	}
	if w[0].Sector != "Cons. Cyclical" || !w[0].MarketCap.Equal(decimal.NewFromFloat(2e12)) {
		t.Fatalf("unexpected top weighting %+v", w[0])
	}
}

func TestCSVRoundTripKeepsUnavailable(t *testing.T) {
	in := entries()
	in[0].Beta = Ok(1.25)
	payload, err := MarshalCSV(in)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(payload, []byte("N/A")) {
		t.Fatal("unavailable fields must be written as N/A")
	}
	out, err := UnmarshalCSV(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("rows = %d", len(out))
	}
	if out[0].Beta.Float64 != 1.25 || out[3].MarketCap.Available() || out[0].Name.Valid {
		t.Fatalf("unexpected decode %+v / %+v", out[0], out[3])
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, entries()); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 6 || rows[0][0] != "Ticker" || rows[1][0] != "AMZN" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

package sector

import (
	"strings"
)

const (
	// Benchmark is the display name of the S&P 500 benchmark series.
	Benchmark = "S&P 500"
	// VIX is the provider symbol of the CBOE volatility index overlay.
	VIX = "^VIX"

	benchmarkStoreName = "sp500"
	benchmarkSymbol    = "^GSPC"
	unknownSector      = "Unknown"
)

// ETF pairs a GICS sector with its SPDR sector fund.
type ETF struct {
	Sector string
	Ticker string
}

// ETFs lists the tracked sector funds in display order.
var ETFs = []ETF{
	{Sector: "Materials", Ticker: "XLB"},
	{Sector: "Communication Services", Ticker: "XLC"},
	{Sector: "Energy", Ticker: "XLE"},
	{Sector: "Financials", Ticker: "XLF"},
	{Sector: "Industrials", Ticker: "XLI"},
	{Sector: "Technology", Ticker: "XLK"},
	{Sector: "Consumer Staples", Ticker: "XLP"},
	{Sector: "Real Estate", Ticker: "XLRE"},
	{Sector: "Utilities", Ticker: "XLU"},
	{Sector: "Healthcare", Ticker: "XLV"},
	{Sector: "Consumer Discretionary", Ticker: "XLY"},
}

var defaultHidden = map[string]struct{}{
	"XLC": {},
	"XLP": {},
	"XLV": {},
	"XLY": {},
	"XLB": {},
}

// provider sector label -> watchlist display label
var renames = map[string]string{
	"Financial Services":     "Financials",
	"Basic Materials":        "Materials",
	"Consumer Cyclical":      "Cons. Cyclical",
	"Communication Services": "Communications",
	"Consumer Defensive":     "Cons. Defensive",
}

// funds whose GICS name differs from the provider's company sector label
var watchlistOverrides = map[string]string{
	"XLY": "Cons. Cyclical",
	"XLC": "Communications",
	"XLP": "Cons. Defensive",
}

// ETFTickers returns the sector fund tickers.
func ETFTickers() []string {
	out := make([]string, 0, len(ETFs))
	for _, etf := range ETFs {
		out = append(out, etf.Ticker)
	}
	return out
}

// Tickers returns every tracked series: the sector funds followed by the benchmark.
func Tickers() []string {
	return append(ETFTickers(), Benchmark)
}

// Lookup resolves a sector fund by ticker, case-insensitively.
func Lookup(ticker string) (ETF, bool) {
	upper := strings.ToUpper(strings.TrimSpace(ticker))
	for _, etf := range ETFs {
		if etf.Ticker == upper {
			return etf, true
		}
	}
	return ETF{}, false
}

// IsTracked reports whether ticker is a sector fund or the benchmark.
func IsTracked(ticker string) bool {
	if isBenchmark(ticker) {
		return true
	}
	_, ok := Lookup(ticker)
	return ok
}

// Canonical maps user input onto the tracked ticker spelling.
func Canonical(ticker string) string {
	if isBenchmark(ticker) {
		return Benchmark
	}
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// StoreName is the storage table name for a tracked ticker.
func StoreName(ticker string) string {
	if isBenchmark(ticker) {
		return benchmarkStoreName
	}
	return strings.ToLower(strings.TrimSpace(ticker))
}

// ProviderSymbol is the symbol the price provider understands.
func ProviderSymbol(ticker string) string {
	if isBenchmark(ticker) {
		return benchmarkSymbol
	}
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// DisplayName turns a storage table name back into a chart label.
func DisplayName(storeName string) string {
	if strings.EqualFold(storeName, benchmarkStoreName) {
		return Benchmark
	}
	return strings.ToUpper(storeName)
}

// HiddenByDefault reports whether a series starts collapsed in the legend.
func HiddenByDefault(name string) bool {
	_, ok := defaultHidden[strings.ToUpper(name)]
	return ok
}

// Normalize maps a provider sector label onto the watchlist label.
func Normalize(providerSector string) string {
	s := strings.TrimSpace(providerSector)
	if s == "" {
		return unknownSector
	}
	if renamed, ok := renames[s]; ok {
		return renamed
	}
	return s
}

// IsUnknown reports whether a normalized sector is the "Unknown" placeholder.
func IsUnknown(s string) bool {
	return s == unknownSector
}

// WatchlistSector resolves the watchlist sector label a fund filters on.
func WatchlistSector(ticker string) (string, bool) {
	etf, ok := Lookup(ticker)
	if !ok {
		return "", false
	}
	if override, ok := watchlistOverrides[etf.Ticker]; ok {
		return override, true
	}
	return etf.Sector, true
}

func isBenchmark(ticker string) bool {
	t := strings.TrimSpace(ticker)
	return t == Benchmark || strings.EqualFold(t, benchmarkStoreName) || strings.EqualFold(t, "SP500") || t == benchmarkSymbol
}

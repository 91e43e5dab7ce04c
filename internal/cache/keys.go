package cache

import (
	"strings"

	"sector-dashboard/internal/timeseries"
)

// Kind is the operation a key belongs to.
type Kind string

const (
	KindMacro      Kind = "macro"
	KindWatchlist  Kind = "watchlist"
	KindRiskReturn Kind = "risk_return"
	KindPrices     Kind = "prices"
)

// Key joins kind and id; an empty id keys the kind as a whole.
func Key(kind Kind, id string) string {
	if id == "" {
		return string(kind)
	}
	return string(kind) + ":" + strings.ToLower(id)
}

// MacroKey keys one macro group table.
func MacroKey(group string) string { return Key(KindMacro, group) }

// WatchlistKey keys the watchlist snapshot.
func WatchlistKey() string { return Key(KindWatchlist, "") }

// RiskReturnKey keys one ticker's quarterly risk/return table.
func RiskReturnKey(ticker string) string { return Key(KindRiskReturn, ticker) }

// PricesKey keys a provider symbol's close history.
func PricesKey(symbol string) string { return Key(KindPrices, symbol) }

// TableCodec stores tables as CSV with a header row.
var TableCodec = Codec[*timeseries.Table]{
	Encode: timeseries.MarshalCSV,
	Decode: timeseries.UnmarshalCSV,
}

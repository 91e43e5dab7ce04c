package watchlist

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"sector-dashboard/internal/sector"
)

// DefaultView drops rows whose sector is Unknown.
func DefaultView(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if sector.IsUnknown(e.Sector) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FilterSector narrows the default view to the sector of a fund ticker.
// An empty filter or "all" returns the whole default view.
func FilterSector(entries []Entry, fund string) ([]Entry, error) {
	view := DefaultView(entries)
	fund = strings.TrimSpace(fund)
	if fund == "" || strings.EqualFold(fund, "all") {
		return view, nil
	}
	label, ok := sector.WatchlistSector(fund)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSector, fund)
	}
	out := make([]Entry, 0, len(view))
	for _, e := range view {
		if e.Sector == label {
			out = append(out, e)
		}
	}
	return out, nil
}

// Weighting is the summed market cap of one sector.
type Weighting struct {
	Sector    string          `json:"sector"`
	MarketCap decimal.Decimal `json:"market_cap"`
}

// Weightings sums market caps per sector over the default view, largest first.
// Rows with an unavailable market cap contribute nothing.
func Weightings(entries []Entry) []Weighting {
	totals := make(map[string]decimal.Decimal)
	for _, e := range DefaultView(entries) {
		if !e.MarketCap.Available() {
			continue
		}
		totals[e.Sector] = totals[e.Sector].Add(decimal.NewFromFloat(e.MarketCap.Float64))
	}

	out := make([]Weighting, 0, len(totals))
	for s, total := range totals {
		out = append(out, Weighting{Sector: s, MarketCap: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].MarketCap.Cmp(out[j].MarketCap); c != 0 {
			return c > 0
		}
		return out[i].Sector < out[j].Sector
	})
	return out
}

package macro

import (
	"errors"
	"fmt"
)

// FedFunds is appended to multi-maturity selections.
const FedFunds = "Federal Funds Rate"

// ErrUnknownMaturity is returned for a maturity label with no definition.
var ErrUnknownMaturity = errors.New("macro: unknown maturity")

// DefaultMaturities is the selection used when none is given.
var DefaultMaturities = []string{"2 Year", "10 Year"}

type maturity struct {
	spreads []string
	yields  []string
}

// Some yield names have no series in the interest_rates group; callers skip absent columns.
var maturities = map[string]maturity{
	"2 Year": {
		spreads: []string{"2s5s Spread", "2s10s Spread", "2s30s Spread", "3m2y Spread"},
		yields:  []string{"2-Year Yield"},
	},
	"3 Month": {
		spreads: []string{"3m10y Spread", "3m2y Spread"},
		yields:  []string{"3-Month Yield"},
	},
	"5 Year": {
		spreads: []string{"2s5s Spread", "5s30s Spread"},
		yields:  []string{"5-Year Real Yield", "5-Year Yield"},
	},
	"10 Year": {
		spreads: []string{"3m10y Spread", "2s10s Spread", "10s30s Spread"},
		yields:  []string{"10-Year Real Yield", "10-Year Yield"},
	},
	"30 Year": {
		spreads: []string{"5s30s Spread", "10s30s Spread", "2s30s Spread"},
		yields:  []string{"30-Year MBS Yield", "30-Year Yield"},
	},
}

// Maturities lists the selectable maturity labels, shortest first.
func Maturities() []string {
	return []string{"3 Month", "2 Year", "5 Year", "10 Year", "30 Year"}
}

// InterestRateColumns returns the series to plot for a maturity selection.
//
// A single maturity yields its yields followed by all of its spreads. For several
// maturities, yields are concatenated in selection order; then, per maturity, the
// spreads shared with another selected maturity are taken, or all of its spreads if
// it shares none. Spreads are de-duplicated in first-seen order and followed by the
// Federal Funds Rate.
func InterestRateColumns(selected []string) ([]string, error) {
	if len(selected) == 0 {
		selected = DefaultMaturities
	}
	defs := make([]maturity, len(selected))
	for i, label := range selected {
		def, ok := maturities[label]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMaturity, label)
		}
		defs[i] = def
	}

	if len(defs) == 1 {
		out := append([]string(nil), defs[0].yields...)
		return append(out, defs[0].spreads...), nil
	}

	var out []string
	counts := make(map[string]int)
	for _, def := range defs {
		out = append(out, def.yields...)
		for _, s := range def.spreads {
			counts[s]++
		}
	}

	var spreads []string
	for _, def := range defs {
		var shared []string
		for _, s := range def.spreads {
			if counts[s] > 1 {
				shared = append(shared, s)
			}
		}
		if len(shared) == 0 {
			shared = def.spreads
		}
		spreads = append(spreads, shared...)
	}

	seen := make(map[string]struct{}, len(spreads))
	for _, s := range spreads {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return append(out, FedFunds), nil
}

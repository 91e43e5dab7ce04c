package metrics

import (
	"fmt"
	"strings"

	"github.com/guregu/null/v6"
)

// Stored column names of a ticker table.
const (
	ColumnClose      = "close"
	ColumnDividends  = "dividends"
	ColumnVolatility = "volatility"
	ColumnDivYield   = "div_yield"
	ColumnRSI        = "rsi"
	ColumnSharpe     = "sharpe"
	ColumnYTD        = "ytd_pct"
)

// Columns lists the stored columns in table order.
var Columns = []string{ColumnClose, ColumnDividends, ColumnVolatility, ColumnDivYield, ColumnRSI, ColumnSharpe, ColumnYTD}

// Kind enumerates the metrics a chart can plot across sectors.
type Kind int

const (
	KindPrice Kind = iota
	KindAnnualPerformance
	KindVolatility
	KindDividendYield
	KindSharpe
	KindRSI
)

var kinds = []Kind{KindPrice, KindAnnualPerformance, KindVolatility, KindDividendYield, KindSharpe, KindRSI}

// Kinds returns every metric kind.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

// String is the display label.
func (k Kind) String() string {
	switch k {
	case KindPrice:
		return "Price"
	case KindAnnualPerformance:
		return "Annual Performance"
	case KindVolatility:
		return "Volatility"
	case KindDividendYield:
		return "Dividend Yield"
	case KindSharpe:
		return "Sharpe Ratio"
	case KindRSI:
		return "RSI"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Column is the stored column backing the kind.
func (k Kind) Column() string {
	switch k {
	case KindPrice:
		return ColumnClose
	case KindAnnualPerformance:
		return ColumnYTD
	case KindVolatility:
		return ColumnVolatility
	case KindDividendYield:
		return ColumnDivYield
	case KindSharpe:
		return ColumnSharpe
	case KindRSI:
		return ColumnRSI
	default:
		return ""
	}
}

// Value extracts the kind's value from a derived row.
func (k Kind) Value(r Row) null.Float {
	switch k {
	case KindPrice:
		return null.FloatFrom(r.Close)
	case KindAnnualPerformance:
		return r.YTDPct
	case KindVolatility:
		return r.Volatility
	case KindDividendYield:
		return r.DivYield
	case KindSharpe:
		return r.Sharpe
	case KindRSI:
		return r.RSI
	default:
		return null.Float{}
	}
}

// ParseKind accepts a display label, a stored column name, or "Year-End Indexed Price".
func ParseKind(s string) (Kind, error) {
	needle := strings.TrimSpace(s)
	if strings.EqualFold(needle, "Year-End Indexed Price") {
		return KindAnnualPerformance, nil
	}
	for _, k := range kinds {
		if strings.EqualFold(needle, k.String()) || strings.EqualFold(needle, k.Column()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown metric %q", s)
}

package watchlist

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/guregu/null/v6"
)

// NotAvailable marks an unavailable field in tabular output.
const NotAvailable = "N/A"

// Field is one fundamental value. An invalid Field is the Unavailable marker;
// Err records why a present value could not be used.
type Field struct {
	null.Float
	Err error `json:"-"`
}

// Ok wraps an available value.
func Ok(v float64) Field { return Field{Float: null.FloatFrom(v)} }

// Unavailable marks a missing field, optionally with the failure that caused it.
func Unavailable(err error) Field { return Field{Err: err} }

// Available reports whether the field holds a value.
func (f Field) Available() bool { return f.Valid }

// Text formats the value for tables, or NotAvailable.
func (f Field) Text() string {
	if !f.Valid {
		return NotAvailable
	}
	return strconv.FormatFloat(f.Float64, 'f', -1, 64)
}

// ParseField reverses Text.
func ParseField(s string) (Field, error) {
	if s == NotAvailable || s == "" {
		return Unavailable(nil), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Field{}, fmt.Errorf("parse field %q: %w", s, err)
	}
	return Ok(v), nil
}

// Entry is one company row of the watchlist snapshot.
type Entry struct {
	Ticker         string      `json:"ticker"`
	Name           null.String `json:"name"`
	Sector         string      `json:"sector"`
	MarketCap      Field       `json:"market_cap"`
	Price          Field       `json:"price"`
	PERatio        Field       `json:"pe_ratio"`
	EarningsGrowth Field       `json:"earnings_growth"`
	EPS            Field       `json:"eps"`
	PctChange1M    Field       `json:"pct_change_1m"`
	PctChange6M    Field       `json:"pct_change_6m"`
	MovingAvg200D  Field       `json:"moving_avg_200d"`
	PEGRatio       Field       `json:"peg_ratio"`
	Beta           Field       `json:"beta"`
}

// Field names used in FieldError and column headers.
const (
	FieldName           = "Name"
	FieldSector         = "Sector"
	FieldMarketCap      = "Market Cap"
	FieldPrice          = "Price"
	FieldPERatio        = "PE Ratio"
	FieldEarningsGrowth = "Earnings Growth"
	FieldEPS            = "EPS"
	FieldPctChange1M    = "%-Change (1M)"
	FieldPctChange6M    = "%-Change (6M)"
	FieldMovingAvg200D  = "200 day Avg"
	FieldPEGRatio       = "PEG Ratio"
	FieldBeta           = "Beta"
)

// numericFields lists the numeric columns in table order with accessors.
var numericFields = []struct {
	name string
	get  func(*Entry) *Field
}{
	{FieldMarketCap, func(e *Entry) *Field { return &e.MarketCap }},
	{FieldPrice, func(e *Entry) *Field { return &e.Price }},
	{FieldPERatio, func(e *Entry) *Field { return &e.PERatio }},
	{FieldEarningsGrowth, func(e *Entry) *Field { return &e.EarningsGrowth }},
	{FieldEPS, func(e *Entry) *Field { return &e.EPS }},
	{FieldPctChange1M, func(e *Entry) *Field { return &e.PctChange1M }},
	{FieldPctChange6M, func(e *Entry) *Field { return &e.PctChange6M }},
	{FieldMovingAvg200D, func(e *Entry) *Field { return &e.MovingAvg200D }},
	{FieldPEGRatio, func(e *Entry) *Field { return &e.PEGRatio }},
	{FieldBeta, func(e *Entry) *Field { return &e.Beta }},
}

// Header is the column order of CSV and workbook output.
func Header() []string {
	out := []string{"Ticker", FieldName, FieldSector}
	for _, f := range numericFields {
		out = append(out, f.name)
	}
	return out
}

// FieldError reports a field that could not be decoded for a ticker.
type FieldError struct {
	Ticker string
	Field  string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("watchlist %s: field %s: %v", e.Ticker, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// ErrUnknownSector is returned when a sector filter names no tracked fund.
var ErrUnknownSector = errors.New("watchlist: unknown sector filter")

package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"sector-dashboard/internal/metrics"
	"sector-dashboard/internal/timeseries"
)

// Provider names used in FetchError.Source.
const (
	SourceYahoo = "yahoo"
	SourceFRED  = "fred"
)

// FetchError reports a provider failure or malformed payload for one identifier.
type FetchError struct {
	Source string
	ID     string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Source, e.ID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PriceFetcher retrieves daily close and dividend history.
type PriceFetcher interface {
	History(ctx context.Context, symbol string, from, to time.Time) ([]metrics.Bar, error)
}

// SummaryFetcher retrieves company fundamentals.
type SummaryFetcher interface {
	Summary(ctx context.Context, symbol string) (Summary, error)
}

// SeriesFetcher retrieves one macro indicator.
type SeriesFetcher interface {
	Series(ctx context.Context, id string, from, to time.Time) (timeseries.Series, error)
}

// Value is one raw provider field. Absent, null and empty-object values are unavailable;
// anything else that does not decode is malformed.
type Value struct {
	raw json.RawMessage
}

// RawValue wraps a JSON fragment.
func RawValue(raw string) Value { return Value{raw: json.RawMessage(raw)} }

func (v Value) absent() bool {
	trimmed := bytes.TrimSpace(v.raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}

// Float decodes a number, a {"raw": n} wrapper or a numeric string.
func (v Value) Float() (null.Float, error) {
	if v.absent() {
		return null.Float{}, nil
	}
	var num float64
	if err := json.Unmarshal(v.raw, &num); err == nil {
		return timeseries.Finite(num), nil
	}
	var wrapped struct {
		Raw json.RawMessage `json:"raw"`
	}
	if err := json.Unmarshal(v.raw, &wrapped); err == nil {
		if wrapped.Raw == nil {
			return null.Float{}, nil
		}
		return Value{raw: wrapped.Raw}.Float()
	}
	var s string
	if err := json.Unmarshal(v.raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "N/A") {
			return null.Float{}, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return null.Float{}, fmt.Errorf("malformed number %q", s)
		}
		return timeseries.Finite(f), nil
	}
	return null.Float{}, fmt.Errorf("malformed number %s", string(v.raw))
}

// String decodes a string value.
func (v Value) String() (null.String, error) {
	if v.absent() {
		return null.String{}, nil
	}
	var s string
	if err := json.Unmarshal(v.raw, &s); err != nil {
		return null.String{}, fmt.Errorf("malformed string %s", string(v.raw))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return null.String{}, nil
	}
	return null.StringFrom(s), nil
}

// Summary holds the fundamentals of one company as provider values.
type Summary struct {
	Symbol               string
	ShortName            Value
	Sector               Value
	MarketCap            Value
	Open                 Value
	TrailingPE           Value
	TrailingEPS          Value
	EarningsGrowth       Value
	TwoHundredDayAverage Value
	PEGRatio             Value
	Beta                 Value
}

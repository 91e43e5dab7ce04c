package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"

	"sector-dashboard/internal/timeseries"
)

// FRED marks a missing observation with a single dot.
const fredMissing = "."

// OfficialOptions parameterise the FRED fetcher.
type OfficialOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Official fetches official economic statistics from FRED.
type Official struct {
	opts   OfficialOptions
	logger zerolog.Logger
	client *resty.Client
}

// NewOfficial builds a FRED fetcher.
func NewOfficial(opts OfficialOptions, logger zerolog.Logger) *Official {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.stlouisfed.org/fred"
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	return &Official{
		opts:   opts,
		logger: logger.With().Str("component", "official_fetcher").Logger(),
		client: client,
	}
}

// Series returns the observations of one FRED series between from and to, ascending.
// Missing observations are kept as null points.
func (o *Official) Series(ctx context.Context, id string, from, to time.Time) (timeseries.Series, error) {
	if o.opts.APIKey == "" {
		return nil, &FetchError{Source: SourceFRED, ID: id, Err: errors.New("fred api key not configured")}
	}
	params := map[string]string{
		"series_id": id,
		"api_key":   o.opts.APIKey,
		"file_type": "json",
	}
	if !from.IsZero() {
		params["observation_start"] = from.Format(timeseries.DateLayout)
	}
	if !to.IsZero() {
		params["observation_end"] = to.Format(timeseries.DateLayout)
	}

	resp, err := o.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(o.opts.BaseURL + "/series/observations")
	if err != nil {
		return nil, &FetchError{Source: SourceFRED, ID: id, Err: err}
	}
	if resp.IsError() {
		return nil, &FetchError{Source: SourceFRED, ID: id, Err: parseFREDError(resp.StatusCode(), resp.Body())}
	}

	var payload observationsResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, &FetchError{Source: SourceFRED, ID: id, Err: fmt.Errorf("decode observations: %w", err)}
	}

	series := make(timeseries.Series, 0, len(payload.Observations))
	for _, obs := range payload.Observations {
		day, err := time.Parse(timeseries.DateLayout, obs.Date)
		if err != nil {
			return nil, &FetchError{Source: SourceFRED, ID: id, Err: fmt.Errorf("parse date %q: %w", obs.Date, err)}
		}
		value := strings.TrimSpace(obs.Value)
		if value == fredMissing || value == "" {
			series = append(series, timeseries.Point{Date: day})
			continue
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, &FetchError{Source: SourceFRED, ID: id, Err: fmt.Errorf("parse value %q on %s: %w", value, obs.Date, err)}
		}
		series = append(series, timeseries.Point{Date: day, Value: null.FloatFrom(f)})
	}

	o.logger.Debug().Str("series", id).Int("observations", len(series)).Msg("series fetched")
	return series.Sorted(), nil
}

type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

type fredErrorResponse struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func parseFREDError(status int, payload []byte) error {
	var apiErr fredErrorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.ErrorMessage != "" {
		return fmt.Errorf("fred api error (%d): %s", status, apiErr.ErrorMessage)
	}
	return parseHTTPError(status, payload)
}

var _ SeriesFetcher = (*Official)(nil)

package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOfficialMissingAPIKey(t *testing.T) {
	off := NewOfficial(OfficialOptions{}, noopLogger())
	_, err := off.Series(context.Background(), "DGS10", time.Time{}, time.Time{})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Source != SourceFRED {
		t.Fatalf("missing api key should fail with a fred fetch error, got %v", err)
	}
}

func TestOfficialSeries(t *testing.T) {
	var q map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/series/observations" {
			http.NotFound(w, r)
			return
		}
		q = map[string]string{
			"series_id": r.URL.Query().Get("series_id"),
			"start":     r.URL.Query().Get("observation_start"),
			"file_type": r.URL.Query().Get("file_type"),
		}
		_, _ = w.Write([]byte(`{"observations":[
			{"date":"2024-01-03","value":"4.01"},
			{"date":"2024-01-02","value":"3.95"},
			{"date":"2024-01-04","value":"."}
		]}`))
	}))
	defer srv.Close()

	off := NewOfficial(OfficialOptions{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second}, noopLogger())
	series, err := off.Series(context.Background(), "DGS10", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if q["series_id"] != "DGS10" || q["start"] != "2024-01-01" || q["file_type"] != "json" {
		t.Fatalf("unexpected query %v", q)
	}
	if len(series) != 3 {
		t.Fatalf("expected 3 points, got %d", len(series))
	}
	if series[0].Value.Float64 != 3.95 || series[1].Value.Float64 != 4.01 {
		t.Fatalf("series must be sorted ascending: %+v", series)
	}
	if series[2].Value.Valid {
		t.Fatal("a dot observation must be null")
	}
}

func TestOfficialSeriesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":400,"error_message":"Bad Request. The series does not exist."}`))
	}))
	defer srv.Close()

	off := NewOfficial(OfficialOptions{BaseURL: srv.URL, APIKey: "k"}, noopLogger())
	_, err := off.Series(context.Background(), "NOPE", time.Time{}, time.Time{})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.ID != "NOPE" {
		t.Fatalf("expected fetch error for NOPE, got %v", err)
	}
}

func TestOfficialSeriesMalformedValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"observations":[{"date":"2024-01-03","value":"n/a"}]}`))
	}))
	defer srv.Close()

	off := NewOfficial(OfficialOptions{BaseURL: srv.URL, APIKey: "k"}, noopLogger())
	if _, err := off.Series(context.Background(), "DGS2", time.Time{}, time.Time{}); err == nil {
		t.Fatal("malformed value must fail")
	}
}

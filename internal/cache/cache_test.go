package cache

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"sector-dashboard/internal/timeseries"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newLayer(backend Backend) (*Layer, *clock) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return New(backend, DefaultTTL, zerolog.Nop()).WithClock(c.now), c
}

func TestSetThenGet(t *testing.T) {
	layer, _ := newLayer(NewMemory())
	ctx := context.Background()

	if err := layer.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := layer.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("get = %q,%v,%v", got, ok, err)
	}
}

func TestEntryExpiresAtTTL(t *testing.T) {
	layer, c := newLayer(NewMemory())
	ctx := context.Background()
	_ = layer.Set(ctx, "k", []byte("v"))

	c.t = c.t.Add(DefaultTTL - time.Second)
	if _, ok, _ := layer.Get(ctx, "k"); !ok {
		t.Fatal("entry should be fresh just under the TTL")
	}
	c.t = c.t.Add(time.Second)
	if _, ok, _ := layer.Get(ctx, "k"); ok {
		t.Fatal("entry must not be served once it is as old as the TTL")
	}
}

func TestInvalidateForcesMissWithinTTL(t *testing.T) {
	layer, _ := newLayer(NewMemory())
	ctx := context.Background()
	_ = layer.Set(ctx, "k", []byte("v"))

	if err := layer.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := layer.Get(ctx, "k"); ok {
		t.Fatal("invalidated key must miss")
	}
}

func TestInvalidateAllCoversKnownAndListedKeys(t *testing.T) {
	backend := NewMemory()
	layer, _ := newLayer(backend)
	ctx := context.Background()
	_ = layer.Set(ctx, MacroKey("labor_market"), []byte("a"))
	// written by another process; only reachable through the explicit key list
	_ = backend.Set(ctx, Entry{Key: WatchlistKey(), Payload: []byte("b"), InsertedAt: time.Now(), TTL: DefaultTTL})

	if err := layer.InvalidateAll(ctx, WatchlistKey()); err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	for _, k := range []string{MacroKey("labor_market"), WatchlistKey()} {
		if _, err := backend.Get(ctx, k); !errors.Is(err, ErrMiss) {
			t.Fatalf("%s should be gone, got %v", k, err)
		}
	}
}

var stringCodec = Codec[string]{
	Encode: func(s string) ([]byte, error) { return []byte(s), nil },
	Decode: func(b []byte) (string, error) {
		if string(b) == "corrupt" {
			return "", errors.New("bad payload")
		}
		return string(b), nil
	},
}

func TestFetchWritesThrough(t *testing.T) {
	layer, _ := newLayer(NewMemory())
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (string, error) {
		calls++
		return "fresh", nil
	}
	for i := 0; i < 3; i++ {
		got, err := Fetch(ctx, layer, "k", stringCodec, compute)
		if err != nil || got != "fresh" {
			t.Fatalf("fetch = %q,%v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("compute should run once, ran %d times", calls)
	}

	_ = layer.Invalidate(ctx, "k")
	_, _ = Fetch(ctx, layer, "k", stringCodec, compute)
	if calls != 2 {
		t.Fatalf("invalidation must force a recompute, ran %d times", calls)
	}
}

func TestFetchRecomputesUndecodablePayload(t *testing.T) {
	layer, _ := newLayer(NewMemory())
	ctx := context.Background()
	_ = layer.Set(ctx, "k", []byte("corrupt"))

	got, err := Fetch(ctx, layer, "k", stringCodec, func(context.Context) (string, error) { return "ok", nil })
	if err != nil || got != "ok" {
		t.Fatalf("fetch = %q,%v", got, err)
	}
	payload, _, _ := layer.Get(ctx, "k")
	if string(payload) != "ok" {
		t.Fatalf("recomputed value should replace the payload, got %q", payload)
	}
}

func TestFetchPropagatesComputeError(t *testing.T) {
	layer, _ := newLayer(NewMemory())
	boom := errors.New("boom")
	_, err := Fetch(context.Background(), layer, "k", stringCodec, func(context.Context) (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if _, ok, _ := layer.Get(context.Background(), "k"); ok {
		t.Fatal("failed compute must not be cached")
	}
}

func TestTableCodecRoundTrip(t *testing.T) {
	layer, _ := newLayer(NewMemory())
	tbl := timeseries.New([]time.Time{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)})
	_ = tbl.Set("10-Year Yield", []null.Float{null.FloatFrom(4.01)})

	got, err := Fetch(context.Background(), layer, MacroKey("interest_rates"), TableCodec, func(context.Context) (*timeseries.Table, error) {
		return tbl, nil
	})
	if err != nil || got.Len() != 1 {
		t.Fatalf("fetch table: %v", err)
	}
	cached, err := Fetch(context.Background(), layer, MacroKey("interest_rates"), TableCodec, func(context.Context) (*timeseries.Table, error) {
		t.Fatal("should be served from cache")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	col, _ := cached.Column("10-Year Yield")
	if col[0].Float64 != 4.01 {
		t.Fatalf("unexpected cached value %v", col[0])
	}
}

func TestKeys(t *testing.T) {
	if MacroKey("interest_rates") != "macro:interest_rates" || RiskReturnKey("XLK") != "risk_return:xlk" || WatchlistKey() != "watchlist" {
		t.Fatal("unexpected key format")
	}
}

func TestSQLiteBackend(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	ctx := context.Background()
	backend, err := NewSQLite(ctx, db)
	if err != nil {
		t.Fatalf("new sqlite backend: %v", err)
	}
	if _, err := backend.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}

	layer, c := newLayer(backend)
	_ = layer.Set(ctx, "k", []byte("one"))
	_ = layer.Set(ctx, "k", []byte("two"))
	got, ok, err := layer.Get(ctx, "k")
	if err != nil || !ok || string(got) != "two" {
		t.Fatalf("get = %q,%v,%v", got, ok, err)
	}

	c.t = c.t.Add(DefaultTTL)
	if _, ok, _ := layer.Get(ctx, "k"); ok {
		t.Fatal("expired sqlite entry must miss")
	}

	if err := layer.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := backend.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

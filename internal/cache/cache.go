package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is the lifetime of every entry.
const DefaultTTL = 24 * time.Hour

// ErrMiss is returned by backends for absent keys.
var ErrMiss = errors.New("cache: miss")

// Entry is one stored payload.
type Entry struct {
	Key        string
	Payload    []byte
	InsertedAt time.Time
	TTL        time.Duration
}

// Fresh reports whether the entry is strictly younger than its TTL at now.
func (e Entry) Fresh(now time.Time) bool {
	return now.Sub(e.InsertedAt) < e.TTL
}

// Backend stores entries by key. Get returns ErrMiss for absent keys.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
}

// Layer applies the TTL rule over a Backend and remembers the keys it has written.
type Layer struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	mu    sync.Mutex
	known map[string]struct{}
}

// New constructs a Layer. A non-positive ttl falls back to DefaultTTL.
func New(backend Backend, ttl time.Duration, logger zerolog.Logger) *Layer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Layer{
		backend: backend,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger.With().Str("component", "cache").Logger(),
		known:   make(map[string]struct{}),
	}
}

// WithClock overrides the clock used for freshness checks.
func (l *Layer) WithClock(now func() time.Time) *Layer {
	l.now = now
	return l
}

// TTL returns the entry lifetime.
func (l *Layer) TTL() time.Duration { return l.ttl }

// Get returns the payload for key, or ok=false on a miss or an expired entry.
func (l *Layer) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := l.backend.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !entry.Fresh(l.now()) {
		l.logger.Debug().Str("key", key).Time("inserted_at", entry.InsertedAt).Msg("cache entry expired")
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

// Set stores payload under key with the layer TTL.
func (l *Layer) Set(ctx context.Context, key string, payload []byte) error {
	entry := Entry{
		Key:        key,
		Payload:    append([]byte(nil), payload...),
		InsertedAt: l.now(),
		TTL:        l.ttl,
	}
	if err := l.backend.Set(ctx, entry); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	l.remember(key)
	return nil
}

// Invalidate removes key so the next read is a miss.
func (l *Layer) Invalidate(ctx context.Context, key string) error {
	if err := l.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrMiss) {
		return fmt.Errorf("cache invalidate %s: %w", key, err)
	}
	return nil
}

// InvalidateAll removes the given keys and every key this layer has written.
func (l *Layer) InvalidateAll(ctx context.Context, keys ...string) error {
	all := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		all[k] = struct{}{}
	}
	for _, k := range l.Known() {
		all[k] = struct{}{}
	}

	ordered := make([]string, 0, len(all))
	for k := range all {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	var errs []error
	for _, k := range ordered {
		if err := l.Invalidate(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	l.logger.Info().Int("keys", len(ordered)).Int("failed", len(errs)).Msg("cache invalidated")
	return errors.Join(errs...)
}

// Known lists the keys written through this layer.
func (l *Layer) Known() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.known))
	for k := range l.known {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (l *Layer) remember(key string) {
	l.mu.Lock()
	l.known[key] = struct{}{}
	l.mu.Unlock()
}

// Codec converts values to and from cache payloads.
type Codec[T any] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// Fetch returns the cached value for key, or computes it, writes it back, and returns it.
// Undecodable payloads are treated as misses. A failed write-back is logged and the
// computed value is still returned.
func Fetch[T any](ctx context.Context, l *Layer, key string, codec Codec[T], compute func(context.Context) (T, error)) (T, error) {
	var zero T

	payload, ok, err := l.Get(ctx, key)
	if err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("cache read failed; recomputing")
	}
	if ok {
		value, err := codec.Decode(payload)
		if err == nil {
			return value, nil
		}
		l.logger.Warn().Err(err).Str("key", key).Msg("cache payload undecodable; recomputing")
	}

	value, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	encoded, err := codec.Encode(value)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", key, err)
	}
	if err := l.Set(ctx, key, encoded); err != nil {
		l.logger.Error().Err(err).Str("key", key).Msg("cache write-back failed")
	}
	return value, nil
}

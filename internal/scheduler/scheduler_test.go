package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewRejectsInvalidSpec(t *testing.T) {
	if _, err := New(Options{Spec: "every day"}, zerolog.Nop()); err == nil {
		t.Fatal("invalid cron spec must be rejected")
	}
}

func TestNextWeekdayEvening(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s, err := New(Options{Spec: "0 30 17 * * 1-5", Location: loc}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	friday := time.Date(2024, 3, 8, 18, 0, 0, 0, loc)
	want := time.Date(2024, 3, 11, 17, 30, 0, 0, loc)
	if got := s.Next(friday); !got.Equal(want) {
		t.Fatalf("Next(friday evening) = %v, want %v", got, want)
	}
}

func TestRunOnStartAndStop(t *testing.T) {
	s, err := New(Options{Spec: "0 0 0 1 1 *", RunOnStart: true}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			atomic.AddInt32(&calls, 1)
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run should return context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one start-up tick, got %d", calls)
	}
}

func TestRunHonoursStartupDelayCancellation(t *testing.T) {
	s, _ := New(Options{Spec: "@daily", StartupDelay: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, func(context.Context, time.Time) error {
		t.Fatal("tick must not run")
		return nil
	}); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

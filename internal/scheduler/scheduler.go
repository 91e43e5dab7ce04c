package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every scheduled firing.
type TickFunc func(ctx context.Context, firedAt time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	// Spec is a six-field cron expression with seconds, e.g. "0 30 17 * * 1-5".
	Spec         string
	Location     *time.Location
	RunOnStart   bool
	StartupDelay time.Duration
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler drives cron-triggered refresh jobs.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	logger   zerolog.Logger
}

// New constructs a Scheduler, rejecting an invalid cron spec.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	schedule, err := parser.Parse(opts.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse scheduler.cron %q: %w", opts.Spec, err)
	}
	return &Scheduler{
		opts:     opts,
		schedule: schedule,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Next returns the first firing strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.opts.Location))
}

// Run blocks, invoking tick on every firing until ctx is cancelled. Overlapping firings are skipped.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	log := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.opts.Location),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.execute(ctx, tick) }))

	if s.opts.RunOnStart {
		s.execute(ctx, tick)
	}

	c.Start()
	s.logger.Info().Str("spec", s.opts.Spec).Time("next_run", s.Next(time.Now())).Msg("scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc) {
	if ctx.Err() != nil {
		return
	}
	firedAt := time.Now().In(s.opts.Location)
	s.logger.Info().Time("fired_at", firedAt).Msg("executing scheduled tick")
	if err := tick(ctx, firedAt); err != nil {
		s.logger.Error().Err(err).Time("fired_at", firedAt).Msg("tick execution failed")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

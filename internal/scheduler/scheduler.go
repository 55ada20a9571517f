// Package scheduler fires DAG runs on a fixed interval aligned to a start
// date. Intervals missed while the scheduler was not running are skipped.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DispatchFunc starts the run whose data interval begins at logicalDate
type DispatchFunc func(ctx context.Context, logicalDate time.Time) error

// NextFire returns the first fire time strictly after now. Fire times are
// start + k*interval for k >= 1.
func NextFire(start time.Time, interval time.Duration, now time.Time) time.Time {
	if now.Before(start) {
		return start.Add(interval)
	}
	k := now.Sub(start)/interval + 1
	return start.Add(k * interval)
}

// LogicalDate returns the start of the data interval that ends at fireTime
func LogicalDate(interval time.Duration, fireTime time.Time) time.Time {
	return fireTime.Add(-interval)
}

// LatestLogicalDate returns the logical date of the most recent interval
// that has fully elapsed at now, and false when none has
func LatestLogicalDate(start time.Time, interval time.Duration, now time.Time) (time.Time, bool) {
	if now.Before(start.Add(interval)) {
		return time.Time{}, false
	}
	k := now.Sub(start) / interval
	return start.Add((k - 1) * interval), true
}

// Scheduler calls a DispatchFunc at every fire time
type Scheduler struct {
	start    time.Time
	interval time.Duration
	dispatch DispatchFunc
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
}

type Option func(*Scheduler)

// WithClock replaces the wall clock, for tests
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
		s.after = after
	}
}

func New(start time.Time, interval time.Duration, dispatch DispatchFunc, opts ...Option) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("schedule interval must be positive, got %v", interval)
	}

	s := &Scheduler{
		start:    start,
		interval: interval,
		dispatch: dispatch,
		now:      time.Now,
		after:    time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run blocks dispatching runs until ctx is done. Dispatch errors are logged
// and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		now := s.now()
		next := NextFire(s.start, s.interval, now)

		logger.Info().
			Time("next_fire", next).
			Time("logical_date", LogicalDate(s.interval, next)).
			Msg("Waiting for next scheduled run")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(next.Sub(now)):
		}

		logicalDate := LogicalDate(s.interval, next)
		if err := s.dispatch(ctx, logicalDate); err != nil {
			logger.Error().
				Err(err).
				Time("logical_date", logicalDate).
				Msg("Failed to dispatch scheduled run")
		}
	}
}

package scheduler

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

func testContext() context.Context {
	logger := zerolog.New(io.Discard)
	return logger.WithContext(context.Background())
}

func TestNextFire(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{name: "before start", now: start.Add(-time.Hour), want: start.Add(30 * time.Minute)},
		{name: "at start", now: start, want: start.Add(30 * time.Minute)},
		{name: "mid interval", now: start.Add(45 * time.Minute), want: start.Add(time.Hour)},
		{name: "on boundary", now: start.Add(time.Hour), want: start.Add(90 * time.Minute)},
		{name: "much later", now: time.Date(2024, 6, 1, 12, 10, 0, 0, time.UTC), want: time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextFire(start, 30*time.Minute, tt.now))
		})
	}
}

func TestLogicalDate(t *testing.T) {
	assert.Equal(t, start, LogicalDate(30*time.Minute, start.Add(30*time.Minute)))
}

func TestLatestLogicalDate(t *testing.T) {
	_, ok := LatestLogicalDate(start, 30*time.Minute, start.Add(29*time.Minute))
	assert.False(t, ok)

	got, ok := LatestLogicalDate(start, 30*time.Minute, start.Add(30*time.Minute))
	require.True(t, ok)
	assert.Equal(t, start, got)

	got, ok = LatestLogicalDate(start, 30*time.Minute, start.Add(75*time.Minute))
	require.True(t, ok)
	assert.Equal(t, start.Add(30*time.Minute), got)
}

func TestNew_InvalidInterval(t *testing.T) {
	_, err := New(start, 0, nil)
	assert.Error(t, err)
}

func TestScheduler_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext())
	defer cancel()

	now := start.Add(10 * time.Minute)
	var (
		waits   []time.Duration
		dates   []time.Time
		advance = func(d time.Duration) <-chan time.Time {
			waits = append(waits, d)
			now = now.Add(d)
			ch := make(chan time.Time, 1)
			ch <- now
			return ch
		}
	)

	s, err := New(start, 30*time.Minute, func(ctx context.Context, logicalDate time.Time) error {
		dates = append(dates, logicalDate)
		if len(dates) == 3 {
			cancel()
		}
		if len(dates) == 2 {
			return fmt.Errorf("dispatch failed")
		}
		return nil
	}, WithClock(func() time.Time { return now }, advance))
	require.NoError(t, err)

	err = s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []time.Duration{20 * time.Minute, 30 * time.Minute, 30 * time.Minute}, waits)
	assert.Equal(t, []time.Time{
		start,
		start.Add(30 * time.Minute),
		start.Add(60 * time.Minute),
	}, dates)
}

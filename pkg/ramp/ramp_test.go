// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ramp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects sent values and can be told to fail.
type recorder struct {
	mu     sync.Mutex
	values []float64
	failN  int
}

func (r *recorder) send(_ context.Context, v float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failN > 0 {
		r.failN--
		return errors.New("link down")
	}
	r.values = append(r.values, v)
	return nil
}

func (r *recorder) sent() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.values...)
}

func defaultConfig() Config {
	return Config{Enabled: true, Rate: 0.1, Interval: 10 * time.Millisecond}
}

func newScheduler(cfg Config, r *recorder) *Scheduler {
	logger, _ := test.NewNullLogger()
	return New(cfg, r.send, logger)
}

// drain ticks until the scheduler goes idle, with a safety limit.
func drain(t *testing.T, s *Scheduler) int {
	t.Helper()
	ctx := context.Background()
	for n := 1; n <= 100000; n++ {
		if !s.tick(ctx) {
			return n
		}
	}
	t.Fatal("ramp never settled")
	return 0
}

func TestRamp_MonotonicToFullPower(t *testing.T) {
	r := &recorder{}
	s := newScheduler(defaultConfig(), r)

	require.NoError(t, s.SetTarget(context.Background(), 1.0))
	assert.True(t, s.Ramping())

	ticks := drain(t, s)
	values := r.sent()

	// 1.0 at 0.1/s is 10 s, i.e. 1000 ticks of 10 ms
	assert.Equal(t, 1000, ticks)
	require.Len(t, values, 1000)
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1], "tick %d", i)
		assert.LessOrEqual(t, values[i], 1.0, "tick %d", i)
	}
	assert.Equal(t, 1.0, values[len(values)-1])
	assert.Equal(t, 1.0, s.Current())
	assert.False(t, s.Ramping())
}

func TestRamp_RetargetFromMidRamp(t *testing.T) {
	r := &recorder{}
	s := newScheduler(defaultConfig(), r)
	ctx := context.Background()

	require.NoError(t, s.SetTarget(ctx, 0.5))
	for i := 0; i < 200; i++ {
		require.True(t, s.tick(ctx))
	}
	assert.InDelta(t, 0.2, s.Current(), 1e-9)

	require.NoError(t, s.SetTarget(ctx, -0.3))
	s.tick(ctx)
	values := r.sent()
	assert.InDelta(t, 0.199, values[len(values)-1], 1e-9)

	drain(t, s)
	values = r.sent()[200:]
	for i := 1; i < len(values); i++ {
		assert.LessOrEqual(t, values[i], values[i-1])
	}
	assert.Equal(t, -0.3, s.Current())
	// 0.2 to -0.3 is 0.5, i.e. 500 steps
	assert.Len(t, values, 500)
}

func TestRamp_DisabledSendsOnce(t *testing.T) {
	r := &recorder{}
	cfg := defaultConfig()
	cfg.Enabled = false
	s := newScheduler(cfg, r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	require.NoError(t, s.SetTarget(ctx, 0.8))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []float64{0.8}, r.sent())
	assert.Equal(t, 0.8, s.Current())
	assert.False(t, s.Ramping())
}

func TestRamp_DisabledReturnsSendError(t *testing.T) {
	r := &recorder{failN: 1}
	cfg := defaultConfig()
	cfg.Enabled = false
	s := newScheduler(cfg, r)

	err := s.SetTarget(context.Background(), 0.4)
	assert.Error(t, err)
	assert.Equal(t, 0.0, s.Current())

	n, last := s.Failures()
	assert.Equal(t, uint64(1), n)
	assert.Error(t, last)
}

func TestRamp_FailedStepKeepsTicking(t *testing.T) {
	r := &recorder{failN: 3}
	s := newScheduler(defaultConfig(), r)
	ctx := context.Background()

	require.NoError(t, s.SetTarget(ctx, 0.01))
	for i := 0; i < 3; i++ {
		assert.True(t, s.tick(ctx), "failed tick %d must keep ramping", i)
	}
	assert.Equal(t, 0.0, s.Current())

	ticks := drain(t, s)
	assert.Equal(t, 10, ticks)
	assert.InDelta(t, 0.01, s.Current(), 1e-12)

	n, _ := s.Failures()
	assert.Equal(t, uint64(3), n)
}

func TestRamp_FailedFinalStepIsResent(t *testing.T) {
	r := &recorder{failN: 1}
	cfg := Config{Enabled: true, Rate: 100, Interval: 10 * time.Millisecond}
	s := newScheduler(cfg, r)
	ctx := context.Background()

	require.NoError(t, s.SetTarget(ctx, 0.5))
	assert.True(t, s.tick(ctx))
	assert.True(t, s.Ramping())

	assert.False(t, s.tick(ctx))
	assert.Equal(t, []float64{0.5}, r.sent())
}

func TestRamp_Cancel(t *testing.T) {
	r := &recorder{}
	s := newScheduler(defaultConfig(), r)
	ctx := context.Background()

	require.NoError(t, s.SetTarget(ctx, 1.0))
	for i := 0; i < 5; i++ {
		s.tick(ctx)
	}

	s.Cancel(0)
	assert.False(t, s.Ramping())
	assert.Equal(t, 0.0, s.Current())
	assert.Equal(t, 0.0, s.Target())
	assert.False(t, s.tick(ctx))
	assert.Len(t, r.sent(), 5)
}

func TestRamp_CancelWaitsForInFlightTick(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	send := func(_ context.Context, v float64) error {
		close(entered)
		<-release
		return nil
	}
	logger, _ := test.NewNullLogger()
	s := New(defaultConfig(), send, logger)
	require.NoError(t, s.SetTarget(context.Background(), 1.0))

	go s.tick(context.Background())
	<-entered

	cancelled := make(chan struct{})
	go func() {
		s.Cancel(0)
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while a tick was still sending")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-cancelled
	assert.False(t, s.Ramping())
	assert.Equal(t, 0.0, s.Current())
}

func TestRamp_SameTargetIsIdle(t *testing.T) {
	r := &recorder{}
	s := newScheduler(defaultConfig(), r)

	require.NoError(t, s.SetTarget(context.Background(), 0))
	assert.False(t, s.Ramping())
	assert.False(t, s.tick(context.Background()))
	assert.Empty(t, r.sent())
}

func TestRamp_LoopReachesTarget(t *testing.T) {
	r := &recorder{}
	cfg := Config{Enabled: true, Rate: 10, Interval: time.Millisecond}
	s := newScheduler(cfg, r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	require.NoError(t, s.SetTarget(ctx, 0.1))
	require.Eventually(t, func() bool { return !s.Ramping() }, 2*time.Second, time.Millisecond)

	values := r.sent()
	assert.Len(t, values, 10)
	assert.InDelta(t, 0.1, values[len(values)-1], 1e-12)

	// A second target restarts the loop
	require.NoError(t, s.SetTarget(ctx, 0))
	require.Eventually(t, func() bool { return !s.Ramping() }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 0.0, s.Current())
}

func TestRamp_NoTickAfterStop(t *testing.T) {
	r := &recorder{}
	cfg := Config{Enabled: true, Rate: 0.1, Interval: time.Millisecond}
	s := newScheduler(cfg, r)

	s.Start(context.Background())
	require.NoError(t, s.SetTarget(context.Background(), 1.0))
	require.Eventually(t, func() bool { return len(r.sent()) >= 3 }, 2*time.Second, time.Millisecond)

	s.Stop()
	n := len(r.sent())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(r.sent()))

	// Stop is idempotent
	s.Stop()
}

func TestRamp_StopWithoutStart(t *testing.T) {
	s := newScheduler(defaultConfig(), &recorder{})
	s.Stop()
}

func TestRamp_NonPositiveIntervalUsesDefault(t *testing.T) {
	r := &recorder{}
	s := newScheduler(Config{Enabled: true, Rate: 10}, r)
	assert.Equal(t, DefaultInterval, s.cfg.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	require.NoError(t, s.SetTarget(ctx, 0.2))
	require.Eventually(t, func() bool { return !s.Ramping() }, 2*time.Second, time.Millisecond)
	assert.InDelta(t, 0.2, s.Current(), 1e-12)
}

func TestRamp_LastUpdate(t *testing.T) {
	r := &recorder{failN: 1}
	s := newScheduler(defaultConfig(), r)
	ctx := context.Background()
	assert.True(t, s.LastUpdate().IsZero())

	require.NoError(t, s.SetTarget(ctx, 0.5))
	assert.True(t, s.LastUpdate().IsZero(), "SetTarget alone does not move current")

	s.tick(ctx)
	assert.True(t, s.LastUpdate().IsZero(), "failed send does not move current")

	before := time.Now()
	s.tick(ctx)
	stepped := s.LastUpdate()
	assert.False(t, stepped.Before(before))

	time.Sleep(time.Millisecond)
	s.Cancel(0)
	assert.True(t, s.LastUpdate().After(stepped))
}

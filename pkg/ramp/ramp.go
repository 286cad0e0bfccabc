// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ramp drives a commanded value toward a target at a bounded rate.
//
// The scheduler is Idle while its current value equals the target and
// Ramping otherwise. While Ramping, a tick every Interval moves the current
// value by at most Rate*Interval and sends it. SetTarget never blocks on the
// loop; at most one target is remembered.
package ramp

import (
	"context"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// epsilon absorbs floating point drift when deciding the target is reached.
const epsilon = 1e-9

// DefaultInterval replaces a non-positive Config.Interval.
const DefaultInterval = 10 * time.Millisecond

// Config holds scheduler settings.
type Config struct {
	Enabled  bool
	Rate     float64 // units per second
	Interval time.Duration
}

// SendFunc delivers a commanded value to the device.
type SendFunc func(ctx context.Context, value float64) error

// Scheduler owns the ramp state and its background loop.
type Scheduler struct {
	cfg  Config
	send SendFunc
	log  log.FieldLogger

	// sendMu is held by a tick across its send so Cancel cannot return
	// while a superseded value is still on its way to the device.
	sendMu sync.Mutex

	mu       sync.Mutex
	current  float64
	target   float64
	ramping  bool
	failures uint64
	sent     uint64
	lastErr  error
	updated  time.Time

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a scheduler at rest at zero. A nil logger uses the logrus
// standard logger and a non-positive interval uses DefaultInterval.
func New(cfg Config, send SendFunc, logger log.FieldLogger) *Scheduler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Scheduler{
		cfg:  cfg,
		send: send,
		log:  logger.WithField("component", "ramp"),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// Step returns the largest change applied by a single tick.
func (s *Scheduler) Step() float64 {
	return s.cfg.Rate * s.cfg.Interval.Seconds()
}

// Start launches the tick loop. It runs until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return
	}
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop ends the tick loop and waits for it to exit. No tick fires after
// Stop returns.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// SetTarget replaces the target. With ramping disabled the value is sent
// immediately and any send error is returned; otherwise the loop is woken
// and SetTarget returns at once.
func (s *Scheduler) SetTarget(ctx context.Context, value float64) error {
	if !s.cfg.Enabled {
		s.mu.Lock()
		s.target = value
		s.ramping = false
		s.mu.Unlock()

		if err := s.send(ctx, value); err != nil {
			s.recordFailure(err, value)
			return err
		}

		s.mu.Lock()
		s.current = value
		s.sent++
		s.updated = time.Now()
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	s.target = value
	s.ramping = math.Abs(value-s.current) > epsilon
	if !s.ramping {
		s.target = s.current
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Cancel drops any ramp in progress and holds value as both current and
// target without sending it. The caller is responsible for commanding the
// device. If a tick is sending, Cancel waits for it to finish.
func (s *Scheduler) Cancel(value float64) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = value
	s.target = value
	s.ramping = false
	s.updated = time.Now()
}

// Current returns the last value successfully sent (or held by Cancel).
func (s *Scheduler) Current() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// LastUpdate returns when current last changed, or the zero time if it
// never has.
func (s *Scheduler) LastUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated
}

// Target returns the value being ramped toward.
func (s *Scheduler) Target() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Ramping reports whether ticks are still due.
func (s *Scheduler) Ramping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ramping
}

// Failures returns the number of failed sends and the most recent error.
func (s *Scheduler) Failures() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures, s.lastErr
}

// Sent returns the number of values successfully sent.
func (s *Scheduler) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	var ticker *time.Ticker
	var tickC <-chan time.Time
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tickC = nil, nil
		}
	}
	defer stopTicker()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-s.wake:
			if ticker == nil && s.Ramping() {
				ticker = time.NewTicker(s.cfg.Interval)
				tickC = ticker.C
			}
		case <-tickC:
			// Stop wins over a tick that became ready at the same time
			select {
			case <-s.stop:
				return
			default:
			}
			if !s.tick(ctx) {
				stopTicker()
			}
		}
	}
}

// tick performs one ramp step and reports whether further ticks are due.
func (s *Scheduler) tick(ctx context.Context) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if !s.ramping {
		s.mu.Unlock()
		return false
	}
	next := s.next()
	s.mu.Unlock()

	err := s.send(ctx, next)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failures++
		s.lastErr = err
		s.log.WithFields(log.Fields{"value": next, "err": err}).Warn("ramp step failed")
		return s.ramping
	}
	s.sent++
	s.current = next
	s.updated = time.Now()
	// SetTarget may have moved the target while the send was in flight
	s.ramping = math.Abs(s.target-s.current) > epsilon
	if !s.ramping {
		s.current = s.target
	}
	return s.ramping
}

// next computes the value after one step. Caller holds s.mu.
func (s *Scheduler) next() float64 {
	d := s.target - s.current
	step := s.Step()
	if math.Abs(d) <= step+epsilon {
		return s.target
	}
	return s.current + math.Copysign(step, d)
}

func (s *Scheduler) recordFailure(err error, value float64) {
	s.mu.Lock()
	s.failures++
	s.lastErr = err
	s.mu.Unlock()
	s.log.WithFields(log.Fields{"value": value, "err": err}).Warn("set target failed")
}

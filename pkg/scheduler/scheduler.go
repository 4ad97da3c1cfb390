// Cooperative epoch loop
//
// RunEpoch primes every axis against one start time and then busy-polls the
// clock, giving each unfinished axis one chance to step per pass until all of
// them are finished. A watchdog bounds the epoch; when it trips, or the
// caller cancels, every axis is forced finished and the loop returns.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package scheduler

import (
	"context"
	"sync"
	"time"

	"clockception-go/pkg/axis"
	"clockception-go/pkg/clock"
	"clockception-go/pkg/errors"
	"clockception-go/pkg/log"
)

// DefaultWatchdog is the longest an epoch may run.
const DefaultWatchdog = 120 * time.Second

// cancelCheckInterval is how many passes run between context checks.
const cancelCheckInterval = 1024

// EpochReport describes one finished epoch. Times are microseconds relative
// to Start unless noted.
type EpochReport struct {
	Epoch      uint64   `json:"epoch"`
	Start      uint64   `json:"start_us"` // absolute clock reading
	Elapsed    uint64   `json:"elapsed_us"`
	Passes     uint64   `json:"passes"`
	Forced     bool     `json:"forced"`
	FinishedAt []uint64 `json:"finished_at_us"`
	Steps      []uint64 `json:"steps"`
}

// Spread returns the gap between the first and last axis to finish among
// the axes that took at least one step.
func (r *EpochReport) Spread() uint64 {
	var lo, hi uint64
	seen := false
	for i, t := range r.FinishedAt {
		if r.Steps[i] == 0 {
			continue
		}
		if !seen || t < lo {
			lo = t
		}
		if !seen || t > hi {
			hi = t
		}
		seen = true
	}
	return hi - lo
}

// Observer is told about every epoch after its loop has returned.
type Observer interface {
	EpochFinished(report *EpochReport, err error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(report *EpochReport, err error)

func (f ObserverFunc) EpochFinished(report *EpochReport, err error) { f(report, err) }

// Scheduler runs epochs over a fixed set of axes.
type Scheduler struct {
	axes     []*axis.Axis
	clock    clock.Clock
	watchdog uint64
	logger   *log.Logger

	mu        sync.Mutex
	observers []Observer
	epoch     uint64
}

// New returns a scheduler ticking axes against c. A non-positive watchdog
// selects DefaultWatchdog.
func New(axes []*axis.Axis, c clock.Clock, watchdog time.Duration) *Scheduler {
	if watchdog <= 0 {
		watchdog = DefaultWatchdog
	}
	return &Scheduler{
		axes:     axes,
		clock:    c,
		watchdog: uint64(watchdog / time.Microsecond),
		logger:   log.GetLogger("scheduler"),
	}
}

// Watchdog returns the epoch time limit.
func (s *Scheduler) Watchdog() time.Duration { return clock.Duration(s.watchdog) }

// AddObserver registers o for every later epoch.
func (s *Scheduler) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// AllFinished reports whether no axis has work left.
func (s *Scheduler) AllFinished() bool {
	for _, a := range s.axes {
		if !a.Finished() {
			return false
		}
	}
	return true
}

// RunEpoch executes every queued instruction and returns once all axes are
// finished. The report is always complete. err is a WATCHDOG_TIMEOUT or
// CANCELLED error when the epoch was cut short, or RUNTIME if the loop
// panicked; queues are empty in every case.
func (s *Scheduler) RunEpoch(ctx context.Context) (*EpochReport, error) {
	s.mu.Lock()
	s.epoch++
	n := s.epoch
	s.mu.Unlock()

	report := &EpochReport{
		Epoch:      n,
		FinishedAt: make([]uint64, len(s.axes)),
		Steps:      make([]uint64, len(s.axes)),
	}
	s.logger.WithField("epoch", n).Debug("epoch start")

	err := s.loop(ctx, report)

	for _, a := range s.axes {
		a.Reset()
	}

	entry := s.logger.WithFields(log.Fields{
		"epoch":      n,
		"elapsed_ms": report.Elapsed / 1000,
		"passes":     report.Passes,
	})
	switch {
	case err == nil:
		entry.Debug("epoch finished")
	case errors.Is(err, errors.ErrCancelled):
		entry.WithError(err).Warn("epoch cancelled")
	default:
		entry.WithError(err).Error("epoch aborted")
	}

	s.notify(report, err)
	return report, err
}

func (s *Scheduler) loop(ctx context.Context, report *EpochReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
			s.forceAll()
			report.Forced = true
		}
	}()

	start := s.clock.Micros()
	report.Start = start
	if ctx.Err() != nil {
		s.forceAll()
		report.Forced = true
		return errors.CancelledError(ctx.Err())
	}
	for _, a := range s.axes {
		a.Prime(start)
	}

	now := start
	for !s.AllFinished() {
		now = s.clock.Micros()
		report.Passes++
		for i, a := range s.axes {
			if a.Finished() {
				continue
			}
			if a.Tick(now) {
				report.Steps[i]++
				if a.Finished() {
					report.FinishedAt[i] = now - start
				}
			}
		}

		if now-start >= s.watchdog {
			s.forceAll()
			report.Forced = true
			err = errors.WatchdogTimeoutError((now-start)/1000, s.watchdog/1000)
			break
		}
		if report.Passes%cancelCheckInterval == 0 {
			select {
			case <-ctx.Done():
				s.forceAll()
				report.Forced = true
				err = errors.CancelledError(ctx.Err())
			default:
			}
			if err != nil {
				break
			}
		}
	}
	report.Elapsed = now - start
	return err
}

func (s *Scheduler) forceAll() {
	for _, a := range s.axes {
		a.ForceFinished()
	}
}

func (s *Scheduler) notify(report *EpochReport, err error) {
	s.mu.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.WithError(errors.RecoverPanic(r)).Error("observer panicked")
				}
			}()
			o.EpochFinished(report, err)
		}()
	}
}

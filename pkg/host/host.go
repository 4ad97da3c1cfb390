// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package host runs the sculpture as a clock: it shows the time at start
// and plays one routine at every minute boundary.
package host

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"clockception-go/pkg/axis"
	"clockception-go/pkg/clock"
	"clockception-go/pkg/display"
	"clockception-go/pkg/errors"
	"clockception-go/pkg/log"
	"clockception-go/pkg/metrics"
	"clockception-go/pkg/safety"
	"clockception-go/pkg/scheduler"
	"clockception-go/pkg/sculpture"
)

// Chimer sounds the minute.
type Chimer interface {
	Sound(hour, minute int)
}

// Options configures a Host. Zero values select the defaults.
type Options struct {
	// Routine forces one routine by name every minute.
	Routine string
	// Seed seeds the routine picker. Zero seeds from the wall clock.
	Seed uint64
	// Safety receives epoch results and heartbeats.
	Safety *safety.Manager
	// Metrics receives the hand positions after every epoch.
	Metrics *metrics.SculptureMetrics
	// Chime sounds after every routine.
	Chime Chimer
}

// Host drives one sculpture from the wall clock.
type Host struct {
	sculpture *sculpture.Sculpture
	display   *display.Display
	safety    *safety.Manager
	metrics   *metrics.SculptureMetrics
	chime     Chimer
	forced    string
	rng       *rand.Rand
	previous  string
	logger    *log.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New returns a host for s.
func New(s *sculpture.Sculpture, opts Options) (*Host, error) {
	if opts.Routine != "" {
		if _, ok := display.Lookup(opts.Routine); !ok {
			return nil, errors.New(errors.ErrConfiguration, fmt.Sprintf("unknown routine %q", opts.Routine))
		}
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Host{
		sculpture: s,
		display:   display.New(s.Planner(), s.Config().FramePositions()),
		safety:    opts.Safety,
		metrics:   opts.Metrics,
		chime:     opts.Chime,
		forced:    opts.Routine,
		rng:       rand.New(rand.NewPCG(seed, seed>>1|1)),
		logger:    log.GetLogger("host"),
		now:       time.Now,
		after:     time.After,
	}, nil
}

// Display returns the display the host plans with.
func (h *Host) Display() *display.Display { return h.display }

// Previous returns the name of the last routine played.
func (h *Host) Previous() string { return h.previous }

// NextMinute returns the first minute boundary after t.
func NextMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute).Add(time.Minute)
}

// ShowTime moves every hand the short way to t with the configured default
// move.
func (h *Host) ShowTime(ctx context.Context, t display.Time) (*scheduler.EpochReport, error) {
	m := h.sculpture.Config().Motion
	d := h.display
	for _, a := range h.sculpture.Axes() {
		a.ResetSpeedFactors()
	}
	d.SetTimeAndFrameTargets(t)
	d.Planner().SetShortestDirection()
	if err := d.Planner().PlanEqualDuration(0, m.MaxSpeed, m.AccelFraction, m.DecelFraction); err != nil {
		d.Planner().ResetAll()
		return nil, err
	}
	return h.runEpoch(ctx)
}

// RunMinute plays one routine ending on t.
func (h *Host) RunMinute(ctx context.Context, t display.Time) (*scheduler.EpochReport, error) {
	if h.safety != nil {
		if err := h.safety.CheckOperational(); err != nil {
			return nil, err
		}
	}

	r, _ := display.Lookup(h.forced)
	if h.forced == "" {
		r = display.Pick(h.rng, t.Minute, h.previous)
	}
	if err := h.display.Run(r, t); err != nil {
		return nil, err
	}
	h.previous = r.Name

	report, err := h.runEpoch(ctx)
	if h.chime != nil && err == nil {
		h.chime.Sound(t.Hour, t.Minute)
	}
	return report, err
}

func (h *Host) runEpoch(ctx context.Context) (*scheduler.EpochReport, error) {
	report, err := h.sculpture.RunEpoch(ctx)
	if h.safety != nil {
		h.safety.EpochResult(report.Forced)
		h.safety.Heartbeat()
	}
	if h.metrics != nil {
		h.metrics.ObserveAxes(h.sculpture.Snapshots())
	}
	return report, err
}

// Run shows the current time, then plays a routine at every minute
// boundary until ctx is done or the safety manager shuts down. Forced
// epochs are logged and the loop carries on.
func (h *Host) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if h.safety != nil {
		stop := context.AfterFunc(h.safety.Context(), cancel)
		defer stop()
		h.safety.StartWatchdog()
		defer h.safety.StopWatchdog()
	}

	if _, err := h.ShowTime(ctx, display.FromTime(h.now())); err != nil {
		if err := h.check(ctx, err); err != nil {
			return err
		}
	}

	for {
		now := h.now()
		next := NextMinute(now)
		select {
		case <-ctx.Done():
			return h.stopped(ctx)
		case <-h.after(next.Sub(now)):
		}

		t := display.FromTime(next)
		report, err := h.RunMinute(ctx, t)
		if err := h.check(ctx, err); err != nil {
			return err
		}
		if report != nil {
			h.logger.WithFields(log.Fields{
				"routine": h.previous,
				"elapsed": clock.Duration(report.Elapsed),
				"spread":  clock.Duration(report.Spread()),
			}).Infof("%02d:%02d", t.Hour, t.Minute)
		}
	}
}

// check decides whether an epoch error ends the loop.
func (h *Host) check(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return h.stopped(ctx)
	case errors.Is(err, errors.ErrWatchdogTimeout), errors.Is(err, errors.ErrCapacity):
		h.logger.WithError(err).Warn("epoch did not complete")
		return nil
	default:
		return err
	}
}

func (h *Host) stopped(ctx context.Context) error {
	if h.safety != nil && h.safety.IsShutdown() {
		st := h.safety.GetStatus()
		return errors.New(errors.ErrCancelled, "sculpture shut down: "+st.ShutdownMsg)
	}
	return ctx.Err()
}

// TestHands turns every hand one revolution at the manual cadence, one
// after the other, so the wiring order can be checked by eye.
func (h *Host) TestHands(ctx context.Context) error {
	spr := h.sculpture.StepsPerRevolution()
	for i, a := range h.sculpture.Axes() {
		start := a.Position()
		h.logger.Info("testing hand %d", i)
		a.SetDirection(axis.CW)
		for _, target := range []int{start + spr/2, start} {
			if err := h.sculpture.Jog(ctx, i, target, axis.ManualKeepDirection); err != nil {
				return err
			}
		}
	}
	return nil
}

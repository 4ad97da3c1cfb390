// Motion planning for groups of axes
//
// The planner reads each axis' projected state, decides how many steps take
// it to its target, and fills the instruction queues so that the group moves
// in sync: all arriving together (equal duration), all moving at the same
// speed with delays absorbing the difference, or at raw per-axis speeds.
// After planning it re-derives every axis curve.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package planner

import (
	"fmt"

	"clockception-go/pkg/axis"
	"clockception-go/pkg/curve"
	"clockception-go/pkg/errors"
	"clockception-go/pkg/log"
)

// Planner plans motion for a fixed set of axes sharing one curve table.
type Planner struct {
	axes   []*axis.Axis
	table  *curve.Table
	logger *log.Logger

	steps    []int
	minSteps int
	maxSteps int
}

// New returns a planner for axes. Axis i uses row i of table.
func New(axes []*axis.Axis, table *curve.Table) *Planner {
	return &Planner{
		axes:   axes,
		table:  table,
		logger: log.GetLogger("planner"),
		steps:  make([]int, len(axes)),
	}
}

// Axes returns the planned axes.
func (p *Planner) Axes() []*axis.Axis { return p.axes }

// Table returns the curve table.
func (p *Planner) Table() *curve.Table { return p.table }

// StepsToTarget returns how many steps a takes from its projected position,
// in its projected direction, to reach its target plus extra whole
// revolutions.
func StepsToTarget(a *axis.Axis, extraRevolutions int) int {
	spr := a.Config().StepsPerRevolution
	target := a.TargetResidue()
	virtual := a.VirtualPosition()

	var steps int
	if a.VirtualDirection() == axis.CW {
		steps = target - virtual
	} else {
		steps = virtual - target
	}
	if steps < 0 {
		steps += spr
	}
	if extraRevolutions > 0 {
		steps += extraRevolutions * spr
	}
	return steps
}

// ComputeStepsToTarget evaluates StepsToTarget for every axis and records
// the batch minimum and maximum. Axes already at their target do not count
// toward the minimum; it is zero only when no axis moves.
func (p *Planner) ComputeStepsToTarget(extraRevolutions int) (min, max int) {
	p.minSteps, p.maxSteps = 0, 0
	for i, a := range p.axes {
		s := StepsToTarget(a, extraRevolutions)
		p.steps[i] = s
		if s > 0 && (p.minSteps == 0 || s < p.minSteps) {
			p.minSteps = s
		}
		if s > p.maxSteps {
			p.maxSteps = s
		}
	}
	return p.minSteps, p.maxSteps
}

// Steps returns the step count last computed for axis i.
func (p *Planner) Steps(i int) int { return p.steps[i] }

// MinSteps returns the smallest non-zero step count of the last batch.
func (p *Planner) MinSteps() int { return p.minSteps }

// MaxSteps returns the largest step count of the last batch.
func (p *Planner) MaxSteps() int { return p.maxSteps }

// Interval converts a speed in steps per second to a step interval in
// microseconds. Speeds below one step per second are raised to one.
func Interval(stepsPerSecond int) int {
	if stepsPerSecond < 1 {
		stepsPerSecond = 1
	}
	return 1_000_000 / stepsPerSecond
}

// segments is one axis' split of a move into its three phases.
type segments struct {
	accel, cruise, decel int
}

// enqueueMove queues the non-empty phases of seg at interval and records the
// curve factors they need. The first enqueue error is returned; phases after
// it are not queued.
func (p *Planner) enqueueMove(a *axis.Axis, seg segments, interval int) error {
	def := p.table.Default()
	// A plan stacked behind an earlier accelerate keeps that curve.
	stacked := hasAccelerate(a)
	if seg.accel > 0 {
		if err := a.Enqueue(axis.Accelerate, seg.accel, interval); err != nil {
			return err
		}
		a.SetAccelSpeedFactor(def.SpeedFactor(interval), interval)
	}
	if seg.cruise > 0 {
		if err := a.Enqueue(axis.Cruise, seg.cruise, interval); err != nil {
			return err
		}
	}
	if seg.decel > 0 {
		if err := a.Enqueue(axis.Decelerate, seg.decel, interval); err != nil {
			return err
		}
		if seg.accel <= 0 && !stacked {
			// Without an accelerate phase the curve is derived for the
			// decelerate phase itself.
			a.SetAccelSpeedFactor(def.SpeedFactor(interval), interval)
		}
		a.SetAccelVsDecelSpeedFactor(float64(interval) / float64(a.AccelSpeed()))
	}
	return nil
}

func hasAccelerate(a *axis.Axis) bool {
	for _, in := range a.Pending() {
		if in.Kind == axis.Accelerate {
			return true
		}
	}
	return false
}

// split divides steps into accelerate, cruise and decelerate phases from
// the already truncated accel and cruise lengths. Cruise is clamped so the
// phases never exceed steps; without a decelerate phase cruise takes the
// rest.
func split(steps int, accelFrac, decelFrac float64, accel, cruise int) segments {
	if accelFrac <= 0 || accel < 0 {
		accel = 0
	}
	if accel > steps {
		accel = steps
	}
	remaining := steps - accel
	if decelFrac <= 0 {
		cruise = remaining
	}
	if cruise < 0 {
		cruise = 0
	}
	if cruise > remaining {
		cruise = remaining
	}
	remaining -= cruise
	seg := segments{accel: accel, cruise: cruise}
	if decelFrac > 0 {
		seg.decel = remaining
	} else {
		seg.cruise += remaining
	}
	return seg
}

// PlanEqualDuration plans every axis so that all of them finish together.
// The axis with the most steps cruises at maxSpeed steps per second; the
// others cruise proportionally slower. Axes already at their target get no
// instructions.
func (p *Planner) PlanEqualDuration(extraRevolutions, maxSpeed int, accelFrac, decelFrac float64) error {
	_, maxSteps := p.ComputeStepsToTarget(extraRevolutions)

	var first error
	for i, a := range p.axes {
		steps := p.steps[i]
		if steps == 0 {
			continue
		}
		speed := int(float64(steps) / float64(maxSteps) * float64(maxSpeed))
		interval := Interval(speed)

		seg := split(steps, accelFrac, decelFrac,
			int(float64(steps)*accelFrac),
			int(float64(steps)*(1-accelFrac-decelFrac)))
		if err := p.enqueueMove(a, seg, interval); err != nil && first == nil {
			first = err
		}
	}
	p.CorrectCurves()

	p.logger.WithFields(log.Fields{
		"max_steps": maxSteps,
		"max_speed": maxSpeed,
		"accel":     accelFrac,
		"decel":     decelFrac,
	}).Debug("planned equal duration")
	return first
}

// PlanWithDelays plans every axis at the same speed. Axes with fewer steps
// wait out the difference with a Delay, either before moving (so all arrive
// together) or after (so all depart together). When delaying at the start
// the accelerate and decelerate phases are sized from the shortest move so
// every axis shares them.
func (p *Planner) PlanWithDelays(extraRevolutions, maxSpeed int, accelFrac, decelFrac float64, delayAtStart bool) error {
	minSteps, maxSteps := p.ComputeStepsToTarget(extraRevolutions)
	interval := Interval(maxSpeed)
	cruiseFrac := 1 - accelFrac - decelFrac

	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	for i, a := range p.axes {
		steps := p.steps[i]
		if steps == 0 {
			continue
		}
		delay := maxSteps - steps

		var accel, cruise int
		if delayAtStart {
			accel = int(float64(minSteps) * accelFrac)
			cruise = int(float64(minSteps)*cruiseFrac + float64(steps-minSteps))
		} else {
			accel = int(float64(steps) * accelFrac)
			cruise = int(float64(steps) * cruiseFrac)
		}
		seg := split(steps, accelFrac, decelFrac, accel, cruise)

		// A delay step stands in for a cruise step, so it waits as long.
		wait := interval + int(a.Config().CruiseCompensation)
		if delay > 0 && delayAtStart {
			if err := a.Enqueue(axis.Delay, delay, wait); err != nil {
				record(err)
				continue
			}
		}
		if err := p.enqueueMove(a, seg, interval); err != nil {
			record(err)
			continue
		}
		if delay > 0 && !delayAtStart {
			record(a.Enqueue(axis.Delay, delay, wait))
		}
	}
	p.CorrectCurves()

	p.logger.WithFields(log.Fields{
		"min_steps":      minSteps,
		"max_steps":      maxSteps,
		"interval":       interval,
		"delay_at_start": delayAtStart,
	}).Debug("planned with delays")
	return first
}

// PlanFixedSpeedBatch queues one raw Cruise or Delay instruction per axis.
// speeds are in steps per second.
func (p *Planner) PlanFixedSpeedBatch(kinds []axis.Kind, steps, speeds []int) error {
	if len(kinds) != len(p.axes) || len(steps) != len(p.axes) || len(speeds) != len(p.axes) {
		return errors.New(errors.ErrConfiguration,
			fmt.Sprintf("batch needs %d entries, got kinds=%d steps=%d speeds=%d",
				len(p.axes), len(kinds), len(steps), len(speeds)))
	}
	var first error
	for i, a := range p.axes {
		if kinds[i] != axis.Cruise && kinds[i] != axis.Delay {
			if first == nil {
				first = errors.New(errors.ErrConfiguration,
					fmt.Sprintf("fixed speed batch cannot queue %s", kinds[i])).SetAxis(i)
			}
			continue
		}
		if err := a.Enqueue(kinds[i], steps[i], Interval(speeds[i])); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PlanSameSpeed queues the same Cruise on every axis.
func (p *Planner) PlanSameSpeed(steps, speed int) error {
	var first error
	for _, a := range p.axes {
		if err := a.Enqueue(axis.Cruise, steps, Interval(speed)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// CorrectCurves re-derives every axis curve from its speed factor.
func (p *Planner) CorrectCurves() {
	for i, a := range p.axes {
		p.table.Derive(i, a.AccelSpeedFactor())
	}
}

// SetDirectionAll sets every axis to d.
func (p *Planner) SetDirectionAll(d axis.Direction) {
	for _, a := range p.axes {
		a.SetDirection(d)
	}
}

// ShortestDirection returns the direction that reaches the target of a in
// the fewest steps. Exactly half a revolution goes clockwise.
func ShortestDirection(a *axis.Axis) axis.Direction {
	spr := a.Config().StepsPerRevolution
	cw := a.TargetResidue() - a.VirtualPosition()
	if cw < 0 {
		cw += spr
	}
	if cw <= spr/2 {
		return axis.CW
	}
	return axis.CCW
}

// SetShortestDirection points every axis the short way to its target.
func (p *Planner) SetShortestDirection() {
	for _, a := range p.axes {
		a.SetDirection(ShortestDirection(a))
	}
}

// SetTargets assigns targets to the axes in order. Extra values are ignored.
func (p *Planner) SetTargets(targets []int) {
	for i, t := range targets {
		if i >= len(p.axes) {
			break
		}
		p.axes[i].SetTarget(t)
	}
}

// ResetAll clears every queue.
func (p *Planner) ResetAll() {
	for _, a := range p.axes {
		a.Reset()
	}
}

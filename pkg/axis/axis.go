// Stepper axis state machine
//
// An Axis owns one clock hand: its instruction queue, the projected position
// the planner sees, the committed position the hardware has reached, and the
// step timing that Tick advances one pulse at a time.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package axis

import (
	"clockception-go/pkg/curve"
	"clockception-go/pkg/errors"
	"clockception-go/pkg/gpio"
	"clockception-go/pkg/log"
)

// Config holds the per-machine constants shared by every axis.
type Config struct {
	StepsPerRevolution int
	QueueCapacity      int
	MinStepInterval    uint64 // us, floor for every computed interval
	ManualStepInterval uint64 // us, cadence of RunManual
	CruiseCompensation uint64 // us added to every cruise interval
}

// DefaultConfig returns the constants of the reference machine.
func DefaultConfig() Config {
	return Config{
		StepsPerRevolution: 4320,
		QueueCapacity:      10,
		MinStepInterval:    250,
		ManualStepInterval: 500,
		CruiseCompensation: 4,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.StepsPerRevolution <= 0 {
		c.StepsPerRevolution = d.StepsPerRevolution
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
}

// Axis is one stepper-driven hand. It is not safe for concurrent use; the
// planner and scheduler take turns on the same goroutine.
type Axis struct {
	id       int
	step     gpio.Line
	dir      gpio.Line
	inverted bool
	cfg      Config
	curve    *curve.Curve
	logger   *log.Logger

	current int
	virtual int
	target  int

	direction        Direction
	virtualDirection Direction

	queue []Instruction
	next  int

	finished bool
	kind     Kind
	speed    int
	steps    int // step count of the running instruction

	accelSpeedFactor        float64
	accelVsDecelSpeedFactor float64
	accelSpeed              int

	stepInterval uint64
	lastStepTime uint64
	remaining    int
	taken        int
}

// New creates an axis driving the given lines. c is the axis' row of the
// curve table; it is read on every accelerate and decelerate step.
func New(id int, step, dir gpio.Line, inverted bool, cfg Config, c *curve.Curve) *Axis {
	cfg.normalize()
	a := &Axis{
		id:       id,
		step:     step,
		dir:      dir,
		inverted: inverted,
		cfg:      cfg,
		curve:    c,
		logger:   log.GetLogger("axis"),
		queue:    make([]Instruction, 0, cfg.QueueCapacity),
	}
	step.Low()
	dir.Low()
	a.Reset()
	a.accelSpeedFactor = 1
	a.accelVsDecelSpeedFactor = 1
	a.SetDirection(CW)
	return a
}

func (a *Axis) ID() int              { return a.id }
func (a *Axis) Config() Config       { return a.cfg }
func (a *Axis) Inverted() bool       { return a.inverted }
func (a *Axis) Finished() bool       { return a.finished }
func (a *Axis) Position() int        { return a.current }
func (a *Axis) VirtualPosition() int { return a.virtual }
func (a *Axis) Target() int          { return a.target }

// SetTarget stores the goal position. Values outside one revolution are kept
// as given; only their residue is used.
func (a *Axis) SetTarget(p int) { a.target = p }

// TargetResidue returns the target folded into [0, StepsPerRevolution).
func (a *Axis) TargetResidue() int { return a.wrap(a.target) }

func (a *Axis) Direction() Direction        { return a.direction }
func (a *Axis) VirtualDirection() Direction { return a.virtualDirection }

// SetDirection sets both the physical and the projected direction and drives
// the dir line. The line is low when the direction equals the inversion flag.
func (a *Axis) SetDirection(d Direction) {
	a.direction = d
	a.virtualDirection = d
	a.writeDir()
}

func (a *Axis) writeDir() {
	gpio.Write(a.dir, bool(a.direction) != a.inverted)
}

// SetPosition overrides the committed position, for instance after the
// operator has adjusted a hand by hand. The queue is cleared.
func (a *Axis) SetPosition(p int) {
	a.current = a.wrap(p)
	a.Reset()
}

func (a *Axis) AccelSpeedFactor() float64        { return a.accelSpeedFactor }
func (a *Axis) AccelVsDecelSpeedFactor() float64 { return a.accelVsDecelSpeedFactor }
func (a *Axis) AccelSpeed() int                  { return a.accelSpeed }

// SetAccelSpeedFactor records the factor applied to the default curve when
// this axis' curve is next derived, and the cruise interval it targets.
func (a *Axis) SetAccelSpeedFactor(factor float64, interval int) {
	a.accelSpeedFactor = factor
	a.accelSpeed = interval
}

// SetAccelVsDecelSpeedFactor sets the multiplier applied to decelerate
// intervals.
func (a *Axis) SetAccelVsDecelSpeedFactor(f float64) { a.accelVsDecelSpeedFactor = f }

// Pending returns a copy of the queued instructions.
func (a *Axis) Pending() []Instruction {
	out := make([]Instruction, len(a.queue))
	copy(out, a.queue)
	return out
}

// QueueLen returns the number of queued instructions.
func (a *Axis) QueueLen() int { return len(a.queue) }

// Reset clears the queue and all step timing. The projected position falls
// back to the committed one.
func (a *Axis) Reset() {
	a.queue = a.queue[:0]
	a.next = 0
	a.virtual = a.current
	a.virtualDirection = a.direction
	a.finished = true
	a.kind = Cruise
	a.speed = 0
	a.steps = 0
	a.remaining = 0
	a.taken = 0
	a.stepInterval = 0
	a.lastStepTime = 0
}

// ResetSpeedFactors returns the curve factors to identity.
func (a *Axis) ResetSpeedFactors() {
	a.accelSpeedFactor = 1
	a.accelVsDecelSpeedFactor = 1
	a.accelSpeed = 0
}

// Enqueue appends an instruction. Step counts and speeds below one are
// raised to one. A full queue leaves the axis untouched and returns a
// CAPACITY error.
func (a *Axis) Enqueue(kind Kind, steps, speed int) error {
	if len(a.queue) >= a.cfg.QueueCapacity {
		err := errors.CapacityError(a.id, a.cfg.QueueCapacity)
		a.logger.WithFields(log.Fields{"axis": a.id, "kind": kind.String()}).Warn(err.Error())
		return err
	}
	// A direction switch carries no timing, so its counts are not checked.
	quiet := kind == SwitchDirection
	if steps < 1 {
		if !quiet {
			a.logger.Debug("%v", errors.ConfigurationError(a.id, "steps", steps))
		}
		steps = 1
	}
	if speed < 1 {
		if !quiet {
			a.logger.Debug("%v", errors.ConfigurationError(a.id, "speed", speed))
		}
		speed = 1
	}

	a.queue = append(a.queue, Instruction{Kind: kind, Steps: steps, Speed: speed})

	switch {
	case kind.Moves():
		if a.virtualDirection == CW {
			a.virtual = a.wrap(a.virtual + steps)
		} else {
			a.virtual = a.wrap(a.virtual - steps)
		}
	case kind == SwitchDirection:
		a.virtualDirection = !a.virtualDirection
	}
	a.finished = false
	return nil
}

// Prime loads the first instruction and starts its timing at now.
func (a *Axis) Prime(now uint64) {
	if a.finished {
		return
	}
	a.lastStepTime = now
	a.remaining = 0
	a.taken = 0
	a.advance()
}

// advance commits the running instruction and loads the next one, consuming
// direction switches in place.
func (a *Axis) advance() {
	if a.kind.Moves() && a.taken > 0 {
		if a.direction == CW {
			a.current = a.wrap(a.current + a.taken)
		} else {
			a.current = a.wrap(a.current - a.taken)
		}
	}
	a.taken = 0

	for a.next < len(a.queue) {
		ins := a.queue[a.next]
		a.next++
		if ins.Kind == SwitchDirection {
			a.direction = !a.direction
			a.writeDir()
			continue
		}
		a.kind = ins.Kind
		a.speed = ins.Speed
		a.steps = ins.Steps
		a.remaining = ins.Steps
		a.stepInterval = a.interval()
		return
	}

	// Queue exhausted. Reset keeps the projected direction in line with the
	// physical one, which already carries every executed switch.
	a.Reset()
}

// interval computes the wait before the next step of the running
// instruction.
func (a *Axis) interval() uint64 {
	var iv uint64
	switch a.kind {
	case Delay:
		iv = uint64(a.speed)
	case Cruise:
		iv = uint64(a.speed) + a.cfg.CruiseCompensation
	case Accelerate:
		iv = uint64(a.curve[curve.Index(a.taken, a.steps)])
	case Decelerate:
		base := a.curve[curve.Index(a.remaining, a.steps)]
		iv = uint64(float64(base) * a.accelVsDecelSpeedFactor)
	}
	if iv < a.cfg.MinStepInterval {
		iv = a.cfg.MinStepInterval
	}
	return iv
}

// StepInterval returns the current wait between steps in microseconds.
func (a *Axis) StepInterval() uint64 { return a.stepInterval }

// Tick takes at most one step if one is due at now and reports whether it
// did. It never blocks.
func (a *Axis) Tick(now uint64) bool {
	if a.finished || now-a.lastStepTime < a.stepInterval {
		return false
	}
	a.lastStepTime = now
	if a.kind != Delay {
		gpio.Pulse(a.step)
	}
	a.remaining--
	a.taken++
	if a.remaining <= 0 {
		a.advance()
	} else {
		a.stepInterval = a.interval()
	}
	return true
}

// ForceFinished abandons the queue. Steps already taken by the running
// instruction are committed so the position stays true to the hardware.
func (a *Axis) ForceFinished() {
	if !a.finished && a.kind.Moves() && a.taken > 0 {
		if a.direction == CW {
			a.current = a.wrap(a.current + a.taken)
		} else {
			a.current = a.wrap(a.current - a.taken)
		}
	}
	a.Reset()
}

// RunManual takes one step toward the target if the manual cadence allows
// it at now, bypassing the queue. It reports whether a step was taken.
func (a *Axis) RunManual(mode ManualMode, now uint64) bool {
	target := a.TargetResidue()
	if a.current == target {
		return false
	}
	if now-a.lastStepTime < a.cfg.ManualStepInterval {
		return false
	}

	d := a.direction
	if mode == ManualQuickest {
		half := a.cfg.StepsPerRevolution / 2
		diff := a.current - target
		switch {
		case diff > half:
			d = CW
		case diff < -half:
			d = CCW
		case diff > 0:
			d = CCW
		default:
			d = CW
		}
	}
	a.SetDirection(d)

	if d == CW {
		a.current = a.wrap(a.current + 1)
	} else {
		a.current = a.wrap(a.current - 1)
	}
	a.virtual = a.current
	gpio.Pulse(a.step)
	a.lastStepTime = now
	return true
}

// Snapshot is a read-only copy of the axis state for observers.
type Snapshot struct {
	ID              int     `json:"id"`
	Position        int     `json:"position"`
	VirtualPosition int     `json:"virtual_position"`
	Target          int     `json:"target"`
	Direction       string  `json:"direction"`
	Finished        bool    `json:"finished"`
	Queued          int     `json:"queued"`
	SpeedFactor     float64 `json:"speed_factor"`
}

// Snapshot returns the current state.
func (a *Axis) Snapshot() Snapshot {
	return Snapshot{
		ID:              a.id,
		Position:        a.current,
		VirtualPosition: a.virtual,
		Target:          a.TargetResidue(),
		Direction:       a.direction.String(),
		Finished:        a.finished,
		Queued:          len(a.queue),
		SpeedFactor:     a.accelSpeedFactor,
	}
}

func (a *Axis) wrap(p int) int {
	spr := a.cfg.StepsPerRevolution
	p %= spr
	if p < 0 {
		p += spr
	}
	return p
}

// Package display turns wall-clock time into hand targets and plans the
// moves that show it. The last two axes are the hour and minute hands of
// the centre clock; every other axis is a frame hand drawn around it.
package display

import (
	"math"
	"time"

	"clockception-go/pkg/axis"
	"clockception-go/pkg/log"
	"clockception-go/pkg/planner"
)

// Time is the hour and minute shown on the sculpture.
type Time struct {
	Hour   int
	Minute int
}

// FromTime returns the hour and minute of t.
func FromTime(t time.Time) Time {
	return Time{Hour: t.Hour(), Minute: t.Minute()}
}

// HourSteps returns the hour hand position for hour:minute. The hand
// creeps between hour marks with the minute.
func HourSteps(hour, minute, stepsPerRevolution int) int {
	spr := float64(stepsPerRevolution)
	return int(float64(hour%12)/12*spr + math.Floor(float64(minute)/60/12*spr))
}

// MinuteSteps returns the minute hand position.
func MinuteSteps(minute, stepsPerRevolution int) int {
	return int(float64(minute) / 60 * float64(stepsPerRevolution))
}

// Display plans moves for one sculpture.
type Display struct {
	planner *planner.Planner
	frame   []int
	logger  *log.Logger
}

// New returns a display for the axes of p. frame holds the frame position
// of every frame hand; entries for the hour and minute hands are ignored.
func New(p *planner.Planner, frame []int) *Display {
	return &Display{planner: p, frame: frame, logger: log.GetLogger("display")}
}

// Planner returns the underlying planner.
func (d *Display) Planner() *planner.Planner { return d.planner }

func (d *Display) axes() []*axis.Axis { return d.planner.Axes() }

func (d *Display) spr() int { return d.axes()[0].Config().StepsPerRevolution }

// frameCount is the number of frame hands.
func (d *Display) frameCount() int {
	if n := len(d.axes()) - 2; n > 0 {
		return n
	}
	return 0
}

// SetFrameTargets points every frame hand at its frame position.
func (d *Display) SetFrameTargets() {
	axes := d.axes()
	for i := 0; i < d.frameCount() && i < len(d.frame); i++ {
		axes[i].SetTarget(d.frame[i])
	}
}

// SetTimeTargets points the hour and minute hands at t.
func (d *Display) SetTimeTargets(t Time) {
	axes := d.axes()
	if len(axes) < 2 {
		return
	}
	spr := d.spr()
	axes[len(axes)-2].SetTarget(HourSteps(t.Hour, t.Minute, spr))
	axes[len(axes)-1].SetTarget(MinuteSteps(t.Minute, spr))
}

// SetTimeAndFrameTargets sets the targets of every hand for t.
func (d *Display) SetTimeAndFrameTargets(t Time) {
	d.SetFrameTargets()
	d.SetTimeTargets(t)
}

// ShowTimeEqualDuration moves every hand to show t, all arriving together.
// The directions already set on the axes are kept.
func (d *Display) ShowTimeEqualDuration(t Time, extraRevolutions, maxSpeed int, accelFrac, decelFrac float64) error {
	d.SetTimeAndFrameTargets(t)
	d.logger.WithFields(log.Fields{"hour": t.Hour, "minute": t.Minute, "extra": extraRevolutions}).Debug("show time, equal duration")
	return d.planner.PlanEqualDuration(extraRevolutions, maxSpeed, accelFrac, decelFrac)
}

// ShowTimeWithDelays moves every hand to show t at one speed, departing
// together.
func (d *Display) ShowTimeWithDelays(t Time, extraRevolutions, maxSpeed int, accelFrac, decelFrac float64) error {
	d.SetTimeAndFrameTargets(t)
	d.logger.WithFields(log.Fields{"hour": t.Hour, "minute": t.Minute, "extra": extraRevolutions}).Debug("show time, with delays")
	return d.planner.PlanWithDelays(extraRevolutions, maxSpeed, accelFrac, decelFrac, false)
}

// ToZero turns every hand the short way to 12 o'clock.
func (d *Display) ToZero() error {
	d.planner.SetTargets(make([]int, len(d.axes())))
	d.planner.SetShortestDirection()
	return d.planner.PlanEqualDuration(0, 1000, 0.5, 0.5)
}

// ToBottom turns every hand clockwise to 6 o'clock.
func (d *Display) ToBottom() error {
	d.setAllTargets(d.spr() / 2)
	d.planner.SetDirectionAll(axis.CW)
	return d.planner.PlanEqualDuration(0, 1000, 0.5, 0.5)
}

func (d *Display) setAllTargets(p int) {
	for _, a := range d.axes() {
		a.SetTarget(p)
	}
}

package display

import (
	"math/rand/v2"

	"clockception-go/pkg/axis"
	"clockception-go/pkg/errors"
	"clockception-go/pkg/planner"
)

// Routine is one choreography. Plan queues every instruction of the
// routine, ending with the hands showing t; the caller runs the epoch.
type Routine struct {
	Name string
	Long bool
	Plan func(d *Display, t Time) error
}

// Short routines run every minute, long ones on multiples of five minutes.
var (
	Short = []Routine{
		{Name: "one_revolution", Plan: (*Display).OneRevolution},
		{Name: "delayed_revolution", Plan: (*Display).DelayedRevolution},
		{Name: "wave", Plan: (*Display).Wave},
		{Name: "staggered_revolution", Plan: (*Display).StaggeredRevolution},
	}
	Long = []Routine{
		{Name: "stretch_and_turn", Long: true, Plan: (*Display).StretchAndTurn},
		{Name: "opposite_rotation", Long: true, Plan: (*Display).OppositeRotation},
		{Name: "opposite_speeds", Long: true, Plan: (*Display).OppositeSpeeds},
	}
)

// Lookup returns the routine called name.
func Lookup(name string) (Routine, bool) {
	for _, set := range [][]Routine{Short, Long} {
		for _, r := range set {
			if r.Name == name {
				return r, true
			}
		}
	}
	return Routine{}, false
}

// Pick chooses the routine for minute. It never returns previous unless it
// is the only candidate.
func Pick(rng *rand.Rand, minute int, previous string) Routine {
	set := Short
	if minute%5 == 0 {
		set = Long
	}
	candidates := make([]Routine, 0, len(set))
	for _, r := range set {
		if r.Name != previous {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return set[0]
	}
	return candidates[rng.IntN(len(candidates))]
}

// OneRevolution turns every hand clockwise one extra revolution onto the
// time.
func (d *Display) OneRevolution(t Time) error {
	d.planner.SetDirectionAll(axis.CW)
	return d.ShowTimeEqualDuration(t, 1, 400, 0.1, 0.2)
}

// DelayedRevolution turns every hand to 3 o'clock so they arrive together,
// then on to the time so they depart together.
func (d *Display) DelayedRevolution(t Time) error {
	const speed = 800
	d.planner.SetDirectionAll(axis.CW)
	d.setAllTargets(d.spr() / 4)
	if err := d.planner.PlanWithDelays(0, speed, 1.0, 0, true); err != nil {
		return err
	}
	return d.ShowTimeWithDelays(t, 0, speed, 0, 0.7)
}

// StaggeredRevolution starts the hands one after another, a quarter
// revolution apart, and lands them on the time together.
func (d *Display) StaggeredRevolution(t Time) error {
	const speed = 900
	d.planner.SetDirectionAll(axis.CW)
	interval := planner.Interval(speed)
	for i, a := range d.axes() {
		if delay := d.spr() / 4 * i; delay > 0 {
			if err := a.Enqueue(axis.Delay, delay, interval); err != nil {
				return err
			}
		}
	}
	return d.ShowTimeEqualDuration(t, 1, speed, 0.5, 0.5)
}

// waveOrder is the order in which the frame hands of the reference machine
// swing, walking around the frame.
var waveOrder = []int{0, 3, 2, 5, 4, 7, 6, 9, 8, 11, 10, 13, 12, 15, 14, 1}

// Wave swings the frame hands out and back one after another while the
// hour and minute hands cruise to the time.
func (d *Display) Wave(t Time) error {
	const interval = 8000
	axes := d.axes()
	spr := d.spr()
	angle := int(0.012 * float64(spr))
	if angle < 1 {
		angle = 1
	}
	lag := angle / 2

	order := waveOrder
	if d.frameCount() != len(waveOrder) {
		order = make([]int, d.frameCount())
		for i := range order {
			order[i] = i
		}
	}

	d.SetTimeAndFrameTargets(t)
	for n, idx := range order {
		a := axes[idx]
		if n%4 == 1 || n%4 == 2 {
			a.SetDirection(axis.CCW)
		} else {
			a.SetDirection(axis.CW)
		}
		a.SetAccelSpeedFactor(5, interval)
		a.SetAccelVsDecelSpeedFactor(1)

		var moves []axis.Instruction
		if n > 0 {
			moves = append(moves, axis.Instruction{Kind: axis.Delay, Steps: lag * n, Speed: interval})
		}
		// Out, over to the other side, and back to where it started.
		for _, k := range []struct {
			kind  axis.Kind
			steps int
		}{
			{axis.Accelerate, angle}, {axis.Decelerate, angle}, {axis.SwitchDirection, 0},
			{axis.Accelerate, 2 * angle}, {axis.Decelerate, 2 * angle}, {axis.SwitchDirection, 0},
			{axis.Accelerate, angle}, {axis.Decelerate, angle},
		} {
			moves = append(moves, axis.Instruction{Kind: k.kind, Steps: k.steps, Speed: interval})
		}
		for _, m := range moves {
			if err := a.Enqueue(m.Kind, m.Steps, m.Speed); err != nil {
				return err
			}
		}
	}

	for _, a := range axes[d.frameCount():] {
		a.SetDirection(planner.ShortestDirection(a))
		if steps := planner.StepsToTarget(a, 0); steps > 0 {
			if err := a.Enqueue(axis.Cruise, steps, interval); err != nil {
				return err
			}
		}
	}
	d.planner.CorrectCurves()
	return nil
}

// StretchAndTurn stretches every pair of hands into a straight line, spins
// them two revolutions and lands them on the time.
func (d *Display) StretchAndTurn(t Time) error {
	const speed = 600
	d.planner.SetDirectionAll(axis.CW)
	for i, a := range d.axes() {
		if i%2 == 1 {
			a.SetTarget(d.spr() / 2)
		} else {
			a.SetTarget(0)
		}
	}
	if err := d.planner.PlanWithDelays(0, speed, 0.9, 0, true); err != nil {
		return err
	}
	if err := d.planner.PlanSameSpeed(2*d.spr(), speed); err != nil {
		return err
	}
	return d.ShowTimeEqualDuration(t, 1, speed, 0, 0.2)
}

// OppositeRotation gathers every hand at 12 o'clock, even hands clockwise
// and odd hands counter clockwise, spins them two revolutions against each
// other and lands them on the time.
func (d *Display) OppositeRotation(t Time) error {
	const speed = 800
	d.setOpposite()
	if err := d.planner.PlanWithDelays(1, speed, 1.0, 0, true); err != nil {
		return err
	}
	if err := d.planner.PlanSameSpeed(2*d.spr(), speed); err != nil {
		return err
	}
	return d.ShowTimeEqualDuration(t, 1, speed, 0, 0.2)
}

// OppositeSpeeds is OppositeRotation with the even hands turning one and a
// half revolutions at a little over half speed.
func (d *Display) OppositeSpeeds(t Time) error {
	const speed = 800
	d.setOpposite()
	if err := d.planner.PlanWithDelays(1, speed, 1.0, 0, true); err != nil {
		return err
	}
	n := len(d.axes())
	kinds, steps, speeds := make([]axis.Kind, n), make([]int, n), make([]int, n)
	for i := range kinds {
		kinds[i] = axis.Cruise
		if i%2 == 0 {
			steps[i] = d.spr() * 3 / 2
			speeds[i] = speed * 115 / 200
		} else {
			steps[i] = 2 * d.spr()
			speeds[i] = speed
		}
	}
	if err := d.planner.PlanFixedSpeedBatch(kinds, steps, speeds); err != nil {
		return err
	}
	return d.ShowTimeEqualDuration(t, 1, speed, 0, 0.4)
}

func (d *Display) setOpposite() {
	for i, a := range d.axes() {
		if i%2 == 0 {
			a.SetDirection(axis.CW)
		} else {
			a.SetDirection(axis.CCW)
		}
		a.SetTarget(0)
	}
}

// Run plans r for t. A routine that cannot be planned leaves every queue
// empty and its error keeps the code of the cause.
func (d *Display) Run(r Routine, t Time) error {
	for _, a := range d.axes() {
		a.ResetSpeedFactors()
	}
	if err := r.Plan(d, t); err != nil {
		d.planner.ResetAll()
		return errors.Wrap(err, errors.CodeOf(err), "plan "+r.Name).SetContext("routine", r.Name)
	}
	d.logger.Info("planned %s for %02d:%02d", r.Name, t.Hour, t.Minute)
	return nil
}

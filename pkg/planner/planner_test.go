package planner

import (
	"math"
	"reflect"
	"testing"

	"clockception-go/pkg/axis"
	"clockception-go/pkg/curve"
	"clockception-go/pkg/errors"
	"clockception-go/pkg/gpio"
)

func newRig(t *testing.T, n int) (*Planner, []*axis.Axis) {
	t.Helper()
	bank := gpio.NewSimBank()
	table := curve.NewTable(curve.Generate(curve.DefaultAccelerationRate), n)
	axes := make([]*axis.Axis, n)
	for i := range axes {
		axes[i] = axis.New(i, bank.Line(2*i), bank.Line(2*i+1), i%2 == 1, axis.DefaultConfig(), table.Curve(i))
	}
	return New(axes, table), axes
}

func TestStepsToTarget(t *testing.T) {
	tests := []struct {
		name    string
		current int
		target  int
		dir     axis.Direction
		extra   int
		want    int
	}{
		{"half revolution cw", 0, 2160, axis.CW, 0, 2160},
		{"cw behind", 100, 50, axis.CW, 0, 4270},
		{"ccw behind", 100, 50, axis.CCW, 0, 50},
		{"ccw ahead", 100, 150, axis.CCW, 0, 4270},
		{"already there", 700, 700, axis.CW, 0, 0},
		{"extra revolutions", 700, 700, axis.CCW, 2, 8640},
		{"target residue", 0, 4320 + 10, axis.CW, 1, 4330},
		{"negative extra ignored", 0, 10, axis.CW, -1, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, axes := newRig(t, 1)
			a := axes[0]
			a.SetPosition(tt.current)
			a.SetDirection(tt.dir)
			a.SetTarget(tt.target)
			if got := StepsToTarget(a, tt.extra); got != tt.want {
				t.Errorf("expected %d steps, got %d", tt.want, got)
			}
		})
	}
}

func TestStepsToTargetUsesProjectedState(t *testing.T) {
	_, axes := newRig(t, 1)
	a := axes[0]
	a.SetDirection(axis.CW)
	a.Enqueue(axis.Cruise, 1000, 1000)
	a.Enqueue(axis.SwitchDirection, 1, 1)
	a.SetTarget(900)

	// Projected at 1000 turning ccw: 100 steps back.
	if got := StepsToTarget(a, 0); got != 100 {
		t.Errorf("expected 100 steps from projected state, got %d", got)
	}
}

func TestComputeStepsToTargetBatch(t *testing.T) {
	p, axes := newRig(t, 3)
	p.SetDirectionAll(axis.CW)
	p.SetTargets([]int{500, 2000, 0, 99})
	min, max := p.ComputeStepsToTarget(0)
	if min != 500 || max != 2000 {
		t.Errorf("expected min=500 max=2000, got min=%d max=%d", min, max)
	}
	if p.Steps(0) != 500 || p.Steps(1) != 2000 || p.Steps(2) != 0 {
		t.Errorf("unexpected per-axis steps: %d %d %d", p.Steps(0), p.Steps(1), p.Steps(2))
	}
	if axes[2].Target() != 0 {
		t.Errorf("extra targets must be ignored")
	}
}

func TestPlanEqualDurationSpeeds(t *testing.T) {
	p, axes := newRig(t, 2)
	p.SetDirectionAll(axis.CW)
	p.SetTargets([]int{1000, 4000})

	if err := p.PlanEqualDuration(0, 800, 0.5, 0.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]axis.Instruction{
		{{Kind: axis.Accelerate, Steps: 500, Speed: 5000}, {Kind: axis.Decelerate, Steps: 500, Speed: 5000}},
		{{Kind: axis.Accelerate, Steps: 2000, Speed: 1250}, {Kind: axis.Decelerate, Steps: 2000, Speed: 1250}},
	}
	for i, a := range axes {
		if got := a.Pending(); !reflect.DeepEqual(got, want[i]) {
			t.Errorf("axis %d: expected %v, got %v", i, want[i], got)
		}
		if a.AccelVsDecelSpeedFactor() != 1 {
			t.Errorf("axis %d: expected decel factor 1, got %v", i, a.AccelVsDecelSpeedFactor())
		}
	}

	def := p.Table().Default()
	if got := p.Table().Curve(1)[curve.Samples-1]; got < 1249 || got > 1250 {
		t.Errorf("expected fast axis curve to end near 1250us, got %d", got)
	}
	if got := p.Table().Curve(0)[curve.Samples-1]; got < 4999 || got > 5000 {
		t.Errorf("expected slow axis curve to end near 5000us, got %d", got)
	}
	if axes[0].AccelSpeedFactor() != def.SpeedFactor(5000) {
		t.Errorf("unexpected speed factor %v", axes[0].AccelSpeedFactor())
	}
}

func TestPlanEqualDurationSkipsIdleAxes(t *testing.T) {
	p, axes := newRig(t, 2)
	p.SetTargets([]int{0, 300})
	if err := p.PlanEqualDuration(0, 1000, 0.2, 0.2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if axes[0].QueueLen() != 0 || !axes[0].Finished() {
		t.Errorf("idle axis should receive no instructions, got %v", axes[0].Pending())
	}
	if axes[1].VirtualPosition() != 300 {
		t.Errorf("expected projected position 300, got %d", axes[1].VirtualPosition())
	}
}

func TestPlanEqualDurationWithoutPhases(t *testing.T) {
	p, axes := newRig(t, 1)
	p.SetTargets([]int{10})
	if err := p.PlanEqualDuration(0, 500, 0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []axis.Instruction{{Kind: axis.Cruise, Steps: 10, Speed: 2000}}
	if got := axes[0].Pending(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPlanEqualDurationDeterministic(t *testing.T) {
	p, axes := newRig(t, 4)
	targets := []int{17, 2159, 4319, 3000}
	plan := func() [][]axis.Instruction {
		p.ResetAll()
		p.SetTargets(targets)
		p.SetShortestDirection()
		if err := p.PlanEqualDuration(1, 900, 0.3, 0.25); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := make([][]axis.Instruction, len(axes))
		for i, a := range axes {
			out[i] = a.Pending()
		}
		return out
	}
	first, second := plan(), plan()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("replanning changed the instructions:\n%v\n%v", first, second)
	}
	for i, a := range axes {
		if a.VirtualPosition() != targets[i] {
			t.Errorf("axis %d: expected projected position %d, got %d", i, targets[i], a.VirtualPosition())
		}
	}
}

func TestPlanWithDelaysAtStart(t *testing.T) {
	p, axes := newRig(t, 2)
	p.SetDirectionAll(axis.CW)
	p.SetTargets([]int{500, 2000})

	if err := p.PlanWithDelays(0, 1000, 0.2, 0.2, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]axis.Instruction{
		{
			{Kind: axis.Delay, Steps: 1500, Speed: 1004},
			{Kind: axis.Accelerate, Steps: 100, Speed: 1000},
			{Kind: axis.Cruise, Steps: 300, Speed: 1000},
			{Kind: axis.Decelerate, Steps: 100, Speed: 1000},
		},
		{
			{Kind: axis.Accelerate, Steps: 100, Speed: 1000},
			{Kind: axis.Cruise, Steps: 1800, Speed: 1000},
			{Kind: axis.Decelerate, Steps: 100, Speed: 1000},
		},
	}
	for i, a := range axes {
		if got := a.Pending(); !reflect.DeepEqual(got, want[i]) {
			t.Errorf("axis %d: expected %v, got %v", i, want[i], got)
		}
	}
	if *p.Table().Curve(0) != *p.Table().Curve(1) {
		t.Error("axes at the same speed must share the same curve")
	}
}

func TestPlanWithDelaysIgnoresIdleAxis(t *testing.T) {
	p, axes := newRig(t, 3)
	p.SetDirectionAll(axis.CW)
	p.SetTargets([]int{0, 500, 2000})

	if err := p.PlanWithDelays(0, 1000, 0.2, 0.2, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.MinSteps() != 500 {
		t.Errorf("expected min steps 500, got %d", p.MinSteps())
	}
	if axes[0].QueueLen() != 0 {
		t.Errorf("idle axis should receive no instructions, got %v", axes[0].Pending())
	}
	for i, a := range axes[1:] {
		var accel, decel int
		for _, in := range a.Pending() {
			switch in.Kind {
			case axis.Accelerate:
				accel += in.Steps
			case axis.Decelerate:
				decel += in.Steps
			}
		}
		if accel != 100 || decel != 100 {
			t.Errorf("axis %d: expected 100 step ramps, got accel=%d decel=%d", i+1, accel, decel)
		}
	}
}

func TestPlanWithDelaysAtEnd(t *testing.T) {
	p, axes := newRig(t, 2)
	p.SetDirectionAll(axis.CCW)
	p.SetTargets([]int{4320 - 400, 4320 - 1000})

	if err := p.PlanWithDelays(0, 500, 0.25, 0.25, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []axis.Instruction{
		{Kind: axis.Accelerate, Steps: 100, Speed: 2000},
		{Kind: axis.Cruise, Steps: 200, Speed: 2000},
		{Kind: axis.Decelerate, Steps: 100, Speed: 2000},
		{Kind: axis.Delay, Steps: 600, Speed: 2004},
	}
	if got := axes[0].Pending(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if n := axes[1].QueueLen(); n != 3 {
		t.Errorf("longest axis should not delay, got %d instructions", n)
	}
}

func TestPlanFixedSpeedBatch(t *testing.T) {
	p, axes := newRig(t, 3)
	err := p.PlanFixedSpeedBatch(
		[]axis.Kind{axis.Cruise, axis.Delay, axis.Cruise},
		[]int{100, 200, 300},
		[]int{1000, 500, 0},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	speeds := []int{1000, 2000, 1_000_000}
	for i, a := range axes {
		got := a.Pending()
		if len(got) != 1 || got[0].Speed != speeds[i] {
			t.Errorf("axis %d: expected speed %d, got %v", i, speeds[i], got)
		}
	}
}

func TestPlanFixedSpeedBatchRejectsBadInput(t *testing.T) {
	p, axes := newRig(t, 2)
	if err := p.PlanFixedSpeedBatch([]axis.Kind{axis.Cruise}, []int{1}, []int{1}); !errors.Is(err, errors.ErrConfiguration) {
		t.Errorf("expected configuration error for short batch, got %v", err)
	}
	err := p.PlanFixedSpeedBatch(
		[]axis.Kind{axis.Accelerate, axis.Cruise},
		[]int{10, 10},
		[]int{100, 100},
	)
	if !errors.Is(err, errors.ErrConfiguration) {
		t.Errorf("expected configuration error for accelerate, got %v", err)
	}
	if axes[0].QueueLen() != 0 || axes[1].QueueLen() != 1 {
		t.Errorf("expected only the valid entry queued")
	}
}

func TestPlanSameSpeedCapacity(t *testing.T) {
	p, axes := newRig(t, 2)
	for i := 0; i < axes[0].Config().QueueCapacity; i++ {
		if err := p.PlanSameSpeed(10, 1000); err != nil {
			t.Fatalf("unexpected error at %d: %v", i, err)
		}
	}
	if err := p.PlanSameSpeed(10, 1000); !errors.Is(err, errors.ErrCapacity) {
		t.Errorf("expected capacity error, got %v", err)
	}
}

func TestCorrectCurvesLaw(t *testing.T) {
	p, axes := newRig(t, 2)
	def := p.Table().Default()
	axes[0].SetAccelSpeedFactor(def.SpeedFactor(700), 700)
	axes[1].SetAccelSpeedFactor(def.SpeedFactor(3100), 3100)
	p.CorrectCurves()

	for i, s := range []int{700, 3100} {
		c := p.Table().Curve(i)
		for j := 0; j < curve.Samples; j++ {
			want := uint32(math.Floor(float64(def.At(j)) * (float64(s) / float64(def.EndSpeed()))))
			if c[j] != want {
				t.Fatalf("axis %d sample %d: expected %d, got %d", i, j, want, c[j])
			}
		}
	}
}

func TestShortestDirection(t *testing.T) {
	tests := []struct {
		current, target int
		want            axis.Direction
	}{
		{0, 2160, axis.CW},
		{0, 2161, axis.CCW},
		{4000, 100, axis.CW},
		{100, 4000, axis.CCW},
		{5, 5, axis.CW},
	}
	for _, tt := range tests {
		_, axes := newRig(t, 1)
		axes[0].SetPosition(tt.current)
		axes[0].SetTarget(tt.target)
		if got := ShortestDirection(axes[0]); got != tt.want {
			t.Errorf("%d -> %d: expected %v, got %v", tt.current, tt.target, tt.want, got)
		}
	}
}

func TestInterval(t *testing.T) {
	tests := map[int]int{800: 1250, 200: 5000, 3: 333333, 0: 1_000_000, -4: 1_000_000}
	for in, want := range tests {
		if got := Interval(in); got != want {
			t.Errorf("Interval(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestStackedPlanKeepsAccelerateCurve(t *testing.T) {
	p, axes := newRig(t, 1)
	a := axes[0]
	p.SetDirectionAll(axis.CW)
	p.SetTargets([]int{0})

	// Spin up to one revolution, then decelerate onto 1080 at half speed.
	if err := p.PlanWithDelays(1, 800, 1.0, 0, true); err != nil {
		t.Fatal(err)
	}
	a.SetTarget(1080)
	if err := p.PlanEqualDuration(0, 400, 0, 0.5); err != nil {
		t.Fatal(err)
	}

	if a.AccelSpeed() != 1250 {
		t.Errorf("accelerate speed should stay at 1250, got %d", a.AccelSpeed())
	}
	if got := a.AccelSpeedFactor(); got != 1250.0/1120.0 {
		t.Errorf("curve factor should come from the accelerate phase, got %v", got)
	}
	if got := a.AccelVsDecelSpeedFactor(); got != 2500.0/1250.0 {
		t.Errorf("expected decelerate factor 2, got %v", got)
	}
}

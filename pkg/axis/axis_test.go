package axis

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"clockception-go/pkg/curve"
	"clockception-go/pkg/errors"
	"clockception-go/pkg/gpio"
	"clockception-go/pkg/log"
)

type testAxis struct {
	*Axis
	step  *gpio.SimLine
	dir   *gpio.SimLine
	table *curve.Table
}

func newTestAxis(t *testing.T, inverted bool) *testAxis {
	t.Helper()
	bank := gpio.NewSimBank()
	table := curve.NewTable(curve.Generate(curve.DefaultAccelerationRate), 1)
	step, dir := bank.Line(1), bank.Line(2)
	a := New(0, step, dir, inverted, DefaultConfig(), table.Curve(0))
	return &testAxis{Axis: a, step: step, dir: dir, table: table}
}

// run primes the axis at start and drains it.
func run(t *testing.T, a *Axis, start uint64) uint64 {
	t.Helper()
	a.Prime(start)
	return drain(t, a, start)
}

// drain ticks the axis once per microsecond until it finishes and returns
// the time it finished at.
func drain(t *testing.T, a *Axis, start uint64) uint64 {
	t.Helper()
	now := start
	for !a.Finished() {
		now++
		a.Tick(now)
		if now-start > 600_000_000 {
			t.Fatalf("axis did not finish")
		}
	}
	return now
}

func TestEnqueueProjectsVirtualPosition(t *testing.T) {
	tests := []struct {
		name  string
		dir   Direction
		kind  Kind
		steps int
		want  int
	}{
		{"cw", CW, Cruise, 4000, 4000},
		{"cw wraps", CW, Accelerate, 4321, 1},
		{"ccw wraps", CCW, Decelerate, 100, 4220},
		{"delay holds", CW, Delay, 500, 0},
		{"switch holds", CW, SwitchDirection, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAxis(t, false)
			a.SetDirection(tt.dir)
			if err := a.Enqueue(tt.kind, tt.steps, 1000); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.VirtualPosition() != tt.want {
				t.Errorf("expected virtual position %d, got %d", tt.want, a.VirtualPosition())
			}
			if a.Position() != 0 {
				t.Errorf("enqueue must not move the hand, got %d", a.Position())
			}
			if a.Finished() {
				t.Error("expected axis to leave the finished state")
			}
		})
	}
}

func TestVirtualPositionStaysInRange(t *testing.T) {
	a := newTestAxis(t, false)
	rng := rand.New(rand.NewSource(7))
	kinds := []Kind{Cruise, Accelerate, Decelerate, Delay, SwitchDirection}
	for i := 0; i < 2000; i++ {
		if a.QueueLen() == a.Config().QueueCapacity {
			a.Reset()
		}
		steps := rng.Intn(20000) - 100
		if err := a.Enqueue(kinds[rng.Intn(len(kinds))], steps, 500); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v := a.VirtualPosition(); v < 0 || v >= 4320 {
			t.Fatalf("virtual position %d out of range after %d enqueues", v, i+1)
		}
	}
}

func TestEnqueueCapacity(t *testing.T) {
	a := newTestAxis(t, false)
	for i := 0; i < 10; i++ {
		if err := a.Enqueue(Cruise, 10, 1000); err != nil {
			t.Fatalf("enqueue %d: unexpected error: %v", i, err)
		}
	}
	before := a.VirtualPosition()

	err := a.Enqueue(Cruise, 10, 1000)
	if !errors.Is(err, errors.ErrCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if a.QueueLen() != 10 {
		t.Errorf("expected queue to stay at 10, got %d", a.QueueLen())
	}
	if a.VirtualPosition() != before {
		t.Errorf("rejected instruction moved virtual position %d -> %d", before, a.VirtualPosition())
	}
}

func TestEnqueueClampsInputs(t *testing.T) {
	a := newTestAxis(t, false)
	if err := a.Enqueue(Cruise, 0, -5); err != nil {
		t.Fatalf("clamped input must not error, got %v", err)
	}
	got := a.Pending()[0]
	if got.Steps != 1 || got.Speed != 1 {
		t.Errorf("expected steps=1 speed=1, got %+v", got)
	}
	if a.VirtualPosition() != 1 {
		t.Errorf("expected virtual position 1, got %d", a.VirtualPosition())
	}
}

func TestEnqueueClampLogging(t *testing.T) {
	var buf bytes.Buffer
	a := newTestAxis(t, false)
	a.logger = log.New("axis")
	a.logger.SetWriter(&buf)
	a.logger.SetLevel(log.DEBUG)

	if err := a.Enqueue(SwitchDirection, 0, 0); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("direction switch should clamp silently, got %q", buf.String())
	}

	if err := a.Enqueue(Delay, 0, 1000); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "CONFIGURATION") {
		t.Errorf("expected a configuration entry for the delay, got %q", buf.String())
	}
}

func TestTickCruiseTiming(t *testing.T) {
	a := newTestAxis(t, false)
	a.Enqueue(Cruise, 3, 1000)
	a.Prime(0)

	if a.StepInterval() != 1004 {
		t.Fatalf("expected cruise interval 1004, got %d", a.StepInterval())
	}
	if a.Tick(1003) {
		t.Error("step taken before interval elapsed")
	}
	if !a.Tick(1004) {
		t.Error("expected step at 1004")
	}
	end := drain(t, a.Axis, 1004)
	if end != 1004*3 {
		t.Errorf("expected finish at %d, got %d", 1004*3, end)
	}
	if a.step.Rises() != 3 {
		t.Errorf("expected 3 pulses, got %d", a.step.Rises())
	}
	if a.Position() != 3 {
		t.Errorf("expected position 3, got %d", a.Position())
	}
}

func TestDelayDoesNotStep(t *testing.T) {
	a := newTestAxis(t, false)
	a.Enqueue(Delay, 5, 300)
	end := run(t, a.Axis, 0)
	if end != 1500 {
		t.Errorf("expected delay to last 1500us, got %d", end)
	}
	if a.step.Rises() != 0 {
		t.Errorf("delay must not pulse, got %d pulses", a.step.Rises())
	}
	if a.Position() != 0 {
		t.Errorf("delay moved hand to %d", a.Position())
	}
}

func TestMinimumInterval(t *testing.T) {
	a := newTestAxis(t, false)
	a.Enqueue(Cruise, 2, 10)
	a.Prime(0)
	if a.StepInterval() != 250 {
		t.Errorf("expected interval floored to 250, got %d", a.StepInterval())
	}
}

func TestCurveIntervals(t *testing.T) {
	a := newTestAxis(t, false)
	def := a.table.Default()

	a.Enqueue(Accelerate, 200, 0)
	a.Prime(0)
	if a.StepInterval() != uint64(def.At(0)) {
		t.Errorf("expected first accelerate interval %d, got %d", def.At(0), a.StepInterval())
	}
	a.Reset()

	a.SetAccelVsDecelSpeedFactor(2)
	a.Enqueue(Decelerate, 200, 0)
	a.Prime(0)
	if want := uint64(def.At(99)) * 2; a.StepInterval() != want {
		t.Errorf("expected first decelerate interval %d, got %d", want, a.StepInterval())
	}
}

func TestSwitchDirection(t *testing.T) {
	a := newTestAxis(t, false)
	a.SetDirection(CW)
	a.Enqueue(Cruise, 10, 500)
	a.Enqueue(SwitchDirection, 1, 1)
	a.Enqueue(Cruise, 4, 500)

	if a.VirtualPosition() != 6 {
		t.Errorf("expected virtual position 6, got %d", a.VirtualPosition())
	}
	if a.VirtualDirection() != CCW {
		t.Errorf("expected projected direction ccw, got %v", a.VirtualDirection())
	}
	if a.Direction() != CW {
		t.Errorf("physical direction must not change at plan time")
	}

	end := run(t, a.Axis, 0)
	if a.Position() != 6 {
		t.Errorf("expected position 6, got %d", a.Position())
	}
	if a.Direction() != CCW {
		t.Errorf("expected physical direction ccw after run, got %v", a.Direction())
	}
	if a.dir.Level() {
		t.Error("expected dir line low for ccw on a non-inverted axis")
	}
	if a.step.Rises() != 14 {
		t.Errorf("expected 14 pulses, got %d", a.step.Rises())
	}
	if end != 14*504 {
		t.Errorf("switch must take no time: expected finish at %d, got %d", 14*504, end)
	}
}

func TestDirLineInversion(t *testing.T) {
	tests := []struct {
		inverted bool
		dir      Direction
		high     bool
	}{
		{false, CW, true},
		{false, CCW, false},
		{true, CW, false},
		{true, CCW, true},
	}
	for _, tt := range tests {
		a := newTestAxis(t, tt.inverted)
		a.SetDirection(tt.dir)
		if a.dir.Level() != tt.high {
			t.Errorf("inverted=%v dir=%v: expected line high=%v", tt.inverted, tt.dir, tt.high)
		}
	}
}

func TestRunUpdatesPositionAndFinishes(t *testing.T) {
	a := newTestAxis(t, false)
	a.SetDirection(CCW)
	a.Enqueue(Accelerate, 50, 1000)
	a.Enqueue(Cruise, 100, 1000)
	a.Enqueue(Decelerate, 50, 1000)
	want := a.VirtualPosition()

	run(t, a.Axis, 0)
	if a.Position() != want || want != 4120 {
		t.Errorf("expected position %d (4120), got %d", want, a.Position())
	}
	if a.QueueLen() != 0 {
		t.Errorf("expected queue cleared, got %d", a.QueueLen())
	}
	if a.VirtualPosition() != a.Position() {
		t.Errorf("expected virtual position to match committed position")
	}
}

func TestForceFinishedCommitsTakenSteps(t *testing.T) {
	a := newTestAxis(t, false)
	a.Enqueue(Cruise, 100, 1000)
	a.Prime(0)
	for now := uint64(1); now <= 1004*10; now++ {
		a.Tick(now)
	}
	a.ForceFinished()
	if !a.Finished() {
		t.Fatal("expected finished")
	}
	if a.Position() != 10 {
		t.Errorf("expected 10 committed steps, got %d", a.Position())
	}
	if a.VirtualPosition() != 10 {
		t.Errorf("expected virtual position reset to 10, got %d", a.VirtualPosition())
	}
}

func TestRunManual(t *testing.T) {
	tests := []struct {
		name    string
		current int
		target  int
		want    int
	}{
		{"short way ccw", 0, 4000, 4319},
		{"short way cw", 0, 100, 1},
		{"back over zero", 4300, 10, 4301},
		{"reverse", 200, 100, 199},
		{"target beyond revolution", 0, 4320 + 5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAxis(t, false)
			a.SetPosition(tt.current)
			a.SetTarget(tt.target)
			if !a.RunManual(ManualQuickest, 1000) {
				t.Fatal("expected a manual step")
			}
			if a.Position() != tt.want {
				t.Errorf("expected position %d, got %d", tt.want, a.Position())
			}
			if a.VirtualPosition() != a.Position() {
				t.Error("manual step must keep virtual position in line")
			}
			if a.RunManual(ManualQuickest, 1200) {
				t.Error("step taken before manual interval elapsed")
			}
		})
	}
}

func TestRunManualAtTarget(t *testing.T) {
	a := newTestAxis(t, false)
	a.SetPosition(25)
	a.SetTarget(25)
	if a.RunManual(ManualKeepDirection, 10_000) {
		t.Error("no step expected at target")
	}
	if a.step.Rises() != 0 {
		t.Errorf("unexpected pulses: %d", a.step.Rises())
	}
}

func TestKindRoundTrip(t *testing.T) {
	for k := Cruise; k <= SwitchDirection; k++ {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("jump"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

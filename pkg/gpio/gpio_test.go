package gpio

import "testing"

func TestSimLinePulseCountsRises(t *testing.T) {
	bank := NewSimBank()
	line, err := bank.Output(11)
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		Pulse(line)
	}
	sim := bank.Line(11)
	if sim.Rises() != 5 {
		t.Errorf("expected 5 rises, got %d", sim.Rises())
	}
	if sim.Level() {
		t.Error("line should rest low after a pulse")
	}
	if sim.Pin() != 11 {
		t.Errorf("expected pin 11, got %d", sim.Pin())
	}
}

func TestSimLineHoldHighCountsOnce(t *testing.T) {
	var l SimLine
	l.High()
	l.High()
	if l.Rises() != 1 {
		t.Errorf("expected 1 rise while held high, got %d", l.Rises())
	}
}

func TestWrite(t *testing.T) {
	var l SimLine
	Write(&l, true)
	if !l.Level() {
		t.Error("expected high")
	}
	Write(&l, false)
	if l.Level() {
		t.Error("expected low")
	}
}

func TestSimBankReusesLines(t *testing.T) {
	bank := NewSimBank()
	a, _ := bank.Output(3)
	b, _ := bank.Output(3)
	if a != b {
		t.Error("expected same line for same pin")
	}
}

// watchClock advances one microsecond per read and records the line level
// seen at each read.
type watchClock struct {
	now    uint64
	line   *SimLine
	levels []bool
}

func (c *watchClock) Micros() uint64 {
	c.levels = append(c.levels, c.line.Level())
	c.now++
	return c.now
}

func TestHeldLineHoldsPulse(t *testing.T) {
	sim := NewSimBank().Line(4)
	c := &watchClock{line: sim}
	held := &HeldLine{Line: sim, Clock: c, Width: 3}

	Pulse(held)

	if sim.Rises() != 1 || sim.Level() {
		t.Fatalf("expected one pulse ending low, got rises=%d level=%v", sim.Rises(), sim.Level())
	}
	// start read plus reads until three microseconds elapsed
	if len(c.levels) != 4 {
		t.Fatalf("expected 4 clock reads, got %d", len(c.levels))
	}
	for i, high := range c.levels {
		if !high {
			t.Errorf("line dropped before the hold ended at read %d", i)
		}
	}
}

func TestHeldLineZeroWidth(t *testing.T) {
	sim := NewSimBank().Line(4)
	c := &watchClock{line: sim}
	Pulse(&HeldLine{Line: sim, Clock: c})
	if sim.Rises() != 1 || sim.Level() {
		t.Errorf("expected one pulse ending low, got rises=%d level=%v", sim.Rises(), sim.Level())
	}
	if len(c.levels) != 2 {
		t.Errorf("expected 2 clock reads, got %d", len(c.levels))
	}
}

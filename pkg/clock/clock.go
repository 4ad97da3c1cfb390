// Package clock provides the microsecond time base shared by the step loop.
//
// Every axis compares its own deadline against one Clock once per scheduler
// pass, so the Clock must be cheap to read and strictly monotonic.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic microsecond counter.
type Clock interface {
	Micros() uint64
}

// Monotonic reads the kernel monotonic clock. The zero value is ready to use;
// readings are relative to an arbitrary fixed origin.
type Monotonic struct{}

// Micros returns the current monotonic time in microseconds.
func (Monotonic) Micros() uint64 {
	return monotonicMicros()
}

// Manual is a test clock that only moves when told to.
type Manual struct {
	now atomic.Uint64
}

// NewManual returns a Manual clock starting at start microseconds.
func NewManual(start uint64) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

// Micros returns the current reading.
func (m *Manual) Micros() uint64 { return m.now.Load() }

// Advance moves the clock forward by d microseconds.
func (m *Manual) Advance(d uint64) { m.now.Add(d) }

// Set moves the clock to an absolute reading.
func (m *Manual) Set(t uint64) { m.now.Store(t) }

// Stepping advances by a fixed quantum on every read. It models a
// scheduler pass that costs Quantum microseconds and makes epoch runs fully
// deterministic in tests and in the dry-run planner.
type Stepping struct {
	now     uint64
	Quantum uint64
}

// NewStepping returns a Stepping clock starting at start.
func NewStepping(start, quantum uint64) *Stepping {
	if quantum == 0 {
		quantum = 1
	}
	return &Stepping{now: start, Quantum: quantum}
}

// Micros returns the current reading and then advances it.
func (s *Stepping) Micros() uint64 {
	t := s.now
	s.now += s.Quantum
	return t
}

// Duration converts a microsecond count to a time.Duration.
func Duration(us uint64) time.Duration {
	return time.Duration(us) * time.Microsecond
}

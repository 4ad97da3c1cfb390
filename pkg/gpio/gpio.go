// Package gpio provides the digital output lines that drive the stepper
// drivers: one step and one direction line per axis plus the shared driver
// reset line.
package gpio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/stianeikeland/go-rpio/v4"

	"clockception-go/pkg/clock"
)

// Line is a single digital output.
type Line interface {
	High()
	Low()
}

// Bank hands out output lines by pin number.
type Bank interface {
	Output(pin int) (Line, error)
	Close() error
}

// Write drives l to the given level.
func Write(l Line, high bool) {
	if high {
		l.High()
	} else {
		l.Low()
	}
}

// DefaultPulseWidth is the step pulse hold in microseconds. Micros
// truncates, so 2 guarantees at least one full microsecond high.
const DefaultPulseWidth = 2

// Pulser is a line that shapes its own pulse.
type Pulser interface {
	Pulse()
}

// Pulse drives l high then low, holding it high for as long as l requires.
func Pulse(l Line) {
	if p, ok := l.(Pulser); ok {
		p.Pulse()
		return
	}
	l.High()
	l.Low()
}

// HeldLine holds every pulse high for at least Width microseconds of Clock.
// Register writes are far shorter than the minimum step input width of the
// drivers.
type HeldLine struct {
	Line
	Clock clock.Clock
	Width uint64
}

func (h *HeldLine) Pulse() {
	h.High()
	start := h.Clock.Micros()
	for h.Clock.Micros()-start < h.Width {
	}
	h.Low()
}

// RPIOBank drives Broadcom GPIO through /dev/gpiomem.
type RPIOBank struct {
	mu     sync.Mutex
	opened bool
	pins   map[int]*RPIOLine
	width  uint64
}

// OpenRPIO maps the GPIO registers. It fails when the process has no access
// to /dev/gpiomem or /dev/mem.
func OpenRPIO() (*RPIOBank, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("gpio: open: %w", err)
	}
	return &RPIOBank{opened: true, pins: make(map[int]*RPIOLine), width: DefaultPulseWidth}, nil
}

// SetPulseWidth sets the step pulse hold, in microseconds, of lines handed
// out afterwards.
func (b *RPIOBank) SetPulseWidth(us uint64) {
	b.mu.Lock()
	b.width = us
	b.mu.Unlock()
}

// Output configures pin as an output driven low.
func (b *RPIOBank) Output(pin int) (Line, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.opened {
		return nil, fmt.Errorf("gpio: bank closed")
	}
	if pin < 0 || pin > 53 {
		return nil, fmt.Errorf("gpio: pin %d out of range", pin)
	}
	l, ok := b.pins[pin]
	if !ok {
		p := rpio.Pin(pin)
		p.Output()
		p.Low()
		l = &RPIOLine{pin: p}
		b.pins[pin] = l
	}
	return &HeldLine{Line: l, Clock: clock.Monotonic{}, Width: b.width}, nil
}

// Close drives every handed out line low and unmaps the registers.
func (b *RPIOBank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.opened {
		return nil
	}
	for _, l := range b.pins {
		l.pin.Low()
	}
	b.opened = false
	return rpio.Close()
}

// RPIOLine is one Broadcom GPIO configured as output.
type RPIOLine struct {
	pin rpio.Pin
}

func (l *RPIOLine) High() { l.pin.High() }
func (l *RPIOLine) Low()  { l.pin.Low() }

// SimLine records the level and rising edges of a simulated output.
type SimLine struct {
	pin   int
	level atomic.Bool
	rises atomic.Uint64
}

func (l *SimLine) High() {
	if !l.level.Swap(true) {
		l.rises.Add(1)
	}
}

func (l *SimLine) Low() { l.level.Store(false) }

// Pin returns the pin number the line was created for.
func (l *SimLine) Pin() int { return l.pin }

// Level reports the current output level.
func (l *SimLine) Level() bool { return l.level.Load() }

// Rises returns how many low-to-high edges have been driven.
func (l *SimLine) Rises() uint64 { return l.rises.Load() }

// SimBank creates SimLines and keeps them addressable by pin number.
type SimBank struct {
	mu   sync.Mutex
	pins map[int]*SimLine
}

// NewSimBank returns an empty simulated bank.
func NewSimBank() *SimBank {
	return &SimBank{pins: make(map[int]*SimLine)}
}

// Output returns the SimLine for pin, creating it on first use.
func (b *SimBank) Output(pin int) (Line, error) {
	return b.Line(pin), nil
}

// Line returns the concrete SimLine for pin.
func (b *SimBank) Line(pin int) *SimLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.pins[pin]
	if !ok {
		l = &SimLine{pin: pin}
		b.pins[pin] = l
	}
	return l
}

func (b *SimBank) Close() error { return nil }

// Package sim shows a sculpture running on simulated GPIO in the terminal.
package sim

import (
	"sync"

	"clockception-go/pkg/config"
	"clockception-go/pkg/gpio"
)

type trackedHand struct {
	step, dir *gpio.SimLine
	inverted  bool
	position  int
	seen      uint64
}

// Tracker follows hand positions from the step and direction lines while
// an epoch runs. Steps taken between two polls are credited to the
// direction seen at the second poll.
type Tracker struct {
	mu    sync.Mutex
	spr   int
	hands []trackedHand
}

// NewTracker follows the axes of cfg on bank.
func NewTracker(bank *gpio.SimBank, cfg *config.Sculpture) *Tracker {
	t := &Tracker{spr: cfg.Clock.StepsPerRevolution}
	for _, as := range cfg.Axes {
		step := bank.Line(as.StepPin.Number)
		t.hands = append(t.hands, trackedHand{
			step:     step,
			dir:      bank.Line(as.DirPin.Number),
			inverted: as.Inverted,
			seen:     step.Rises(),
		})
	}
	return t
}

// Poll folds in the steps taken since the last poll and returns every
// position.
func (t *Tracker) Poll() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]int, len(t.hands))
	for i := range t.hands {
		h := &t.hands[i]
		rises := h.step.Rises()
		delta := int(rises - h.seen)
		h.seen = rises
		if h.dir.Level() != h.inverted {
			h.position += delta
		} else {
			h.position -= delta
		}
		h.position %= t.spr
		if h.position < 0 {
			h.position += t.spr
		}
		out[i] = h.position
	}
	return out
}

// Sync replaces the tracked positions with committed ones, for instance
// after an epoch.
func (t *Tracker) Sync(positions []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.hands {
		if i < len(positions) {
			t.hands[i].position = positions[i]
		}
		t.hands[i].seen = t.hands[i].step.Rises()
	}
}

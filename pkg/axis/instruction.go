// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package axis

import "fmt"

// Kind is the motion type of one queued instruction.
type Kind int

const (
	Cruise Kind = iota
	Accelerate
	Decelerate
	Delay
	SwitchDirection
)

func (k Kind) String() string {
	switch k {
	case Cruise:
		return "cruise"
	case Accelerate:
		return "accelerate"
	case Decelerate:
		return "decelerate"
	case Delay:
		return "delay"
	case SwitchDirection:
		return "switch_direction"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Moves reports whether instructions of this kind advance the hand.
func (k Kind) Moves() bool {
	return k == Cruise || k == Accelerate || k == Decelerate
}

// ParseKind maps a name produced by Kind.String back to its Kind.
func ParseKind(s string) (Kind, error) {
	for k := Cruise; k <= SwitchDirection; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown instruction kind %q", s)
}

// Instruction is one queued segment. Speed is a step interval in
// microseconds; for Accelerate and Decelerate it is informational only, the
// timing comes from the axis curve.
type Instruction struct {
	Kind  Kind
	Steps int
	Speed int
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s steps=%d speed=%dus", i.Kind, i.Steps, i.Speed)
}

// Direction of rotation as seen from the front of the sculpture.
type Direction bool

const (
	CW  Direction = true
	CCW Direction = false
)

func (d Direction) String() string {
	if d == CW {
		return "cw"
	}
	return "ccw"
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction { return !d }

// ManualMode selects how RunManual picks a direction.
type ManualMode int

const (
	// ManualQuickest turns whichever way reaches the target first.
	ManualQuickest ManualMode = iota
	// ManualKeepDirection keeps the direction last set.
	ManualKeepDirection
)

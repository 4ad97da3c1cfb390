package config

import (
	"fmt"
	"time"
)

// ClockSettings is the [clock] section: machine constants and the host
// runtime.
type ClockSettings struct {
	StepsPerRevolution int
	AxisCount          int
	AccelerationRate   float64
	MinStepInterval    int
	ManualStepInterval int
	CruiseCompensation int
	StepPulseWidth     int
	QueueCapacity      int
	Watchdog           time.Duration
	GPIO               string
	DriverResetPin     Pin
	CPU                int
	LockMemory         bool
}

// AxisSettings is one [axis N] section.
type AxisSettings struct {
	StepPin Pin
	DirPin  Pin
	// Inverted is the direction inversion of the motor, already combined
	// with a '!' on dir_pin.
	Inverted bool
	// FramePosition is where the hand points when it is part of the frame
	// drawn around the time.
	FramePosition int
}

// MotionSettings is the [motion] section: the default move used to show
// the time.
type MotionSettings struct {
	MaxSpeed      int
	AccelFraction float64
	DecelFraction float64
}

// ChimeSettings is the [chime] section.
type ChimeSettings struct {
	Enabled   bool
	Frequency float64
	Duration  time.Duration
	Volume    float64
}

// Sculpture is the full parsed configuration.
type Sculpture struct {
	Clock   ClockSettings
	Axes    []AxisSettings
	Motion  MotionSettings
	Chime   ChimeSettings
	Status  string // listen address of the status feed, empty disables it
	Metrics string // listen address of the metrics endpoint, empty disables it
}

// The reference machine wires hand i to stepPins[i]/dirPins[i]; every odd
// hand has its motor mounted the other way round.
var (
	defaultStepPins = [18]int{11, 15, 3, 7, 16, 12, 8, 4, 46, 42, 38, 34, 41, 45, 33, 37, 25, 29}
	defaultDirPins  = [18]int{13, 17, 5, 9, 14, 10, 6, 2, 44, 40, 36, 32, 43, 47, 35, 39, 27, 31}

	// DefaultPinMap lists the step pins of the reference machine by hand.
	DefaultPinMap = defaultStepPins

	// Frame positions in eighths of a revolution for hands 0..15, seen
	// from the front with hand pairs laid out clockwise from the top.
	defaultFrameEighths = [16]int{3, 5, 3, 7, 5, 7, 5, 1, 7, 1, 7, 3, 1, 3, 1, 5}
)

// DefaultSculpture returns the configuration of the reference machine.
func DefaultSculpture() *Sculpture {
	s := &Sculpture{
		Clock: ClockSettings{
			StepsPerRevolution: 4320,
			AxisCount:          18,
			AccelerationRate:   4000,
			MinStepInterval:    250,
			ManualStepInterval: 500,
			CruiseCompensation: 4,
			StepPulseWidth:     2,
			QueueCapacity:      10,
			Watchdog:           120 * time.Second,
			GPIO:               "rpio",
			DriverResetPin:     Pin{Number: 53},
			CPU:                -1,
		},
		Motion: MotionSettings{MaxSpeed: 800, AccelFraction: 0.2, DecelFraction: 0.2},
		Chime:  ChimeSettings{Frequency: 880, Duration: 400 * time.Millisecond, Volume: 0.3},
	}
	s.Axes = DefaultAxes(s.Clock.AxisCount, s.Clock.StepsPerRevolution)
	return s
}

// DefaultAxes returns count axes wired like the reference machine. Axes
// beyond DefaultPinMap get no pins.
func DefaultAxes(count, spr int) []AxisSettings {
	axes := make([]AxisSettings, count)
	for i := range axes {
		if i < len(defaultStepPins) {
			axes[i].StepPin = Pin{Number: defaultStepPins[i]}
			axes[i].DirPin = Pin{Number: defaultDirPins[i]}
		}
		axes[i].Inverted = i%2 == 1
		if i < len(defaultFrameEighths) {
			axes[i].FramePosition = spr * defaultFrameEighths[i] / 8
		}
	}
	return axes
}

// FramePositions returns the frame position of every axis.
func (s *Sculpture) FramePositions() []int {
	out := make([]int, len(s.Axes))
	for i, a := range s.Axes {
		out[i] = a.FramePosition
	}
	return out
}

// ParseSculptureConfig reads every known section of c on top of the
// reference defaults. Unknown sections and options are reported as errors.
func ParseSculptureConfig(c *Config) (*Sculpture, error) {
	s := DefaultSculpture()

	if sec := c.GetSectionOptional("clock"); sec != nil {
		if err := parseClock(sec, &s.Clock); err != nil {
			return nil, err
		}
	}
	if s.Clock.AxisCount != len(s.Axes) {
		s.Axes = DefaultAxes(s.Clock.AxisCount, s.Clock.StepsPerRevolution)
	} else if s.Clock.StepsPerRevolution != 4320 {
		for i := range s.Axes {
			if i < len(defaultFrameEighths) {
				s.Axes[i].FramePosition = s.Clock.StepsPerRevolution * defaultFrameEighths[i] / 8
			}
		}
	}

	used := make(map[int]string)
	for i := range s.Axes {
		name := fmt.Sprintf("axis %d", i)
		sec := c.GetSectionOptional(name)
		if sec == nil {
			if i >= len(defaultStepPins) {
				return nil, ErrMissingSection(name)
			}
		} else if err := parseAxis(sec, &s.Axes[i], s.Clock.StepsPerRevolution, i < len(defaultStepPins)); err != nil {
			return nil, err
		}
		for _, p := range []Pin{s.Axes[i].StepPin, s.Axes[i].DirPin} {
			if other, ok := used[p.Number]; ok {
				return nil, NewConfigError(name, "", fmt.Sprintf("pin %d already used by %s", p.Number, other))
			}
			used[p.Number] = name
		}
	}
	if other, ok := used[s.Clock.DriverResetPin.Number]; ok {
		return nil, NewConfigError("clock", "driver_reset_pin",
			fmt.Sprintf("pin %d already used by %s", s.Clock.DriverResetPin.Number, other))
	}

	if sec := c.GetSectionOptional("motion"); sec != nil {
		if err := parseMotion(sec, &s.Motion); err != nil {
			return nil, err
		}
	}
	if sec := c.GetSectionOptional("chime"); sec != nil {
		if err := parseChime(sec, &s.Chime); err != nil {
			return nil, err
		}
	}
	if sec := c.GetSectionOptional("status"); sec != nil {
		addr, err := sec.Get("address", ":7125")
		if err != nil {
			return nil, err
		}
		s.Status = addr
	}
	if sec := c.GetSectionOptional("metrics"); sec != nil {
		addr, err := sec.Get("address", ":9090")
		if err != nil {
			return nil, err
		}
		s.Metrics = addr
	}

	if err := c.CheckUnused(); err != nil {
		return nil, err
	}
	return s, nil
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func parseClock(sec *Section, cs *ClockSettings) error {
	var err error
	if cs.StepsPerRevolution, err = sec.GetIntWithBounds("steps_per_revolution", intPtr(2), nil, cs.StepsPerRevolution); err != nil {
		return err
	}
	if cs.AxisCount, err = sec.GetIntWithBounds("axis_count", intPtr(1), intPtr(64), cs.AxisCount); err != nil {
		return err
	}
	if cs.AccelerationRate, err = sec.GetFloatWithBounds("acceleration_rate", FloatBounds{Above: floatPtr(0)}, cs.AccelerationRate); err != nil {
		return err
	}
	if cs.MinStepInterval, err = sec.GetIntWithBounds("min_step_interval", intPtr(1), nil, cs.MinStepInterval); err != nil {
		return err
	}
	if cs.ManualStepInterval, err = sec.GetIntWithBounds("manual_step_interval", intPtr(cs.MinStepInterval), nil, cs.ManualStepInterval); err != nil {
		return err
	}
	if cs.CruiseCompensation, err = sec.GetIntWithBounds("cruise_compensation", intPtr(0), nil, cs.CruiseCompensation); err != nil {
		return err
	}
	if cs.StepPulseWidth, err = sec.GetIntWithBounds("step_pulse_width", intPtr(0), intPtr(100), cs.StepPulseWidth); err != nil {
		return err
	}
	if cs.QueueCapacity, err = sec.GetIntWithBounds("queue_capacity", intPtr(1), nil, cs.QueueCapacity); err != nil {
		return err
	}
	if cs.Watchdog, err = sec.GetDuration("watchdog_timeout", cs.Watchdog); err != nil {
		return err
	}
	if cs.Watchdog <= 0 {
		return ErrOutOfRange("clock", "watchdog_timeout", cs.Watchdog.Seconds(), "must be above 0")
	}
	if cs.GPIO, err = sec.GetChoice("gpio", []string{"rpio", "sim"}, cs.GPIO); err != nil {
		return err
	}
	if cs.DriverResetPin, err = sec.GetPin("driver_reset_pin", cs.DriverResetPin); err != nil {
		return err
	}
	if cs.CPU, err = sec.GetIntWithBounds("cpu", intPtr(-1), nil, cs.CPU); err != nil {
		return err
	}
	if cs.LockMemory, err = sec.GetBool("lock_memory", cs.LockMemory); err != nil {
		return err
	}
	return nil
}

func parseAxis(sec *Section, as *AxisSettings, spr int, hasDefaults bool) error {
	var err error
	get := func(option string, def Pin) (Pin, error) {
		if hasDefaults {
			return sec.GetPin(option, def)
		}
		return sec.GetPin(option)
	}
	if as.StepPin, err = get("step_pin", as.StepPin); err != nil {
		return err
	}
	if as.StepPin.Invert {
		return NewConfigError(sec.GetName(), "step_pin", "step pin cannot be inverted")
	}
	if as.DirPin, err = get("dir_pin", as.DirPin); err != nil {
		return err
	}
	inverted, err := sec.GetBool("inverted", as.Inverted)
	if err != nil {
		return err
	}
	as.Inverted = inverted != as.DirPin.Invert
	if as.FramePosition, err = sec.GetIntWithBounds("frame_position", intPtr(0), intPtr(spr-1), as.FramePosition); err != nil {
		return err
	}
	return nil
}

func parseMotion(sec *Section, ms *MotionSettings) error {
	var err error
	if ms.MaxSpeed, err = sec.GetIntWithBounds("max_speed", intPtr(1), nil, ms.MaxSpeed); err != nil {
		return err
	}
	frac := FloatBounds{MinVal: floatPtr(0), MaxVal: floatPtr(1)}
	if ms.AccelFraction, err = sec.GetFloatWithBounds("accel_fraction", frac, ms.AccelFraction); err != nil {
		return err
	}
	if ms.DecelFraction, err = sec.GetFloatWithBounds("decel_fraction", frac, ms.DecelFraction); err != nil {
		return err
	}
	if ms.AccelFraction+ms.DecelFraction > 1 {
		return NewConfigError(sec.GetName(), "decel_fraction", "accel_fraction + decel_fraction must not exceed 1")
	}
	return nil
}

func parseChime(sec *Section, cs *ChimeSettings) error {
	var err error
	if cs.Enabled, err = sec.GetBool("enabled", true); err != nil {
		return err
	}
	if cs.Frequency, err = sec.GetFloatWithBounds("frequency", FloatBounds{Above: floatPtr(0), Below: floatPtr(20000)}, cs.Frequency); err != nil {
		return err
	}
	if cs.Duration, err = sec.GetDuration("duration", cs.Duration); err != nil {
		return err
	}
	if cs.Volume, err = sec.GetFloatWithBounds("volume", FloatBounds{MinVal: floatPtr(0), MaxVal: floatPtr(1)}, cs.Volume); err != nil {
		return err
	}
	return nil
}

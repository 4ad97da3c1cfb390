// Package sculpture assembles the clock from its configuration: one axis
// per hand on its step and direction lines, the shared curve table, the
// planner, the epoch scheduler and the driver reset line. It also keeps a
// copy of the hand state that other goroutines may read while an epoch runs.
package sculpture

import (
	"context"
	"fmt"
	"sync"

	"clockception-go/pkg/axis"
	"clockception-go/pkg/clock"
	"clockception-go/pkg/config"
	"clockception-go/pkg/curve"
	"clockception-go/pkg/errors"
	"clockception-go/pkg/gpio"
	"clockception-go/pkg/log"
	"clockception-go/pkg/planner"
	"clockception-go/pkg/safety"
	"clockception-go/pkg/scheduler"
)

// Sculpture is the assembled machine.
type Sculpture struct {
	cfg       *config.Sculpture
	bank      gpio.Bank
	clock     clock.Clock
	axes      []*axis.Axis
	table     *curve.Table
	planner   *planner.Planner
	scheduler *scheduler.Scheduler
	reset     *safety.DriverReset
	logger    *log.Logger

	mu        sync.RWMutex
	snapshots []axis.Snapshot
	last      *scheduler.EpochReport
	safety    *safety.Manager
}

// AxisConfig converts the clock settings to the per-axis constants.
func AxisConfig(cs config.ClockSettings) axis.Config {
	return axis.Config{
		StepsPerRevolution: cs.StepsPerRevolution,
		QueueCapacity:      cs.QueueCapacity,
		MinStepInterval:    uint64(cs.MinStepInterval),
		ManualStepInterval: uint64(cs.ManualStepInterval),
		CruiseCompensation: uint64(cs.CruiseCompensation),
	}
}

// New builds the sculpture on bank. Lines that cannot be opened are
// reported as HARDWARE_INIT errors.
func New(cfg *config.Sculpture, bank gpio.Bank, c clock.Clock) (*Sculpture, error) {
	if len(cfg.Axes) == 0 {
		return nil, errors.New(errors.ErrConfiguration, "sculpture has no axes")
	}
	s := &Sculpture{
		cfg:    cfg,
		bank:   bank,
		clock:  c,
		logger: log.GetLogger("sculpture"),
	}

	def := curve.Generate(cfg.Clock.AccelerationRate)
	s.table = curve.NewTable(def, len(cfg.Axes))
	acfg := AxisConfig(cfg.Clock)

	s.axes = make([]*axis.Axis, len(cfg.Axes))
	for i, as := range cfg.Axes {
		step, err := bank.Output(as.StepPin.Number)
		if err != nil {
			return nil, errors.HardwareInitError(fmt.Sprintf("axis %d step pin %s", i, as.StepPin), err)
		}
		dir, err := bank.Output(as.DirPin.Number)
		if err != nil {
			return nil, errors.HardwareInitError(fmt.Sprintf("axis %d dir pin %s", i, as.DirPin), err)
		}
		s.axes[i] = axis.New(i, step, dir, as.Inverted, acfg, s.table.Curve(i))
	}

	resetLine, err := bank.Output(cfg.Clock.DriverResetPin.Number)
	if err != nil {
		return nil, errors.HardwareInitError("driver reset pin "+cfg.Clock.DriverResetPin.String(), err)
	}
	s.reset = safety.NewDriverReset(resetLine)

	s.planner = planner.New(s.axes, s.table)
	s.scheduler = scheduler.New(s.axes, c, cfg.Clock.Watchdog)
	s.scheduler.AddObserver(scheduler.ObserverFunc(s.epochFinished))
	s.Refresh()

	s.logger.WithFields(log.Fields{
		"axes":                 len(s.axes),
		"steps_per_revolution": cfg.Clock.StepsPerRevolution,
		"acceleration_rate":    cfg.Clock.AccelerationRate,
		"curve_end_speed":      def.EndSpeed(),
	}).Info("sculpture configured")
	return s, nil
}

// Configure builds a sculpture with the reference defaults except for the
// three machine constants.
func Configure(axisCount, stepsPerRevolution int, accelerationRate float64, bank gpio.Bank, c clock.Clock) (*Sculpture, error) {
	if axisCount < 1 || stepsPerRevolution < 2 || accelerationRate <= 0 {
		return nil, errors.New(errors.ErrConfiguration,
			fmt.Sprintf("invalid machine: axes=%d steps_per_revolution=%d acceleration_rate=%g",
				axisCount, stepsPerRevolution, accelerationRate))
	}
	cfg := config.DefaultSculpture()
	cfg.Clock.AxisCount = axisCount
	cfg.Clock.StepsPerRevolution = stepsPerRevolution
	cfg.Clock.AccelerationRate = accelerationRate
	cfg.Axes = config.DefaultAxes(axisCount, stepsPerRevolution)
	// Hands beyond the reference pin map get consecutive pins after it.
	for i := len(config.DefaultPinMap); i < axisCount; i++ {
		cfg.Axes[i].StepPin = config.Pin{Number: 54 + 2*(i-len(config.DefaultPinMap))}
		cfg.Axes[i].DirPin = config.Pin{Number: 55 + 2*(i-len(config.DefaultPinMap))}
	}
	return New(cfg, bank, c)
}

// Start pulses the driver reset line so every driver comes up enabled.
func (s *Sculpture) Start() {
	s.reset.Reset()
	s.logger.Debug("stepper drivers reset")
}

// AttachSafety routes emergency stops through m and lets m hold the
// drivers in reset on shutdown.
func (s *Sculpture) AttachSafety(m *safety.Manager) {
	m.RegisterMotor(s.reset)
	s.mu.Lock()
	s.safety = m
	s.mu.Unlock()
}

func (s *Sculpture) Config() *config.Sculpture        { return s.cfg }
func (s *Sculpture) Axes() []*axis.Axis               { return s.axes }
func (s *Sculpture) Axis(i int) *axis.Axis            { return s.axes[i] }
func (s *Sculpture) Planner() *planner.Planner        { return s.planner }
func (s *Sculpture) Scheduler() *scheduler.Scheduler  { return s.scheduler }
func (s *Sculpture) DriverReset() *safety.DriverReset { return s.reset }
func (s *Sculpture) Clock() clock.Clock               { return s.clock }
func (s *Sculpture) StepsPerRevolution() int          { return s.cfg.Clock.StepsPerRevolution }

// RunEpoch runs the queued instructions of every axis. It is a thin
// wrapper so callers need only the sculpture.
func (s *Sculpture) RunEpoch(ctx context.Context) (*scheduler.EpochReport, error) {
	return s.scheduler.RunEpoch(ctx)
}

// Jog drives axis i manually to target at the manual cadence. It returns
// early with a CANCELLED error when ctx is done.
func (s *Sculpture) Jog(ctx context.Context, i, target int, mode axis.ManualMode) error {
	a := s.axes[i]
	a.SetTarget(target)
	defer s.Refresh()
	for n := 0; a.Position() != a.TargetResidue(); n++ {
		if n%1024 == 0 && ctx.Err() != nil {
			return errors.CancelledError(ctx.Err())
		}
		a.RunManual(mode, s.clock.Micros())
	}
	return nil
}

// Refresh copies the current axis state for concurrent readers. Call it
// only from the goroutine that owns the axes.
func (s *Sculpture) Refresh() {
	snaps := make([]axis.Snapshot, len(s.axes))
	for i, a := range s.axes {
		snaps[i] = a.Snapshot()
	}
	s.mu.Lock()
	s.snapshots = snaps
	s.mu.Unlock()
}

func (s *Sculpture) epochFinished(r *scheduler.EpochReport, err error) {
	s.Refresh()
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
}

// Snapshots returns the hand state as of the last Refresh.
func (s *Sculpture) Snapshots() []axis.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]axis.Snapshot(nil), s.snapshots...)
}

// LastEpoch returns the report of the most recent epoch, or nil.
func (s *Sculpture) LastEpoch() *scheduler.EpochReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// SafetyStatus reports the attached safety manager, or a running state when
// none is attached.
func (s *Sculpture) SafetyStatus() safety.Status {
	s.mu.RLock()
	m := s.safety
	s.mu.RUnlock()
	if m == nil {
		return safety.Status{State: safety.StateRunning.String(), IsOperational: true}
	}
	return m.GetStatus()
}

// EmergencyStop stops through the safety manager, or holds the drivers in
// reset directly when none is attached.
func (s *Sculpture) EmergencyStop(msg string) error {
	s.mu.RLock()
	m := s.safety
	s.mu.RUnlock()
	if m == nil {
		s.logger.WithField("reason", msg).Error("emergency stop")
		return s.reset.DisableMotors()
	}
	return m.EmergencyStop(msg)
}

// Close holds the drivers in reset and releases the lines.
func (s *Sculpture) Close() error {
	_ = s.reset.DisableMotors()
	return s.bank.Close()
}

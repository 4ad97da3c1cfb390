// Package safety owns the stepper driver enable line and the shutdown state
// of the sculpture: emergency stop, repeated epoch watchdog trips, and the
// liveness watchdog of the minute loop.
package safety

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clockception-go/pkg/gpio"
	"clockception-go/pkg/log"
)

// ShutdownState represents the sculpture's shutdown state.
type ShutdownState int

const (
	// StateRunning indicates normal operation.
	StateRunning ShutdownState = iota

	// StateShuttingDown indicates shutdown is in progress.
	StateShuttingDown

	// StateShutdown indicates the sculpture is shut down.
	StateShutdown

	// StateError indicates an error-triggered shutdown.
	StateError
)

func (s ShutdownState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateShutdown:
		return "shutdown"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ShutdownReason describes why the sculpture was shut down.
type ShutdownReason string

const (
	ReasonNone            ShutdownReason = ""
	ReasonEmergencyStop   ShutdownReason = "emergency_stop"
	ReasonEpochWatchdog   ShutdownReason = "epoch_watchdog"
	ReasonWatchdogTimeout ShutdownReason = "watchdog_timeout"
	ReasonHardwareError   ShutdownReason = "hardware_error"
	ReasonUserRequest     ShutdownReason = "user_request"
)

// ErrShutdown is returned by CheckOperational once the sculpture has stopped.
var ErrShutdown = errors.New("safety: sculpture is shut down")

// MotorDisabler can cut power to the steppers.
type MotorDisabler interface {
	DisableMotors() error
}

// DriverReset drives the shared reset input of the stepper drivers. Low
// holds every driver in reset with its outputs off; high enables them.
type DriverReset struct {
	line  gpio.Line
	sleep func(time.Duration)
}

// ResetPulse is how long the reset line is held low. The drivers need at
// least 1ms.
const ResetPulse = 2 * time.Millisecond

// NewDriverReset wraps the reset line.
func NewDriverReset(line gpio.Line) *DriverReset {
	return &DriverReset{line: line, sleep: time.Sleep}
}

// Reset pulses the line low for ResetPulse and leaves the drivers enabled.
func (d *DriverReset) Reset() {
	d.line.Low()
	d.sleep(ResetPulse)
	d.line.High()
}

// Enable releases the drivers.
func (d *DriverReset) Enable() { d.line.High() }

// DisableMotors holds the drivers in reset.
func (d *DriverReset) DisableMotors() error {
	d.line.Low()
	return nil
}

// Config holds configuration for the safety manager.
type Config struct {
	// WatchdogTimeout is the longest the minute loop may go without a
	// Heartbeat.
	WatchdogTimeout time.Duration
	// MaxEpochTrips is how many consecutive force-finished epochs are
	// tolerated before the sculpture shuts down. Zero disables the check.
	MaxEpochTrips int
}

// ConfigFor returns the host configuration for epochs bounded by
// epochLimit. Heartbeats follow each epoch, and two forced epochs back to
// back can leave epochLimit plus one minute between them; the timeout adds
// another minute on top.
func ConfigFor(epochLimit time.Duration) Config {
	return Config{WatchdogTimeout: epochLimit + 2*time.Minute, MaxEpochTrips: 3}
}

// Manager manages safety features and shutdown state.
type Manager struct {
	mu sync.RWMutex

	state          ShutdownState
	shutdownReason ShutdownReason
	shutdownMsg    string
	shutdownTime   time.Time

	motors []MotorDisabler

	// ctx is cancelled on shutdown so a running epoch stops.
	ctx    context.Context
	cancel context.CancelFunc

	watchdogCancel  context.CancelFunc
	watchdogTimeout time.Duration
	lastHeartbeat   time.Time
	watchdogMu      sync.Mutex

	maxEpochTrips int
	epochTrips    int

	onShutdown    []func(reason ShutdownReason, msg string)
	onStateChange []func(oldState, newState ShutdownState)

	logger *log.Logger
}

// New creates a new safety Manager.
func New() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:           StateRunning,
		ctx:             ctx,
		cancel:          cancel,
		watchdogTimeout: 5 * time.Minute,
		maxEpochTrips:   3,
		logger:          log.GetLogger("safety"),
	}
}

// Configure applies configuration to the manager.
func (m *Manager) Configure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg.WatchdogTimeout > 0 {
		m.watchdogMu.Lock()
		m.watchdogTimeout = cfg.WatchdogTimeout
		m.watchdogMu.Unlock()
	}
	if cfg.MaxEpochTrips >= 0 {
		m.maxEpochTrips = cfg.MaxEpochTrips
	}
}

// Context is cancelled as soon as a shutdown starts. Pass it to every epoch.
func (m *Manager) Context() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctx
}

// RegisterMotor registers a motor controller for emergency shutdown.
func (m *Manager) RegisterMotor(motor MotorDisabler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.motors = append(m.motors, motor)
}

// OnShutdown registers a callback for when shutdown occurs.
func (m *Manager) OnShutdown(fn func(reason ShutdownReason, msg string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onShutdown = append(m.onShutdown, fn)
}

// OnStateChange registers a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState ShutdownState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = append(m.onStateChange, fn)
}

// GetState returns the current shutdown state.
func (m *Manager) GetState() ShutdownState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsShutdown returns true if the sculpture is shut down.
func (m *Manager) IsShutdown() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateShutdown || m.state == StateError
}

// CheckOperational returns an error if the sculpture is not operational.
func (m *Manager) CheckOperational() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != StateRunning {
		return fmt.Errorf("%w: %s - %s", ErrShutdown, m.shutdownReason, m.shutdownMsg)
	}
	return nil
}

// EmergencyStop stops the running epoch and holds the drivers in reset.
func (m *Manager) EmergencyStop(msg string) error {
	return m.invokeShutdown(ReasonEmergencyStop, msg)
}

// HardwareError shuts down after a peripheral failure.
func (m *Manager) HardwareError(component string, err error) error {
	return m.invokeShutdown(ReasonHardwareError, fmt.Sprintf("%s: %v", component, err))
}

// RequestShutdown triggers a graceful shutdown by user request.
func (m *Manager) RequestShutdown(msg string) error {
	return m.invokeShutdown(ReasonUserRequest, msg)
}

// EpochResult records the outcome of one epoch. forced epochs count toward
// MaxEpochTrips; a clean epoch resets the count.
func (m *Manager) EpochResult(forced bool) {
	m.mu.Lock()
	if !forced {
		m.epochTrips = 0
		m.mu.Unlock()
		return
	}
	m.epochTrips++
	trips, limit := m.epochTrips, m.maxEpochTrips
	m.mu.Unlock()

	m.logger.WithFields(log.Fields{"trips": trips, "limit": limit}).Warn("epoch force finished")
	if limit > 0 && trips >= limit {
		_ = m.invokeShutdown(ReasonEpochWatchdog, fmt.Sprintf("%d consecutive epochs force finished", trips))
	}
}

// invokeShutdown performs the shutdown sequence.
func (m *Manager) invokeShutdown(reason ShutdownReason, msg string) error {
	m.mu.Lock()
	if m.state == StateShutdown || m.state == StateError {
		m.mu.Unlock()
		return nil
	}

	oldState := m.state
	m.state = StateShuttingDown
	m.shutdownReason = reason
	m.shutdownMsg = msg
	m.shutdownTime = time.Now()
	motors := append([]MotorDisabler(nil), m.motors...)
	cancel := m.cancel
	m.mu.Unlock()

	m.logger.WithFields(log.Fields{"reason": string(reason)}).Error(msg)

	m.StopWatchdog()
	cancel()

	var errs []error
	for _, motor := range motors {
		if err := motor.DisableMotors(); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	finalState := StateShutdown
	if reason == ReasonEmergencyStop || reason == ReasonHardwareError || reason == ReasonEpochWatchdog {
		finalState = StateError
	}
	m.state = finalState
	onShutdown := append(([]func(ShutdownReason, string))(nil), m.onShutdown...)
	onStateChange := append(([]func(ShutdownState, ShutdownState))(nil), m.onStateChange...)
	m.mu.Unlock()

	for _, fn := range onStateChange {
		fn(oldState, finalState)
	}
	for _, fn := range onShutdown {
		fn(reason, msg)
	}
	return errors.Join(errs...)
}

// StartWatchdog starts the liveness watchdog of the minute loop.
func (m *Manager) StartWatchdog() {
	m.watchdogMu.Lock()
	defer m.watchdogMu.Unlock()

	if m.watchdogCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.watchdogCancel = cancel
	m.lastHeartbeat = time.Now()

	go m.watchdogLoop(ctx)
}

// StopWatchdog stops the watchdog timer.
func (m *Manager) StopWatchdog() {
	m.watchdogMu.Lock()
	defer m.watchdogMu.Unlock()

	if m.watchdogCancel != nil {
		m.watchdogCancel()
		m.watchdogCancel = nil
	}
}

// Heartbeat updates the watchdog timer.
func (m *Manager) Heartbeat() {
	m.watchdogMu.Lock()
	defer m.watchdogMu.Unlock()
	m.lastHeartbeat = time.Now()
}

func (m *Manager) watchdogLoop(ctx context.Context) {
	m.watchdogMu.Lock()
	period := m.watchdogTimeout / 10
	m.watchdogMu.Unlock()
	if period < time.Millisecond {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.watchdogMu.Lock()
			elapsed := time.Since(m.lastHeartbeat)
			timeout := m.watchdogTimeout
			m.watchdogMu.Unlock()

			if elapsed > timeout {
				_ = m.invokeShutdown(ReasonWatchdogTimeout, "minute loop heartbeat timeout")
				return
			}
		}
	}
}

// Reset returns the manager to running after a shutdown. The caller must
// re-enable the drivers.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRunning || m.state == StateShuttingDown {
		return errors.New("safety: cannot reset while running or shutting down")
	}

	m.state = StateRunning
	m.shutdownReason = ReasonNone
	m.shutdownMsg = ""
	m.shutdownTime = time.Time{}
	m.epochTrips = 0
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return nil
}

// Status returns a status struct for reporting.
type Status struct {
	State          string    `json:"state"`
	ShutdownReason string    `json:"shutdown_reason,omitempty"`
	ShutdownMsg    string    `json:"shutdown_msg,omitempty"`
	ShutdownTime   time.Time `json:"shutdown_time,omitempty"`
	IsOperational  bool      `json:"is_operational"`
	EpochTrips     int       `json:"epoch_trips"`
}

// GetStatus returns the current status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Status{
		State:          m.state.String(),
		ShutdownReason: string(m.shutdownReason),
		ShutdownMsg:    m.shutdownMsg,
		ShutdownTime:   m.shutdownTime,
		IsOperational:  m.state == StateRunning,
		EpochTrips:     m.epochTrips,
	}
}

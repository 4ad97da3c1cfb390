// clockception drives the kinetic clock: eighteen stepper hands on a
// Raspberry Pi, a routine at every minute boundary.
//
// Usage:
//
//	clockception [-config clock.cfg] [options]
//
// Options:
//
//	-config string   Sculpture configuration file (default: reference machine)
//	-sim             Use simulated GPIO lines instead of /dev/gpiomem
//	-status string   Status API address, overrides [status] address
//	-metrics string  Metrics address, overrides [metrics] address
//	-routine string  Play this routine every minute
//	-seed uint       Seed of the routine picker (default: wall clock)
//	-test-hands      Turn every hand one revolution in order, then exit
//
// Examples:
//
//	# Run the reference machine with the status feed on :7125
//	clockception -status :7125
//
//	# Check the wiring order
//	clockception -config clock.cfg -test-hands
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clockception-go/pkg/chime"
	"clockception-go/pkg/clock"
	"clockception-go/pkg/config"
	"clockception-go/pkg/errors"
	"clockception-go/pkg/gpio"
	"clockception-go/pkg/host"
	"clockception-go/pkg/log"
	"clockception-go/pkg/metrics"
	"clockception-go/pkg/safety"
	"clockception-go/pkg/sculpture"
	"clockception-go/pkg/status"
)

var logger = log.GetLogger("clockception")

func main() {
	configFile := flag.String("config", "", "Sculpture configuration file (default: reference machine)")
	sim := flag.Bool("sim", false, "Use simulated GPIO lines")
	statusAddr := flag.String("status", "", "Status API address, overrides [status] address")
	metricsAddr := flag.String("metrics", "", "Metrics address, overrides [metrics] address")
	routine := flag.String("routine", "", "Play this routine every minute")
	seed := flag.Uint64("seed", 0, "Seed of the routine picker")
	testHands := flag.Bool("test-hands", false, "Turn every hand one revolution in order, then exit")
	flag.Parse()

	if err := run(*configFile, *sim, *statusAddr, *metricsAddr, *routine, *seed, *testHands); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Sculpture, error) {
	if path == "" {
		return config.DefaultSculpture(), nil
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return config.ParseSculptureConfig(c)
}

func openBank(kind string, pulseWidth int) (gpio.Bank, error) {
	switch kind {
	case "sim":
		return gpio.NewSimBank(), nil
	default:
		bank, err := gpio.OpenRPIO()
		if err != nil {
			return nil, errors.HardwareInitError("gpio", err)
		}
		bank.SetPulseWidth(uint64(pulseWidth))
		return bank, nil
	}
}

func run(configFile string, sim bool, statusAddr, metricsAddr, routine string, seed uint64, testHands bool) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if sim {
		cfg.Clock.GPIO = "sim"
	}
	if statusAddr != "" {
		cfg.Status = statusAddr
	}
	if metricsAddr != "" {
		cfg.Metrics = metricsAddr
	}

	logger.WithFields(log.Fields{
		"axes":  cfg.Clock.AxisCount,
		"spr":   cfg.Clock.StepsPerRevolution,
		"gpio":  cfg.Clock.GPIO,
		"reset": cfg.Clock.DriverResetPin.String(),
	}).Info("starting")

	if cfg.Clock.CPU >= 0 {
		unlock, err := clock.LockToCPU(cfg.Clock.CPU)
		if err != nil {
			return errors.HardwareInitError("cpu affinity", err)
		}
		defer unlock()
	}
	if cfg.Clock.LockMemory {
		if err := clock.LockMemory(); err != nil {
			logger.WithError(err).Warn("could not lock memory")
		}
	}

	bank, err := openBank(cfg.Clock.GPIO, cfg.Clock.StepPulseWidth)
	if err != nil {
		return err
	}
	s, err := sculpture.New(cfg, bank, clock.Monotonic{})
	if err != nil {
		_ = bank.Close()
		return err
	}
	defer s.Close()

	m := safety.New()
	m.Configure(safety.ConfigFor(cfg.Clock.Watchdog))
	s.AttachSafety(m)

	sm := metrics.NewSculptureMetrics()
	s.Scheduler().AddObserver(sm)

	var st *status.Server
	if cfg.Status != "" {
		st = status.New(status.Config{Addr: cfg.Status, Source: s})
		s.Scheduler().AddObserver(st)
		go func() {
			if err := st.Start(); err != nil {
				logger.WithError(err).Error("status server stopped")
			}
		}()
		defer st.Stop()
	}
	m.OnShutdown(func(reason safety.ShutdownReason, msg string) {
		sm.RecordShutdown(string(reason))
		if st != nil {
			st.Shutdown(reason, msg)
		}
	})

	if cfg.Metrics != "" {
		ms := metrics.NewServer(sm, cfg.Metrics)
		errCh := ms.StartAsync()
		go func() {
			for err := range errCh {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(ctx)
		}()
	}

	opts := host.Options{Routine: routine, Seed: seed, Safety: m, Metrics: sm}
	if cfg.Chime.Enabled {
		c := chime.New(cfg.Chime)
		if err := c.Initialize(); err != nil {
			logger.WithError(err).Warn("chime disabled")
		} else {
			opts.Chime = c
			defer c.Close()
		}
	}
	h, err := host.New(s, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.Start()

	if testHands {
		return h.TestHands(ctx)
	}

	err = h.Run(ctx)
	if ctx.Err() != nil {
		_ = s.EmergencyStop("interrupted")
		logger.Info("stopped")
		return nil
	}
	return err
}

// clockception-sim runs the clock on simulated GPIO and draws the hands in
// the terminal. Press q or Esc to quit.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"clockception-go/pkg/chime"
	"clockception-go/pkg/clock"
	"clockception-go/pkg/config"
	"clockception-go/pkg/display"
	"clockception-go/pkg/gpio"
	"clockception-go/pkg/host"
	"clockception-go/pkg/log"
	"clockception-go/pkg/scheduler"
	"clockception-go/pkg/sculpture"
	"clockception-go/pkg/sim"
)

func main() {
	configFile := flag.String("config", "", "Sculpture configuration file (default: reference machine)")
	fast := flag.Bool("fast", false, "Play routines back to back, one virtual minute apart")
	routine := flag.String("routine", "", "Play this routine every minute")
	radius := flag.Int("radius", 3, "Hand length in terminal rows")
	quiet := flag.Bool("quiet", false, "Disable the chime")
	logFile := flag.String("logfile", "", "Write log output to this file (default: discard)")
	flag.Parse()

	// Log lines would tear the screen.
	log.Default().SetWriter(io.Discard)
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log.Default().SetWriter(f)
		log.Default().SetColorize(false)
	}

	if err := run(*configFile, *fast, *routine, *radius, *quiet); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string, fast bool, routine string, radius int, quiet bool) error {
	cfg := config.DefaultSculpture()
	if configFile != "" {
		c, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if cfg, err = config.ParseSculptureConfig(c); err != nil {
			return err
		}
	}
	cfg.Clock.GPIO = "sim"

	bank := gpio.NewSimBank()
	s, err := sculpture.New(cfg, bank, clock.Monotonic{})
	if err != nil {
		return err
	}
	defer s.Close()

	tracker := sim.NewTracker(bank, cfg)
	s.Scheduler().AddObserver(scheduler.ObserverFunc(func(*scheduler.EpochReport, error) {
		snaps := s.Snapshots()
		positions := make([]int, len(snaps))
		for i, sn := range snaps {
			positions[i] = sn.Position
		}
		tracker.Sync(positions)
	}))

	opts := host.Options{Routine: routine}
	if cfg.Chime.Enabled && !quiet {
		c := chime.New(cfg.Chime)
		if err := c.Initialize(); err == nil {
			opts.Chime = c
			defer c.Close()
		}
	}
	h, err := host.New(s, opts)
	if err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()
	renderer := sim.NewRenderer(screen, len(cfg.Axes), cfg.Clock.StepsPerRevolution, radius)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		s.Start()
		if !fast {
			done <- h.Run(ctx)
			return
		}
		t := time.Now()
		if _, err := h.ShowTime(ctx, display.FromTime(t)); err != nil {
			done <- err
			return
		}
		for ctx.Err() == nil {
			t = host.NextMinute(t)
			if _, err := h.RunMinute(ctx, display.FromTime(t)); err != nil && ctx.Err() == nil {
				done <- err
				return
			}
		}
		done <- ctx.Err()
	}()

	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					cancel()
					<-done
					return nil
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		case err := <-done:
			if err == context.Canceled {
				return nil
			}
			return err
		case <-ticker.C:
			renderer.Draw(tracker.Poll(), statusLine(s))
		}
	}
}

func statusLine(s *sculpture.Sculpture) string {
	line := time.Now().Format("15:04:05")
	if r := s.LastEpoch(); r != nil {
		line += fmt.Sprintf("  epoch %d  %.1fs  spread %.1fms", r.Epoch, float64(r.Elapsed)/1e6, float64(r.Spread())/1e3)
	}
	return line + "  (q to quit)"
}

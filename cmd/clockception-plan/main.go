// clockception-plan plans routines without hardware and prints what every
// hand would do. The epoch runs on a virtual clock, so the reported
// durations are what the machine would take.
//
// Usage:
//
//	clockception-plan [-config clock.cfg] [-routine name|all] [-time 10:10]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"clockception-go/pkg/axis"
	"clockception-go/pkg/clock"
	"clockception-go/pkg/config"
	"clockception-go/pkg/display"
	"clockception-go/pkg/gpio"
	"clockception-go/pkg/host"
	"clockception-go/pkg/log"
	"clockception-go/pkg/scheduler"
	"clockception-go/pkg/sculpture"
)

func main() {
	configFile := flag.String("config", "", "Sculpture configuration file (default: reference machine)")
	routine := flag.String("routine", "all", "Routine to plan, or all")
	at := flag.String("time", "", "Time the routine lands on, HH:MM (default: now)")
	quantum := flag.Uint64("quantum", 10, "Virtual clock resolution in microseconds")
	verbose := flag.Bool("v", false, "Print the instruction queue of every hand")
	flag.Parse()

	log.Default().SetLevel(log.WARN)

	if err := run(*configFile, *routine, *at, *quantum, *verbose); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func parseTime(s string) (display.Time, error) {
	if s == "" {
		return display.FromTime(time.Now()), nil
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return display.Time{}, fmt.Errorf("time %q is not HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return display.Time{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return display.Time{}, fmt.Errorf("invalid minute in %q", s)
	}
	return display.Time{Hour: h, Minute: m}, nil
}

// before returns the minute preceding t.
func before(t display.Time) display.Time {
	if t.Minute > 0 {
		return display.Time{Hour: t.Hour, Minute: t.Minute - 1}
	}
	return display.Time{Hour: (t.Hour + 23) % 24, Minute: 59}
}

func run(configFile, name, at string, quantum uint64, verbose bool) error {
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
	t, err := parseTime(at)
	if err != nil {
		return err
	}

	var routines []display.Routine
	if name == "all" {
		routines = append(append(routines, display.Short...), display.Long...)
	} else {
		r, ok := display.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown routine %q", name)
		}
		routines = []display.Routine{r}
	}

	pterm.DefaultHeader.WithFullWidth().Printf("Clockception plan for %02d:%02d", t.Hour, t.Minute)
	pterm.Info.Printf("%d hands, %d steps per revolution, acceleration rate %.0f\n",
		len(cfg.Axes), cfg.Clock.StepsPerRevolution, cfg.Clock.AccelerationRate)

	summary := pterm.TableData{{"Routine", "Kind", "Duration", "Spread", "Passes", "Steps"}}
	for _, r := range routines {
		report, err := planOne(cfg, r, t, quantum, verbose)
		if err != nil {
			pterm.Error.Printf("%s: %v\n", r.Name, err)
			continue
		}
		kind := "short"
		if r.Long {
			kind = "long"
		}
		var steps uint64
		for _, n := range report.Steps {
			steps += n
		}
		summary = append(summary, []string{
			r.Name, kind,
			clock.Duration(report.Elapsed).Round(time.Millisecond).String(),
			clock.Duration(report.Spread()).String(),
			strconv.FormatUint(report.Passes, 10),
			strconv.FormatUint(steps, 10),
		})
	}

	pterm.DefaultSection.Println("Summary")
	return pterm.DefaultTable.WithHasHeader().WithData(summary).Render()
}

func planOne(cfg *config.Sculpture, r display.Routine, t display.Time, quantum uint64, verbose bool) (*scheduler.EpochReport, error) {
	s, err := sculpture.New(cfg, gpio.NewSimBank(), clock.NewStepping(0, quantum))
	if err != nil {
		return nil, err
	}
	defer s.Close()
	h, err := host.New(s, host.Options{})
	if err != nil {
		return nil, err
	}
	ctx := context.Background()

	if _, err := h.ShowTime(ctx, before(t)); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	if err := h.Display().Run(r, t); err != nil {
		return nil, err
	}

	if verbose {
		pterm.DefaultSection.Printf("%s\n", r.Name)
		if err := pterm.DefaultTable.WithHasHeader().WithData(queueTable(s.Axes())).Render(); err != nil {
			return nil, err
		}
	}

	spinner, _ := pterm.DefaultSpinner.Start("Running " + r.Name + " on the virtual clock...")
	report, err := s.RunEpoch(ctx)
	if err != nil {
		spinner.Fail(err.Error())
		return nil, err
	}
	spinner.Success(r.Name)

	if verbose {
		data := pterm.TableData{{"Hand", "Position", "Steps", "Finished"}}
		for i, a := range s.Axes() {
			data = append(data, []string{
				strconv.Itoa(i),
				strconv.Itoa(a.Position()),
				strconv.FormatUint(report.Steps[i], 10),
				clock.Duration(report.FinishedAt[i]).Round(time.Millisecond).String(),
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func queueTable(axes []*axis.Axis) pterm.TableData {
	data := pterm.TableData{{"Hand", "Dir", "Instructions"}}
	for i, a := range axes {
		var parts []string
		for _, in := range a.Pending() {
			if in.Kind == axis.SwitchDirection {
				parts = append(parts, "switch")
				continue
			}
			parts = append(parts, fmt.Sprintf("%s %d@%dus", in.Kind, in.Steps, in.Speed))
		}
		dir := "cw"
		if a.Direction() == axis.CCW {
			dir = "ccw"
		}
		data = append(data, []string{strconv.Itoa(i), dir, strings.Join(parts, ", ")})
	}
	return data
}

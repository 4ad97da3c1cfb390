package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadString(t *testing.T) {
	data := `
# sculpture
[clock]
steps_per_revolution: 4320
acceleration_rate = 4000.5   ; comment

[axis 3]
dir_pin: !9
`
	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	if !cfg.HasSection("clock") || !cfg.HasSection("axis 3") {
		t.Fatalf("expected sections, got %v", cfg.GetSectionNames())
	}

	clock, err := cfg.GetSection("clock")
	if err != nil {
		t.Fatalf("GetSection(clock) failed: %v", err)
	}
	spr, err := clock.GetInt("steps_per_revolution")
	if err != nil || spr != 4320 {
		t.Errorf("expected 4320, got %d (%v)", spr, err)
	}
	rate, err := clock.GetFloat("ACCELERATION_RATE")
	if err != nil || rate != 4000.5 {
		t.Errorf("expected 4000.5, got %v (%v)", rate, err)
	}
}

func TestLoadStringErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty header", "[]\n"},
		{"include", "[include other.cfg]\n"},
		{"bad line", "[clock]\nsteps_per_revolution\n"},
	}
	for _, tt := range tests {
		if _, err := LoadString(tt.data); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestSectionGetters(t *testing.T) {
	cfg, err := LoadString(`
[test]
int_val: 42
float_val: 0.25
bool_val: yes
bad_bool: maybe
choice: SIM
duration: 1m30s
seconds: 90
pin: gpio17
`)
	if err != nil {
		t.Fatal(err)
	}
	sec, _ := cfg.GetSection("test")

	if v, _ := sec.GetInt("int_val"); v != 42 {
		t.Errorf("GetInt: got %d", v)
	}
	if v, _ := sec.GetInt("missing", 7); v != 7 {
		t.Errorf("GetInt fallback: got %d", v)
	}
	if _, err := sec.GetInt("missing"); err == nil {
		t.Error("expected missing option error")
	}
	if v, _ := sec.GetFloat("float_val"); v != 0.25 {
		t.Errorf("GetFloat: got %v", v)
	}
	if v, _ := sec.GetBool("bool_val"); !v {
		t.Error("GetBool: expected true")
	}
	if _, err := sec.GetBool("bad_bool"); err == nil {
		t.Error("expected invalid boolean error")
	}
	if v, err := sec.GetChoice("choice", []string{"rpio", "sim"}); err != nil || v != "sim" {
		t.Errorf("GetChoice: got %q (%v)", v, err)
	}
	if v, _ := sec.GetDuration("duration"); v != 90*time.Second {
		t.Errorf("GetDuration: got %v", v)
	}
	if v, _ := sec.GetDuration("seconds"); v != 90*time.Second {
		t.Errorf("GetDuration bare number: got %v", v)
	}
	if p, _ := sec.GetPin("pin"); p.Number != 17 || p.Invert {
		t.Errorf("GetPin: got %+v", p)
	}
	if v, err := sec.GetIntWithBounds("int_val", intPtr(50), nil); err == nil {
		t.Errorf("expected bounds error, got %d", v)
	}
	if _, err := sec.GetFloatWithBounds("float_val", FloatBounds{Above: floatPtr(0.25)}); err == nil {
		t.Error("expected above bound error")
	}
	if got := sec.GetUnusedOptions(); len(got) != 0 {
		t.Errorf("expected every option used, got %v", got)
	}
}

func TestParsePin(t *testing.T) {
	tests := []struct {
		in      string
		want    Pin
		wantErr bool
	}{
		{"17", Pin{Number: 17}, false},
		{"!4", Pin{Number: 4, Invert: true}, false},
		{" ! GPIO22 ", Pin{Number: 22, Invert: true}, false},
		{"53", Pin{Number: 53}, false},
		{"54", Pin{}, true},
		{"-1", Pin{}, true},
		{"PA5", Pin{}, true},
		{"", Pin{}, true},
	}
	for _, tt := range tests {
		got, err := ParsePin(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePin(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePin(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
	if s := (Pin{Number: 9, Invert: true}).String(); s != "!9" {
		t.Errorf("unexpected String %q", s)
	}
}

func TestLoadWithInclude(t *testing.T) {
	dir := t.TempDir()
	write := func(name, data string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("main.cfg", "[clock]\naxis_count: 2\n[include axes/*.cfg]\n")
	if err := os.Mkdir(filepath.Join(dir, "axes"), 0o755); err != nil {
		t.Fatal(err)
	}
	write("axes/a.cfg", "[axis 0]\nstep_pin: 20\n")
	write("axes/b.cfg", "[axis 1]\nstep_pin: 21\n")

	cfg, err := Load(filepath.Join(dir, "main.cfg"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	names := cfg.GetPrefixSectionNames("axis ")
	if len(names) != 2 {
		t.Errorf("expected 2 axis sections, got %v", names)
	}
}

func TestLoadRecursiveInclude(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.cfg")
	if err := os.WriteFile(path, []byte("[include loop.cfg]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "recursive") {
		t.Errorf("expected recursive include error, got %v", err)
	}
}

func TestDefaultSculpture(t *testing.T) {
	s := DefaultSculpture()
	if len(s.Axes) != 18 {
		t.Fatalf("expected 18 axes, got %d", len(s.Axes))
	}
	if s.Axes[0].StepPin.Number != 11 || s.Axes[0].DirPin.Number != 13 || s.Axes[0].Inverted {
		t.Errorf("unexpected axis 0: %+v", s.Axes[0])
	}
	if !s.Axes[17].Inverted {
		t.Error("odd axes are inverted on the reference machine")
	}
	want := []int{1620, 2700, 1620, 3780, 2700, 3780, 2700, 540, 3780, 540, 3780, 1620, 540, 1620, 540, 2700, 0, 0}
	got := s.FramePositions()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame position %d: expected %d, got %d", i, want[i], got[i])
		}
	}
	if s.Clock.Watchdog != 120*time.Second {
		t.Errorf("unexpected watchdog %v", s.Clock.Watchdog)
	}
}

func TestParseSculptureConfig(t *testing.T) {
	cfg, err := LoadString(`
[clock]
gpio: sim
cruise_compensation: 0
step_pulse_width: 5
watchdog_timeout: 90

[axis 2]
dir_pin: !5
frame_position: 100

[motion]
max_speed: 1000
accel_fraction: 0.5
decel_fraction: 0.5

[chime]
frequency: 440

[status]
address: 127.0.0.1:7125
`)
	if err != nil {
		t.Fatal(err)
	}
	s, err := ParseSculptureConfig(cfg)
	if err != nil {
		t.Fatalf("ParseSculptureConfig failed: %v", err)
	}
	if s.Clock.GPIO != "sim" || s.Clock.CruiseCompensation != 0 || s.Clock.StepPulseWidth != 5 || s.Clock.Watchdog != 90*time.Second {
		t.Errorf("unexpected clock settings %+v", s.Clock)
	}
	// Axis 2 is not inverted by default; the '!' on dir_pin flips it.
	if !s.Axes[2].Inverted || s.Axes[2].FramePosition != 100 || s.Axes[2].StepPin.Number != 3 {
		t.Errorf("unexpected axis 2 %+v", s.Axes[2])
	}
	if s.Motion.MaxSpeed != 1000 || s.Motion.AccelFraction != 0.5 {
		t.Errorf("unexpected motion settings %+v", s.Motion)
	}
	if !s.Chime.Enabled || s.Chime.Frequency != 440 {
		t.Errorf("unexpected chime settings %+v", s.Chime)
	}
	if s.Status != "127.0.0.1:7125" || s.Metrics != "" {
		t.Errorf("unexpected addresses %q %q", s.Status, s.Metrics)
	}
}

func TestParseSculptureConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown option", "[clock]\nsteps_per_rev: 10\n", "unused options"},
		{"unknown section", "[axis 20]\nstep_pin: 1\n", "unused sections"},
		{"extra axis needs pins", "[clock]\naxis_count: 19\n", "axis 18"},
		{"pin conflict", "[axis 1]\nstep_pin: 11\n", "already used"},
		{"reset pin conflict", "[clock]\ndriver_reset_pin: 13\n", "already used"},
		{"fractions", "[motion]\naccel_fraction: 0.6\ndecel_fraction: 0.6\n", "must not exceed"},
		{"bad gpio", "[clock]\ngpio: serial\n", "not a valid choice"},
		{"inverted step", "[axis 0]\nstep_pin: !11\n", "cannot be inverted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadString(tt.data)
			if err != nil {
				t.Fatal(err)
			}
			_, err = ParseSculptureConfig(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseSculptureConfigSmallMachine(t *testing.T) {
	cfg, err := LoadString("[clock]\naxis_count: 2\nsteps_per_revolution: 200\n")
	if err != nil {
		t.Fatal(err)
	}
	s, err := ParseSculptureConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Axes) != 2 || s.Axes[1].FramePosition != 125 {
		t.Errorf("unexpected axes %+v", s.Axes)
	}
}

// Package chime sounds the minute on the host's audio output.
package chime

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"clockception-go/pkg/config"
	"clockception-go/pkg/errors"
	"clockception-go/pkg/log"
)

const sampleRate = beep.SampleRate(48000)

// gap is the silence between two strikes.
const gap = 250 * time.Millisecond

// Chime plays short tones on the speaker.
type Chime struct {
	mu          sync.Mutex
	settings    config.ChimeSettings
	initialized bool
	logger      *log.Logger

	// sink receives the chimes instead of the speaker when set.
	sink func(beep.Streamer)
}

// New returns a chime for settings. Nothing is played until Initialize.
func New(settings config.ChimeSettings) *Chime {
	return &Chime{
		settings: settings,
		logger:   log.GetLogger("chime"),
	}
}

// Initialize opens the speaker. A disabled chime stays silent and never
// touches the audio device.
func (c *Chime) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized || !c.settings.Enabled {
		return nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond)); err != nil {
		return errors.HardwareInitError("speaker", err)
	}
	c.initialized = true
	return nil
}

// Close silences anything still playing.
func (c *Chime) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return
	}
	speaker.Clear()
	c.initialized = false
}

// Strikes returns how often the chime strikes at hour:minute: the hour on
// the hour (twelve at noon and midnight), once otherwise.
func Strikes(hour, minute int) int {
	if minute != 0 {
		return 1
	}
	if h := hour % 12; h != 0 {
		return h
	}
	return 12
}

// Sequence returns count tones separated by short silences.
func (c *Chime) Sequence(count int) beep.Streamer {
	tone := sampleRate.N(c.settings.Duration)
	parts := make([]beep.Streamer, 0, 2*count)
	for i := 0; i < count; i++ {
		if i > 0 {
			parts = append(parts, beep.Silence(sampleRate.N(gap)))
		}
		parts = append(parts, beep.Take(tone, NewTone(sampleRate, c.settings.Frequency, c.settings.Volume, tone)))
	}
	return beep.Seq(parts...)
}

// Sound strikes for hour:minute. It returns at once.
func (c *Chime) Sound(hour, minute int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.settings.Enabled {
		return
	}
	n := Strikes(hour, minute)
	switch {
	case c.sink != nil:
		c.sink(c.Sequence(n))
	case c.initialized:
		c.logger.Debug("chiming %d times for %02d:%02d", n, hour, minute)
		speaker.Play(c.Sequence(n))
	}
}

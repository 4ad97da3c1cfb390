package chime

import (
	"math"
	"time"

	"github.com/gopxl/beep"
)

// Tone is a struck bell: a fundamental with two softer partials, a short
// attack and an exponential decay over its length.
type Tone struct {
	sr     beep.SampleRate
	freq   float64
	volume float64
	length int
	pos    int
}

// NewTone returns a tone of length samples.
func NewTone(sr beep.SampleRate, freq, volume float64, length int) *Tone {
	if length < 1 {
		length = 1
	}
	return &Tone{sr: sr, freq: freq, volume: volume, length: length}
}

func (g *Tone) Stream(samples [][2]float64) (n int, ok bool) {
	attack := float64(g.sr.N(5 * time.Millisecond))
	for i := range samples {
		t := float64(g.pos) / float64(g.sr)

		env := math.Min(float64(g.pos)/attack, 1.0)
		env *= math.Exp(-4 * float64(g.pos) / float64(g.length))

		sample := 0.6*math.Sin(2*math.Pi*g.freq*t) +
			0.25*math.Sin(2*math.Pi*g.freq*2.76*t) +
			0.15*math.Sin(2*math.Pi*g.freq*5.4*t)
		sample *= env * g.volume

		samples[i][0] = sample
		samples[i][1] = sample
		g.pos++
	}
	return len(samples), true
}

func (g *Tone) Err() error {
	return nil
}

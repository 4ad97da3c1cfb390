// Package curve generates the ease-in/ease-out timing profile shared by all
// axes and the per-axis scaled copies derived from it each epoch.
//
// The default curve is a discretized constant-acceleration timing law: the
// first interval is c0 = 0.676*sqrt(2/a)*1e6 microseconds and every later
// interval shrinks as c[n] = c[n-1] - 2*c[n-1]/(4n+1). Samples are stored as
// whole microseconds.
package curve

import "math"

// Samples is the fixed length of every curve.
const Samples = 100

// DefaultAccelerationRate is the rate (steps/s^2) of the reference machine.
const DefaultAccelerationRate = 4000

// Curve is one table of step intervals in microseconds.
type Curve [Samples]uint32

// Index maps progress through an instruction of stepCount steps onto the
// fixed-length curve: min(Samples-1, floor(progress*Samples/stepCount)).
func Index(progress, stepCount int) int {
	if stepCount < 1 {
		stepCount = 1
	}
	if progress < 0 {
		progress = 0
	}
	i := progress * Samples / stepCount
	if i > Samples-1 {
		i = Samples - 1
	}
	return i
}

// Default is the canonical profile. It is read-only once generated.
type Default struct {
	rate     float64
	samples  Curve
	endSpeed uint32
	totalMs  uint64
}

// Generate computes the default curve for accelerationRate (steps/s^2).
// Non-positive rates fall back to DefaultAccelerationRate.
func Generate(accelerationRate float64) *Default {
	if accelerationRate <= 0 {
		accelerationRate = DefaultAccelerationRate
	}
	d := &Default{rate: accelerationRate}

	cn := 0.676 * math.Sqrt(2.0/accelerationRate) * 1e6
	var totalUs uint64
	d.samples[0] = uint32(cn)
	totalUs += uint64(d.samples[0])
	for n := 1; n < Samples; n++ {
		cn = cn - (2.0*cn)/(4.0*float64(n)+1.0)
		d.samples[n] = uint32(cn)
		totalUs += uint64(d.samples[n])
	}
	d.totalMs = totalUs / 1000
	d.endSpeed = d.samples[Samples-1]
	return d
}

// At returns sample i.
func (d *Default) At(i int) uint32 { return d.samples[i] }

// Samples returns a copy of the table.
func (d *Default) Samples() Curve { return d.samples }

// EndSpeed is the final (shortest) interval, the reference every per-axis
// speed factor is taken against.
func (d *Default) EndSpeed() uint32 { return d.endSpeed }

// TotalMs is the duration of running the curve once, one step per sample.
func (d *Default) TotalMs() uint64 { return d.totalMs }

// Rate returns the acceleration rate the curve was generated for.
func (d *Default) Rate() float64 { return d.rate }

// SpeedFactor returns the factor that scales the curve so its last sample
// equals interval.
func (d *Default) SpeedFactor(interval int) float64 {
	return float64(interval) / float64(d.endSpeed)
}

// Derive scales the default curve by speedFactor, flooring every sample.
// The shape is kept while the terminal interval moves to the axis' own
// cruise interval.
func (d *Default) Derive(speedFactor float64, out *Curve) {
	if speedFactor < 0 {
		speedFactor = 0
	}
	for i := 0; i < Samples; i++ {
		out[i] = uint32(math.Floor(float64(d.samples[i]) * speedFactor))
	}
}

// Table holds one derived curve per axis, indexed by axis id. It is written
// only between epochs.
type Table struct {
	def    *Default
	curves []Curve
}

// NewTable allocates curves for axisCount axes, all initialised to the
// unscaled default.
func NewTable(def *Default, axisCount int) *Table {
	t := &Table{def: def, curves: make([]Curve, axisCount)}
	for i := range t.curves {
		t.curves[i] = def.samples
	}
	return t
}

// Default returns the curve the table derives from.
func (t *Table) Default() *Default { return t.def }

// Len returns the number of axes in the table.
func (t *Table) Len() int { return len(t.curves) }

// Derive recomputes the curve of one axis.
func (t *Table) Derive(axis int, speedFactor float64) {
	t.def.Derive(speedFactor, &t.curves[axis])
}

// Curve returns the derived curve of one axis. The pointer stays valid for
// the life of the table; its contents change on the next Derive.
func (t *Table) Curve(axis int) *Curve { return &t.curves[axis] }

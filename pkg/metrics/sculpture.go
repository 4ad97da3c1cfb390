package metrics

import (
	"strconv"
	"time"

	"clockception-go/pkg/axis"
	"clockception-go/pkg/errors"
	"clockception-go/pkg/scheduler"
)

// SculptureMetrics holds every metric the clock host exports. It observes
// the scheduler and is fed axis snapshots and shutdown events by the host.
type SculptureMetrics struct {
	Epochs         *Counter
	EpochErrors    *Counter
	EpochDuration  *Histogram
	EpochSpread    *Gauge
	EpochPasses    *Gauge
	AxisSteps      *Counter
	AxisPosition   *Gauge
	AxisFinishTime *Gauge
	Shutdowns      *Counter
	Uptime         *Gauge

	startTime time.Time
	registry  *Registry
}

// NewSculptureMetrics creates and registers the sculpture metrics.
func NewSculptureMetrics() *SculptureMetrics {
	sm := &SculptureMetrics{
		Epochs: NewCounter("clock_epochs_total",
			"Epochs run, by outcome"),
		EpochErrors: NewCounter("clock_epoch_errors_total",
			"Epochs that ended with an error, by code"),
		EpochDuration: NewHistogram("clock_epoch_duration_seconds",
			"Wall time of one epoch", LinearBuckets(1, 1, 15)),
		EpochSpread: NewGauge("clock_epoch_finish_spread_seconds",
			"Gap between the first and last moving axis to finish in the last epoch"),
		EpochPasses: NewGauge("clock_epoch_passes",
			"Scheduler passes in the last epoch"),
		AxisSteps: NewCounter("clock_axis_steps_total",
			"Step pulses emitted per axis"),
		AxisPosition: NewGauge("clock_axis_position_steps",
			"Physical hand position in steps from 12 o'clock"),
		AxisFinishTime: NewGauge("clock_axis_finish_seconds",
			"Time the axis finished in the last epoch"),
		Shutdowns: NewCounter("clock_shutdowns_total",
			"Safety shutdowns, by reason"),
		Uptime: NewGauge("clock_uptime_seconds",
			"Seconds since the host started"),
		startTime: time.Now(),
		registry:  NewRegistry(),
	}
	for _, m := range []Metric{
		sm.Epochs, sm.EpochErrors, sm.EpochDuration, sm.EpochSpread, sm.EpochPasses,
		sm.AxisSteps, sm.AxisPosition, sm.AxisFinishTime, sm.Shutdowns, sm.Uptime,
	} {
		sm.registry.MustRegister(m)
	}
	return sm
}

func axisLabels(id int) Labels {
	return Labels{"axis": strconv.Itoa(id)}
}

// EpochFinished records one epoch report.
func (sm *SculptureMetrics) EpochFinished(r *scheduler.EpochReport, err error) {
	outcome := "completed"
	if r.Forced {
		outcome = "forced"
	}
	sm.Epochs.Inc(Labels{"outcome": outcome})
	if err != nil {
		sm.EpochErrors.Inc(Labels{"code": string(errors.CodeOf(err))})
	}
	sm.EpochDuration.Observe(nil, float64(r.Elapsed)/1e6)
	sm.EpochSpread.Set(nil, float64(r.Spread())/1e6)
	sm.EpochPasses.Set(nil, float64(r.Passes))
	for i, steps := range r.Steps {
		sm.AxisSteps.Add(axisLabels(i), steps)
		sm.AxisFinishTime.Set(axisLabels(i), float64(r.FinishedAt[i])/1e6)
	}
}

// ObserveAxes records hand positions.
func (sm *SculptureMetrics) ObserveAxes(snaps []axis.Snapshot) {
	for _, s := range snaps {
		sm.AxisPosition.Set(axisLabels(s.ID), float64(s.Position))
	}
}

// RecordShutdown counts a safety shutdown.
func (sm *SculptureMetrics) RecordShutdown(reason string) {
	sm.Shutdowns.Inc(Labels{"reason": reason})
}

// Registry returns the registry holding every sculpture metric.
func (sm *SculptureMetrics) Registry() *Registry { return sm.registry }

// Gather refreshes the uptime and returns the exposition text.
func (sm *SculptureMetrics) Gather() string {
	sm.Uptime.Set(nil, time.Since(sm.startTime).Seconds())
	return sm.registry.Gather()
}

var _ scheduler.Observer = (*SculptureMetrics)(nil)

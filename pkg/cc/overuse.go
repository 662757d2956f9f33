package cc

import (
	"math"
	"time"
)

// StateChangeCallback is invoked when the detector's bandwidth usage state
// changes, with the previous and new states.
type StateChangeCallback func(old, new BandwidthUsage)

// OveruseConfig configures the adaptive-threshold overuse detector.
type OveruseConfig struct {
	// InitialThreshold is the starting adaptive threshold in milliseconds.
	// Default: 12.5 ms.
	InitialThreshold float64

	// MinThreshold bounds the threshold from below. Default: 6.0 ms.
	MinThreshold float64

	// MaxThreshold bounds the threshold from above. Default: 600.0 ms.
	MaxThreshold float64

	// Ku is the threshold adaptation rate while the estimate magnitude is
	// above the threshold. Default: 0.01.
	Ku float64

	// Kd is the adaptation rate while the estimate magnitude is below the
	// threshold. Much smaller than Ku so the threshold relaxes slowly and
	// the detector does not oscillate. Default: 0.00018.
	Kd float64

	// OverusePersistence is how long the estimate must stay above the
	// threshold before Overusing is signaled, suppressing noise-driven
	// flapping. Default: 100ms.
	OverusePersistence time.Duration
}

// DefaultOveruseConfig returns the default detector parameters.
func DefaultOveruseConfig() OveruseConfig {
	return OveruseConfig{
		InitialThreshold:   12.5,
		MinThreshold:       6.0,
		MaxThreshold:       600.0,
		Ku:                 0.01,
		Kd:                 0.00018,
		OverusePersistence: 100 * time.Millisecond,
	}
}

// OveruseDetector classifies the filtered delay gradient into Normal,
// Overusing or Underusing by comparing it against an adaptive threshold
// gamma. The threshold tracks the estimate magnitude with asymmetric rates
// (Ku up, Kd down) and is clamped to [MinThreshold, MaxThreshold]. Overuse
// is only signaled after the condition has persisted for
// OverusePersistence on the sample timeline, and never while the gradient
// is already falling.
type OveruseDetector struct {
	config          OveruseConfig
	threshold       float64
	lastUpdateTime  time.Time
	overuseStart    time.Time
	overuseCounter  int
	inOveruseRegion bool
	prevEstimate    float64
	hypothesis      BandwidthUsage
	callback        StateChangeCallback
}

// NewOveruseDetector returns a detector for the configuration.
func NewOveruseDetector(config OveruseConfig) *OveruseDetector {
	return &OveruseDetector{
		config:     config,
		threshold:  config.InitialThreshold,
		hypothesis: BandwidthNormal,
	}
}

// SetCallback registers a state-change callback. Pass nil to disable.
func (d *OveruseDetector) SetCallback(cb StateChangeCallback) {
	d.callback = cb
}

// updateThreshold moves the threshold toward the estimate magnitude:
// gamma += deltaT * K * (|m| - gamma), K chosen by which side of the
// threshold the estimate is on.
func (d *OveruseDetector) updateThreshold(estimate float64, now time.Time) {
	absEstimate := math.Abs(estimate)

	if d.lastUpdateTime.IsZero() {
		d.lastUpdateTime = now
		return
	}

	deltaT := now.Sub(d.lastUpdateTime).Seconds()
	d.lastUpdateTime = now

	k := d.config.Kd
	if absEstimate > d.threshold {
		k = d.config.Ku
	}
	d.threshold += deltaT * k * (absEstimate - d.threshold)

	if d.threshold < d.config.MinThreshold {
		d.threshold = d.config.MinThreshold
	}
	if d.threshold > d.config.MaxThreshold {
		d.threshold = d.config.MaxThreshold
	}
}

// Detect classifies one filtered delay gradient estimate measured at
// arrival and returns the resulting state. Positive estimates indicate
// queue growth, negative estimates queue drain. Timing the persistence
// window and the threshold adaptation on packet arrival keeps the
// classification identical whether a trace is replayed in real time or
// faster.
func (d *OveruseDetector) Detect(estimate float64, arrival time.Time) BandwidthUsage {
	now := arrival
	d.updateThreshold(estimate, now)

	oldHypothesis := d.hypothesis

	switch {
	case estimate > d.threshold:
		if !d.inOveruseRegion {
			d.overuseStart = now
			d.overuseCounter = 0
			d.inOveruseRegion = true
		}
		d.overuseCounter++

		if estimate < d.prevEstimate {
			// Gradient already falling; do not signal.
			d.hypothesis = BandwidthNormal
		} else if now.Sub(d.overuseStart) >= d.config.OverusePersistence && d.overuseCounter > 1 {
			d.hypothesis = BandwidthOverusing
		}

	case estimate < -d.threshold:
		d.hypothesis = BandwidthUnderusing
		d.inOveruseRegion = false

	default:
		d.hypothesis = BandwidthNormal
		d.inOveruseRegion = false
	}

	d.prevEstimate = estimate

	if d.hypothesis != oldHypothesis && d.callback != nil {
		d.callback(oldHypothesis, d.hypothesis)
	}
	return d.hypothesis
}

// State returns the current state without processing a new estimate.
func (d *OveruseDetector) State() BandwidthUsage {
	return d.hypothesis
}

// Threshold returns the current adaptive threshold, for inspection.
func (d *OveruseDetector) Threshold() float64 {
	return d.threshold
}

// Reset restores the initial detector state, keeping the configuration.
func (d *OveruseDetector) Reset() {
	d.threshold = d.config.InitialThreshold
	d.hypothesis = BandwidthNormal
	d.overuseStart = time.Time{}
	d.overuseCounter = 0
	d.inOveruseRegion = false
	d.prevEstimate = 0
	d.lastUpdateTime = time.Time{}
}

package cc

import "time"

// TrendlineConfig configures the linear-regression delay trend estimator.
type TrendlineConfig struct {
	// WindowSize is the number of samples in the regression window. Larger
	// windows are more stable but respond more slowly. Default: 20.
	WindowSize int

	// SmoothingCoef is the exponential smoothing coefficient applied to the
	// accumulated delay before regression. Default: 0.9.
	SmoothingCoef float64

	// ThresholdGain scales the slope so it matches the overuse detector's
	// expected input range. Default: 4.0.
	ThresholdGain float64
}

// DefaultTrendlineConfig returns the WebRTC reference defaults.
func DefaultTrendlineConfig() TrendlineConfig {
	return TrendlineConfig{
		WindowSize:    20,
		SmoothingCoef: 0.9,
		ThresholdGain: 4.0,
	}
}

type trendSample struct {
	arrivalMs     float64
	smoothedDelay float64
}

// TrendlineEstimator estimates the delay trend by least-squares regression
// over a sliding window of smoothed accumulated delay samples. It is the
// modern alternative to the Kalman filter for driving the overuse detector.
type TrendlineEstimator struct {
	config        TrendlineConfig
	history       []trendSample
	smoothedDelay float64
	numDeltas     int
	firstArrival  time.Time
}

// NewTrendlineEstimator returns an estimator for the configuration. Window
// sizes below 2 (regression needs two points) fall back to the default.
func NewTrendlineEstimator(config TrendlineConfig) *TrendlineEstimator {
	if config.WindowSize < 2 {
		config.WindowSize = 20
	}
	return &TrendlineEstimator{
		config:  config,
		history: make([]trendSample, 0, config.WindowSize),
	}
}

// Update feeds one delay variation sample (milliseconds, signed) observed at
// arrivalTime and returns the modified trend: positive while delay grows,
// negative while it shrinks.
func (t *TrendlineEstimator) Update(arrivalTime time.Time, delayVariationMs float64) float64 {
	if t.firstArrival.IsZero() {
		t.firstArrival = arrivalTime
	}
	arrivalMs := float64(arrivalTime.Sub(t.firstArrival).Milliseconds())

	t.smoothedDelay = t.config.SmoothingCoef*t.smoothedDelay + (1-t.config.SmoothingCoef)*delayVariationMs

	t.history = append(t.history, trendSample{arrivalMs, t.smoothedDelay})
	if len(t.history) > t.config.WindowSize {
		t.history = t.history[1:]
	}
	t.numDeltas++

	slope := t.linearFitSlope()

	// Scale by sample count, capped at 60 to bound the startup transient.
	numSamples := float64(t.numDeltas)
	if numSamples > 60 {
		numSamples = 60
	}
	return numSamples * slope * t.config.ThresholdGain
}

// linearFitSlope computes the ordinary-least-squares slope of the window in
// units of smoothed delay per millisecond.
func (t *TrendlineEstimator) linearFitSlope() float64 {
	n := len(t.history)
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXX, sumXY float64
	for _, s := range t.history {
		sumX += s.arrivalMs
		sumY += s.smoothedDelay
		sumXX += s.arrivalMs * s.arrivalMs
		sumXY += s.arrivalMs * s.smoothedDelay
	}

	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (nf*sumXY - sumX*sumY) / denom
}

// Reset clears the estimator so it can track a fresh stream.
func (t *TrendlineEstimator) Reset() {
	t.history = t.history[:0]
	t.smoothedDelay = 0
	t.numDeltas = 0
	t.firstArrival = time.Time{}
}

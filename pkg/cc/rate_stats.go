package cc

import "time"

// RateStatsConfig configures the sliding-window throughput measurement.
type RateStatsConfig struct {
	// WindowSize is the sliding window duration. Default: 1 second.
	WindowSize time.Duration
}

// DefaultRateStatsConfig returns the default window of one second.
func DefaultRateStatsConfig() RateStatsConfig {
	return RateStatsConfig{WindowSize: time.Second}
}

type rateSample struct {
	timestamp time.Time
	bytes     int64
}

// RateStats measures the received bitrate over a sliding time window. This
// is the "measured receive throughput" the AIMD controller multiplies by
// beta on overuse.
type RateStats struct {
	windowSize time.Duration
	samples    []rateSample
	totalBytes int64
}

// NewRateStats returns a tracker with the configured window. A window <= 0
// selects the default.
func NewRateStats(config RateStatsConfig) *RateStats {
	windowSize := config.WindowSize
	if windowSize <= 0 {
		windowSize = time.Second
	}
	return &RateStats{
		windowSize: windowSize,
		samples:    make([]rateSample, 0, 64),
	}
}

// Update records bytes received at the given time and expires samples that
// fell out of the window.
func (r *RateStats) Update(bytes int64, now time.Time) {
	r.removeExpired(now)
	r.samples = append(r.samples, rateSample{timestamp: now, bytes: bytes})
	r.totalBytes += bytes
}

// Rate returns the current bitrate in bits per second. ok is false when the
// window holds fewer than two samples or spans less than a millisecond, in
// which case no meaningful rate exists yet.
func (r *RateStats) Rate(now time.Time) (bitsPerSec int64, ok bool) {
	r.removeExpired(now)

	if len(r.samples) < 2 {
		return 0, false
	}

	elapsed := r.samples[len(r.samples)-1].timestamp.Sub(r.samples[0].timestamp)
	if elapsed < time.Millisecond {
		return 0, false
	}

	return int64(float64(r.totalBytes*8) / elapsed.Seconds()), true
}

// Reset discards all samples.
func (r *RateStats) Reset() {
	r.samples = r.samples[:0]
	r.totalBytes = 0
}

func (r *RateStats) removeExpired(now time.Time) {
	cutoff := now.Add(-r.windowSize)

	expired := 0
	for _, s := range r.samples {
		if !s.timestamp.Before(cutoff) {
			break
		}
		r.totalBytes -= s.bytes
		expired++
	}
	if expired > 0 {
		r.samples = r.samples[expired:]
	}
}

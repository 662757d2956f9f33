package cc

import (
	"time"

	"github.com/thesyncim/cc/pkg/cc/internal"
)

// FilterType selects the delay filter driving the overuse detector.
type FilterType int

const (
	// FilterKalman selects the scalar Kalman filter from the GCC draft.
	FilterKalman FilterType = iota

	// FilterTrendline selects the linear-regression trendline estimator
	// used by modern WebRTC implementations.
	FilterTrendline
)

// RemoteEstimatorConfig configures the delay-based remote bitrate estimator.
type RemoteEstimatorConfig struct {
	// FilterType selects the delay filter.
	FilterType FilterType

	// SendTimeWindow is the send-time span used to group packets.
	SendTimeWindow time.Duration

	// KalmanConfig applies when FilterType is FilterKalman.
	KalmanConfig KalmanConfig

	// TrendlineConfig applies when FilterType is FilterTrendline.
	TrendlineConfig TrendlineConfig

	// OveruseConfig configures the overuse detector.
	OveruseConfig OveruseConfig

	// RateStatsConfig configures the receive throughput measurement.
	RateStatsConfig RateStatsConfig

	// RateControllerConfig configures the AIMD rate controller.
	RateControllerConfig RateControllerConfig

	// UpdateInterval is the minimum spacing between emitted estimates. The
	// estimator reports "no update" for packets arriving inside the
	// interval. Default: 200ms.
	UpdateInterval time.Duration

	// StalenessTimeout is the arrival gap after which the filter state is
	// considered stale and reset instead of propagating a corrupted trend.
	// Default: 2s.
	StalenessTimeout time.Duration

	// SSRCTimeout is how long an SSRC stays in the contributing set after
	// its last packet. Default: 10s.
	SSRCTimeout time.Duration
}

// DefaultRemoteEstimatorConfig returns the default estimator configuration
// using the Kalman filter.
func DefaultRemoteEstimatorConfig() RemoteEstimatorConfig {
	return RemoteEstimatorConfig{
		FilterType:           FilterKalman,
		SendTimeWindow:       DefaultSendTimeWindow,
		KalmanConfig:         DefaultKalmanConfig(),
		TrendlineConfig:      DefaultTrendlineConfig(),
		OveruseConfig:        DefaultOveruseConfig(),
		RateStatsConfig:      DefaultRateStatsConfig(),
		RateControllerConfig: DefaultRateControllerConfig(),
		UpdateInterval:       200 * time.Millisecond,
		StalenessTimeout:     2 * time.Second,
		SSRCTimeout:          10 * time.Second,
	}
}

// delayFilter abstracts the Kalman and trendline filters. Both consume
// per-group delay variations in milliseconds and produce a smoothed trend
// estimate.
type delayFilter interface {
	Update(arrivalTime time.Time, delayMs float64) float64
	Reset()
}

// kalmanAdapter ignores the arrival time, which Kalman filtering does not
// need.
type kalmanAdapter struct {
	filter *KalmanFilter
}

func (k *kalmanAdapter) Update(_ time.Time, delayMs float64) float64 {
	return k.filter.Update(delayMs)
}

func (k *kalmanAdapter) Reset() {
	k.filter.Reset()
}

type trendlineAdapter struct {
	estimator *TrendlineEstimator
}

func (t *trendlineAdapter) Update(arrivalTime time.Time, delayMs float64) float64 {
	return t.estimator.Update(arrivalTime, delayMs)
}

func (t *trendlineAdapter) Reset() {
	t.estimator.Reset()
}

// RemoteBitrateEstimator converts per-packet arrival and send timestamps
// into the receiver-side capacity estimate Ar. The pipeline is:
//
//  1. GroupDelayAccumulator groups packets into send-time windows and
//     measures the inter-group delay gradient.
//  2. A Kalman or trendline filter smooths the gradient.
//  3. The OveruseDetector classifies the filtered trend.
//  4. The AIMD RateController turns the classification plus the measured
//     receive throughput into the Ar estimate.
//
// A fresh (Ar, ssrcList) pair is emitted at most once per UpdateInterval.
// An arrival gap beyond StalenessTimeout resets the filter chain rather
// than feeding it a meaningless gradient.
type RemoteBitrateEstimator struct {
	config         RemoteEstimatorConfig
	clock          internal.Clock
	groups         *GroupDelayAccumulator
	filter         delayFilter
	detector       *OveruseDetector
	rateStats      *RateStats
	rateController *RateController

	lastArrival time.Time
	lastEmit    time.Time
	emitted     bool
	lastSeen    map[uint32]time.Time
}

// NewRemoteBitrateEstimator returns an estimator for the configuration. A
// nil clock selects the system monotonic clock.
func NewRemoteBitrateEstimator(config RemoteEstimatorConfig, clock internal.Clock) *RemoteBitrateEstimator {
	if clock == nil {
		clock = internal.MonotonicClock{}
	}
	if config.UpdateInterval <= 0 {
		config.UpdateInterval = 200 * time.Millisecond
	}
	if config.StalenessTimeout <= 0 {
		config.StalenessTimeout = 2 * time.Second
	}
	if config.SSRCTimeout <= 0 {
		config.SSRCTimeout = 10 * time.Second
	}

	var filter delayFilter
	switch config.FilterType {
	case FilterTrendline:
		filter = &trendlineAdapter{estimator: NewTrendlineEstimator(config.TrendlineConfig)}
	default:
		filter = &kalmanAdapter{filter: NewKalmanFilter(config.KalmanConfig)}
	}

	return &RemoteBitrateEstimator{
		config:         config,
		clock:          clock,
		groups:         NewGroupDelayAccumulator(config.SendTimeWindow),
		filter:         filter,
		detector:       NewOveruseDetector(config.OveruseConfig),
		rateStats:      NewRateStats(config.RateStatsConfig),
		rateController: NewRateController(config.RateControllerConfig),
		lastSeen:       make(map[uint32]time.Time),
	}
}

// Add feeds one received packet. When a new estimate is due it returns
// (Ar, contributing SSRCs, true); otherwise ok is false. Ar is always a
// positive bitrate in bits per second when ok is true.
func (e *RemoteBitrateEstimator) Add(pkt PacketSample) (ar int64, ssrcs []uint32, ok bool) {
	// A long silence means the queued trend state describes a network state
	// that no longer exists.
	if !e.lastArrival.IsZero() && pkt.ArrivalTime.Sub(e.lastArrival) > e.config.StalenessTimeout {
		e.resetFilterChain()
	}
	e.lastArrival = pkt.ArrivalTime
	e.lastSeen[pkt.SSRC] = pkt.ArrivalTime

	e.rateStats.Update(int64(pkt.Size), pkt.ArrivalTime)

	signal := e.detector.State()
	if gradient, hasGradient := e.groups.AddPacket(pkt); hasGradient {
		delayMs := float64(gradient.Microseconds()) / 1000.0
		trend := e.filter.Update(pkt.ArrivalTime, delayMs)
		signal = e.detector.Detect(trend, pkt.ArrivalTime)
	}

	incomingRate, haveRate := e.rateStats.Rate(pkt.ArrivalTime)
	if !haveRate {
		return 0, nil, false
	}

	e.rateController.Update(signal, incomingRate, pkt.ArrivalTime)

	if e.emitted && pkt.ArrivalTime.Sub(e.lastEmit) < e.config.UpdateInterval {
		return 0, nil, false
	}
	e.lastEmit = pkt.ArrivalTime
	e.emitted = true

	return e.rateController.Estimate(), e.contributingSSRCs(pkt.ArrivalTime), true
}

// contributingSSRCs returns the streams seen within SSRCTimeout, pruning
// expired entries.
func (e *RemoteBitrateEstimator) contributingSSRCs(now time.Time) []uint32 {
	ssrcs := make([]uint32, 0, len(e.lastSeen))
	for ssrc, seen := range e.lastSeen {
		if now.Sub(seen) > e.config.SSRCTimeout {
			delete(e.lastSeen, ssrc)
			continue
		}
		ssrcs = append(ssrcs, ssrc)
	}
	return ssrcs
}

// resetFilterChain clears the trend state but keeps the rate controller's
// estimate, which is still the best available starting point.
func (e *RemoteBitrateEstimator) resetFilterChain() {
	e.groups.Reset()
	e.filter.Reset()
	e.detector.Reset()
	e.rateStats.Reset()
}

// State returns the detector's current congestion classification.
func (e *RemoteBitrateEstimator) State() BandwidthUsage {
	return e.detector.State()
}

// RateControlState returns the AIMD controller's current state.
func (e *RemoteBitrateEstimator) RateControlState() RateControlState {
	return e.rateController.State()
}

// Estimate returns the most recent Ar without processing a packet. ok is
// false before the first emission.
func (e *RemoteBitrateEstimator) Estimate() (int64, bool) {
	if !e.emitted {
		return 0, false
	}
	return e.rateController.Estimate(), true
}

// IncomingRate returns the measured receive throughput, if available.
func (e *RemoteBitrateEstimator) IncomingRate() (int64, bool) {
	return e.rateStats.Rate(e.clock.Now())
}

// SetStateChangeCallback registers a detector state-change callback.
func (e *RemoteBitrateEstimator) SetStateChangeCallback(cb StateChangeCallback) {
	e.detector.SetCallback(cb)
}

// Reset restores the estimator to its initial state.
func (e *RemoteBitrateEstimator) Reset() {
	e.resetFilterChain()
	e.rateController.Reset()
	e.lastArrival = time.Time{}
	e.lastEmit = time.Time{}
	e.emitted = false
	e.lastSeen = make(map[uint32]time.Time)
}

package cc

import (
	"math"
	"time"
)

// RateControlState is the AIMD state machine state.
type RateControlState int

const (
	// RateHold keeps the current rate. This is the initial state and the
	// buffer between Decrease and Increase.
	RateHold RateControlState = iota
	// RateIncrease grows the rate, multiplicatively while ramping and
	// additively once near the last observed throughput.
	RateIncrease
	// RateDecrease applies the multiplicative backoff.
	RateDecrease
)

// String returns a human-readable name for the state.
func (s RateControlState) String() string {
	switch s {
	case RateHold:
		return "Hold"
	case RateIncrease:
		return "Increase"
	case RateDecrease:
		return "Decrease"
	default:
		return "Unknown"
	}
}

// RateControllerConfig configures the AIMD rate controller.
type RateControllerConfig struct {
	// MinBitrate is the lower clamp in bits per second. Default: 10 kbps.
	MinBitrate int64

	// MaxBitrate is the upper clamp in bits per second. Default: 30 Mbps.
	MaxBitrate int64

	// InitialBitrate is the starting estimate in bits per second.
	// Default: 300 kbps.
	InitialBitrate int64

	// Beta is the multiplicative decrease factor. On overuse,
	// rate = Beta * measured receive throughput. Default: 0.85.
	Beta float64

	// Eta is the multiplicative increase base; the rate grows by
	// Eta^elapsedSeconds per update while ramping. Default: 1.08.
	Eta float64

	// RTT is the round-trip time assumed for the additive increase step of
	// half an average packet per RTT. Default: 200ms.
	RTT time.Duration

	// DecreaseCooldown is how long after a decrease the controller holds
	// instead of resuming increase on a Normal signal. Default: 200ms.
	DecreaseCooldown time.Duration
}

// DefaultRateControllerConfig returns the default AIMD parameters.
func DefaultRateControllerConfig() RateControllerConfig {
	return RateControllerConfig{
		MinBitrate:       10_000,
		MaxBitrate:       30_000_000,
		InitialBitrate:   300_000,
		Beta:             0.85,
		Eta:              1.08,
		RTT:              200 * time.Millisecond,
		DecreaseCooldown: 200 * time.Millisecond,
	}
}

// RateController implements the AIMD control law consuming overuse
// detector signals:
//
//	Signal     | Hold     | Increase | Decrease
//	-----------+----------+----------+----------
//	Overusing  | Decrease | Decrease | (stay)
//	Normal     | Increase | (stay)   | Hold
//	Underusing | (stay)   | Hold     | Hold
//
// plus a cool-down: a Normal signal shortly after a decrease holds rather
// than immediately probing upward again.
//
// The decrease always uses the measured receive throughput, not the previous
// target, so a stale estimate cannot compound. The throughput observed at
// decreases is averaged into a link-capacity estimate; once the rate is near
// that capacity, growth switches from multiplicative to additive (half an
// average packet per RTT) to probe gently instead of overshooting.
type RateController struct {
	config      RateControllerConfig
	state       RateControlState
	currentRate int64
	lastUpdate  time.Time

	// Link capacity observed at decreases, bits per second. Zero until the
	// first decrease, meaning the near-max regime is not yet known.
	avgMaxThroughput float64
	lastDecrease     time.Time
}

// NewRateController returns a controller with defaults applied for zero or
// out-of-range configuration values.
func NewRateController(config RateControllerConfig) *RateController {
	if config.MinBitrate <= 0 {
		config.MinBitrate = 10_000
	}
	if config.MaxBitrate <= 0 {
		config.MaxBitrate = 30_000_000
	}
	if config.InitialBitrate <= 0 {
		config.InitialBitrate = 300_000
	}
	if config.Beta <= 0 || config.Beta >= 1.0 {
		config.Beta = 0.85
	}
	if config.Eta <= 1.0 {
		config.Eta = 1.08
	}
	if config.RTT <= 0 {
		config.RTT = 200 * time.Millisecond
	}
	if config.DecreaseCooldown < 0 {
		config.DecreaseCooldown = 200 * time.Millisecond
	}

	return &RateController{
		config:      config,
		state:       RateHold,
		currentRate: config.InitialBitrate,
	}
}

// Update consumes one congestion signal together with the measured incoming
// rate and returns the new estimate in bits per second.
func (c *RateController) Update(signal BandwidthUsage, incomingRate int64, now time.Time) int64 {
	c.transitionState(signal, now)
	c.adjustRate(incomingRate, now)

	// Keep the estimate tied to reality: never more than 1.5x what is
	// actually arriving. The [min, max] clamp runs last so the bounds win.
	if incomingRate > 0 {
		maxByRatio := int64(1.5 * float64(incomingRate))
		if c.currentRate > maxByRatio {
			c.currentRate = maxByRatio
		}
	}
	c.clampRate()

	c.lastUpdate = now
	return c.currentRate
}

func (c *RateController) transitionState(signal BandwidthUsage, now time.Time) {
	switch c.state {
	case RateHold:
		switch signal {
		case BandwidthOverusing:
			c.state = RateDecrease
		case BandwidthNormal:
			if c.inCooldown(now) {
				return // just decreased, hold
			}
			c.state = RateIncrease
		case BandwidthUnderusing:
			// stay
		}

	case RateIncrease:
		switch signal {
		case BandwidthOverusing:
			c.state = RateDecrease
		case BandwidthNormal:
			// stay
		case BandwidthUnderusing:
			c.state = RateHold
		}

	case RateDecrease:
		switch signal {
		case BandwidthOverusing:
			// stay
		case BandwidthNormal, BandwidthUnderusing:
			c.state = RateHold
		}
	}
}

func (c *RateController) inCooldown(now time.Time) bool {
	return !c.lastDecrease.IsZero() && now.Sub(c.lastDecrease) < c.config.DecreaseCooldown
}

func (c *RateController) adjustRate(incomingRate int64, now time.Time) {
	switch c.state {
	case RateDecrease:
		// Back off from the measured throughput, not the previous target.
		c.currentRate = int64(c.config.Beta * float64(incomingRate))
		c.updateLinkCapacity(incomingRate)
		c.lastDecrease = now

	case RateIncrease:
		if c.lastUpdate.IsZero() {
			return
		}
		elapsed := now.Sub(c.lastUpdate).Seconds()
		elapsed = math.Min(elapsed, 1.0) // bound jumps after idle periods
		if elapsed <= 0 {
			return
		}
		if c.nearMax() {
			c.currentRate += c.additiveIncrease(incomingRate, elapsed)
		} else {
			eta := math.Pow(c.config.Eta, elapsed)
			c.currentRate = int64(eta * float64(c.currentRate))
		}

	case RateHold:
		// no change
	}
}

// updateLinkCapacity folds the throughput measured at a decrease into the
// running capacity estimate.
func (c *RateController) updateLinkCapacity(incomingRate int64) {
	const alpha = 0.05
	if c.avgMaxThroughput <= 0 {
		c.avgMaxThroughput = float64(incomingRate)
		return
	}
	c.avgMaxThroughput = (1-alpha)*c.avgMaxThroughput + alpha*float64(incomingRate)
}

// nearMax reports whether the current rate is close enough to the observed
// link capacity that multiplicative growth would overshoot.
func (c *RateController) nearMax() bool {
	return c.avgMaxThroughput > 0 && float64(c.currentRate) >= 0.95*c.avgMaxThroughput
}

// additiveIncrease returns the rate increment for the near-max regime: half
// an average packet per RTT, scaled by the elapsed time. The average packet
// size is derived from the incoming rate assuming 30 frames per second and
// 1200-byte packets, matching the reference AIMD controller.
func (c *RateController) additiveIncrease(incomingRate int64, elapsedSeconds float64) int64 {
	rate := float64(incomingRate)
	if rate <= 0 {
		rate = float64(c.currentRate)
	}

	bitsPerFrame := rate / 30.0
	packetsPerFrame := math.Ceil(bitsPerFrame / (1200 * 8))
	if packetsPerFrame < 1 {
		packetsPerFrame = 1
	}
	avgPacketBits := bitsPerFrame / packetsPerFrame

	increasePerSecond := 0.5 * avgPacketBits / c.config.RTT.Seconds()
	if increasePerSecond < 4000 {
		increasePerSecond = 4000 // keep probing even at very low rates
	}
	return int64(increasePerSecond * elapsedSeconds)
}

func (c *RateController) clampRate() {
	if c.currentRate < c.config.MinBitrate {
		c.currentRate = c.config.MinBitrate
	}
	if c.currentRate > c.config.MaxBitrate {
		c.currentRate = c.config.MaxBitrate
	}
}

// State returns the current AIMD state.
func (c *RateController) State() RateControlState {
	return c.state
}

// Estimate returns the current estimate without updating.
func (c *RateController) Estimate() int64 {
	return c.currentRate
}

// LinkCapacity returns the running capacity estimate derived from the
// throughput observed at decreases. Zero before the first decrease.
func (c *RateController) LinkCapacity() int64 {
	return int64(c.avgMaxThroughput)
}

// Reset restores the initial state and estimate.
func (c *RateController) Reset() {
	c.state = RateHold
	c.currentRate = c.config.InitialBitrate
	c.lastUpdate = time.Time{}
	c.avgMaxThroughput = 0
	c.lastDecrease = time.Time{}
}

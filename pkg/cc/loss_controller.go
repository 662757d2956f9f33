package cc

import "math"

// Loss fraction thresholds from the GCC loss-based control law. Loss below
// lossIncreaseThreshold is attributable to jitter on a healthy link, loss
// above lossDecreaseThreshold indicates congestion, and the band between
// the two holds the rate to keep the controller from oscillating on every
// report with nonzero loss.
const (
	lossDecreaseThreshold = 0.10
	lossIncreaseThreshold = 0.02
	lossIncreaseFactor    = 1.05
)

// LossControllerConfig configures the loss-based rate controller.
type LossControllerConfig struct {
	// InitialBitrate is the starting As estimate in bits per second.
	// Default: 500 kbps.
	InitialBitrate int64

	// MinBitrate is the lower clamp in bits per second. Default: 10 kbps.
	MinBitrate int64

	// MaxBitrate is the upper clamp in bits per second. Default: 10 Mbps.
	MaxBitrate int64

	// Ceiling is an optional externally injected upper bound applied before
	// the [MinBitrate, MaxBitrate] clamp. Zero disables it. This is an
	// evaluation hook for controlled experiments, not part of steady-state
	// behavior.
	Ceiling int64
}

// DefaultLossControllerConfig returns the default loss controller bounds.
func DefaultLossControllerConfig() LossControllerConfig {
	return LossControllerConfig{
		InitialBitrate: 500_000,
		MinBitrate:     10_000,
		MaxBitrate:     10_000_000,
	}
}

// LossController maintains the sender-side estimate As driven purely by
// receiver-reported fractional loss, independent of the delay signal. Per
// receiver report (~1 Hz):
//
//	fractionLost > 0.10: As *= (1 - 0.5*fractionLost)
//	fractionLost < 0.02: As *= 1.05
//	otherwise:           hold
//
// followed by the optional ceiling and the [min, max] clamp, so As is always
// inside the configured bounds after every update.
type LossController struct {
	config LossControllerConfig
	as     float64
}

// NewLossController returns a controller with defaults applied for zero
// configuration values and the initial bitrate pre-clamped to the bounds.
func NewLossController(config LossControllerConfig) *LossController {
	if config.InitialBitrate <= 0 {
		config.InitialBitrate = 500_000
	}
	if config.MinBitrate <= 0 {
		config.MinBitrate = 10_000
	}
	if config.MaxBitrate <= 0 {
		config.MaxBitrate = 10_000_000
	}
	c := &LossController{
		config: config,
		as:     float64(config.InitialBitrate),
	}
	c.clamp()
	return c
}

// Update applies one receiver report's fraction lost (normalized to [0, 1])
// and returns the new As in bits per second. Out-of-range or NaN inputs are
// clipped, never fatal: garbage in a report must not move the estimate more
// than a genuine 100% loss would.
func (c *LossController) Update(fractionLost float64) int64 {
	if math.IsNaN(fractionLost) || fractionLost < 0 {
		fractionLost = 0
	} else if fractionLost > 1 {
		fractionLost = 1
	}

	if fractionLost > lossDecreaseThreshold {
		c.as *= 1.0 - 0.5*fractionLost
	} else if fractionLost < lossIncreaseThreshold {
		c.as *= lossIncreaseFactor
	}

	c.clamp()
	return c.Bitrate()
}

func (c *LossController) clamp() {
	if c.config.Ceiling > 0 && c.as > float64(c.config.Ceiling) {
		c.as = float64(c.config.Ceiling)
	}
	if c.as < float64(c.config.MinBitrate) {
		c.as = float64(c.config.MinBitrate)
	}
	if c.as > float64(c.config.MaxBitrate) {
		c.as = float64(c.config.MaxBitrate)
	}
}

// Bitrate returns the current As in bits per second, rounded to the nearest
// integer.
func (c *LossController) Bitrate() int64 {
	return int64(math.Round(c.as))
}

// Reset restores the initial estimate.
func (c *LossController) Reset() {
	c.as = float64(c.config.InitialBitrate)
	c.clamp()
}

// FractionLostFromByte converts the 8-bit fraction_lost field of an RTCP
// receiver report to a normalized loss fraction: 0 maps to 0.0 and 255 to
// 1.0.
func FractionLostFromByte(b uint8) float64 {
	return float64(b) / 255.0
}

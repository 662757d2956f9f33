package cc

import "math"

// KalmanConfig holds the tunable parameters of the delay gradient filter.
// Defaults follow the published GCC values.
type KalmanConfig struct {
	// ProcessNoise (q) is the state noise variance. Default: 1e-3.
	ProcessNoise float64

	// InitialError e(0) is the starting error covariance. Default: 0.1.
	InitialError float64

	// Chi is the exponential smoothing coefficient for the measurement
	// noise variance, in the recommended range [0.001, 0.1]. Default: 0.01.
	Chi float64
}

// DefaultKalmanConfig returns the published default parameters.
func DefaultKalmanConfig() KalmanConfig {
	return KalmanConfig{
		ProcessNoise: 0.001,
		InitialError: 0.1,
		Chi:          0.01,
	}
}

// KalmanFilter is a scalar Kalman filter tracking the delay gradient m_hat
// from noisy per-group delay variation measurements. The gain adapts to the
// recent residual variance: under low noise the filter weights recent
// samples more heavily.
//
// The filter estimates the trend of delay, not absolute delay. Positive
// estimates mean the queue is building, negative that it is draining.
type KalmanFilter struct {
	config       KalmanConfig
	estimate     float64 // m_hat(i), ms
	errorCov     float64 // e(i)
	measureNoise float64 // var_v_hat
}

// NewKalmanFilter returns a filter initialized per the configuration.
func NewKalmanFilter(config KalmanConfig) *KalmanFilter {
	return &KalmanFilter{
		config:       config,
		estimate:     0,
		errorCov:     config.InitialError,
		measureNoise: 1.0,
	}
}

// Update feeds one delay variation measurement in milliseconds and returns
// the new gradient estimate.
func (k *KalmanFilter) Update(measurement float64) float64 {
	z := measurement - k.estimate

	// Cap the innovation at 3 standard deviations when feeding the noise
	// estimator, so a single outlier cannot blow up the variance.
	maxDeviation := 3 * math.Sqrt(k.measureNoise)
	zCapped := z
	if z > maxDeviation {
		zCapped = maxDeviation
	} else if z < -maxDeviation {
		zCapped = -maxDeviation
	}

	// var_v_hat = (1 - chi) * var_v_hat + chi * z_capped^2, floored at 1.0
	k.measureNoise = math.Max(1.0, (1-k.config.Chi)*k.measureNoise+k.config.Chi*zCapped*zCapped)

	// K = (e + q) / (var_v + e + q)
	gain := (k.errorCov + k.config.ProcessNoise) / (k.measureNoise + k.errorCov + k.config.ProcessNoise)

	// State update uses the uncapped innovation; capping is only for the
	// variance estimate.
	k.estimate += z * gain

	// e(i) = (1 - K) * (e(i-1) + q)
	k.errorCov = (1 - gain) * (k.errorCov + k.config.ProcessNoise)

	return k.estimate
}

// Estimate returns the current gradient estimate without updating.
func (k *KalmanFilter) Estimate() float64 {
	return k.estimate
}

// Reset restores the filter to its initial state.
func (k *KalmanFilter) Reset() {
	k.estimate = 0
	k.errorCov = k.config.InitialError
	k.measureNoise = 1.0
}

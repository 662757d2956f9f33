// Package cc implements pluggable congestion control for real-time media
// transport. It combines a delay-based remote bitrate estimator (the Google
// Congestion Control delay path) with a loss-based rate controller, and
// exposes both through a strategy interface selected by algorithm name.
package cc

import "time"

// BandwidthUsage is the congestion state reported by the delay-based
// overuse detector.
type BandwidthUsage int

const (
	// BandwidthNormal means no queuing-delay trend is visible.
	BandwidthNormal BandwidthUsage = iota
	// BandwidthUnderusing means the queue is draining; the path is
	// underutilized.
	BandwidthUnderusing
	// BandwidthOverusing means a sustained queuing-delay increase was
	// detected.
	BandwidthOverusing
)

// String returns a human-readable name for the state.
func (b BandwidthUsage) String() string {
	switch b {
	case BandwidthNormal:
		return "Normal"
	case BandwidthUnderusing:
		return "Underusing"
	case BandwidthOverusing:
		return "Overusing"
	default:
		return "Unknown"
	}
}

// PacketSample describes one received RTP packet as seen by the delay-based
// estimator. Samples are consumed immediately; the estimator keeps no
// reference to them after OnPacketReceived returns.
type PacketSample struct {
	// ArrivalTime is the local receive time. It must come from a monotonic
	// clock source; in Go, time.Now carries a monotonic reading.
	ArrivalTime time.Time

	// AbsSendTime is the 24-bit abs-send-time value from the RTP header
	// extension: a 6.18 fixed-point timestamp that wraps every 64 seconds.
	AbsSendTime uint32

	// Size is the packet payload size in bytes.
	Size int

	// SSRC identifies the media stream the packet belongs to.
	SSRC uint32
}

// Constants describing the abs-send-time header extension format.
const (
	// AbsSendTimeMax is one past the largest 24-bit abs-send-time value.
	// The field wraps at this point, every 64 seconds.
	AbsSendTimeMax = 1 << 24

	// AbsSendTimeResolution is the duration of one abs-send-time unit in
	// seconds: 1/2^18, roughly 3.8 microseconds.
	AbsSendTimeResolution = 1.0 / (1 << 18)
)

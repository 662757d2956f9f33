// Package interceptor provides a Pion WebRTC interceptor that drives a
// cc.Controller: it feeds incoming RTP packet timing to the delay-based
// estimator, inbound RTCP receiver reports to the loss-based path, and
// sends REMB feedback carrying the resulting estimate.
package interceptor

import (
	"github.com/pion/interceptor"
)

// RTP header extension URIs carrying send-side timing. The extension IDs
// are negotiated via SDP and arrive through StreamInfo.RTPHeaderExtensions.
const (
	// AbsSendTimeURI identifies the 3-byte abs-send-time extension: 6.18
	// fixed-point seconds, wrapping every ~64 seconds.
	AbsSendTimeURI = "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"

	// AbsCaptureTimeURI identifies the 8-byte abs-capture-time extension:
	// a UQ32.32 NTP capture timestamp.
	AbsCaptureTimeURI = "http://www.webrtc.org/experiments/rtp-hdrext/abs-capture-time"
)

// FindExtensionID returns the negotiated ID for the extension with the
// given URI, or 0 when it was not negotiated. ID 0 is invalid per RFC 5285,
// so callers treat it as "absent" and skip timing-based processing.
func FindExtensionID(exts []interceptor.RTPHeaderExtension, uri string) uint8 {
	for _, ext := range exts {
		if ext.URI == uri {
			return uint8(ext.ID)
		}
	}
	return 0
}

// FindAbsSendTimeID returns the negotiated abs-send-time extension ID, or 0.
func FindAbsSendTimeID(exts []interceptor.RTPHeaderExtension) uint8 {
	return FindExtensionID(exts, AbsSendTimeURI)
}

// FindAbsCaptureTimeID returns the negotiated abs-capture-time extension
// ID, or 0.
func FindAbsCaptureTimeID(exts []interceptor.RTPHeaderExtension) uint8 {
	return FindExtensionID(exts, AbsCaptureTimeURI)
}

package cc

import "time"

// AbsSendTimeToDuration converts a 24-bit abs-send-time value to a Duration
// by interpreting it as 6.18 fixed-point seconds. Value 1<<18 is exactly one
// second.
func AbsSendTimeToDuration(value uint32) time.Duration {
	seconds := float64(value) * AbsSendTimeResolution
	return time.Duration(seconds * float64(time.Second))
}

// UnwrapAbsSendTime returns the signed delta between two abs-send-time
// values in abs-send-time units, handling wraparound at the 64-second
// boundary with a half-range comparison: an apparent jump of more than 32
// seconds in either direction is interpreted as a wrap in the opposite
// direction.
func UnwrapAbsSendTime(prev, curr uint32) int64 {
	diff := int32(curr) - int32(prev)

	const halfRange = int32(AbsSendTimeMax / 2)
	if diff > halfRange {
		diff -= int32(AbsSendTimeMax)
	} else if diff < -halfRange {
		diff += int32(AbsSendTimeMax)
	}

	return int64(diff)
}

// UnwrapAbsSendTimeDuration returns the wrap-corrected time delta between
// two abs-send-time values as a Duration.
func UnwrapAbsSendTimeDuration(prev, curr uint32) time.Duration {
	delta := UnwrapAbsSendTime(prev, curr)
	seconds := float64(delta) * AbsSendTimeResolution
	return time.Duration(seconds * float64(time.Second))
}

// AbsCaptureTimeResolution is the duration of one abs-capture-time unit in
// seconds. The extension carries a 64-bit UQ32.32 NTP timestamp, so one unit
// is 1/2^32 seconds.
const AbsCaptureTimeResolution = 1.0 / (1 << 32)

// AbsCaptureTimeToDuration converts a 64-bit abs-capture-time value to a
// Duration: the upper 32 bits are whole seconds, the lower 32 bits are the
// fraction.
func AbsCaptureTimeToDuration(value uint64) time.Duration {
	seconds := value >> 32
	fraction := value & 0xFFFFFFFF

	fractionDuration := time.Duration(float64(fraction) * AbsCaptureTimeResolution * float64(time.Second))
	return time.Duration(seconds)*time.Second + fractionDuration
}

// UnwrapAbsCaptureTime returns the signed delta between two abs-capture-time
// values. The 64-bit range spans ~136 years, so no wrap handling is needed
// within a session.
func UnwrapAbsCaptureTime(prev, curr uint64) int64 {
	return int64(curr) - int64(prev)
}

// UnwrapAbsCaptureTimeDuration returns the delta between two
// abs-capture-time values as a Duration.
func UnwrapAbsCaptureTimeDuration(prev, curr uint64) time.Duration {
	delta := UnwrapAbsCaptureTime(prev, curr)
	seconds := float64(delta) * AbsCaptureTimeResolution
	return time.Duration(seconds * float64(time.Second))
}

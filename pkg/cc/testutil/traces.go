// Package testutil provides test support for the cc package: synthetic
// packet trace generators for various network conditions and a
// WebRTC-ready headless browser client for end-to-end tests.
package testutil

import (
	"time"

	"github.com/thesyncim/cc/pkg/cc"
	"github.com/thesyncim/cc/pkg/cc/internal"
)

// abs-send-time advances ~262 units per millisecond (2^18 units per second).
const astUnitsPerMs = 262

// StableNetworkTrace generates packets arriving at exactly the rate they
// were sent: no queue building or draining.
func StableNetworkTrace(clock *internal.MockClock, count, intervalMs int) []cc.PacketSample {
	packets := make([]cc.PacketSample, count)
	sendTime := uint32(0)

	for i := range packets {
		packets[i] = cc.PacketSample{
			ArrivalTime: clock.Now(),
			AbsSendTime: sendTime,
			Size:        1200,
			SSRC:        0x12345678,
		}
		sendTime += uint32(intervalMs * astUnitsPerMs)
		clock.Advance(time.Duration(intervalMs) * time.Millisecond)
	}
	return packets
}

// CongestingNetworkTrace generates packets whose arrival lags further
// behind send time with every packet, simulating a growing bottleneck
// queue. delayIncreaseMs is the extra arrival delay added per packet.
func CongestingNetworkTrace(clock *internal.MockClock, count, intervalMs int, delayIncreaseMs float64) []cc.PacketSample {
	packets := make([]cc.PacketSample, count)
	sendTime := uint32(0)

	for i := range packets {
		packets[i] = cc.PacketSample{
			ArrivalTime: clock.Now(),
			AbsSendTime: sendTime,
			Size:        1200,
			SSRC:        0x12345678,
		}
		sendTime += uint32(intervalMs * astUnitsPerMs)
		clock.Advance(time.Duration(float64(intervalMs)+delayIncreaseMs) * time.Millisecond)
	}
	return packets
}

// DrainingNetworkTrace generates packets that arrive progressively earlier
// than their send spacing predicts, simulating a draining queue.
// delayDecreaseMs is the arrival delay removed per packet; arrival still
// advances at least 1ms per packet to stay monotonic.
func DrainingNetworkTrace(clock *internal.MockClock, count, intervalMs int, delayDecreaseMs float64) []cc.PacketSample {
	packets := make([]cc.PacketSample, count)
	sendTime := uint32(0)

	for i := range packets {
		packets[i] = cc.PacketSample{
			ArrivalTime: clock.Now(),
			AbsSendTime: sendTime,
			Size:        1200,
			SSRC:        0x12345678,
		}
		sendTime += uint32(intervalMs * astUnitsPerMs)
		advanceMs := float64(intervalMs) - delayDecreaseMs
		if advanceMs < 1 {
			advanceMs = 1
		}
		clock.Advance(time.Duration(advanceMs) * time.Millisecond)
	}
	return packets
}

// WraparoundTrace generates a 20ms-spaced stable trace whose send
// timestamps cross the 24-bit abs-send-time wrap boundary, starting two
// seconds before the wrap.
func WraparoundTrace(clock *internal.MockClock, count int) []cc.PacketSample {
	packets := make([]cc.PacketSample, count)
	sendTime := uint32(cc.AbsSendTimeMax - 100*20*astUnitsPerMs)

	for i := range packets {
		packets[i] = cc.PacketSample{
			ArrivalTime: clock.Now(),
			AbsSendTime: sendTime,
			Size:        1200,
			SSRC:        0x12345678,
		}
		sendTime = (sendTime + 20*astUnitsPerMs) % uint32(cc.AbsSendTimeMax)
		clock.Advance(20 * time.Millisecond)
	}
	return packets
}

// BurstTrace generates packets in distinct send bursts, for exercising the
// group accumulator: packetsPerBurst packets spaced intraBurstMs apart,
// bursts separated by interBurstMs.
func BurstTrace(clock *internal.MockClock, burstCount, packetsPerBurst, interBurstMs, intraBurstMs int) []cc.PacketSample {
	packets := make([]cc.PacketSample, 0, burstCount*packetsPerBurst)
	sendTime := uint32(0)

	for b := 0; b < burstCount; b++ {
		for p := 0; p < packetsPerBurst; p++ {
			packets = append(packets, cc.PacketSample{
				ArrivalTime: clock.Now(),
				AbsSendTime: sendTime,
				Size:        1200,
				SSRC:        0x12345678,
			})
			sendTime += uint32(intraBurstMs * astUnitsPerMs)
			if p < packetsPerBurst-1 {
				clock.Advance(time.Duration(intraBurstMs) * time.Millisecond)
			}
		}
		if b < burstCount-1 {
			clock.Advance(time.Duration(interBurstMs) * time.Millisecond)
			sendTime += uint32(interBurstMs * astUnitsPerMs)
		}
	}
	return packets
}

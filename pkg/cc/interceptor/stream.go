package interceptor

import (
	"sync/atomic"
	"time"
)

// streamState tracks per-stream activity for timeout cleanup. The last
// packet time is read by the cleanup loop while the reader goroutine writes
// it, hence the atomic.
type streamState struct {
	ssrc           uint32
	lastPacketTime atomic.Value // time.Time
}

func newStreamState(ssrc uint32) *streamState {
	s := &streamState{ssrc: ssrc}
	s.lastPacketTime.Store(time.Now())
	return s
}

// UpdateLastPacket records a packet arrival.
func (s *streamState) UpdateLastPacket(t time.Time) {
	s.lastPacketTime.Store(t)
}

// LastPacket returns the most recent packet arrival time.
func (s *streamState) LastPacket() time.Time {
	return s.lastPacketTime.Load().(time.Time)
}

// SSRC returns the stream identifier.
func (s *streamState) SSRC() uint32 {
	return s.ssrc
}

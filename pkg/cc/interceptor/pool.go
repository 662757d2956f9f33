package interceptor

import (
	"sync"
	"time"

	"github.com/thesyncim/cc/pkg/cc"
)

// packetSamplePool recycles PacketSample objects so the per-packet hot path
// stays allocation free.
var packetSamplePool = sync.Pool{
	New: func() any {
		return &cc.PacketSample{}
	},
}

func getPacketSample() *cc.PacketSample {
	return packetSamplePool.Get().(*cc.PacketSample)
}

func putPacketSample(pkt *cc.PacketSample) {
	pkt.ArrivalTime = time.Time{}
	pkt.AbsSendTime = 0
	pkt.Size = 0
	pkt.SSRC = 0
	packetSamplePool.Put(pkt)
}

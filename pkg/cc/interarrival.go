package cc

import "time"

// DefaultSendTimeWindow is the default send-time span used to group packets.
// Packets sent within this window (typically the packets of one video frame)
// are treated as a single group to keep frame-size bursts from polluting the
// delay-variation signal.
const DefaultSendTimeWindow = 5 * time.Millisecond

// PacketGroup accumulates the packets of one send burst.
type PacketGroup struct {
	// FirstSendTime is the abs-send-time of the packet that opened the group.
	FirstSendTime uint32

	// LastSendTime is the abs-send-time of the most recent packet, used for
	// the inter-group send delta.
	LastSendTime uint32

	// FirstArrivalTime is the arrival time of the packet that opened the group.
	FirstArrivalTime time.Time

	// LastArrivalTime is the arrival time of the most recent packet, used for
	// the inter-group receive delta.
	LastArrivalTime time.Time

	// Size is the total payload bytes in the group.
	Size int

	// NumPackets is the packet count in the group.
	NumPackets int
}

// GroupDelayAccumulator groups incoming packets into ~5 ms send-time windows
// and produces the delay gradient between consecutive completed groups:
//
//	d(i) = (arrival(i) - arrival(i-1)) - (sendTime(i) - sendTime(i-1))
//
// Positive gradients mean the bottleneck queue is growing, negative gradients
// mean it is draining.
type GroupDelayAccumulator struct {
	sendTimeWindow time.Duration
	currentGroup   *PacketGroup
	previousGroup  *PacketGroup
}

// NewGroupDelayAccumulator returns an accumulator using the given send-time
// grouping window. A window <= 0 selects DefaultSendTimeWindow.
func NewGroupDelayAccumulator(window time.Duration) *GroupDelayAccumulator {
	if window <= 0 {
		window = DefaultSendTimeWindow
	}
	return &GroupDelayAccumulator{sendTimeWindow: window}
}

// belongsToCurrentGroup reports whether the sample continues the group being
// accumulated. A sample belongs when its send time falls inside the group's
// send-time window. Out-of-order samples (send time before the group start,
// or arrival before the group's last arrival) are folded into the current
// group rather than opening a new one, so a reordered packet can at worst
// perturb one group.
func (a *GroupDelayAccumulator) belongsToCurrentGroup(pkt PacketSample) bool {
	if a.currentGroup == nil {
		return false
	}
	sendDelta := UnwrapAbsSendTimeDuration(a.currentGroup.FirstSendTime, pkt.AbsSendTime)
	if sendDelta < 0 {
		return true
	}
	if pkt.ArrivalTime.Before(a.currentGroup.LastArrivalTime) {
		return true
	}
	return sendDelta <= a.sendTimeWindow
}

// AddPacket feeds one received packet. When the packet opens a new group and
// a previous group exists, the inter-group delay gradient is returned with
// ok=true; otherwise ok is false and the gradient is zero.
func (a *GroupDelayAccumulator) AddPacket(pkt PacketSample) (gradient time.Duration, ok bool) {
	if a.belongsToCurrentGroup(pkt) {
		g := a.currentGroup
		if UnwrapAbsSendTime(g.LastSendTime, pkt.AbsSendTime) > 0 {
			g.LastSendTime = pkt.AbsSendTime
		}
		if pkt.ArrivalTime.After(g.LastArrivalTime) {
			g.LastArrivalTime = pkt.ArrivalTime
		}
		g.Size += pkt.Size
		g.NumPackets++
		return 0, false
	}

	if a.currentGroup != nil {
		a.previousGroup = a.currentGroup
	}

	a.currentGroup = &PacketGroup{
		FirstSendTime:    pkt.AbsSendTime,
		LastSendTime:     pkt.AbsSendTime,
		FirstArrivalTime: pkt.ArrivalTime,
		LastArrivalTime:  pkt.ArrivalTime,
		Size:             pkt.Size,
		NumPackets:       1,
	}

	if a.previousGroup != nil {
		return a.interGroupGradient(), true
	}
	return 0, false
}

// interGroupGradient computes d(i) between the previous and current groups
// from their last-packet timestamps. The send delta is wrap-corrected.
func (a *GroupDelayAccumulator) interGroupGradient() time.Duration {
	receiveDelta := a.currentGroup.LastArrivalTime.Sub(a.previousGroup.LastArrivalTime)
	sendDelta := UnwrapAbsSendTimeDuration(a.previousGroup.LastSendTime, a.currentGroup.LastSendTime)
	return receiveDelta - sendDelta
}

// Reset drops all grouping state. Call after a long packet gap or a stream
// switch, where the previous group no longer describes the path.
func (a *GroupDelayAccumulator) Reset() {
	a.currentGroup = nil
	a.previousGroup = nil
}

// CurrentGroup returns the group being accumulated, or nil.
func (a *GroupDelayAccumulator) CurrentGroup() *PacketGroup {
	return a.currentGroup
}

// PreviousGroup returns the last completed group, or nil.
func (a *GroupDelayAccumulator) PreviousGroup() *PacketGroup {
	return a.previousGroup
}

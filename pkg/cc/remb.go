package cc

import "github.com/pion/rtcp"

// REMBPacket is a convenience view of a Receiver Estimated Maximum Bitrate
// feedback message.
type REMBPacket struct {
	// SenderSSRC identifies the endpoint sending the feedback (the
	// receiver of the media).
	SenderSSRC uint32

	// Bitrate is the estimated maximum bitrate in bits per second.
	Bitrate uint64

	// SSRCs lists the media sources the estimate applies to.
	SSRCs []uint32
}

// BuildREMB marshals a REMB packet. The mantissa+exponent bitrate encoding
// (6-bit exponent, 18-bit mantissa) is handled by pion/rtcp.
func BuildREMB(senderSSRC uint32, bitrateBps uint64, mediaSSRCs []uint32) ([]byte, error) {
	pkt := &rtcp.ReceiverEstimatedMaximumBitrate{
		SenderSSRC: senderSSRC,
		Bitrate:    float32(bitrateBps),
		SSRCs:      mediaSSRCs,
	}
	return pkt.Marshal()
}

// ParseREMB parses a marshaled REMB packet.
func ParseREMB(data []byte) (*REMBPacket, error) {
	pkt := &rtcp.ReceiverEstimatedMaximumBitrate{}
	if err := pkt.Unmarshal(data); err != nil {
		return nil, err
	}
	return &REMBPacket{
		SenderSSRC: pkt.SenderSSRC,
		Bitrate:    uint64(pkt.Bitrate),
		SSRCs:      pkt.SSRCs,
	}, nil
}

// Marshal marshals the packet.
func (p *REMBPacket) Marshal() ([]byte, error) {
	return BuildREMB(p.SenderSSRC, p.Bitrate, p.SSRCs)
}

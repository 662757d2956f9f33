package interceptor

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/cc/pkg/cc"
)

// stubController records everything the interceptor feeds it and returns
// canned results.
type stubController struct {
	mu       sync.Mutex
	packets  []cc.PacketSample
	reports  []float64
	update   cc.Update
	updateOK bool
	target   int64
	targetOK bool
}

func (s *stubController) OnPacketReceived(pkt cc.PacketSample) (cc.Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, pkt)
	return s.update, s.updateOK
}

func (s *stubController) OnReceiverReport(fractionLost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, fractionLost)
}

func (s *stubController) TargetBitrate() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.targetOK
}

func (s *stubController) receivedPackets() []cc.PacketSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cc.PacketSample(nil), s.packets...)
}

func (s *stubController) receivedReports() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.reports...)
}

// mockRTPReader returns pre-built packets, then empty reads.
type mockRTPReader struct {
	packets [][]byte
	index   int
}

func (m *mockRTPReader) Read(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
	if m.index >= len(m.packets) {
		return 0, a, nil
	}
	pkt := m.packets[m.index]
	m.index++
	return copy(b, pkt), a, nil
}

type mockRTCPReader struct {
	payloads [][]byte
	index    int
}

func (m *mockRTCPReader) Read(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
	if m.index >= len(m.payloads) {
		return 0, a, nil
	}
	p := m.payloads[m.index]
	m.index++
	return copy(b, p), a, nil
}

// mockRTCPWriter records every packet batch written through it.
type mockRTCPWriter struct {
	mu     sync.Mutex
	writes [][]rtcp.Packet
}

func (m *mockRTCPWriter) Write(pkts []rtcp.Packet, _ interceptor.Attributes) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, pkts)
	return len(pkts), nil
}

func (m *mockRTCPWriter) written() [][]rtcp.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]rtcp.Packet(nil), m.writes...)
}

func makeRTPWithAbsSendTime(ssrc uint32, extID uint8, sendTime uint32) []byte {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: 1234,
			Timestamp:      12345678,
			SSRC:           ssrc,
		},
		Payload: []byte{0x00, 0x01, 0x02, 0x03},
	}
	extData := []byte{
		byte(sendTime >> 16),
		byte(sendTime >> 8),
		byte(sendTime),
	}
	_ = pkt.Header.SetExtension(extID, extData)

	data, _ := pkt.Marshal()
	return data
}

func makeRTPWithoutExtension(ssrc uint32) []byte {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: 1234,
			Timestamp:      12345678,
			SSRC:           ssrc,
		},
		Payload: []byte{0x00, 0x01, 0x02, 0x03},
	}
	data, _ := pkt.Marshal()
	return data
}

func makeReceiverReport(fractionLost uint8) []byte {
	rr := &rtcp.ReceiverReport{
		SSRC: 0x42,
		Reports: []rtcp.ReceptionReport{
			{SSRC: 0x1111, FractionLost: fractionLost},
		},
	}
	data, _ := rr.Marshal()
	return data
}

func TestNewControllerInterceptor(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		i := NewControllerInterceptor(&stubController{})
		require.NotNil(t, i)
		assert.Equal(t, time.Second, i.rembInterval)
		assert.NotNil(t, i.scheduler)
		require.NoError(t, i.Close())
	})

	t.Run("custom options", func(t *testing.T) {
		i := NewControllerInterceptor(&stubController{},
			WithREMBInterval(500*time.Millisecond),
			WithSenderSSRC(0x1234_5678),
		)
		require.NotNil(t, i)
		assert.Equal(t, 500*time.Millisecond, i.rembInterval)
		require.NoError(t, i.Close())
	})
}

func TestBindRemoteStream_ExtractsExtensionIDs(t *testing.T) {
	ctrl := &stubController{}
	i := NewControllerInterceptor(ctrl)
	defer i.Close()

	info := &interceptor.StreamInfo{
		SSRC: 12345,
		RTPHeaderExtensions: []interceptor.RTPHeaderExtension{
			{URI: AbsSendTimeURI, ID: 3},
			{URI: AbsCaptureTimeURI, ID: 7},
		},
	}

	i.BindRemoteStream(info, &mockRTPReader{})

	assert.Equal(t, uint32(3), i.absExtID.Load())
	assert.Equal(t, uint32(7), i.captureExtID.Load())
}

func TestBindRemoteStream_FeedsController(t *testing.T) {
	ctrl := &stubController{}
	i := NewControllerInterceptor(ctrl)
	defer i.Close()

	info := &interceptor.StreamInfo{
		SSRC: 999,
		RTPHeaderExtensions: []interceptor.RTPHeaderExtension{
			{URI: AbsSendTimeURI, ID: 5},
		},
	}
	raw := makeRTPWithAbsSendTime(999, 5, 0x00ABCDEF)
	reader := i.BindRemoteStream(info, &mockRTPReader{packets: [][]byte{raw}})

	buf := make([]byte, 1500)
	n, _, err := reader.Read(buf, nil)
	require.NoError(t, err)
	require.Equal(t, len(raw), n)

	packets := ctrl.receivedPackets()
	require.Len(t, packets, 1)
	assert.Equal(t, uint32(0x00ABCDEF), packets[0].AbsSendTime)
	assert.Equal(t, uint32(999), packets[0].SSRC)
	assert.Equal(t, len(raw), packets[0].Size)
	assert.False(t, packets[0].ArrivalTime.IsZero())
}

// abs-send-time wraps every 64 seconds, so a reading of exactly zero is a
// real timestamp and the sample must still reach the controller.
func TestBindRemoteStream_ZeroSendTimeIsNotSkipped(t *testing.T) {
	ctrl := &stubController{}
	i := NewControllerInterceptor(ctrl)
	defer i.Close()

	info := &interceptor.StreamInfo{
		SSRC: 321,
		RTPHeaderExtensions: []interceptor.RTPHeaderExtension{
			{URI: AbsSendTimeURI, ID: 5},
		},
	}
	raw := makeRTPWithAbsSendTime(321, 5, 0)
	reader := i.BindRemoteStream(info, &mockRTPReader{packets: [][]byte{raw}})

	buf := make([]byte, 1500)
	_, _, err := reader.Read(buf, nil)
	require.NoError(t, err)

	packets := ctrl.receivedPackets()
	require.Len(t, packets, 1)
	assert.Equal(t, uint32(0), packets[0].AbsSendTime)
}

func TestBindRemoteStream_NoExtensionSkipsController(t *testing.T) {
	ctrl := &stubController{}
	i := NewControllerInterceptor(ctrl)
	defer i.Close()

	info := &interceptor.StreamInfo{SSRC: 42}
	raw := makeRTPWithoutExtension(42)
	reader := i.BindRemoteStream(info, &mockRTPReader{packets: [][]byte{raw}})

	buf := make([]byte, 1500)
	_, _, err := reader.Read(buf, nil)
	require.NoError(t, err)

	assert.Empty(t, ctrl.receivedPackets(), "no timing extension means no delay sample")
}

func TestFreshUpdateSendsREMB(t *testing.T) {
	ctrl := &stubController{
		update:   cc.Update{Bitrate: 1_250_000, SSRCs: []uint32{777}},
		updateOK: true,
	}
	i := NewControllerInterceptor(ctrl, WithSenderSSRC(0xAA))
	defer i.Close()

	writer := &mockRTCPWriter{}
	i.BindRTCPWriter(writer)

	info := &interceptor.StreamInfo{
		SSRC: 777,
		RTPHeaderExtensions: []interceptor.RTPHeaderExtension{
			{URI: AbsSendTimeURI, ID: 5},
		},
	}
	raw := makeRTPWithAbsSendTime(777, 5, 1000)
	reader := i.BindRemoteStream(info, &mockRTPReader{packets: [][]byte{raw}})

	buf := make([]byte, 1500)
	_, _, err := reader.Read(buf, nil)
	require.NoError(t, err)

	writes := writer.written()
	require.NotEmpty(t, writes)
	remb, ok := writes[0][0].(*rtcp.ReceiverEstimatedMaximumBitrate)
	require.True(t, ok)
	assert.InDelta(t, 1_250_000, float64(remb.Bitrate), 0.01*1_250_000)
	assert.Equal(t, []uint32{777}, remb.SSRCs)
}

func TestOnREMBCallback(t *testing.T) {
	ctrl := &stubController{
		update:   cc.Update{Bitrate: 900_000, SSRCs: []uint32{1}},
		updateOK: true,
	}

	var mu sync.Mutex
	var gotBitrate float32
	i := NewControllerInterceptor(ctrl, WithOnREMB(func(bitrate float32, _ []uint32) {
		mu.Lock()
		gotBitrate = bitrate
		mu.Unlock()
	}))
	defer i.Close()

	i.BindRTCPWriter(&mockRTCPWriter{})

	info := &interceptor.StreamInfo{
		SSRC: 1,
		RTPHeaderExtensions: []interceptor.RTPHeaderExtension{
			{URI: AbsSendTimeURI, ID: 5},
		},
	}
	reader := i.BindRemoteStream(info, &mockRTPReader{
		packets: [][]byte{makeRTPWithAbsSendTime(1, 5, 1)},
	})

	buf := make([]byte, 1500)
	_, _, err := reader.Read(buf, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.InDelta(t, 900_000, float64(gotBitrate), 0.01*900_000)
}

func TestBindRTCPReader_FeedsLossPath(t *testing.T) {
	ctrl := &stubController{}
	i := NewControllerInterceptor(ctrl)
	defer i.Close()

	reader := i.BindRTCPReader(&mockRTCPReader{
		payloads: [][]byte{
			makeReceiverReport(0),
			makeReceiverReport(128),
			makeReceiverReport(255),
		},
	})

	buf := make([]byte, 1500)
	for n := 0; n < 3; n++ {
		_, _, err := reader.Read(buf, nil)
		require.NoError(t, err)
	}

	reports := ctrl.receivedReports()
	require.Len(t, reports, 3)
	assert.Equal(t, 0.0, reports[0])
	assert.InDelta(t, 0.502, reports[1], 0.001)
	assert.Equal(t, 1.0, reports[2])
}

func TestBindRTCPReader_IgnoresGarbage(t *testing.T) {
	ctrl := &stubController{}
	i := NewControllerInterceptor(ctrl)
	defer i.Close()

	reader := i.BindRTCPReader(&mockRTCPReader{
		payloads: [][]byte{{0xDE, 0xAD, 0xBE, 0xEF}},
	})

	buf := make([]byte, 1500)
	_, _, err := reader.Read(buf, nil)
	require.NoError(t, err, "garbage RTCP is dropped, not surfaced")
	assert.Empty(t, ctrl.receivedReports())
}

func TestUnbindRemoteStream(t *testing.T) {
	ctrl := &stubController{}
	i := NewControllerInterceptor(ctrl)
	defer i.Close()

	info := &interceptor.StreamInfo{SSRC: 31}
	i.BindRemoteStream(info, &mockRTPReader{})
	assert.Contains(t, i.activeSSRCs(), uint32(31))

	i.UnbindRemoteStream(info)
	assert.NotContains(t, i.activeSSRCs(), uint32(31))
}

func TestRembLoop_PeriodicSend(t *testing.T) {
	ctrl := &stubController{target: 600_000, targetOK: true}
	i := NewControllerInterceptor(ctrl, WithREMBInterval(20*time.Millisecond))

	writer := &mockRTCPWriter{}
	i.BindRTCPWriter(writer)
	i.BindRemoteStream(&interceptor.StreamInfo{SSRC: 55}, &mockRTPReader{})

	time.Sleep(120 * time.Millisecond)
	require.NoError(t, i.Close())

	writes := writer.written()
	require.NotEmpty(t, writes, "the loop keeps REMB flowing without fresh updates")
	remb, ok := writes[0][0].(*rtcp.ReceiverEstimatedMaximumBitrate)
	require.True(t, ok)
	assert.InDelta(t, 600_000, float64(remb.Bitrate), 0.01*600_000)
	assert.Equal(t, []uint32{55}, remb.SSRCs)
}

func TestExtractSendTime_CaptureTimeFallback(t *testing.T) {
	ctrl := &stubController{}
	i := NewControllerInterceptor(ctrl)
	defer i.Close()

	info := &interceptor.StreamInfo{
		SSRC: 88,
		RTPHeaderExtensions: []interceptor.RTPHeaderExtension{
			{URI: AbsCaptureTimeURI, ID: 9},
		},
	}

	// 10.5s as UQ32.32.
	captureTime := uint64(10)<<32 | 1<<31
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version: 2,
			SSRC:    88,
		},
		Payload: []byte{0x01},
	}
	ext := rtp.AbsCaptureTimeExtension{Timestamp: captureTime}
	extData, err := ext.Marshal()
	require.NoError(t, err)
	require.NoError(t, pkt.Header.SetExtension(9, extData))
	raw, err := pkt.Marshal()
	require.NoError(t, err)

	reader := i.BindRemoteStream(info, &mockRTPReader{packets: [][]byte{raw}})
	buf := make([]byte, 1500)
	_, _, err = reader.Read(buf, nil)
	require.NoError(t, err)

	packets := ctrl.receivedPackets()
	require.Len(t, packets, 1)
	// 10.5s on the 6.18 scale.
	want := uint32(10)<<18 | 1<<17
	assert.Equal(t, want, packets[0].AbsSendTime)
}

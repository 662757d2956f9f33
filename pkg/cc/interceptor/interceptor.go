package interceptor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/thesyncim/cc/pkg/cc"
)

// streamTimeout is how long an inactive stream stays tracked before the
// cleanup loop drops it.
const streamTimeout = 2 * time.Second

// ControllerInterceptor wires a cc.Controller into a Pion PeerConnection.
// It observes incoming RTP for the delay path, parses inbound RTCP receiver
// reports for the loss path, and sends REMB feedback on the scheduler's
// cadence (plus immediately when a fresh estimate arrives).
//
// The controller itself is single-writer; all calls into it are serialized
// behind ctrlMu.
type ControllerInterceptor struct {
	interceptor.NoOp

	controller cc.Controller
	scheduler  *cc.REMBScheduler
	ctrlMu     sync.Mutex
	log        logging.LeveledLogger

	streams sync.Map // uint32 -> *streamState

	absExtID     atomic.Uint32
	captureExtID atomic.Uint32

	mu           sync.Mutex
	rtcpWriter   interceptor.RTCPWriter
	rembInterval time.Duration
	onREMB       func(bitrate float32, ssrcs []uint32)

	closed    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
}

// InterceptorOption configures a ControllerInterceptor.
type InterceptorOption func(*ControllerInterceptor)

// WithREMBInterval sets the regular REMB cadence. Default: 1 second.
func WithREMBInterval(d time.Duration) InterceptorOption {
	return func(i *ControllerInterceptor) {
		i.rembInterval = d
	}
}

// WithSenderSSRC sets the SSRC stamped on outgoing REMB packets.
func WithSenderSSRC(ssrc uint32) InterceptorOption {
	return func(i *ControllerInterceptor) {
		cfg := cc.DefaultREMBSchedulerConfig()
		cfg.Interval = i.rembInterval
		cfg.SenderSSRC = ssrc
		i.scheduler = cc.NewREMBScheduler(cfg)
	}
}

// WithOnREMB registers a callback invoked for every REMB sent, with the
// bitrate and the SSRCs it covered.
func WithOnREMB(fn func(bitrate float32, ssrcs []uint32)) InterceptorOption {
	return func(i *ControllerInterceptor) {
		i.onREMB = fn
	}
}

// WithInterceptorLoggerFactory sets a custom logger factory.
func WithInterceptorLoggerFactory(lf logging.LoggerFactory) InterceptorOption {
	return func(i *ControllerInterceptor) {
		i.log = lf.NewLogger("cc_interceptor")
	}
}

// NewControllerInterceptor wraps the given controller. The controller must
// not be shared with another connection.
func NewControllerInterceptor(controller cc.Controller, opts ...InterceptorOption) *ControllerInterceptor {
	i := &ControllerInterceptor{
		controller:   controller,
		closed:       make(chan struct{}),
		rembInterval: time.Second,
		log:          logging.NewDefaultLoggerFactory().NewLogger("cc_interceptor"),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.scheduler == nil {
		cfg := cc.DefaultREMBSchedulerConfig()
		cfg.Interval = i.rembInterval
		i.scheduler = cc.NewREMBScheduler(cfg)
	}
	return i
}

// Close stops the background loops and waits for them to exit.
func (i *ControllerInterceptor) Close() error {
	close(i.closed)
	i.wg.Wait()
	return nil
}

// BindRTCPWriter captures the writer used for outgoing REMB feedback and
// starts the periodic REMB loop.
func (i *ControllerInterceptor) BindRTCPWriter(writer interceptor.RTCPWriter) interceptor.RTCPWriter {
	i.mu.Lock()
	i.rtcpWriter = writer
	i.mu.Unlock()

	i.wg.Add(1)
	go i.rembLoop()

	return writer
}

// BindRTCPReader wraps the reader to observe inbound receiver reports and
// feed their fraction_lost to the controller's loss path.
func (i *ControllerInterceptor) BindRTCPReader(reader interceptor.RTCPReader) interceptor.RTCPReader {
	return interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, a, err := reader.Read(b, a)
		if err == nil && n > 0 {
			i.processRTCP(b[:n])
		}
		return n, a, err
	})
}

// BindRemoteStream registers the stream, captures negotiated extension IDs
// and wraps the reader to observe RTP packets.
func (i *ControllerInterceptor) BindRemoteStream(info *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	i.startOnce.Do(func() {
		i.wg.Add(1)
		go i.cleanupLoop()
	})

	// First stream to carry the extension wins.
	if absID := FindAbsSendTimeID(info.RTPHeaderExtensions); absID != 0 {
		i.absExtID.CompareAndSwap(0, uint32(absID))
	}
	if captureID := FindAbsCaptureTimeID(info.RTPHeaderExtensions); captureID != 0 {
		i.captureExtID.CompareAndSwap(0, uint32(captureID))
	}

	i.streams.Store(info.SSRC, newStreamState(info.SSRC))

	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, a, err := reader.Read(b, a)
		if err == nil && n > 0 {
			i.processRTP(b[:n], info.SSRC)
		}
		return n, a, err
	})
}

// UnbindRemoteStream drops the stream's activity tracking.
func (i *ControllerInterceptor) UnbindRemoteStream(info *interceptor.StreamInfo) {
	i.streams.Delete(info.SSRC)
}

// processRTP extracts send-time timing from the packet and feeds the
// controller. A fresh estimate triggers an immediate REMB.
func (i *ControllerInterceptor) processRTP(raw []byte, ssrc uint32) {
	var header rtp.Header
	if _, err := header.Unmarshal(raw); err != nil {
		return // not RTP, skip
	}

	now := time.Now()

	if state, ok := i.streams.Load(ssrc); ok {
		state.(*streamState).UpdateLastPacket(now)
	}

	sendTime, ok := i.extractSendTime(&header)
	if !ok {
		return // no timing extension negotiated or present
	}

	pkt := getPacketSample()
	pkt.ArrivalTime = now
	pkt.AbsSendTime = sendTime
	pkt.Size = len(raw)
	pkt.SSRC = ssrc

	i.ctrlMu.Lock()
	update, ok := i.controller.OnPacketReceived(*pkt)
	i.ctrlMu.Unlock()

	putPacketSample(pkt)

	if ok {
		i.sendREMB(update.Bitrate, update.SSRCs, now)
	}
}

// extractSendTime reads abs-send-time from the header, falling back to
// abs-capture-time converted to the 24-bit 6.18 scale. ok is false when no
// timing extension is present; zero is a legitimate reading at the wrap.
func (i *ControllerInterceptor) extractSendTime(header *rtp.Header) (sendTime uint32, ok bool) {
	if absID := uint8(i.absExtID.Load()); absID != 0 {
		if extData := header.GetExtension(absID); len(extData) >= 3 {
			var ext rtp.AbsSendTimeExtension // stack allocated, keeps the hot path alloc free
			if err := ext.Unmarshal(extData); err == nil {
				return uint32(ext.Timestamp), true
			}
		}
	}

	if captureID := uint8(i.captureExtID.Load()); captureID != 0 {
		if extData := header.GetExtension(captureID); len(extData) >= 8 {
			var ext rtp.AbsCaptureTimeExtension
			if err := ext.Unmarshal(extData); err == nil {
				// UQ32.32 -> 6.18: 6 bits of seconds mod 64 plus the top
				// 18 fraction bits.
				seconds := (ext.Timestamp >> 32) & 0x3F
				fraction := (ext.Timestamp >> 14) & 0x3FFFF
				return uint32((seconds << 18) | fraction), true
			}
		}
	}
	return 0, false
}

// processRTCP scans an inbound compound RTCP payload for receiver reports
// and forwards each report block's fraction_lost. Malformed payloads are
// dropped silently: a broken report must read as zero loss, never as an
// error.
func (i *ControllerInterceptor) processRTCP(raw []byte) {
	pkts, err := rtcp.Unmarshal(raw)
	if err != nil {
		return
	}

	for _, pkt := range pkts {
		var reports []rtcp.ReceptionReport
		switch p := pkt.(type) {
		case *rtcp.ReceiverReport:
			reports = p.Reports
		case *rtcp.SenderReport:
			reports = p.Reports
		default:
			continue
		}
		for _, report := range reports {
			fractionLost := cc.FractionLostFromByte(report.FractionLost)
			i.ctrlMu.Lock()
			i.controller.OnReceiverReport(fractionLost)
			i.ctrlMu.Unlock()
			i.log.Tracef("receiver report: ssrc=%d fraction_lost=%.3f", report.SSRC, fractionLost)
		}
	}
}

// rembLoop sends REMB on the regular cadence using the controller's current
// target, covering the case where no fresh update fired recently.
func (i *ControllerInterceptor) rembLoop() {
	defer i.wg.Done()

	ticker := time.NewTicker(i.rembInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.closed:
			return
		case now := <-ticker.C:
			i.ctrlMu.Lock()
			target, ok := i.controller.TargetBitrate()
			i.ctrlMu.Unlock()
			if !ok {
				continue // no estimate yet, caller uses its initial bitrate
			}
			i.sendREMB(target, i.activeSSRCs(), now)
		}
	}
}

// sendREMB consults the scheduler and, when due, writes a REMB through the
// bound RTCP writer.
func (i *ControllerInterceptor) sendREMB(bitrate int64, ssrcs []uint32, now time.Time) {
	if len(ssrcs) == 0 {
		return
	}

	i.mu.Lock()
	writer := i.rtcpWriter
	i.mu.Unlock()
	if writer == nil {
		return // not bound yet
	}

	data, send, err := i.scheduler.MaybeSend(bitrate, ssrcs, now)
	if err != nil || !send {
		return
	}

	pkts, err := rtcp.Unmarshal(data)
	if err != nil {
		return // cannot happen with our own bytes
	}

	if _, err := writer.Write(pkts, nil); err != nil {
		i.log.Warnf("remb write failed: %v", err)
		return
	}

	if i.onREMB != nil {
		if remb, ok := pkts[0].(*rtcp.ReceiverEstimatedMaximumBitrate); ok {
			i.onREMB(remb.Bitrate, remb.SSRCs)
		}
	}
}

// activeSSRCs lists the streams currently tracked.
func (i *ControllerInterceptor) activeSSRCs() []uint32 {
	var ssrcs []uint32
	i.streams.Range(func(key, _ any) bool {
		ssrcs = append(ssrcs, key.(uint32))
		return true
	})
	return ssrcs
}

// cleanupLoop drops streams with no packets for longer than streamTimeout.
func (i *ControllerInterceptor) cleanupLoop() {
	defer i.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-i.closed:
			return
		case now := <-ticker.C:
			i.streams.Range(func(key, value any) bool {
				if now.Sub(value.(*streamState).LastPacket()) > streamTimeout {
					i.streams.Delete(key)
				}
				return true
			})
		}
	}
}

package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/cc/pkg/cc"
	ccinterceptor "github.com/thesyncim/cc/pkg/cc/interceptor"
)

// handleOffer answers a WebRTC offer from the browser with a recvonly video
// transceiver and the congestion control interceptor registered.
func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		log.Printf("Failed to decode offer: %v", err)
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		log.Printf("Failed to register codecs: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	// abs-send-time must be negotiated before the PeerConnection exists so
	// the browser stamps it on RTP packets; the delay path depends on it.
	if err := m.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{
		URI: ccinterceptor.AbsSendTimeURI,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		log.Printf("Failed to register abs-send-time extension: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	i := &interceptor.Registry{}

	// Deduplicate REMB log lines; the scheduler resends the same estimate
	// every interval.
	var (
		lastEstimate uint64
		estimateMu   sync.Mutex
	)

	controllerOpts := []cc.Option{
		cc.WithInitialBitrate(s.cfg.InitialBitrate),
		cc.WithBitrateBounds(s.cfg.MinBitrate, s.cfg.MaxBitrate),
	}
	if s.recorder != nil {
		controllerOpts = append(controllerOpts, cc.WithUpdateObserver(s.recorder.Observer()))
	}

	ccFactory, err := ccinterceptor.NewControllerInterceptorFactory(
		ccinterceptor.WithAlgorithm(s.cfg.Algorithm),
		ccinterceptor.WithControllerOptions(controllerOpts...),
		ccinterceptor.WithFactoryREMBInterval(time.Second),
		ccinterceptor.WithFactoryOnREMB(func(bitrate float32, ssrcs []uint32) {
			estimateMu.Lock()
			defer estimateMu.Unlock()
			if uint64(bitrate) != lastEstimate {
				log.Printf("REMB sent: estimate=%.0f bps, ssrcs=%v", bitrate, ssrcs)
				lastEstimate = uint64(bitrate)
			}
		}),
	)
	if err != nil {
		log.Printf("Failed to create interceptor factory: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	i.Add(ccFactory)

	// Deliberately no RegisterDefaultInterceptors/ConfigureTWCCSender: TWCC
	// would let the browser's sender-side estimator work independently of
	// our REMB, hiding whether the receiver-side estimate steers anything.

	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		log.Printf("Failed to configure RTCP reports: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if err := webrtc.ConfigureStatsInterceptor(i); err != nil {
		log.Printf("Failed to configure stats interceptor: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if err := webrtc.ConfigureSimulcastExtensionHeaders(m); err != nil {
		log.Printf("Failed to configure simulcast headers: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack"}, webrtc.RTPCodecTypeVideo)
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack", Parameter: "pli"}, webrtc.RTPCodecTypeVideo)

	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		log.Printf("Failed to create NACK generator: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	i.Add(generator)

	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		log.Printf("Failed to create NACK responder: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	i.Add(responder)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
	)

	peerConnection, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{}, // local testing
	})
	if err != nil {
		log.Printf("Failed to create peer connection: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	_, err = peerConnection.AddTransceiverFromKind(
		webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly},
	)
	if err != nil {
		log.Printf("Failed to add transceiver: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	peerConnection.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Printf("Received video track: codec=%s, ssrc=%d", track.Codec().MimeType, track.SSRC())

		params := receiver.GetParameters()
		for _, ext := range params.HeaderExtensions {
			log.Printf("  header extension: ID=%d, URI=%s", ext.ID, ext.URI)
		}

		// Keep reading; the interceptor observes every packet on the way.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					log.Printf("Track read ended: %v", err)
					return
				}
			}
		}()
	})

	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("Connection state: %s", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			peerConnection.Close()
		}
	})

	if err := peerConnection.SetRemoteDescription(offer); err != nil {
		log.Printf("Failed to set remote description: %v", err)
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		log.Printf("Failed to create answer: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if err := peerConnection.SetLocalDescription(answer); err != nil {
		log.Printf("Failed to set local description: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	// Answer with complete ICE candidates so the browser needs no trickle.
	<-webrtc.GatheringCompletePromise(peerConnection)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(peerConnection.LocalDescription())

	log.Printf("WebRTC connection established, algorithm=%s", s.cfg.Algorithm)
}

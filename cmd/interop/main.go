// Browser Interop Test Server
//
// Creates a Pion WebRTC endpoint that receives video from a browser and
// steers its send rate with REMB feedback from the selected congestion
// control algorithm. Watch chrome://webrtc-internals to verify the browser
// follows the estimates.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/thesyncim/cc/cmd/interop/server"
	"github.com/thesyncim/cc/pkg/cc"
)

func main() {
	var (
		addr      = flag.String("addr", ":8080", "HTTP listen address")
		algorithm = flag.String("algorithm", cc.AlgorithmGCCV0,
			fmt.Sprintf("congestion control algorithm (%s)", strings.Join(cc.Algorithms(), ", ")))
		initialBitrate = flag.Int64("initial-bitrate", 500_000, "initial estimate in bps")
		minBitrate     = flag.Int64("min-bitrate", 100_000, "minimum estimate in bps")
		maxBitrate     = flag.Int64("max-bitrate", 5_000_000, "maximum estimate in bps")
		expLog         = flag.String("explog", "", "write per-update estimates to this file")
	)
	flag.Parse()

	fmt.Printf(`
Browser Interop Test Server
===========================
1. Open chrome://webrtc-internals in Chrome
2. Open http://localhost%s in another tab
3. Click "Start Call"
4. Watch outbound-rtp targetBitrate follow the REMB feedback

Algorithm: %s
`, *addr, *algorithm)

	cfg := server.Config{
		Addr:           *addr,
		Algorithm:      *algorithm,
		InitialBitrate: *initialBitrate,
		MinBitrate:     *minBitrate,
		MaxBitrate:     *maxBitrate,
		ExpLogPath:     *expLog,
	}
	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	listenAddr, err := srv.Start()
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Printf("Listening on %s", listenAddr)

	// Block forever.
	select {}
}

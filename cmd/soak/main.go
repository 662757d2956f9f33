// Soak test runner for long-duration validation.
//
// Drives the selected congestion control algorithm with synthetic traffic
// and periodic receiver reports, watching for memory leaks, timestamp
// wraparound failures, and estimate anomalies over extended periods.
//
// Usage:
//
//	go run ./cmd/soak -duration 24h
//	go run ./cmd/soak -duration 1h -algorithm remb
//
// Exposes a pprof endpoint at :6060 for live profiling:
//
//	curl http://localhost:6060/debug/pprof/heap > heap.pprof
//	go tool pprof heap.pprof
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	_ "net/http/pprof" // pprof endpoints
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/thesyncim/cc/pkg/cc"
)

const (
	packetSize            = 1200 // bytes
	packetIntervalMs      = 20   // 50 pps
	absSendTimeUnitsPerMs = 262  // 1ms on the 6.18 scale
	reportIntervalMs      = 1000
	statusIntervalMinutes = 5
)

// SoakResult contains the results of a soak test run.
type SoakResult struct {
	Duration         time.Duration
	TotalPackets     int
	FinalTarget      int64
	PeakHeapMB       float64
	TotalGCCycles    uint32
	WraparoundCount  int
	SuspiciousEvents int
	Status           string
}

func main() {
	duration := flag.Duration("duration", 24*time.Hour, "Test duration (e.g., 1h, 24h)")
	algorithm := flag.String("algorithm", cc.AlgorithmGCCV0,
		fmt.Sprintf("congestion control algorithm (%s)", strings.Join(cc.Algorithms(), ", ")))
	lossFraction := flag.Float64("loss", 0.01, "fraction_lost reported once per second")
	pprofPort := flag.Int("pprof-port", 6060, "Port for pprof HTTP server")
	flag.Parse()

	controller, err := cc.New(*algorithm)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Congestion Control Soak Runner\n")
	fmt.Printf("==============================\n")
	fmt.Printf("Algorithm: %s\n", *algorithm)
	fmt.Printf("Duration:  %v\n", *duration)
	fmt.Printf("Loss:      %.3f per report\n", *lossFraction)
	fmt.Printf("Pprof:     http://localhost:%d/debug/pprof/\n", *pprofPort)
	fmt.Printf("\n")

	go func() {
		addr := fmt.Sprintf(":%d", *pprofPort)
		if err := http.ListenAndServe(addr, nil); err != nil {
			fmt.Printf("Warning: pprof server failed: %v\n", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived %v, shutting down gracefully...\n", sig)
		cancel()
	}()

	result := runSoakTest(ctx, controller, *duration, *lossFraction)

	printSummary(result)

	if result.Status == "PASS" {
		os.Exit(0)
	}
	os.Exit(1)
}

func runSoakTest(ctx context.Context, controller cc.Controller, duration time.Duration, lossFraction float64) SoakResult {
	result := SoakResult{Status: "PASS"}

	var memStats runtime.MemStats
	sendTime := uint32(0)
	var lastSendTime uint32

	startTime := time.Now()
	lastStatusTime := startTime
	lastReportTime := startTime
	statusInterval := time.Duration(statusIntervalMinutes) * time.Minute
	reportInterval := time.Duration(reportIntervalMs) * time.Millisecond

	ticker := time.NewTicker(time.Duration(packetIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	fmt.Printf("[%s] Starting soak test...\n", formatDuration(0))

	for {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(startTime)
			return result

		case now := <-ticker.C:
			elapsed := now.Sub(startTime)
			if elapsed >= duration {
				result.Duration = elapsed
				return result
			}

			if sendTime < lastSendTime && result.TotalPackets > 0 {
				result.WraparoundCount++
			}
			lastSendTime = sendTime

			update, ok := controller.OnPacketReceived(cc.PacketSample{
				ArrivalTime: now,
				AbsSendTime: sendTime,
				Size:        packetSize,
				SSRC:        0x12345678,
			})
			result.TotalPackets++

			if ok {
				if math.IsNaN(float64(update.Bitrate)) {
					fmt.Printf("[%s] ERROR: NaN estimate detected!\n", formatDuration(elapsed))
					result.SuspiciousEvents++
					result.Status = "FAIL"
				}
				if math.IsInf(float64(update.Bitrate), 0) {
					fmt.Printf("[%s] ERROR: Inf estimate detected!\n", formatDuration(elapsed))
					result.SuspiciousEvents++
					result.Status = "FAIL"
				}
			}

			if now.Sub(lastReportTime) >= reportInterval {
				lastReportTime = now
				controller.OnReceiverReport(lossFraction)
			}

			if target, hasTarget := controller.TargetBitrate(); hasTarget {
				result.FinalTarget = target
				if target <= 0 {
					fmt.Printf("[%s] WARNING: Non-positive target: %d\n", formatDuration(elapsed), target)
					result.SuspiciousEvents++
				}
			}

			sendTime = (sendTime + uint32(packetIntervalMs*absSendTimeUnitsPerMs)) % cc.AbsSendTimeMax

			if now.Sub(lastStatusTime) >= statusInterval {
				lastStatusTime = now
				runtime.ReadMemStats(&memStats)

				heapMB := float64(memStats.HeapAlloc) / (1024 * 1024)
				if heapMB > result.PeakHeapMB {
					result.PeakHeapMB = heapMB
				}
				result.TotalGCCycles = memStats.NumGC

				fmt.Printf("[%s] Packets: %d, Target: %.2f Mbps, HeapAlloc: %.2f MB, NumGC: %d, Wraps: %d\n",
					formatDuration(elapsed),
					result.TotalPackets,
					float64(result.FinalTarget)/(1024*1024),
					heapMB,
					memStats.NumGC,
					result.WraparoundCount)

				if heapMB > 100 {
					fmt.Printf("[%s] ERROR: Memory limit exceeded: %.2f MB\n", formatDuration(elapsed), heapMB)
					result.Status = "FAIL"
				}
			}
		}
	}
}

func printSummary(result SoakResult) {
	fmt.Printf("\n")
	fmt.Printf("Soak Test Complete\n")
	fmt.Printf("==================\n")
	fmt.Printf("Duration:          %v\n", result.Duration.Round(time.Second))
	fmt.Printf("Total packets:     %d\n", result.TotalPackets)
	fmt.Printf("Final target:      %.2f Mbps\n", float64(result.FinalTarget)/(1024*1024))
	fmt.Printf("Peak HeapAlloc:    %.2f MB\n", result.PeakHeapMB)
	fmt.Printf("Total GC cycles:   %d\n", result.TotalGCCycles)
	fmt.Printf("Wraparounds:       %d\n", result.WraparoundCount)
	fmt.Printf("Suspicious events: %d\n", result.SuspiciousEvents)
	fmt.Printf("Status:            %s\n", result.Status)
	fmt.Printf("\n")

	fmt.Printf("Pass Criteria:\n")
	fmt.Printf("  - No panics:            %s\n", checkMark(true))
	fmt.Printf("  - Final target > 0:     %s\n", checkMark(result.FinalTarget > 0))
	fmt.Printf("  - Peak memory < 100 MB: %s\n", checkMark(result.PeakHeapMB < 100))
	fmt.Printf("  - No estimate errors:   %s\n", checkMark(result.SuspiciousEvents == 0))
}

func formatDuration(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func checkMark(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

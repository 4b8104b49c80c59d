// streamprobe is a diagnostic tool: it dials a telemetry backend,
// classifies every frame it receives, and prints a one-line summary per
// frame. Useful for checking what a backend actually emits.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lgipm/remanet-dash/internal/discovery"
	"github.com/lgipm/remanet-dash/internal/stream"
)

func main() {
	url := flag.String("url", "ws://localhost:8000/ws", "telemetry websocket URL")
	discover := flag.Bool("discover", false, "find the backend via mDNS instead of -url")
	duration := flag.Duration("duration", 30*time.Second, "how long to listen")
	flag.Parse()

	if err := run(*url, *discover, *duration); err != nil {
		fmt.Fprintln(os.Stderr, "streamprobe:", err)
		os.Exit(1)
	}
}

func run(url string, discover bool, duration time.Duration) error {
	if discover {
		backends, err := discovery.Browse(5 * time.Second)
		if err != nil {
			return err
		}
		if len(backends) == 0 {
			return fmt.Errorf("no %s backends found", discovery.Service)
		}
		url = backends[0].URL()
		fmt.Printf("discovered %s at %s\n", backends[0].Instance, url)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s, listening for %s\n", url, duration)

	deadline := time.Now().Add(duration)
	counts := map[stream.Kind]int{}
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		frame, err := stream.Classify(data)
		if err != nil {
			fmt.Printf("unparseable frame (%d bytes): %v\n", len(data), err)
			continue
		}
		counts[frame.Kind]++
		describe(frame, len(data))
	}

	fmt.Println("---")
	for kind, n := range counts {
		fmt.Printf("%-14s %d\n", kind, n)
	}
	return nil
}

func describe(frame stream.Frame, size int) {
	switch frame.Kind {
	case stream.KindKeepalive:
		fmt.Println("keepalive")
	case stream.KindNotifications:
		fmt.Printf("notifications: %d entries\n", len(frame.Notifications))
	case stream.KindCombined:
		fmt.Printf("combined: %d telemetry, %d+%d mic batches (%d bytes)\n",
			len(frame.Telemetry), len(frame.Micro0), len(frame.Micro1), size)
	case stream.KindMaintenance:
		fmt.Printf("maintenance_required: %v\n", frame.MaintenanceRequired)
	case stream.KindLegacy:
		fmt.Printf("legacy telemetry array: %d samples\n", len(frame.Telemetry))
	default:
		fmt.Printf("unknown frame (%d bytes)\n", size)
	}
}

// Package discovery locates telemetry backends on the local network via
// mDNS, so operators do not have to type the stream URL by hand.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// Service is the mDNS service type advertised by the telemetry backend.
const Service = "_remanet-telemetry._tcp"

// Backend is a discovered telemetry endpoint.
type Backend struct {
	Instance  string
	Hostname  string
	Addresses []net.IP
	Port      int
	TXT       []string
}

// URL returns the websocket endpoint for the backend, preferring an
// IPv4 address over the advertised hostname.
func (b Backend) URL() string {
	host := strings.TrimSuffix(b.Hostname, ".")
	for _, addr := range b.Addresses {
		if v4 := addr.To4(); v4 != nil {
			host = v4.String()
			break
		}
	}
	return fmt.Sprintf("ws://%s:%d/ws", host, b.Port)
}

// Browse performs a blocking mDNS browse for telemetry backends and
// returns deduplicated entries.
func Browse(timeout time.Duration) ([]Backend, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(map[string]Backend)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if e == nil {
					continue
				}
				addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
				addrs = append(addrs, e.AddrIPv4...)
				addrs = append(addrs, e.AddrIPv6...)

				key := fmt.Sprintf("%s|%d", e.HostName, e.Port)
				found[key] = Backend{
					Instance:  cleanInstance(e.Instance),
					Hostname:  e.HostName,
					Addresses: addrs,
					Port:      e.Port,
					TXT:       append([]string{}, e.Text...),
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, Service, "local.", entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}
	<-done

	out := make([]Backend, 0, len(found))
	for _, b := range found {
		out = append(out, b)
	}
	return out, nil
}

// cleanInstance removes zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}

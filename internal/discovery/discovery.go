// Package discovery recovers the QUERY/QUERY_RESPONSE exchange named in the
// wire protocol but unused by the core connect/session flow: a direct probe
// of one address, and an mDNS-backed LAN browse for servers advertising
// _doomnet._udp.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/rusty-dusty/doomnet-client/internal/logging"
	"github.com/rusty-dusty/doomnet-client/internal/metrics"
	"github.com/rusty-dusty/doomnet-client/internal/transport"
	"github.com/rusty-dusty/doomnet-client/internal/wire"
)

// ServiceType is the mDNS service browsed for LAN servers.
const ServiceType = "_doomnet._udp"

// ServerInfo is what the browser or a direct Query reports about one
// candidate server.
type ServerInfo struct {
	Addr string
	wire.QueryResponse
}

// Query sends a single QUERY to addr over t and waits up to timeout for a
// QUERY_RESPONSE. It is a direct, synchronous probe — not the async batch
// path QueryMany uses for a list of addresses.
func Query(t transport.Datagram, addr string, timeout time.Duration) (ServerInfo, error) {
	target, err := t.Resolve(addr)
	if err != nil {
		return ServerInfo{}, fmt.Errorf("discovery: resolve %s: %w", addr, err)
	}
	if err := t.Send(target, wire.EncodeQuery()); err != nil {
		return ServerInfo{}, fmt.Errorf("discovery: send query to %s: %w", addr, err)
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		from, payload, ok, err := t.Recv()
		if err != nil {
			return ServerInfo{}, fmt.Errorf("discovery: recv: %w", err)
		}
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		tag, _, ok := wire.PeekTag(payload)
		if !ok || tag != wire.TagQueryResponse {
			continue
		}
		r := wire.NewReader(payload)
		r.ReadU16()
		qr, ok := wire.DecodeQueryResponse(r)
		if !ok {
			metrics.IncError(metrics.ErrLabelTransport)
			continue
		}
		info := ServerInfo{QueryResponse: qr}
		if from != nil {
			info.Addr = from.String()
		} else {
			info.Addr = addr
		}
		return info, nil
	}
	return ServerInfo{}, fmt.Errorf("discovery: query %s: %w", addr, ErrQueryTimeout)
}

// Discover browses the LAN via mDNS for up to timeout and returns every
// server seen. It runs its own goroutine (zeroconf's browse API is
// callback/channel based) but never touches the lockstep core's state —
// it only returns a plain slice once the browse window closes, consistent
// with the concurrency model's "ambient side-channel" carve-out.
func Discover(ctx context.Context, timeout time.Duration) ([]ServerInfo, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: new resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	var found []ServerInfo
	drained := make(chan struct{})

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	go func() {
		defer close(drained)
		for entry := range entries {
			info := ServerInfo{Addr: entry.HostName}
			if len(entry.AddrIPv4) > 0 {
				info.Addr = fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port)
			}
			for _, kv := range entry.Text {
				logging.L().Debug("discovery: mdns entry text", "kv", kv)
			}
			found = append(found, info)
		}
	}()

	if err := resolver.Browse(browseCtx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}
	<-browseCtx.Done()
	<-drained
	return found, nil
}

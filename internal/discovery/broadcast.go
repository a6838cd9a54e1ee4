package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/rusty-dusty/doomnet-client/internal/transport"
	"github.com/rusty-dusty/doomnet-client/internal/wire"
)

// QueryMany fires a QUERY at every address in addrs without blocking the
// caller on any single slow resolve, via the package's async fan-in
// sender, then collects QUERY_RESPONSEs arriving on t for timeout.
// Addresses that never answer are simply absent from the result.
func QueryMany(ctx context.Context, t transport.Datagram, addrs []string, timeout time.Duration) ([]ServerInfo, error) {
	sender := newAsyncSend(ctx, len(addrs), func(p probe) error {
		addr, err := t.Resolve(p.addr)
		if err != nil {
			return fmt.Errorf("discovery: resolve %s: %w", p.addr, err)
		}
		return t.Send(addr, p.payload)
	}, nil)
	defer sender.Close()

	payload := wire.EncodeQuery()
	for _, a := range addrs {
		_ = sender.enqueue(probe{addr: a, payload: payload})
	}

	seen := make(map[string]bool, len(addrs))
	var out []ServerInfo
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		from, data, ok, err := t.Recv()
		if err != nil {
			return out, fmt.Errorf("discovery: recv: %w", err)
		}
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		tag, _, ok := wire.PeekTag(data)
		if !ok || tag != wire.TagQueryResponse {
			continue
		}
		r := wire.NewReader(data)
		r.ReadU16()
		qr, ok := wire.DecodeQueryResponse(r)
		if !ok {
			continue
		}
		addrStr := ""
		if from != nil {
			addrStr = from.String()
		}
		if seen[addrStr] {
			continue
		}
		seen[addrStr] = true
		out = append(out, ServerInfo{Addr: addrStr, QueryResponse: qr})
	}
	return out, nil
}

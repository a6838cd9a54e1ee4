package transport

import (
	"fmt"
	"net"
)

// LoopbackAddr names one endpoint of an in-memory Loopback pair.
type LoopbackAddr string

func (a LoopbackAddr) Network() string { return "loopback" }
func (a LoopbackAddr) String() string  { return string(a) }

type loopbackPacket struct {
	from    net.Addr
	payload []byte
}

// Loopback is an in-memory Datagram used to drive connection-layer and
// ring integration tests without opening real sockets: Send on one side
// enqueues directly into the peer's inbox, and Recv drains its own inbox
// non-blocking. No goroutine is involved — both ends are driven
// synchronously by the test itself, exactly like the owning client's
// single-threaded poll loop would.
type Loopback struct {
	addr  LoopbackAddr
	peer  *Loopback
	inbox []loopbackPacket
}

// NewLoopbackPair returns two Datagrams wired to each other.
func NewLoopbackPair(addrA, addrB string) (*Loopback, *Loopback) {
	a := &Loopback{addr: LoopbackAddr(addrA)}
	b := &Loopback{addr: LoopbackAddr(addrB)}
	a.peer = b
	b.peer = a
	return a, b
}

func (l *Loopback) Send(addr net.Addr, payload []byte) error {
	if l.peer == nil {
		return fmt.Errorf("transport: loopback %s has no peer", l.addr)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	l.peer.inbox = append(l.peer.inbox, loopbackPacket{from: l.addr, payload: cp})
	return nil
}

func (l *Loopback) Recv() (net.Addr, []byte, bool, error) {
	if len(l.inbox) == 0 {
		return nil, nil, false, nil
	}
	pkt := l.inbox[0]
	l.inbox = l.inbox[1:]
	return pkt.from, pkt.payload, true, nil
}

func (l *Loopback) Resolve(s string) (net.Addr, error) {
	return LoopbackAddr(s), nil
}

func (l *Loopback) LocalAddr() net.Addr { return l.addr }

func (l *Loopback) Close() error {
	l.peer = nil
	return nil
}

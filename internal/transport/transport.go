// Package transport provides the non-blocking datagram abstraction the
// cooperative core polls: send a whole packet, try to receive one without
// blocking, resolve a textual address, and close. UDP and an in-memory
// loopback (for tests) both satisfy it.
package transport

import "net"

// Datagram is a single-peer or address-addressed unreliable packet
// transport. Recv never blocks: it returns ok=false when nothing is queued.
type Datagram interface {
	// Send writes a whole packet to addr.
	Send(addr net.Addr, payload []byte) error
	// Recv returns the next queued packet and its sender, or ok=false if
	// none is currently available.
	Recv() (addr net.Addr, payload []byte, ok bool, err error)
	// Resolve parses a textual address into this transport's net.Addr type.
	Resolve(s string) (net.Addr, error)
	// LocalAddr reports the address this transport is bound to.
	LocalAddr() net.Addr
	// Close releases the underlying socket.
	Close() error
}

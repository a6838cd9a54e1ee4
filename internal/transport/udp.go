package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// maxDatagramSize bounds a single read; GAMEDATA bundles stay well under
// typical UDP MTU, but the socket buffer must be large enough for a burst of
// redundant tics.
const maxDatagramSize = 2048

// UDPTransport implements Datagram over a bound net.PacketConn. Recv never
// blocks: it sets a zero-duration read deadline before every attempt and
// treats a timeout as "nothing queued", matching the single-threaded
// cooperative poll the core requires.
type UDPTransport struct {
	conn net.PacketConn
	buf  [maxDatagramSize]byte
}

// ListenUDP binds a UDP socket at addr (e.g. ":0" for an ephemeral client
// port) and best-effort tunes its receive buffer via platform hooks.
func ListenUDP(addr string) (*UDPTransport, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp %s: %w", addr, err)
	}
	tuneRecvBuffer(pc)
	return &UDPTransport{conn: pc}, nil
}

func (t *UDPTransport) Send(addr net.Addr, payload []byte) error {
	_, err := t.conn.WriteTo(payload, addr)
	if err != nil {
		return fmt.Errorf("transport: send to %s: %w", addr, err)
	}
	return nil
}

func (t *UDPTransport) Recv() (net.Addr, []byte, bool, error) {
	if err := t.conn.SetReadDeadline(time.Now()); err != nil {
		return nil, nil, false, fmt.Errorf("transport: set read deadline: %w", err)
	}
	n, addr, err := t.conn.ReadFrom(t.buf[:])
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil, false, nil
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("transport: recv: %w", err)
	}
	out := make([]byte, n)
	copy(out, t.buf[:n])
	return addr, out, true, nil
}

func (t *UDPTransport) Resolve(s string) (net.Addr, error) {
	addr, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", s, err)
	}
	return addr, nil
}

func (t *UDPTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

func (t *UDPTransport) Close() error {
	if err := t.conn.Close(); err != nil {
		return fmt.Errorf("transport: close: %w", err)
	}
	return nil
}

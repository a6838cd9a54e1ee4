//go:build linux

package transport

import (
	"net"

	"golang.org/x/sys/unix"
)

// recvBufferBytes sizes the UDP socket's kernel receive buffer generously;
// a lockstep client bursts redundant GAMEDATA retransmits and a resend sweep
// can arrive in the same scheduling tick as a fresh GAMEDATA.
const recvBufferBytes = 256 * 1024

// tuneRecvBuffer grows the socket's receive buffer on Linux. Best-effort:
// a failure here never prevents the transport from working, only makes it
// more likely to drop under a burst.
func tuneRecvBuffer(pc net.PacketConn) {
	uc, ok := pc.(*net.UDPConn)
	if !ok {
		return
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvBufferBytes)
	})
}

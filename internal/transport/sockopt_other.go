//go:build !linux

package transport

import "net"

// tuneRecvBuffer is a no-op off Linux; the platform's default socket
// buffer sizing is left alone.
func tuneRecvBuffer(pc net.PacketConn) {}

package netconn

import "errors"

var (
	// ErrHandshakeTimeout is returned when no SYN reply arrives within the
	// overall connect timeout.
	ErrHandshakeTimeout = errors.New("netconn: handshake timed out")
	// ErrRejected is returned when the peer answers with REJECTED.
	ErrRejected = errors.New("netconn: connection rejected")
	// ErrDisconnectTimeout is returned when no RELIABLE_ACK answers a
	// DISCONNECT within the two-way handshake's budget; the connection is
	// force-closed regardless.
	ErrDisconnectTimeout = errors.New("netconn: disconnect handshake timed out")
	// ErrProtocolMismatch is returned when a message decodes structurally
	// but violates the expected shape for the connection's current state.
	ErrProtocolMismatch = errors.New("netconn: protocol mismatch")
)

// Package netconn implements the connection layer (C3): a thin reliability
// shim over an unreliable datagram transport. It owns the handshake
// send/retry policy, the reliable-message ack/retransmit protocol for
// LAUNCH/GAMESTART/DISCONNECT, keep-alives, and the two-way disconnect
// handshake. It is driven entirely by Poll and HandleMessage — no
// goroutines, no blocking.
package netconn

import (
	"fmt"
	"net"
	"time"

	"github.com/rusty-dusty/doomnet-client/internal/metrics"
	"github.com/rusty-dusty/doomnet-client/internal/transport"
	"github.com/rusty-dusty/doomnet-client/internal/wire"
)

// State is the connection's lifecycle state, independent of the session
// state machine layered above it.
type State int

const (
	Connecting State = iota
	Connected
	Disconnected
	DisconnectedSleep
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case DisconnectedSleep:
		return "disconnected_sleep"
	default:
		return "unknown"
	}
}

const (
	synInterval             = time.Second
	connectTimeout          = 120 * time.Second
	reliableResendInterval  = 300 * time.Millisecond
	disconnectAckTimeout    = 5 * time.Second
	keepAliveIdleTimeout    = time.Second
	disconnectedSleepLinger = 2 * time.Second
)

// SupportedProtocols is the list this client asserts in SYN. Only one
// protocol name is defined by the wire contract.
var SupportedProtocols = []string{"CHOCOLATE_DOOM_0"}

// pendingReliable tracks one locally-originated reliable message awaiting
// RELIABLE_ACK.
type pendingReliable struct {
	id       uint8
	payload  []byte
	lastSent time.Time
}

// Conn drives the handshake, reliable-message, keep-alive and disconnect
// protocols over a transport.Datagram. It holds no game/session state.
type Conn struct {
	t    transport.Datagram
	peer net.Addr

	state        State
	connectStart time.Time
	lastSynSent  time.Time
	rejectReason string

	disconnectStart time.Time
	sleepStart      time.Time

	lastSendTime time.Time

	nextReliableID uint8
	outgoing       *pendingReliable

	lastInboundReliableTag wire.Tag
	lastInboundReliableID  uint8
	haveInboundReliable    bool

	version     string
	protocols   []string
	connectData wire.ConnectData
	playerName  string

	// OnLaunch/OnGameStart/OnWaitingData/OnConsoleMsg and the OnGameData*
	// callbacks are invoked synchronously from HandleMessage for messages this layer
	// cannot interpret itself; the session/client own their semantics.
	OnLaunch        func(numPlayers uint8)
	OnGameStart     func(s wire.GameSettings)
	OnWaitingData   func(d wire.WaitingData)
	OnConsoleMsg    func(text string)
	OnGameData       func(ackBase, firstSeq, count uint8, body *wire.Reader)
	OnGameDataAck    func(ackBase uint8)
	OnGameDataResend func(start int32, count uint8)
}

// Dial begins a handshake against peer. The returned Conn starts in
// Connecting; Poll must be called regularly to drive SYN retries.
func Dial(t transport.Datagram, peer net.Addr, version string, data wire.ConnectData, playerName string) *Conn {
	return &Conn{
		t:           t,
		peer:        peer,
		state:       Connecting,
		version:     version,
		protocols:   SupportedProtocols,
		connectData: data,
		playerName:  playerName,
	}
}

func (c *Conn) State() State { return c.state }

// RejectReason is set once Connecting transitions to Disconnected via
// REJECTED; empty otherwise.
func (c *Conn) RejectReason() string { return c.rejectReason }

// Poll drives every timer-based transition: SYN retries and the 120s
// connect timeout while Connecting, reliable-message retransmission, the
// 5s disconnect-ack timeout, and the 1s keep-alive idle timer. The first
// Poll after Disconnected moves the Conn to DisconnectedSleep, where it
// ignores every inbound message; that state is not timed and lasts until
// the caller dials a new Conn. now is the caller's single sampled
// wall-clock value for this tick.
func (c *Conn) Poll(now time.Time) error {
	switch c.state {
	case Connecting:
		return c.pollConnecting(now)
	case Connected:
		return c.pollConnected(now)
	case Disconnected:
		if !c.disconnectStart.IsZero() && now.Sub(c.disconnectStart) > disconnectAckTimeout {
			c.disconnectStart = time.Time{}
		}
		c.state = DisconnectedSleep
		c.sleepStart = now
		return nil
	case DisconnectedSleep:
		return nil
	}
	return nil
}

func (c *Conn) pollConnecting(now time.Time) error {
	if c.connectStart.IsZero() {
		c.connectStart = now
	}
	if now.Sub(c.connectStart) > connectTimeout {
		c.state = Disconnected
		metrics.IncError(metrics.ErrLabelTimeout)
		return ErrHandshakeTimeout
	}
	if c.lastSynSent.IsZero() || now.Sub(c.lastSynSent) >= synInterval {
		c.sendSyn()
		c.lastSynSent = now
	}
	return nil
}

func (c *Conn) pollConnected(now time.Time) error {
	if c.outgoing != nil && now.Sub(c.outgoing.lastSent) >= reliableResendInterval {
		if err := c.t.Send(c.peer, c.outgoing.payload); err != nil {
			return fmt.Errorf("netconn: resend reliable: %w", err)
		}
		c.outgoing.lastSent = now
	}
	if !c.disconnectStart.IsZero() && now.Sub(c.disconnectStart) > disconnectAckTimeout {
		c.state = Disconnected
		c.disconnectStart = time.Time{}
		metrics.IncError(metrics.ErrLabelTimeout)
		return ErrDisconnectTimeout
	}
	if now.Sub(c.lastSendTime) >= keepAliveIdleTimeout {
		if err := c.t.Send(c.peer, wire.EncodeKeepAlive()); err != nil {
			return fmt.Errorf("netconn: keepalive: %w", err)
		}
		c.lastSendTime = now
	}
	return nil
}

func (c *Conn) sendSyn() {
	payload := wire.EncodeSyn(c.version, c.protocols, c.connectData, c.playerName)
	_ = c.t.Send(c.peer, payload)
	c.lastSendTime = time.Now()
}

// sendReliable starts retransmission of a reliable payload under a fresh id
// until the matching RELIABLE_ACK arrives; a message still awaiting its ack
// is replaced and no longer retransmitted.
func (c *Conn) sendReliable(encode func(id uint8) []byte) {
	id := c.nextReliableID
	c.nextReliableID++
	payload := encode(id)
	c.outgoing = &pendingReliable{id: id, payload: payload, lastSent: time.Now()}
	_ = c.t.Send(c.peer, payload)
	c.lastSendTime = time.Now()
}

// SendLaunch starts reliable delivery of a LAUNCH message this side
// originates (used when this client is acting as the session controller in
// a peer-hosted match).
func (c *Conn) SendLaunch(numPlayers uint8) {
	c.sendReliable(func(id uint8) []byte { return wire.EncodeLaunch(id, numPlayers) })
}

// SendGameStart starts reliable delivery of a GAMESTART ruleset this side
// originates.
func (c *Conn) SendGameStart(s wire.GameSettings) {
	c.sendReliable(func(id uint8) []byte { return wire.EncodeGameStart(id, s) })
}

// Disconnect starts the two-way DISCONNECT/RELIABLE_ACK handshake; the
// caller keeps polling until State() reports Disconnected or
// DisconnectedSleep.
func (c *Conn) Disconnect() {
	if c.state != Connected {
		c.state = Disconnected
		return
	}
	c.disconnectStart = time.Now()
	c.sendReliable(wire.EncodeDisconnect)
}

// SendDatagram is a pass-through for non-reliable messages (GAMEDATA,
// GAMEDATA_ACK, GAMEDATA_RESEND): this layer adds no framing to them.
func (c *Conn) SendDatagram(payload []byte) error {
	c.lastSendTime = time.Now()
	return c.t.Send(c.peer, payload)
}

// HandleMessage dispatches one already-tag-peeked datagram. body still has
// the tag consumed by the caller's PeekTag/ReadU16.
func (c *Conn) HandleMessage(tag wire.Tag, reliable bool, body *wire.Reader) error {
	switch c.state {
	case Connecting:
		return c.handleConnecting(tag, body)
	case Connected:
		return c.handleConnected(tag, reliable, body)
	default:
		return nil
	}
}

func (c *Conn) handleConnecting(tag wire.Tag, body *wire.Reader) error {
	switch tag {
	case wire.TagSyn:
		// The server's accept SYN need not be fully decoded here; protocol
		// agreement is implicit in the server choosing to reply at all.
		c.state = Connected
		return nil
	case wire.TagRejected:
		reason, ok := wire.DecodeRejected(body)
		if !ok {
			reason = "malformed rejection"
		}
		c.rejectReason = reason
		c.state = Disconnected
		metrics.IncError(metrics.ErrLabelRejected)
		return fmt.Errorf("netconn: connection rejected: %s: %w", reason, ErrRejected)
	default:
		return nil
	}
}

func (c *Conn) handleConnected(tag wire.Tag, reliable bool, body *wire.Reader) error {
	switch tag {
	case wire.TagLaunch:
		id, numPlayers, ok := wire.DecodeLaunch(body)
		if !ok {
			metrics.IncError(metrics.ErrLabelProtocol)
			return fmt.Errorf("netconn: malformed launch: %w", ErrProtocolMismatch)
		}
		c.ackReliable(wire.TagLaunch, id)
		if !c.alreadySeen(wire.TagLaunch, id) && c.OnLaunch != nil {
			c.OnLaunch(numPlayers)
		}
		return nil
	case wire.TagGameStart:
		id, s, ok := wire.DecodeGameStart(body)
		if !ok {
			metrics.IncError(metrics.ErrLabelProtocol)
			return fmt.Errorf("netconn: malformed gamestart: %w", ErrProtocolMismatch)
		}
		c.ackReliable(wire.TagGameStart, id)
		if !c.alreadySeen(wire.TagGameStart, id) && c.OnGameStart != nil {
			c.OnGameStart(s)
		}
		return nil
	case wire.TagDisconnect:
		id, ok := wire.DecodeDisconnect(body)
		if !ok {
			return fmt.Errorf("netconn: malformed disconnect: %w", ErrProtocolMismatch)
		}
		c.ackReliable(wire.TagDisconnect, id)
		c.state = Disconnected
		return nil
	case wire.TagReliableAck:
		id, ok := wire.DecodeReliableAck(body)
		if ok && c.outgoing != nil && c.outgoing.id == id {
			wasDisconnect := !c.disconnectStart.IsZero()
			c.outgoing = nil
			if wasDisconnect {
				c.state = Disconnected
				c.disconnectStart = time.Time{}
			}
		}
		return nil
	case wire.TagWaitingData:
		d, ok := wire.DecodeWaitingData(body)
		if !ok {
			metrics.IncError(metrics.ErrLabelProtocol)
			return fmt.Errorf("netconn: malformed waiting_data: %w", ErrProtocolMismatch)
		}
		if c.OnWaitingData != nil {
			c.OnWaitingData(d)
		}
		return nil
	case wire.TagConsoleMessage:
		text, ok := wire.DecodeConsoleMessage(body)
		if ok && c.OnConsoleMsg != nil {
			c.OnConsoleMsg(text)
		}
		return nil
	case wire.TagGameData:
		ackBase, firstSeq, count, ok := wire.DecodeGameDataHeader(body)
		if !ok {
			metrics.IncError(metrics.ErrLabelProtocol)
			return fmt.Errorf("netconn: malformed gamedata header: %w", ErrProtocolMismatch)
		}
		if c.OnGameData != nil {
			c.OnGameData(ackBase, firstSeq, count, body)
		}
		return nil
	case wire.TagGameDataAck:
		ackBase, ok := wire.DecodeGameDataAck(body)
		if ok && c.OnGameDataAck != nil {
			c.OnGameDataAck(ackBase)
		}
		return nil
	case wire.TagGameDataResend:
		start, count, ok := wire.DecodeGameDataResend(body)
		if ok && c.OnGameDataResend != nil {
			c.OnGameDataResend(start, count)
		}
		return nil
	case wire.TagKeepAlive:
		return nil
	default:
		return nil
	}
}

// ackReliable always replies RELIABLE_ACK for a reliable receipt (the
// sender may still be retransmitting even if we've already delivered this
// id once), but alreadySeen tells the caller whether to skip re-delivering
// the payload to its callback.
func (c *Conn) ackReliable(tag wire.Tag, id uint8) {
	_ = c.t.Send(c.peer, wire.EncodeReliableAck(id))
}

func (c *Conn) alreadySeen(tag wire.Tag, id uint8) bool {
	seen := c.haveInboundReliable && c.lastInboundReliableTag == tag && c.lastInboundReliableID == id
	c.lastInboundReliableTag = tag
	c.lastInboundReliableID = id
	c.haveInboundReliable = true
	return seen
}

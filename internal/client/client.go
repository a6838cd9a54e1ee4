// Package client is the single owner struct wiring the connection layer,
// session state machine, send/receive rings, clock sync controller and loop
// pacer together. It is the only thing an embedder talks to.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/rusty-dusty/doomnet-client/internal/clocksync"
	"github.com/rusty-dusty/doomnet-client/internal/logging"
	"github.com/rusty-dusty/doomnet-client/internal/metrics"
	"github.com/rusty-dusty/doomnet-client/internal/netconn"
	"github.com/rusty-dusty/doomnet-client/internal/pacer"
	"github.com/rusty-dusty/doomnet-client/internal/recvring"
	"github.com/rusty-dusty/doomnet-client/internal/sendring"
	"github.com/rusty-dusty/doomnet-client/internal/session"
	"github.com/rusty-dusty/doomnet-client/internal/ticcmd"
	"github.com/rusty-dusty/doomnet-client/internal/transport"
	"github.com/rusty-dusty/doomnet-client/internal/wire"
)

var allSessionStates = []string{
	session.Disconnected.String(),
	session.WaitingLaunch.String(),
	session.WaitingStart.String(),
	session.InGame.String(),
	session.DisconnectedSleep.String(),
}

// Config bundles everything Connect needs that isn't derived at runtime.
type Config struct {
	Version     string
	PlayerName  string
	ConnectData wire.ConnectData
}

// Client is the cooperative, single-threaded owner of a lockstep session.
// Every method must be called from the same goroutine; nothing here spawns
// one of its own.
type Client struct {
	t    transport.Datagram
	conn *netconn.Conn
	sess *session.Session
	send *sendring.Ring
	recv *recvring.Ring
	clk  *clocksync.Ctx
	pace *pacer.Pacer

	cfg           Config
	peer          net.Addr
	prevConnState netconn.State

	onConsoleMessage func(string)
	onWaitingData    func(wire.WaitingData)
	processEvents    func()
	buildTicCmd      func(maketic int32) ticcmd.TicCmd
	runTic           func(cmds [ticcmd.MaxPlayers]ticcmd.TicCmd, inGame [ticcmd.MaxPlayers]bool)
}

// New returns an idle client, not yet connected.
func New(t transport.Datagram, cfg Config) *Client {
	return &Client{
		t:             t,
		sess:          session.New(),
		clk:           clocksync.New(),
		cfg:           cfg,
		prevConnState: netconn.Disconnected,
	}
}

// SetOnConsoleMessage registers a callback for CONSOLE_MESSAGE passthrough.
func (c *Client) SetOnConsoleMessage(fn func(string)) { c.onConsoleMessage = fn }

// SetOnWaitingData registers a callback for lobby-status updates.
func (c *Client) SetOnWaitingData(fn func(wire.WaitingData)) { c.onWaitingData = fn }

// SetBuildTicCmd registers the external input builder the pacer calls to
// produce the local player's command for a tic.
func (c *Client) SetBuildTicCmd(fn func(maketic int32) ticcmd.TicCmd) { c.buildTicCmd = fn }

// SetRunTic registers the external simulation step the pacer calls once per
// executed sub-tic.
func (c *Client) SetRunTic(fn func(cmds [ticcmd.MaxPlayers]ticcmd.TicCmd, inGame [ticcmd.MaxPlayers]bool)) {
	c.runTic = fn
}

// SetProcessEvents registers the UI/input pump the pacer calls every build
// attempt, connected or not.
func (c *Client) SetProcessEvents(fn func()) { c.processEvents = fn }

// Connect starts a handshake against addr; returns false if a connection is
// already in progress or established.
func (c *Client) Connect(addr string) (bool, error) {
	if c.conn != nil && c.conn.State() != netconn.Disconnected && c.conn.State() != netconn.DisconnectedSleep {
		return false, nil
	}
	peer, err := c.t.Resolve(addr)
	if err != nil {
		metrics.IncError(metrics.ErrLabelTransport)
		return false, fmt.Errorf("client: resolve %s: %w", addr, err)
	}
	c.peer = peer
	c.sess = session.New()
	c.prevConnState = netconn.Disconnected

	conn := netconn.Dial(c.t, peer, c.cfg.Version, c.cfg.ConnectData, c.cfg.PlayerName)
	conn.OnLaunch = func(numPlayers uint8) { _ = c.applyLaunch() }
	conn.OnGameStart = func(s wire.GameSettings) { _ = c.applyGameStart(s) }
	conn.OnWaitingData = func(d wire.WaitingData) {
		if err := session.OnWaitingData(d); err != nil {
			logging.L().Warn("waiting_data_invalid", "error", err)
			metrics.IncError(metrics.ErrLabelProtocol)
			return
		}
		if c.onWaitingData != nil {
			c.onWaitingData(d)
		}
	}
	conn.OnConsoleMsg = func(text string) {
		if c.onConsoleMessage != nil {
			c.onConsoleMessage(text)
		}
	}
	conn.OnGameData = c.handleGameData
	conn.OnGameDataAck = func(ackBase uint8) {}
	conn.OnGameDataResend = c.handleGameDataResend
	c.conn = conn
	c.updateSessionStateMetric()
	return true, nil
}

// Disconnect starts the two-way disconnect handshake when a connection
// exists, and in every case forces the local session back to Disconnected
// immediately.
func (c *Client) Disconnect() {
	if c.conn != nil {
		c.conn.Disconnect()
	}
	c.sess.OnDisconnect()
	c.updateSessionStateMetric()
}

// LaunchGame applies the WaitingLaunch -> WaitingStart transition. When
// connected it also notifies the peer via a reliable LAUNCH; in offline
// mode (no connection established) it only updates local session state, so
// the same code path drives both single-player and peer-hosted launches.
func (c *Client) LaunchGame(numPlayers uint8) error {
	if c.connected() {
		c.conn.SendLaunch(numPlayers)
	}
	return c.applyLaunch()
}

// StartGame applies the WaitingStart -> InGame transition with settings,
// mirroring LaunchGame's dual local/networked behavior.
func (c *Client) StartGame(settings wire.GameSettings) error {
	if c.connected() {
		c.conn.SendGameStart(settings)
	}
	return c.applyGameStart(settings)
}

func (c *Client) applyLaunch() error {
	if err := c.sess.OnLaunch(); err != nil {
		logging.L().Warn("launch_rejected", "error", err)
		metrics.IncError(metrics.ErrLabelProtocol)
		return err
	}
	c.updateSessionStateMetric()
	return nil
}

func (c *Client) applyGameStart(s wire.GameSettings) error {
	if err := c.sess.OnGameStart(s); err != nil {
		logging.L().Warn("gamestart_rejected", "error", err)
		metrics.IncError(metrics.ErrLabelProtocol)
		return err
	}
	drone := s.ConsolePlayer < 0
	playerIndex := s.ConsolePlayer
	if drone {
		playerIndex = 0
	}
	c.send = sendring.New(drone, s.LowResTurn, playerIndex)
	c.recv = recvring.New()
	c.clk.Reset()
	c.pace = pacer.New(s.Ticdup, s.NewSync, drone)
	if !drone {
		c.pace.SetLocalPlayer(s.ConsolePlayer)
	}
	c.pace.StartGameLoop(time.Now())
	c.updateSessionStateMetric()
	return nil
}

// GetSettings returns the ruleset snapshot taken at GAMESTART, or nil
// before InGame.
func (c *Client) GetSettings() *wire.GameSettings { return c.sess.Settings() }

func (c *Client) connected() bool {
	return c.conn != nil && c.conn.State() == netconn.Connected
}

// SendTicCmd hands a freshly built local command to the send ring and
// transmits the redundant GAMEDATA tail [maketic-extratics, maketic].
func (c *Client) SendTicCmd(cmd ticcmd.TicCmd, maketic int32) {
	if c.send == nil {
		return
	}
	c.send.Store(uint32(maketic), time.Now(), cmd)
	if !c.connected() {
		return
	}
	settings := c.sess.Settings()
	extratics := int32(0)
	if settings != nil {
		extratics = settings.Extratics
	}
	first := maketic - extratics
	if first < 0 {
		first = 0
	}
	count := int(maketic-first) + 1
	payload := c.send.BuildGameData(uint8(c.recv.WindowStart()), uint32(first), count, int16(c.clk.LastLatency))
	if err := c.conn.SendDatagram(payload); err != nil {
		logging.L().Warn("gamedata_send_failed", "error", err)
		metrics.IncError(metrics.ErrLabelTransport)
		return
	}
	metrics.AddTicsSent(count)
}

func (c *Client) handleGameData(ackBase, firstSeq, count uint8, body *wire.Reader) {
	_ = ackBase
	if c.recv == nil {
		return
	}
	expandedFirst := c.recv.ExpandSeq(firstSeq)
	settings := c.sess.Settings()
	lowres := settings != nil && settings.LowResTurn

	bundles := make([]ticcmd.FullTicCmd, 0, count)
	for i := 0; i < int(count); i++ {
		lat, ok := body.ReadI16()
		if !ok {
			metrics.IncError(metrics.ErrLabelProtocol)
			return
		}
		playerMask, ok := body.ReadU8()
		if !ok {
			metrics.IncError(metrics.ErrLabelProtocol)
			return
		}
		var b ticcmd.FullTicCmd
		b.Latency = lat
		for p := 0; p < ticcmd.MaxPlayers; p++ {
			if playerMask&(1<<uint(p)) == 0 {
				continue
			}
			diff, ok := ticcmd.Decode(body, lowres)
			if !ok {
				metrics.IncError(metrics.ErrLabelProtocol)
				return
			}
			b.PlayerInGame[p] = true
			b.Cmds[p] = diff
		}
		bundles = append(bundles, b)
	}

	lastSeq, lastLatency, ok := c.recv.StoreGameData(time.Now(), expandedFirst, bundles)
	if ok && c.send != nil {
		if sendTime, valid := c.send.SendTime(lastSeq); valid {
			offset := c.clk.Update(time.Since(sendTime), lastLatency)
			if c.pace != nil {
				c.pace.SetOffsetMs(offset)
			}
		}
	}
	if req, has := c.recv.ScanGaps(time.Now(), expandedFirst); has {
		c.sendResendRequest(req)
	}
}

func (c *Client) handleGameDataResend(start int32, count uint8) {
	if c.send == nil || c.conn == nil {
		return
	}
	firstSeq, n, ok := c.send.HandleResendInterval(uint32(start), count)
	if !ok {
		return
	}
	ackBase := uint8(0)
	if c.recv != nil {
		ackBase = uint8(c.recv.WindowStart())
	}
	payload := c.send.BuildGameData(ackBase, firstSeq, n, int16(c.clk.LastLatency))
	if err := c.conn.SendDatagram(payload); err != nil {
		logging.L().Warn("resend_send_failed", "error", err)
		metrics.IncError(metrics.ErrLabelTransport)
		return
	}
	metrics.AddTicsResent(n)
}

func (c *Client) sendResendRequest(req recvring.ResendRequest) {
	if c.conn == nil {
		return
	}
	if err := c.conn.SendDatagram(wire.EncodeGameDataResend(int32(req.Start), req.Count)); err != nil {
		logging.L().Warn("resend_request_failed", "error", err)
		metrics.IncError(metrics.ErrLabelTransport)
		return
	}
	metrics.IncResendRequestSent()
}

// NetUpdate pumps the transport, drives the connection layer's timers, and
// sweeps the receive ring for resend/ack bookkeeping. Called by the pacer
// between every tic built/run, and directly by Run for a single polling
// step.
func (c *Client) NetUpdate() {
	for {
		_, payload, ok, err := c.t.Recv()
		if err != nil {
			metrics.IncPacketDropped(metrics.ErrLabelTransport)
			continue
		}
		if !ok {
			break
		}
		tag, reliable, okTag := wire.PeekTag(payload)
		if !okTag {
			metrics.IncPacketDropped("short")
			continue
		}
		if c.conn == nil {
			continue
		}
		r := wire.NewReader(payload)
		r.ReadU16()
		if err := c.conn.HandleMessage(tag, reliable, r); err != nil {
			logging.L().Debug("message_handling_error", "error", err)
		}
	}

	if c.conn != nil {
		if err := c.conn.Poll(time.Now()); err != nil {
			logging.L().Debug("conn_poll_error", "error", err)
		}
		c.syncSessionWithConnState()
	}

	if c.recv != nil {
		now := time.Now()
		for _, req := range c.recv.Sweep(now) {
			c.sendResendRequest(req)
		}
		if c.recv.NeedAck(now) && c.conn != nil {
			if err := c.conn.SendDatagram(wire.EncodeGameDataAck(uint8(c.recv.WindowStart()))); err == nil {
				metrics.IncGamedataAckSent()
				c.recv.AckSent()
			}
		}
		c.recv.Advance(func(cmds [ticcmd.MaxPlayers]ticcmd.TicCmd, inGame [ticcmd.MaxPlayers]bool, seq uint32) {
			metrics.IncTicsReceived()
			if c.pace != nil {
				c.pace.SetRemoteTic(int32(seq), cmds, inGame)
			}
		})
	}
}

// syncSessionWithConnState propagates connection-layer transitions the
// session machine cares about: the handshake completing moves
// Disconnected -> WaitingLaunch, and any drop back to Disconnected or
// DisconnectedSleep (timeout, rejection, peer-initiated disconnect) forces
// the session back to Disconnected.
func (c *Client) syncSessionWithConnState() {
	newState := c.conn.State()
	if newState == c.prevConnState {
		return
	}
	if newState == netconn.Connected && c.sess.State() == session.Disconnected {
		if err := c.sess.OnConnected(c.cfg.ConnectData.Drone); err != nil {
			logging.L().Warn("session_connected_rejected", "error", err)
		}
	}
	if (newState == netconn.Disconnected || newState == netconn.DisconnectedSleep) && c.sess.State() != session.Disconnected {
		c.sess.OnDisconnect()
	}
	c.prevConnState = newState
	c.updateSessionStateMetric()
}

// TryRunTics drives the loop pacer for one outer-loop iteration.
func (c *Client) TryRunTics() {
	if c.pace == nil {
		return
	}
	c.pace.TryRunTics(time.Now(), pacer.Hooks{
		ProcessEvents: c.processEvents,
		BuildTicCmd:   c.buildTicCmd,
		SendTicCmd:    func(cmd ticcmd.TicCmd, maketic int32) { c.SendTicCmd(cmd, maketic) },
		IsConnected:   c.connected,
		RecvTic:       func() int32 { return int32(c.recv.WindowStart()) },
		PlayersInGame: func() bool { return c.sess.State() == session.InGame },
		RunTic:        c.runTic,
		NetUpdate:     c.NetUpdate,
	})
}

// Run performs one full polling step: NetUpdate plus, if in a game, one
// TryRunTics iteration. An embedder calls this from its own outer loop at
// whatever cadence it likes (typically once per rendered frame).
func (c *Client) Run() {
	c.NetUpdate()
	if c.sess.State() == session.InGame {
		c.TryRunTics()
	}
}

func (c *Client) updateSessionStateMetric() {
	metrics.SetSessionState(c.sess.State().String(), allSessionStates)
}

// State reports the session's current lifecycle state.
func (c *Client) State() session.State { return c.sess.State() }

// ConnectionState reports the connection layer's current state, or
// netconn.Disconnected if Connect has never been called.
func (c *Client) ConnectionState() netconn.State {
	if c.conn == nil {
		return netconn.Disconnected
	}
	return c.conn.State()
}

// RejectReason returns the REJECTED reason string, if the last connect
// attempt was rejected.
func (c *Client) RejectReason() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RejectReason()
}

// Close releases the underlying transport.
func (c *Client) Close() error { return c.t.Close() }

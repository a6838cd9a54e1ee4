// Package pacer implements the loop pacer (C8): the bridge between
// wall-clock time and the fixed 35Hz simulation tic rate, deciding each
// outer iteration how many tics to build, send, and run.
package pacer

import (
	"time"

	"github.com/rusty-dusty/doomnet-client/internal/ticcmd"
)

// TicRate is the fixed simulation rate in ticks per second.
const TicRate = 35

// MaxNetgameStallTics bounds how long try_run_tics will spin waiting for
// network data before giving the caller (and its UI) a chance to run.
const MaxNetgameStallTics = 2

// Hooks are the external callbacks the pacer drives each iteration. All of
// them are called synchronously from the same goroutine; none may block.
type Hooks struct {
	// ProcessEvents pumps input/menu events; called every build attempt.
	ProcessEvents func()
	// BuildTicCmd asks the embedder for the local player's command for
	// tic maketic.
	BuildTicCmd func(maketic int32) ticcmd.TicCmd
	// SendTicCmd hands a locally built command to the send ring/transport.
	// Only called when connected.
	SendTicCmd func(cmd ticcmd.TicCmd, maketic int32)
	// IsConnected reports whether the connection layer is past handshake.
	IsConnected func() bool
	// RecvTic reports the receive ring's current window start (mirrors
	// recv_window_start); meaningful only when IsConnected.
	RecvTic func() int32
	// PlayersInGame reports whether any player slot is currently active,
	// used to decide whether the execution loop may proceed.
	PlayersInGame func() bool
	// RunTic executes one simulation sub-tic with the given commands and
	// in-game mask.
	RunTic func(cmds [ticcmd.MaxPlayers]ticcmd.TicCmd, inGame [ticcmd.MaxPlayers]bool)
	// NetUpdate pumps the connection and receive ring once; called
	// between every tic built/run.
	NetUpdate func()
	// Sleep1ms is the pacer's single suspension point; overridable for
	// tests so they never actually block.
	Sleep1ms func()
}

// ticcmdSet mirrors the reference's TICDATA slot: one bundle of commands
// plus an in-game mask, keyed by maketic % 128 by the caller.
type ticcmdSet struct {
	cmds   [ticcmd.MaxPlayers]ticcmd.TicCmd
	ingame [ticcmd.MaxPlayers]bool
}

// Pacer holds the three tic counters and the legacy-sync frame-skip state;
// it has no transport or ring of its own — those live behind Hooks.
type Pacer struct {
	MakeTic int32
	GameTic int32
	Ticdup  int32
	NewSync bool
	Drone   bool

	offsetMs int32
	lastTime int32
	skipTics int32

	oldEntryTics int32
	frameOn      int32
	frameSkip    [4]bool
	oldNetTics   int32
	localPlayer  int32

	store [128]ticcmdSet
}

// New returns a pacer configured with the ruleset's ticdup and sync mode.
// Ticdup must already be clamped to [1,5] by the caller (session
// validation owns that).
func New(ticdup int32, newSync, drone bool) *Pacer {
	return &Pacer{Ticdup: ticdup, NewSync: newSync, Drone: drone}
}

// SetOffsetMs is called by the clock-sync controller to publish its latest
// PID output; only consulted when NewSync is set.
func (p *Pacer) SetOffsetMs(ms int32) { p.offsetMs = ms }

// AdjustedTime maps a wall-clock instant to a tic count, skewed by the
// clock-sync offset in new_sync mode.
func (p *Pacer) AdjustedTime(now time.Time) int32 {
	ms := int32(now.UnixMilli())
	if p.NewSync {
		ms += p.offsetMs
	}
	return int32((int64(ms) * TicRate) / 1000)
}

// StartGameLoop primes last_time on entry to InGame; call once before the
// first TryRunTics.
func (p *Pacer) StartGameLoop(now time.Time) {
	p.lastTime = p.AdjustedTime(now) / p.Ticdup
}

// SetRemoteTic merges a bundle the receive ring just delivered into the
// shared tic store at the matching slot, leaving the local player's own
// entry (written by buildNewTic) untouched.
func (p *Pacer) SetRemoteTic(seq int32, cmds [ticcmd.MaxPlayers]ticcmd.TicCmd, inGame [ticcmd.MaxPlayers]bool) {
	slot := &p.store[seq%128]
	for i := 0; i < ticcmd.MaxPlayers; i++ {
		if int32(i) == p.localPlayer {
			continue
		}
		slot.cmds[i] = cmds[i]
		slot.ingame[i] = inGame[i]
	}
}

// SetLocalPlayer designates which player slot buildNewTic/SetRemoteTic
// treats as the local one.
func (p *Pacer) SetLocalPlayer(n int32) { p.localPlayer = n }

// buildNewTic attempts to build exactly one local tic, applying the
// back-pressure rule for the active sync mode. Returns false if nothing was
// built (drone, back-pressure, or the hook declined).
func (p *Pacer) buildNewTic(h Hooks) bool {
	gameticdiv := p.GameTic / p.Ticdup
	if h.ProcessEvents != nil {
		h.ProcessEvents()
	}
	if p.Drone {
		return false
	}

	connected := h.IsConnected != nil && h.IsConnected()
	if p.NewSync {
		if !connected && p.MakeTic-gameticdiv > 2 {
			return false
		}
		if p.MakeTic-gameticdiv > 8 {
			return false
		}
	} else if p.MakeTic-gameticdiv >= 5 {
		return false
	}

	var cmd ticcmd.TicCmd
	if h.BuildTicCmd != nil {
		cmd = h.BuildTicCmd(p.MakeTic)
	}
	if connected && h.SendTicCmd != nil {
		h.SendTicCmd(cmd, p.MakeTic)
	}

	slot := &p.store[p.MakeTic%128]
	slot.cmds[p.localPlayer] = cmd
	slot.ingame[p.localPlayer] = true
	p.MakeTic++
	return true
}

// NetUpdate pumps the connection/ring hook, then builds as many new local
// tics as wall-clock time allows (skewed by any pending skipTics debt).
func (p *Pacer) NetUpdate(now time.Time, h Hooks) {
	if h.NetUpdate != nil {
		h.NetUpdate()
	}

	nowTic := p.AdjustedTime(now) / p.Ticdup
	newTics := nowTic - p.lastTime
	p.lastTime = nowTic

	if p.skipTics <= newTics {
		newTics -= p.skipTics
		p.skipTics = 0
	} else {
		p.skipTics -= newTics
		newTics = 0
	}

	for i := int32(0); i < newTics; i++ {
		if !p.buildNewTic(h) {
			break
		}
	}
}

func (p *Pacer) lowTic(h Hooks) int32 {
	low := p.MakeTic
	connected := h.IsConnected != nil && h.IsConnected()
	if connected && h.RecvTic != nil {
		recv := h.RecvTic()
		if p.Drone || recv < low {
			low = recv
		}
	}
	return low
}

func (p *Pacer) playersInGame(h Hooks) bool {
	if h.IsConnected != nil && h.IsConnected() {
		return h.PlayersInGame != nil && h.PlayersInGame()
	}
	return !p.Drone
}

// TryRunTics is the outer loop's single call per iteration: pump the
// network, decide how many simulation tics are available, block (with the
// pacer's one sleep(1ms) suspension point) until they are, then run them.
// It may return having run zero tics if the stall-escape fires.
func (p *Pacer) TryRunTics(now time.Time, h Hooks) {
	enterTic := p.AdjustedTime(now) / p.Ticdup

	p.NetUpdate(now, h)

	lowTic := p.lowTic(h)
	available := lowTic - p.GameTic/p.Ticdup

	realTics := enterTic - p.oldEntryTics
	p.oldEntryTics = enterTic

	var counts int32
	if p.NewSync {
		counts = available
	} else {
		switch {
		case realTics < available-1:
			counts = realTics + 1
		case realTics < available:
			counts = realTics
		default:
			counts = available
		}
		if counts < 1 {
			counts = 1
		}
		if h.IsConnected != nil && h.IsConnected() {
			p.oldNetSync(h)
		}
	}
	if counts < 1 {
		counts = 1
	}

	for !p.playersInGame(h) || lowTic < p.GameTic/p.Ticdup+counts {
		p.NetUpdate(time.Now(), h)
		lowTic = p.lowTic(h)

		if lowTic < p.GameTic/p.Ticdup {
			panic("pacer: lowtic fell behind gametic")
		}
		if lowTic < p.GameTic/p.Ticdup+counts {
			if p.AdjustedTime(time.Now())/p.Ticdup-enterTic >= MaxNetgameStallTics {
				return
			}
			if h.Sleep1ms != nil {
				h.Sleep1ms()
			} else {
				time.Sleep(time.Millisecond)
			}
		}
	}

	for counts > 0 {
		if !p.playersInGame(h) {
			return
		}
		slot := &p.store[(p.GameTic/p.Ticdup)%128]
		if h.IsConnected == nil || !h.IsConnected() {
			clearOthers(slot, p.localPlayer)
		}
		for d := int32(0); d < p.Ticdup; d++ {
			if p.GameTic/p.Ticdup > lowTic {
				panic("pacer: gametic overran lowtic")
			}
			if h.RunTic != nil {
				h.RunTic(slot.cmds, slot.ingame)
			}
			p.GameTic++
			squashDuplicatedTic(slot)
		}
		if h.NetUpdate != nil {
			h.NetUpdate()
		}
		counts--
	}
}

func (p *Pacer) oldNetSync(h Hooks) {
	p.frameOn++
	keyPlayer := int32(0)
	recv := int32(0)
	if h.RecvTic != nil {
		recv = h.RecvTic()
	}
	if p.localPlayer != keyPlayer {
		if p.MakeTic <= recv {
			p.lastTime--
		}
		p.frameSkip[p.frameOn&3] = p.oldNetTics > recv
		p.oldNetTics = p.MakeTic
		if p.frameSkip[0] && p.frameSkip[1] && p.frameSkip[2] && p.frameSkip[3] {
			p.skipTics = 1
		}
	}
}

func clearOthers(s *ticcmdSet, keep int32) {
	for i := range s.ingame {
		if int32(i) != keep {
			s.ingame[i] = false
		}
	}
}

// squashDuplicatedTic clears chatchar/BT_SPECIAL on every command in a slot
// about to be re-run for ticdup > 1, so side effects fire exactly once per
// server tic.
func squashDuplicatedTic(s *ticcmdSet) {
	for i, c := range s.cmds {
		s.cmds[i] = c.Squash()
	}
}

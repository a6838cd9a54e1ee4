package pacer

import (
	"testing"
	"time"

	"github.com/rusty-dusty/doomnet-client/internal/ticcmd"
)

func noopHooks() Hooks {
	return Hooks{
		IsConnected:   func() bool { return true },
		PlayersInGame: func() bool { return true },
		RecvTic:       func() int32 { return 0 },
		Sleep1ms:      func() {},
	}
}

func TestStallEscapeReturnsWithoutAdvancing(t *testing.T) {
	// S5: freeze server input (recv_tic never advances); try_run_tics must
	// return without panicking or advancing game_tic, within the stall
	// budget.
	p := New(1, true, false)
	now := time.Now()
	p.StartGameLoop(now)

	h := noopHooks()
	h.BuildTicCmd = func(maketic int32) ticcmd.TicCmd { return ticcmd.TicCmd{} }
	h.RunTic = func(cmds [ticcmd.MaxPlayers]ticcmd.TicCmd, inGame [ticcmd.MaxPlayers]bool) {
		t.Fatalf("RunTic must not be called while stalled")
	}

	before := p.GameTic
	start := time.Now()
	p.TryRunTics(start, h)
	elapsed := time.Since(start)

	if p.GameTic != before {
		t.Fatalf("expected game_tic unchanged, got %d -> %d", before, p.GameTic)
	}
	budget := time.Duration(2*(1000/TicRate)) * time.Millisecond
	if elapsed > budget+100*time.Millisecond {
		t.Fatalf("stall escape took too long: %v (budget ~%v)", elapsed, budget)
	}
}

func TestBuildNewTicRespectsNewSyncBackpressure(t *testing.T) {
	p := New(1, true, false)
	p.MakeTic = 100
	p.GameTic = 0 // gameticdiv=0, makeTic-gameticdiv=100 > 8
	h := noopHooks()
	h.BuildTicCmd = func(maketic int32) ticcmd.TicCmd { return ticcmd.TicCmd{} }

	if p.buildNewTic(h) {
		t.Fatalf("expected back-pressure to block build when 8 tics ahead")
	}
}

func TestBuildNewTicDroneNeverBuilds(t *testing.T) {
	p := New(1, true, true)
	h := noopHooks()
	h.BuildTicCmd = func(maketic int32) ticcmd.TicCmd { return ticcmd.TicCmd{Forward: 9} }
	if p.buildNewTic(h) {
		t.Fatalf("expected drone to never build a tic")
	}
}

func TestSquashClearsChatcharAndSpecialButton(t *testing.T) {
	c := ticcmd.TicCmd{Chatchar: 'x', Buttons: ticcmd.BTSpecial | 0x01}
	out := c.Squash()
	if out.Chatchar != 0 {
		t.Fatalf("expected chatchar cleared, got %d", out.Chatchar)
	}
	if out.Buttons != 0 {
		t.Fatalf("expected BT_SPECIAL buttons cleared, got %#x", out.Buttons)
	}
}

func TestTryRunTicsAdvancesWhenDataAvailable(t *testing.T) {
	p := New(1, true, false)
	now := time.Now()
	p.StartGameLoop(now)

	var ran int
	h := noopHooks()
	h.BuildTicCmd = func(maketic int32) ticcmd.TicCmd { return ticcmd.TicCmd{} }
	h.RecvTic = func() int32 { return p.MakeTic }
	h.RunTic = func(cmds [ticcmd.MaxPlayers]ticcmd.TicCmd, inGame [ticcmd.MaxPlayers]bool) { ran++ }

	p.TryRunTics(now.Add(200*time.Millisecond), h)
	if ran == 0 {
		t.Fatalf("expected at least one tic to run once enough wall-clock time passed")
	}
}

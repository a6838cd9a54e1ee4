package recvring

import (
	"testing"
	"time"

	"github.com/rusty-dusty/doomnet-client/internal/ticcmd"
)

func bundle(seq uint32, forward int8) ticcmd.FullTicCmd {
	var b ticcmd.FullTicCmd
	b.Seq = seq
	b.PlayerInGame[0] = true
	b.Cmds[0] = ticcmd.TicDiff{Mask: ticcmd.BitForward, Cmd: ticcmd.TicCmd{Forward: forward}}
	return b
}

func TestExpandSeqResolvesWraparound(t *testing.T) {
	r := New()
	r.windowStart = 250
	// byte value 3 should resolve to 256+3=259, not 3, since 250's low byte
	// (250) is > 0xb0 and b=3 < 0x40.
	got := r.ExpandSeq(3)
	if got != 259 {
		t.Fatalf("ExpandSeq(3) at windowStart=250 = %d, want 259", got)
	}
}

func TestExpandSeqNoWraparoundMidWindow(t *testing.T) {
	r := New()
	r.windowStart = 40
	got := r.ExpandSeq(45)
	if got != 45 {
		t.Fatalf("ExpandSeq(45) at windowStart=40 = %d, want 45", got)
	}
}

func TestGapAndResendScenario(t *testing.T) {
	// S4: deliver tics [0,1,3,4]; expect a resend request for the gap at 2,
	// then on late delivery of 2, the simulation observes [0,1,2,3,4] with
	// no duplicates and no gaps.
	r := New()
	now := time.Now()

	r.StoreGameData(now, 0, []ticcmd.FullTicCmd{bundle(0, 1), bundle(1, 2)})
	var delivered []uint32
	r.Advance(func(cmds [ticcmd.MaxPlayers]ticcmd.TicCmd, inGame [ticcmd.MaxPlayers]bool, seq uint32) {
		delivered = append(delivered, seq)
	})
	if len(delivered) != 2 {
		t.Fatalf("expected 2 delivered tics, got %d: %v", len(delivered), delivered)
	}

	r.StoreGameData(now, 3, []ticcmd.FullTicCmd{bundle(3, 3), bundle(4, 4)})
	req, ok := r.ScanGaps(now, 3)
	if !ok {
		t.Fatalf("expected a gap resend request")
	}
	if req.Start != 2 || req.Count != 1 {
		t.Fatalf("resend request = %+v, want start=2 count=1", req)
	}

	// slot 0 is still not active (tic 2 missing) so nothing should deliver yet.
	if n := r.Advance(func([ticcmd.MaxPlayers]ticcmd.TicCmd, [ticcmd.MaxPlayers]bool, uint32) {}); n != 0 {
		t.Fatalf("expected no delivery while gap at 2 remains, delivered %d", n)
	}

	r.StoreGameData(now, 2, []ticcmd.FullTicCmd{bundle(2, 5)})
	delivered = nil
	r.Advance(func(cmds [ticcmd.MaxPlayers]ticcmd.TicCmd, inGame [ticcmd.MaxPlayers]bool, seq uint32) {
		delivered = append(delivered, seq)
	})
	want := []uint32{2, 3, 4}
	if len(delivered) != len(want) {
		t.Fatalf("delivered = %v, want %v", delivered, want)
	}
	for i, s := range want {
		if delivered[i] != s {
			t.Fatalf("delivered[%d] = %d, want %d", i, delivered[i], s)
		}
	}
}

func TestAdvanceAppliesDiffAgainstPersistentBase(t *testing.T) {
	r := New()
	now := time.Now()
	r.StoreGameData(now, 0, []ticcmd.FullTicCmd{bundle(0, 7)})
	var got ticcmd.TicCmd
	r.Advance(func(cmds [ticcmd.MaxPlayers]ticcmd.TicCmd, inGame [ticcmd.MaxPlayers]bool, seq uint32) {
		got = cmds[0]
	})
	if got.Forward != 7 {
		t.Fatalf("got.Forward = %d, want 7", got.Forward)
	}

	// Next bundle's diff has no FORWARD bit set; base must persist as 7.
	var b ticcmd.FullTicCmd
	b.PlayerInGame[0] = true
	r.StoreGameData(now, 1, []ticcmd.FullTicCmd{b})
	r.Advance(func(cmds [ticcmd.MaxPlayers]ticcmd.TicCmd, inGame [ticcmd.MaxPlayers]bool, seq uint32) {
		got = cmds[0]
	})
	if got.Forward != 7 {
		t.Fatalf("expected base to persist Forward=7, got %d", got.Forward)
	}
}

func TestAckPolicyFiresAfterThreshold(t *testing.T) {
	r := New()
	now := time.Now()
	r.StoreGameData(now, 0, []ticcmd.FullTicCmd{bundle(0, 1)})
	if r.NeedAck(now) {
		t.Fatalf("ack should not be due immediately")
	}
	later := now.Add(ackThreshold + time.Millisecond)
	if !r.NeedAck(later) {
		t.Fatalf("ack should be due after threshold")
	}
	r.AckSent()
	if r.NeedAck(later) {
		t.Fatalf("ack should be cleared after AckSent")
	}
}

func TestSweepIgnoresUngeneratedForwardWindow(t *testing.T) {
	r := New()
	later := time.Now().Add(gapResendThreshold + time.Millisecond)
	// Nothing has ever been received, so every slot is "not yet generated"
	// rather than a gap; Sweep must not ask for any of them.
	if reqs := r.Sweep(later); len(reqs) != 0 {
		t.Fatalf("expected no resend requests before anything is received, got %v", reqs)
	}
}

func TestSweepRequestsOnlyGapsBelowHighestReceived(t *testing.T) {
	r := New()
	now := time.Now()
	// Tic 5 arrives directly (e.g. a resend), leaving 0..4 a real gap below
	// it and 6..127 simply tics the peer hasn't generated yet.
	r.StoreGameData(now, 5, []ticcmd.FullTicCmd{bundle(5, 1)})

	later := now.Add(gapResendThreshold + time.Millisecond)
	reqs := r.Sweep(later)
	if len(reqs) != 1 {
		t.Fatalf("expected exactly one resend interval, got %v", reqs)
	}
	// Slot 0 uses the stricter deadlock-gated rule and stays excluded until
	// a full second has passed with no GAMEDATA at all.
	if reqs[0].Start != 1 || reqs[0].Count != 4 {
		t.Fatalf("resend request = %+v, want start=1 count=4", reqs[0])
	}
}

// Package recvring implements the receive ring and gap/resend protocol
// (C6): a 128-slot window over incoming tic bundles, contiguous delivery to
// the simulation, and the resend-request/ack bookkeeping that keeps the
// window moving under loss.
package recvring

import (
	"time"

	"github.com/rusty-dusty/doomnet-client/internal/ticcmd"
)

// Size is BACKUPTICS, the fixed ring length shared with sendring.
const Size = 128

// gapResendThreshold is the per-slot periodic re-request interval (I6: at
// most one outstanding request per gap per this window).
const gapResendThreshold = 300 * time.Millisecond

// slotZeroResendThreshold is slot 0's longer threshold, combined with the
// deadlock heuristic below.
const slotZeroResendThreshold = time.Second

// deadlockThreshold flags "no GAMEDATA in a while" so slot 0 is re-requested
// even if it was already asked for recently.
const deadlockThreshold = time.Second

// ackThreshold is how long need_ack may sit before a GAMEDATA_ACK is sent.
const ackThreshold = 200 * time.Millisecond

// Slot is one element of the receive ring.
type Slot struct {
	Active                bool
	LastResendRequestTime time.Time
	Bundle                ticcmd.FullTicCmd
}

// ResendRequest names a contiguous interval of tics this ring wants
// retransmitted.
type ResendRequest struct {
	Start uint32
	Count uint8
}

// Ring is the receive window plus the per-player decompression state that
// persists across shifts.
type Ring struct {
	slots            [Size]Slot
	windowStart      uint32
	playerBase       [ticcmd.MaxPlayers]ticcmd.TicCmd
	needAck          bool
	gamedataRecvAt   time.Time
	haveReceivedAny  bool
	haveStoredAny    bool
	highestStoredSeq uint32
}

// New returns a ring with its window starting at 0.
func New() *Ring {
	return &Ring{}
}

// Reset clears the ring, the decompression base, and the window start,
// leaving the ring as New returns it.
func (r *Ring) Reset() {
	*r = Ring{}
}

// WindowStart is the absolute seq slot 0 currently represents (I1, I2).
func (r *Ring) WindowStart() uint32 { return r.windowStart }

// ExpandSeq disambiguates an 8-bit wire sequence number against the
// current window, per the modular boundary rule: the send window cannot
// exceed ~128 tics, so a wrapped byte can be resolved against the high bits
// of windowStart.
func (r *Ring) ExpandSeq(b uint8) uint32 {
	l := r.windowStart & 0xff
	h := r.windowStart &^ 0xff
	seq := h | uint32(b)
	if l < 0x40 && uint32(b) > 0xb0 {
		seq -= 0x100
	} else if l > 0xb0 && uint32(b) < 0x40 {
		seq += 0x100
	}
	return seq
}

// offset returns this seq's position relative to the window, or ok=false
// if it falls outside [0,128).
func (r *Ring) offset(seq uint32) (int, bool) {
	off := int32(seq) - int32(r.windowStart)
	if off < 0 || off >= Size {
		return 0, false
	}
	return int(off), true
}

// StoreGameData records bundles[i] at its window-relative slot for each i
// in [0,n), marking it active. Returns the last stored bundle's (seq,
// latency) for the caller to feed into clock sync, and ok=false if no
// bundle in this payload was in-window (count=0 or the whole payload is
// stale/out-of-range).
func (r *Ring) StoreGameData(now time.Time, firstSeq uint32, bundles []ticcmd.FullTicCmd) (lastSeq uint32, lastLatency int16, ok bool) {
	r.needAck = true
	r.gamedataRecvAt = now
	r.haveReceivedAny = true

	for i, b := range bundles {
		seq := firstSeq + uint32(i)
		off, inWindow := r.offset(seq)
		if !inWindow {
			continue
		}
		r.slots[off] = Slot{Active: true, Bundle: b}
		lastSeq, lastLatency, ok = seq, b.Latency, true
		if !r.haveStoredAny || seq > r.highestStoredSeq {
			r.haveStoredAny = true
			r.highestStoredSeq = seq
		}
	}
	return
}

// ScanGaps walks backward from the offset of a just-arrived packet's first
// tic to find the contiguous inactive interval directly below it, and
// returns the resend request to emit for that interval (ok=false if the
// packet's offset is out of window or the slot right below it is already
// active, i.e. there is no gap). On success it also stamps
// last_resend_request_time on each slot in the interval, enforcing I6's
// one-request-per-300ms budget via the periodic sweep, not this immediate
// call — this call always fires once right after a store, keyed off that
// store's firstSeq rather than the high end of the whole window.
func (r *Ring) ScanGaps(now time.Time, firstSeq uint32) (ResendRequest, bool) {
	end, inWindow := r.offset(firstSeq)
	if !inWindow || end == 0 {
		return ResendRequest{}, false
	}
	start := end
	for start > 0 && !r.slots[start-1].Active {
		start--
	}
	if start == end {
		return ResendRequest{}, false
	}
	for i := start; i < end; i++ {
		r.slots[i].LastResendRequestTime = now
	}
	return ResendRequest{Start: r.windowStart + uint32(start), Count: uint8(end - start)}, true
}

// Sweep implements the periodic resend re-request policy: scan every slot,
// merge consecutive slots that need a fresh request into one interval per
// run. Slot 0 applies the combined 1s-threshold + "maybe deadlocked" rule;
// every other inactive slot uses the flat 300ms threshold.
func (r *Ring) Sweep(now time.Time) []ResendRequest {
	var out []ResendRequest
	var runStart = -1

	flush := func(end int) {
		if runStart >= 0 {
			out = append(out, ResendRequest{Start: r.windowStart + uint32(runStart), Count: uint8(end - runStart)})
			runStart = -1
		}
	}

	for i := 0; i < Size; i++ {
		needs := r.slotNeedsResend(i, now)
		if needs {
			if runStart < 0 {
				runStart = i
			}
			r.slots[i].LastResendRequestTime = now
		} else {
			flush(i)
		}
	}
	flush(Size)
	return out
}

func (r *Ring) slotNeedsResend(i int, now time.Time) bool {
	s := r.slots[i]
	if s.Active {
		return false
	}
	// A slot that has never been requested and sits above the highest tic
	// ever received isn't a gap at all — it's simply a tic the peer hasn't
	// generated yet. Only flag it once it falls at or below the high-water
	// mark, same as a freshly shifted-in slot would the next time a store
	// extends past it.
	if s.LastResendRequestTime.IsZero() {
		absSeq := r.windowStart + uint32(i)
		if !r.haveStoredAny || absSeq > r.highestStoredSeq {
			return false
		}
	}
	if i == 0 {
		deadlocked := r.haveReceivedAny && now.Sub(r.gamedataRecvAt) > deadlockThreshold
		return deadlocked && now.Sub(s.LastResendRequestTime) > slotZeroResendThreshold
	}
	return now.Sub(s.LastResendRequestTime) > gapResendThreshold
}

// NeedAck reports whether an ack is due: need_ack is set and the ack
// threshold has elapsed since the last GAMEDATA arrival.
func (r *Ring) NeedAck(now time.Time) bool {
	return r.needAck && now.Sub(r.gamedataRecvAt) > ackThreshold
}

// AckSent clears need_ack after the caller has sent a GAMEDATA_ACK.
func (r *Ring) AckSent() { r.needAck = false }

// Advance delivers every contiguously active tic starting at slot 0 to out,
// applying each player's diff against the running per-player base, then
// shifts the ring and advances windowStart by the number delivered.
func (r *Ring) Advance(out func(cmds [ticcmd.MaxPlayers]ticcmd.TicCmd, inGame [ticcmd.MaxPlayers]bool, seq uint32)) int {
	delivered := 0
	for r.slots[0].Active {
		bundle := r.slots[0].Bundle
		var cmds [ticcmd.MaxPlayers]ticcmd.TicCmd
		for p := 0; p < ticcmd.MaxPlayers; p++ {
			if bundle.PlayerInGame[p] {
				r.playerBase[p] = ticcmd.Apply(r.playerBase[p], bundle.Cmds[p])
			}
			cmds[p] = r.playerBase[p]
		}
		out(cmds, bundle.PlayerInGame, r.windowStart)

		copy(r.slots[:Size-1], r.slots[1:])
		r.slots[Size-1] = Slot{}
		r.windowStart++
		delivered++
	}
	return delivered
}

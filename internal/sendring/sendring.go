// Package sendring implements the send ring and ack/resend protocol (C5):
// a 128-slot history of locally generated tics, retransmitted proactively
// and on explicit GAMEDATA_RESEND request.
package sendring

import (
	"time"

	"github.com/rusty-dusty/doomnet-client/internal/ticcmd"
	"github.com/rusty-dusty/doomnet-client/internal/wire"
)

// Size is BACKUPTICS, the fixed send/receive ring length.
const Size = 128

// Slot is one element of the send ring: an active, retransmittable copy of
// a local tic's diff, or an empty slot.
type Slot struct {
	Active   bool
	Seq      uint32
	SendTime time.Time
	Diff     ticcmd.TicDiff
}

// Ring holds the last Size locally generated tics plus the running base
// state used to compute each new diff.
type Ring struct {
	slots       [Size]Slot
	lastLocal   ticcmd.TicCmd
	drone       bool
	lowresTurn  bool
	playerIndex int32
}

// New returns an empty ring. drone disables resend handling (a drone
// produces no local inputs, so a resend request has nothing to answer).
// playerIndex is this connection's consoleplayer slot, stamped into every
// outgoing tic's playeringame bitfield.
func New(drone, lowresTurn bool, playerIndex int32) *Ring {
	return &Ring{drone: drone, lowresTurn: lowresTurn, playerIndex: playerIndex}
}

// Reset clears every slot and the running base state, keeping the drone,
// lowres-turn and player-index settings given to New.
func (r *Ring) Reset() {
	*r = Ring{drone: r.drone, lowresTurn: r.lowresTurn, playerIndex: r.playerIndex}
}

// slotIndex maps an absolute seq to its ring offset.
func slotIndex(seq uint32) int { return int(seq % Size) }

// Store computes the diff between the last local command and cur, records
// it at slot seq%128, and returns the diff (callers append it to the
// redundant tail of the next GAMEDATA).
func (r *Ring) Store(seq uint32, now time.Time, cur ticcmd.TicCmd) ticcmd.TicDiff {
	diff := ticcmd.Compute(r.lastLocal, cur)
	r.lastLocal = cur
	r.slots[slotIndex(seq)] = Slot{Active: true, Seq: seq, SendTime: now, Diff: diff}
	return diff
}

// valid implements invariant I3: a slot is usable only when active and its
// stored seq still matches the requested one (guards stale entries after
// wraparound).
func (r *Ring) valid(seq uint32) bool {
	s := r.slots[slotIndex(seq)]
	return s.Active && s.Seq == seq
}

// Get returns the diff stored for seq and whether it is still valid (I3).
func (r *Ring) Get(seq uint32) (ticcmd.TicDiff, bool) {
	if !r.valid(seq) {
		return ticcmd.TicDiff{}, false
	}
	return r.slots[slotIndex(seq)].Diff, true
}

// SendTime returns the send time recorded for seq, used by the clock-sync
// controller to compute a latency sample; ok is false if the slot is not
// valid per I3.
func (r *Ring) SendTime(seq uint32) (time.Time, bool) {
	if !r.valid(seq) {
		return time.Time{}, false
	}
	return r.slots[slotIndex(seq)].SendTime, true
}

// BuildGameData encodes a GAMEDATA payload covering seqs [firstSeq,
// firstSeq+count), clamped to what the ring actually still holds. ackBase
// is the receive ring's window base to publish; latency is C7's current
// last_latency estimate, bundled with every tic in this payload per spec.
// Each tic's playeringame bitfield carries only this connection's own
// consoleplayer bit, since a client only ever originates its own input.
func (r *Ring) BuildGameData(ackBase uint8, firstSeq uint32, count int, latency int16) []byte {
	w := wire.NewWriter()
	var tics []ticcmd.TicDiff
	var seqs []uint32
	for i := 0; i < count; i++ {
		seq := firstSeq + uint32(i)
		d, ok := r.Get(seq)
		if !ok {
			continue
		}
		tics = append(tics, d)
		seqs = append(seqs, seq)
	}
	if len(tics) == 0 {
		wire.EncodeGameDataHeader(w, ackBase, uint8(firstSeq), 0)
		return w.Bytes()
	}
	wire.EncodeGameDataHeader(w, ackBase, uint8(seqs[0]), uint8(len(tics)))
	playerMask := uint8(1) << uint(r.playerIndex)
	for _, d := range tics {
		w.WriteI16(latency)
		w.WriteU8(playerMask)
		ticcmd.Encode(w, d, r.lowresTurn)
	}
	return w.Bytes()
}

// HandleResendInterval implements GAMEDATA_RESEND handling: shrink the
// requested [start, start+count) interval by dropping leading/trailing
// slots that fail I3, and return the resulting non-empty bounds (ok=false
// if nothing in the interval is still valid — the data aged out).
//
// A drone ignores resend requests entirely: it produces no local inputs,
// so there is nothing to retransmit.
func (r *Ring) HandleResendInterval(start uint32, count uint8) (firstSeq uint32, n int, ok bool) {
	if r.drone || count == 0 {
		return 0, 0, false
	}
	lo, hi := start, start+uint32(count)-1
	for lo <= hi && !r.valid(lo) {
		lo++
	}
	if lo > hi {
		return 0, 0, false
	}
	for hi > lo && !r.valid(hi) {
		hi--
	}
	return lo, int(hi-lo) + 1, true
}

// Package ticcmd implements the per-tic input command and its delta
// compression against a per-player running base state.
package ticcmd

import "github.com/rusty-dusty/doomnet-client/internal/wire"

// TicCmd is one player's input for one simulation tic.
type TicCmd struct {
	Forward     int8
	Side        int8
	AngleTurn   int16
	Chatchar    uint8
	Buttons     uint8
	Consistancy uint8
	Buttons2    uint8
	Inventory   int32
	Lookfly     uint8
	Arti        uint8
}

// Diff bitmask values; a set bit makes the corresponding field(s)
// authoritative in a TicDiff, per Compute/Apply below.
const (
	BitForward Diff = 1 << iota
	BitSide
	BitTurn
	BitButtons
	BitConsistancy
	BitChatchar
	BitRaven  // lookfly + arti
	BitStrife // buttons2 + inventory
)

// Diff is the eight-bit presence mask carried alongside a TicCmd payload.
type Diff uint8

// BTSpecial is the button-byte bit reserved for menu/system actions (save,
// load, pause, etc.) rather than in-simulation input.
const BTSpecial uint8 = 0x80

// Squash clears the fields that must fire at most once per server tic even
// when ticdup re-runs the same command across several simulation sub-tics:
// the chat character and any BT_SPECIAL button press.
func (c TicCmd) Squash() TicCmd {
	c.Chatchar = 0
	if c.Buttons&BTSpecial != 0 {
		c.Buttons = 0
	}
	return c
}

// TicDiff pairs a presence mask with the field values it covers. Fields not
// named by the mask are not meaningful except CHATCHAR/RAVEN/STRIFE, which
// are edge-triggered and forced to zero when their bit is clear.
type TicDiff struct {
	Mask Diff
	Cmd  TicCmd
}

// Compute builds the diff that carries cur relative to prev. FORWARD, SIDE,
// TURN, BUTTONS and CONSISTANCY bits are set on plain inequality. CHATCHAR,
// RAVEN and STRIFE are edge-triggered: CHATCHAR fires whenever cur's chat
// character is non-zero, regardless of what prev held; RAVEN fires when
// Lookfly changed or cur's Arti is non-zero, and STRIFE when Buttons2
// changed or cur's Inventory is non-zero. The output fields for an unset
// bit are forced to zero so a diff round-trips cleanly even when the base
// is unknown to the caller.
func Compute(prev, cur TicCmd) TicDiff {
	var d TicDiff
	d.Cmd = cur

	if cur.Forward != prev.Forward {
		d.Mask |= BitForward
	} else {
		d.Cmd.Forward = 0
	}
	if cur.Side != prev.Side {
		d.Mask |= BitSide
	} else {
		d.Cmd.Side = 0
	}
	if cur.AngleTurn != prev.AngleTurn {
		d.Mask |= BitTurn
	} else {
		d.Cmd.AngleTurn = 0
	}
	if cur.Buttons != prev.Buttons {
		d.Mask |= BitButtons
	} else {
		d.Cmd.Buttons = 0
	}
	if cur.Consistancy != prev.Consistancy {
		d.Mask |= BitConsistancy
	} else {
		d.Cmd.Consistancy = 0
	}

	if cur.Chatchar != 0 {
		d.Mask |= BitChatchar
	} else {
		d.Cmd.Chatchar = 0
	}

	if cur.Lookfly != prev.Lookfly || cur.Arti != 0 {
		d.Mask |= BitRaven
	} else {
		d.Cmd.Lookfly = 0
		d.Cmd.Arti = 0
	}

	if cur.Buttons2 != prev.Buttons2 || cur.Inventory != 0 {
		d.Mask |= BitStrife
	} else {
		d.Cmd.Buttons2 = 0
		d.Cmd.Inventory = 0
	}

	return d
}

// Apply reconstructs the new TicCmd from base and diff. CHATCHAR is cleared
// whenever its bit is unset. RAVEN and STRIFE are only partly edge-triggered:
// an unset bit clears ARTI/INVENTORY (the one-shot item triggers) but leaves
// LOOKFLY/BUTTONS2 carried over from base, since those hold persistent
// toggle state rather than a fired event.
func Apply(base TicCmd, d TicDiff) TicCmd {
	out := base

	if d.Mask&BitForward != 0 {
		out.Forward = d.Cmd.Forward
	}
	if d.Mask&BitSide != 0 {
		out.Side = d.Cmd.Side
	}
	if d.Mask&BitTurn != 0 {
		out.AngleTurn = d.Cmd.AngleTurn
	}
	if d.Mask&BitButtons != 0 {
		out.Buttons = d.Cmd.Buttons
	}
	if d.Mask&BitConsistancy != 0 {
		out.Consistancy = d.Cmd.Consistancy
	}

	if d.Mask&BitChatchar != 0 {
		out.Chatchar = d.Cmd.Chatchar
	} else {
		out.Chatchar = 0
	}

	if d.Mask&BitRaven != 0 {
		out.Lookfly = d.Cmd.Lookfly
		out.Arti = d.Cmd.Arti
	} else {
		out.Arti = 0
	}

	if d.Mask&BitStrife != 0 {
		out.Buttons2 = d.Cmd.Buttons2
		out.Inventory = d.Cmd.Inventory
	} else {
		out.Inventory = 0
	}

	return out
}

// Canonicalize zeros the fields that Compute/Apply always force to zero
// when their edge-triggered bit is unset, so property tests can compare a
// round-tripped command against ground truth without re-deriving the mask.
func Canonicalize(cur TicCmd, mask Diff) TicCmd {
	out := cur
	if mask&BitChatchar == 0 {
		out.Chatchar = 0
	}
	if mask&BitRaven == 0 {
		out.Arti = 0
	}
	if mask&BitStrife == 0 {
		out.Inventory = 0
	}
	return out
}

// Encode writes a TicDiff in wire order: mask, then present fields
// FORWARD→STRIFE. TURN is one byte (scaled by 256 on read) when lowresTurn
// is set, otherwise two bytes.
func Encode(w *wire.Writer, d TicDiff, lowresTurn bool) {
	w.WriteU8(uint8(d.Mask))
	if d.Mask&BitForward != 0 {
		w.WriteI8(d.Cmd.Forward)
	}
	if d.Mask&BitSide != 0 {
		w.WriteI8(d.Cmd.Side)
	}
	if d.Mask&BitTurn != 0 {
		if lowresTurn {
			w.WriteI8(int8(d.Cmd.AngleTurn / 256))
		} else {
			w.WriteI16(d.Cmd.AngleTurn)
		}
	}
	if d.Mask&BitButtons != 0 {
		w.WriteU8(d.Cmd.Buttons)
	}
	if d.Mask&BitConsistancy != 0 {
		w.WriteU8(d.Cmd.Consistancy)
	}
	if d.Mask&BitChatchar != 0 {
		w.WriteU8(d.Cmd.Chatchar)
	}
	if d.Mask&BitRaven != 0 {
		w.WriteU8(d.Cmd.Lookfly)
		w.WriteU8(d.Cmd.Arti)
	}
	if d.Mask&BitStrife != 0 {
		w.WriteU8(d.Cmd.Buttons2)
		w.WriteI16(int16(d.Cmd.Inventory))
	}
}

// Decode reads a TicDiff written by Encode.
func Decode(r *wire.Reader, lowresTurn bool) (TicDiff, bool) {
	var d TicDiff
	m, ok := r.ReadU8()
	if !ok {
		return d, false
	}
	d.Mask = Diff(m)

	if d.Mask&BitForward != 0 {
		if d.Cmd.Forward, ok = r.ReadI8(); !ok {
			return d, false
		}
	}
	if d.Mask&BitSide != 0 {
		if d.Cmd.Side, ok = r.ReadI8(); !ok {
			return d, false
		}
	}
	if d.Mask&BitTurn != 0 {
		if lowresTurn {
			v, ok2 := r.ReadI8()
			if !ok2 {
				return d, false
			}
			d.Cmd.AngleTurn = int16(v) * 256
		} else {
			if d.Cmd.AngleTurn, ok = r.ReadI16(); !ok {
				return d, false
			}
		}
	}
	if d.Mask&BitButtons != 0 {
		if d.Cmd.Buttons, ok = r.ReadU8(); !ok {
			return d, false
		}
	}
	if d.Mask&BitConsistancy != 0 {
		if d.Cmd.Consistancy, ok = r.ReadU8(); !ok {
			return d, false
		}
	}
	if d.Mask&BitChatchar != 0 {
		if d.Cmd.Chatchar, ok = r.ReadU8(); !ok {
			return d, false
		}
	}
	if d.Mask&BitRaven != 0 {
		if d.Cmd.Lookfly, ok = r.ReadU8(); !ok {
			return d, false
		}
		if d.Cmd.Arti, ok = r.ReadU8(); !ok {
			return d, false
		}
	}
	if d.Mask&BitStrife != 0 {
		if d.Cmd.Buttons2, ok = r.ReadU8(); !ok {
			return d, false
		}
		inv, ok2 := r.ReadI16()
		if !ok2 {
			return d, false
		}
		d.Cmd.Inventory = int32(inv)
	}
	return d, true
}

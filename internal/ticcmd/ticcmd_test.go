package ticcmd

import (
	"testing"

	"github.com/rusty-dusty/doomnet-client/internal/wire"
)

func TestComputeApplyRoundTrip(t *testing.T) {
	base := TicCmd{Forward: 10, Side: 0, AngleTurn: 100, Buttons: 0}
	cur := TicCmd{Forward: 10, Side: 5, AngleTurn: 100, Buttons: 2, Chatchar: 'a'}

	d := Compute(base, cur)
	wantMask := BitSide | BitButtons | BitChatchar
	if d.Mask != wantMask {
		t.Fatalf("mask = %08b, want %08b", d.Mask, wantMask)
	}

	applied := Apply(base, d)
	want := Canonicalize(cur, d.Mask)
	if applied != want {
		t.Fatalf("Apply(base, Compute(base,cur)) = %+v, want %+v", applied, want)
	}

	// Next tic clears chatchar; its absence must also reconstruct as zero.
	next := applied
	next.Chatchar = 0
	d2 := Compute(applied, next)
	if d2.Mask&BitChatchar != 0 {
		t.Fatalf("expected CHATCHAR bit clear when chatchar is zero, mask=%08b", d2.Mask)
	}
	applied2 := Apply(applied, d2)
	if applied2.Chatchar != 0 {
		t.Fatalf("expected chatchar reconstructed as 0, got %v", applied2.Chatchar)
	}
}

func TestApplyComputeInverseProperty(t *testing.T) {
	bases := []TicCmd{
		{},
		{Forward: 1, Side: -1, AngleTurn: 30000, Buttons: 0xff},
		{Chatchar: 'x', Lookfly: 3, Arti: 1, Buttons2: 2, Inventory: 5},
	}
	curs := []TicCmd{
		{Forward: 127, Side: -128, AngleTurn: -1},
		{Chatchar: 0, Lookfly: 3, Arti: 0, Buttons2: 0, Inventory: 0},
		{Consistancy: 9, Buttons2: 4, Inventory: -7},
	}
	for _, base := range bases {
		for _, cur := range curs {
			d := Compute(base, cur)
			got := Apply(base, d)
			want := Canonicalize(cur, d.Mask)
			if got != want {
				t.Fatalf("Apply(Compute) mismatch\nbase=%+v\ncur=%+v\nmask=%08b\ngot=%+v\nwant=%+v",
					base, cur, d.Mask, got, want)
			}
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name       string
		d          TicDiff
		lowresTurn bool
	}{
		{"empty", TicDiff{}, false},
		{"all-fields-hires", TicDiff{
			Mask: BitForward | BitSide | BitTurn | BitButtons | BitConsistancy | BitChatchar | BitRaven | BitStrife,
			Cmd:  TicCmd{Forward: -5, Side: 5, AngleTurn: 12345, Buttons: 1, Consistancy: 2, Chatchar: 'z', Lookfly: 3, Arti: 4, Buttons2: 5, Inventory: -100},
		}, false},
		{"turn-lowres", TicDiff{
			Mask: BitTurn,
			Cmd:  TicCmd{AngleTurn: 256 * 40},
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := wire.NewWriter()
			Encode(w, tc.d, tc.lowresTurn)
			r := wire.NewReader(w.Bytes())
			got, ok := Decode(r, tc.lowresTurn)
			if !ok {
				t.Fatalf("Decode failed")
			}
			if got.Mask != tc.d.Mask {
				t.Fatalf("mask mismatch: got %08b want %08b", got.Mask, tc.d.Mask)
			}
			if tc.lowresTurn {
				// lowres quantizes to multiples of 256; compare post-quantization.
				wantTurn := int16(tc.d.Cmd.AngleTurn/256) * 256
				if got.Cmd.AngleTurn != wantTurn {
					t.Fatalf("AngleTurn = %d, want %d", got.Cmd.AngleTurn, wantTurn)
				}
			} else if got.Cmd != tc.d.Cmd {
				t.Fatalf("cmd mismatch: got %+v want %+v", got.Cmd, tc.d.Cmd)
			}
		})
	}
}

package wire

import "testing"

func TestReaderPrimitivesRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU8(0xAB)
	w.WriteI8(-5)
	w.WriteU16(0xBEEF)
	w.WriteI16(-1234)
	w.WriteU32(0xDEADBEEF)
	w.WriteI32(-987654)
	w.WriteString("hello")
	var sha [Sha1Size]byte
	for i := range sha {
		sha[i] = byte(i)
	}
	w.WriteSHA1(sha)

	r := NewReader(w.Bytes())
	if v, ok := r.ReadU8(); !ok || v != 0xAB {
		t.Fatalf("ReadU8 = %v, %v", v, ok)
	}
	if v, ok := r.ReadI8(); !ok || v != -5 {
		t.Fatalf("ReadI8 = %v, %v", v, ok)
	}
	if v, ok := r.ReadU16(); !ok || v != 0xBEEF {
		t.Fatalf("ReadU16 = %v, %v", v, ok)
	}
	if v, ok := r.ReadI16(); !ok || v != -1234 {
		t.Fatalf("ReadI16 = %v, %v", v, ok)
	}
	if v, ok := r.ReadU32(); !ok || v != 0xDEADBEEF {
		t.Fatalf("ReadU32 = %v, %v", v, ok)
	}
	if v, ok := r.ReadI32(); !ok || v != -987654 {
		t.Fatalf("ReadI32 = %v, %v", v, ok)
	}
	if s, ok := r.ReadString(); !ok || s != "hello" {
		t.Fatalf("ReadString = %q, %v", s, ok)
	}
	if got, ok := r.ReadSHA1(); !ok || got != sha {
		t.Fatalf("ReadSHA1 = %v, %v", got, ok)
	}
	if r.Len() != 0 {
		t.Fatalf("expected buffer exhausted, %d bytes remain", r.Len())
	}
}

func TestReaderShortReadFailsClean(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, ok := r.ReadU32(); ok {
		t.Fatalf("expected short read to fail")
	}
	if _, ok := r.ReadU8(); ok {
		t.Fatalf("expected cursor pinned at end after failure")
	}
}

func TestReadStringFiltersNonPrintable(t *testing.T) {
	buf := []byte{'h', 'i', 0x01, 0x7f, '!', 0}
	r := NewReader(buf)
	s, ok := r.ReadString()
	if !ok {
		t.Fatalf("ReadString failed")
	}
	if s != "hi!" {
		t.Fatalf("ReadString = %q, want %q", s, "hi!")
	}
}

func TestPackUnpackTag(t *testing.T) {
	v := PackTag(TagGameStart, true)
	tag, reliable := UnpackTag(v)
	if tag != TagGameStart || !reliable {
		t.Fatalf("UnpackTag = %v, %v", tag, reliable)
	}
	v2 := PackTag(TagGameData, false)
	tag2, reliable2 := UnpackTag(v2)
	if tag2 != TagGameData || reliable2 {
		t.Fatalf("UnpackTag = %v, %v", tag2, reliable2)
	}
}

func TestSynRoundTrip(t *testing.T) {
	cd := ConnectData{
		GameMode:    2,
		GameMission: 1,
		LowResTurn:  true,
		Drone:       false,
		MaxPlayers:  8,
		IsFreedoom:  false,
		PlayerClass: 0,
	}
	for i := range cd.WADSha1 {
		cd.WADSha1[i] = byte(i)
	}
	buf := EncodeSyn("1.0", []string{"CHOCOLATE_DOOM_0"}, cd, "player1")

	r := NewReader(buf)
	tag, reliable, ok := PeekTag(buf)
	if !ok || tag != TagSyn || reliable {
		t.Fatalf("PeekTag = %v %v %v", tag, reliable, ok)
	}
	if _, ok := r.ReadU16(); !ok {
		t.Fatalf("failed to consume tag")
	}
	version, protocols, data, name, ok := DecodeSyn(r)
	if !ok {
		t.Fatalf("DecodeSyn failed")
	}
	if version != "1.0" || name != "player1" {
		t.Fatalf("version/name mismatch: %q %q", version, name)
	}
	if len(protocols) != 1 || protocols[0] != "CHOCOLATE_DOOM_0" {
		t.Fatalf("protocols mismatch: %v", protocols)
	}
	if data.MaxPlayers != 8 || !data.LowResTurn || data.WADSha1 != cd.WADSha1 {
		t.Fatalf("ConnectData mismatch: %+v", data)
	}
}

func TestGameStartRoundTrip(t *testing.T) {
	s := GameSettings{
		Ticdup:        2,
		Extratics:     1,
		NumPlayers:    4,
		ConsolePlayer: 1,
		TimeLimit:     600,
		NewSync:       true,
	}
	s.PlayerClasses[0] = 1
	buf := EncodeGameStart(7, s)

	r := NewReader(buf)
	r.ReadU16()
	id, got, ok := DecodeGameStart(r)
	if !ok || id != 7 {
		t.Fatalf("DecodeGameStart id = %v, ok=%v", id, ok)
	}
	if got.Ticdup != 2 || got.NumPlayers != 4 || got.TimeLimit != 600 || !got.NewSync {
		t.Fatalf("GameSettings mismatch: %+v", got)
	}
	if got.PlayerClasses[0] != 1 {
		t.Fatalf("PlayerClasses mismatch: %+v", got.PlayerClasses)
	}
}

func TestGameDataResendRoundTrip(t *testing.T) {
	buf := EncodeGameDataResend(126, 4)
	r := NewReader(buf)
	r.ReadU16()
	start, count, ok := DecodeGameDataResend(r)
	if !ok || start != 126 || count != 4 {
		t.Fatalf("DecodeGameDataResend = %v %v %v", start, count, ok)
	}
}

func TestQueryResponseRoundTrip(t *testing.T) {
	q := QueryResponse{
		Version:     "1.10.0",
		ServerState: 1,
		NumPlayers:  2,
		MaxPlayers:  8,
		GameMode:    2,
		GameMission: 1,
		Description: "test server",
	}
	buf := EncodeQueryResponse(q)
	r := NewReader(buf)
	r.ReadU16()
	got, ok := DecodeQueryResponse(r)
	if !ok || got != q {
		t.Fatalf("QueryResponse round trip mismatch: %+v", got)
	}
}

package wire

// Magic is carried in every SYN payload; it is the protocol's handshake
// fingerprint and has no meaning beyond "this is a lockstep client".
const Magic uint32 = 1454104972

// MaxPlayers bounds every fixed-size player array on the wire.
const MaxPlayers = 8

// Tag identifies a message's payload shape. The high bit (ReliableFlag) is
// carried in the same 16-bit field and must be masked off before switching
// on the tag value.
type Tag uint16

const (
	TagSyn            Tag = 0
	TagRejected       Tag = 1
	TagWaitingData    Tag = 2
	TagLaunch         Tag = 3
	TagGameStart      Tag = 4
	TagGameData       Tag = 5
	TagGameDataAck    Tag = 6
	TagGameDataResend Tag = 7
	TagConsoleMessage Tag = 8
	TagReliableAck    Tag = 9
	TagKeepAlive      Tag = 10
	TagDisconnect     Tag = 11
	TagQuery          Tag = 12
	TagQueryResponse  Tag = 13
)

// ReliableFlag marks bit 15 of the 16-bit tag field. Reliable messages
// (LAUNCH, GAMESTART, DISCONNECT) set it to tell the receiver a RELIABLE_ACK
// carrying the payload's retransmission id is expected in reply.
const ReliableFlag uint16 = 0x8000

// PackTag combines a tag with the reliable flag for wire transmission.
func PackTag(t Tag, reliable bool) uint16 {
	v := uint16(t)
	if reliable {
		v |= ReliableFlag
	}
	return v
}

// UnpackTag splits a wire tag field into its message type and reliable flag.
func UnpackTag(v uint16) (Tag, bool) {
	return Tag(v &^ ReliableFlag), v&ReliableFlag != 0
}

// ConnectData is the handshake payload a connecting client asserts about its
// local game install, carried in SYN and validated by the peer before it
// will move a session out of Disconnected.
type ConnectData struct {
	GameMode     int32
	GameMission  int32
	LowResTurn   bool
	Drone        bool
	MaxPlayers   int32
	IsFreedoom   bool
	WADSha1      [Sha1Size]byte
	DehSha1      [Sha1Size]byte
	PlayerClass  int32
}

// GameSettings is the authoritative ruleset broadcast in GAMESTART; a
// session snapshots it verbatim on entry to InGame.
type GameSettings struct {
	Ticdup          int32
	Extratics       int32
	Deathmatch      int32
	Episode         int32
	NoMonsters      bool
	FastMonsters    bool
	RespawnMonsters bool
	Map             int32
	Skill           int32
	GameVersion     int32
	LowResTurn      bool
	NewSync         bool
	TimeLimit       uint32
	LoadGame        int32
	Random          int32
	NumPlayers      int32
	ConsolePlayer   int32
	PlayerClasses   [MaxPlayers]int32
}

// WaitingData reports lobby status while a session sits in WaitingLaunch or
// WaitingStart.
type WaitingData struct {
	NumPlayers    int32
	NumDrones     int32
	ReadyPlayers  int32
	MaxPlayers    int32
	IsController  bool
	ConsolePlayer int32
	PlayerNames   [MaxPlayers]string
	PlayerAddrs   [MaxPlayers]string
	WADSha1       [Sha1Size]byte
	DehSha1       [Sha1Size]byte
	IsFreedoom    bool
}

// QueryResponse describes a server for the LAN browser (§ discovery).
type QueryResponse struct {
	Version     string
	ServerState int32
	NumPlayers  int32
	MaxPlayers  int32
	GameMode    int32
	GameMission int32
	Description string
}

func boolToI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func i32ToBool(v int32) bool { return v != 0 }

// EncodeSyn writes a SYN payload: magic, client version, the list of
// protocol names this client supports, ConnectData and the player's name.
func EncodeSyn(version string, protocols []string, data ConnectData, playerName string) []byte {
	w := NewWriter()
	w.WriteU16(PackTag(TagSyn, false))
	w.WriteU32(Magic)
	w.WriteString(version)
	w.WriteU8(uint8(len(protocols)))
	for _, p := range protocols {
		w.WriteString(p)
	}
	writeConnectData(w, data)
	w.WriteString(playerName)
	return w.Bytes()
}

// DecodeSyn parses a SYN payload. The tag is assumed already consumed by the
// caller (a ReadU16 on r).
func DecodeSyn(r *Reader) (version string, protocols []string, data ConnectData, playerName string, ok bool) {
	magic, ok := r.ReadU32()
	if !ok || magic != Magic {
		return "", nil, ConnectData{}, "", false
	}
	if version, ok = r.ReadString(); !ok {
		return
	}
	n, ok2 := r.ReadU8()
	if !ok2 {
		ok = false
		return
	}
	protocols = make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		p, ok3 := r.ReadString()
		if !ok3 {
			ok = false
			return
		}
		protocols = append(protocols, p)
	}
	if data, ok = readConnectData(r); !ok {
		return
	}
	playerName, ok = r.ReadString()
	return
}

func writeConnectData(w *Writer, d ConnectData) {
	w.WriteI32(d.GameMode)
	w.WriteI32(d.GameMission)
	w.WriteI32(boolToI32(d.LowResTurn))
	w.WriteI32(boolToI32(d.Drone))
	w.WriteI32(d.MaxPlayers)
	w.WriteI32(boolToI32(d.IsFreedoom))
	w.WriteSHA1(d.WADSha1)
	w.WriteSHA1(d.DehSha1)
	w.WriteI32(d.PlayerClass)
}

func readConnectData(r *Reader) (ConnectData, bool) {
	var d ConnectData
	var v int32
	var ok bool
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.GameMode = v
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.GameMission = v
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.LowResTurn = i32ToBool(v)
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.Drone = i32ToBool(v)
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.MaxPlayers = v
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.IsFreedoom = i32ToBool(v)
	if d.WADSha1, ok = r.ReadSHA1(); !ok {
		return d, false
	}
	if d.DehSha1, ok = r.ReadSHA1(); !ok {
		return d, false
	}
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.PlayerClass = v
	return d, true
}

// EncodeRejected writes a REJECTED payload carrying a human-readable reason.
func EncodeRejected(reason string) []byte {
	w := NewWriter()
	w.WriteU16(PackTag(TagRejected, false))
	w.WriteString(reason)
	return w.Bytes()
}

func DecodeRejected(r *Reader) (reason string, ok bool) {
	return r.ReadString()
}

// EncodeWaitingData writes a WAITING_DATA lobby-status payload.
func EncodeWaitingData(d WaitingData) []byte {
	w := NewWriter()
	w.WriteU16(PackTag(TagWaitingData, false))
	w.WriteI32(d.NumPlayers)
	w.WriteI32(d.NumDrones)
	w.WriteI32(d.ReadyPlayers)
	w.WriteI32(d.MaxPlayers)
	w.WriteI32(boolToI32(d.IsController))
	w.WriteI32(d.ConsolePlayer)
	for i := 0; i < MaxPlayers; i++ {
		w.WriteString(d.PlayerNames[i])
	}
	for i := 0; i < MaxPlayers; i++ {
		w.WriteString(d.PlayerAddrs[i])
	}
	w.WriteSHA1(d.WADSha1)
	w.WriteSHA1(d.DehSha1)
	w.WriteI32(boolToI32(d.IsFreedoom))
	return w.Bytes()
}

func DecodeWaitingData(r *Reader) (WaitingData, bool) {
	var d WaitingData
	var v int32
	var ok bool
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.NumPlayers = v
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.NumDrones = v
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.ReadyPlayers = v
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.MaxPlayers = v
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.IsController = i32ToBool(v)
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.ConsolePlayer = v
	for i := 0; i < MaxPlayers; i++ {
		if d.PlayerNames[i], ok = r.ReadString(); !ok {
			return d, false
		}
	}
	for i := 0; i < MaxPlayers; i++ {
		if d.PlayerAddrs[i], ok = r.ReadString(); !ok {
			return d, false
		}
	}
	if d.WADSha1, ok = r.ReadSHA1(); !ok {
		return d, false
	}
	if d.DehSha1, ok = r.ReadSHA1(); !ok {
		return d, false
	}
	if v, ok = r.ReadI32(); !ok {
		return d, false
	}
	d.IsFreedoom = i32ToBool(v)
	return d, true
}

// EncodeLaunch writes a reliable LAUNCH message carrying only the number of
// players and its retransmission id.
func EncodeLaunch(reliableID uint8, numPlayers uint8) []byte {
	w := NewWriter()
	w.WriteU16(PackTag(TagLaunch, true))
	w.WriteU8(reliableID)
	w.WriteU8(numPlayers)
	return w.Bytes()
}

func DecodeLaunch(r *Reader) (reliableID uint8, numPlayers uint8, ok bool) {
	if reliableID, ok = r.ReadU8(); !ok {
		return
	}
	numPlayers, ok = r.ReadU8()
	return
}

// EncodeGameStart writes a reliable GAMESTART message carrying the full
// ruleset.
func EncodeGameStart(reliableID uint8, s GameSettings) []byte {
	w := NewWriter()
	w.WriteU16(PackTag(TagGameStart, true))
	w.WriteU8(reliableID)
	writeGameSettings(w, s)
	return w.Bytes()
}

func DecodeGameStart(r *Reader) (reliableID uint8, s GameSettings, ok bool) {
	if reliableID, ok = r.ReadU8(); !ok {
		return
	}
	s, ok = readGameSettings(r)
	return
}

func writeGameSettings(w *Writer, s GameSettings) {
	w.WriteI32(s.Ticdup)
	w.WriteI32(s.Extratics)
	w.WriteI32(s.Deathmatch)
	w.WriteI32(s.Episode)
	w.WriteI32(boolToI32(s.NoMonsters))
	w.WriteI32(boolToI32(s.FastMonsters))
	w.WriteI32(boolToI32(s.RespawnMonsters))
	w.WriteI32(s.Map)
	w.WriteI32(s.Skill)
	w.WriteI32(s.GameVersion)
	w.WriteI32(boolToI32(s.LowResTurn))
	w.WriteI32(boolToI32(s.NewSync))
	w.WriteU32(s.TimeLimit)
	w.WriteI32(s.LoadGame)
	w.WriteI32(s.Random)
	w.WriteI32(s.NumPlayers)
	w.WriteI32(s.ConsolePlayer)
	for _, pc := range s.PlayerClasses {
		w.WriteI32(pc)
	}
}

func readGameSettings(r *Reader) (GameSettings, bool) {
	var s GameSettings
	var v int32
	var u uint32
	var ok bool
	read := func(dst *int32) bool {
		v, ok = r.ReadI32()
		*dst = v
		return ok
	}
	if !read(&s.Ticdup) {
		return s, false
	}
	if !read(&s.Extratics) {
		return s, false
	}
	if !read(&s.Deathmatch) {
		return s, false
	}
	if !read(&s.Episode) {
		return s, false
	}
	var b int32
	if !read(&b) {
		return s, false
	}
	s.NoMonsters = i32ToBool(b)
	if !read(&b) {
		return s, false
	}
	s.FastMonsters = i32ToBool(b)
	if !read(&b) {
		return s, false
	}
	s.RespawnMonsters = i32ToBool(b)
	if !read(&s.Map) {
		return s, false
	}
	if !read(&s.Skill) {
		return s, false
	}
	if !read(&s.GameVersion) {
		return s, false
	}
	if !read(&b) {
		return s, false
	}
	s.LowResTurn = i32ToBool(b)
	if !read(&b) {
		return s, false
	}
	s.NewSync = i32ToBool(b)
	if u, ok = r.ReadU32(); !ok {
		return s, false
	}
	s.TimeLimit = u
	if !read(&s.LoadGame) {
		return s, false
	}
	if !read(&s.Random) {
		return s, false
	}
	if !read(&s.NumPlayers) {
		return s, false
	}
	if !read(&s.ConsolePlayer) {
		return s, false
	}
	for i := range s.PlayerClasses {
		if !read(&s.PlayerClasses[i]) {
			return s, false
		}
	}
	return s, true
}

// EncodeGameDataHeader writes the fixed portion of a GAMEDATA message; the
// caller appends per-tic {latency, tic-diff bytes} with a *Writer it keeps.
func EncodeGameDataHeader(w *Writer, ackBase uint8, firstSeq uint8, count uint8) {
	w.WriteU16(PackTag(TagGameData, false))
	w.WriteU8(ackBase)
	w.WriteU8(firstSeq)
	w.WriteU8(count)
}

func DecodeGameDataHeader(r *Reader) (ackBase, firstSeq, count uint8, ok bool) {
	if ackBase, ok = r.ReadU8(); !ok {
		return
	}
	if firstSeq, ok = r.ReadU8(); !ok {
		return
	}
	count, ok = r.ReadU8()
	return
}

// EncodeGameDataAck writes a GAMEDATA_ACK message.
func EncodeGameDataAck(ackBase uint8) []byte {
	w := NewWriter()
	w.WriteU16(PackTag(TagGameDataAck, false))
	w.WriteU8(ackBase)
	return w.Bytes()
}

func DecodeGameDataAck(r *Reader) (ackBase uint8, ok bool) {
	return r.ReadU8()
}

// EncodeGameDataResend writes a GAMEDATA_RESEND request for the half-open
// interval [start, start+count).
func EncodeGameDataResend(start int32, count uint8) []byte {
	w := NewWriter()
	w.WriteU16(PackTag(TagGameDataResend, false))
	w.WriteI32(start)
	w.WriteU8(count)
	return w.Bytes()
}

func DecodeGameDataResend(r *Reader) (start int32, count uint8, ok bool) {
	if start, ok = r.ReadI32(); !ok {
		return
	}
	count, ok = r.ReadU8()
	return
}

// EncodeConsoleMessage writes a CONSOLE_MESSAGE passthrough string.
func EncodeConsoleMessage(text string) []byte {
	w := NewWriter()
	w.WriteU16(PackTag(TagConsoleMessage, false))
	w.WriteString(text)
	return w.Bytes()
}

func DecodeConsoleMessage(r *Reader) (string, bool) {
	return r.ReadString()
}

// EncodeReliableAck acknowledges a reliable message by its id.
func EncodeReliableAck(id uint8) []byte {
	w := NewWriter()
	w.WriteU16(PackTag(TagReliableAck, false))
	w.WriteU8(id)
	return w.Bytes()
}

func DecodeReliableAck(r *Reader) (id uint8, ok bool) {
	return r.ReadU8()
}

// EncodeKeepAlive writes an empty liveness message.
func EncodeKeepAlive() []byte {
	w := NewWriter()
	w.WriteU16(PackTag(TagKeepAlive, false))
	return w.Bytes()
}

// EncodeDisconnect writes a reliable DISCONNECT message; its ack travels
// back as RELIABLE_ACK with the same id.
func EncodeDisconnect(reliableID uint8) []byte {
	w := NewWriter()
	w.WriteU16(PackTag(TagDisconnect, true))
	w.WriteU8(reliableID)
	return w.Bytes()
}

func DecodeDisconnect(r *Reader) (reliableID uint8, ok bool) {
	return r.ReadU8()
}

// EncodeQuery writes a server-discovery probe; it carries no payload beyond
// the tag, mirroring a ping.
func EncodeQuery() []byte {
	w := NewWriter()
	w.WriteU16(PackTag(TagQuery, false))
	return w.Bytes()
}

// EncodeQueryResponse writes a server description in reply to QUERY.
func EncodeQueryResponse(q QueryResponse) []byte {
	w := NewWriter()
	w.WriteU16(PackTag(TagQueryResponse, false))
	w.WriteString(q.Version)
	w.WriteI32(q.ServerState)
	w.WriteI32(q.NumPlayers)
	w.WriteI32(q.MaxPlayers)
	w.WriteI32(q.GameMode)
	w.WriteI32(q.GameMission)
	w.WriteString(q.Description)
	return w.Bytes()
}

func DecodeQueryResponse(r *Reader) (QueryResponse, bool) {
	var q QueryResponse
	var ok bool
	if q.Version, ok = r.ReadString(); !ok {
		return q, false
	}
	if q.ServerState, ok = r.ReadI32(); !ok {
		return q, false
	}
	if q.NumPlayers, ok = r.ReadI32(); !ok {
		return q, false
	}
	if q.MaxPlayers, ok = r.ReadI32(); !ok {
		return q, false
	}
	if q.GameMode, ok = r.ReadI32(); !ok {
		return q, false
	}
	if q.GameMission, ok = r.ReadI32(); !ok {
		return q, false
	}
	q.Description, ok = r.ReadString()
	return q, ok
}

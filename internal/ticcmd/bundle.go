package ticcmd

// MaxPlayers bounds every per-tic bundle's player slots.
const MaxPlayers = 8

// FullTicCmd is the server→client unit: one bundle for tic Seq, carrying a
// latency estimate, which player slots were in-game, and one diff per live
// player.
type FullTicCmd struct {
	Latency      int16
	Seq          uint32
	PlayerInGame [MaxPlayers]bool
	Cmds         [MaxPlayers]TicDiff
}

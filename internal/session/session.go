// Package session implements the lockstep session state machine: the
// lobby/in-game lifecycle layered on top of the connection layer, plus
// validation of the settings a server broadcasts at GAMESTART.
package session

import (
	"fmt"

	"github.com/rusty-dusty/doomnet-client/internal/wire"
)

// State is the session's tagged lifecycle state, orthogonal to the
// connection layer's ConnectionState.
type State int

const (
	Disconnected State = iota
	WaitingLaunch
	WaitingStart
	InGame
	DisconnectedSleep
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case WaitingLaunch:
		return "waiting_launch"
	case WaitingStart:
		return "waiting_start"
	case InGame:
		return "in_game"
	case DisconnectedSleep:
		return "disconnected_sleep"
	default:
		return "unknown"
	}
}

// Session tracks lifecycle state and the settings snapshot taken on entry
// to InGame. It holds no transport or ring state; Client in internal/client
// wires those in.
type Session struct {
	state    State
	settings *wire.GameSettings
	drone    bool
}

// New returns a session in Disconnected, the only valid starting state.
func New() *Session {
	return &Session{state: Disconnected}
}

func (s *Session) State() State { return s.state }

// Settings returns the snapshot taken at GAMESTART, or nil before InGame.
func (s *Session) Settings() *wire.GameSettings { return s.settings }

// OnConnected transitions Disconnected → WaitingLaunch once the connection
// layer reports Connected.
func (s *Session) OnConnected(drone bool) error {
	if s.state != Disconnected {
		return fmt.Errorf("session: connected event in state %s: %w", s.state, ErrBadTransition)
	}
	s.drone = drone
	s.state = WaitingLaunch
	return nil
}

// OnLaunch transitions WaitingLaunch → WaitingStart on LAUNCH receipt.
func (s *Session) OnLaunch() error {
	if s.state != WaitingLaunch {
		return fmt.Errorf("session: launch event in state %s: %w", s.state, ErrBadTransition)
	}
	s.state = WaitingStart
	return nil
}

// OnGameStart validates settings and, if valid, transitions WaitingStart →
// InGame, snapshotting settings and asking the caller to reset both rings.
func (s *Session) OnGameStart(settings wire.GameSettings) error {
	if s.state != WaitingStart {
		return fmt.Errorf("session: gamestart event in state %s: %w", s.state, ErrBadTransition)
	}
	if err := ValidateGameSettings(settings, s.drone); err != nil {
		return fmt.Errorf("session: invalid gamestart: %w", err)
	}
	cp := settings
	s.settings = &cp
	s.state = InGame
	return nil
}

// OnDisconnect forces Disconnected from any state, mirroring connection
// layer disconnects propagating into the session.
func (s *Session) OnDisconnect() {
	s.state = Disconnected
	s.settings = nil
}

// OnWaitingData validates a lobby-status payload; it does not change state
// (WAITING_DATA messages only update observable lobby info).
func OnWaitingData(d wire.WaitingData) error {
	if d.NumPlayers > d.MaxPlayers || d.MaxPlayers > wire.MaxPlayers {
		return fmt.Errorf("session: waiting_data num_players=%d max_players=%d: %w", d.NumPlayers, d.MaxPlayers, ErrInvalidLobby)
	}
	if d.ReadyPlayers > d.NumPlayers {
		return fmt.Errorf("session: waiting_data ready_players=%d num_players=%d: %w", d.ReadyPlayers, d.NumPlayers, ErrInvalidLobby)
	}
	if err := checkConsolePlayerPolarity(d.ConsolePlayer, d.IsController); err != nil {
		return err
	}
	return nil
}

// ValidateGameSettings checks GAMESTART's settings against the invariants
// spec.md §4.4 names: player count bound, consoleplayer range, and
// consoleplayer polarity consistent with drone mode (drones carry a
// negative consoleplayer). It also rejects a ticdup outside [1,5], the
// range the loop pacer relies on.
func ValidateGameSettings(s wire.GameSettings, drone bool) error {
	if s.Ticdup < 1 || s.Ticdup > 5 {
		return fmt.Errorf("session: ticdup=%d out of range [1,5]: %w", s.Ticdup, ErrInvalidLobby)
	}
	if s.NumPlayers > wire.MaxPlayers {
		return fmt.Errorf("session: num_players=%d exceeds max %d: %w", s.NumPlayers, wire.MaxPlayers, ErrInvalidLobby)
	}
	if err := checkConsolePlayerPolarity(s.ConsolePlayer, !drone); err != nil {
		return err
	}
	if !drone {
		if s.ConsolePlayer < 0 || s.ConsolePlayer >= s.NumPlayers {
			return fmt.Errorf("session: consoleplayer=%d out of range [0,%d): %w", s.ConsolePlayer, s.NumPlayers, ErrInvalidLobby)
		}
	}
	return nil
}

func checkConsolePlayerPolarity(consolePlayer int32, isController bool) error {
	if isController && consolePlayer < 0 {
		return fmt.Errorf("session: controller with negative consoleplayer=%d: %w", consolePlayer, ErrInvalidLobby)
	}
	if !isController && consolePlayer >= 0 {
		return fmt.Errorf("session: drone with non-negative consoleplayer=%d: %w", consolePlayer, ErrInvalidLobby)
	}
	return nil
}

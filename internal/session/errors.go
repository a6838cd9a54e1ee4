package session

import "errors"

var (
	// ErrBadTransition is returned when an event arrives in a state that
	// does not define a transition for it; the session stays put.
	ErrBadTransition = errors.New("invalid session state transition")
	// ErrInvalidLobby is returned when a WAITING_DATA or GAMESTART payload
	// fails validation; the message is dropped and the session stays put.
	ErrInvalidLobby = errors.New("invalid lobby/settings payload")
)

package session

import "errors"

// State is the lifecycle state of a session.
type State uint8

const (
	StateConnected State = iota
	StateHandshaking
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// canTransition reports whether a session may move from s to next. Any
// state may close.
func (s State) canTransition(next State) bool {
	if next == StateClosed {
		return s != StateClosed
	}
	return next == s+1
}

// Session errors.
var (
	// ErrProtocol is returned when the peer violates the protocol. It ends
	// the session.
	ErrProtocol = errors.New("session: protocol error")

	// ErrState is returned for an operation not allowed in the current state.
	ErrState = errors.New("session: invalid state")
)

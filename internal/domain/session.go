package domain

import (
	"encoding/json"
	"fmt"
)

type SessionState int

const (
	SessionStateIdle SessionState = iota
	SessionStateConnecting
	SessionStateQR
	SessionStateOpen
	SessionStateClosedRetrying
	SessionStateLoggedOut
)

func (s SessionState) String() string {
	switch s {
	case SessionStateIdle:
		return "idle"
	case SessionStateConnecting:
		return "connecting"
	case SessionStateQR:
		return "qr"
	case SessionStateOpen:
		return "open"
	case SessionStateClosedRetrying:
		return "closed-retrying"
	case SessionStateLoggedOut:
		return "logged-out"
	default:
		return "unknown"
	}
}

func (s SessionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Live reports whether a connection attempt owns the session in this state.
func (s SessionState) Live() bool {
	switch s {
	case SessionStateConnecting, SessionStateQR, SessionStateOpen:
		return true
	default:
		return false
	}
}

func NewInvalidTransitionError(from, to SessionState) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

var validTransitions = map[SessionState][]SessionState{
	SessionStateIdle:           {SessionStateConnecting, SessionStateLoggedOut},
	SessionStateConnecting:     {SessionStateQR, SessionStateOpen, SessionStateClosedRetrying, SessionStateLoggedOut, SessionStateIdle},
	SessionStateQR:             {SessionStateQR, SessionStateConnecting, SessionStateOpen, SessionStateClosedRetrying, SessionStateLoggedOut},
	SessionStateOpen:           {SessionStateClosedRetrying, SessionStateLoggedOut},
	SessionStateClosedRetrying: {SessionStateConnecting, SessionStateLoggedOut},
	SessionStateLoggedOut:      {SessionStateConnecting, SessionStateLoggedOut},
}

func CanTransition(from, to SessionState) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// DisconnectReason classifies why the protocol engine dropped a connection.
type DisconnectReason int

const (
	DisconnectUnknown DisconnectReason = iota
	DisconnectNetwork
	DisconnectChallengeTimeout
	DisconnectReplaced
	DisconnectLoggedOut
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectNetwork:
		return "network"
	case DisconnectChallengeTimeout:
		return "qr-timeout"
	case DisconnectReplaced:
		return "stream-replaced"
	case DisconnectLoggedOut:
		return "logged-out"
	default:
		return "unknown"
	}
}

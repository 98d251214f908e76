package session

import "github.com/ricochet1k/wamux/internal/domain"

// State is the part of a record the lifecycle state machine reads and
// writes.
type State struct {
	Status    domain.SessionState
	Challenge string
	Identity  string
}

type EventKind int

const (
	EventStart EventKind = iota
	EventOpenFailed
	EventChallenge
	EventPaired
	EventConnected
	EventDisconnected
	EventLogout
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventOpenFailed:
		return "open-failed"
	case EventChallenge:
		return "challenge"
	case EventPaired:
		return "paired"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventLogout:
		return "logout"
	default:
		return "unknown"
	}
}

// attemptScoped events belong to one connection attempt and are dropped once
// that attempt has been superseded.
func (k EventKind) attemptScoped() bool {
	switch k {
	case EventOpenFailed, EventChallenge, EventPaired, EventConnected, EventDisconnected:
		return true
	default:
		return false
	}
}

// Event drives one lifecycle transition.
type Event struct {
	Kind      EventKind
	Gen       uint64
	Challenge string
	Identity  string
	Reason    domain.DisconnectReason
	// Auto marks restore and retry starts; their open failures are retried
	// instead of settling in idle.
	Auto bool
}

// Effects are the side-effects the supervisor runs after a transition has
// been applied.
type Effects struct {
	PublishStatus     bool
	PublishChallenge  bool
	ScheduleRetry     bool
	RemoveCredentials bool
	ReleaseConn       bool
}

// Transition computes the next state for ev. It has no side-effects; an
// error means the event does not apply in the current state.
func Transition(st State, ev Event) (State, Effects, error) {
	var (
		next State
		eff  = Effects{PublishStatus: true}
	)

	switch ev.Kind {
	case EventStart:
		next = State{Status: domain.SessionStateConnecting}
	case EventOpenFailed:
		eff.ReleaseConn = true
		if ev.Auto {
			next = State{Status: domain.SessionStateClosedRetrying}
			eff.ScheduleRetry = true
		} else {
			next = State{Status: domain.SessionStateIdle}
		}
	case EventChallenge:
		next = State{Status: domain.SessionStateQR, Challenge: ev.Challenge}
		eff.PublishChallenge = true
	case EventPaired:
		next = State{Status: domain.SessionStateConnecting}
		eff.PublishChallenge = true
	case EventConnected:
		next = State{Status: domain.SessionStateOpen, Identity: ev.Identity}
		eff.PublishChallenge = true
	case EventDisconnected:
		eff.PublishChallenge = true
		eff.ReleaseConn = true
		if ev.Reason == domain.DisconnectLoggedOut {
			next = State{Status: domain.SessionStateLoggedOut}
			eff.RemoveCredentials = true
		} else {
			next = State{Status: domain.SessionStateClosedRetrying}
			eff.ScheduleRetry = true
		}
	case EventLogout:
		next = State{Status: domain.SessionStateLoggedOut}
		eff.PublishChallenge = true
		eff.ReleaseConn = true
		eff.RemoveCredentials = true
	default:
		return st, Effects{}, domain.NewInvalidTransitionError(st.Status, st.Status)
	}

	if !domain.CanTransition(st.Status, next.Status) {
		return st, Effects{}, domain.NewInvalidTransitionError(st.Status, next.Status)
	}
	return next, eff, nil
}

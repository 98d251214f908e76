package domain

import "time"

type EventType int

const (
	EventTypeStatusChange EventType = iota
	EventTypeChallenge
	EventTypeMessage
)

func (t EventType) String() string {
	switch t {
	case EventTypeStatusChange:
		return "status_change"
	case EventTypeChallenge:
		return "challenge"
	case EventTypeMessage:
		return "message"
	default:
		return "unknown"
	}
}

type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Data      any
}

type StatusChangeData struct {
	OldState SessionState
	NewState SessionState
	Identity string
	Reason   string
}

// ChallengeData carries the raw pairing payload. An empty Code means the
// challenge was cleared.
type ChallengeData struct {
	Code string
}

type MessageData struct {
	Message CompactMessage
}

func NewStatusChangeEvent(sessionID string, oldState, newState SessionState, identity, reason string) Event {
	return Event{
		Type:      EventTypeStatusChange,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Data: StatusChangeData{
			OldState: oldState,
			NewState: newState,
			Identity: identity,
			Reason:   reason,
		},
	}
}

func NewChallengeEvent(sessionID, code string) Event {
	return Event{
		Type:      EventTypeChallenge,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Data:      ChallengeData{Code: code},
	}
}

func NewMessageEvent(sessionID string, msg CompactMessage) Event {
	return Event{
		Type:      EventTypeMessage,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Data:      MessageData{Message: msg},
	}
}

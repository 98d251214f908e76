package realtime

import (
	"github.com/ricochet1k/wamux/internal/domain"
	realtimeTypes "github.com/ricochet1k/wamux/pkg/realtime"
)

// QRRenderer turns a raw pairing code into an image data URL.
type QRRenderer interface {
	DataURL(code string) (string, error)
}

func UpdateEnvelope(id string, status domain.SessionState, identity string) realtimeTypes.ServerEnvelope {
	update := realtimeTypes.SessionUpdate{ID: id, Status: status.String()}
	if identity != "" {
		update.Me = &identity
	}
	return realtimeTypes.ServerEnvelope{Type: realtimeTypes.ServerMessageTypeUpdate, Payload: update}
}

// QREnvelope renders code. A render failure is reported as a cleared QR,
// the same as no pending code.
func QREnvelope(id, code string, qr QRRenderer) (realtimeTypes.ServerEnvelope, error) {
	payload := realtimeTypes.SessionQR{ID: id}
	var err error
	if code != "" && qr != nil {
		var url string
		if url, err = qr.DataURL(code); err == nil && url != "" {
			payload.DataURL = &url
		}
	}
	return realtimeTypes.ServerEnvelope{Type: realtimeTypes.ServerMessageTypeQR, Payload: payload}, err
}

func MessageEnvelope(id string, m domain.CompactMessage) realtimeTypes.ServerEnvelope {
	return realtimeTypes.ServerEnvelope{
		Type:    realtimeTypes.ServerMessageTypeMessage,
		Payload: realtimeTypes.SessionMessage{ID: id, Message: WireMessage(m)},
	}
}

func WireMessage(m domain.CompactMessage) realtimeTypes.Message {
	return realtimeTypes.Message{
		Key: realtimeTypes.MessageKey{
			RemoteJID:   m.Key.RemoteJID,
			FromMe:      m.Key.FromMe,
			ID:          m.Key.ID,
			Participant: m.Key.Participant,
		},
		MessageTimestamp: m.MessageTimestamp,
		PushName:         m.PushName,
		From:             m.From,
		Text:             m.Text,
	}
}

// EventEnvelope converts a supervisor event to its wire form.
func EventEnvelope(ev domain.Event, qr QRRenderer) (realtimeTypes.ServerEnvelope, bool, error) {
	switch data := ev.Data.(type) {
	case domain.StatusChangeData:
		return UpdateEnvelope(ev.SessionID, data.NewState, data.Identity), true, nil
	case domain.ChallengeData:
		env, err := QREnvelope(ev.SessionID, data.Code, qr)
		return env, true, err
	case domain.MessageData:
		return MessageEnvelope(ev.SessionID, data.Message), true, nil
	default:
		return realtimeTypes.ServerEnvelope{}, false, nil
	}
}

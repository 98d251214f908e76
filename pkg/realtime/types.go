// Package realtime holds the wire types of the /ws publish/subscribe
// channel.
package realtime

type ClientMessageType string

const (
	ClientMessageTypeSubscribe   ClientMessageType = "session:subscribe"
	ClientMessageTypeUnsubscribe ClientMessageType = "session:unsubscribe"
	ClientMessageTypePing        ClientMessageType = "ping"
)

type ServerMessageType string

const (
	ServerMessageTypeUpdate  ServerMessageType = "session:update"
	ServerMessageTypeQR      ServerMessageType = "session:qr"
	ServerMessageTypeMessage ServerMessageType = "session:message"
	ServerMessageTypeError   ServerMessageType = "error"
	ServerMessageTypePong    ServerMessageType = "pong"
)

type ClientEnvelope struct {
	Type ClientMessageType `json:"type"`
	ID   string            `json:"id,omitempty"`
}

type ServerEnvelope struct {
	Type    ServerMessageType `json:"type"`
	Payload any               `json:"payload,omitempty"`
	Message string            `json:"message,omitempty"`
}

// SessionUpdate is the payload of session:update. Me is null until the
// session is open.
type SessionUpdate struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Me     *string `json:"me"`
}

// SessionQR is the payload of session:qr. DataURL is null when no pairing
// code is pending.
type SessionQR struct {
	ID      string  `json:"id"`
	DataURL *string `json:"dataURL"`
}

type SessionMessage struct {
	ID      string  `json:"id"`
	Message Message `json:"message"`
}

type MessageKey struct {
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	ID          string `json:"id"`
	Participant string `json:"participant,omitempty"`
}

type Message struct {
	Key              MessageKey `json:"key"`
	MessageTimestamp int64      `json:"messageTimestamp"`
	PushName         string     `json:"pushName,omitempty"`
	From             string     `json:"from"`
	Text             *string    `json:"text"`
}

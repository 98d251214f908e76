package domain

import "time"

// Content is the closed set of inbound message bodies the supervisor knows
// how to read text from.
type Content interface {
	content()
}

// TextContent is a plain conversation message.
type TextContent struct {
	Text string
}

// ExtendedTextContent is a text message carrying link previews, quotes or
// mentions.
type ExtendedTextContent struct {
	Text string
}

// MediaContent is an image or video, optionally captioned.
type MediaContent struct {
	Kind    string
	Caption string
}

// UnsupportedContent covers every other message shape (stickers, reactions,
// protocol messages, ...).
type UnsupportedContent struct {
	Kind string
}

func (TextContent) content()         {}
func (ExtendedTextContent) content() {}
func (MediaContent) content()        {}
func (UnsupportedContent) content()  {}

// TextOf extracts the readable text of c. Unsupported shapes and empty
// bodies report ok=false.
func TextOf(c Content) (text string, ok bool) {
	switch v := c.(type) {
	case TextContent:
		text = v.Text
	case ExtendedTextContent:
		text = v.Text
	case MediaContent:
		text = v.Caption
	default:
		return "", false
	}
	return text, text != ""
}

// MessageKey identifies a message the same way the WhatsApp Web clients do.
type MessageKey struct {
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	ID          string `json:"id"`
	Participant string `json:"participant,omitempty"`
}

// InboundMessage is what the protocol engine hands the supervisor.
type InboundMessage struct {
	Key       MessageKey
	Timestamp time.Time
	PushName  string
	Sender    string
	Content   Content
}

// CompactMessage is the projection kept in the message log and fanned out to
// subscribers.
type CompactMessage struct {
	Key              MessageKey `json:"key"`
	MessageTimestamp int64      `json:"messageTimestamp"`
	PushName         string     `json:"pushName,omitempty"`
	From             string     `json:"from"`
	Text             *string    `json:"text"`
}

// Compact projects an inbound message to its log/fan-out form.
func Compact(m InboundMessage) CompactMessage {
	cm := CompactMessage{
		Key:      m.Key,
		PushName: m.PushName,
		From:     m.Key.RemoteJID,
	}
	if !m.Timestamp.IsZero() {
		cm.MessageTimestamp = m.Timestamp.Unix()
	}
	if text, ok := TextOf(m.Content); ok {
		cm.Text = &text
	}
	return cm
}

// TextValue returns the text or "" when absent.
func (m CompactMessage) TextValue() string {
	if m.Text == nil {
		return ""
	}
	return *m.Text
}

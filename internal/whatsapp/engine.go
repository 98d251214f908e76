// Package whatsapp is the boundary to the WhatsApp Web protocol engine. The
// supervisor only sees Engine, Conn and EventSink; the whatsmeow adapter in
// this package is the production implementation.
package whatsapp

import (
	"context"
	"time"

	"github.com/ricochet1k/wamux/internal/domain"
)

// Engine opens one protocol connection per session, using the credential
// material stored in dir.
type Engine interface {
	Open(ctx context.Context, sessionID, dir string, sink EventSink) (Conn, error)
}

// Conn is a live protocol connection owned by the supervisor.
type Conn interface {
	SendText(ctx context.Context, to, text string) (SendResult, error)
	// Logout unlinks the device from the account.
	Logout(ctx context.Context) error
	// Close drops the connection without unlinking. It is idempotent.
	Close()
}

// EventSink receives the connection's lifecycle and message events. Calls
// arrive on engine goroutines and must not block for long.
type EventSink interface {
	OnChallenge(code string)
	OnPaired()
	OnConnected(identity string)
	OnDisconnected(reason domain.DisconnectReason)
	OnMessages(msgs []domain.InboundMessage)
}

// SendResult is the engine's acknowledgement of an outbound message.
type SendResult struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	ServerID  int       `json:"serverId,omitempty"`
}

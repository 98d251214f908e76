// Package api holds the JSON request and response bodies of the HTTP API.
package api

import (
	"time"

	"github.com/ricochet1k/wamux/pkg/realtime"
)

type SessionStatus string

const (
	SessionStatusIdle           SessionStatus = "idle"
	SessionStatusConnecting     SessionStatus = "connecting"
	SessionStatusQR             SessionStatus = "qr"
	SessionStatusOpen           SessionStatus = "open"
	SessionStatusClosedRetrying SessionStatus = "closed-retrying"
	SessionStatusLoggedOut      SessionStatus = "logged-out"
)

type AIStatus string

const (
	AIStatusActive AIStatus = "active"
	AIStatusPaused AIStatus = "paused"
)

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type StatusResponse struct {
	OK     bool          `json:"ok"`
	ID     string        `json:"id"`
	Status SessionStatus `json:"status"`
}

type MessagesResponse struct {
	OK       bool               `json:"ok"`
	ID       string             `json:"id"`
	Messages []realtime.Message `json:"messages"`
}

type SendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type SendReceipt struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	ServerID  int       `json:"serverId,omitempty"`
}

type SendResponse struct {
	OK       bool        `json:"ok"`
	ID       string      `json:"id"`
	To       string      `json:"to"`
	Response SendReceipt `json:"response"`
}

type Session struct {
	ID        string        `json:"id"`
	Status    SessionStatus `json:"status"`
	Me        *string       `json:"me"`
	QRPending bool          `json:"qrPending"`
	Connected bool          `json:"connected"`
	Messages  int           `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type SessionResponse struct {
	OK      bool    `json:"ok"`
	Session Session `json:"session"`
}

type SessionListResponse struct {
	OK       bool      `json:"ok"`
	Sessions []Session `json:"sessions"`
}

type AIStatusResponse struct {
	Status AIStatus `json:"status"`
}

type CompletionRequest struct {
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

type CompletionResponse struct {
	Reply string `json:"reply"`
}

// Package autoreply turns inbound WhatsApp text into a reply using a
// language model. Policies are plain request/response calls; the Switch and
// Guard add the global pause flag and failure isolation on top.
package autoreply

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// DefaultSystemPrompt is used when a request carries no context.
const DefaultSystemPrompt = "You are a helpful assistant answering WhatsApp messages. Reply briefly, in the language of the message."

var (
	ErrEmptyMessage = errors.New("message is required")
	ErrEmptyReply   = errors.New("model returned an empty reply")
	ErrCoolingDown  = errors.New("auto-reply is cooling down after repeated failures")
)

// Request is one completion request.
type Request struct {
	Message string
	// Context is the system instruction; DefaultSystemPrompt when empty.
	Context string
}

func (r Request) systemPrompt() string {
	if strings.TrimSpace(r.Context) == "" {
		return DefaultSystemPrompt
	}
	return r.Context
}

// Policy produces a reply for an inbound message.
type Policy interface {
	Reply(ctx context.Context, req Request) (string, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, req Request) (string, error)

func (f PolicyFunc) Reply(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func finishReply(reply string) (string, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

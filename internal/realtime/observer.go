package realtime

import (
	"sync"
	"time"

	realtimeTypes "github.com/ricochet1k/wamux/pkg/realtime"
)

const (
	observerQueueSize = 64
	writeWait         = 10 * time.Second
)

// FrameWriter is the part of *websocket.Conn an observer writes through.
type FrameWriter interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Observer is one subscriber connection. Envelopes are queued by Deliver and
// written by Pump, the only goroutine that touches the connection.
type Observer struct {
	id    string
	conn  FrameWriter
	queue chan realtimeTypes.ServerEnvelope

	mu     sync.RWMutex
	closed bool
}

func NewObserver(id string, conn FrameWriter) *Observer {
	return &Observer{
		id:    id,
		conn:  conn,
		queue: make(chan realtimeTypes.ServerEnvelope, observerQueueSize),
	}
}

func (o *Observer) ID() string { return o.id }

// Deliver queues env without blocking. It reports false when the queue is
// full or the observer is closed.
func (o *Observer) Deliver(env realtimeTypes.ServerEnvelope) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return false
	}
	select {
	case o.queue <- env:
		return true
	default:
		return false
	}
}

// Pump writes queued envelopes until the observer is closed or a write
// fails.
func (o *Observer) Pump() {
	for env := range o.queue {
		if err := o.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := o.conn.WriteJSON(env); err != nil {
			return
		}
	}
}

// Close stops Pump and closes the connection. Safe to call repeatedly.
func (o *Observer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	_ = o.conn.Close()
}

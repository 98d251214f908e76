package session

import "github.com/ricochet1k/wamux/internal/domain"

// DefaultMessageLogCapacity is how many inbound messages each session keeps
// for replay.
const DefaultMessageLogCapacity = 50

// MessageLog is a fixed-capacity FIFO ring of compact messages. The oldest
// entry is evicted when a new one arrives at capacity. It is not safe for
// concurrent use; Record guards it.
type MessageLog struct {
	buf   []domain.CompactMessage
	start int
	size  int
}

func NewMessageLog(capacity int) *MessageLog {
	if capacity <= 0 {
		capacity = DefaultMessageLogCapacity
	}
	return &MessageLog{buf: make([]domain.CompactMessage, capacity)}
}

// Append adds m as the newest entry and reports whether the oldest entry was
// evicted to make room.
func (l *MessageLog) Append(m domain.CompactMessage) bool {
	if l.size < len(l.buf) {
		l.buf[(l.start+l.size)%len(l.buf)] = m
		l.size++
		return false
	}
	l.buf[l.start] = m
	l.start = (l.start + 1) % len(l.buf)
	return true
}

func (l *MessageLog) Len() int { return l.size }

func (l *MessageLog) Cap() int { return len(l.buf) }

// Items returns a copy of the log, oldest first.
func (l *MessageLog) Items() []domain.CompactMessage {
	out := make([]domain.CompactMessage, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.start+i)%len(l.buf)]
	}
	return out
}

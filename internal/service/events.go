package service

import (
	"sync"
	"sync/atomic"

	"github.com/ricochet1k/wamux/internal/domain"
)

const DefaultEventBufferSize = 100

// Subscriber receives session events. An empty SessionID subscribes to
// every session.
//
// Events is bounded. When the consumer falls behind, further events wait in
// a backlog that a drain goroutine feeds into Events in order. Status and
// QR events always enter the backlog; message events are dropped once the
// backlog already holds bufferSize of them.
type Subscriber struct {
	ID        string
	SessionID string
	Events    chan domain.Event

	mu              sync.Mutex
	backlog         []domain.Event
	backlogMessages int
	messageLimit    int
	draining        bool
	closed          bool
	done            chan struct{}

	dropped atomic.Uint64
}

// Dropped is the number of message events skipped because the subscriber
// fell too far behind.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// Backlog is how many events are waiting behind a full Events channel.
func (s *Subscriber) Backlog() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog)
}

func newSubscriber(id, sessionID string, size int) *Subscriber {
	return &Subscriber{
		ID:           id,
		SessionID:    sessionID,
		Events:       make(chan domain.Event, size),
		messageLimit: size,
		done:         make(chan struct{}),
	}
}

func (s *Subscriber) offer(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.draining {
		select {
		case s.Events <- ev:
			return
		default:
		}
	}

	if ev.Type == domain.EventTypeMessage {
		if s.backlogMessages >= s.messageLimit {
			s.dropped.Add(1)
			return
		}
		s.backlogMessages++
	}
	s.backlog = append(s.backlog, ev)
	if !s.draining {
		s.draining = true
		go s.drain()
	}
}

// drain moves the backlog into Events. While it runs, offer appends to the
// backlog instead of sending directly, which keeps delivery in order.
func (s *Subscriber) drain() {
	for {
		s.mu.Lock()
		if s.closed || len(s.backlog) == 0 {
			s.stopDrainLocked()
			s.mu.Unlock()
			return
		}
		ev := s.backlog[0]
		s.backlog[0] = domain.Event{}
		s.backlog = s.backlog[1:]
		s.mu.Unlock()

		select {
		case s.Events <- ev:
			// An in-flight message still counts against the limit.
			if ev.Type == domain.EventTypeMessage {
				s.mu.Lock()
				s.backlogMessages--
				s.mu.Unlock()
			}
		case <-s.done:
			s.mu.Lock()
			s.stopDrainLocked()
			s.mu.Unlock()
			return
		}
	}
}

// stopDrainLocked ends draining. Events is closed here when close ran while
// the drain goroutine still owned the channel.
func (s *Subscriber) stopDrainLocked() {
	s.draining = false
	if s.closed {
		close(s.Events)
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.backlog = nil
	close(s.done)
	if !s.draining {
		close(s.Events)
	}
}

// EventBroadcaster fans supervisor events out to in-process consumers (the
// realtime hub bridge and the Redis mirror). Broadcast never blocks.
type EventBroadcaster struct {
	subscribers map[string]*Subscriber
	mu          sync.RWMutex
	bufferSize  int
}

func NewEventBroadcaster(bufferSize int) *EventBroadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultEventBufferSize
	}
	return &EventBroadcaster{
		subscribers: make(map[string]*Subscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers subscriberID, replacing (and closing) any previous
// subscriber with the same id.
func (b *EventBroadcaster) Subscribe(subscriberID, sessionID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subscribers[subscriberID]; ok {
		old.close()
	}
	sub := newSubscriber(subscriberID, sessionID, b.bufferSize)
	b.subscribers[subscriberID] = sub
	return sub
}

func (b *EventBroadcaster) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[subscriberID]; ok {
		sub.close()
		delete(b.subscribers, subscriberID)
	}
}

func (b *EventBroadcaster) Broadcast(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.SessionID != "" && sub.SessionID != event.SessionID {
			continue
		}
		sub.offer(event)
	}
}

func (b *EventBroadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes everyone.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		sub.close()
		delete(b.subscribers, id)
	}
}

package realtime

import (
	"sort"
	"sync"

	realtimeTypes "github.com/ricochet1k/wamux/pkg/realtime"
)

// Hub indexes observers by topic so a session event only visits the
// observers that joined that session.
type Hub struct {
	mu        sync.RWMutex
	observers map[string]*Observer
	members   map[string]map[string]*Observer // topic -> observer id
	joined    map[string]map[string]struct{}  // observer id -> topics
}

func NewHub() *Hub {
	return &Hub{
		observers: make(map[string]*Observer),
		members:   make(map[string]map[string]*Observer),
		joined:    make(map[string]map[string]struct{}),
	}
}

// Add registers o. An observer already registered under the same id is
// removed first.
func (h *Hub) Add(o *Observer) {
	h.Remove(o.ID())

	h.mu.Lock()
	h.observers[o.ID()] = o
	h.joined[o.ID()] = make(map[string]struct{})
	h.mu.Unlock()
}

// Remove drops the observer from every topic and closes it.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	o, ok := h.observers[id]
	if ok {
		h.dropLocked(id)
	}
	h.mu.Unlock()

	if ok {
		o.Close()
	}
}

func (h *Hub) dropLocked(id string) {
	for topic := range h.joined[id] {
		h.leaveLocked(id, topic)
	}
	delete(h.joined, id)
	delete(h.observers, id)
}

// Join adds the observer to topic. It reports false for unknown observers.
func (h *Hub) Join(id, topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	o, ok := h.observers[id]
	if !ok {
		return false
	}
	set := h.members[topic]
	if set == nil {
		set = make(map[string]*Observer)
		h.members[topic] = set
	}
	set[id] = o
	h.joined[id][topic] = struct{}{}
	return true
}

func (h *Hub) Leave(id, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(id, topic)
}

func (h *Hub) leaveLocked(id, topic string) {
	if set, ok := h.members[topic]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(h.members, topic)
		}
	}
	if topics, ok := h.joined[id]; ok {
		delete(topics, topic)
	}
}

// Publish delivers env to the members of topic and returns how many accepted
// it. Members whose queue is full are removed; the rest are unaffected.
func (h *Hub) Publish(topic string, env realtimeTypes.ServerEnvelope) int {
	h.mu.RLock()
	targets := make([]*Observer, 0, len(h.members[topic]))
	for _, o := range h.members[topic] {
		targets = append(targets, o)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, o := range targets {
		if o.Deliver(env) {
			delivered++
			continue
		}
		h.Remove(o.ID())
	}
	return delivered
}

// Topics lists what the observer has joined, sorted.
func (h *Hub) Topics(id string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.joined[id]))
	for topic := range h.joined[id] {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) MemberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[topic])
}

func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Close removes and closes every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	observers := h.observers
	h.observers = make(map[string]*Observer)
	h.members = make(map[string]map[string]*Observer)
	h.joined = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, o := range observers {
		o.Close()
	}
}

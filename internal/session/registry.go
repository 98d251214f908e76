package session

import (
	"sort"
	"sync"
)

// Registry maps session ids to records. It only inserts; record state is
// changed by the supervisor through the record itself.
type Registry struct {
	mu          sync.RWMutex
	records     map[string]*Record
	logCapacity int
}

func NewRegistry(logCapacity int) *Registry {
	if logCapacity <= 0 {
		logCapacity = DefaultMessageLogCapacity
	}
	return &Registry{
		records:     make(map[string]*Record),
		logCapacity: logCapacity,
	}
}

func (r *Registry) Get(id string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// GetOrCreate returns the record for id, inserting an idle one first if
// needed. It reports whether the record was created by this call.
func (r *Registry) GetOrCreate(id string) (*Record, bool) {
	if rec, ok := r.Get(id); ok {
		return rec, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		return rec, false
	}
	rec := newRecord(id, r.logCapacity)
	r.records[id] = rec
	return rec, true
}

// All returns every record, oldest first.
func (r *Registry) All() []*Record {
	r.mu.RLock()
	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

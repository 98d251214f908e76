package session

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ricochet1k/wamux/internal/domain"
	"github.com/ricochet1k/wamux/internal/whatsapp"
)

// ErrStaleEvent is returned by Apply for an event from a connection attempt
// that has since been superseded.
var ErrStaleEvent = errors.New("event from superseded connection attempt")

// Record is the in-memory state of one session. Its fields are only changed
// through Apply and the attempt/retry helpers, which the supervisor owns.
type Record struct {
	ID        string
	CreatedAt time.Time

	// opMu serializes lifecycle commands (start, logout, retry) for this id.
	opMu sync.Mutex

	mu         sync.RWMutex
	state      State
	updatedAt  time.Time
	log        *MessageLog
	conn       whatsapp.Conn
	lastGen    uint64
	connGen    uint64
	retryGen   uint64
	retryTimer *time.Timer
}

func newRecord(id string, logCapacity int) *Record {
	now := time.Now()
	return &Record{
		ID:        id,
		CreatedAt: now,
		updatedAt: now,
		state:     State{Status: domain.SessionStateIdle},
		log:       NewMessageLog(logCapacity),
	}
}

// Snapshot is a point-in-time, lock-free copy of a Record.
type Snapshot struct {
	ID        string
	Status    domain.SessionState
	Challenge string
	Identity  string
	Connected bool
	Messages  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Record) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		ID:        r.ID,
		Status:    r.state.Status,
		Challenge: r.state.Challenge,
		Identity:  r.state.Identity,
		Connected: r.conn != nil,
		Messages:  r.log.Len(),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.updatedAt,
	}
}

func (r *Record) Status() domain.SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Status
}

// Messages returns the retained inbound messages, oldest first.
func (r *Record) Messages() []domain.CompactMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.log.Items()
}

// Lock serializes a lifecycle command for this session.
func (r *Record) Lock() { r.opMu.Lock() }

func (r *Record) Unlock() { r.opMu.Unlock() }

// Result describes an applied transition.
type Result struct {
	Old     State
	New     State
	Effects Effects
	// Gen is the attempt generation allocated by EventStart.
	Gen uint64
	// Released is the connection handed back by ReleaseConn, if any. The
	// caller closes it.
	Released whatsapp.Conn
}

// Apply runs Transition for ev and commits the result atomically. Attempt
// scoped events whose generation no longer matches are rejected with
// ErrStaleEvent.
func (r *Record) Apply(ev Event) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Kind.attemptScoped() && (ev.Gen == 0 || ev.Gen != r.connGen) {
		return Result{}, ErrStaleEvent
	}

	next, eff, err := Transition(r.state, ev)
	if err != nil {
		return Result{}, err
	}

	res := Result{Old: r.state, New: next, Effects: eff}
	r.state = next
	r.updatedAt = time.Now()
	r.cancelRetryLocked()

	if eff.ReleaseConn {
		res.Released = r.conn
		r.conn = nil
		r.connGen = 0
	}
	if ev.Kind == EventStart {
		r.lastGen++
		r.connGen = r.lastGen
		res.Gen = r.connGen
	}
	return res, nil
}

// Attach stores conn as the live handle of attempt gen. It reports false when
// the attempt was superseded while the connection was being opened; the
// caller must then close conn itself.
func (r *Record) Attach(gen uint64, conn whatsapp.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen == 0 || gen != r.connGen || !r.state.Status.Live() {
		return false
	}
	r.conn = conn
	return true
}

// Detach takes the live handle out of the record and invalidates its
// attempt, so events it emits afterwards are stale.
func (r *Record) Detach() whatsapp.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn := r.conn
	r.conn = nil
	r.connGen = 0
	return conn
}

// OpenConn returns the live handle when the session is open.
func (r *Record) OpenConn() (whatsapp.Conn, Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{ID: r.ID, Status: r.state.Status, Identity: r.state.Identity, Connected: r.conn != nil}
	if r.state.Status != domain.SessionStateOpen || r.conn == nil {
		return nil, snap, false
	}
	return r.conn, snap, true
}

// Attempting reports whether a connection attempt currently owns the record.
func (r *Record) Attempting() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connGen != 0 && r.state.Status.Live()
}

// Owns reports whether gen is the attempt that currently owns the record.
func (r *Record) Owns(gen uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return gen != 0 && gen == r.connGen
}

// AppendMessages adds messages to the log and returns the identity the
// session was open as at the time, for self-message detection.
func (r *Record) AppendMessages(msgs []domain.CompactMessage) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.log.Append(m)
	}
	r.updatedAt = time.Now()
	return r.state.Identity
}

// ScheduleRetry arms a one-shot timer calling fire with the retry generation
// after delay. Nothing is armed unless the record is closed-retrying.
func (r *Record) ScheduleRetry(delay time.Duration, fire func(gen uint64)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Status != domain.SessionStateClosedRetrying {
		return false
	}
	r.cancelRetryLocked()
	gen := r.retryGen
	r.retryTimer = time.AfterFunc(delay, func() { fire(gen) })
	return true
}

// RetryDue reports whether gen is still the pending retry and the record is
// still waiting to reconnect.
func (r *Record) RetryDue(gen uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return gen == r.retryGen && r.retryTimer != nil && r.state.Status == domain.SessionStateClosedRetrying
}

// CancelRetry stops any pending retry.
func (r *Record) CancelRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelRetryLocked()
}

func (r *Record) cancelRetryLocked() {
	if r.retryTimer != nil {
		r.retryTimer.Stop()
		r.retryTimer = nil
	}
	r.retryGen++
}

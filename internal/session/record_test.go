package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricochet1k/wamux/internal/domain"
	"github.com/ricochet1k/wamux/internal/whatsapp"
)

type stubConn struct{ closed atomic.Bool }

func (c *stubConn) SendText(context.Context, string, string) (whatsapp.SendResult, error) {
	return whatsapp.SendResult{}, nil
}
func (c *stubConn) Logout(context.Context) error { return nil }
func (c *stubConn) Close()                       { c.closed.Store(true) }

func TestRecordApplyAllocatesGenerations(t *testing.T) {
	rec := newRecord("a1", 0)

	res, err := rec.Apply(Event{Kind: EventStart})
	require.NoError(t, err)
	require.NotZero(t, res.Gen)
	assert.Equal(t, domain.SessionStateIdle, res.Old.Status)
	assert.Equal(t, domain.SessionStateConnecting, rec.Status())
	assert.True(t, rec.Attempting())

	_, err = rec.Apply(Event{Kind: EventChallenge, Gen: res.Gen + 1, Challenge: "x"})
	assert.ErrorIs(t, err, ErrStaleEvent)

	_, err = rec.Apply(Event{Kind: EventChallenge, Gen: res.Gen, Challenge: "x"})
	require.NoError(t, err)
	snap := rec.Snapshot()
	assert.Equal(t, domain.SessionStateQR, snap.Status)
	assert.Equal(t, "x", snap.Challenge)
}

func TestRecordReleaseConnInvalidatesAttempt(t *testing.T) {
	rec := newRecord("a1", 0)
	res, err := rec.Apply(Event{Kind: EventStart})
	require.NoError(t, err)

	conn := &stubConn{}
	require.True(t, rec.Attach(res.Gen, conn))

	_, err = rec.Apply(Event{Kind: EventConnected, Gen: res.Gen, Identity: "me"})
	require.NoError(t, err)
	got, snap, ok := rec.OpenConn()
	require.True(t, ok)
	assert.Same(t, conn, got)
	assert.Equal(t, "me", snap.Identity)

	drop, err := rec.Apply(Event{Kind: EventDisconnected, Gen: res.Gen, Reason: domain.DisconnectNetwork})
	require.NoError(t, err)
	assert.Same(t, conn, drop.Released)
	assert.Equal(t, domain.SessionStateClosedRetrying, rec.Status())

	_, err = rec.Apply(Event{Kind: EventDisconnected, Gen: res.Gen, Reason: domain.DisconnectNetwork})
	assert.ErrorIs(t, err, ErrStaleEvent, "a second drop from the same attempt is ignored")
}

func TestRecordAttachAfterSupersede(t *testing.T) {
	rec := newRecord("a1", 0)
	res, err := rec.Apply(Event{Kind: EventStart})
	require.NoError(t, err)

	_, err = rec.Apply(Event{Kind: EventLogout})
	require.NoError(t, err)
	assert.False(t, rec.Attach(res.Gen, &stubConn{}))
}

func TestRecordRetryGeneration(t *testing.T) {
	rec := newRecord("a1", 0)
	res, err := rec.Apply(Event{Kind: EventStart})
	require.NoError(t, err)
	_, err = rec.Apply(Event{Kind: EventDisconnected, Gen: res.Gen, Reason: domain.DisconnectNetwork})
	require.NoError(t, err)

	fired := make(chan uint64, 2)
	require.True(t, rec.ScheduleRetry(10*time.Millisecond, func(gen uint64) { fired <- gen }))

	var gen uint64
	select {
	case gen = <-fired:
	case <-time.After(time.Second):
		t.Fatal("retry did not fire")
	}
	assert.True(t, rec.RetryDue(gen))

	_, err = rec.Apply(Event{Kind: EventLogout})
	require.NoError(t, err)
	assert.False(t, rec.RetryDue(gen), "logout invalidates the pending retry")
}

func TestRecordScheduleRetryRequiresClosedRetrying(t *testing.T) {
	rec := newRecord("a1", 0)
	assert.False(t, rec.ScheduleRetry(time.Millisecond, func(uint64) {}))
}

func TestRecordCancelRetryStopsTimer(t *testing.T) {
	rec := newRecord("a1", 0)
	res, _ := rec.Apply(Event{Kind: EventStart})
	_, _ = rec.Apply(Event{Kind: EventDisconnected, Gen: res.Gen})

	var fired atomic.Bool
	require.True(t, rec.ScheduleRetry(20*time.Millisecond, func(uint64) { fired.Store(true) }))
	rec.CancelRetry()
	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestRecordSnapshotIsConsistentUnderConcurrency(t *testing.T) {
	rec := newRecord("a1", 0)
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			res, err := rec.Apply(Event{Kind: EventStart})
			if err != nil {
				continue
			}
			_, _ = rec.Apply(Event{Kind: EventConnected, Gen: res.Gen, Identity: "me"})
			_, _ = rec.Apply(Event{Kind: EventLogout})
		}
	}()

	for i := 0; i < 1000; i++ {
		snap := rec.Snapshot()
		if snap.Status == domain.SessionStateOpen {
			require.Equal(t, "me", snap.Identity)
		} else {
			require.Empty(t, snap.Identity)
		}
	}
	close(stop)
	wg.Wait()
}

func TestRecordAppendMessagesBounded(t *testing.T) {
	rec := newRecord("a1", 0)
	batch := make([]domain.CompactMessage, 0, 60)
	for i := 0; i < 60; i++ {
		batch = append(batch, msgWithID(string(rune('A'+i%26))))
	}
	rec.AppendMessages(batch)
	assert.Len(t, rec.Messages(), DefaultMessageLogCapacity)
	assert.Equal(t, DefaultMessageLogCapacity, rec.Snapshot().Messages)
}

package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricochet1k/wamux/internal/domain"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		event   Event
		want    State
		effects Effects
	}{
		{
			name:    "start from idle",
			from:    State{Status: domain.SessionStateIdle},
			event:   Event{Kind: EventStart},
			want:    State{Status: domain.SessionStateConnecting},
			effects: Effects{PublishStatus: true},
		},
		{
			name:    "challenge while connecting",
			from:    State{Status: domain.SessionStateConnecting},
			event:   Event{Kind: EventChallenge, Challenge: "2@abc"},
			want:    State{Status: domain.SessionStateQR, Challenge: "2@abc"},
			effects: Effects{PublishStatus: true, PublishChallenge: true},
		},
		{
			name:    "challenge refresh",
			from:    State{Status: domain.SessionStateQR, Challenge: "old"},
			event:   Event{Kind: EventChallenge, Challenge: "new"},
			want:    State{Status: domain.SessionStateQR, Challenge: "new"},
			effects: Effects{PublishStatus: true, PublishChallenge: true},
		},
		{
			name:    "paired clears challenge",
			from:    State{Status: domain.SessionStateQR, Challenge: "code"},
			event:   Event{Kind: EventPaired},
			want:    State{Status: domain.SessionStateConnecting},
			effects: Effects{PublishStatus: true, PublishChallenge: true},
		},
		{
			name:    "connected from qr",
			from:    State{Status: domain.SessionStateQR, Challenge: "code"},
			event:   Event{Kind: EventConnected, Identity: "1555@s.whatsapp.net"},
			want:    State{Status: domain.SessionStateOpen, Identity: "1555@s.whatsapp.net"},
			effects: Effects{PublishStatus: true, PublishChallenge: true},
		},
		{
			name:    "network drop while open",
			from:    State{Status: domain.SessionStateOpen, Identity: "me"},
			event:   Event{Kind: EventDisconnected, Reason: domain.DisconnectNetwork},
			want:    State{Status: domain.SessionStateClosedRetrying},
			effects: Effects{PublishStatus: true, PublishChallenge: true, ScheduleRetry: true, ReleaseConn: true},
		},
		{
			name:    "remote logout while qr",
			from:    State{Status: domain.SessionStateQR, Challenge: "code"},
			event:   Event{Kind: EventDisconnected, Reason: domain.DisconnectLoggedOut},
			want:    State{Status: domain.SessionStateLoggedOut},
			effects: Effects{PublishStatus: true, PublishChallenge: true, RemoveCredentials: true, ReleaseConn: true},
		},
		{
			name:    "explicit logout from idle",
			from:    State{Status: domain.SessionStateIdle},
			event:   Event{Kind: EventLogout},
			want:    State{Status: domain.SessionStateLoggedOut},
			effects: Effects{PublishStatus: true, PublishChallenge: true, RemoveCredentials: true, ReleaseConn: true},
		},
		{
			name:    "restart after logout",
			from:    State{Status: domain.SessionStateLoggedOut},
			event:   Event{Kind: EventStart},
			want:    State{Status: domain.SessionStateConnecting},
			effects: Effects{PublishStatus: true},
		},
		{
			name:    "explicit open failure",
			from:    State{Status: domain.SessionStateConnecting},
			event:   Event{Kind: EventOpenFailed},
			want:    State{Status: domain.SessionStateIdle},
			effects: Effects{PublishStatus: true, ReleaseConn: true},
		},
		{
			name:    "automatic open failure retries",
			from:    State{Status: domain.SessionStateConnecting},
			event:   Event{Kind: EventOpenFailed, Auto: true},
			want:    State{Status: domain.SessionStateClosedRetrying},
			effects: Effects{PublishStatus: true, ScheduleRetry: true, ReleaseConn: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, eff, err := Transition(tt.from, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.effects, eff)
		})
	}
}

func TestTransitionRejectsInvalidEdges(t *testing.T) {
	tests := []struct {
		name  string
		from  domain.SessionState
		event Event
	}{
		{"start while open", domain.SessionStateOpen, Event{Kind: EventStart}},
		{"connected while idle", domain.SessionStateIdle, Event{Kind: EventConnected}},
		{"drop after logout", domain.SessionStateLoggedOut, Event{Kind: EventDisconnected, Reason: domain.DisconnectNetwork}},
		{"challenge while open", domain.SessionStateOpen, Event{Kind: EventChallenge, Challenge: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := State{Status: tt.from}
			got, eff, err := Transition(st, tt.event)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
			assert.Equal(t, st, got)
			assert.Equal(t, Effects{}, eff)
		})
	}
}

package api

import (
	"encoding/json"
	"testing"
)

func TestSessionStatus_Values(t *testing.T) {
	statuses := []SessionStatus{
		SessionStatusIdle,
		SessionStatusConnecting,
		SessionStatusQR,
		SessionStatusOpen,
		SessionStatusClosedRetrying,
		SessionStatusLoggedOut,
	}

	expected := []string{"idle", "connecting", "qr", "open", "closed-retrying", "logged-out"}

	for i, status := range statuses {
		if string(status) != expected[i] {
			t.Errorf("expected %s, got %s", expected[i], status)
		}
	}
}

func TestSession_MeIsNullUntilOpen(t *testing.T) {
	data, err := json.Marshal(Session{ID: "a1", Status: SessionStatusConnecting})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	me, ok := raw["me"]
	if !ok || me != nil {
		t.Fatalf("expected me to be present and null, got %v", raw["me"])
	}
}

package realtime

import (
	"github.com/ricochet1k/wamux/internal/service"
	realtimeTypes "github.com/ricochet1k/wamux/pkg/realtime"
)

// SnapshotProvider builds the replay a new subscriber receives: the current
// status and QR of the session, never its message history.
type SnapshotProvider struct {
	supervisor *service.Supervisor
	qr         QRRenderer
}

func NewSnapshotProvider(supervisor *service.Supervisor, qr QRRenderer) *SnapshotProvider {
	return &SnapshotProvider{supervisor: supervisor, qr: qr}
}

// Snapshot returns nothing for an unknown session.
func (p *SnapshotProvider) Snapshot(id string) []realtimeTypes.ServerEnvelope {
	snap, err := p.supervisor.Get(id)
	if err != nil {
		return nil
	}
	qrEnv, _ := QREnvelope(id, snap.Challenge, p.qr)
	return []realtimeTypes.ServerEnvelope{
		UpdateEnvelope(id, snap.Status, snap.Identity),
		qrEnv,
	}
}

package realtime

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ricochet1k/wamux/internal/service"
)

const bridgeSubscriberID = "realtime-hub"

// Bridge forwards supervisor events to the hub.
type Bridge struct {
	hub         *Hub
	broadcaster *service.EventBroadcaster
	qr          QRRenderer
	log         zerolog.Logger
}

func NewBridge(hub *Hub, broadcaster *service.EventBroadcaster, qr QRRenderer, log zerolog.Logger) *Bridge {
	return &Bridge{
		hub:         hub,
		broadcaster: broadcaster,
		qr:          qr,
		log:         log.With().Str("component", "realtime-bridge").Logger(),
	}
}

// Subscribe registers the bridge with the broadcaster. Events broadcast
// after it returns are forwarded by Forward.
func (b *Bridge) Subscribe() *service.Subscriber {
	return b.broadcaster.Subscribe(bridgeSubscriberID, "")
}

// Run subscribes and forwards until ctx is done or the broadcaster is closed.
func (b *Bridge) Run(ctx context.Context) error {
	return b.Forward(ctx, b.Subscribe())
}

func (b *Bridge) Forward(ctx context.Context, sub *service.Subscriber) error {
	defer b.broadcaster.Unsubscribe(sub.ID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events:
			if !ok {
				return nil
			}
			env, ok, err := EventEnvelope(ev, b.qr)
			if err != nil {
				b.log.Warn().Err(err).Str("session_id", ev.SessionID).Msg("render qr failed")
			}
			if !ok {
				continue
			}
			b.hub.Publish(TopicSession(ev.SessionID), env)
		}
	}
}

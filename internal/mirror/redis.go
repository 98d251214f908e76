// Package mirror republishes session events onto Redis pub/sub channels so
// processes outside wamux can follow sessions without a websocket.
package mirror

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ricochet1k/wamux/internal/realtime"
	"github.com/ricochet1k/wamux/internal/service"
)

const (
	DefaultPrefix  = "wamux:session:"
	subscriberID   = "redis-mirror"
	publishTimeout = 5 * time.Second
)

// Publisher is the slice of a Redis client the mirror needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type redisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to addr and checks the server answers.
func NewRedisPublisher(ctx context.Context, addr string) (Publisher, func() error, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrapf(err, "ping redis at %s", addr)
	}
	return &redisPublisher{client: client}, client.Close, nil
}

func (p *redisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

type Config struct {
	Publisher   Publisher
	Broadcaster *service.EventBroadcaster
	QR          realtime.QRRenderer
	Prefix      string
	Logger      zerolog.Logger
}

// Mirror publishes every session event as the same JSON envelope websocket
// clients receive, on channel Prefix+sessionID.
type Mirror struct {
	pub         Publisher
	broadcaster *service.EventBroadcaster
	qr          realtime.QRRenderer
	prefix      string
	log         zerolog.Logger
}

func New(cfg Config) *Mirror {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Mirror{
		pub:         cfg.Publisher,
		broadcaster: cfg.Broadcaster,
		qr:          cfg.QR,
		prefix:      prefix,
		log:         cfg.Logger.With().Str("component", "redis-mirror").Logger(),
	}
}

func (m *Mirror) Channel(sessionID string) string {
	return m.prefix + sessionID
}

// Subscribe registers the mirror with the broadcaster; pair it with Forward.
func (m *Mirror) Subscribe() *service.Subscriber {
	return m.broadcaster.Subscribe(subscriberID, "")
}

// Run subscribes and forwards until ctx is done or the broadcaster closes.
func (m *Mirror) Run(ctx context.Context) error {
	return m.Forward(ctx, m.Subscribe())
}

// Forward publishes sub's events. Publish failures are logged and the event
// is skipped.
func (m *Mirror) Forward(ctx context.Context, sub *service.Subscriber) error {
	defer m.broadcaster.Unsubscribe(sub.ID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events:
			if !ok {
				return nil
			}
			env, ok, err := realtime.EventEnvelope(ev, m.qr)
			if err != nil {
				m.log.Warn().Err(err).Str("session_id", ev.SessionID).Msg("render qr failed")
			}
			if !ok {
				continue
			}
			payload, err := json.Marshal(env)
			if err != nil {
				m.log.Error().Err(err).Str("session_id", ev.SessionID).Msg("encode event")
				continue
			}

			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err = m.pub.Publish(pubCtx, m.Channel(ev.SessionID), payload)
			cancel()
			if err != nil {
				m.log.Warn().Err(err).Str("session_id", ev.SessionID).Str("type", string(env.Type)).Msg("redis publish failed")
			}
		}
	}
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ricochet1k/wamux/internal/realtime"
	realtimeTypes "github.com/ricochet1k/wamux/pkg/realtime"
)

// Client frames are tiny; anything bigger is a misbehaving peer.
const realtimeReadLimit = 4096

// The channel carries no credentials, so any origin may connect.
var realtimeUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *Handler) realtimeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := realtimeUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(realtimeReadLimit)

	obs := realtime.NewObserver(uuid.NewString(), conn)
	h.realtimeHub.Add(obs)
	defer h.realtimeHub.Remove(obs.ID())
	go obs.Pump()

	log := h.log.With().Str("observer", obs.ID()).Logger()
	log.Debug().Msg("observer connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Strs("topics", h.realtimeHub.Topics(obs.ID())).Msg("observer gone")
			return
		}
		var env realtimeTypes.ClientEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			env.Type = ""
		}
		if !h.dispatchRealtime(obs, env) {
			return
		}
	}
}

// dispatchRealtime handles one client frame. It returns false once the
// observer can no longer be written to.
func (h *Handler) dispatchRealtime(obs *realtime.Observer, env realtimeTypes.ClientEnvelope) bool {
	switch env.Type {
	case realtimeTypes.ClientMessageTypeSubscribe:
		if env.ID == "" {
			return h.reject(obs, "session id is required")
		}
		h.realtimeHub.Join(obs.ID(), realtime.TopicSession(env.ID))
		// Current state only; the message history is fetched over HTTP.
		for _, snap := range h.snapshotter.Snapshot(env.ID) {
			if !obs.Deliver(snap) {
				return false
			}
		}
		return true

	case realtimeTypes.ClientMessageTypeUnsubscribe:
		if env.ID != "" {
			h.realtimeHub.Leave(obs.ID(), realtime.TopicSession(env.ID))
		}
		return true

	case realtimeTypes.ClientMessageTypePing:
		return obs.Deliver(realtimeTypes.ServerEnvelope{Type: realtimeTypes.ServerMessageTypePong})

	case "":
		return h.reject(obs, "invalid message")

	default:
		return h.reject(obs, "unsupported message type")
	}
}

func (h *Handler) reject(obs *realtime.Observer, reason string) bool {
	return obs.Deliver(realtimeTypes.ServerEnvelope{
		Type:    realtimeTypes.ServerMessageTypeError,
		Message: reason,
	})
}

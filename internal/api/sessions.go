package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/ricochet1k/wamux/internal/realtime"
	apiTypes "github.com/ricochet1k/wamux/pkg/api"
	realtimeTypes "github.com/ricochet1k/wamux/pkg/realtime"
)

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	snap, err := h.supervisor.Start(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", id).Msg("start session failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiTypes.StatusResponse{
		OK:     true,
		ID:     snap.ID,
		Status: apiTypes.SessionStatus(snap.Status.String()),
	})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	snap, err := h.supervisor.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiTypes.SessionResponse{OK: true, Session: sessionToResponse(snap)})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	snaps := h.supervisor.Sessions()
	out := make([]apiTypes.Session, len(snaps))
	for i, snap := range snaps {
		out[i] = sessionToResponse(snap)
	}
	writeJSON(w, http.StatusOK, apiTypes.SessionListResponse{OK: true, Sessions: out})
}

func (h *Handler) getSessionMessages(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	msgs, err := h.supervisor.Messages(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]realtimeTypes.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, realtime.WireMessage(m))
	}
	writeJSON(w, http.StatusOK, apiTypes.MessagesResponse{OK: true, ID: id, Messages: out})
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// A missing or malformed body is treated as empty fields so readiness is
	// still reported first.
	var req apiTypes.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.log.Debug().Err(err).Str("session_id", id).Msg("invalid send body")
		req = apiTypes.SendRequest{}
	}

	res, err := h.supervisor.Send(r.Context(), id, req.To, req.Text)
	if err != nil {
		if !isClientError(err) {
			h.log.Error().Err(err).Str("session_id", id).Msg("send failed")
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, apiTypes.SendResponse{
		OK: true,
		ID: id,
		To: res.To,
		Response: apiTypes.SendReceipt{
			ID:        res.ID,
			Timestamp: res.Timestamp,
			ServerID:  res.ServerID,
		},
	})
}

func (h *Handler) logoutSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	snap, err := h.supervisor.Logout(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiTypes.StatusResponse{
		OK:     true,
		ID:     snap.ID,
		Status: apiTypes.SessionStatus(snap.Status.String()),
	})
}

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ricochet1k/wamux/internal/autoreply"
	apiTypes "github.com/ricochet1k/wamux/pkg/api"
)

func (h *Handler) aiStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiTypes.AIStatusResponse{Status: apiTypes.AIStatus(h.supervisor.AutoReplySwitch().Status())})
}

func (h *Handler) pauseAI(w http.ResponseWriter, r *http.Request) {
	status := h.supervisor.AutoReplySwitch().Pause()
	h.log.Info().Msg("auto-reply paused")
	writeJSON(w, http.StatusOK, apiTypes.AIStatusResponse{Status: apiTypes.AIStatus(status)})
}

func (h *Handler) resumeAI(w http.ResponseWriter, r *http.Request) {
	status := h.supervisor.AutoReplySwitch().Resume()
	h.log.Info().Msg("auto-reply resumed")
	writeJSON(w, http.StatusOK, apiTypes.AIStatusResponse{Status: apiTypes.AIStatus(status)})
}

// complete proxies a one-off completion request to the configured model.
func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	var req apiTypes.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if h.completion == nil {
		writeError(w, http.StatusServiceUnavailable, "no language model configured")
		return
	}

	reply, err := h.completion.Reply(r.Context(), autoreply.Request{Message: req.Message, Context: req.Context})
	if err != nil {
		h.log.Error().Err(err).Msg("completion failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, apiTypes.CompletionResponse{Reply: reply})
}

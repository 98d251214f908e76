package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ricochet1k/wamux/internal/autoreply"
	"github.com/ricochet1k/wamux/internal/domain"
	"github.com/ricochet1k/wamux/internal/realtime"
	"github.com/ricochet1k/wamux/internal/service"
	"github.com/ricochet1k/wamux/internal/session"
	apiTypes "github.com/ricochet1k/wamux/pkg/api"
)

// Handler serves the HTTP API and the realtime WebSocket channel.
type Handler struct {
	supervisor  *service.Supervisor
	completion  autoreply.Policy
	realtimeHub *realtime.Hub
	snapshotter *realtime.SnapshotProvider
	log         zerolog.Logger
}

type HandlerConfig struct {
	Supervisor *service.Supervisor
	// Completion answers POST /deepseek. Nil disables the endpoint.
	Completion autoreply.Policy
	Hub        *realtime.Hub
	Snapshots  *realtime.SnapshotProvider
	Logger     zerolog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	hub := cfg.Hub
	if hub == nil {
		hub = realtime.NewHub()
	}
	snapshotter := cfg.Snapshots
	if snapshotter == nil {
		snapshotter = realtime.NewSnapshotProvider(cfg.Supervisor, nil)
	}
	return &Handler{
		supervisor:  cfg.Supervisor,
		completion:  cfg.Completion,
		realtimeHub: hub,
		snapshotter: snapshotter,
		log:         cfg.Logger.With().Str("component", "api").Logger(),
	}
}

// Mount registers all routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/healthz", h.healthz)
	r.Get("/ws", h.realtimeWebSocket)

	r.Get("/sessions", h.listSessions)
	r.Route("/session/{id}", func(r chi.Router) {
		r.Get("/", h.getSession)
		r.Post("/start", h.startSession)
		r.Get("/messages", h.getSessionMessages)
		r.Post("/send", h.sendMessage)
		r.Post("/logout", h.logoutSession)
	})

	r.Get("/ai", h.aiStatus)
	r.Post("/pause-ai", h.pauseAI)
	r.Post("/resume-ai", h.resumeAI)
	r.Post("/deepseek", h.complete)

	r.Handle("/*", staticHandler())
}

// NewRouter wraps the handler's routes with the standard middleware stack.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.log))
	h.Mount(r)
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// sessionID returns the decoded {id} path segment.
func sessionID(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return raw, nil
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", domain.InvalidArgument("session id %q", raw)
	}
	return id, nil
}

// writeDomainError maps supervisor errors to HTTP responses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, domain.ErrNotReady):
		writeError(w, http.StatusBadRequest, "Session not ready/connected")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSupervisorClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrNotReady) ||
		errors.Is(err, domain.ErrInvalidArgument)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, apiTypes.ErrorResponse{OK: false, Error: message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func sessionToResponse(s session.Snapshot) apiTypes.Session {
	out := apiTypes.Session{
		ID:        s.ID,
		Status:    apiTypes.SessionStatus(s.Status.String()),
		QRPending: s.Challenge != "",
		Connected: s.Connected,
		Messages:  s.Messages,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Identity != "" {
		me := s.Identity
		out.Me = &me
	}
	return out
}

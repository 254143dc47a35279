package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/pagelab/internal/domain"
	"github.com/ashureev/pagelab/internal/identity"
	"github.com/ashureev/pagelab/internal/render"
	"github.com/ashureev/pagelab/internal/runtime"
	"github.com/ashureev/pagelab/internal/session"
)

const (
	maxEventBody      = 64 << 10
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// SessionHandler handles session lifecycle and interaction endpoints.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Get("/sessions", h.List)
		r.Post("/sessions", h.Open)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.Frame)
			r.Delete("/", h.Close)
			r.Post("/events", h.Event)
			r.Get("/events", h.Events)
			r.Get("/state", h.State)
		})
	})
}

// OpenResponse is returned when a session is opened.
type OpenResponse struct {
	SessionID string        `json:"session_id"`
	Frame     *render.Frame `json:"frame"`
}

// EventRequest is the body of an interaction event.
type EventRequest struct {
	Widget string `json:"widget"`
	Value  any    `json:"value"`
}

// GetConfig returns the page manifest for the frontend.
func (h *SessionHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"manifest": h.manifest,
		"page":     h.mgr.Config(),
	})
}

// List returns the IDs of the caller's live sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"sessions": h.mgr.IDsOf(identity.ClientIDFromContext(r.Context())),
	})
}

// owned resolves the {id} route parameter to a live session of the caller,
// writing the error response when there is none.
func (h *SessionHandler) owned(w http.ResponseWriter, r *http.Request) (*runtime.Session, bool) {
	id := chi.URLParam(r, "id")
	s, err := h.mgr.Owned(id, identity.ClientIDFromContext(r.Context()))
	if err != nil {
		writeRuntimeError(w, id, err)
		return nil, false
	}
	return s, true
}

// Open creates the session named by the request (or a fresh one) and
// returns its first frame. Opening a live session attaches to it.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := identity.SessionIDFromContext(ctx)
	clientID := identity.ClientIDFromContext(ctx)

	s, frame, err := h.mgr.Open(ctx, sessionID, clientID)
	if err != nil {
		writeRuntimeError(w, sessionID, err)
		return
	}

	status := http.StatusOK
	if identity.IsNewSession(ctx) {
		status = http.StatusCreated
	}
	w.Header().Set(identity.SessionHeaderName, s.ID())
	JSON(w, status, OpenResponse{SessionID: s.ID(), Frame: frame})
}

// Frame runs a pass without interaction and returns its frame.
func (h *SessionHandler) Frame(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	frame, err := h.mgr.Refresh(r.Context(), s.ID())
	if err != nil {
		writeRuntimeError(w, s.ID(), err)
		return
	}
	JSON(w, http.StatusOK, frame)
}

// Event delivers one interaction event and returns the resulting frame.
func (h *SessionHandler) Event(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req EventRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			Error(w, http.StatusBadRequest, "empty request body")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Widget == "" {
		Error(w, http.StatusBadRequest, "widget is required")
		return
	}

	frame, err := s.Dispatch(r.Context(), &session.Event{Widget: req.Widget, Value: req.Value})
	if err != nil {
		writeRuntimeError(w, s.ID(), err)
		return
	}
	JSON(w, http.StatusOK, frame)
}

// State returns a copy of the session's state container.
func (h *SessionHandler) State(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	snap, err := h.mgr.Snapshot(s.ID())
	if err != nil {
		writeRuntimeError(w, s.ID(), err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": s.ID(),
		"state":      snap,
	})
}

// Events returns the most recent entries of the session's interaction log,
// oldest first. Without a store, the in-memory history of a live session is
// returned instead. Only the client that opened the session can read it.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	clientID := identity.ClientIDFromContext(r.Context())
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	if h.repo == nil {
		s, ok := h.owned(w, r)
		if !ok {
			return
		}
		entries := s.History().Entries()
		if len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
		JSON(w, http.StatusOK, map[string]interface{}{"session_id": id, "events": entries})
		return
	}

	rec, err := h.repo.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get session", "session_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if rec == nil || rec.ClientID != clientID {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	events, err := h.repo.ListEvents(r.Context(), id, limit)
	if err != nil {
		slog.Error("Failed to list events", "session_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	if events == nil {
		events = []*domain.EventRecord{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"session":    rec,
		"events":     events,
	})
}

// Close tears the session down.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	if err := h.mgr.Close(s.ID()); err != nil {
		writeRuntimeError(w, s.ID(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Package api provides HTTP handlers for the pagelab API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/pagelab/internal/config"
	"github.com/ashureev/pagelab/internal/runtime"
	"github.com/ashureev/pagelab/internal/store"
	"github.com/ashureev/pagelab/internal/widget"
)

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	mgr      *runtime.Manager
	manifest *config.Manifest
}

// NewHandler creates a new Handler with common dependencies. repo may be nil.
func NewHandler(repo store.Repository, mgr *runtime.Manager, manifest *config.Manifest) *Handler {
	if manifest == nil {
		manifest = config.DefaultManifest()
	}
	return &Handler{
		repo:     repo,
		mgr:      mgr,
		manifest: manifest,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusFor maps a runtime or widget error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, runtime.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, runtime.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, runtime.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, widget.ErrUnknownWidget), errors.Is(err, widget.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeRuntimeError(w http.ResponseWriter, sessionID string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Session request failed", "session_id", sessionID, "error", err)
	}
	Error(w, status, err.Error())
}

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/pagelab/internal/identity"
	"github.com/ashureev/pagelab/internal/render"
	"github.com/ashureev/pagelab/internal/runtime"
	"github.com/ashureev/pagelab/internal/session"
)

const writeTimeout = 10 * time.Second

// Message types.
const (
	TypeEvent      = "event"
	TypeRefresh    = "refresh"
	TypePing       = "ping"
	TypeTerminate  = "terminate"
	TypeFrame      = "frame"
	TypePong       = "pong"
	TypeError      = "error"
	TypeTerminated = "terminated"
)

// ClientMessage is sent by the browser.
type ClientMessage struct {
	Type   string `json:"type"`
	Widget string `json:"widget,omitempty"`
	Value  any    `json:"value,omitempty"`
}

// ServerMessage is sent to the browser.
type ServerMessage struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	Frame     *render.Frame `json:"frame,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Handler serves /ws/session.
type Handler struct {
	mgr            *runtime.Manager
	conns          *Conns
	allowedOrigins []string
	isDev          bool
}

// NewHandler creates a new WebSocket handler.
func NewHandler(mgr *runtime.Manager, conns *Conns, allowedOrigins []string, isDev bool) *Handler {
	return &Handler{
		mgr:            mgr,
		conns:          conns,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade. The session is
// opened (or attached to) before the first frame is sent; it outlives the
// connection unless the client sends terminate.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	clientID := identity.ClientIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "session_id", sessionID, "client_id", clientID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "connection ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s, frame, err := h.mgr.Open(ctx, sessionID, clientID)
	if err != nil {
		slog.Error("Failed to open session", "error", err, "session_id", sessionID)
		_ = h.writeJSON(ctx, ws, ServerMessage{Type: TypeError, SessionID: sessionID, Error: err.Error()})
		return
	}

	h.conns.Register(s.ID(), ws)
	defer h.conns.Unregister(s.ID(), ws)

	if err := h.writeJSON(ctx, ws, ServerMessage{Type: TypeFrame, SessionID: s.ID(), Frame: frame}); err != nil {
		slog.Debug("Failed to send first frame", "error", err, "session_id", s.ID())
		return
	}

	h.readLoop(ctx, ws, s.ID())
	slog.Info("WebSocket connection ended", "session_id", s.ID())
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed", "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := h.writeJSON(ctx, ws, ServerMessage{Type: TypeError, Error: "invalid message: " + err.Error()}); err != nil {
				return
			}
			continue
		}

		var reply ServerMessage
		switch msg.Type {
		case TypeEvent:
			if msg.Widget == "" {
				reply = ServerMessage{Type: TypeError, Error: "widget is required"}
				break
			}
			reply = h.dispatch(ctx, sessionID, &session.Event{Widget: msg.Widget, Value: msg.Value})
		case TypeRefresh:
			frame, err := h.mgr.Refresh(ctx, sessionID)
			reply = frameReply(sessionID, frame, err)
		case TypePing:
			reply = ServerMessage{Type: TypePong}
		case TypeTerminate:
			slog.Info("Session terminate requested", "session_id", sessionID)
			if err := h.writeJSON(ctx, ws, ServerMessage{Type: TypeTerminated, SessionID: sessionID}); err != nil {
				slog.Debug("Failed to send terminated acknowledgment", "error", err)
			}
			if err := h.mgr.Close(sessionID); err != nil && !errors.Is(err, runtime.ErrSessionNotFound) {
				slog.Warn("Failed to close session", "error", err, "session_id", sessionID)
			}
			return
		default:
			reply = ServerMessage{Type: TypeError, Error: "unknown message type: " + msg.Type}
		}

		if err := h.writeJSON(ctx, ws, reply); err != nil {
			slog.Debug("WebSocket write failed", "error", err, "session_id", sessionID)
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, sessionID string, ev *session.Event) ServerMessage {
	frame, err := h.mgr.Dispatch(ctx, sessionID, ev)
	return frameReply(sessionID, frame, err)
}

func frameReply(sessionID string, frame *render.Frame, err error) ServerMessage {
	if err != nil {
		return ServerMessage{Type: TypeError, SessionID: sessionID, Error: err.Error()}
	}
	return ServerMessage{Type: TypeFrame, SessionID: sessionID, Frame: frame}
}

func (h *Handler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}

package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/pagelab/internal/domain"
	"github.com/ashureev/pagelab/internal/identity"
	"github.com/ashureev/pagelab/internal/render"
	"github.com/ashureev/pagelab/internal/session"
	"github.com/ashureev/pagelab/internal/store"
	"github.com/ashureev/pagelab/internal/widget"
)

// Options configures a Manager.
type Options struct {
	PageName    string
	Config      render.PageConfig
	QueueSize   int
	MaxReruns   int
	HistorySize int
	Logger      *slog.Logger

	// OnClose, if set, is called after a live session has been torn down.
	OnClose func(sessionID string)
}

func (o Options) withDefaults() Options {
	if o.PageName == "" {
		o.PageName = "main"
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 32
	}
	if o.MaxReruns <= 0 {
		o.MaxReruns = session.DefaultMaxReruns
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 64
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Manager owns every live session of one page.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	page     widget.Page
	repo     store.Repository
	opts     Options
}

// NewManager creates a manager serving page. repo may be nil, in which case
// nothing is recorded.
func NewManager(page widget.Page, repo store.Repository, opts Options) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		page:     page,
		repo:     repo,
		opts:     opts.withDefaults(),
	}
}

// Config returns the default page config.
func (m *Manager) Config() render.PageConfig { return m.opts.Config }

// Open returns the live session with the given ID, creating it and running
// its first pass if it does not exist. An empty sessionID allocates a new
// one. The returned frame is the session's current frame. A live session
// opened by another client is reported as ErrSessionNotFound.
func (m *Manager) Open(ctx context.Context, sessionID, clientID string) (*Session, *render.Frame, error) {
	if sessionID == "" {
		id, err := identity.NewSessionID()
		if err != nil {
			return nil, nil, err
		}
		sessionID = id
	}

	m.mu.Lock()
	if s, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		if s.ClientID() != clientID {
			m.opts.Logger.Warn("Session owned by another client", "session_id", sessionID, "client_id", clientID)
			return nil, nil, ErrSessionNotFound
		}
		if f := s.Frame(); f != nil {
			return s, f, nil
		}
		f, err := s.Dispatch(ctx, nil)
		return s, f, err
	}

	s := newSession(sessionID, clientID, m.page, m.repo, m.opts)
	m.sessions[sessionID] = s
	m.mu.Unlock()

	if m.repo != nil {
		now := time.Now()
		storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		err := m.repo.CreateSession(storeCtx, &domain.SessionRecord{
			SessionID:  sessionID,
			ClientID:   clientID,
			Page:       m.opts.PageName,
			LastSeenAt: now,
			CreatedAt:  now,
		})
		cancel()
		if err != nil {
			m.opts.Logger.Warn("Failed to record session", "session_id", sessionID, "error", err)
		}
	}
	m.opts.Logger.Info("Session opened", "session_id", sessionID, "client_id", clientID)

	frame, err := s.Dispatch(ctx, nil)
	if err != nil {
		return s, nil, err
	}
	return s, frame, nil
}

// Get returns the live session with the given ID.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Owned returns the live session with the given ID if clientID opened it.
// Sessions of other clients are reported as ErrSessionNotFound.
func (m *Manager) Owned(sessionID, clientID string) (*Session, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if s.ClientID() != clientID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Dispatch delivers ev to the session and returns the resulting frame.
func (m *Manager) Dispatch(ctx context.Context, sessionID string, ev *session.Event) (*render.Frame, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.Dispatch(ctx, ev)
}

// Refresh runs a pass without interaction. It never changes session state
// on its own.
func (m *Manager) Refresh(ctx context.Context, sessionID string) (*render.Frame, error) {
	return m.Dispatch(ctx, sessionID, nil)
}

// Snapshot returns a copy of the session's state container.
func (m *Manager) Snapshot(sessionID string) (map[string]any, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.State().Snapshot(), nil
}

// Close tears a session down and discards its state.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if ok {
		s.close()
		m.opts.Logger.Info("Session closed", "session_id", sessionID)
		if m.opts.OnClose != nil {
			m.opts.OnClose(sessionID)
		}
	}

	if m.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := m.repo.EndSession(ctx, sessionID, time.Now()); err != nil {
			return fmt.Errorf("end session %s: %w", sessionID, err)
		}
	}

	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// CloseAll tears down every live session.
func (m *Manager) CloseAll() {
	for _, id := range m.IDs() {
		if err := m.Close(id); err != nil {
			m.opts.Logger.Warn("Failed to close session", "session_id", id, "error", err)
		}
	}
}

// IDs returns the IDs of all live sessions, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IDsOf returns the IDs of the live sessions opened by clientID, sorted.
func (m *Manager) IDsOf(clientID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := []string{}
	for id, s := range m.sessions {
		if s.ClientID() == clientID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// IdleSince returns the IDs of live sessions not seen since cutoff.
func (m *Manager) IdleSince(cutoff time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

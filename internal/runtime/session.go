// Package runtime hosts live sessions: each session owns its state
// container and widget values and processes interaction events one at a
// time on its own goroutine.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/pagelab/internal/domain"
	"github.com/ashureev/pagelab/internal/render"
	"github.com/ashureev/pagelab/internal/session"
	"github.com/ashureev/pagelab/internal/store"
	"github.com/ashureev/pagelab/internal/widget"
)

var (
	// ErrSessionNotFound is returned for an unknown session ID.
	ErrSessionNotFound = errors.New("runtime: session not found")

	// ErrSessionClosed is returned when a session is torn down while an
	// event is waiting or being submitted.
	ErrSessionClosed = errors.New("runtime: session closed")

	// ErrQueueFull is returned when a session already has the maximum
	// number of events waiting behind the running pass.
	ErrQueueFull = errors.New("runtime: event queue full")

	// ErrPassFailed wraps an error returned by page logic.
	ErrPassFailed = errors.New("runtime: pass failed")
)

const storeTimeout = 5 * time.Second

type reply struct {
	frame *render.Frame
	err   error
}

type request struct {
	event *session.Event
	reply chan reply
}

// Session is one live interactive session. Events are served strictly in
// arrival order; no two passes of a session ever overlap.
type Session struct {
	id       string
	clientID string
	page     string

	runner  *session.Runner
	binding *widget.Binding
	history *History
	repo    store.Repository
	logger  *slog.Logger

	queue     chan *request
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	frame    *render.Frame
	lastSeen time.Time
}

func newSession(id, clientID string, page widget.Page, repo store.Repository, opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		clientID: clientID,
		page:     opts.PageName,
		runner:   session.NewRunner(session.NewState(), opts.MaxReruns),
		binding:  widget.Bind(page, opts.Config),
		history:  NewHistory(opts.HistorySize),
		repo:     repo,
		logger:   opts.Logger.With("session_id", id),
		queue:    make(chan *request, opts.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		lastSeen: time.Now(),
	}
	go s.loop()
	return s
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// ClientID returns the ID of the browser that opened the session.
func (s *Session) ClientID() string { return s.clientID }

// State returns the session's state container.
func (s *Session) State() *session.State { return s.runner.State() }

// History returns the ring of recent interactions.
func (s *Session) History() *History { return s.history }

// Frame returns the frame of the latest successful pass.
func (s *Session) Frame() *render.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// LastSeen returns the time of the latest handled request.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Done is closed once the session's loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Dispatch queues ev and waits for the frame of the pass chain it triggers.
// A nil ev runs a pass without interaction. If ctx ends while waiting, the
// event stays queued and will still be processed.
func (s *Session) Dispatch(ctx context.Context, ev *session.Event) (*render.Frame, error) {
	if s.ctx.Err() != nil {
		return nil, ErrSessionClosed
	}
	if ev != nil && ev.At.IsZero() {
		ev.At = time.Now()
	}

	req := &request{event: ev, reply: make(chan reply, 1)}
	select {
	case s.queue <- req:
	default:
		s.logger.Warn("Event rejected, queue full", "widget", widgetOf(ev), "queue_size", cap(s.queue))
		return nil, ErrQueueFull
	}

	select {
	case r := <-req.reply:
		return r.frame, r.err
	case <-s.done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case req := <-s.queue:
			frame, err := s.handle(req.event)
			req.reply <- reply{frame: frame, err: err}
		}
	}
}

func (s *Session) handle(ev *session.Event) (*render.Frame, error) {
	start := time.Now()
	rec := domain.EventRecord{SessionID: s.id, CreatedAt: start}
	if ev != nil {
		rec.Widget = ev.Widget
		rec.Value = ev.Value
	}

	frame, passes, err := s.run(ev)
	rec.Passes = passes
	if err != nil {
		rec.Error = err.Error()
	}

	s.mu.Lock()
	s.lastSeen = time.Now()
	if err == nil {
		s.frame = frame
	}
	s.mu.Unlock()

	if ev != nil {
		s.history.Add(rec)
	}
	s.persist(ev != nil, &rec)

	if err != nil {
		s.logger.Warn("Event handling failed", "widget", rec.Widget, "passes", passes, "error", err)
		return nil, err
	}
	s.logger.Debug("Event handled",
		"widget", rec.Widget,
		"pass", frame.Pass,
		"reruns", frame.Reruns,
		"took", time.Since(start))
	return frame, nil
}

// run applies ev and runs the pass chain. When the chain fails, widget
// values go back to those of the last successful frame.
func (s *Session) run(ev *session.Event) (*render.Frame, int, error) {
	values := s.binding.Values()
	var before map[string]any
	if ev != nil {
		before = values.Snapshot()
		if err := values.Apply(ev); err != nil {
			return nil, 0, err
		}
	}

	res, err := s.runner.Run(s.ctx, ev, s.binding.Run)
	if err != nil {
		if ev != nil {
			values.Restore(before)
		}
		if errors.Is(err, context.Canceled) && s.ctx.Err() != nil {
			return nil, res.Passes, ErrSessionClosed
		}
		return nil, res.Passes, fmt.Errorf("%w: %w", ErrPassFailed, err)
	}
	return s.binding.Frame(s.id, res.Last), res.Passes, nil
}

func (s *Session) persist(logEvent bool, rec *domain.EventRecord) {
	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.repo.TouchSession(ctx, s.id, time.Now(), s.runner.Passes()); err != nil {
		s.logger.Warn("Failed to update session", "error", err)
	}
	if !logEvent {
		return
	}
	if err := s.repo.RecordEvent(ctx, rec); err != nil {
		if errors.Is(err, store.ErrUnknownSession) {
			s.logger.Debug("Session row missing, event not logged", "widget", rec.Widget)
			return
		}
		s.logger.Warn("Failed to record event", "widget", rec.Widget, "error", err)
	}
}

func widgetOf(ev *session.Event) string {
	if ev == nil {
		return ""
	}
	return ev.Widget
}

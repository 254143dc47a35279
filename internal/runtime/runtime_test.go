package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/pagelab/internal/domain"
	"github.com/ashureev/pagelab/internal/session"
	"github.com/ashureev/pagelab/internal/widget"
)

type fakeRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.SessionRecord
	events   []*domain.EventRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[string]*domain.SessionRecord)}
}

func (f *fakeRepo) CreateSession(_ context.Context, s *domain.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *s
	f.sessions[s.SessionID] = &c
	return nil
}

func (f *fakeRepo) GetSession(_ context.Context, id string) (*domain.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[id]
	if s == nil {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (f *fakeRepo) TouchSession(_ context.Context, id string, lastSeen time.Time, passes uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.sessions[id]; s != nil {
		s.LastSeenAt = lastSeen
		s.PassCount = passes
	}
	return nil
}

func (f *fakeRepo) EndSession(_ context.Context, id string, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.sessions[id]; s != nil && s.EndedAt == nil {
		s.EndedAt = &endedAt
	}
	return nil
}

func (f *fakeRepo) GetIdleSessions(_ context.Context, ttl time.Duration) ([]*domain.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.SessionRecord
	for _, s := range f.sessions {
		if s.EndedAt == nil && s.LastSeenAt.Before(time.Now().Add(-ttl)) {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeRepo) RecordEvent(_ context.Context, e *domain.EventRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *e
	f.events = append(f.events, &c)
	return nil
}

func (f *fakeRepo) ListEvents(_ context.Context, id string, _ int) ([]*domain.EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.EventRecord
	for _, e := range f.events {
		if e.SessionID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) PurgeEnded(_ context.Context, _ time.Duration) (int64, error) { return 0, nil }
func (f *fakeRepo) Ping(_ context.Context) error                                { return nil }
func (f *fakeRepo) Close() error                                                { return nil }

func (f *fakeRepo) session(id string) *domain.SessionRecord {
	s, _ := f.GetSession(context.Background(), id)
	return s
}

func counterPage(_ context.Context, ui *widget.UI) error {
	n, err := session.GetOrInitAs(ui.State(), "counter", 0)
	if err != nil {
		return err
	}
	ui.Textf("Count: %d", n)
	if ui.Button("increment", "Increment") {
		ui.State().Set("counter", n+1)
		return ui.Rerun()
	}
	if ui.Button("reset", "Reset") {
		ui.State().Set("counter", 0)
		return ui.Rerun()
	}
	return nil
}

func counterValue(t *testing.T, m *Manager, id string) int {
	t.Helper()
	snap, err := m.Snapshot(id)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	n, _ := snap["counter"].(int)
	return n
}

func TestManager_CounterScenario(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	m := NewManager(counterPage, repo, Options{PageName: "counter"})
	defer m.CloseAll()
	ctx := context.Background()

	_, frame, err := m.Open(ctx, "tab-1", "client-1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if frame.Main[0].Body != "Count: 0" {
		t.Errorf("Expected initial frame to show 0, got %q", frame.Main[0].Body)
	}

	for _, want := range []int{1, 2, 3} {
		frame, err = m.Dispatch(ctx, "tab-1", &session.Event{Widget: "increment"})
		if err != nil {
			t.Fatalf("Dispatch increment failed: %v", err)
		}
		if got := counterValue(t, m, "tab-1"); got != want {
			t.Errorf("Expected counter %d, got %d", want, got)
		}
		if frame.Main[0].Body != fmt.Sprintf("Count: %d", want) {
			t.Errorf("Expected frame from the rerun to show %d, got %q", want, frame.Main[0].Body)
		}
		if frame.Reruns != 1 {
			t.Errorf("Expected increment to rerun once, got %d", frame.Reruns)
		}
	}

	if _, err := m.Dispatch(ctx, "tab-1", &session.Event{Widget: "reset"}); err != nil {
		t.Fatalf("Dispatch reset failed: %v", err)
	}
	if got := counterValue(t, m, "tab-1"); got != 0 {
		t.Errorf("Expected counter 0 after reset, got %d", got)
	}

	rec := repo.session("tab-1")
	if rec == nil || rec.ClientID != "client-1" || rec.Page != "counter" {
		t.Fatalf("Unexpected session record: %+v", rec)
	}
	// Initial pass plus two passes per button event.
	if rec.PassCount != 9 {
		t.Errorf("Expected 9 passes recorded, got %d", rec.PassCount)
	}
	events, _ := repo.ListEvents(ctx, "tab-1", 0)
	if len(events) != 4 {
		t.Errorf("Expected 4 logged events, got %d", len(events))
	}
}

func TestManager_ConcurrentEventsAreSerialized(t *testing.T) {
	t.Parallel()

	m := NewManager(counterPage, nil, Options{QueueSize: 128})
	defer m.CloseAll()
	ctx := context.Background()

	if _, _, err := m.Open(ctx, "tab-1", ""); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Dispatch(ctx, "tab-1", &session.Event{Widget: "increment"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Dispatch failed: %v", err)
	}

	if got := counterValue(t, m, "tab-1"); got != n {
		t.Errorf("Expected counter %d after %d concurrent increments, got %d", n, n, got)
	}
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	t.Parallel()

	m := NewManager(counterPage, nil, Options{})
	defer m.CloseAll()
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, _, err := m.Open(ctx, id, ""); err != nil {
			t.Fatalf("Open(%s) failed: %v", id, err)
		}
	}
	if _, err := m.Dispatch(ctx, "a", &session.Event{Widget: "increment"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if got := counterValue(t, m, "a"); got != 1 {
		t.Errorf("Expected session a counter 1, got %d", got)
	}
	if got := counterValue(t, m, "b"); got != 0 {
		t.Errorf("Expected session b counter 0, got %d", got)
	}
}

func TestManager_RefreshIsIdempotent(t *testing.T) {
	t.Parallel()

	m := NewManager(counterPage, nil, Options{})
	defer m.CloseAll()
	ctx := context.Background()

	if _, _, err := m.Open(ctx, "tab-1", ""); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := m.Dispatch(ctx, "tab-1", &session.Event{Widget: "increment"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := m.Refresh(ctx, "tab-1"); err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
	}
	if got := counterValue(t, m, "tab-1"); got != 1 {
		t.Errorf("Expected refresh passes to leave counter at 1, got %d", got)
	}
}

func TestManager_InvalidEventLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	m := NewManager(counterPage, nil, Options{})
	defer m.CloseAll()
	ctx := context.Background()

	s, _, err := m.Open(ctx, "tab-1", "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	_, err = m.Dispatch(ctx, "tab-1", &session.Event{Widget: "no-such-widget"})
	if !errors.Is(err, widget.ErrUnknownWidget) {
		t.Fatalf("Expected ErrUnknownWidget, got %v", err)
	}
	if got := counterValue(t, m, "tab-1"); got != 0 {
		t.Errorf("Expected counter 0, got %d", got)
	}

	entries := s.History().Entries()
	if len(entries) != 1 || !entries[0].Failed() {
		t.Errorf("Expected one failed history entry, got %+v", entries)
	}
}

func TestManager_PassErrorIsReported(t *testing.T) {
	t.Parallel()

	page := func(_ context.Context, ui *widget.UI) error {
		ui.Button("read", "Read")
		if ui.Button("bad", "Bad") {
			_, err := ui.State().Get("never-set")
			return err
		}
		return nil
	}
	m := NewManager(page, nil, Options{})
	defer m.CloseAll()
	ctx := context.Background()

	if _, _, err := m.Open(ctx, "tab-1", ""); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_, err := m.Dispatch(ctx, "tab-1", &session.Event{Widget: "bad"})
	if !errors.Is(err, ErrPassFailed) || !errors.Is(err, session.ErrUninitializedKey) {
		t.Fatalf("Expected ErrPassFailed wrapping ErrUninitializedKey, got %v", err)
	}

	// The session keeps working after a failed pass.
	if _, err := m.Dispatch(ctx, "tab-1", &session.Event{Widget: "read"}); err != nil {
		t.Errorf("Expected later events to succeed, got %v", err)
	}
}

func TestManager_FailedPassRevertsWidgetValue(t *testing.T) {
	t.Parallel()

	page := func(_ context.Context, ui *widget.UI) error {
		name := ui.TextInput("name", "Name", "Visitor")
		if name == "boom" {
			_, err := ui.State().Get("never-set")
			return err
		}
		ui.Textf("Hello, %s!", name)
		return nil
	}
	m := NewManager(page, nil, Options{})
	defer m.CloseAll()
	ctx := context.Background()

	if _, _, err := m.Open(ctx, "tab-1", ""); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := m.Dispatch(ctx, "tab-1", &session.Event{Widget: "name", Value: "Ana"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if _, err := m.Dispatch(ctx, "tab-1", &session.Event{Widget: "name", Value: "boom"}); !errors.Is(err, ErrPassFailed) {
		t.Fatalf("Expected ErrPassFailed, got %v", err)
	}

	frame, err := m.Refresh(ctx, "tab-1")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := frame.Widget("name").Widget.Value; got != "Ana" {
		t.Errorf("Expected name to revert to Ana, got %v", got)
	}
}

func TestSession_QueueFull(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	page := func(ctx context.Context, ui *widget.UI) error {
		if ui.Button("block", "Block") {
			entered <- struct{}{}
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return nil
	}
	m := NewManager(page, nil, Options{QueueSize: 1})
	defer m.CloseAll()
	ctx := context.Background()

	if _, _, err := m.Open(ctx, "tab-1", ""); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	go func() { _, _ = m.Dispatch(ctx, "tab-1", &session.Event{Widget: "block"}) }()
	<-entered

	s, err := m.Get("tab-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// One slot in the queue, then rejection.
	go func() { _, _ = m.Dispatch(ctx, "tab-1", &session.Event{Widget: "block"}) }()
	deadline := time.Now().Add(2 * time.Second)
	for len(s.queue) < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	_, err = m.Dispatch(ctx, "tab-1", &session.Event{Widget: "block"})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	close(release)
}

func TestManager_Close(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	m := NewManager(counterPage, repo, Options{})
	ctx := context.Background()

	s, _, err := m.Open(ctx, "tab-1", "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := m.Close("tab-1"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected session loop to exit")
	}
	if _, err := s.Dispatch(ctx, nil); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
	if _, err := m.Dispatch(ctx, "tab-1", nil); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if rec := repo.session("tab-1"); rec == nil || rec.IsActive() {
		t.Errorf("Expected session record to be ended, got %+v", rec)
	}
	if err := m.Close("tab-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected second Close to report ErrSessionNotFound, got %v", err)
	}

	// Reopening the same ID starts from empty state.
	if _, _, err := m.Open(ctx, "tab-1", ""); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer m.CloseAll()
	if got := counterValue(t, m, "tab-1"); got != 0 {
		t.Errorf("Expected fresh counter after reopen, got %d", got)
	}
}

func TestManager_OpenAllocatesID(t *testing.T) {
	t.Parallel()

	m := NewManager(counterPage, nil, Options{})
	defer m.CloseAll()

	s, frame, err := m.Open(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.ID() == "" || frame.SessionID != s.ID() {
		t.Errorf("Expected allocated ID on session and frame, got %q / %q", s.ID(), frame.SessionID)
	}

	again, _, err := m.Open(context.Background(), s.ID(), "")
	if err != nil {
		t.Fatalf("Reattach failed: %v", err)
	}
	if again != s {
		t.Error("Expected Open with an existing ID to attach to the live session")
	}
}

func TestReaper_ClosesIdleSessions(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	m := NewManager(counterPage, repo, Options{})
	defer m.CloseAll()
	ctx := context.Background()

	for _, id := range []string{"idle", "busy"} {
		if _, _, err := m.Open(ctx, id, ""); err != nil {
			t.Fatalf("Open(%s) failed: %v", id, err)
		}
	}

	idle, _ := m.Get("idle")
	idle.mu.Lock()
	idle.lastSeen = time.Now().Add(-2 * time.Hour)
	idle.mu.Unlock()

	// Orphaned row from an earlier process.
	old := time.Now().Add(-3 * time.Hour)
	_ = repo.CreateSession(ctx, &domain.SessionRecord{SessionID: "orphan", LastSeenAt: old, CreatedAt: old})

	closed := reapIdleSessions(ctx, repo, m, time.Hour)
	if closed != 2 {
		t.Errorf("Expected 2 sessions reaped, got %d", closed)
	}
	if _, err := m.Get("idle"); !errors.Is(err, ErrSessionNotFound) {
		t.Error("Expected idle session to be closed")
	}
	if _, err := m.Get("busy"); err != nil {
		t.Errorf("Expected busy session to survive, got %v", err)
	}
	if rec := repo.session("orphan"); rec.IsActive() {
		t.Error("Expected orphaned record to be ended")
	}
}

func TestHistory_Wraps(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(domain.EventRecord{Widget: fmt.Sprintf("w%d", i)})
	}
	if h.Len() != 3 {
		t.Fatalf("Expected 3 entries, got %d", h.Len())
	}
	entries := h.Entries()
	for i, want := range []string{"w2", "w3", "w4"} {
		if entries[i].Widget != want {
			t.Errorf("Entry %d: expected %s, got %s", i, want, entries[i].Widget)
		}
	}
}

package session

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestState_GetOrInitDoesNotOverwrite(t *testing.T) {
	t.Parallel()

	s := NewState()
	if got := s.GetOrInit("counter", 0); got != 0 {
		t.Fatalf("Expected 0 on first init, got %v", got)
	}
	s.Set("counter", 5)

	if got := s.GetOrInit("counter", 0); got != 5 {
		t.Errorf("Expected existing value 5, got %v", got)
	}
	if got := s.GetOrInit("counter", 0); got != 5 {
		t.Errorf("Expected repeated init to return 5, got %v", got)
	}
}

func TestState_GetUninitialized(t *testing.T) {
	t.Parallel()

	s := NewState()
	_, err := s.Get("missing")
	if !errors.Is(err, ErrUninitializedKey) {
		t.Fatalf("Expected ErrUninitializedKey, got %v", err)
	}

	s.Set("missing", "now set")
	v, err := s.Get("missing")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if v != "now set" {
		t.Errorf("Expected %q, got %v", "now set", v)
	}

	s.Delete("missing")
	if s.Has("missing") {
		t.Error("Expected key to be absent after Delete")
	}
}

func TestState_TypedAccessors(t *testing.T) {
	t.Parallel()

	s := NewState()
	n, err := GetOrInitAs(s, "counter", 0)
	if err != nil || n != 0 {
		t.Fatalf("Expected (0, nil), got (%d, %v)", n, err)
	}

	s.Set("counter", "three")
	if _, err := GetAs[int](s, "counter"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Expected ErrTypeMismatch, got %v", err)
	}
	if _, err := GetOrInitAs(s, "counter", 0); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Expected ErrTypeMismatch from GetOrInitAs, got %v", err)
	}
	if _, err := GetAs[int](s, "other"); !errors.Is(err, ErrUninitializedKey) {
		t.Errorf("Expected ErrUninitializedKey, got %v", err)
	}
}

func TestState_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	s := NewState()
	s.Set("a", 1)
	s.Set("b", "two")

	snap := s.Snapshot()
	want := map[string]any{"a": 1, "b": "two"}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Fatalf("Snapshot mismatch (-want +got):\n%s", diff)
	}

	snap["a"] = 100
	if v, _ := s.Get("a"); v != 1 {
		t.Errorf("Expected state to be unaffected by snapshot mutation, got %v", v)
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 keys, got %d", s.Len())
	}
}

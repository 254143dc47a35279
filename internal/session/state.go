// Package session provides the per-session state container and the pass
// execution model: page logic runs top to bottom on every interaction, and
// values written to State survive into every later pass of the same session.
package session

import (
	"errors"
	"fmt"
	"maps"
	"sync"
)

var (
	// ErrUninitializedKey is returned when a key is read before any pass
	// initialized it with GetOrInit or Set.
	ErrUninitializedKey = errors.New("session: key read before initialization")

	// ErrTypeMismatch is returned by the typed accessors when the stored value
	// has a different type than the one requested.
	ErrTypeMismatch = errors.New("session: stored value has unexpected type")
)

// State is a mapping from string keys to arbitrary values owned by exactly
// one session. It is created empty and discarded when the session ends.
//
// Page logic only touches State from the session's own pass loop. The lock
// exists so diagnostics (Snapshot) can read it from other goroutines.
type State struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewState creates an empty state container.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// GetOrInit returns the value stored under key. If the key is absent it
// stores def first and returns it. An existing value is never overwritten.
func (s *State) GetOrInit(key string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.values[key]; ok {
		return v
	}
	s.values[key] = def
	return def
}

// Get returns the value stored under key, or ErrUninitializedKey if the key
// was never written.
func (s *State) Get(key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUninitializedKey, key)
	}
	return v, nil
}

// Set overwrites the value stored under key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Has reports whether key has been written.
func (s *State) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// Delete removes key. A later Get fails until the key is initialized again.
func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Len returns the number of stored keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a shallow copy of all stored values.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// GetOrInitAs is the typed form of State.GetOrInit.
func GetOrInitAs[T any](s *State, key string, def T) (T, error) {
	v := s.GetOrInit(key, def)
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %q holds %T, want %T", ErrTypeMismatch, key, v, zero)
	}
	return typed, nil
}

// GetAs is the typed form of State.Get.
func GetAs[T any](s *State, key string) (T, error) {
	var zero T
	v, err := s.Get(key)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q holds %T, want %T", ErrTypeMismatch, key, v, zero)
	}
	return typed, nil
}

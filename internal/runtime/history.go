package runtime

import (
	"sync"

	"github.com/ashureev/pagelab/internal/domain"
)

// History is a fixed-size ring of the most recent interactions of a session.
// When full, the oldest entry is overwritten.
type History struct {
	mu   sync.RWMutex
	buf  []domain.EventRecord
	size int
	head int // next write position
	full bool
}

// NewHistory creates a ring holding up to size entries. Default size is 64.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 64
	}
	return &History{
		buf:  make([]domain.EventRecord, size),
		size: size,
	}
}

// Add appends an entry, overwriting the oldest one when full.
func (h *History) Add(e domain.EventRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.head] = e
	h.head = (h.head + 1) % h.size
	if h.head == 0 {
		h.full = true
	}
}

// Entries returns the stored entries, oldest first.
func (h *History) Entries() []domain.EventRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.full {
		out := make([]domain.EventRecord, h.head)
		copy(out, h.buf[:h.head])
		return out
	}
	out := make([]domain.EventRecord, 0, h.size)
	out = append(out, h.buf[h.head:]...)
	out = append(out, h.buf[:h.head]...)
	return out
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return h.size
	}
	return h.head
}

// Package domain contains core domain types for pagelab.
package domain

import (
	"time"
)

// SessionRecord is the registry entry for one interactive session. It tracks
// lifecycle only; the session's state container lives in memory.
type SessionRecord struct {
	SessionID  string     `json:"session_id"`
	ClientID   string     `json:"client_id,omitempty"`
	Page       string     `json:"page"`
	PassCount  uint64     `json:"pass_count"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	CreatedAt  time.Time  `json:"created_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// IsActive returns true if the session has not been torn down.
func (s *SessionRecord) IsActive() bool {
	return s.EndedAt == nil
}

// IdleFor returns how long the session has gone without an interaction.
func (s *SessionRecord) IdleFor(now time.Time) time.Duration {
	if d := now.Sub(s.LastSeenAt); d > 0 {
		return d
	}
	return 0
}

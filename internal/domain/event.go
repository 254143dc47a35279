package domain

import "time"

// EventRecord is one logged interaction and its outcome.
type EventRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Widget    string    `json:"widget"`
	Value     any       `json:"value,omitempty"`
	Passes    int       `json:"passes"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Failed returns true if the event's pass chain ended in an error.
func (e *EventRecord) Failed() bool {
	return e.Error != ""
}

// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/pagelab/internal/domain"
)

// ErrUnknownSession is returned when an event is recorded for a session
// that has no record.
var ErrUnknownSession = errors.New("store: unknown session")

// Drivers accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Open creates a repository for the named driver.
func Open(driver, dbPath string) (Repository, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLite(dbPath)
	case DriverBolt:
		return NewBolt(dbPath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// Repository defines the interface for the session registry and the
// interaction log. Session state itself is never persisted.
type Repository interface {
	// CreateSession inserts a session record, restarting any earlier record with the same ID.
	CreateSession(ctx context.Context, session *domain.SessionRecord) error

	// GetSession retrieves a session record, or nil if it does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error)

	// TouchSession updates last_seen_at and the pass counter of a session.
	TouchSession(ctx context.Context, sessionID string, lastSeen time.Time, passCount uint64) error

	// EndSession marks a session as torn down.
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) error

	// GetIdleSessions retrieves active sessions with no interaction within ttl.
	GetIdleSessions(ctx context.Context, ttl time.Duration) ([]*domain.SessionRecord, error)

	// RecordEvent appends an interaction to the log.
	RecordEvent(ctx context.Context, event *domain.EventRecord) error

	// ListEvents returns the most recent events of a session, oldest first.
	ListEvents(ctx context.Context, sessionID string, limit int) ([]*domain.EventRecord, error)

	// PurgeEnded removes sessions ended before olderThan along with their events.
	PurgeEnded(ctx context.Context, olderThan time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

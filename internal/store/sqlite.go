package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/pagelab/internal/domain"
	"github.com/ashureev/pagelab/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writes to avoid SQLITE_BUSY between the pass loops and the reaper
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		client_id TEXT,
		page TEXT NOT NULL,
		pass_count INTEGER NOT NULL DEFAULT 0,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		ended_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen_at) WHERE ended_at IS NULL;

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		widget TEXT NOT NULL,
		value_json TEXT,
		passes INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession inserts a session record. Reusing the ID of an earlier
// session restarts its record and clears its event log; nothing of the old
// session carries over.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.SessionRecord) error {
	query := `
	INSERT INTO sessions (session_id, client_id, page, pass_count, last_seen_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		client_id = excluded.client_id,
		page = excluded.page,
		pass_count = excluded.pass_count,
		last_seen_at = excluded.last_seen_at,
		created_at = excluded.created_at,
		ended_at = NULL`

	var clientID interface{}
	if session.ClientID != "" {
		clientID = session.ClientID
	}

	return s.withRetry(ctx, "create session", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, session.SessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query,
			session.SessionID, clientID, session.Page, session.PassCount,
			session.LastSeenAt.Unix(), session.CreatedAt.Unix(),
		); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// GetSession retrieves a session record by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	query := `
		SELECT session_id, client_id, page, pass_count, last_seen_at, created_at, ended_at
		FROM sessions WHERE session_id = ?`

	rec, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return rec, nil
}

// TouchSession updates last_seen_at and pass_count for a session.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, lastSeen time.Time, passCount uint64) error {
	query := `UPDATE sessions SET last_seen_at = ?, pass_count = ? WHERE session_id = ?`

	var rows int64
	err := s.withRetry(ctx, "touch session", func() error {
		result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), passCount, sessionID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		slog.Warn("TouchSession affected 0 rows", "session_id", sessionID)
	}
	return nil
}

// EndSession marks a session as ended. Ending an already ended session is a no-op.
func (s *SQLiteStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	query := `UPDATE sessions SET ended_at = ? WHERE session_id = ? AND ended_at IS NULL`
	return s.withRetry(ctx, "end session", func() error {
		_, err := s.db.ExecContext(ctx, query, endedAt.Unix(), sessionID)
		return err
	})
}

// GetIdleSessions retrieves active sessions whose last interaction is older than ttl.
func (s *SQLiteStore) GetIdleSessions(ctx context.Context, ttl time.Duration) ([]*domain.SessionRecord, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `
		SELECT session_id, client_id, page, pass_count, last_seen_at, created_at, ended_at
		FROM sessions WHERE ended_at IS NULL AND last_seen_at < ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query idle sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close idle sessions rows", "error", closeErr)
		}
	}()

	var sessions []*domain.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idle session row: %w", err)
		}
		sessions = append(sessions, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle sessions: %w", err)
	}

	return sessions, nil
}

// RecordEvent appends an interaction to the event log.
func (s *SQLiteStore) RecordEvent(ctx context.Context, event *domain.EventRecord) error {
	query := `
	INSERT INTO events (session_id, widget, value_json, passes, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	valueJSON, err := encodeValue(event.Value)
	if err != nil {
		return fmt.Errorf("encode event value: %w", err)
	}

	var errText interface{}
	if event.Error != "" {
		errText = event.Error
	}

	err = s.withRetry(ctx, "record event", func() error {
		result, err := s.db.ExecContext(ctx, query,
			event.SessionID, event.Widget, valueJSON, event.Passes, errText, event.CreatedAt.Unix(),
		)
		if err != nil {
			return err
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		event.ID = id
		return nil
	})
	if shared.IsSQLiteConstraintError(err) {
		return fmt.Errorf("%w: %s: %w", ErrUnknownSession, event.SessionID, err)
	}
	return err
}

// ListEvents returns up to limit of the most recent events, oldest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, sessionID string, limit int) ([]*domain.EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, session_id, widget, value_json, passes, error, created_at FROM (
			SELECT id, session_id, widget, value_json, passes, error, created_at
			FROM events WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close events rows", "error", closeErr)
		}
	}()

	var events []*domain.EventRecord
	for rows.Next() {
		var ev domain.EventRecord
		var valueJSON, errText sql.NullString
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Widget, &valueJSON, &ev.Passes, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		if valueJSON.Valid {
			v, err := decodeValue(valueJSON.String)
			if err != nil {
				return nil, fmt.Errorf("decode event %d value: %w", ev.ID, err)
			}
			ev.Value = v
		}
		ev.Error = errText.String
		ev.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// PurgeEnded removes sessions that ended more than olderThan ago. Their
// events go with them through the foreign key cascade.
func (s *SQLiteStore) PurgeEnded(ctx context.Context, olderThan time.Duration) (int64, error) {
	threshold := time.Now().Add(-olderThan).Unix()
	query := `DELETE FROM sessions WHERE ended_at IS NOT NULL AND ended_at < ?`

	var deleted int64
	err := s.withRetry(ctx, "purge ended sessions", func() error {
		result, err := s.db.ExecContext(ctx, query, threshold)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.SessionRecord, error) {
	var rec domain.SessionRecord
	var clientID sql.NullString
	var endedAt sql.NullInt64
	var lastSeen, createdAt int64

	if err := row.Scan(
		&rec.SessionID, &clientID, &rec.Page, &rec.PassCount,
		&lastSeen, &createdAt, &endedAt,
	); err != nil {
		return nil, err
	}

	rec.ClientID = clientID.String
	rec.LastSeenAt = time.Unix(lastSeen, 0)
	rec.CreatedAt = time.Unix(createdAt, 0)
	if endedAt.Valid {
		ts := time.Unix(endedAt.Int64, 0)
		rec.EndedAt = &ts
	}
	return &rec, nil
}

// withRetry runs a write under the write lock, retrying SQLITE_BUSY errors
// with exponential backoff.
func (s *SQLiteStore) withRetry(ctx context.Context, op string, fn func() error) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		s.writeMu.Lock()
		err = fn()
		s.writeMu.Unlock()
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // exponential backoff: 50ms, 100ms, 200ms
		slog.Debug("Database locked, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

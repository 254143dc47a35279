package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ashureev/pagelab/internal/domain"
)

const (
	bucketSessions = "sessions"
	bucketEvents   = "events"
)

// Buckets created when a bolt database is opened.
var initBolt = map[string]func(tx *bolt.Tx) error{
	"initialize sessions table": func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSessions))
		return err
	},
	"initialize events table": func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketEvents))
		return err
	},
}

// BoltStore implements Repository on a single bbolt file. Each session's
// events live in a nested bucket of the events bucket, keyed by a global
// sequence number.
type BoltStore struct {
	db *bolt.DB
}

type boltSession struct {
	ClientID   string `json:"client_id,omitempty"`
	Page       string `json:"page"`
	PassCount  uint64 `json:"pass_count"`
	LastSeenAt int64  `json:"last_seen_at"`
	CreatedAt  int64  `json:"created_at"`
	EndedAt    *int64 `json:"ended_at,omitempty"`
}

type boltEvent struct {
	Widget    string  `json:"widget"`
	Value     *string `json:"value,omitempty"`
	Passes    int     `json:"passes"`
	Error     string  `json:"error,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// NewBolt creates a new bbolt-backed repository.
func NewBolt(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for name, fn := range initBolt {
			if err := fn(tx); err != nil {
				return fmt.Errorf("failed to %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func marshalSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func unmarshalSeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

// Ping verifies the database is open.
func (s *BoltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(bucketSessions)) == nil {
			return fmt.Errorf("sessions bucket missing")
		}
		return nil
	})
}

// Close closes the database.
func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func getSession(b *bolt.Bucket, id string) (*boltSession, error) {
	v := b.Get([]byte(id))
	if v == nil {
		return nil, nil
	}
	var rec boltSession
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &rec, nil
}

func putSession(b *bolt.Bucket, id string, rec *boltSession) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}
	return b.Put([]byte(id), data)
}

func (r *boltSession) domain(id string) *domain.SessionRecord {
	out := &domain.SessionRecord{
		SessionID:  id,
		ClientID:   r.ClientID,
		Page:       r.Page,
		PassCount:  r.PassCount,
		LastSeenAt: time.Unix(r.LastSeenAt, 0),
		CreatedAt:  time.Unix(r.CreatedAt, 0),
	}
	if r.EndedAt != nil {
		ts := time.Unix(*r.EndedAt, 0)
		out.EndedAt = &ts
	}
	return out
}

// CreateSession inserts a session record. Reusing the ID of an earlier
// session restarts its record and drops its event bucket.
func (s *BoltStore) CreateSession(ctx context.Context, session *domain.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		events := tx.Bucket([]byte(bucketEvents))
		if events.Bucket([]byte(session.SessionID)) != nil {
			if err := events.DeleteBucket([]byte(session.SessionID)); err != nil {
				return fmt.Errorf("drop events of %s: %w", session.SessionID, err)
			}
		}
		return putSession(tx.Bucket([]byte(bucketSessions)), session.SessionID, &boltSession{
			ClientID:   session.ClientID,
			Page:       session.Page,
			PassCount:  session.PassCount,
			LastSeenAt: session.LastSeenAt.Unix(),
			CreatedAt:  session.CreatedAt.Unix(),
		})
	})
}

// GetSession retrieves a session record by ID.
func (s *BoltStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *domain.SessionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, err := getSession(tx.Bucket([]byte(bucketSessions)), sessionID)
		if err != nil || rec == nil {
			return err
		}
		out = rec.domain(sessionID)
		return nil
	})
	return out, err
}

func (s *BoltStore) updateSession(ctx context.Context, sessionID string, fn func(*boltSession)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions))
		rec, err := getSession(b, sessionID)
		if err != nil || rec == nil {
			return err
		}
		fn(rec)
		return putSession(b, sessionID, rec)
	})
}

// TouchSession updates last_seen_at and pass_count for a session.
func (s *BoltStore) TouchSession(ctx context.Context, sessionID string, lastSeen time.Time, passCount uint64) error {
	return s.updateSession(ctx, sessionID, func(r *boltSession) {
		r.LastSeenAt = lastSeen.Unix()
		r.PassCount = passCount
	})
}

// EndSession marks a session as ended. Ending an already ended session is a no-op.
func (s *BoltStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	return s.updateSession(ctx, sessionID, func(r *boltSession) {
		if r.EndedAt == nil {
			ts := endedAt.Unix()
			r.EndedAt = &ts
		}
	})
}

// GetIdleSessions retrieves active sessions whose last interaction is older than ttl.
func (s *BoltStore) GetIdleSessions(ctx context.Context, ttl time.Duration) ([]*domain.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	threshold := time.Now().Add(-ttl).Unix()

	var sessions []*domain.SessionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).ForEach(func(k, v []byte) error {
			var rec boltSession
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode session %s: %w", k, err)
			}
			if rec.EndedAt == nil && rec.LastSeenAt < threshold {
				sessions = append(sessions, rec.domain(string(k)))
			}
			return nil
		})
	})
	return sessions, err
}

// RecordEvent appends an interaction to the event log.
func (s *BoltStore) RecordEvent(ctx context.Context, event *domain.EventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded, err := encodeValue(event.Value)
	if err != nil {
		return fmt.Errorf("encode event value: %w", err)
	}
	rec := boltEvent{
		Widget:    event.Widget,
		Passes:    event.Passes,
		Error:     event.Error,
		CreatedAt: event.CreatedAt.Unix(),
	}
	if str, ok := encoded.(string); ok {
		rec.Value = &str
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(bucketSessions)).Get([]byte(event.SessionID)) == nil {
			return fmt.Errorf("%w: %s", ErrUnknownSession, event.SessionID)
		}
		events := tx.Bucket([]byte(bucketEvents))
		seq, err := events.NextSequence()
		if err != nil {
			return err
		}
		b, err := events.CreateBucketIfNotExists([]byte(event.SessionID))
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put(marshalSeq(seq), data); err != nil {
			return err
		}
		event.ID = int64(seq)
		return nil
	})
}

// ListEvents returns up to limit of the most recent events, oldest first.
func (s *BoltStore) ListEvents(ctx context.Context, sessionID string, limit int) ([]*domain.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	var events []*domain.EventRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketEvents)).Bucket([]byte(sessionID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(events) < limit; k, v = c.Prev() {
			var rec boltEvent
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode event %d: %w", unmarshalSeq(k), err)
			}
			ev := &domain.EventRecord{
				ID:        int64(unmarshalSeq(k)),
				SessionID: sessionID,
				Widget:    rec.Widget,
				Passes:    rec.Passes,
				Error:     rec.Error,
				CreatedAt: time.Unix(rec.CreatedAt, 0),
			}
			if rec.Value != nil {
				val, err := decodeValue(*rec.Value)
				if err != nil {
					return fmt.Errorf("decode event %d value: %w", ev.ID, err)
				}
				ev.Value = val
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// PurgeEnded removes sessions that ended more than olderThan ago, together
// with their events.
func (s *BoltStore) PurgeEnded(ctx context.Context, olderThan time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	threshold := time.Now().Add(-olderThan).Unix()

	var deleted int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket([]byte(bucketSessions))
		events := tx.Bucket([]byte(bucketEvents))

		var expired [][]byte
		err := sessions.ForEach(func(k, v []byte) error {
			var rec boltSession
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode session %s: %w", k, err)
			}
			if rec.EndedAt != nil && *rec.EndedAt < threshold {
				expired = append(expired, bytes.Clone(k))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := sessions.Delete(k); err != nil {
				return err
			}
			if events.Bucket(k) != nil {
				if err := events.DeleteBucket(k); err != nil {
					return err
				}
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

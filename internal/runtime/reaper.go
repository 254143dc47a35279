package runtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/pagelab/internal/store"
)

// endedRetention is how long ended session rows and their events are kept.
const endedRetention = 7 * 24 * time.Hour

// StartReaper runs a background goroutine that periodically tears down
// sessions idle for longer than ttl and purges old ended session rows.
func StartReaper(ctx context.Context, repo store.Repository, mgr *Manager, ttl, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Reaper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				reapIdleSessions(ctx, repo, mgr, ttl)
			case <-ctx.Done():
				slog.Info("Reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func reapIdleSessions(ctx context.Context, repo store.Repository, mgr *Manager, ttl time.Duration) int {
	idle := make(map[string]struct{})
	for _, id := range mgr.IdleSince(time.Now().Add(-ttl)) {
		idle[id] = struct{}{}
	}

	// Rows left active by a previous process have no live session.
	if repo != nil {
		records, err := repo.GetIdleSessions(ctx, ttl)
		if err != nil {
			slog.Error("Reaper failed to get idle sessions", "error", err)
		}
		for _, rec := range records {
			if s, err := mgr.Get(rec.SessionID); err == nil && s.LastSeen().After(time.Now().Add(-ttl)) {
				continue
			}
			idle[rec.SessionID] = struct{}{}
		}
	}

	if len(idle) == 0 {
		return 0
	}
	slog.Info("Reaper found idle sessions", "count", len(idle))

	for id := range idle {
		err := mgr.Close(id)
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			slog.Warn("Reaper failed to close session", "session_id", id, "error", err)
		}
	}

	if repo != nil {
		if deleted, err := repo.PurgeEnded(ctx, endedRetention); err != nil {
			slog.Error("Reaper failed to purge ended sessions", "error", err)
		} else if deleted > 0 {
			slog.Info("Reaper purged ended sessions", "count", deleted)
		}
	}

	slog.Info("Reaper cleanup completed", "closed", len(idle))
	return len(idle)
}

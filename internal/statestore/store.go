package statestore

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

	_ "modernc.org/sqlite"

	"github.com/itsdevcoffee/hyprvoice/internal/config"
)

// Marker is the persisted record of the active session. It is advisory:
// the owning process may have died without clearing it, which is why
// readers must check owner liveness.
type Marker struct {
	SessionID string
	OwnerPID  int
	StartedAt time.Time
}

// Event is one entry in a session's timeline.
type Event struct {
	ID        int64
	SessionID string
	Type      string
	Detail    string
	CreatedAt time.Time
}

// Timeline event types.
const (
	EventStarted        = "started"
	EventStopped        = "stopped"
	EventTimeout        = "timeout"
	EventTranscribed    = "transcribed"
	EventStaleRecovered = "stale_recovered"
	EventError          = "error"
)

// Store persists the session marker and timeline in SQLite. In ephemeral
// retention mode the marker lives in memory and events are dropped.
type Store struct {
	db    *sql.DB
	cfg   config.StateStoreConfig
	log   *slog.Logger
	clock func() time.Time

	mu        sync.Mutex
	memMarker *Marker
}

// Open initializes the store according to config.
func Open(ctx context.Context, cfg config.StateStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("state store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("state store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS session_marker (
    slot INTEGER PRIMARY KEY CHECK (slot = 1),
    session_id TEXT NOT NULL,
    owner_pid INTEGER NOT NULL,
    started_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS session_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    detail TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_events_session_created ON session_events(session_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutMarker records the active session, replacing any previous marker.
func (s *Store) PutMarker(ctx context.Context, m Marker) error {
	if s.db == nil {
		s.mu.Lock()
		snap := m
		s.memMarker = &snap
		s.mu.Unlock()
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_marker(slot, session_id, owner_pid, started_at)
		 VALUES(1, ?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET
		   session_id=excluded.session_id,
		   owner_pid=excluded.owner_pid,
		   started_at=excluded.started_at`,
		m.SessionID, m.OwnerPID, m.StartedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ActiveMarker returns the persisted marker, or nil when no session is
// recorded.
func (s *Store) ActiveMarker(ctx context.Context) (*Marker, error) {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.memMarker == nil {
			return nil, nil
		}
		snap := *s.memMarker
		return &snap, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, owner_pid, started_at FROM session_marker WHERE slot = 1`)
	var m Marker
	var started string
	if err := row.Scan(&m.SessionID, &m.OwnerPID, &started); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, started); err == nil {
		m.StartedAt = ts
	}
	return &m, nil
}

// ClearMarker removes the active-session record.
func (s *Store) ClearMarker(ctx context.Context) error {
	if s.db == nil {
		s.mu.Lock()
		s.memMarker = nil
		s.mu.Unlock()
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_marker WHERE slot = 1`)
	return err
}

// AppendEvent writes a timeline entry.
func (s *Store) AppendEvent(ctx context.Context, evt Event) error {
	if s.db == nil {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_events(session_id, event_type, detail, created_at)
		 VALUES(?, ?, ?, ?)`,
		evt.SessionID, evt.Type, evt.Detail, evt.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ListSessionEvents retrieves up to limit events for a session, oldest first.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, detail, created_at
		 FROM session_events WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &e.Detail, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies the configured retention to the timeline.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM session_events WHERE created_at < ?`, cutoff.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM session_events WHERE session_id NOT IN (
			SELECT session_id FROM (
				SELECT session_id, MAX(created_at) AS latest
				FROM session_events GROUP BY session_id
				ORDER BY latest DESC LIMIT ?
			)
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

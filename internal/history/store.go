// Package history persists fired alerts to a small SQLite database and keeps
// only the most recent entries, so the UI can show what happened without the
// file growing forever.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/thermawatch/agent/pkg/types"
)

// DefaultCapacity is how many alert events are retained.
const DefaultCapacity = 100

const schema = `
CREATE TABLE IF NOT EXISTS alert_history (
	rowid      INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL,
	device     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	value      REAL NOT NULL,
	threshold  REAL NOT NULL,
	message    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// Store is a bounded, append-only record of alert events. Once capacity is
// reached the oldest entries are evicted as new ones arrive.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	cap int
}

// Open creates or opens the history database at path.
func Open(ctx context.Context, path string, capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db, cap: capacity}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one alert event, evicting the oldest entries beyond the
// retention capacity.
func (s *Store) Append(ctx context.Context, ev types.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alert_history (id, device, kind, value, threshold, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, string(ev.Device), string(ev.Kind), ev.Reading, ev.Threshold,
		ev.Message, ev.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert alert history: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM alert_history WHERE rowid NOT IN (
			SELECT rowid FROM alert_history ORDER BY rowid DESC LIMIT ?
		)
	`, s.cap)
	if err != nil {
		return fmt.Errorf("trim alert history: %w", err)
	}
	return tx.Commit()
}

// Recent returns up to limit events, newest first. limit <= 0 means the full
// retained window.
func (s *Store) Recent(ctx context.Context, limit int) ([]types.AlertEvent, error) {
	if limit <= 0 || limit > s.cap {
		limit = s.cap
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device, kind, value, threshold, message, created_at
		FROM alert_history ORDER BY rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var events []types.AlertEvent
	for rows.Next() {
		var ev types.AlertEvent
		var device, kind, created string
		if err := rows.Scan(&ev.ID, &device, &kind, &ev.Reading, &ev.Threshold,
			&ev.Message, &created); err != nil {
			return nil, fmt.Errorf("scan alert history: %w", err)
		}
		ev.Device = types.Device(device)
		ev.Kind = types.AlertKind(kind)
		ev.Timestamp, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse history timestamp: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Len reports how many events are currently retained.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_history").Scan(&n); err != nil {
		return 0, fmt.Errorf("count alert history: %w", err)
	}
	return n, nil
}

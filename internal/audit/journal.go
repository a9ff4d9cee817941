// Package audit keeps a journal of schedule mutations and exports it to Excel.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"timeplanner/internal/events"
)

// Entry is one journaled event.
type Entry struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"eventId"`
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	SessionID string
	Type      string
	Since     time.Time
	Limit     int
}

// Journal stores events in SQLite.
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open creates the database file and the journal table if they don't exist.
func Open(path string, logger *zerolog.Logger) (*Journal, error) {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "audit").Logger()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	j := &Journal{db: db, logger: l}
	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	l.Info().Str("path", path).Msg("Audit journal initialized")
	return j, nil
}

func (j *Journal) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			session_id TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_session ON audit_events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_created ON audit_events(created_at)`,
	}
	for _, q := range queries {
		if _, err := j.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Record stores an event. Recording the same event twice is a no-op.
func (j *Journal) Record(ctx context.Context, e events.Event) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO audit_events (event_id, type, session_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.Source, string(e.Payload), createdAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record event %s: %w", e.ID, err)
	}
	return nil
}

// Handler adapts Record to the event bus.
func (j *Journal) Handler() events.EventHandler {
	return func(e events.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return j.Record(ctx, e)
	}
}

// List returns matching entries, oldest first.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT id, event_id, type, session_id, payload, created_at FROM audit_events WHERE 1=1`
	var args []any
	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since.UTC().UnixNano())
	}
	query += ` ORDER BY created_at, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.EventID, &e.Type, &e.SessionID, &e.Payload, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes entries created before cutoff.
func (j *Journal) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM audit_events WHERE created_at < ?`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Snapshot writes a consistent copy of the database to path, which must not
// exist yet.
func (j *Journal) Snapshot(ctx context.Context, path string) error {
	if _, err := j.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}
	return nil
}

func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

func (j *Journal) Close() error {
	return j.db.Close()
}

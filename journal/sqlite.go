package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink persists journal events to a SQLite database so scenarios can
// be inspected and replayed after the process exits.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) an event database at path. The
// path ":memory:" yields a throwaway in-memory database.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single connection keeps in-memory databases coherent and serializes
	// writers the way the core expects.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate creates the schema if it doesn't exist.
func (s *SQLiteSink) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER NOT NULL PRIMARY KEY,
		stream TEXT NOT NULL,
		kind TEXT NOT NULL,
		actor TEXT NOT NULL,
		at TEXT NOT NULL,
		attrs TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_stream ON events(stream);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Write appends events to the database in one transaction.
func (s *SQLiteSink) Write(events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO events (seq, stream, kind, actor, at, attrs) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		attrs, err := json.Marshal(e.Attrs)
		if err != nil {
			return fmt.Errorf("marshal attrs for seq %d: %w", e.Seq, err)
		}
		if _, err := stmt.Exec(e.Seq, e.Stream, e.Kind, e.Actor, e.At.UTC().Format(time.RFC3339Nano), string(attrs)); err != nil {
			return fmt.Errorf("insert seq %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

// Load reads all stored events in sequence order.
func (s *SQLiteSink) Load() ([]Event, error) {
	rows, err := s.db.Query(`SELECT seq, stream, kind, actor, at, attrs FROM events ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var at, attrs string
		if err := rows.Scan(&e.Seq, &e.Stream, &e.Kind, &e.Actor, &at, &attrs); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", at, err)
		}
		if attrs != "" && attrs != "null" {
			if err := json.Unmarshal([]byte(attrs), &e.Attrs); err != nil {
				return nil, fmt.Errorf("unmarshal attrs for seq %d: %w", e.Seq, err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

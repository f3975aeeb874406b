package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder хранит журнал в SQLite (чистый Go драйвер modernc).
type SQLiteRecorder struct {
	db *sql.DB
}

func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// один писатель: SQLite не любит параллельные записи
	db.SetMaxOpenConns(1)
	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			session_id TEXT,
			kind TEXT NOT NULL,
			state TEXT,
			source TEXT,
			user_text TEXT,
			assistant_text TEXT,
			sequence_number INTEGER,
			provider TEXT,
			detail TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS events_ts ON events(ts);`,
	}
	for _, q := range stmts {
		if _, err := r.db.Exec(q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) AppendEvent(ev Event) error {
	_, err := r.db.Exec(
		`INSERT INTO events (ts, session_id, kind, state, source, user_text, assistant_text, sequence_number, provider, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Timestamp.UnixNano(), ev.SessionID, ev.Kind, ev.State, ev.Source,
		ev.UserText, ev.AssistantText, int64(ev.Sequence), ev.Provider, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) LoadEvents() ([]Event, error) {
	rows, err := r.db.Query(`SELECT ts, session_id, kind, state, source, user_text, assistant_text, sequence_number, provider, detail
		FROM events ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var (
			ts  int64
			seq int64
			ev  Event
		)
		if err := rows.Scan(&ts, &ev.SessionID, &ev.Kind, &ev.State, &ev.Source,
			&ev.UserText, &ev.AssistantText, &seq, &ev.Provider, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Timestamp = time.Unix(0, ts).UTC()
		ev.Sequence = uint64(seq)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (r *SQLiteRecorder) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

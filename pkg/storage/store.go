// Package storage manages the widget's durable local state: the persisted
// conversation transcript, the resolved type-slug cache, and a host-event
// audit trail. Backed by SQLite so state survives iframe reloads.
package storage

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrStoreClosed indicates the underlying database connection is unavailable.
var ErrStoreClosed = errors.New("storage: closed")

// Store manages SQLite database operations.
type Store struct {
	db *sql.DB
}

// New creates a new store and initializes the database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time, multiple readers with WAL. An
	// in-memory database exists per connection, so it must stay on one.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Entry is a persisted transcript entry.
type Entry struct {
	ID           string
	WidgetID     string
	Position     int
	Kind         string
	Role         string
	Content      string
	Operation    string
	Arguments    string
	InvocationID string
	Payload      string
	Success      bool
	Synthetic    bool
	CreatedAt    time.Time
}

// AppendEntry persists a single transcript entry.
func (s *Store) AppendEntry(e *Entry) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`
		INSERT INTO transcript_entries
			(id, widget_id, position, kind, role, content, operation, arguments, invocation_id, payload, success, synthetic, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			position = excluded.position,
			content = excluded.content,
			payload = excluded.payload,
			success = excluded.success
	`, e.ID, e.WidgetID, e.Position, e.Kind, e.Role, e.Content, e.Operation,
		e.Arguments, e.InvocationID, e.Payload, boolToInt(e.Success), boolToInt(e.Synthetic), e.CreatedAt.UTC())
	return err
}

// ReplaceEntries swaps the full transcript for a widget in one transaction.
func (s *Store) ReplaceEntries(widgetID string, entries []Entry) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM transcript_entries WHERE widget_id = ?`, widgetID); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.Exec(`
			INSERT INTO transcript_entries
				(id, widget_id, position, kind, role, content, operation, arguments, invocation_id, payload, success, synthetic, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, widgetID, e.Position, e.Kind, e.Role, e.Content, e.Operation,
			e.Arguments, e.InvocationID, e.Payload, boolToInt(e.Success), boolToInt(e.Synthetic), e.CreatedAt.UTC()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetEntries returns a widget's transcript ordered by position.
func (s *Store) GetEntries(widgetID string) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.Query(`
		SELECT id, widget_id, position, kind, role, content, operation, arguments, invocation_id, payload, success, synthetic, created_at
		FROM transcript_entries
		WHERE widget_id = ?
		ORDER BY position ASC
	`, widgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var success, synthetic int
		if err := rows.Scan(&e.ID, &e.WidgetID, &e.Position, &e.Kind, &e.Role, &e.Content,
			&e.Operation, &e.Arguments, &e.InvocationID, &e.Payload, &success, &synthetic, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Success = success != 0
		e.Synthetic = synthetic != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetSetting loads one setting value; empty string when absent.
func (s *Store) GetSetting(key string) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrStoreClosed
	}
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetSetting upserts a setting value. Empty value deletes the row.
func (s *Store) SetSetting(key, value string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	value = strings.TrimSpace(value)
	if value == "" {
		_, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// RecordHostEvent stores a bridge message for later review.
func (s *Store) RecordHostEvent(direction, eventType, payload string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`
		INSERT INTO host_events (direction, event_type, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, strings.TrimSpace(direction), strings.TrimSpace(eventType), payload, time.Now().UTC())
	return err
}

// HostEvent is one audited bridge message.
type HostEvent struct {
	Direction string
	EventType string
	Payload   string
	CreatedAt time.Time
}

// ListHostEvents returns recent bridge messages, newest first.
func (s *Store) ListHostEvents(limit int) ([]HostEvent, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT direction, event_type, payload, created_at
		FROM host_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []HostEvent
	for rows.Next() {
		var e HostEvent
		if err := rows.Scan(&e.Direction, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists settings as key/value rows in a sqlite database.
type SQLiteStore struct {
	db       *sql.DB
	notifier notifier
}

// OpenSQLite opens (creating if needed) the settings database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening settings db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating settings table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads all stored keys over Defaults.
func (s *SQLiteStore) Load(ctx context.Context) (Settings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Settings{}, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	out := Defaults()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Settings{}, fmt.Errorf("scanning setting: %w", err)
		}
		next, err := out.With(key, value)
		if err != nil {
			// Rows written by a newer build may carry keys we don't know.
			continue
		}
		out = next
	}
	if err := rows.Err(); err != nil {
		return Settings{}, fmt.Errorf("iterating settings: %w", err)
	}
	return out, nil
}

// Set writes key and notifies subscribers once the row is committed.
func (s *SQLiteStore) Set(ctx context.Context, key string, value any) error {
	b, err := toBool(value)
	if err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	if err := Validate(key, b); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, strconv.FormatBool(b),
	)
	if err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}

	s.notifier.publish(Change{Key: key, Value: b})
	return nil
}

// Seed writes every key of d that has no stored value yet. Existing rows
// win, and subscribers are not notified.
func (s *SQLiteStore) Seed(ctx context.Context, d Settings) error {
	for _, key := range []string{KeyIsEnabled, KeyShowBadge} {
		v, _ := d.Get(key)
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
			key, strconv.FormatBool(v),
		); err != nil {
			return fmt.Errorf("seeding setting %q: %w", key, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Subscribe() (<-chan Change, func()) {
	return s.notifier.subscribe()
}

func (s *SQLiteStore) Close() error {
	s.notifier.closeAll()
	return s.db.Close()
}

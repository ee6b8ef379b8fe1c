package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/pagewatch/changewatch/change"
)

// Schema for the monitor_settings table. A single row (id = 1) holds the
// last started configuration and the persisted running flag.
const Schema = `
CREATE TABLE IF NOT EXISTS monitor_settings (
	id                    INTEGER PRIMARY KEY CHECK (id = 1),
	endpoint_url          TEXT NOT NULL DEFAULT '',
	scope                 TEXT NOT NULL DEFAULT 'all',
	target_selector       TEXT NOT NULL DEFAULT '',
	keywords              TEXT NOT NULL DEFAULT '[]',
	poll_interval_seconds INTEGER NOT NULL DEFAULT 5,
	is_running            INTEGER NOT NULL DEFAULT 0,
	updated_at            INTEGER NOT NULL
);
`

// Settings is the stored row.
type Settings struct {
	Monitor Monitor
	Running bool
	Found   bool // false when nothing was ever saved
}

// Store persists monitor settings in SQLite. It is the configuration source
// read at start and at daemon startup for auto-resume.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the settings database at path. The
// caller must blank-import the driver: import _ "modernc.org/sqlite".
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("config: store mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("config: store open: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("config: store %s: %w", p, err)
		}
	}

	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an open database and applies the schema.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("config: store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Load reads the stored settings. A store that was never written returns
// the default monitor with Found=false.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	var (
		m       Monitor
		scope   string
		kwJSON  string
		running int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT endpoint_url, scope, target_selector, keywords,
		       poll_interval_seconds, is_running
		FROM monitor_settings WHERE id = 1
	`).Scan(&m.EndpointURL, &scope, &m.TargetSelector, &kwJSON,
		&m.PollIntervalSeconds, &running)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{Monitor: DefaultMonitor()}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("config: store load: %w", err)
	}

	m.Scope = change.Scope(scope)
	if err := json.Unmarshal([]byte(kwJSON), &m.Keywords); err != nil {
		return Settings{}, fmt.Errorf("config: store keywords: %w", err)
	}
	return Settings{Monitor: m, Running: running != 0, Found: true}, nil
}

// Save stores the monitor configuration, leaving the running flag untouched.
func (s *Store) Save(ctx context.Context, m Monitor) error {
	kw := m.Keywords
	if kw == nil {
		kw = []string{}
	}
	kwJSON, err := json.Marshal(kw)
	if err != nil {
		return fmt.Errorf("config: store marshal keywords: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO monitor_settings
			(id, endpoint_url, scope, target_selector, keywords, poll_interval_seconds, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			endpoint_url          = excluded.endpoint_url,
			scope                 = excluded.scope,
			target_selector       = excluded.target_selector,
			keywords              = excluded.keywords,
			poll_interval_seconds = excluded.poll_interval_seconds,
			updated_at            = excluded.updated_at
	`, m.EndpointURL, string(m.Scope), m.TargetSelector, string(kwJSON),
		m.PollIntervalSeconds, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("config: store save: %w", err)
	}
	return nil
}

// SetRunning persists the running flag.
func (s *Store) SetRunning(ctx context.Context, running bool) error {
	flag := 0
	if running {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_settings (id, is_running, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_running = excluded.is_running,
			updated_at = excluded.updated_at
	`, flag, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("config: store set running: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

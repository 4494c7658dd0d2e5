// Package store is FlowLingo's durable layer on SQLite: settings, site
// rules, per-word mastery state, the behavioral event log, imported
// dictionary tiers and the AI cache snapshot.
//
// The engine treats this layer as best-effort for cache durability and
// authoritative for everything else.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nsxzhou/flowlingo/internal/types"
)

// Store wraps a single SQLite connection. All methods are safe for
// concurrent use.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// Open initializes the database at path, creating directories and the
// schema as needed.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logger.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("store opened", zap.String("path", path))
	return s, nil
}

func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS site_rules (
			domain  TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS user_word_state (
			word_id TEXT PRIMARY KEY,
			state   TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			type      TEXT NOT NULL,
			domain    TEXT NOT NULL DEFAULT '',
			target_id TEXT NOT NULL DEFAULT '',
			ts        INTEGER NOT NULL,
			meta      TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_events_domain_ts ON events(domain, ts)`,
		`CREATE TABLE IF NOT EXISTS dictionary_entries (
			id    TEXT PRIMARY KEY,
			cn    TEXT NOT NULL,
			en    TEXT NOT NULL,
			flags TEXT NOT NULL DEFAULT '',
			level INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dictionary_entries_level ON dictionary_entries(level)`,
		`CREATE TABLE IF NOT EXISTS dictionary_packages (
			level INTEGER PRIMARY KEY,
			doc   TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ai_cache (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			ts    INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// GetSetting unmarshals the JSON value stored under key into out.
// Returns false when the key is absent.
func (s *Store) GetSetting(key string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return true, nil
}

// SetSetting stores value under key as JSON, replacing any prior value.
func (s *Store) SetSetting(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT INTO settings(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(raw))
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// GetSiteRule returns the per-domain override, or nil when none exists.
func (s *Store) GetSiteRule(domain string) (*types.SiteRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var enabled int
	err := s.db.QueryRow(`SELECT enabled FROM site_rules WHERE domain = ?`, domain).Scan(&enabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read site rule: %w", err)
	}
	return &types.SiteRule{Domain: domain, Enabled: enabled != 0}, nil
}

// PutSiteRule upserts a per-domain override.
func (s *Store) PutSiteRule(rule types.SiteRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO site_rules(domain, enabled) VALUES(?, ?)
		 ON CONFLICT(domain) DO UPDATE SET enabled = excluded.enabled`,
		rule.Domain, enabled)
	if err != nil {
		return fmt.Errorf("failed to write site rule: %w", err)
	}
	return nil
}

// GetWordState returns the mastery record for wordID, or nil when the
// word has never been seen.
func (s *Store) GetWordState(wordID string) (*types.WordState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRow(`SELECT state FROM user_word_state WHERE word_id = ?`, wordID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read word state: %w", err)
	}
	var state types.WordState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("failed to decode word state: %w", err)
	}
	return &state, nil
}

// PutWordState upserts a mastery record.
func (s *Store) PutWordState(state types.WordState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode word state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT INTO user_word_state(word_id, state) VALUES(?, ?)
		 ON CONFLICT(word_id) DO UPDATE SET state = excluded.state`,
		state.WordID, string(raw))
	if err != nil {
		return fmt.Errorf("failed to write word state: %w", err)
	}
	return nil
}

// ListWordStates returns every mastery record.
func (s *Store) ListWordStates() ([]types.WordState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT state FROM user_word_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to list word states: %w", err)
	}
	defer rows.Close()

	var states []types.WordState
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var state types.WordState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			continue
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

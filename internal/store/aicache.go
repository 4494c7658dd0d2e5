package store

import (
	"encoding/json"
	"fmt"

	"github.com/nsxzhou/flowlingo/internal/types"
)

// CacheRow is one persisted AI-cache entry, ordered oldest first so the
// in-memory LRU can be rebuilt with the same recency ordering.
type CacheRow struct {
	Key   string
	Entry types.CacheEntry
}

// LoadCacheRows returns every persisted cache row, oldest write first.
func (s *Store) LoadCacheRows() ([]CacheRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT key, value FROM ai_cache ORDER BY ts ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache rows: %w", err)
	}
	defer rows.Close()

	var out []CacheRow
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var entry types.CacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		out = append(out, CacheRow{Key: key, Entry: entry})
	}
	return out, rows.Err()
}

// SaveCacheRows replaces the persisted snapshot with rows, in order.
func (s *Store) SaveCacheRows(rows []CacheRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM ai_cache`); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear cache rows: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO ai_cache(key, value, ts) VALUES(?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		raw, err := json.Marshal(row.Entry)
		if err != nil {
			continue
		}
		// Row index doubles as the recency ordinal.
		if _, err := stmt.Exec(row.Key, string(raw), int64(i)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert cache row: %w", err)
		}
	}
	return tx.Commit()
}

// ClearCacheRows removes the persisted snapshot entirely.
func (s *Store) ClearCacheRows() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM ai_cache`); err != nil {
		return fmt.Errorf("failed to clear cache rows: %w", err)
	}
	return nil
}

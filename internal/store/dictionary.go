package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nsxzhou/flowlingo/internal/types"
)

// PutDictionaryEntries upserts a batch of imported entries in one
// transaction.
func (s *Store) PutDictionaryEntries(entries []types.DictionaryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO dictionary_entries(id, cn, en, flags, level) VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET cn = excluded.cn, en = excluded.en,
			flags = excluded.flags, level = excluded.level`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.ID, e.Cn, e.En, strings.Join(e.Flags, ","), e.Level); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// ListDictionaryEntriesUpToLevel returns every imported entry with
// level ≤ maxLevel.
func (s *Store) ListDictionaryEntriesUpToLevel(maxLevel int) ([]types.DictionaryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, cn, en, flags, level FROM dictionary_entries WHERE level <= ?`, maxLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to list dictionary entries: %w", err)
	}
	defer rows.Close()

	var entries []types.DictionaryEntry
	for rows.Next() {
		var e types.DictionaryEntry
		var flags string
		if err := rows.Scan(&e.ID, &e.Cn, &e.En, &flags, &e.Level); err != nil {
			return nil, err
		}
		if flags != "" {
			e.Flags = strings.Split(flags, ",")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteDictionaryEntriesByLevel removes all entries at exactly level.
func (s *Store) DeleteDictionaryEntriesByLevel(level int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM dictionary_entries WHERE level = ?`, level)
	if err != nil {
		return 0, fmt.Errorf("failed to delete dictionary entries: %w", err)
	}
	return res.RowsAffected()
}

// GetDictionaryPackage returns the import state for a tier, or nil when
// the tier was never imported.
func (s *Store) GetDictionaryPackage(level int) (*types.DictionaryPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRow(`SELECT doc FROM dictionary_packages WHERE level = ?`, level).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dictionary package: %w", err)
	}
	var pkg types.DictionaryPackage
	if err := json.Unmarshal([]byte(raw), &pkg); err != nil {
		return nil, fmt.Errorf("failed to decode dictionary package: %w", err)
	}
	return &pkg, nil
}

// PutDictionaryPackage upserts the import state for a tier.
func (s *Store) PutDictionaryPackage(pkg types.DictionaryPackage) error {
	raw, err := json.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("failed to encode dictionary package: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT INTO dictionary_packages(level, doc) VALUES(?, ?)
		 ON CONFLICT(level) DO UPDATE SET doc = excluded.doc`,
		pkg.Level, string(raw))
	if err != nil {
		return fmt.Errorf("failed to write dictionary package: %w", err)
	}
	return nil
}

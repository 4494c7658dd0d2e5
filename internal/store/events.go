package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsxzhou/flowlingo/internal/types"
)

const (
	maxRecentEvents = 500
	maxDeleteBatch  = 50000
)

// AddEvent appends one behavioral event and returns its row ID.
func (s *Store) AddEvent(ev types.Event) (int64, error) {
	meta, err := json.Marshal(ev.Meta)
	if err != nil {
		return 0, fmt.Errorf("failed to encode event meta: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO events(type, domain, target_id, ts, meta) VALUES(?, ?, ?, ?, ?)`,
		string(ev.Type), ev.Domain, ev.TargetID, ev.Ts, string(meta))
	if err != nil {
		return 0, fmt.Errorf("failed to add event: %w", err)
	}
	return res.LastInsertId()
}

// ListRecentEvents returns up to limit events within [sinceTs, endTs],
// newest first, optionally filtered by domain. Limit is clamped to
// [1, 500]; zero timestamps default to the last 30 minutes.
func (s *Store) ListRecentEvents(domain string, sinceTs, endTs int64, limit int) ([]types.Event, error) {
	now := time.Now().UnixMilli()
	if sinceTs <= 0 {
		sinceTs = now - 30*60*1000
	}
	if endTs <= 0 {
		endTs = now
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > maxRecentEvents {
		limit = maxRecentEvents
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, type, domain, target_id, ts, meta FROM events
		WHERE ts >= ? AND ts <= ?`
	args := []any{sinceTs, endTs}
	if domain != "" {
		query += ` AND domain = ?`
		args = append(args, domain)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var ev types.Event
		var typ, meta string
		if err := rows.Scan(&ev.ID, &typ, &ev.Domain, &ev.TargetID, &ev.Ts, &meta); err != nil {
			return nil, err
		}
		ev.Type = types.EventType(typ)
		_ = json.Unmarshal([]byte(meta), &ev.Meta)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteEventsBefore removes events strictly older than cutoff, at most
// limit rows (clamped to [1, 50000]). Returns the number deleted.
func (s *Store) DeleteEventsBefore(cutoff int64, limit int) (int64, error) {
	if limit <= 0 || limit > maxDeleteBatch {
		limit = maxDeleteBatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`DELETE FROM events WHERE id IN (
			SELECT id FROM events WHERE ts < ? ORDER BY ts LIMIT ?
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return res.RowsAffected()
}

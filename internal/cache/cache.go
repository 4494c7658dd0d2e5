// Package cache is the content-addressed replacement cache: an
// in-memory LRU keyed by a digest of the planning inputs, persisted
// best-effort to the store so repeated exposure to the same content
// survives restarts.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/nsxzhou/flowlingo/internal/store"
	"github.com/nsxzhou/flowlingo/internal/types"
)

const (
	// Capacity bounds for the in-memory LRU.
	MinCapacity     = 128
	MaxCapacity     = 8192
	DefaultCapacity = 1024

	// Writes are coalesced into one flush per quiet period.
	persistDebounce = 400 * time.Millisecond
)

// keyPayload is the canonical serialization hashed into a cache key.
// Field order is fixed; any change to any field invalidates reuse.
type keyPayload struct {
	V               int                `json:"v"`
	Domain          string             `json:"domain"`
	DifficultyLevel string             `json:"difficultyLevel"`
	Intensity       types.Intensity    `json:"intensity"`
	Presentation    types.Presentation `json:"presentation"`
	Model           string             `json:"model"`
	Text            string             `json:"text"`
}

// Key derives the content-addressed cache key for one planning input
// tuple.
func Key(domain, text, difficultyLevel string, intensity types.Intensity, presentation types.Presentation, model string) string {
	payload, _ := json.Marshal(keyPayload{
		V:               1,
		Domain:          domain,
		DifficultyLevel: difficultyLevel,
		Intensity:       intensity,
		Presentation:    presentation,
		Model:           model,
		Text:            text,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Persister is the durable backend for cache snapshots. Implemented by
// the store; may be nil, in which case the cache is memory-only.
type Persister interface {
	LoadCacheRows() ([]store.CacheRow, error)
	SaveCacheRows(rows []store.CacheRow) error
	ClearCacheRows() error
}

// Cache is an LRU of validated replacement sets. Entries are immutable
// once written; a rewrite under the same key replaces the value and
// refreshes recency.
type Cache struct {
	mu        sync.Mutex
	lru       *lru.Cache[string, types.CacheEntry]
	persister Persister
	logger    *zap.Logger
	timer     *time.Timer
	closed    bool
}

// New builds a cache with the given capacity (clamped to
// [MinCapacity, MaxCapacity]; ≤0 means DefaultCapacity) and eagerly
// loads any durable rows. A missing or failing persister leaves the
// cache empty; correctness never depends on durable state.
func New(capacity int, persister Persister, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	l, _ := lru.New[string, types.CacheEntry](clampCapacity(capacity))
	c := &Cache{lru: l, persister: persister, logger: logger}

	if persister != nil {
		rows, err := persister.LoadCacheRows()
		if err != nil {
			logger.Debug("cache load skipped", zap.Error(err))
		} else {
			// Rows arrive oldest first, so insertion order rebuilds recency.
			for _, row := range rows {
				c.lru.Add(row.Key, row.Entry)
			}
			logger.Debug("cache loaded", zap.Int("entries", c.lru.Len()))
		}
	}
	return c
}

func clampCapacity(n int) int {
	if n <= 0 {
		return DefaultCapacity
	}
	if n < MinCapacity {
		return MinCapacity
	}
	if n > MaxCapacity {
		return MaxCapacity
	}
	return n
}

// Get returns the entry under key, marking it most recently used.
func (c *Cache) Get(key string) (types.CacheEntry, bool) {
	if key == "" {
		return types.CacheEntry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Set stores entry under key, evicting the least-recently-touched entry
// when over capacity, and schedules a debounced persist.
func (c *Cache) Set(key string, entry types.CacheEntry) {
	if key == "" {
		return
	}
	c.mu.Lock()
	c.lru.Add(key, entry)
	c.schedulePersistLocked()
	c.mu.Unlock()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Resize changes the capacity (clamped as in New), evicting as needed.
func (c *Cache) Resize(capacity int) {
	c.mu.Lock()
	c.lru.Resize(clampCapacity(capacity))
	c.schedulePersistLocked()
	c.mu.Unlock()
}

// Clear drops every in-memory entry and the durable snapshot.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.lru.Purge()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	if c.persister != nil {
		if err := c.persister.ClearCacheRows(); err != nil {
			c.logger.Debug("cache durable clear failed", zap.Error(err))
		}
	}
}

// Flush persists the current snapshot immediately. Failures are
// swallowed after logging; the in-memory cache stays authoritative.
func (c *Cache) Flush() {
	c.persist()
}

// Close flushes any pending write and stops the debounce timer.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	pending := c.timer != nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	if pending {
		c.persist()
	}
}

func (c *Cache) schedulePersistLocked() {
	if c.persister == nil || c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(persistDebounce, c.persist)
}

func (c *Cache) persist() {
	if c.persister == nil {
		return
	}
	c.mu.Lock()
	keys := c.lru.Keys() // oldest first
	rows := make([]store.CacheRow, 0, len(keys))
	for _, k := range keys {
		if entry, ok := c.lru.Peek(k); ok {
			rows = append(rows, store.CacheRow{Key: k, Entry: entry})
		}
	}
	c.mu.Unlock()

	if err := c.persister.SaveCacheRows(rows); err != nil {
		c.logger.Debug("cache persist failed", zap.Error(err))
	}
}

package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/nsxzhou/flowlingo/internal/types"
)

// WordIDForCn derives the stable synthetic word identity for an
// AI-proposed Chinese phrase. The same phrase maps to the same id
// across sessions, which is what lets mastery accumulate on it.
func WordIDForCn(cn string) string {
	if cn == "" {
		return "ai_0"
	}
	sum := sha256.Sum256([]byte("ai:" + cn))
	return "ai_" + hex.EncodeToString(sum[:])[:16]
}

// WordStateSource reads per-word mastery records. Implemented by the
// store.
type WordStateSource interface {
	GetWordState(wordID string) (*types.WordState, error)
}

// knownMemo caches known-word lookups for the duration of one planning
// call. Safe for concurrent segment workers.
type knownMemo struct {
	source WordStateSource

	mu    sync.Mutex
	known map[string]bool
}

func newKnownMemo(source WordStateSource) *knownMemo {
	return &knownMemo{source: source, known: make(map[string]bool)}
}

// isKnown reports whether the user has marked the word known. Lookup
// failures read as unknown; showing support text for a known word is a
// cheaper mistake than hiding it for an unknown one.
func (m *knownMemo) isKnown(wordID string) bool {
	if wordID == "" {
		return false
	}
	m.mu.Lock()
	if v, ok := m.known[wordID]; ok {
		m.mu.Unlock()
		return v
	}
	m.mu.Unlock()

	state, err := m.source.GetWordState(wordID)
	known := err == nil && state.IsKnown()

	m.mu.Lock()
	m.known[wordID] = known
	m.mu.Unlock()
	return known
}

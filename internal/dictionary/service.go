package dictionary

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/nsxzhou/flowlingo/internal/types"
)

// Dictionary tier sizes. The core tier ships with the product; larger
// tiers are imported on demand.
const (
	LevelCore = 3000
	LevelPlus = 5000
	LevelFull = 10000
)

// NormalizeLevel snaps an arbitrary level to a known tier, defaulting
// to the core tier.
func NormalizeLevel(level int) int {
	switch level {
	case LevelCore, LevelPlus, LevelFull:
		return level
	}
	return LevelCore
}

// EntrySource lists imported dictionary entries by level ceiling.
// Implemented by the store.
type EntrySource interface {
	ListDictionaryEntriesUpToLevel(maxLevel int) ([]types.DictionaryEntry, error)
}

// Tier is a loaded vocabulary tier: the merged entry list and the trie
// built over it.
type Tier struct {
	Level   int
	Entries []types.DictionaryEntry
	Trie    *Trie
}

// Service loads vocabulary tiers lazily and memoizes them per level.
// Invalidate drops every memoized tier; the next request rebuilds from
// scratch rather than patching.
type Service struct {
	corePath string
	source   EntrySource
	logger   *zap.Logger

	mu      sync.Mutex
	core    []types.DictionaryEntry
	byLevel map[int]*Tier
}

// NewService builds a dictionary service reading the core tier from the
// JSONL file at corePath and extension tiers from source. Source may be
// nil, in which case only the core tier is available.
func NewService(corePath string, source EntrySource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		corePath: corePath,
		source:   source,
		logger:   logger,
		byLevel:  make(map[int]*Tier),
	}
}

// Ensure returns the tier for level, loading and building it on first
// use. The core tier has no level gate; extension entries are included
// only when their level is ≤ the requested level and > the core tier.
func (s *Service) Ensure(level int) (*Tier, error) {
	target := NormalizeLevel(level)

	s.mu.Lock()
	defer s.mu.Unlock()

	if tier, ok := s.byLevel[target]; ok {
		return tier, nil
	}

	core, err := s.loadCoreLocked()
	if err != nil {
		return nil, err
	}

	entries := make([]types.DictionaryEntry, 0, len(core))
	entries = append(entries, core...)
	if target > LevelCore && s.source != nil {
		imported, err := s.source.ListDictionaryEntriesUpToLevel(target)
		if err != nil {
			return nil, types.WrapError(types.CodeDictionaryNotReady, "failed to load imported entries", err)
		}
		for _, e := range imported {
			if e.Level > LevelCore {
				entries = append(entries, e)
			}
		}
	}

	tier := &Tier{Level: target, Entries: entries, Trie: BuildTrie(entries)}
	s.byLevel[target] = tier
	s.logger.Debug("dictionary tier loaded",
		zap.Int("level", target),
		zap.Int("entries", len(entries)),
		zap.Int("trie_size", tier.Trie.Size()))
	return tier, nil
}

// MatchCandidates runs the greedy matcher for text against the tier for
// level.
func (s *Service) MatchCandidates(text string, level int) ([]types.MatchCandidate, error) {
	tier, err := s.Ensure(level)
	if err != nil {
		return nil, err
	}
	return tier.Trie.Match(text), nil
}

// Invalidate drops every memoized tier so the next Ensure rebuilds.
// Called after a package import changes the entry set.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byLevel = make(map[int]*Tier)
}

func (s *Service) loadCoreLocked() ([]types.DictionaryEntry, error) {
	if s.core != nil {
		return s.core, nil
	}
	data, err := os.ReadFile(s.corePath)
	if err != nil {
		return nil, types.WrapError(types.CodeDictionaryNotReady, "failed to read core dictionary", err)
	}
	s.core = ParseJSONLines(data)
	if len(s.core) == 0 {
		return nil, types.NewErrorDetail(types.CodeDictionaryNotReady,
			"core dictionary empty", fmt.Sprintf("path=%s", s.corePath))
	}
	return s.core, nil
}

// ParseJSONLines decodes one dictionary entry per line, skipping blank
// and malformed lines.
func ParseJSONLines(data []byte) []types.DictionaryEntry {
	var entries []types.DictionaryEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e types.DictionaryEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// Package dictionary provides longest-match segmentation of Chinese text
// against a tiered static vocabulary, independent of the LLM path.
package dictionary

import (
	"github.com/nsxzhou/flowlingo/internal/types"
)

type trieNode struct {
	children map[rune]*trieNode
	entry    *types.DictionaryEntry
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[rune]*trieNode)}
}

// Trie is a prefix trie over entry surface forms, keyed rune by rune.
// Built once per tier and never patched; a changed entry set requires a
// full rebuild.
type Trie struct {
	root *trieNode
	size int
}

// BuildTrie constructs a trie from entries. Entries with an empty
// surface form are skipped silently.
func BuildTrie(entries []types.DictionaryEntry) *Trie {
	root := newTrieNode()
	size := 0
	for i := range entries {
		e := &entries[i]
		if e.Cn == "" {
			continue
		}
		node := root
		for _, ch := range e.Cn {
			next := node.children[ch]
			if next == nil {
				next = newTrieNode()
				node.children[ch] = next
			}
			node = next
		}
		node.entry = e
		size++
	}
	return &Trie{root: root, size: size}
}

// Size returns the number of terminal entries in the trie.
func (t *Trie) Size() int { return t.size }

// Match scans text left to right with greedy longest-match: at each
// position it follows the longest chain of matching runes, remembering
// the deepest terminal seen; on a dead end it emits that terminal's span
// and resumes after it, or advances one rune when nothing matched.
//
// Greedy matching is deliberately not globally optimal: a shorter match
// that would enable a better subsequent match is never chosen.
// Offsets are rune offsets, half-open.
func (t *Trie) Match(text string) []types.MatchCandidate {
	runes := []rune(text)
	var candidates []types.MatchCandidate

	i := 0
	for i < len(runes) {
		node := t.root
		j := i
		var lastEntry *types.DictionaryEntry
		lastEnd := 0
		for j < len(runes) {
			next := node.children[runes[j]]
			if next == nil {
				break
			}
			node = next
			j++
			if node.entry != nil {
				lastEntry = node.entry
				lastEnd = j
			}
		}
		if lastEntry != nil {
			candidates = append(candidates, types.MatchCandidate{
				WordID: lastEntry.ID,
				Start:  i,
				End:    lastEnd,
				Cn:     lastEntry.Cn,
				En:     lastEntry.En,
				Flags:  lastEntry.Flags,
			})
			i = lastEnd
		} else {
			i++
		}
	}
	return candidates
}

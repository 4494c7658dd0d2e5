package dictionary

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/nsxzhou/flowlingo/internal/types"
)

func testEntries() []types.DictionaryEntry {
	return []types.DictionaryEntry{
		{ID: "w1", Cn: "学习", En: "study", Level: 3000},
		{ID: "w2", Cn: "机器", En: "machine", Level: 3000},
		{ID: "w3", Cn: "机器学习", En: "machine learning", Level: 3000},
		{ID: "w4", Cn: "句子", En: "sentence", Level: 3000},
	}
}

func TestTrieGreedyLongestMatch(t *testing.T) {
	trie := BuildTrie(testEntries())

	got := trie.Match("机器学习很有趣")
	require.Len(t, got, 1)
	require.Equal(t, "w3", got[0].WordID)
	require.Equal(t, 0, got[0].Start)
	require.Equal(t, 4, got[0].End)
}

func TestTrieGreedyIsNotGloballyOptimal(t *testing.T) {
	// Greedy consumes 机器学习 whole, so a following 习题 entry that
	// would pair with a shorter 机器 match is never reachable.
	entries := append(testEntries(), types.DictionaryEntry{ID: "w5", Cn: "习题", En: "exercise", Level: 3000})
	trie := BuildTrie(entries)

	got := trie.Match("机器学习题")
	require.Len(t, got, 1)
	require.Equal(t, "w3", got[0].WordID)
}

func TestTrieRuneOffsets(t *testing.T) {
	trie := BuildTrie(testEntries())

	got := trie.Match("这是一个句子用于学习")
	require.Len(t, got, 2)

	require.Equal(t, "w4", got[0].WordID)
	require.Equal(t, 4, got[0].Start)
	require.Equal(t, 6, got[0].End)

	require.Equal(t, "w1", got[1].WordID)
	require.Equal(t, 8, got[1].Start)
	require.Equal(t, 10, got[1].End)
}

func TestTrieMatchDeterministic(t *testing.T) {
	trie := BuildTrie(testEntries())
	text := "机器学习的句子，学习机器的句子"

	first := trie.Match(text)
	second := trie.Match(text)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("match not deterministic (-first +second):\n%s", diff)
	}
}

func TestTrieSkipsEmptySurfaceForms(t *testing.T) {
	trie := BuildTrie([]types.DictionaryEntry{
		{ID: "w1", Cn: "", En: "nothing"},
		{ID: "w2", Cn: "学习", En: "study"},
	})
	require.Equal(t, 1, trie.Size())
}

func TestTrieNoMatches(t *testing.T) {
	trie := BuildTrie(testEntries())
	require.Empty(t, trie.Match("hello world"))
	require.Empty(t, trie.Match(""))
}

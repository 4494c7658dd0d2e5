package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsxzhou/flowlingo/internal/types"
)

func TestUnsafeCnPhrase(t *testing.T) {
	safe := []string{"学习", "机器学习", "这是一个测试句子用于学"}
	for _, s := range safe {
		require.False(t, unsafeCnPhrase(s), "%q should be safe", s)
	}

	unsafe := []string{
		"",
		"学",              // too short
		"这是一个超过十二个字的超长短语", // too long
		"学 习",            // whitespace
		"学习2",            // digit
		"价格￥",            // currency
		"学习abc",          // Latin
		"【学习】",           // brackets
		"点·号",            // middle dot
	}
	for _, s := range unsafe {
		require.True(t, unsafeCnPhrase(s), "%q should be unsafe", s)
	}
}

func TestUnsafeEnPhrase(t *testing.T) {
	safe := []string{"study", "machine learning", "mother-in-law", "it's fine", "one two three four"}
	for _, s := range safe {
		require.False(t, unsafeEnPhrase(s), "%q should be safe", s)
	}

	unsafe := []string{
		"",
		"   ",
		"one two three four five", // five words
		"study 学习",               // CJK
		"3d model",                // must start with a letter
		"hello, world",            // punctuation outside the allowed set
		"averyveryverylongwordthatexceedsthesixtycharacterlimitforreplacements",
	}
	for _, s := range unsafe {
		require.True(t, unsafeEnPhrase(s), "%q should be unsafe", s)
	}
}

func TestFindFirstNonOverlappingSkipsToLaterOccurrence(t *testing.T) {
	// 词汇 occurs twice; the first occurrence crowds the existing span,
	// the second is far enough away.
	text := []rune("词汇在前面这里隔开了很多字之后又有词汇出现")
	selected := []types.Replacement{{Start: 3, End: 5, En: "x"}}

	r, ok := findFirstNonOverlapping(text, "词汇", selected, minGapRunes)
	require.True(t, ok)
	require.Equal(t, 17, r.Start)
	require.Equal(t, 19, r.End)
}

func TestFindFirstNonOverlappingAbsent(t *testing.T) {
	_, ok := findFirstNonOverlapping([]rune("这里没有目标词"), "词汇", nil, minGapRunes)
	require.False(t, ok)
}

func TestHasGapConflict(t *testing.T) {
	selected := []types.Replacement{{Start: 10, End: 14}}

	require.True(t, hasGapConflict(selected, 12, 16, minGapRunes))  // overlap
	require.True(t, hasGapConflict(selected, 14, 18, minGapRunes))  // adjacent, gap 0
	require.True(t, hasGapConflict(selected, 20, 24, minGapRunes))  // gap 6
	require.False(t, hasGapConflict(selected, 22, 26, minGapRunes)) // gap 8
	require.False(t, hasGapConflict(selected, 0, 2, minGapRunes))   // gap 8 on the left
	require.True(t, hasGapConflict(selected, 0, 3, minGapRunes))    // gap 7 on the left
}

func TestWordIDForCnStable(t *testing.T) {
	id := WordIDForCn("测试句子")
	require.Equal(t, id, WordIDForCn("测试句子"))
	require.NotEqual(t, id, WordIDForCn("别的短语"))
	require.Regexp(t, `^ai_[0-9a-f]{16}$`, id)
	require.Equal(t, "ai_0", WordIDForCn(""))
}

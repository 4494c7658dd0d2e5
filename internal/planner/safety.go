package planner

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/nsxzhou/flowlingo/internal/types"
)

// Phrase safety bounds. A candidate failing any check is dropped
// silently; a bad replacement on the page is worse than none.
const (
	minCnRunes = 2
	maxCnRunes = 12
	maxEnChars = 60
	maxEnWords = 4
)

var (
	enShape       = regexp.MustCompile(`^[A-Za-z][A-Za-z\s'-]*$`)
	cnCurrency    = "￥$€£%‰"
	cnMiddleDots  = "·•･"
	cnBracketLike = "【】[]（）(){}<>"
)

// unsafeCnPhrase reports whether cn is unsuitable as a replacement
// target: wrong length, or containing whitespace, digits, currency,
// Latin letters, middle dots or bracket characters.
func unsafeCnPhrase(cn string) bool {
	s := strings.TrimSpace(cn)
	runes := []rune(s)
	if len(runes) < minCnRunes || len(runes) > maxCnRunes {
		return true
	}
	for _, r := range runes {
		switch {
		case unicode.IsSpace(r):
			return true
		case r >= '0' && r <= '9':
			return true
		case (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'):
			return true
		case strings.ContainsRune(cnCurrency, r):
			return true
		case strings.ContainsRune(cnMiddleDots, r):
			return true
		case strings.ContainsRune(cnBracketLike, r):
			return true
		}
	}
	return false
}

// unsafeEnPhrase reports whether en is unsuitable as rendered English:
// empty, too long, containing CJK, not letter-led ASCII with only
// spaces, apostrophes and hyphens, or more than four words.
func unsafeEnPhrase(en string) bool {
	s := strings.TrimSpace(en)
	if s == "" || len(s) > maxEnChars {
		return true
	}
	if containsChinese(s) {
		return true
	}
	if !enShape.MatchString(s) {
		return true
	}
	return len(strings.Fields(s)) > maxEnWords
}

func containsChinese(s string) bool {
	for _, r := range s {
		if isChinese(r) {
			return true
		}
	}
	return false
}

func isChinese(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

// hasGapConflict reports whether [start, end) overlaps any selected
// replacement or sits closer than the minimum gap to one.
func hasGapConflict(selected []types.Replacement, start, end, minGap int) bool {
	for _, s := range selected {
		var gap int
		switch {
		case start >= s.End:
			gap = start - s.End
		case s.Start >= end:
			gap = s.Start - end
		default:
			return true
		}
		if gap < minGap {
			return true
		}
	}
	return false
}

// findFirstNonOverlapping scans text left to right for an occurrence of
// cn that neither overlaps nor crowds the already selected spans.
// Offsets are rune offsets. Returns ok=false when every occurrence
// conflicts.
func findFirstNonOverlapping(text []rune, cn string, selected []types.Replacement, minGap int) (types.Range, bool) {
	needle := []rune(cn)
	if len(needle) == 0 {
		return types.Range{}, false
	}
	for from := 0; from+len(needle) <= len(text); {
		idx := indexRunes(text, needle, from)
		if idx < 0 {
			return types.Range{}, false
		}
		start, end := idx, idx+len(needle)
		if !hasGapConflict(selected, start, end, minGap) {
			return types.Range{Start: start, End: end}, true
		}
		from = end
	}
	return types.Range{}, false
}

func indexRunes(text, needle []rune, from int) int {
	for i := from; i+len(needle) <= len(text); i++ {
		match := true
		for j := range needle {
			if text[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

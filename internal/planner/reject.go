package planner

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	// Segments shorter than this after trimming are not worth a call.
	minSegmentRunes = 8

	// Minimum share of Chinese characters among non-whitespace runes
	// for a segment to count as translatable Chinese prose.
	minChineseDensity = 0.15
)

var emailShape = regexp.MustCompile(`@[^@\s]+\.[^@\s]+`)

// quickReject filters segments that planning cannot improve: too
// short, URL-like, email-like, or with too little Chinese content.
// Rejection happens before the cache key is computed, so rejected
// segments never consume cache space or endpoint budget.
func quickReject(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < minSegmentRunes {
		return true
	}
	if likelyURL(text) {
		return true
	}
	if likelyEmail(text) {
		return true
	}
	return !enoughChineseContent(text)
}

func likelyURL(text string) bool {
	return strings.Contains(text, "http://") ||
		strings.Contains(text, "https://") ||
		strings.Contains(text, "www.")
}

func likelyEmail(text string) bool {
	if !strings.Contains(text, "@") {
		return false
	}
	return emailShape.MatchString(text)
}

func enoughChineseContent(text string) bool {
	var chinese, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isChinese(r) {
			chinese++
		}
	}
	if total == 0 {
		return false
	}
	return float64(chinese)/float64(total) >= minChineseDensity
}

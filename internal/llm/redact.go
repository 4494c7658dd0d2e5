package llm

import (
	"regexp"
	"strings"
)

// Redaction placeholders. User-authored text never leaves the process
// with URLs, email addresses or long digit runs intact.
const (
	placeholderURL    = "[URL]"
	placeholderEmail  = "[EMAIL]"
	placeholderNumber = "[NUMBER]"
)

var (
	urlPattern    = regexp.MustCompile(`https?://\S+`)
	wwwPattern    = regexp.MustCompile(`\bwww\.\S+`)
	emailPattern  = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	digitsPattern = regexp.MustCompile(`[0-9]{6,}`)
)

// Redact strips URLs, emails and digit runs of six or more from text,
// trims it, and truncates to maxLen runes. Applied unconditionally to
// any user-authored text sent to an external endpoint; this is a
// privacy and cost control, not a formatting step.
func Redact(text string, maxLen int) string {
	t := urlPattern.ReplaceAllString(text, placeholderURL)
	t = wwwPattern.ReplaceAllString(t, placeholderURL)
	t = emailPattern.ReplaceAllString(t, placeholderEmail)
	t = digitsPattern.ReplaceAllString(t, placeholderNumber)
	t = strings.TrimSpace(t)
	if maxLen > 0 {
		if runes := []rune(t); len(runes) > maxLen {
			t = string(runes[:maxLen])
		}
	}
	return t
}

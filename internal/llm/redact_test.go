package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedactScrubsContactDetails(t *testing.T) {
	got := Redact("联系 test@example.com 或 http://x.co 电话13800001111", 320)

	require.NotContains(t, got, "test@example.com")
	require.NotContains(t, got, "http://x.co")
	require.NotContains(t, got, "13800001111")
	require.Contains(t, got, placeholderEmail)
	require.Contains(t, got, placeholderURL)
	require.Contains(t, got, placeholderNumber)
	require.Contains(t, got, "联系")
}

func TestRedactWwwWithoutScheme(t *testing.T) {
	got := Redact("访问 www.example.com/page 了解", 320)
	require.NotContains(t, got, "www.example.com")
	require.Contains(t, got, placeholderURL)
}

func TestRedactKeepsShortDigitRuns(t *testing.T) {
	// Five digits stay; six or more are scrubbed.
	require.Equal(t, "共12345个", Redact("共12345个", 320))
	require.Equal(t, "共[NUMBER]个", Redact("共123456个", 320))
}

func TestRedactTruncatesByRunes(t *testing.T) {
	got := Redact(strings.Repeat("学", 100), 10)
	require.Equal(t, strings.Repeat("学", 10), got)
}

func TestRedactTrims(t *testing.T) {
	require.Equal(t, "文本", Redact("  文本  ", 320))
	require.Equal(t, "", Redact("   ", 320))
}

// Package types holds the shared domain types of the FlowLingo engine:
// segments, span actions, replacements, endpoints, dictionary entries,
// word states and behavioral events.
//
// All text offsets in this package are Unicode code point (rune) offsets
// into the segment text, half-open [start, end).
package types

// Segment is an immutable unit of page text submitted for planning.
// Identity is by ID; Text is never mutated after creation.
type Segment struct {
	ID   string `json:"segmentId"`
	Text string `json:"text"`
}

// Range is a half-open [Start, End) span in rune offsets.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of runes covered by the range.
func (r Range) Len() int { return r.End - r.Start }

// ActionKind discriminates the SpanAction union.
type ActionKind string

const (
	ActionInjectWord      ActionKind = "inject_word"
	ActionRewriteSentence ActionKind = "rewrite_sentence"
)

// Presentation controls how a replacement is rendered on the page.
type Presentation string

const (
	PresentationEnCn   Presentation = "en_cn"   // target with source support
	PresentationCnEn   Presentation = "cn_en"   // source with target support
	PresentationEnOnly Presentation = "en_only" // target only
)

// Valid reports whether p is one of the three known presentation modes.
func (p Presentation) Valid() bool {
	switch p {
	case PresentationEnCn, PresentationCnEn, PresentationEnOnly:
		return true
	}
	return false
}

// Intensity is the intervention level on the ordered scale
// off < low < medium < high.
type Intensity string

const (
	IntensityOff    Intensity = "off"
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

var intensityOrder = []Intensity{IntensityOff, IntensityLow, IntensityMedium, IntensityHigh}

// Index returns the position of i on the intensity scale, defaulting to
// medium for unknown values.
func (i Intensity) Index() int {
	for idx, v := range intensityOrder {
		if v == i {
			return idx
		}
	}
	return 2
}

// IntensityFromIndex maps a scale position back to an intensity,
// clamping to [off, high].
func IntensityFromIndex(idx int) Intensity {
	if idx < 0 {
		idx = 0
	}
	if idx > 3 {
		idx = 3
	}
	return intensityOrder[idx]
}

// WordPayload is the inject_word variant payload.
type WordPayload struct {
	ID string `json:"id"`
	En string `json:"en"`
	Cn string `json:"cn"`
}

// RewritePayload is the rewrite_sentence variant payload.
type RewritePayload struct {
	En        string `json:"en"`
	SupportCn string `json:"supportCn,omitempty"`
}

// RenderHint tells the overlay renderer how to present an action.
type RenderHint struct {
	Presentation Presentation `json:"presentation"`
}

// SpanAction is a single text-span transformation. Kind selects which
// payload field is set; consumers must match on Kind exhaustively.
type SpanAction struct {
	Kind    ActionKind      `json:"kind"`
	Range   Range           `json:"range"`
	Word    *WordPayload    `json:"word,omitempty"`
	Rewrite *RewritePayload `json:"rewrite,omitempty"`
	Render  RenderHint      `json:"render"`
}

// SegmentActions is the per-segment planning result.
type SegmentActions struct {
	SegmentID string       `json:"segmentId"`
	Actions   []SpanAction `json:"actions"`
}

// ReplacementItem is one LLM-proposed candidate, pre-validation.
type ReplacementItem struct {
	Cn string `json:"cn"`
	En string `json:"en"`
}

// Replacement is a validated, positioned replacement within a segment.
type Replacement struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	En    string `json:"en"`
}

// CacheEntry is the immutable value stored under a content-addressed
// cache key. Replacement entries carry ranges that were valid for the
// text that produced the key and are re-validated at read time;
// explanation entries carry only text.
type CacheEntry struct {
	Replacements []Replacement `json:"replacements,omitempty"`
	Explanation  string        `json:"explanation,omitempty"`
	WrittenAt    int64         `json:"ts"`
}

// Endpoint is one configured chat-completions endpoint. The orchestrator
// treats endpoint lists as input and never mutates them.
type Endpoint struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	BaseURL    string `json:"baseUrl" yaml:"base_url"`
	APIKey     string `json:"apiKey" yaml:"api_key"`
	Model      string `json:"model" yaml:"model"`
	LastStatus string `json:"lastStatus" yaml:"last_status"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Priority   int    `json:"priority" yaml:"priority"`
	RateLimit  int    `json:"rateLimit" yaml:"rate_limit"`
}

// DictionaryEntry is one surface form in the static vocabulary.
// Immutable at runtime; the trie is rebuilt, never patched.
type DictionaryEntry struct {
	ID    string   `json:"id"`
	Cn    string   `json:"cn"`
	En    string   `json:"en"`
	Flags []string `json:"flags,omitempty"`
	Level int      `json:"level"`
}

// DictionaryPackage tracks the import state of one extension tier.
type DictionaryPackage struct {
	Level      int    `json:"level"`
	ID         string `json:"id"`
	Path       string `json:"path"`
	Hash       string `json:"hash"`
	Status     string `json:"status"` // importing | imported
	Entries    int    `json:"entries"`
	Progress   int    `json:"progress"`
	ImportedAt int64  `json:"importedAt,omitempty"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// MatchCandidate is one greedy dictionary match within a text.
type MatchCandidate struct {
	WordID string   `json:"wordId"`
	Start  int      `json:"start"`
	End    int      `json:"end"`
	Cn     string   `json:"cn"`
	En     string   `json:"en"`
	Flags  []string `json:"flags,omitempty"`
}

// WordState is the per-word mastery record, owned by the store.
// The planner reads only the derived IsKnown; the user-model writer
// updates the rest in response to behavioral events.
type WordState struct {
	WordID         string  `json:"wordId"`
	Mastery        float64 `json:"mastery"`
	En             string  `json:"en,omitempty"`
	Cn             string  `json:"cn,omitempty"`
	ExposureCount  int     `json:"exposureCount"`
	HoverCount     int     `json:"hoverCount"`
	PronounceCount int     `json:"pronounceCount"`
	KnownCount     int     `json:"knownCount"`
	UnknownCount   int     `json:"unknownCount"`
	LastSeenAt     int64   `json:"lastSeenAt,omitempty"`
	LastFeedbackAt int64   `json:"lastFeedbackAt,omitempty"`
}

// IsKnown reports whether the user has explicitly marked this word known
// at least once and has not since forgotten it.
func (w *WordState) IsKnown() bool { return w != nil && w.KnownCount > 0 }

// EventType enumerates the behavioral event kinds aggregated by the
// adaptive intensity controller.
type EventType string

const (
	EventHover     EventType = "hover"
	EventPronounce EventType = "pronounce"
	EventKnown     EventType = "known"
	EventUnknown   EventType = "unknown"
	EventRestore   EventType = "restore"
	EventPause     EventType = "pause"
	EventResume    EventType = "resume"
)

// EventMeta carries optional word context on an event.
type EventMeta struct {
	En string `json:"en,omitempty"`
	Cn string `json:"cn,omitempty"`
}

// Event is one append-only behavioral log row.
type Event struct {
	ID       int64     `json:"id,omitempty"`
	Type     EventType `json:"type"`
	Domain   string    `json:"domain"`
	TargetID string    `json:"targetId,omitempty"`
	Ts       int64     `json:"ts"`
	Meta     EventMeta `json:"meta,omitempty"`
}

// SiteRule is a per-domain enable/disable override.
type SiteRule struct {
	Domain  string `json:"domain"`
	Enabled bool   `json:"enabled"`
}

// LearningPolicy is the learning slice of a page policy.
type LearningPolicy struct {
	Tested          bool      `json:"tested"`
	DifficultyLevel string    `json:"difficultyLevel"`
	Intensity       Intensity `json:"intensity"`
}

// PagePolicy is the per-domain gating decision consumed by the planner.
type PagePolicy struct {
	Enabled          bool           `json:"enabled"`
	Presentation     Presentation   `json:"presentation"`
	Learning         LearningPolicy `json:"learning"`
	ReplacementReady bool           `json:"replacementReady"`
	BlockedReason    string         `json:"blockedReason,omitempty"`
}

// LearningStats tracks cumulative and per-day replacement counts.
type LearningStats struct {
	DayTs             int64 `json:"dayTs"`
	TotalTranslations int64 `json:"totalTranslations"`
	TodayTranslations int64 `json:"todayTranslations"`
}

// CEFRLevels lists the difficulty levels accepted by the LLM prompts.
var CEFRLevels = []string{"A1", "A2", "B1", "B2", "C1", "C2"}

// ValidCEFRLevel reports whether s is a known CEFR level.
func ValidCEFRLevel(s string) bool {
	for _, l := range CEFRLevels {
		if s == l {
			return true
		}
	}
	return false
}

package llm

import (
	"encoding/json"
	"strings"
)

// extractJSONObject parses content as a JSON object, tolerating models
// that wrap the object in prose or code fences: when direct parsing
// fails it retries on the substring between the first '{' and the last
// '}'. Returns false when no object can be recovered.
func extractJSONObject(content string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, false
	}
	if raw, ok := tryObject(trimmed); ok {
		return raw, true
	}

	first := strings.Index(trimmed, "{")
	last := strings.LastIndex(trimmed, "}")
	if first < 0 || last <= first {
		return nil, false
	}
	return tryObject(trimmed[first : last+1])
}

func tryObject(s string) (json.RawMessage, bool) {
	var probe any
	if err := json.Unmarshal([]byte(s), &probe); err != nil {
		return nil, false
	}
	// Objects are the contract; arrays are tolerated because some models
	// return the items list bare.
	switch probe.(type) {
	case map[string]any, []any:
		return json.RawMessage(s), true
	}
	return nil, false
}

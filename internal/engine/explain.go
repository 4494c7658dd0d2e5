package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/nsxzhou/flowlingo/internal/llm"
	"github.com/nsxzhou/flowlingo/internal/types"
)

// Input caps for explanation requests, in runes.
const (
	explainWordIDMax  = 64
	explainEnMax      = 64
	explainCnMax      = 80
	explainContextMax = 240
)

// ExplainRequest asks what a rendered word means in its context.
type ExplainRequest struct {
	Domain  string `json:"domain"`
	WordID  string `json:"wordId"`
	En      string `json:"en"`
	Cn      string `json:"cn"`
	Context string `json:"context"`
}

// Explanation is the result of an explanation lookup.
type Explanation struct {
	Explanation string `json:"explanation"`
	Cached      bool   `json:"cached,omitempty"`
}

// explainKeyPayload is hashed into the explanation cache key.
// Explanations use a short non-cryptographic key; collisions cost a
// wrong explanation, not a wrong page mutation.
type explainKeyPayload struct {
	V       int    `json:"v"`
	Domain  string `json:"domain"`
	WordID  string `json:"wordId"`
	En      string `json:"en"`
	Cn      string `json:"cn"`
	Context string `json:"context"`
	Level   string `json:"level"`
	Model   string `json:"model"`
}

// ExplainWord returns a contextual Chinese explanation of one rendered
// English word, cached in the replacement cache under an "explain:"
// key so repeated hovers on the same word cost one endpoint call.
func (e *Engine) ExplainWord(ctx context.Context, req ExplainRequest) (Explanation, error) {
	domain := normalizeDomain(req.Domain)
	wordID := truncateRunes(strings.TrimSpace(req.WordID), explainWordIDMax)
	en := truncateRunes(strings.TrimSpace(req.En), explainEnMax)
	cn := truncateRunes(strings.TrimSpace(req.Cn), explainCnMax)
	contextText := truncateRunes(strings.TrimSpace(req.Context), explainContextMax)

	if en == "" || cn == "" {
		return Explanation{}, types.NewError(types.CodeInvalidRequest, "missing en/cn")
	}

	settings, err := e.Settings()
	if err != nil {
		return Explanation{}, err
	}

	level := settings.Learning.DifficultyLevel
	if level == "" {
		level = "B1"
	}

	key := explainCacheKey(explainKeyPayload{
		V:       1,
		Domain:  domain,
		WordID:  wordID,
		En:      en,
		Cn:      cn,
		Context: contextText,
		Level:   level,
		Model:   settings.LLM.Model,
	})

	if entry, ok := e.cache.Get(key); ok {
		if cached := strings.TrimSpace(entry.Explanation); cached != "" {
			return Explanation{Explanation: cached, Cached: true}, nil
		}
	}

	if !settings.LLM.Enabled {
		return Explanation{}, types.NewError(types.CodeLLMDisabled, "llm disabled")
	}

	explanation, err := e.orch.ExplainWordInContext(ctx, settings.LLM, llm.ExplainRequest{
		En:              en,
		Cn:              cn,
		Context:         contextText,
		Domain:          domain,
		DifficultyLevel: level,
	})
	if err != nil {
		return Explanation{}, err
	}

	e.cache.Set(key, types.CacheEntry{Explanation: explanation, WrittenAt: e.nowMilli()})
	return Explanation{Explanation: explanation}, nil
}

func explainCacheKey(p explainKeyPayload) string {
	payload, _ := json.Marshal(p)
	h := fnv.New32a()
	h.Write(payload)
	return fmt.Sprintf("explain:%08x", h.Sum32())
}

func truncateRunes(s string, max int) string {
	if runes := []rune(s); len(runes) > max {
		return string(runes[:max])
	}
	return s
}

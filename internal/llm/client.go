// Package llm is the endpoint orchestrator: it drives OpenAI-compatible
// chat-completions endpoints with failover, selection strategy, an
// optional global rate limit, and mandatory redaction of user text.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nsxzhou/flowlingo/internal/config"
	"github.com/nsxzhou/flowlingo/internal/types"
)

const (
	// Per-call timeout clamp. The settings-level timeout allows up to a
	// minute for probes; planning calls are bounded tighter so one slow
	// endpoint cannot stall a page.
	minCallTimeout     = 1 * time.Second
	maxCallTimeout     = 20 * time.Second
	defaultCallTimeout = 5 * time.Second

	// Round-robin cursor wraps well before int overflow.
	cursorModulus = 1_000_000
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Request is one chat completion to run against the configured endpoint
// pool. User content must already be redacted by the caller's shaper.
type Request struct {
	System      string
	User        string
	Model       string // overrides the settings default when non-empty
	MaxTokens   int
	Temperature float64
}

// Orchestrator fans requests out across the enabled endpoints according
// to the configured strategy. It is safe for concurrent use; the only
// mutable state is the round-robin cursor and the rate limiter.
type Orchestrator struct {
	httpClient *http.Client
	logger     *zap.Logger

	mu         sync.Mutex
	cursor     int
	limiter    *rate.Limiter
	limiterRPM int
}

// NewOrchestrator builds an orchestrator. The HTTP client carries no
// timeout of its own; every call gets a per-request context deadline.
func NewOrchestrator(logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Complete runs req against the endpoint pool with failover and returns
// the raw assistant content of the first success. Endpoints are tried in
// strategy order; a rate-limited endpoint stops the sweep immediately
// rather than burning the rest of the pool.
func (o *Orchestrator) Complete(ctx context.Context, cfg config.LLMSettings, req Request) (string, error) {
	if !cfg.Enabled {
		return "", types.NewError(types.CodeLLMDisabled, "llm is disabled")
	}
	endpoints := cfg.EnabledEndpoints()
	if len(endpoints) == 0 {
		return "", types.NewError(types.CodeLLMEndpointUnavailable, "no enabled endpoints")
	}

	if err := o.acquire(ctx, cfg); err != nil {
		return "", err
	}

	order := o.order(cfg.Strategy, endpoints)
	timeout := callTimeout(cfg.TimeoutMs)

	var lastErr error
	for _, ep := range order {
		content, err := o.callEndpoint(ctx, ep, cfg.Model, req, timeout)
		if err == nil {
			return content, nil
		}
		lastErr = err
		o.logger.Debug("endpoint call failed",
			zap.String("endpoint", ep.Name),
			zap.Error(err))
		if types.IsCode(err, types.CodeRateLimited) {
			// The provider told us to back off; retrying elsewhere
			// within the same request would defeat the point.
			return "", err
		}
	}
	return "", types.WrapError(types.CodeLLMEndpointUnavailable, "all endpoints failed", lastErr)
}

// CompleteObject runs req and parses the assistant content as a JSON
// object, tolerating prose-wrapped output.
func (o *Orchestrator) CompleteObject(ctx context.Context, cfg config.LLMSettings, req Request) (json.RawMessage, error) {
	content, err := o.Complete(ctx, cfg, req)
	if err != nil {
		return nil, err
	}
	raw, ok := extractJSONObject(content)
	if !ok {
		return nil, types.NewErrorDetail(types.CodeLLMEndpointUnavailable,
			"endpoint returned no parseable JSON", snippet(content))
	}
	return raw, nil
}

// CallOne runs req against a single endpoint with no failover and no
// rate limiting. Used by the connectivity probe, which must report the
// health of exactly the endpoint asked about.
func (o *Orchestrator) CallOne(ctx context.Context, ep types.Endpoint, defaultModel string, req Request, timeoutMs int) (string, error) {
	return o.callEndpoint(ctx, ep, defaultModel, req, callTimeout(timeoutMs))
}

// order returns the endpoints in try order for one request. Priority
// sorts ascending (lower value first) with the configured order breaking
// ties; round_robin rotates a shared cursor that advances once per
// request regardless of outcome.
func (o *Orchestrator) order(strategy string, endpoints []types.Endpoint) []types.Endpoint {
	out := make([]types.Endpoint, len(endpoints))
	copy(out, endpoints)

	if strategy == "priority" {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
		return out
	}

	o.mu.Lock()
	start := o.cursor % len(out)
	o.cursor = (o.cursor + 1) % cursorModulus
	o.mu.Unlock()

	rotated := make([]types.Endpoint, 0, len(out))
	rotated = append(rotated, out[start:]...)
	rotated = append(rotated, out[:start]...)
	return rotated
}

// acquire waits on the global rate limiter when one is configured.
// Hitting the limit past the context deadline surfaces as RATE_LIMITED,
// not a timeout, so callers do not fail over.
func (o *Orchestrator) acquire(ctx context.Context, cfg config.LLMSettings) error {
	if !cfg.RateLimitEnabled || cfg.GlobalRateLimit <= 0 {
		return nil
	}

	o.mu.Lock()
	if o.limiter == nil || o.limiterRPM != cfg.GlobalRateLimit {
		burst := cfg.GlobalRateLimit / 6
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(float64(cfg.GlobalRateLimit)/60.0), burst)
		o.limiterRPM = cfg.GlobalRateLimit
	}
	limiter := o.limiter
	o.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return types.WrapError(types.CodeRateLimited, "global rate limit exceeded", err)
	}
	return nil
}

func (o *Orchestrator) callEndpoint(ctx context.Context, ep types.Endpoint, defaultModel string, req Request, timeout time.Duration) (string, error) {
	model := req.Model
	if model == "" {
		model = ep.Model
	}
	if model == "" {
		model = defaultModel
	}

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.User})

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", types.WrapError(types.CodeInvalidRequest, "failed to encode chat request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, completionsURL(ep.BaseURL), bytes.NewReader(body))
	if err != nil {
		return "", types.WrapError(types.CodeInvalidRequest, "failed to build chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if ep.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return "", types.NewErrorDetail(types.CodeLLMTimeout,
				"endpoint timed out", fmt.Sprintf("endpoint=%s timeout=%s", ep.Name, timeout))
		}
		return "", types.WrapError(types.CodeLLMEndpointUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", types.WrapError(types.CodeLLMEndpointUnavailable, "failed to read response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", types.NewErrorDetail(types.CodeRateLimited,
			"endpoint rate limited", fmt.Sprintf("endpoint=%s", ep.Name))
	}
	if resp.StatusCode != http.StatusOK {
		return "", types.NewErrorDetail(types.CodeLLMEndpointUnavailable,
			fmt.Sprintf("endpoint returned %d", resp.StatusCode), snippet(string(data)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", types.WrapError(types.CodeLLMEndpointUnavailable, "failed to decode response", err)
	}
	if parsed.Error != nil {
		return "", types.NewErrorDetail(types.CodeLLMEndpointUnavailable, "endpoint error", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", types.NewError(types.CodeLLMEndpointUnavailable, "endpoint returned empty content")
	}
	return parsed.Choices[0].Message.Content, nil
}

// completionsURL normalizes a base URL into its chat-completions path.
// Users paste base URLs with and without the suffix; both work.
func completionsURL(baseURL string) string {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if strings.HasSuffix(u, "/chat/completions") {
		return u
	}
	return u + "/chat/completions"
}

func callTimeout(ms int) time.Duration {
	if ms <= 0 {
		return defaultCallTimeout
	}
	d := time.Duration(ms) * time.Millisecond
	if d < minCallTimeout {
		return minCallTimeout
	}
	if d > maxCallTimeout {
		return maxCallTimeout
	}
	return d
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > 200 {
		return string(runes[:200]) + "…"
	}
	return s
}

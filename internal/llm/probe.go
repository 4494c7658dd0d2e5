package llm

import (
	"context"
	"strings"

	"github.com/nsxzhou/flowlingo/internal/types"
)

// ProbeResult is the outcome of a successful connectivity probe.
type ProbeResult struct {
	Message string `json:"message"`
	Sample  string `json:"sample"`
}

// TestEndpoint sends a minimal completion to a single endpoint and
// reports whether it answered. No failover and no rate limiting: the
// caller is asking about exactly this endpoint.
func (o *Orchestrator) TestEndpoint(ctx context.Context, baseURL, apiKey, model string, timeoutMs int) (ProbeResult, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return ProbeResult{}, types.NewError(types.CodeInvalidRequest, "invalid baseUrl")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return ProbeResult{}, types.NewError(types.CodeInvalidRequest, "missing model")
	}

	ep := types.Endpoint{ID: "test", BaseURL: baseURL, APIKey: apiKey, Model: model}
	content, err := o.CallOne(ctx, ep, model, Request{
		User:        "Say OK",
		MaxTokens:   10,
		Temperature: 0,
	}, timeoutMs)
	if err != nil {
		return ProbeResult{}, err
	}
	return ProbeResult{Message: "连接成功", Sample: strings.TrimSpace(content)}, nil
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nsxzhou/flowlingo/internal/config"
	"github.com/nsxzhou/flowlingo/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// net/http keeps idle connections alive briefly after tests.
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func chatContent(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(body)
}

func chatServer(t *testing.T, hits *atomic.Int32, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		require.Equal(t, "/chat/completions", r.URL.Path)
		w.WriteHeader(status)
		if status == http.StatusOK {
			fmt.Fprint(w, chatContent(content))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func settingsFor(urls ...string) config.LLMSettings {
	eps := make([]types.Endpoint, 0, len(urls))
	for i, u := range urls {
		eps = append(eps, types.Endpoint{
			ID:       fmt.Sprintf("ep%d", i),
			Name:     fmt.Sprintf("endpoint-%d", i),
			BaseURL:  u,
			Enabled:  true,
			Priority: i,
		})
	}
	return config.LLMSettings{
		Enabled:   true,
		Model:     "gpt-4o-mini",
		Strategy:  "priority",
		Endpoints: eps,
		TimeoutMs: 5000,
	}
}

func TestCompleteDisabled(t *testing.T) {
	o := NewOrchestrator(nil)
	cfg := settingsFor("http://localhost:1")
	cfg.Enabled = false

	_, err := o.Complete(context.Background(), cfg, Request{User: "hi"})
	require.True(t, types.IsCode(err, types.CodeLLMDisabled))
}

func TestCompleteNoEndpoints(t *testing.T) {
	o := NewOrchestrator(nil)
	_, err := o.Complete(context.Background(), config.LLMSettings{Enabled: true}, Request{User: "hi"})
	require.True(t, types.IsCode(err, types.CodeLLMEndpointUnavailable))
}

func TestCompleteFailsOver(t *testing.T) {
	var aHits, bHits atomic.Int32
	a := chatServer(t, &aHits, http.StatusInternalServerError, "")
	b := chatServer(t, &bHits, http.StatusOK, "from b")

	o := NewOrchestrator(nil)
	content, err := o.Complete(context.Background(), settingsFor(a.URL, b.URL), Request{User: "hi"})
	require.NoError(t, err)
	require.Equal(t, "from b", content)
	require.Equal(t, int32(1), aHits.Load())
	require.Equal(t, int32(1), bHits.Load())
}

func TestCompleteAllEndpointsFailed(t *testing.T) {
	a := chatServer(t, nil, http.StatusInternalServerError, "")
	b := chatServer(t, nil, http.StatusBadGateway, "")

	o := NewOrchestrator(nil)
	_, err := o.Complete(context.Background(), settingsFor(a.URL, b.URL), Request{User: "hi"})
	require.True(t, types.IsCode(err, types.CodeLLMEndpointUnavailable))
}

func TestCompleteRateLimitedStopsFailover(t *testing.T) {
	var bHits atomic.Int32
	a := chatServer(t, nil, http.StatusTooManyRequests, "")
	b := chatServer(t, &bHits, http.StatusOK, "never reached")

	o := NewOrchestrator(nil)
	_, err := o.Complete(context.Background(), settingsFor(a.URL, b.URL), Request{User: "hi"})
	require.True(t, types.IsCode(err, types.CodeRateLimited))
	require.Equal(t, int32(0), bHits.Load())
}

func TestCompleteRoundRobinRotates(t *testing.T) {
	var aHits, bHits atomic.Int32
	a := chatServer(t, &aHits, http.StatusOK, "a")
	b := chatServer(t, &bHits, http.StatusOK, "b")

	cfg := settingsFor(a.URL, b.URL)
	cfg.Strategy = "round_robin"

	o := NewOrchestrator(nil)
	first, err := o.Complete(context.Background(), cfg, Request{User: "hi"})
	require.NoError(t, err)
	second, err := o.Complete(context.Background(), cfg, Request{User: "hi"})
	require.NoError(t, err)

	// The cursor advances once per request, so consecutive calls land
	// on different endpoints.
	require.NotEqual(t, first, second)
	require.Equal(t, int32(1), aHits.Load())
	require.Equal(t, int32(1), bHits.Load())
}

func TestCompletePriorityOrder(t *testing.T) {
	var aHits, bHits atomic.Int32
	a := chatServer(t, &aHits, http.StatusOK, "a")
	b := chatServer(t, &bHits, http.StatusOK, "b")

	cfg := settingsFor(b.URL, a.URL)
	cfg.Endpoints[0].Priority = 5
	cfg.Endpoints[1].Priority = 1

	o := NewOrchestrator(nil)
	for i := 0; i < 3; i++ {
		content, err := o.Complete(context.Background(), cfg, Request{User: "hi"})
		require.NoError(t, err)
		require.Equal(t, "a", content)
	}
	require.Equal(t, int32(3), aHits.Load())
	require.Equal(t, int32(0), bHits.Load())
}

func TestCompleteEmptyContent(t *testing.T) {
	srv := chatServer(t, nil, http.StatusOK, "   ")

	o := NewOrchestrator(nil)
	_, err := o.Complete(context.Background(), settingsFor(srv.URL), Request{User: "hi"})
	require.True(t, types.IsCode(err, types.CodeLLMEndpointUnavailable))
}

func TestCompleteTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	t.Cleanup(srv.Close)

	cfg := settingsFor(srv.URL)
	cfg.TimeoutMs = 1000

	o := NewOrchestrator(nil)
	_, err := o.CallOne(context.Background(), cfg.Endpoints[0], cfg.Model, Request{User: "hi"}, cfg.TimeoutMs)
	require.True(t, types.IsCode(err, types.CodeLLMTimeout))
}

func TestGlobalRateLimitBlocksSurface(t *testing.T) {
	srv := chatServer(t, nil, http.StatusOK, "ok")

	cfg := settingsFor(srv.URL)
	cfg.RateLimitEnabled = true
	cfg.GlobalRateLimit = 1 // one request a minute, burst 1

	o := NewOrchestrator(nil)
	_, err := o.Complete(context.Background(), cfg, Request{User: "hi"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = o.Complete(ctx, cfg, Request{User: "hi"})
	require.True(t, types.IsCode(err, types.CodeRateLimited))
}

func TestCompletionsURLNormalization(t *testing.T) {
	require.Equal(t, "https://api.example.com/v1/chat/completions", completionsURL("https://api.example.com/v1"))
	require.Equal(t, "https://api.example.com/v1/chat/completions", completionsURL("https://api.example.com/v1/"))
	require.Equal(t, "https://api.example.com/v1/chat/completions", completionsURL("https://api.example.com/v1/chat/completions"))
	require.Equal(t, "https://api.example.com/v1/chat/completions", completionsURL("  https://api.example.com/v1  "))
}

func TestTestEndpointProbe(t *testing.T) {
	srv := chatServer(t, nil, http.StatusOK, "OK")

	o := NewOrchestrator(nil)
	res, err := o.TestEndpoint(context.Background(), srv.URL, "", "gpt-4o-mini", 5000)
	require.NoError(t, err)
	require.Equal(t, "连接成功", res.Message)
	require.Equal(t, "OK", res.Sample)
}

func TestTestEndpointValidation(t *testing.T) {
	o := NewOrchestrator(nil)

	_, err := o.TestEndpoint(context.Background(), "", "", "gpt-4o-mini", 5000)
	require.True(t, types.IsCode(err, types.CodeInvalidRequest))

	_, err = o.TestEndpoint(context.Background(), "http://localhost:1", "", "", 5000)
	require.True(t, types.IsCode(err, types.CodeInvalidRequest))
}

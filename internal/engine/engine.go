// Package engine wires the FlowLingo services together and exposes the
// operations the surfaces call: planning, explanation, settings, site
// rules, events, stats and dictionary management.
package engine

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nsxzhou/flowlingo/internal/cache"
	"github.com/nsxzhou/flowlingo/internal/config"
	"github.com/nsxzhou/flowlingo/internal/dictionary"
	"github.com/nsxzhou/flowlingo/internal/llm"
	"github.com/nsxzhou/flowlingo/internal/packages"
	"github.com/nsxzhou/flowlingo/internal/planner"
	"github.com/nsxzhou/flowlingo/internal/policy"
	"github.com/nsxzhou/flowlingo/internal/signals"
	"github.com/nsxzhou/flowlingo/internal/store"
	"github.com/nsxzhou/flowlingo/internal/types"
	"github.com/nsxzhou/flowlingo/internal/usermodel"
)

const settingsKey = "globalSettings"

// Options configures engine construction.
type Options struct {
	DBPath       string // sqlite database file
	CorePath     string // core dictionary JSONL
	ManifestPath string // extension package manifest JSON
	Logger       *zap.Logger
}

// Engine is the composition root. One engine owns one store and one
// replacement cache; everything else is stateless over them.
type Engine struct {
	store     *store.Store
	cache     *cache.Cache
	dict      *dictionary.Service
	importer  *packages.Importer
	policy    *policy.Resolver
	orch      *llm.Orchestrator
	planner   *planner.Planner
	userModel *usermodel.Model
	logger    *zap.Logger
	now       func() time.Time
}

func (e *Engine) nowMilli() int64 { return e.now().UnixMilli() }

// New opens the store and wires the services. The returned engine must
// be closed to flush the replacement cache.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := store.Open(opts.DBPath, logger.Named("store"))
	if err != nil {
		return nil, err
	}

	c := cache.New(cache.DefaultCapacity, st, logger.Named("cache"))
	dict := dictionary.NewService(opts.CorePath, st, logger.Named("dictionary"))
	importer := packages.NewImporter(opts.ManifestPath, st, dict, logger.Named("packages"))
	orch := llm.NewOrchestrator(logger.Named("llm"))
	guard := signals.NewController(st, logger.Named("signals"))

	return &Engine{
		store:     st,
		cache:     c,
		dict:      dict,
		importer:  importer,
		policy:    policy.NewResolver(st),
		orch:      orch,
		planner:   planner.New(orch, c, guard, st, logger.Named("planner")),
		userModel: usermodel.New(st, logger.Named("usermodel")),
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Close flushes the cache and closes the store.
func (e *Engine) Close() error {
	e.cache.Close()
	return e.store.Close()
}

// Settings loads the stored global settings merged over defaults.
func (e *Engine) Settings() (config.Settings, error) {
	s := config.Default()
	var raw json.RawMessage
	ok, err := e.store.GetSetting(settingsKey, &raw)
	if err != nil {
		return config.Settings{}, types.WrapError(types.CodeDBError, "failed to load settings", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &s); err != nil {
			e.logger.Warn("stored settings unreadable, using defaults", zap.Error(err))
			s = config.Default()
		}
	}
	s.Normalize()
	return s, nil
}

// UpdateSettings normalizes and persists s, returning the stored form.
func (e *Engine) UpdateSettings(s config.Settings) (config.Settings, error) {
	s.Normalize()
	if err := e.store.SetSetting(settingsKey, s); err != nil {
		return config.Settings{}, types.WrapError(types.CodeDBError, "failed to save settings", err)
	}
	return s, nil
}

// PagePolicy resolves the gating decision for domain.
func (e *Engine) PagePolicy(domain string) (types.PagePolicy, error) {
	settings, err := e.Settings()
	if err != nil {
		return types.PagePolicy{}, err
	}
	return e.policy.ForDomain(normalizeDomain(domain), settings)
}

// SiteRule reports the per-domain override, defaulting to enabled with
// no override recorded.
func (e *Engine) SiteRule(domain string) (types.SiteRule, bool, error) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return types.SiteRule{}, false, types.NewError(types.CodeInvalidRequest, "missing domain")
	}
	rule, err := e.store.GetSiteRule(domain)
	if err != nil {
		return types.SiteRule{}, false, types.WrapError(types.CodeDBError, "failed to load site rule", err)
	}
	if rule == nil {
		return types.SiteRule{Domain: domain, Enabled: true}, false, nil
	}
	return *rule, true, nil
}

// SetSiteRule records a per-domain enable override.
func (e *Engine) SetSiteRule(domain string, enabled bool) error {
	domain = normalizeDomain(domain)
	if domain == "" {
		return types.NewError(types.CodeInvalidRequest, "missing domain")
	}
	if err := e.store.PutSiteRule(types.SiteRule{Domain: domain, Enabled: enabled}); err != nil {
		return types.WrapError(types.CodeDBError, "failed to save site rule", err)
	}
	return nil
}

// PlanTransforms plans span actions for the segments of one page.
func (e *Engine) PlanTransforms(ctx context.Context, domain string, segments []types.Segment) ([]types.SegmentActions, error) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return nil, types.NewError(types.CodeInvalidRequest, "missing domain")
	}
	settings, err := e.Settings()
	if err != nil {
		return nil, err
	}
	pagePolicy, err := e.policy.ForDomain(domain, settings)
	if err != nil {
		return nil, err
	}
	return e.planner.PlanTransforms(ctx, planner.Request{
		Domain:   domain,
		Segments: segments,
		Policy:   pagePolicy,
		Settings: settings,
	})
}

// RewriteSentence renders one Chinese sentence into level-matched
// English.
func (e *Engine) RewriteSentence(ctx context.Context, domain, text string) (llm.Rewrite, error) {
	settings, err := e.Settings()
	if err != nil {
		return llm.Rewrite{}, err
	}
	return e.orch.RewriteSentence(ctx, settings.LLM, llm.RewriteRequest{
		Text:            text,
		Domain:          normalizeDomain(domain),
		DifficultyLevel: settings.Learning.DifficultyLevel,
	})
}

// TestEndpoint probes one endpoint's connectivity.
func (e *Engine) TestEndpoint(ctx context.Context, baseURL, apiKey, model string, timeoutMs int) (llm.ProbeResult, error) {
	return e.orch.TestEndpoint(ctx, baseURL, apiKey, model, timeoutMs)
}

// EnsureDictionary imports whatever packages level needs and loads the
// tier.
func (e *Engine) EnsureDictionary(level int) (*dictionary.Tier, error) {
	if err := e.importer.EnsureLevel(level); err != nil {
		return nil, err
	}
	return e.dict.Ensure(level)
}

// MatchCandidates runs the greedy dictionary matcher over text at
// level.
func (e *Engine) MatchCandidates(text string, level int) ([]types.MatchCandidate, error) {
	if err := e.importer.EnsureLevel(level); err != nil {
		return nil, err
	}
	return e.dict.MatchCandidates(text, level)
}

// FlushCache persists the replacement cache immediately.
func (e *Engine) FlushCache() { e.cache.Flush() }

// ClearCache drops the replacement cache, memory and durable.
func (e *Engine) ClearCache() { e.cache.Clear() }

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

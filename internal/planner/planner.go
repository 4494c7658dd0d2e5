// Package planner turns page segments into span actions: it gates on
// page policy, resolves adaptive intensity, consults the replacement
// cache, asks the endpoint orchestrator for candidates, and validates
// every span before it reaches the page.
package planner

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nsxzhou/flowlingo/internal/cache"
	"github.com/nsxzhou/flowlingo/internal/config"
	"github.com/nsxzhou/flowlingo/internal/llm"
	"github.com/nsxzhou/flowlingo/internal/signals"
	"github.com/nsxzhou/flowlingo/internal/types"
)

const (
	// Hard per-segment ceiling on replacements at any active intensity.
	// Intensity shapes candidate density through the prompt, not the cap.
	maxPerSegment = 15

	// Minimum rune gap between adjacent replacements within a segment.
	minGapRunes = 8

	// LLM candidate request ceiling per segment.
	maxItemsCeiling = 12

	// Worker pool bounds for per-segment fan-out.
	minPoolWorkers = 5
	maxPoolWorkers = 8
)

// CandidateSource plans replacement candidates for one segment text.
// Implemented by the orchestrator.
type CandidateSource interface {
	PlanReplacements(ctx context.Context, cfg config.LLMSettings, req llm.PlanRequest) ([]types.ReplacementItem, error)
}

// IntensityResolver applies the behavioral guard to the configured
// intensity. Implemented by the signals controller.
type IntensityResolver interface {
	Resolve(domain string, intensity types.Intensity, presentation types.Presentation) (signals.Decision, error)
}

// ReplacementCache stores validated replacement sets by content key.
type ReplacementCache interface {
	Get(key string) (types.CacheEntry, bool)
	Set(key string, entry types.CacheEntry)
}

// Planner is the replacement planning pipeline.
type Planner struct {
	source CandidateSource
	cache  ReplacementCache
	guard  IntensityResolver
	words  WordStateSource
	logger *zap.Logger
	now    func() time.Time
}

// New builds a planner. All collaborators are required except words,
// which may be nil when no mastery store exists; every word then
// renders as unknown.
func New(source CandidateSource, c ReplacementCache, guard IntensityResolver, words WordStateSource, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		source: source,
		cache:  c,
		guard:  guard,
		words:  words,
		logger: logger,
		now:    time.Now,
	}
}

// Request is one planning call for a page.
type Request struct {
	Domain   string
	Segments []types.Segment
	Policy   types.PagePolicy
	Settings config.Settings
}

// PlanTransforms plans span actions for every segment in the request.
// Segments fan out to a bounded worker pool; per-segment failures skip
// that segment rather than failing the page. Results preserve input
// segment order and each segment's actions are ordered by start offset.
func (p *Planner) PlanTransforms(ctx context.Context, req Request) ([]types.SegmentActions, error) {
	if !req.Policy.Enabled {
		return nil, types.NewError(types.CodeNotEnabled, "not enabled")
	}
	if len(req.Segments) == 0 {
		return []types.SegmentActions{}, nil
	}
	if !req.Policy.ReplacementReady {
		return []types.SegmentActions{}, nil
	}

	level := normalizeDifficultyLevel(req.Policy.Learning.DifficultyLevel)
	baseIntensity := normalizeIntensity(req.Policy.Learning.Intensity)

	decision, err := p.guard.Resolve(req.Domain, baseIntensity, req.Policy.Presentation)
	if err != nil {
		return nil, err
	}
	if decision.Intensity == types.IntensityOff {
		return []types.SegmentActions{}, nil
	}
	if !req.Settings.LLM.Enabled {
		return []types.SegmentActions{}, nil
	}

	memo := newKnownMemo(p.words)
	results := make([]*types.SegmentActions, len(req.Segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolLimit(len(req.Settings.LLM.EnabledEndpoints()), len(req.Segments)))
	for i, seg := range req.Segments {
		i, seg := i, seg
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = p.planSegment(gctx, req, seg, level, decision, memo)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, types.WrapError(types.CodeLLMEndpointUnavailable, "planning cancelled", err)
	}

	out := make([]types.SegmentActions, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (p *Planner) planSegment(ctx context.Context, req Request, seg types.Segment, level string, decision signals.Decision, memo *knownMemo) *types.SegmentActions {
	if seg.ID == "" || quickReject(seg.Text) {
		return nil
	}

	key := cache.Key(req.Domain, seg.Text, level, decision.Intensity, decision.Presentation, req.Settings.LLM.Model)

	var replacements []types.Replacement
	if entry, ok := p.cache.Get(key); ok {
		replacements = entry.Replacements
	} else {
		replacements = p.planFresh(ctx, req, seg.Text, level, decision.Intensity)
		if len(replacements) > 0 {
			p.cache.Set(key, types.CacheEntry{
				Replacements: replacements,
				WrittenAt:    p.now().UnixMilli(),
			})
		}
	}
	if len(replacements) == 0 {
		return nil
	}

	actions := p.materialize(seg.Text, replacements, decision.Presentation, memo)
	if len(actions) == 0 {
		return nil
	}
	return &types.SegmentActions{SegmentID: seg.ID, Actions: actions}
}

// planFresh asks the candidate source for items and positions them:
// unsafe phrases are dropped, each survivor takes its first occurrence
// that respects overlap and gap constraints, and selection stops at the
// per-segment cap. Source failure yields no replacements; the segment
// is simply skipped this round.
func (p *Planner) planFresh(ctx context.Context, req Request, text, level string, intensity types.Intensity) []types.Replacement {
	maxItems := 2 * maxPerSegment
	if maxItems > maxItemsCeiling {
		maxItems = maxItemsCeiling
	}

	items, err := p.source.PlanReplacements(ctx, req.Settings.LLM, llm.PlanRequest{
		Text:            text,
		Domain:          req.Domain,
		DifficultyLevel: level,
		Intensity:       intensity,
		MaxItems:        maxItems,
	})
	if err != nil {
		p.logger.Debug("segment planning failed", zap.String("domain", req.Domain), zap.Error(err))
		return nil
	}

	runes := []rune(text)
	selected := make([]types.Replacement, 0, maxPerSegment)
	for _, item := range items {
		cn := strings.TrimSpace(item.Cn)
		en := strings.TrimSpace(item.En)
		if unsafeCnPhrase(cn) || unsafeEnPhrase(en) {
			continue
		}
		r, ok := findFirstNonOverlapping(runes, cn, selected, minGapRunes)
		if !ok {
			continue
		}
		selected = append(selected, types.Replacement{Start: r.Start, End: r.End, En: en})
		if len(selected) >= maxPerSegment {
			break
		}
	}
	return selected
}

// materialize turns positioned replacements into inject_word actions.
// Every span is re-validated against the current text, so a cache entry
// written for different text degrades to fewer actions instead of
// corrupting the page. Known words render en_only.
func (p *Planner) materialize(text string, replacements []types.Replacement, presentation types.Presentation, memo *knownMemo) []types.SpanAction {
	runes := []rune(text)
	actions := make([]types.SpanAction, 0, len(replacements))
	for _, rep := range replacements {
		if rep.End <= rep.Start || rep.Start < 0 || rep.End > len(runes) {
			continue
		}
		en := strings.TrimSpace(rep.En)
		if unsafeEnPhrase(en) {
			continue
		}
		cn := string(runes[rep.Start:rep.End])
		if unsafeCnPhrase(cn) {
			continue
		}

		id := WordIDForCn(cn)
		render := presentation
		if p.words != nil && memo.isKnown(id) {
			render = types.PresentationEnOnly
		}
		actions = append(actions, types.SpanAction{
			Kind:   types.ActionInjectWord,
			Range:  types.Range{Start: rep.Start, End: rep.End},
			Word:   &types.WordPayload{ID: id, En: en, Cn: cn},
			Render: types.RenderHint{Presentation: render},
		})
	}
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Range.Start < actions[j].Range.Start })
	return actions
}

// poolLimit sizes the segment worker pool from the endpoint count,
// bounded to [1, 8] and never wider than the segment list.
func poolLimit(endpointCount, segmentCount int) int {
	n := 2 * endpointCount
	if n < minPoolWorkers {
		n = minPoolWorkers
	}
	if n > maxPoolWorkers {
		n = maxPoolWorkers
	}
	if n > segmentCount {
		n = segmentCount
	}
	if n < 1 {
		n = 1
	}
	return n
}

func normalizeDifficultyLevel(level string) string {
	level = strings.TrimSpace(level)
	if types.ValidCEFRLevel(level) {
		return level
	}
	return "B1"
}

func normalizeIntensity(i types.Intensity) types.Intensity {
	switch i {
	case types.IntensityLow, types.IntensityMedium, types.IntensityHigh:
		return i
	}
	return types.IntensityMedium
}

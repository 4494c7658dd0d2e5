// Package policy derives the per-domain gating decision: whether the
// engine runs on a page at all, and whether replacement planning is
// ready to serve it.
package policy

import (
	"strings"

	"github.com/nsxzhou/flowlingo/internal/config"
	"github.com/nsxzhou/flowlingo/internal/types"
)

// Blocked reasons, most specific first. A page blocked for several
// reasons reports the earliest one in this order.
const (
	ReasonSiteBlocked   = "site_blocked"
	ReasonDisabled      = "disabled"
	ReasonNeedTest      = "need_test"
	ReasonNeedLLMConfig = "need_llm_config"
)

// RuleSource looks up per-domain overrides. Implemented by the store.
type RuleSource interface {
	GetSiteRule(domain string) (*types.SiteRule, error)
}

// Resolver computes page policies from global settings and site rules.
type Resolver struct {
	rules RuleSource
}

// NewResolver builds a resolver over rules. Rules may be nil, in which
// case only the global site lists gate domains.
func NewResolver(rules RuleSource) *Resolver {
	return &Resolver{rules: rules}
}

// ForDomain derives the policy for one domain under settings. A
// domain-specific rule overrides the global enable; site list matching
// is case-insensitive substring containment, so a pattern of
// "example.com" also covers its subdomains.
func (r *Resolver) ForDomain(domain string, settings config.Settings) (types.PagePolicy, error) {
	siteAllowed := siteAllowed(domain, settings)

	ruleEnabled := true
	if r.rules != nil && domain != "" {
		rule, err := r.rules.GetSiteRule(domain)
		if err != nil {
			return types.PagePolicy{}, types.WrapError(types.CodeDBError, "failed to load site rule", err)
		}
		if rule != nil {
			ruleEnabled = rule.Enabled
		}
	}

	enabled := settings.Enabled && siteAllowed && ruleEnabled
	tested := settings.Learning.Tested
	llmConfigured := settings.LLM.Configured()
	replacementReady := enabled && tested && llmConfigured

	var blockedReason string
	switch {
	case !siteAllowed:
		blockedReason = ReasonSiteBlocked
	case !enabled:
		blockedReason = ReasonDisabled
	case !tested:
		blockedReason = ReasonNeedTest
	case !llmConfigured:
		blockedReason = ReasonNeedLLMConfig
	}

	return types.PagePolicy{
		Enabled:      enabled,
		Presentation: settings.Presentation,
		Learning: types.LearningPolicy{
			Tested:          tested,
			DifficultyLevel: settings.Learning.DifficultyLevel,
			Intensity:       settings.Learning.Intensity,
		},
		ReplacementReady: replacementReady,
		BlockedReason:    blockedReason,
	}, nil
}

func siteAllowed(domain string, settings config.Settings) bool {
	d := strings.ToLower(domain)
	if settings.SiteMode == "whitelist" {
		if len(settings.AllowedSites) == 0 {
			return true
		}
		return matchesAny(d, settings.AllowedSites)
	}
	return !matchesAny(d, settings.ExcludedSites)
}

func matchesAny(domain string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(domain, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

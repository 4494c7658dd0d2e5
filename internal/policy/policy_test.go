package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsxzhou/flowlingo/internal/config"
	"github.com/nsxzhou/flowlingo/internal/types"
)

type fakeRules struct {
	rules map[string]bool
}

func (f *fakeRules) GetSiteRule(domain string) (*types.SiteRule, error) {
	if f == nil || f.rules == nil {
		return nil, nil
	}
	if enabled, ok := f.rules[domain]; ok {
		return &types.SiteRule{Domain: domain, Enabled: enabled}, nil
	}
	return nil, nil
}

func readySettings() config.Settings {
	s := config.Default()
	s.Learning.Tested = true
	s.Learning.DifficultyLevel = "B1"
	s.LLM.Enabled = true
	s.LLM.Endpoints = []types.Endpoint{{ID: "ep", BaseURL: "https://a", Enabled: true}}
	return s
}

func TestPolicyReady(t *testing.T) {
	r := NewResolver(&fakeRules{})

	p, err := r.ForDomain("example.com", readySettings())
	require.NoError(t, err)
	require.True(t, p.Enabled)
	require.True(t, p.ReplacementReady)
	require.Empty(t, p.BlockedReason)
	require.Equal(t, "B1", p.Learning.DifficultyLevel)
	require.Equal(t, types.IntensityMedium, p.Learning.Intensity)
}

func TestPolicyExcludedSite(t *testing.T) {
	s := readySettings()
	s.ExcludedSites = []string{"Example.COM"}
	r := NewResolver(&fakeRules{})

	p, err := r.ForDomain("news.example.com", s)
	require.NoError(t, err)
	require.False(t, p.Enabled)
	require.False(t, p.ReplacementReady)
	require.Equal(t, ReasonSiteBlocked, p.BlockedReason)
}

func TestPolicyWhitelistMode(t *testing.T) {
	s := readySettings()
	s.SiteMode = "whitelist"
	s.AllowedSites = []string{"example.com"}
	r := NewResolver(&fakeRules{})

	p, err := r.ForDomain("example.com", s)
	require.NoError(t, err)
	require.True(t, p.Enabled)

	p, err = r.ForDomain("other.org", s)
	require.NoError(t, err)
	require.False(t, p.Enabled)
	require.Equal(t, ReasonSiteBlocked, p.BlockedReason)
}

func TestPolicyEmptyWhitelistAllowsAll(t *testing.T) {
	s := readySettings()
	s.SiteMode = "whitelist"
	r := NewResolver(&fakeRules{})

	p, err := r.ForDomain("anything.example", s)
	require.NoError(t, err)
	require.True(t, p.Enabled)
}

func TestPolicySiteRuleOverride(t *testing.T) {
	r := NewResolver(&fakeRules{rules: map[string]bool{"example.com": false}})

	p, err := r.ForDomain("example.com", readySettings())
	require.NoError(t, err)
	require.False(t, p.Enabled)
	require.Equal(t, ReasonDisabled, p.BlockedReason)
}

func TestPolicyGlobalDisable(t *testing.T) {
	s := readySettings()
	s.Enabled = false
	r := NewResolver(&fakeRules{})

	p, err := r.ForDomain("example.com", s)
	require.NoError(t, err)
	require.False(t, p.Enabled)
	require.Equal(t, ReasonDisabled, p.BlockedReason)
}

func TestPolicyNeedsTest(t *testing.T) {
	s := readySettings()
	s.Learning.Tested = false
	s.Normalize()
	r := NewResolver(&fakeRules{})

	p, err := r.ForDomain("example.com", s)
	require.NoError(t, err)
	require.True(t, p.Enabled)
	require.False(t, p.ReplacementReady)
	require.Equal(t, ReasonNeedTest, p.BlockedReason)
}

func TestPolicyNeedsLLMConfig(t *testing.T) {
	s := readySettings()
	s.LLM.Enabled = false
	r := NewResolver(&fakeRules{})

	p, err := r.ForDomain("example.com", s)
	require.NoError(t, err)
	require.True(t, p.Enabled)
	require.False(t, p.ReplacementReady)
	require.Equal(t, ReasonNeedLLMConfig, p.BlockedReason)
}

// Package config holds FlowLingo's global settings: presentation,
// learning state, voice, LLM endpoints and tuning knobs. Settings are
// persisted as a single document in the store and may also be loaded
// from a YAML file for CLI use.
package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nsxzhou/flowlingo/internal/types"
)

// Settings is the full global configuration document.
type Settings struct {
	Enabled      bool               `json:"enabled" yaml:"enabled"`
	Presentation types.Presentation `json:"presentation" yaml:"presentation"`
	Learning     LearningSettings   `json:"learning" yaml:"learning"`
	Voice        VoiceSettings      `json:"voice" yaml:"voice"`
	LLM          LLMSettings        `json:"llm" yaml:"llm"`
	Tuning       TuningSettings     `json:"tuning" yaml:"tuning"`

	// Site gating: "all" runs everywhere except ExcludedSites,
	// "whitelist" runs only on AllowedSites.
	SiteMode      string   `json:"siteMode" yaml:"site_mode"`
	ExcludedSites []string `json:"excludedSites" yaml:"excluded_sites"`
	AllowedSites  []string `json:"allowedSites" yaml:"allowed_sites"`
}

// LearningSettings carries the user's assessed level and chosen
// intervention intensity.
type LearningSettings struct {
	Tested          bool            `json:"tested" yaml:"tested"`
	DifficultyLevel string          `json:"difficultyLevel" yaml:"difficulty_level"`
	TestedAt        int64           `json:"testedAt" yaml:"tested_at"`
	Intensity       types.Intensity `json:"intensity" yaml:"intensity"`
}

// VoiceSettings is stored configuration for the (out-of-scope)
// pronunciation feature.
type VoiceSettings struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Provider    string  `json:"provider" yaml:"provider"`
	Lang        string  `json:"lang" yaml:"lang"`
	Rate        float64 `json:"rate" yaml:"rate"`
	AutoOnHover bool    `json:"autoOnHover" yaml:"auto_on_hover"`
}

// LLMSettings configures the orchestrator: endpoint list, selection
// strategy, default model, timeout and the optional global rate limit.
type LLMSettings struct {
	Enabled          bool             `json:"enabled" yaml:"enabled"`
	Model            string           `json:"model" yaml:"model"`
	Strategy         string           `json:"strategy" yaml:"strategy"` // round_robin | priority
	Endpoints        []types.Endpoint `json:"endpoints" yaml:"endpoints"`
	TimeoutMs        int              `json:"timeoutMs" yaml:"timeout_ms"`
	RateLimitEnabled bool             `json:"rateLimitEnabled" yaml:"rate_limit_enabled"`
	GlobalRateLimit  int              `json:"globalRateLimit" yaml:"global_rate_limit"` // requests per minute
}

// TuningSettings groups behavioral model knobs.
type TuningSettings struct {
	Mastery MasteryTuning `json:"mastery" yaml:"mastery"`
}

// MasteryTuning controls how behavioral events move a word's mastery.
type MasteryTuning struct {
	HoverPenalty   float64 `json:"hoverPenalty" yaml:"hover_penalty"`
	KnownReward    float64 `json:"knownReward" yaml:"known_reward"`
	UnknownPenalty float64 `json:"unknownPenalty" yaml:"unknown_penalty"`
}

const (
	defaultModel     = "gpt-4o-mini"
	defaultTimeoutMs = 5000

	minTimeoutMs = 1000
	maxTimeoutMs = 60000
)

var voiceProviders = []string{"system", "google", "youdao"}

// Default returns the settings used before the user has configured
// anything.
func Default() Settings {
	return Settings{
		Enabled:      true,
		Presentation: types.PresentationEnCn,
		Learning: LearningSettings{
			Tested:          false,
			DifficultyLevel: "",
			TestedAt:        0,
			Intensity:       types.IntensityMedium,
		},
		Voice: VoiceSettings{
			Enabled:     true,
			Provider:    "system",
			Lang:        "en-US",
			Rate:        1.0,
			AutoOnHover: false,
		},
		LLM: LLMSettings{
			Enabled:          false,
			Model:            defaultModel,
			Strategy:         "round_robin",
			Endpoints:        nil,
			TimeoutMs:        defaultTimeoutMs,
			RateLimitEnabled: false,
			GlobalRateLimit:  60,
		},
		Tuning: TuningSettings{
			Mastery: MasteryTuning{
				HoverPenalty:   0.01,
				KnownReward:    0.08,
				UnknownPenalty: 0.12,
			},
		},
		SiteMode:      "all",
		ExcludedSites: nil,
		AllowedSites:  nil,
	}
}

// Normalize clamps and validates s in place, filling invalid fields from
// defaults. Every settings document read from storage or YAML passes
// through here before use.
func (s *Settings) Normalize() {
	def := Default()

	if !s.Presentation.Valid() {
		s.Presentation = def.Presentation
	}

	if s.Learning.Intensity != types.IntensityLow &&
		s.Learning.Intensity != types.IntensityMedium &&
		s.Learning.Intensity != types.IntensityHigh {
		s.Learning.Intensity = def.Learning.Intensity
	}
	if !types.ValidCEFRLevel(s.Learning.DifficultyLevel) {
		s.Learning.DifficultyLevel = ""
	}
	if !s.Learning.Tested {
		// An untested user has no level yet.
		s.Learning.DifficultyLevel = ""
		s.Learning.TestedAt = 0
	}

	if !validVoiceProvider(s.Voice.Provider) {
		s.Voice.Provider = def.Voice.Provider
	}
	if s.Voice.Lang != "en-GB" {
		s.Voice.Lang = "en-US"
	}
	if s.Voice.Rate < 0.5 || s.Voice.Rate > 2.0 {
		s.Voice.Rate = def.Voice.Rate
	}

	if s.LLM.Model == "" {
		s.LLM.Model = def.LLM.Model
	}
	if s.LLM.Strategy != "priority" && s.LLM.Strategy != "round_robin" {
		s.LLM.Strategy = def.LLM.Strategy
	}
	if s.LLM.TimeoutMs < minTimeoutMs {
		s.LLM.TimeoutMs = minTimeoutMs
	}
	if s.LLM.TimeoutMs > maxTimeoutMs {
		s.LLM.TimeoutMs = maxTimeoutMs
	}
	if s.LLM.GlobalRateLimit < 0 {
		s.LLM.GlobalRateLimit = 0
	}
	for i := range s.LLM.Endpoints {
		ep := &s.LLM.Endpoints[i]
		if ep.ID == "" {
			ep.ID = uuid.NewString()
		}
		if ep.Name == "" {
			ep.Name = "unnamed endpoint"
		}
		if ep.LastStatus == "" {
			ep.LastStatus = "unknown"
		}
		if ep.RateLimit < 0 {
			ep.RateLimit = 0
		}
	}

	if s.Tuning.Mastery.HoverPenalty <= 0 {
		s.Tuning.Mastery.HoverPenalty = def.Tuning.Mastery.HoverPenalty
	}
	if s.Tuning.Mastery.KnownReward <= 0 {
		s.Tuning.Mastery.KnownReward = def.Tuning.Mastery.KnownReward
	}
	if s.Tuning.Mastery.UnknownPenalty <= 0 {
		s.Tuning.Mastery.UnknownPenalty = def.Tuning.Mastery.UnknownPenalty
	}

	if s.SiteMode != "whitelist" {
		s.SiteMode = "all"
	}
	s.ExcludedSites = filterNonEmpty(s.ExcludedSites)
	s.AllowedSites = filterNonEmpty(s.AllowedSites)
}

// EnabledEndpoints returns the endpoints eligible for calls: enabled with
// a non-empty base URL.
func (l LLMSettings) EnabledEndpoints() []types.Endpoint {
	var out []types.Endpoint
	for _, ep := range l.Endpoints {
		if ep.Enabled && ep.BaseURL != "" {
			out = append(out, ep)
		}
	}
	return out
}

// Configured reports whether the LLM layer can plan replacements at all.
func (l LLMSettings) Configured() bool {
	return l.Enabled && len(l.EnabledEndpoints()) > 0
}

func validVoiceProvider(p string) bool {
	for _, v := range voiceProviders {
		if p == v {
			return true
		}
	}
	return false
}

func filterNonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Load reads settings from a YAML file and normalizes them.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config: %w", err)
	}
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config: %w", err)
	}
	s.Normalize()
	return s, nil
}

// Save writes settings to a YAML file.
func Save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

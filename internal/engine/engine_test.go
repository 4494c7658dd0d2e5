package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nsxzhou/flowlingo/internal/config"
	"github.com/nsxzhou/flowlingo/internal/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Options{DBPath: filepath.Join(t.TempDir(), "flowlingo.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestSettingsDefaultWhenUnset(t *testing.T) {
	e := newTestEngine(t)

	s, err := e.Settings()
	require.NoError(t, err)
	require.Equal(t, config.Default(), s)
}

func TestUpdateSettingsPersistsNormalized(t *testing.T) {
	e := newTestEngine(t)

	s := config.Default()
	s.Learning.Intensity = "extreme"
	s.Learning.Tested = true
	s.Learning.DifficultyLevel = "B2"

	saved, err := e.UpdateSettings(s)
	require.NoError(t, err)
	require.Equal(t, types.IntensityMedium, saved.Learning.Intensity)

	loaded, err := e.Settings()
	require.NoError(t, err)
	require.Equal(t, "B2", loaded.Learning.DifficultyLevel)
	require.Equal(t, types.IntensityMedium, loaded.Learning.Intensity)
}

func TestSiteRuleDefaultsToEnabled(t *testing.T) {
	e := newTestEngine(t)

	rule, stored, err := e.SiteRule("Example.COM")
	require.NoError(t, err)
	require.False(t, stored)
	require.True(t, rule.Enabled)
	require.Equal(t, "example.com", rule.Domain)

	require.NoError(t, e.SetSiteRule("Example.COM", false))
	rule, stored, err = e.SiteRule("example.com")
	require.NoError(t, err)
	require.True(t, stored)
	require.False(t, rule.Enabled)

	_, _, err = e.SiteRule("  ")
	require.True(t, types.IsCode(err, types.CodeInvalidRequest))
}

func TestPagePolicyUsesStoredSettings(t *testing.T) {
	e := newTestEngine(t)

	p, err := e.PagePolicy("example.com")
	require.NoError(t, err)
	require.True(t, p.Enabled)
	require.False(t, p.ReplacementReady)

	require.NoError(t, e.SetSiteRule("example.com", false))
	p, err = e.PagePolicy("example.com")
	require.NoError(t, err)
	require.False(t, p.Enabled)
}

func TestPlanTransformsRequiresDomain(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.PlanTransforms(context.Background(), "", nil)
	require.True(t, types.IsCode(err, types.CodeInvalidRequest))
}

func TestPlanTransformsNotReadyIsEmpty(t *testing.T) {
	e := newTestEngine(t)

	// Default settings are enabled but untested, so nothing is planned.
	actions, err := e.PlanTransforms(context.Background(), "example.com", []types.Segment{
		{ID: "s1", Text: "这是一个测试句子用于学习"},
	})
	require.NoError(t, err)
	require.Empty(t, actions)
}

func TestLearningStatsStartEmpty(t *testing.T) {
	e := newTestEngine(t)
	e.now = func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.Local) }

	stats, err := e.LearningStats()
	require.NoError(t, err)
	require.Zero(t, stats.TotalTranslations)
	require.Zero(t, stats.TodayTranslations)
	require.Equal(t, dayStart(e.now()), stats.DayTs)
}

func TestAddTranslationsAccumulates(t *testing.T) {
	e := newTestEngine(t)
	e.now = func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.Local) }

	stats, err := e.AddTranslations(3)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.TotalTranslations)
	require.Equal(t, int64(3), stats.TodayTranslations)

	stats, err = e.AddTranslations(2)
	require.NoError(t, err)
	require.Equal(t, int64(5), stats.TotalTranslations)
	require.Equal(t, int64(5), stats.TodayTranslations)

	// Non-positive deltas just read.
	stats, err = e.AddTranslations(0)
	require.NoError(t, err)
	require.Equal(t, int64(5), stats.TotalTranslations)
}

func TestLearningStatsDayRollover(t *testing.T) {
	e := newTestEngine(t)

	day1 := time.Date(2026, 3, 10, 23, 30, 0, 0, time.Local)
	e.now = func() time.Time { return day1 }
	_, err := e.AddTranslations(7)
	require.NoError(t, err)

	day2 := day1.Add(2 * time.Hour) // past local midnight
	e.now = func() time.Time { return day2 }

	stats, err := e.LearningStats()
	require.NoError(t, err)
	require.Equal(t, int64(7), stats.TotalTranslations)
	require.Zero(t, stats.TodayTranslations)
	require.Equal(t, dayStart(day2), stats.DayTs)

	// The rollover is persisted, not just computed.
	stats, err = e.AddTranslations(1)
	require.NoError(t, err)
	require.Equal(t, int64(8), stats.TotalTranslations)
	require.Equal(t, int64(1), stats.TodayTranslations)
}

func TestReportEventValidation(t *testing.T) {
	e := newTestEngine(t)

	err := e.ReportEvent(types.Event{Domain: "example.com"})
	require.True(t, types.IsCode(err, types.CodeInvalidRequest))

	err = e.ReportEvent(types.Event{Type: types.EventHover})
	require.True(t, types.IsCode(err, types.CodeInvalidRequest))
}

func TestReportEventUpdatesWordState(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.ReportEvent(types.Event{
		Type:     types.EventKnown,
		Domain:   "Example.com",
		TargetID: "w1",
		Meta:     types.EventMeta{En: "study", Cn: "学习"},
	}))

	state, err := e.store.GetWordState("w1")
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Equal(t, 1, state.KnownCount)
	require.InDelta(t, 0.58, state.Mastery, 1e-9)
	require.Equal(t, "study", state.En)
}

func TestReportEventSweepsOldEvents(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	e.now = func() time.Time { return now }

	old := now.UnixMilli() - 15*24*time.Hour.Milliseconds()
	_, err := e.store.AddEvent(types.Event{Type: types.EventHover, Domain: "example.com", Ts: old})
	require.NoError(t, err)

	require.NoError(t, e.ReportEvent(types.Event{Type: types.EventHover, Domain: "example.com"}))

	events, err := e.store.ListRecentEvents("", old-1000, now.UnixMilli()+1000, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, now.UnixMilli(), events[0].Ts)

	var last int64
	ok, err := e.store.GetSetting("eventsCleanupAt", &last)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, now.UnixMilli(), last)
}

func TestDailyActivityCountsByType(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	e.now = func() time.Time { return now }

	for _, typ := range []types.EventType{types.EventHover, types.EventHover, types.EventKnown} {
		require.NoError(t, e.ReportEvent(types.Event{Type: typ, Domain: "example.com"}))
	}

	counts, err := e.DailyActivity(0)
	require.NoError(t, err)
	require.Equal(t, 2, counts[types.EventHover])
	require.Equal(t, 1, counts[types.EventKnown])
}

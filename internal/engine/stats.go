package engine

import (
	"time"

	"github.com/nsxzhou/flowlingo/internal/types"
)

const statsKey = "learningStats"

// storedStats is the persisted shape under the learningStats setting.
type storedStats struct {
	TotalTranslations int64 `json:"totalTranslations"`
	DayTs             int64 `json:"dayTs"`
	DayTranslations   int64 `json:"dayTranslations"`
}

// LearningStats returns cumulative and today's replacement counts,
// rolling the daily counter over at local midnight. Rollover persists
// immediately so a crash cannot resurrect yesterday's count.
func (e *Engine) LearningStats() (types.LearningStats, error) {
	nowDay := dayStart(e.now())

	var stored storedStats
	if _, err := e.store.GetSetting(statsKey, &stored); err != nil {
		return types.LearningStats{}, types.WrapError(types.CodeDBError, "failed to load stats", err)
	}
	stored.TotalTranslations = clampNonNegative(stored.TotalTranslations)
	stored.DayTranslations = clampNonNegative(stored.DayTranslations)

	storedDay := nowDay
	if stored.DayTs > 0 {
		storedDay = dayStart(time.UnixMilli(stored.DayTs))
	}

	if storedDay != nowDay {
		reset := storedStats{
			TotalTranslations: stored.TotalTranslations,
			DayTs:             nowDay,
			DayTranslations:   0,
		}
		if err := e.store.SetSetting(statsKey, reset); err != nil {
			return types.LearningStats{}, types.WrapError(types.CodeDBError, "failed to save stats", err)
		}
		return types.LearningStats{
			DayTs:             nowDay,
			TotalTranslations: reset.TotalTranslations,
			TodayTranslations: 0,
		}, nil
	}

	return types.LearningStats{
		DayTs:             storedDay,
		TotalTranslations: stored.TotalTranslations,
		TodayTranslations: stored.DayTranslations,
	}, nil
}

// AddTranslations bumps the replacement counters by delta applied
// replacements and returns the updated stats. Non-positive deltas just
// read.
func (e *Engine) AddTranslations(delta int64) (types.LearningStats, error) {
	if delta <= 0 {
		return e.LearningStats()
	}

	nowDay := dayStart(e.now())

	var stored storedStats
	if _, err := e.store.GetSetting(statsKey, &stored); err != nil {
		return types.LearningStats{}, types.WrapError(types.CodeDBError, "failed to load stats", err)
	}
	stored.TotalTranslations = clampNonNegative(stored.TotalTranslations)
	stored.DayTranslations = clampNonNegative(stored.DayTranslations)

	storedDay := nowDay
	if stored.DayTs > 0 {
		storedDay = dayStart(time.UnixMilli(stored.DayTs))
	}
	dayTranslations := stored.DayTranslations
	if storedDay != nowDay {
		dayTranslations = 0
	}

	next := storedStats{
		TotalTranslations: stored.TotalTranslations + delta,
		DayTs:             nowDay,
		DayTranslations:   dayTranslations + delta,
	}
	if err := e.store.SetSetting(statsKey, next); err != nil {
		return types.LearningStats{}, types.WrapError(types.CodeDBError, "failed to save stats", err)
	}

	return types.LearningStats{
		DayTs:             next.DayTs,
		TotalTranslations: next.TotalTranslations,
		TodayTranslations: next.DayTranslations,
	}, nil
}

// DailyActivity counts the day's events by type across all domains.
func (e *Engine) DailyActivity(dayTs int64) (map[types.EventType]int, error) {
	day := e.now()
	if dayTs > 0 {
		day = time.UnixMilli(dayTs)
	}
	start := dayStart(day)
	end := start + 24*time.Hour.Milliseconds()

	events, err := e.store.ListRecentEvents("", start, end, 500)
	if err != nil {
		return nil, types.WrapError(types.CodeDBError, "failed to load events", err)
	}

	counts := make(map[types.EventType]int)
	for _, ev := range events {
		counts[ev.Type]++
	}
	return counts, nil
}

// dayStart returns local midnight of t in unix milliseconds.
func dayStart(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).UnixMilli()
}

func clampNonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

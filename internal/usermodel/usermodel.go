// Package usermodel maintains per-word mastery state in response to
// behavioral events. Mastery lives in [0, 1]; a word counts as known
// while its knownCount is positive.
package usermodel

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nsxzhou/flowlingo/internal/config"
	"github.com/nsxzhou/flowlingo/internal/types"
)

const initialMastery = 0.5

// unknownMasteryCeiling caps mastery before the unknown penalty applies,
// so an explicitly forgotten word cannot stay near-mastered.
const unknownMasteryCeiling = 0.4

// StateStore reads and writes word states. Implemented by the store.
type StateStore interface {
	GetWordState(wordID string) (*types.WordState, error)
	PutWordState(state types.WordState) error
}

// Model applies events to word states.
type Model struct {
	store  StateStore
	logger *zap.Logger
	now    func() time.Time
}

// New builds a model over store.
func New(store StateStore, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Model{store: store, logger: logger, now: time.Now}
}

// ApplyEvent folds one behavioral event into the state of its target
// word. Events without a target are ignored. Restore, pause and resume
// touch recency only; they feed the intensity guard, not mastery.
func (m *Model) ApplyEvent(event types.Event, tuning config.MasteryTuning) error {
	if event.TargetID == "" {
		return nil
	}

	state, err := m.store.GetWordState(event.TargetID)
	if err != nil {
		return types.WrapError(types.CodeDBError, "failed to load word state", err)
	}
	if state == nil {
		state = &types.WordState{WordID: event.TargetID, Mastery: initialMastery}
	}

	ts := event.Ts
	if ts <= 0 {
		ts = m.now().UnixMilli()
	}
	state.LastSeenAt = ts

	if en := strings.TrimSpace(event.Meta.En); en != "" {
		state.En = en
	}
	if cn := strings.TrimSpace(event.Meta.Cn); cn != "" {
		state.Cn = cn
	}

	switch event.Type {
	case types.EventHover:
		state.HoverCount++
		state.LastFeedbackAt = ts
		state.Mastery = clamp01(state.Mastery - tuning.HoverPenalty)
	case types.EventPronounce:
		state.PronounceCount++
		state.LastFeedbackAt = ts
	case types.EventKnown:
		state.KnownCount++
		state.LastFeedbackAt = ts
		state.Mastery = clamp01(state.Mastery + tuning.KnownReward)
	case types.EventUnknown:
		state.UnknownCount++
		state.LastFeedbackAt = ts
		// Explicit "I forgot" cancels the known mark entirely; a word
		// the user forgot must become eligible for replacement again.
		state.KnownCount = 0
		base := state.Mastery
		if base > unknownMasteryCeiling {
			base = unknownMasteryCeiling
		}
		state.Mastery = clamp01(base - tuning.UnknownPenalty)
	}

	if err := m.store.PutWordState(*state); err != nil {
		return types.WrapError(types.CodeDBError, "failed to save word state", err)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Package signals turns recent user interaction history into an
// intensity and presentation decision, guarding against
// over-intervention the user is visibly struggling with or rejecting.
package signals

import (
	"time"

	"go.uber.org/zap"

	"github.com/nsxzhou/flowlingo/internal/types"
)

const (
	// Window of behavioral history considered per decision.
	window = 30 * time.Minute
	// Most recent events considered within the window.
	maxEvents = 200
)

// Guard thresholds. Any satisfied condition steps intensity down one
// level and forces dual-language presentation.
const (
	minInteractions  = 5
	unknownRateLimit = 0.5
	minHovers        = 5
	restoreRateLimit = 0.2
	minPauses        = 2
	pauseRateLimit   = 0.5
)

// Counts aggregates event occurrences by type.
type Counts struct {
	Hover     int
	Pronounce int
	Known     int
	Unknown   int
	Restore   int
	Pause     int
	Resume    int
}

// Signals is the derived view of recent behavior.
type Signals struct {
	Counts      Counts
	UnknownRate float64 // unknown / (known+unknown), 0 when no feedback
	RestoreRate float64 // restore / hover, 0 when no hovers
	PauseRate   float64 // pause / (pause+resume), 0 when neither
	Events      int
}

// Derive aggregates events into signals. Unknown event types are
// ignored.
func Derive(events []types.Event) Signals {
	var c Counts
	for _, e := range events {
		switch e.Type {
		case types.EventHover:
			c.Hover++
		case types.EventPronounce:
			c.Pronounce++
		case types.EventKnown:
			c.Known++
		case types.EventUnknown:
			c.Unknown++
		case types.EventRestore:
			c.Restore++
		case types.EventPause:
			c.Pause++
		case types.EventResume:
			c.Resume++
		}
	}

	s := Signals{Counts: c, Events: len(events)}
	if n := c.Known + c.Unknown; n > 0 {
		s.UnknownRate = float64(c.Unknown) / float64(n)
	}
	if c.Hover > 0 {
		s.RestoreRate = float64(c.Restore) / float64(c.Hover)
	}
	if n := c.Pause + c.Resume; n > 0 {
		s.PauseRate = float64(c.Pause) / float64(n)
	}
	return s
}

// Decision is the guarded intensity and presentation for one planning
// call. SteppedDown records whether the guard fired.
type Decision struct {
	Intensity    types.Intensity
	Presentation types.Presentation
	SteppedDown  bool
}

// ApplyGuard evaluates the step-down rule against signals. The guard is
// stateless: it is evaluated fresh on every planning call.
func ApplyGuard(intensity types.Intensity, presentation types.Presentation, s Signals) Decision {
	interactions := s.Counts.Known + s.Counts.Unknown
	stepDown := (interactions >= minInteractions && s.UnknownRate >= unknownRateLimit) ||
		(s.Counts.Hover >= minHovers && s.RestoreRate >= restoreRateLimit) ||
		(s.Counts.Pause >= minPauses && s.PauseRate >= pauseRateLimit)

	if !stepDown {
		return Decision{Intensity: intensity, Presentation: presentation}
	}
	return Decision{
		Intensity:    types.IntensityFromIndex(intensity.Index() - 1),
		Presentation: types.PresentationEnCn,
		SteppedDown:  true,
	}
}

// EventSource queries the behavioral event log. Implemented by the
// store.
type EventSource interface {
	ListRecentEvents(domain string, sinceTs, endTs int64, limit int) ([]types.Event, error)
}

// Controller resolves the effective intensity for a domain from its
// recent event history.
type Controller struct {
	source EventSource
	logger *zap.Logger
	now    func() time.Time
}

// NewController builds a controller over source.
func NewController(source EventSource, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{source: source, logger: logger, now: time.Now}
}

// Resolve loads the domain's recent signals and applies the guard to the
// caller's configured intensity and presentation.
func (c *Controller) Resolve(domain string, intensity types.Intensity, presentation types.Presentation) (Decision, error) {
	now := c.now().UnixMilli()
	events, err := c.source.ListRecentEvents(domain, now-window.Milliseconds(), now, maxEvents)
	if err != nil {
		return Decision{}, types.WrapError(types.CodeDBError, "failed to load recent events", err)
	}

	sig := Derive(events)
	decision := ApplyGuard(intensity, presentation, sig)
	if decision.SteppedDown {
		c.logger.Debug("intensity guard fired",
			zap.String("domain", domain),
			zap.String("from", string(intensity)),
			zap.String("to", string(decision.Intensity)),
			zap.Float64("unknown_rate", sig.UnknownRate),
			zap.Float64("restore_rate", sig.RestoreRate),
			zap.Float64("pause_rate", sig.PauseRate))
	}
	return decision, nil
}

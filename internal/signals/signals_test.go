package signals

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsxzhou/flowlingo/internal/types"
)

func eventsOf(counts map[types.EventType]int) []types.Event {
	var out []types.Event
	for typ, n := range counts {
		for i := 0; i < n; i++ {
			out = append(out, types.Event{Type: typ, Domain: "example.com"})
		}
	}
	return out
}

func TestDeriveRates(t *testing.T) {
	s := Derive(eventsOf(map[types.EventType]int{
		types.EventKnown:   2,
		types.EventUnknown: 6,
		types.EventHover:   10,
		types.EventRestore: 3,
		types.EventPause:   1,
		types.EventResume:  1,
	}))

	require.Equal(t, 2, s.Counts.Known)
	require.Equal(t, 6, s.Counts.Unknown)
	require.InDelta(t, 0.75, s.UnknownRate, 1e-9)
	require.InDelta(t, 0.3, s.RestoreRate, 1e-9)
	require.InDelta(t, 0.5, s.PauseRate, 1e-9)
}

func TestDeriveEmptyEvents(t *testing.T) {
	s := Derive(nil)
	require.Zero(t, s.UnknownRate)
	require.Zero(t, s.RestoreRate)
	require.Zero(t, s.PauseRate)
}

func TestGuardFiresOnUnknownRate(t *testing.T) {
	// 1 known + 6 unknown: 7 interactions, 86% unknown.
	s := Derive(eventsOf(map[types.EventType]int{
		types.EventKnown:   1,
		types.EventUnknown: 6,
	}))

	d := ApplyGuard(types.IntensityHigh, types.PresentationEnOnly, s)
	require.True(t, d.SteppedDown)
	require.Equal(t, types.IntensityMedium, d.Intensity)
	require.Equal(t, types.PresentationEnCn, d.Presentation)
}

func TestGuardNeedsMinimumInteractions(t *testing.T) {
	// 100% unknown but only 4 interactions: below threshold.
	s := Derive(eventsOf(map[types.EventType]int{
		types.EventUnknown: 4,
	}))

	d := ApplyGuard(types.IntensityHigh, types.PresentationEnOnly, s)
	require.False(t, d.SteppedDown)
	require.Equal(t, types.IntensityHigh, d.Intensity)
	require.Equal(t, types.PresentationEnOnly, d.Presentation)
}

func TestGuardFiresOnRestoreRate(t *testing.T) {
	s := Derive(eventsOf(map[types.EventType]int{
		types.EventHover:   5,
		types.EventRestore: 1,
	}))

	d := ApplyGuard(types.IntensityMedium, types.PresentationCnEn, s)
	require.True(t, d.SteppedDown)
	require.Equal(t, types.IntensityLow, d.Intensity)
	require.Equal(t, types.PresentationEnCn, d.Presentation)
}

func TestGuardFiresOnPauseRate(t *testing.T) {
	s := Derive(eventsOf(map[types.EventType]int{
		types.EventPause: 2,
	}))

	d := ApplyGuard(types.IntensityLow, types.PresentationEnCn, s)
	require.True(t, d.SteppedDown)
	require.Equal(t, types.IntensityOff, d.Intensity)
}

func TestGuardStepDownClampsAtOff(t *testing.T) {
	s := Derive(eventsOf(map[types.EventType]int{
		types.EventUnknown: 5,
	}))

	d := ApplyGuard(types.IntensityOff, types.PresentationEnCn, s)
	require.True(t, d.SteppedDown)
	require.Equal(t, types.IntensityOff, d.Intensity)
}

type fakeEventSource struct {
	events  []types.Event
	domains []string
}

func (f *fakeEventSource) ListRecentEvents(domain string, sinceTs, endTs int64, limit int) ([]types.Event, error) {
	f.domains = append(f.domains, domain)
	return f.events, nil
}

func TestControllerResolve(t *testing.T) {
	source := &fakeEventSource{events: eventsOf(map[types.EventType]int{
		types.EventKnown:   1,
		types.EventUnknown: 6,
	})}
	c := NewController(source, nil)

	d, err := c.Resolve("example.com", types.IntensityHigh, types.PresentationEnOnly)
	require.NoError(t, err)
	require.True(t, d.SteppedDown)
	require.Equal(t, types.IntensityMedium, d.Intensity)
	require.Equal(t, []string{"example.com"}, source.domains)
}

func TestControllerResolveQuietHistory(t *testing.T) {
	c := NewController(&fakeEventSource{}, nil)

	d, err := c.Resolve("example.com", types.IntensityMedium, types.PresentationCnEn)
	require.NoError(t, err)
	require.False(t, d.SteppedDown)
	require.Equal(t, types.IntensityMedium, d.Intensity)
	require.Equal(t, types.PresentationCnEn, d.Presentation)
}

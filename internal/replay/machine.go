package replay

import (
	"fmt"
	"sort"

	"github.com/xiaot623/replay/domain"
)

// Speed multipliers are clamped to the range the dashboard exposes.
const (
	minSpeed = 0.25
	maxSpeed = 4.0
)

// Machine owns the current position, playback mode, and speed for one
// timeline. It carries no locking of its own; the owning Session
// serializes all access. The generation counter guards against stale
// driver ticks: every command that changes position or mode increments
// it, and a tick scheduled under an older generation is discarded on
// fire.
type Machine struct {
	timeline   *domain.Timeline
	position   int
	mode       domain.PlaybackMode
	speed      float64
	generation uint64
}

// NewMachine creates a state machine over a built timeline, initially
// stopped at position 0 with speed 1x.
func NewMachine(tl *domain.Timeline) *Machine {
	return &Machine{
		timeline: tl,
		mode:     domain.PlaybackStopped,
		speed:    1.0,
	}
}

func (m *Machine) Timeline() *domain.Timeline { return m.timeline }
func (m *Machine) Position() int              { return m.position }
func (m *Machine) Mode() domain.PlaybackMode  { return m.mode }
func (m *Machine) Speed() float64             { return m.speed }
func (m *Machine) Generation() uint64         { return m.generation }

// AtEnd reports whether the position is on the final event (or the
// timeline is empty).
func (m *Machine) AtEnd() bool {
	return m.position >= m.timeline.Len()-1
}

func (m *Machine) bump() { m.generation++ }

// Play transitions stopped|paused -> playing, optionally seeding the
// position first. On an empty or exhausted timeline the machine settles
// in stopped instead of arming an advance that can never fire.
func (m *Machine) Play(startIndex *int) error {
	if startIndex != nil {
		if err := m.Seek(*startIndex); err != nil {
			return err
		}
	} else {
		m.bump()
	}
	if m.AtEnd() {
		m.mode = domain.PlaybackStopped
		return nil
	}
	m.mode = domain.PlaybackPlaying
	return nil
}

// Pause freezes playback without losing position.
func (m *Machine) Pause() {
	m.bump()
	if m.mode == domain.PlaybackPlaying {
		m.mode = domain.PlaybackPaused
	}
}

// Stop halts playback from any mode and rewinds to position 0. This is
// the invariant distinguishing it from Pause: stop always rewinds.
func (m *Machine) Stop() {
	m.bump()
	m.mode = domain.PlaybackStopped
	m.position = 0
}

// Step adjusts the position by delta, clamped to [0, N-1]. Valid in any
// mode; the mode is unchanged.
func (m *Machine) Step(delta int) {
	m.bump()
	m.position = clamp(m.position+delta, 0, m.timeline.Len()-1)
}

// Seek sets the position directly. Negative positions are rejected;
// positions past the end clamp to the final event.
func (m *Machine) Seek(position int) error {
	if position < 0 {
		return fmt.Errorf("position %d: %w", position, domain.ErrInvalidRange)
	}
	m.bump()
	m.position = clamp(position, 0, m.timeline.Len()-1)
	return nil
}

// SetSpeed sets the playback multiplier. It does not bump the
// generation: a pending tick completes at the old dwell and the next
// scheduled one picks up the new speed.
func (m *Machine) SetSpeed(multiplier float64) error {
	if multiplier <= 0 {
		return fmt.Errorf("speed %g: %w", multiplier, domain.ErrInvalidRange)
	}
	if multiplier < minSpeed {
		multiplier = minSpeed
	}
	if multiplier > maxSpeed {
		multiplier = maxSpeed
	}
	m.speed = multiplier
	return nil
}

// ResolveTimestamp returns the index of the first event at or after ts.
func (m *Machine) ResolveTimestamp(ts int64) (int, error) {
	events := m.timeline.Events
	i := sort.Search(len(events), func(i int) bool { return events[i].Ts >= ts })
	if i == len(events) {
		return 0, fmt.Errorf("no event at or after ts %d: %w", ts, domain.ErrNotFound)
	}
	return i, nil
}

// ResolveKind returns the index of the first event of the given kind at
// or after the current position.
func (m *Machine) ResolveKind(kind domain.EventKind) (int, error) {
	events := m.timeline.Events
	for i := m.position; i < len(events); i++ {
		if events[i].Kind == kind {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no %s event at or after position %d: %w", kind, m.position, domain.ErrNotFound)
}

// CurrentEvent returns the event at the current position, or nil for an
// empty timeline.
func (m *Machine) CurrentEvent() *domain.Event {
	if m.timeline.Len() == 0 {
		return nil
	}
	ev := m.timeline.Events[m.position]
	return &ev
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

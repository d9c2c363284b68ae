// Package replay implements the session replay engine: the per-replay
// state machine, the playback driver, markers, and the session registry.
package replay

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/xiaot623/replay/domain"
	"github.com/xiaot623/replay/internal/broadcast"
)

// Session is the live replay instance for one timeline. All commands
// against it, whether user-issued or driver-issued, are serialized by
// its mutex, which is what makes every subscriber of the same replay id
// observe one consistent state history.
type Session struct {
	ReplayID  string
	SessionID string

	mu       sync.Mutex
	timeline *domain.Timeline
	machine  *Machine
	markers  *MarkerStore
	drv      *driver
	bc       *broadcast.Broadcaster
	clk      clock

	owner         string
	collaborative bool
	collaborators []string

	createdAt    time.Time
	lastAccessed time.Time
	closed       bool
}

func newSession(replayID string, tl *domain.Timeline, bc *broadcast.Broadcaster, clk clock, minDwell, maxDwell time.Duration, owner string) *Session {
	now := clk.Now()
	return &Session{
		ReplayID:     replayID,
		SessionID:    tl.SessionID,
		timeline:     tl,
		machine:      NewMachine(tl),
		markers:      NewMarkerStore(tl),
		drv:          newDriver(clk, minDwell, maxDwell),
		bc:           bc,
		clk:          clk,
		owner:        owner,
		createdAt:    now,
		lastAccessed: now,
	}
}

// Owner returns the id the session was prepared by. Empty when the
// caller did not identify itself.
func (s *Session) Owner() string { return s.owner }

// Snapshot returns the current consolidated state.
func (s *Session) Snapshot() domain.ReplayState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// LastAccessed returns the time of the most recent command.
func (s *Session) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessed
}

// Control applies one playback verb and publishes the resulting
// consolidated snapshot. Validation failures are returned to the caller
// and never broadcast.
func (s *Session) Control(verb domain.ControlVerb, args domain.ControlArgs) (domain.ReplayState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ReplayState{}, domain.ErrTombstoned
	}
	s.lastAccessed = s.clk.Now()

	switch verb {
	case domain.VerbPlay:
		if err := s.machine.Play(args.StartIndex); err != nil {
			return domain.ReplayState{}, err
		}
		s.drv.cancel()
		if s.machine.Mode() == domain.PlaybackPlaying {
			s.scheduleTickLocked()
		}
	case domain.VerbPause:
		s.machine.Pause()
		s.drv.cancel()
	case domain.VerbStop:
		s.machine.Stop()
		s.drv.cancel()
	case domain.VerbStepForward, domain.VerbStepBackward:
		count := args.Count
		if count <= 0 {
			count = 1
		}
		if verb == domain.VerbStepBackward {
			count = -count
		}
		s.machine.Step(count)
		s.rescheduleLocked()
	case domain.VerbSeek:
		if args.Position == nil {
			return domain.ReplayState{}, fmt.Errorf("seek needs a position: %w", domain.ErrInvalidRange)
		}
		if err := s.machine.Seek(*args.Position); err != nil {
			return domain.ReplayState{}, err
		}
		s.rescheduleLocked()
	case domain.VerbSetSpeed:
		if err := s.machine.SetSpeed(args.Speed); err != nil {
			return domain.ReplayState{}, err
		}
	case domain.VerbJumpTo:
		if args.Target == nil {
			return domain.ReplayState{}, fmt.Errorf("jumpTo needs a target: %w", domain.ErrInvalidRange)
		}
		index, err := s.resolveJumpLocked(*args.Target)
		if err != nil {
			return domain.ReplayState{}, err
		}
		if err := s.machine.Seek(index); err != nil {
			return domain.ReplayState{}, err
		}
		s.rescheduleLocked()
	default:
		return domain.ReplayState{}, fmt.Errorf("verb %q: %w", verb, domain.ErrNotFound)
	}

	state := s.snapshotLocked()
	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateState, State: &state})
	return state, nil
}

// rescheduleLocked re-arms the driver after a position change made while
// playing. The generation was already bumped by the machine, so any
// pending tick is stale even if its timer wins the race to fire.
func (s *Session) rescheduleLocked() {
	s.drv.cancel()
	if s.machine.Mode() != domain.PlaybackPlaying {
		return
	}
	if s.machine.AtEnd() {
		s.machine.mode = domain.PlaybackStopped
		return
	}
	s.scheduleTickLocked()
}

func (s *Session) scheduleTickLocked() {
	events := s.timeline.Events
	pos := s.machine.Position()
	dwell := s.drv.dwell(events[pos].Ts, events[pos+1].Ts, s.machine.Speed())
	gen := s.machine.Generation()
	s.drv.schedule(dwell, func() { s.tick(gen) })
}

// tick is the driver's autonomous advance. A tick carrying a generation
// older than the machine's is a leftover from before a user command and
// is discarded.
func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: playback tick failed for replay %s: %v", s.ReplayID, r)
			s.machine.mode = domain.PlaybackPaused
			s.machine.bump()
			s.drv.cancel()
			state := s.snapshotLocked()
			s.bc.Publish(domain.Update{
				ReplayID: s.ReplayID,
				Type:     domain.UpdateError,
				State:    &state,
				Error:    fmt.Sprintf("playback failed: %v", r),
			})
		}
	}()

	if s.closed || gen != s.machine.Generation() || s.machine.Mode() != domain.PlaybackPlaying {
		return
	}

	s.machine.position++
	if s.machine.AtEnd() {
		// End of timeline: stop the clock, keep the final frame.
		s.machine.mode = domain.PlaybackStopped
		s.machine.bump()
	} else {
		s.scheduleTickLocked()
	}

	state := s.snapshotLocked()
	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateState, State: &state})
}

func (s *Session) resolveJumpLocked(target domain.JumpTarget) (int, error) {
	switch target.Type {
	case domain.JumpBookmark:
		var id string
		if err := json.Unmarshal(target.Value, &id); err != nil {
			return 0, fmt.Errorf("jump target value: %w", domain.ErrInvalidRange)
		}
		bm, err := s.markers.GetBookmark(id)
		if err != nil {
			return 0, err
		}
		return bm.Index, nil
	case domain.JumpTimestamp:
		var ts int64
		if err := json.Unmarshal(target.Value, &ts); err != nil {
			return 0, fmt.Errorf("jump target value: %w", domain.ErrInvalidRange)
		}
		return s.machine.ResolveTimestamp(ts)
	case domain.JumpEventKind:
		var kind domain.EventKind
		if err := json.Unmarshal(target.Value, &kind); err != nil {
			return 0, fmt.Errorf("jump target value: %w", domain.ErrInvalidRange)
		}
		if !domain.ValidEventKind(kind) {
			return 0, fmt.Errorf("event kind %q: %w", kind, domain.ErrInvalidRange)
		}
		return s.machine.ResolveKind(kind)
	}
	return 0, fmt.Errorf("jump type %q: %w", target.Type, domain.ErrInvalidRange)
}

// AddBookmark stores a bookmark and broadcasts the change.
func (s *Session) AddBookmark(spec domain.BookmarkSpec) (*domain.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrTombstoned
	}
	s.lastAccessed = s.clk.Now()
	bm, err := s.markers.AddBookmark(spec)
	if err != nil {
		return nil, err
	}
	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateBookmarkAdded, Bookmark: bm})
	return bm, nil
}

// UpdateBookmark patches a bookmark and broadcasts the change.
func (s *Session) UpdateBookmark(id string, patch domain.BookmarkPatch) (*domain.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrTombstoned
	}
	s.lastAccessed = s.clk.Now()
	bm, err := s.markers.UpdateBookmark(id, patch)
	if err != nil {
		return nil, err
	}
	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateBookmarkUpdated, Bookmark: bm})
	return bm, nil
}

// RemoveBookmark deletes a bookmark and broadcasts the change.
func (s *Session) RemoveBookmark(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrTombstoned
	}
	s.lastAccessed = s.clk.Now()
	if err := s.markers.RemoveBookmark(id); err != nil {
		return err
	}
	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateBookmarkRemoved, RemovedID: id})
	return nil
}

// AddAnnotation stores an annotation and broadcasts the change.
func (s *Session) AddAnnotation(spec domain.AnnotationSpec) (*domain.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrTombstoned
	}
	s.lastAccessed = s.clk.Now()
	an, err := s.markers.AddAnnotation(spec)
	if err != nil {
		return nil, err
	}
	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateAnnotationAdded, Annotation: an})
	return an, nil
}

// UpdateAnnotation patches an annotation and broadcasts the change.
func (s *Session) UpdateAnnotation(id string, patch domain.AnnotationPatch) (*domain.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrTombstoned
	}
	s.lastAccessed = s.clk.Now()
	an, err := s.markers.UpdateAnnotation(id, patch)
	if err != nil {
		return nil, err
	}
	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateAnnotationUpdated, Annotation: an})
	return an, nil
}

// RemoveAnnotation deletes an annotation and broadcasts the change.
func (s *Session) RemoveAnnotation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrTombstoned
	}
	s.lastAccessed = s.clk.Now()
	if err := s.markers.RemoveAnnotation(id); err != nil {
		return err
	}
	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateAnnotationRemoved, RemovedID: id})
	return nil
}

// AddSegment stores a segment and broadcasts the change.
func (s *Session) AddSegment(spec domain.SegmentSpec) (*domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrTombstoned
	}
	s.lastAccessed = s.clk.Now()
	seg, err := s.markers.AddSegment(spec)
	if err != nil {
		return nil, err
	}
	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateSegmentAdded, Segment: seg})
	return seg, nil
}

// UpdateSegment patches a segment and broadcasts the change.
func (s *Session) UpdateSegment(id string, patch domain.SegmentPatch) (*domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrTombstoned
	}
	s.lastAccessed = s.clk.Now()
	seg, err := s.markers.UpdateSegment(id, patch)
	if err != nil {
		return nil, err
	}
	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateSegmentUpdated, Segment: seg})
	return seg, nil
}

// RemoveSegment deletes a segment and broadcasts the change.
func (s *Session) RemoveSegment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrTombstoned
	}
	s.lastAccessed = s.clk.Now()
	if err := s.markers.RemoveSegment(id); err != nil {
		return err
	}
	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateSegmentRemoved, RemovedID: id})
	return nil
}

// GetSegment returns a segment by id.
func (s *Session) GetSegment(id string) (*domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrTombstoned
	}
	return s.markers.GetSegment(id)
}

// SegmentContains reports whether ts falls inside a segment's range.
func (s *Session) SegmentContains(id string, ts int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, domain.ErrTombstoned
	}
	return s.markers.SegmentContains(id, ts)
}

// Markers lists all three marker sets in creation order.
func (s *Session) Markers() ([]domain.Bookmark, []domain.Annotation, []domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, nil, domain.ErrTombstoned
	}
	return s.markers.Bookmarks(), s.markers.Annotations(), s.markers.Segments(), nil
}

// Archive captures the timeline plus all markers for export.
func (s *Session) Archive() (domain.Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Archive{}, domain.ErrTombstoned
	}
	s.lastAccessed = s.clk.Now()
	return domain.Archive{
		ReplayID:    s.ReplayID,
		SessionID:   s.SessionID,
		Lanes:       s.timeline.Lanes,
		Events:      s.timeline.Events,
		Bookmarks:   s.markers.Bookmarks(),
		Annotations: s.markers.Annotations(),
		Segments:    s.markers.Segments(),
		ExportedAt:  s.clk.Now(),
	}, nil
}

// EnableCollaborative marks the session shared and registers the initial
// collaborator set. Existing subscribers keep their stream untouched.
func (s *Session) EnableCollaborative(collaboratorIDs []string) (domain.ReplayState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ReplayState{}, domain.ErrTombstoned
	}
	s.lastAccessed = s.clk.Now()
	s.collaborative = true
	for _, id := range collaboratorIDs {
		s.addCollaboratorLocked(id)
	}
	state := s.snapshotLocked()
	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateState, State: &state})
	return state, nil
}

// AddCollaborator adds one collaborator to a shared session.
func (s *Session) AddCollaborator(collaboratorID string) (domain.ReplayState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ReplayState{}, domain.ErrTombstoned
	}
	s.lastAccessed = s.clk.Now()
	s.collaborative = true
	s.addCollaboratorLocked(collaboratorID)
	state := s.snapshotLocked()
	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateState, State: &state})
	return state, nil
}

// Collaborators returns the collaborator ids of a shared session.
func (s *Session) Collaborators() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrTombstoned
	}
	out := make([]string, len(s.collaborators))
	copy(out, s.collaborators)
	return out, nil
}

// Collaborative reports whether the session is shared.
func (s *Session) Collaborative() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collaborative
}

func (s *Session) addCollaboratorLocked(id string) {
	if id == "" {
		return
	}
	for _, existing := range s.collaborators {
		if existing == id {
			return
		}
	}
	s.collaborators = append(s.collaborators, id)
}

// close tombstones the session: subscribers are told, pending ticks are
// cancelled, and every later command answers ErrTombstoned.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.drv.cancel()
	s.machine.bump()
	s.mu.Unlock()

	s.bc.Publish(domain.Update{ReplayID: s.ReplayID, Type: domain.UpdateClosed})
	s.bc.CloseReplay(s.ReplayID)
}

func (s *Session) snapshotLocked() domain.ReplayState {
	bookmarks, annotations, segments := s.markers.Counts()
	collaborators := make([]string, len(s.collaborators))
	copy(collaborators, s.collaborators)
	return domain.ReplayState{
		ReplayID:        s.ReplayID,
		SessionID:       s.SessionID,
		Mode:            s.machine.Mode(),
		Position:        s.machine.Position(),
		Speed:           s.machine.Speed(),
		EventCount:      s.timeline.Len(),
		CurrentEvent:    s.machine.CurrentEvent(),
		BookmarkCount:   bookmarks,
		AnnotationCount: annotations,
		SegmentCount:    segments,
		Collaborative:   s.collaborative,
		Collaborators:   collaborators,
	}
}

// Package domain defines the core domain models for the replay engine.
package domain

// EventKind represents the kind of a timeline event.
type EventKind string

const (
	EventKindMessage           EventKind = "message"
	EventKindCommunication     EventKind = "communication"
	EventKindSystemEvent       EventKind = "system_event"
	EventKindPerformanceMetric EventKind = "performance_metric"
)

// ValidEventKind reports whether k is one of the four timeline event kinds.
func ValidEventKind(k EventKind) bool {
	switch k {
	case EventKindMessage, EventKindCommunication, EventKindSystemEvent, EventKindPerformanceMetric:
		return true
	}
	return false
}

// PlaybackMode represents the playback mode of a replay session.
type PlaybackMode string

const (
	PlaybackStopped PlaybackMode = "stopped"
	PlaybackPlaying PlaybackMode = "playing"
	PlaybackPaused  PlaybackMode = "paused"
)

// ControlVerb represents a playback control verb.
type ControlVerb string

const (
	VerbPlay         ControlVerb = "play"
	VerbPause        ControlVerb = "pause"
	VerbStop         ControlVerb = "stop"
	VerbStepForward  ControlVerb = "stepForward"
	VerbStepBackward ControlVerb = "stepBackward"
	VerbSeek         ControlVerb = "seek"
	VerbSetSpeed     ControlVerb = "setSpeed"
	VerbJumpTo       ControlVerb = "jumpTo"
)

// UpdateType represents the type of a broadcast update.
type UpdateType string

const (
	UpdateState             UpdateType = "state"
	UpdateBookmarkAdded     UpdateType = "bookmark_added"
	UpdateBookmarkUpdated   UpdateType = "bookmark_updated"
	UpdateBookmarkRemoved   UpdateType = "bookmark_removed"
	UpdateAnnotationAdded   UpdateType = "annotation_added"
	UpdateAnnotationUpdated UpdateType = "annotation_updated"
	UpdateAnnotationRemoved UpdateType = "annotation_removed"
	UpdateSegmentAdded      UpdateType = "segment_added"
	UpdateSegmentUpdated    UpdateType = "segment_updated"
	UpdateSegmentRemoved    UpdateType = "segment_removed"
	UpdateClosed            UpdateType = "closed"
	UpdateError             UpdateType = "error"
)

// JumpType represents the target type of a jumpTo command.
type JumpType string

const (
	JumpBookmark  JumpType = "bookmark"
	JumpTimestamp JumpType = "timestamp"
	JumpEventKind JumpType = "eventKind"
)

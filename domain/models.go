package domain

import (
	"encoding/json"
	"time"
)

// Session represents a recorded dual-agent session.
type Session struct {
	SessionID string          `json:"session_id"`
	Title     string          `json:"title,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// MessageRecord is a stored manager/worker message.
type MessageRecord struct {
	MessageID string          `json:"message_id"`
	SessionID string          `json:"session_id"`
	Agent     string          `json:"agent"` // manager, worker
	Role      string          `json:"role"`  // user, assistant, system
	Content   string          `json:"content"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// CommunicationRecord is a stored inter-agent exchange.
type CommunicationRecord struct {
	CommID    string `json:"comm_id"`
	SessionID string `json:"session_id"`
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
	Content   string `json:"content"`
	Ts        int64  `json:"ts"`
}

// SystemEventRecord is a stored system-level event.
type SystemEventRecord struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	EventType string          `json:"event_type"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	Ts        int64           `json:"ts"`
}

// PerformanceMetricRecord is a stored performance sample.
type PerformanceMetricRecord struct {
	MetricID  string  `json:"metric_id"`
	SessionID string  `json:"session_id"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Ts        int64   `json:"ts"`
}

// Event is a single entry on a built timeline. Immutable once built.
type Event struct {
	EventID     string          `json:"event_id"`
	Ts          int64           `json:"ts"` // Unix milliseconds
	Kind        EventKind       `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	SourceOrder int             `json:"source_order"`
	Index       int             `json:"index"`
	Lane        string          `json:"lane,omitempty"` // session id in comparison mode
}

// Timeline is the deterministic, ordered event sequence for one session,
// or a time-aligned merge of several sessions in comparison mode.
// Immutable after construction; ordered by (Ts, SourceOrder).
type Timeline struct {
	SessionID string    `json:"session_id,omitempty"`
	Lanes     []string  `json:"lanes,omitempty"`
	Events    []Event   `json:"events"`
	BuiltAt   time.Time `json:"built_at"`
}

// Len returns the number of events on the timeline.
func (t *Timeline) Len() int { return len(t.Events) }

// Span returns the first and last event timestamps. ok is false for an
// empty timeline.
func (t *Timeline) Span() (start, end int64, ok bool) {
	if len(t.Events) == 0 {
		return 0, 0, false
	}
	return t.Events[0].Ts, t.Events[len(t.Events)-1].Ts, true
}

// Bookmark is a named marker resolved to a concrete timeline index.
type Bookmark struct {
	BookmarkID  string    `json:"bookmark_id"`
	Index       int       `json:"index"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Annotation is free-text commentary anchored to wall-clock time within
// the timeline span. Visible regardless of playback mode.
type Annotation struct {
	AnnotationID string    `json:"annotation_id"`
	Ts           int64     `json:"ts"`
	Content      string    `json:"content"`
	Author       string    `json:"author"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Segment is a highlighted, possibly overlapping time range.
// Invariant: StartTs <= EndTs.
type Segment struct {
	SegmentID string    `json:"segment_id"`
	Title     string    `json:"title"`
	StartTs   int64     `json:"start_ts"`
	EndTs     int64     `json:"end_ts"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Contains reports whether ts falls inside the segment's range (inclusive).
func (s *Segment) Contains(ts int64) bool {
	return ts >= s.StartTs && ts <= s.EndTs
}

// ReplayState is the consolidated snapshot published after every applied
// mutation. Never reflects partially applied commands.
type ReplayState struct {
	ReplayID        string       `json:"replay_id"`
	SessionID       string       `json:"session_id,omitempty"`
	Mode            PlaybackMode `json:"mode"`
	Position        int          `json:"position"`
	Speed           float64      `json:"speed"`
	EventCount      int          `json:"event_count"`
	CurrentEvent    *Event       `json:"current_event,omitempty"`
	BookmarkCount   int          `json:"bookmark_count"`
	AnnotationCount int          `json:"annotation_count"`
	SegmentCount    int          `json:"segment_count"`
	Collaborative   bool         `json:"collaborative"`
	Collaborators   []string     `json:"collaborators,omitempty"`
}

// Update is the envelope fanned out to subscribers of a replay.
type Update struct {
	ReplayID   string       `json:"replay_id"`
	Seq        uint64       `json:"seq"`
	Type       UpdateType   `json:"type"`
	State      *ReplayState `json:"state,omitempty"`
	Bookmark   *Bookmark    `json:"bookmark,omitempty"`
	Annotation *Annotation  `json:"annotation,omitempty"`
	Segment    *Segment     `json:"segment,omitempty"`
	RemovedID  string       `json:"removed_id,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// JumpTarget is the target of a jumpTo command. Value is decoded per Type:
// a bookmark id, a Unix-millisecond timestamp, or an event kind.
type JumpTarget struct {
	Type  JumpType        `json:"type"`
	Value json.RawMessage `json:"value"`
}

// ControlArgs carries the per-verb arguments of a control command.
type ControlArgs struct {
	StartIndex *int        `json:"start_index,omitempty"` // play
	Count      int         `json:"count,omitempty"`       // stepForward / stepBackward
	Position   *int        `json:"position,omitempty"`    // seek
	Speed      float64     `json:"speed,omitempty"`       // setSpeed
	Target     *JumpTarget `json:"target,omitempty"`      // jumpTo
}

// BookmarkSpec is the input for creating a bookmark. Exactly one of Index
// or Ts anchors it; a raw timestamp resolves to the nearest timeline index.
type BookmarkSpec struct {
	Index       *int     `json:"index,omitempty"`
	Ts          *int64   `json:"ts,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// AnnotationSpec is the input for creating an annotation.
type AnnotationSpec struct {
	Ts      int64  `json:"ts"`
	Content string `json:"content"`
	Author  string `json:"author"`
}

// SegmentSpec is the input for creating a segment.
type SegmentSpec struct {
	Title   string `json:"title"`
	StartTs int64  `json:"start_ts"`
	EndTs   int64  `json:"end_ts"`
	Color   string `json:"color,omitempty"`
}

// BookmarkPatch updates a bookmark; nil fields are left unchanged.
type BookmarkPatch struct {
	Index       *int      `json:"index,omitempty"`
	Ts          *int64    `json:"ts,omitempty"`
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// AnnotationPatch updates an annotation; nil fields are left unchanged.
type AnnotationPatch struct {
	Ts      *int64  `json:"ts,omitempty"`
	Content *string `json:"content,omitempty"`
	Author  *string `json:"author,omitempty"`
}

// SegmentPatch updates a segment; nil fields are left unchanged.
type SegmentPatch struct {
	Title   *string `json:"title,omitempty"`
	StartTs *int64  `json:"start_ts,omitempty"`
	EndTs   *int64  `json:"end_ts,omitempty"`
	Color   *string `json:"color,omitempty"`
}

// Archive is the lossless interchange form of a timeline plus its markers.
// The JSON export format round-trips through it.
type Archive struct {
	ReplayID    string       `json:"replay_id,omitempty"`
	SessionID   string       `json:"session_id,omitempty"`
	Lanes       []string     `json:"lanes,omitempty"`
	Events      []Event      `json:"events"`
	Bookmarks   []Bookmark   `json:"bookmarks,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	Segments    []Segment    `json:"segments,omitempty"`
	ExportedAt  time.Time    `json:"exported_at"`
}

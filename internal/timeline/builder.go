// Package timeline builds deterministic, ordered timelines from a
// session's stored record streams.
package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/xiaot623/replay/domain"
	"github.com/xiaot623/replay/store"
)

// BuildOptions filter the records included in a build. Zero values mean
// no filtering.
type BuildOptions struct {
	Kinds []domain.EventKind // include only these kinds
	From  int64              // inclusive lower bound, Unix ms
	To    int64              // inclusive upper bound, Unix ms (0 = unbounded)
}

func (o BuildOptions) includeKind(k domain.EventKind) bool {
	if len(o.Kinds) == 0 {
		return true
	}
	for _, want := range o.Kinds {
		if want == k {
			return true
		}
	}
	return false
}

func (o BuildOptions) includeTs(ts int64) bool {
	if ts < o.From {
		return false
	}
	if o.To != 0 && ts > o.To {
		return false
	}
	return true
}

// Build reads the four record streams for a session and produces one
// immutable timeline ordered by (ts, source order). The store is read as
// of call time; later writes never change an already-built timeline.
// Returns domain.ErrSessionNotFound for an unknown session.
func Build(ctx context.Context, st store.Store, sessionID string, opts BuildOptions) (*domain.Timeline, error) {
	session, err := st.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if session == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionNotFound)
	}

	events, err := collect(ctx, st, sessionID, opts)
	if err != nil {
		return nil, err
	}

	sortEvents(events)
	for i := range events {
		events[i].Index = i
	}

	return &domain.Timeline{
		SessionID: sessionID,
		Lanes:     []string{sessionID},
		Events:    events,
		BuiltAt:   time.Now(),
	}, nil
}

// BuildComparison builds each session's timeline and merges them by
// absolute wall-clock timestamp into one multi-lane timeline. Every event
// is tagged with its originating session id as its lane.
func BuildComparison(ctx context.Context, st store.Store, sessionIDs []string, opts BuildOptions) (*domain.Timeline, error) {
	var merged []domain.Event
	lanes := make([]string, 0, len(sessionIDs))

	for _, sessionID := range sessionIDs {
		tl, err := Build(ctx, st, sessionID, opts)
		if err != nil {
			return nil, err
		}
		lanes = append(lanes, sessionID)
		for _, ev := range tl.Events {
			ev.Lane = sessionID
			merged = append(merged, ev)
		}
	}

	// Lanes merge on absolute time; within a timestamp, lane order then
	// per-lane source order keeps the merge deterministic.
	laneRank := make(map[string]int, len(lanes))
	for i, lane := range lanes {
		laneRank[lane] = i
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Ts != b.Ts {
			return a.Ts < b.Ts
		}
		if laneRank[a.Lane] != laneRank[b.Lane] {
			return laneRank[a.Lane] < laneRank[b.Lane]
		}
		return a.SourceOrder < b.SourceOrder
	})
	for i := range merged {
		merged[i].Index = i
	}

	return &domain.Timeline{
		Lanes:   lanes,
		Events:  merged,
		BuiltAt: time.Now(),
	}, nil
}

// collect converts the four record streams into events. Source order is
// assigned sequentially in a fixed stream order (messages, communications,
// system events, performance samples), each stream already ordered by the
// store, so it is the deterministic tie-break for equal timestamps.
func collect(ctx context.Context, st store.Store, sessionID string, opts BuildOptions) ([]domain.Event, error) {
	var events []domain.Event
	order := 0

	if opts.includeKind(domain.EventKindMessage) {
		messages, err := st.GetMessages(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("get messages: %w", err)
		}
		for _, msg := range messages {
			if !opts.includeTs(msg.Ts) {
				continue
			}
			payload, err := json.Marshal(domain.MessagePayload{
				MessageID: msg.MessageID,
				Agent:     msg.Agent,
				Role:      msg.Role,
				Content:   msg.Content,
			})
			if err != nil {
				return nil, fmt.Errorf("marshal message payload: %w", err)
			}
			events = append(events, domain.Event{
				EventID:     msg.MessageID,
				Ts:          msg.Ts,
				Kind:        domain.EventKindMessage,
				Payload:     payload,
				SourceOrder: order,
			})
			order++
		}
	}

	if opts.includeKind(domain.EventKindCommunication) {
		comms, err := st.GetCommunications(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("get communications: %w", err)
		}
		for _, comm := range comms {
			if !opts.includeTs(comm.Ts) {
				continue
			}
			payload, err := json.Marshal(domain.CommunicationPayload{
				CommID:    comm.CommID,
				FromAgent: comm.FromAgent,
				ToAgent:   comm.ToAgent,
				Content:   comm.Content,
			})
			if err != nil {
				return nil, fmt.Errorf("marshal communication payload: %w", err)
			}
			events = append(events, domain.Event{
				EventID:     comm.CommID,
				Ts:          comm.Ts,
				Kind:        domain.EventKindCommunication,
				Payload:     payload,
				SourceOrder: order,
			})
			order++
		}
	}

	if opts.includeKind(domain.EventKindSystemEvent) {
		sysEvents, err := st.GetSystemEvents(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("get system events: %w", err)
		}
		for _, ev := range sysEvents {
			if !opts.includeTs(ev.Ts) {
				continue
			}
			payload, err := json.Marshal(domain.SystemEventPayload{
				EventType: ev.EventType,
				Detail:    ev.Detail,
			})
			if err != nil {
				return nil, fmt.Errorf("marshal system_event payload: %w", err)
			}
			events = append(events, domain.Event{
				EventID:     ev.EventID,
				Ts:          ev.Ts,
				Kind:        domain.EventKindSystemEvent,
				Payload:     payload,
				SourceOrder: order,
			})
			order++
		}
	}

	if opts.includeKind(domain.EventKindPerformanceMetric) {
		metrics, err := st.GetPerformanceMetrics(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("get performance metrics: %w", err)
		}
		for _, m := range metrics {
			if !opts.includeTs(m.Ts) {
				continue
			}
			payload, err := json.Marshal(domain.PerformanceMetricPayload{
				Metric: m.Metric,
				Value:  m.Value,
				Unit:   m.Unit,
			})
			if err != nil {
				return nil, fmt.Errorf("marshal performance_metric payload: %w", err)
			}
			events = append(events, domain.Event{
				EventID:     m.MetricID,
				Ts:          m.Ts,
				Kind:        domain.EventKindPerformanceMetric,
				Payload:     payload,
				SourceOrder: order,
			})
			order++
		}
	}

	return events, nil
}

func sortEvents(events []domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Ts != events[j].Ts {
			return events[i].Ts < events[j].Ts
		}
		return events[i].SourceOrder < events[j].SourceOrder
	})
}

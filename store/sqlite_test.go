package store

import (
	"context"
	"testing"

	"github.com/xiaot623/replay/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetSessionMissing(t *testing.T) {
	s := newTestStore(t)

	session, err := s.GetSession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil session, got %+v", session)
	}
}

func TestMessagesOrderedByTsThenRowid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, &domain.Session{SessionID: "s1"}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Insert out of timestamp order, with two records sharing ts=1000.
	records := []domain.MessageRecord{
		{MessageID: "m3", SessionID: "s1", Agent: "worker", Role: "assistant", Content: "c", Ts: 2000},
		{MessageID: "m1", SessionID: "s1", Agent: "manager", Role: "assistant", Content: "a", Ts: 1000},
		{MessageID: "m2", SessionID: "s1", Agent: "worker", Role: "assistant", Content: "b", Ts: 1000},
	}
	for i := range records {
		if err := s.CreateMessage(ctx, &records[i]); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	got, err := s.GetMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	wantIDs := []string{"m1", "m2", "m3"}
	if len(got) != len(wantIDs) {
		t.Fatalf("expected %d messages, got %d", len(wantIDs), len(got))
	}
	for i, want := range wantIDs {
		if got[i].MessageID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, got[i].MessageID)
		}
	}
}

func TestAllFourStreams(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, &domain.Session{SessionID: "s1"}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := s.CreateMessage(ctx, &domain.MessageRecord{MessageID: "m1", SessionID: "s1", Agent: "manager", Role: "user", Content: "hi", Ts: 1}); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}
	if err := s.CreateCommunication(ctx, &domain.CommunicationRecord{CommID: "c1", SessionID: "s1", FromAgent: "manager", ToAgent: "worker", Content: "do it", Ts: 2}); err != nil {
		t.Fatalf("CreateCommunication failed: %v", err)
	}
	if err := s.CreateSystemEvent(ctx, &domain.SystemEventRecord{EventID: "e1", SessionID: "s1", EventType: "agent_started", Ts: 3}); err != nil {
		t.Fatalf("CreateSystemEvent failed: %v", err)
	}
	if err := s.CreatePerformanceMetric(ctx, &domain.PerformanceMetricRecord{MetricID: "p1", SessionID: "s1", Metric: "latency", Value: 42.5, Unit: "ms", Ts: 4}); err != nil {
		t.Fatalf("CreatePerformanceMetric failed: %v", err)
	}

	msgs, err := s.GetMessages(ctx, "s1")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("GetMessages: %v, %d records", err, len(msgs))
	}
	comms, err := s.GetCommunications(ctx, "s1")
	if err != nil || len(comms) != 1 {
		t.Fatalf("GetCommunications: %v, %d records", err, len(comms))
	}
	events, err := s.GetSystemEvents(ctx, "s1")
	if err != nil || len(events) != 1 {
		t.Fatalf("GetSystemEvents: %v, %d records", err, len(events))
	}
	metrics, err := s.GetPerformanceMetrics(ctx, "s1")
	if err != nil || len(metrics) != 1 {
		t.Fatalf("GetPerformanceMetrics: %v, %d records", err, len(metrics))
	}
	if metrics[0].Value != 42.5 || metrics[0].Unit != "ms" {
		t.Fatalf("unexpected metric: %+v", metrics[0])
	}
}

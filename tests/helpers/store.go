// Package helpers provides shared test fixtures.
package helpers

import (
	"context"
	"fmt"
	"testing"

	"github.com/xiaot623/replay/domain"
	"github.com/xiaot623/replay/store"
)

// NewTestSQLiteStore returns an in-memory session store wired for cleanup.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// SeedSession creates a session with n message events at one-second
// intervals starting at startTs (Unix ms). Message i lands at
// startTs + i*1000, alternating manager/worker.
func SeedSession(t *testing.T, s store.Store, sessionID string, n int, startTs int64) {
	t.Helper()

	ctx := context.Background()
	if err := s.CreateSession(ctx, &domain.Session{SessionID: sessionID, Title: "test session"}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	for i := 0; i < n; i++ {
		agent := "manager"
		if i%2 == 1 {
			agent = "worker"
		}
		msg := &domain.MessageRecord{
			MessageID: fmt.Sprintf("%s-m%d", sessionID, i),
			SessionID: sessionID,
			Agent:     agent,
			Role:      "assistant",
			Content:   fmt.Sprintf("message %d", i),
			Ts:        startTs + int64(i)*1000,
		}
		if err := s.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}
}

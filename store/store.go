// Package store defines the session-store interface and implementations.
package store

import (
	"context"

	"github.com/xiaot623/replay/domain"
)

// Store is the session-store collaborator. The replay engine treats it as
// read-only and snapshots the four record streams at prepare time; the
// Create operations are the recording side used by the surrounding
// platform and by tests.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// Record writes
	CreateMessage(ctx context.Context, msg *domain.MessageRecord) error
	CreateCommunication(ctx context.Context, comm *domain.CommunicationRecord) error
	CreateSystemEvent(ctx context.Context, ev *domain.SystemEventRecord) error
	CreatePerformanceMetric(ctx context.Context, m *domain.PerformanceMetricRecord) error

	// Ordered reads of the four record streams, ascending by (ts, rowid).
	GetMessages(ctx context.Context, sessionID string) ([]domain.MessageRecord, error)
	GetCommunications(ctx context.Context, sessionID string) ([]domain.CommunicationRecord, error)
	GetSystemEvents(ctx context.Context, sessionID string) ([]domain.SystemEventRecord, error)
	GetPerformanceMetrics(ctx context.Context, sessionID string) ([]domain.PerformanceMetricRecord, error)

	// Lifecycle
	Close() error
}

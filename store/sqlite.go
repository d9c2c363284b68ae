package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/replay/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			title TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			metadata TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			agent TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			ts INTEGER NOT NULL,
			metadata TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, ts)`,
		`CREATE TABLE IF NOT EXISTS communications (
			comm_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			from_agent TEXT NOT NULL,
			to_agent TEXT NOT NULL,
			content TEXT NOT NULL,
			ts INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_communications_session ON communications(session_id, ts)`,
		`CREATE TABLE IF NOT EXISTS system_events (
			event_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			detail TEXT,
			ts INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_system_events_session ON system_events(session_id, ts)`,
		`CREATE TABLE IF NOT EXISTS performance_metrics (
			metric_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			unit TEXT,
			ts INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_performance_metrics_session ON performance_metrics(session_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	var metadata interface{}
	if session.Metadata != nil {
		metadata = string(session.Metadata)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, title, created_at, metadata) VALUES (?, ?, ?, ?)`,
		session.SessionID, session.Title, session.CreatedAt, metadata)
	return err
}

// GetSession retrieves a session by ID. Returns nil when absent.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var title, metadata sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, title, created_at, metadata FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &title, &session.CreatedAt, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if title.Valid {
		session.Title = title.String
	}
	if metadata.Valid {
		session.Metadata = json.RawMessage(metadata.String)
	}
	return &session, nil
}

// CreateMessage stores a manager/worker message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *domain.MessageRecord) error {
	var metadata interface{}
	if msg.Metadata != nil {
		metadata = string(msg.Metadata)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, agent, role, content, ts, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.MessageID, msg.SessionID, msg.Agent, msg.Role, msg.Content, msg.Ts, metadata)
	return err
}

// GetMessages retrieves the message stream for a session in stored order.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string) ([]domain.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, agent, role, content, ts, metadata FROM messages
		 WHERE session_id = ? ORDER BY ts ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.MessageRecord
	for rows.Next() {
		var msg domain.MessageRecord
		var metadata sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &msg.Agent, &msg.Role, &msg.Content, &msg.Ts, &metadata); err != nil {
			return nil, err
		}
		if metadata.Valid {
			msg.Metadata = json.RawMessage(metadata.String)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CreateCommunication stores an inter-agent exchange.
func (s *SQLiteStore) CreateCommunication(ctx context.Context, comm *domain.CommunicationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO communications (comm_id, session_id, from_agent, to_agent, content, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		comm.CommID, comm.SessionID, comm.FromAgent, comm.ToAgent, comm.Content, comm.Ts)
	return err
}

// GetCommunications retrieves the communication stream for a session in stored order.
func (s *SQLiteStore) GetCommunications(ctx context.Context, sessionID string) ([]domain.CommunicationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT comm_id, session_id, from_agent, to_agent, content, ts FROM communications
		 WHERE session_id = ? ORDER BY ts ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comms []domain.CommunicationRecord
	for rows.Next() {
		var comm domain.CommunicationRecord
		if err := rows.Scan(&comm.CommID, &comm.SessionID, &comm.FromAgent, &comm.ToAgent, &comm.Content, &comm.Ts); err != nil {
			return nil, err
		}
		comms = append(comms, comm)
	}
	return comms, rows.Err()
}

// CreateSystemEvent stores a system-level event.
func (s *SQLiteStore) CreateSystemEvent(ctx context.Context, ev *domain.SystemEventRecord) error {
	var detail interface{}
	if ev.Detail != nil {
		detail = string(ev.Detail)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_events (event_id, session_id, event_type, detail, ts) VALUES (?, ?, ?, ?, ?)`,
		ev.EventID, ev.SessionID, ev.EventType, detail, ev.Ts)
	return err
}

// GetSystemEvents retrieves the system-event stream for a session in stored order.
func (s *SQLiteStore) GetSystemEvents(ctx context.Context, sessionID string) ([]domain.SystemEventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, session_id, event_type, detail, ts FROM system_events
		 WHERE session_id = ? ORDER BY ts ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.SystemEventRecord
	for rows.Next() {
		var ev domain.SystemEventRecord
		var detail sql.NullString
		if err := rows.Scan(&ev.EventID, &ev.SessionID, &ev.EventType, &detail, &ev.Ts); err != nil {
			return nil, err
		}
		if detail.Valid {
			ev.Detail = json.RawMessage(detail.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CreatePerformanceMetric stores a performance sample.
func (s *SQLiteStore) CreatePerformanceMetric(ctx context.Context, m *domain.PerformanceMetricRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO performance_metrics (metric_id, session_id, metric, value, unit, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		m.MetricID, m.SessionID, m.Metric, m.Value, m.Unit, m.Ts)
	return err
}

// GetPerformanceMetrics retrieves the performance-sample stream for a session in stored order.
func (s *SQLiteStore) GetPerformanceMetrics(ctx context.Context, sessionID string) ([]domain.PerformanceMetricRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT metric_id, session_id, metric, value, unit, ts FROM performance_metrics
		 WHERE session_id = ? ORDER BY ts ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []domain.PerformanceMetricRecord
	for rows.Next() {
		var m domain.PerformanceMetricRecord
		var unit sql.NullString
		if err := rows.Scan(&m.MetricID, &m.SessionID, &m.Metric, &m.Value, &unit, &m.Ts); err != nil {
			return nil, err
		}
		if unit.Valid {
			m.Unit = unit.String
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	audit "tessera/pkg/platform/audit"
)

// Store persists the governance trail in an insert-only table. Per-subject
// ordering comes from a bigserial sequence column; rows are never updated.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts one audit event. Idempotent on the generated event ID.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, subject_type, subject, action,
			decision, reason, scope, previous_status, new_status,
			consent_version, study_id, request_id, actor_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		string(event.Category),
		event.Timestamp,
		string(event.SubjectType),
		event.Subject,
		event.Action,
		event.Decision,
		event.Reason,
		event.Scope,
		event.PreviousStatus,
		event.NewStatus,
		event.ConsentVersion,
		event.StudyID,
		event.RequestID,
		event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySubject returns events for one subject in append order.
func (s *Store) ListBySubject(ctx context.Context, subjectType audit.SubjectType, subject string) ([]audit.Event, error) {
	query := selectColumns + `
		WHERE subject_type = $1 AND subject = $2
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(subjectType), subject)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := selectColumns + `
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

const selectColumns = `
	SELECT category, timestamp, subject_type, subject, action,
		   decision, reason, scope, previous_status, new_status,
		   consent_version, study_id, request_id, actor_id
	FROM audit_events
`

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event       audit.Event
			category    string
			subjectType string
		)
		err := rows.Scan(
			&category,
			&event.Timestamp,
			&subjectType,
			&event.Subject,
			&event.Action,
			&event.Decision,
			&event.Reason,
			&event.Scope,
			&event.PreviousStatus,
			&event.NewStatus,
			&event.ConsentVersion,
			&event.StudyID,
			&event.RequestID,
			&event.ActorID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.SubjectType = audit.SubjectType(subjectType)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

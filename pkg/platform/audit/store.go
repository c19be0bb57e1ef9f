package audit

import "context"

// Store is an append-only event log. Implementations must guarantee that
// appends for the same (SubjectType, Subject) pair are strictly ordered;
// appends across subjects may interleave freely. Events are never updated or
// deleted.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectType SubjectType, subject string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

package consent

import (
	"context"
	"time"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/audit"
)

// Store persists consent records and their audit trail. Implementations are
// interface-driven so the in-memory and PostgreSQL versions are swappable
// without rewiring business code.
//
// Audit appends live on the same interface so a Tx implementation can make
// the state change and its trail entry atomic.
type Store interface {
	// Get returns the live record for (userID, scope), or sentinel.ErrNotFound.
	Get(ctx context.Context, userID id.UserID, scope id.ConsentScope) (*Consent, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*Consent, error)
	// Save upserts the single live record for (consent.UserID, consent.Scope).
	Save(ctx context.Context, consent *Consent) error
	// ListExpired returns granted records whose expiry has passed.
	ListExpired(ctx context.Context, now time.Time) ([]*Consent, error)
	// AppendAudit writes one trail entry; ordered per user.
	AppendAudit(ctx context.Context, event audit.Event) error
}

// Tx provides a transactional boundary for consent mutations. Implementations
// may wrap a database transaction or, in-memory, per-user sharded locks.
// Every public mutation runs its read-compute-write sequence inside RunInTx
// so concurrent callers cannot lose updates or audit entries.
type Tx interface {
	RunInTx(ctx context.Context, userID id.UserID, fn func(store Store) error) error
}

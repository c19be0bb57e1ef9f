package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/audit"
	"tessera/pkg/platform/sentinel"
)

// queryable abstracts *sql.DB and *sql.Tx so the same store code serves both
// the read path and the transactional mutation path.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists consent records in the consents table and audit
// entries in audit_events. One row per (user_id, scope); Save upserts.
type PostgresStore struct {
	q queryable
}

// NewPostgresStore builds a store over a database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{q: db} }

// newPostgresTxStore builds a store bound to an open transaction.
func newPostgresTxStore(tx *sql.Tx) *PostgresStore { return &PostgresStore{q: tx} }

const consentColumns = `
	user_id, scope, status, version, language_hash, study_id,
	presented_at, granted_at, expires_at, withdrawn_at, updated_at
`

func (s *PostgresStore) Get(ctx context.Context, userID id.UserID, scope id.ConsentScope) (*Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE user_id = $1 AND scope = $2`
	row := s.q.QueryRowContext(ctx, query, uuid.UUID(userID), scope.String())
	record, err := scanConsent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get consent: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE user_id = $1 ORDER BY scope`
	rows, err := s.q.QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()
	return scanConsents(rows)
}

func (s *PostgresStore) Save(ctx context.Context, consent *Consent) error {
	query := `
		INSERT INTO consents (` + consentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, scope) DO UPDATE SET
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			language_hash = EXCLUDED.language_hash,
			study_id = EXCLUDED.study_id,
			granted_at = EXCLUDED.granted_at,
			expires_at = EXCLUDED.expires_at,
			withdrawn_at = EXCLUDED.withdrawn_at,
			updated_at = EXCLUDED.updated_at
	`
	var studyID *uuid.UUID
	if !consent.StudyID.IsNil() {
		sid := uuid.UUID(consent.StudyID)
		studyID = &sid
	}
	_, err := s.q.ExecContext(ctx, query,
		uuid.UUID(consent.UserID),
		consent.Scope.String(),
		string(consent.Status),
		consent.Version,
		consent.LanguageHash,
		studyID,
		consent.PresentedAt,
		consent.GrantedAt,
		consent.ExpiresAt,
		consent.WithdrawnAt,
		consent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time) ([]*Consent, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consents
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2
	`
	rows, err := s.q.QueryContext(ctx, query, string(StatusGranted), now)
	if err != nil {
		return nil, fmt.Errorf("list expired consents: %w", err)
	}
	defer rows.Close()
	return scanConsents(rows)
}

// AppendAudit writes the trail entry in the same transaction as the state
// change when reached through the Tx path.
func (s *PostgresStore) AppendAudit(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, subject_type, subject, action,
			decision, reason, scope, previous_status, new_status,
			consent_version, study_id, request_id, actor_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.q.ExecContext(ctx, query,
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
		return fmt.Errorf("append consent audit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (*Consent, error) {
	var (
		record  Consent
		userID  uuid.UUID
		scope   string
		status  string
		studyID *uuid.UUID
	)
	err := row.Scan(
		&userID,
		&scope,
		&status,
		&record.Version,
		&record.LanguageHash,
		&studyID,
		&record.PresentedAt,
		&record.GrantedAt,
		&record.ExpiresAt,
		&record.WithdrawnAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.UserID = id.UserID(userID)
	record.Scope = id.ConsentScope(scope)
	record.Status = Status(status)
	if studyID != nil {
		record.StudyID = id.StudyID(*studyID)
	}
	return &record, nil
}

func scanConsents(rows *sql.Rows) ([]*Consent, error) {
	var records []*Consent
	for rows.Next() {
		record, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return records, nil
}

// PostgresTx runs consent mutations inside a database transaction, making the
// state change and its audit entry atomic.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

const defaultTxTimeout = 5 * time.Second

// NewPostgresTx builds the transactional boundary for consent mutations.
func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db, timeout: defaultTxTimeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, _ id.UserID, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(newPostgresTxStore(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

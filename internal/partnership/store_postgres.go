package partnership

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/audit"
	"tessera/pkg/platform/sentinel"
)

type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists requests and agreements. Allowed element and format
// lists are text arrays; the agreement's own audit log is a jsonb column,
// append-only at the service layer.
type PostgresStore struct {
	q queryable
}

// NewPostgresStore builds a store over a database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{q: db} }

func newPostgresTxStore(tx *sql.Tx) *PostgresStore { return &PostgresStore{q: tx} }

const requestColumns = `
	id, organization, contact_email, proposal, status, reviewer,
	review_notes, agreement_id, submitted_at, updated_at
`

func (s *PostgresStore) CreateRequest(ctx context.Context, request *Request) error {
	query := `
		INSERT INTO partnership_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	return s.execRequest(ctx, query, request, "create partnership request")
}

func (s *PostgresStore) SaveRequest(ctx context.Context, request *Request) error {
	query := `
		INSERT INTO partnership_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			reviewer = EXCLUDED.reviewer,
			review_notes = EXCLUDED.review_notes,
			agreement_id = EXCLUDED.agreement_id,
			updated_at = EXCLUDED.updated_at
	`
	return s.execRequest(ctx, query, request, "save partnership request")
}

func (s *PostgresStore) execRequest(ctx context.Context, query string, request *Request, op string) error {
	var agreementID *uuid.UUID
	if !request.AgreementID.IsNil() {
		aid := uuid.UUID(request.AgreementID)
		agreementID = &aid
	}
	_, err := s.q.ExecContext(ctx, query,
		uuid.UUID(request.ID),
		request.Organization,
		request.ContactEmail,
		request.Proposal,
		string(request.Status),
		request.Reviewer,
		request.ReviewNotes,
		agreementID,
		request.SubmittedAt,
		request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, requestID id.PartnershipRequestID) (*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM partnership_requests WHERE id = $1`
	row := s.q.QueryRowContext(ctx, query, uuid.UUID(requestID))
	request, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get partnership request: %w", err)
	}
	return request, nil
}

func (s *PostgresStore) ListRequests(ctx context.Context) ([]*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM partnership_requests ORDER BY submitted_at`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list partnership requests: %w", err)
	}
	defer rows.Close()
	var requests []*Request
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan partnership request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partnership requests: %w", err)
	}
	return requests, nil
}

const agreementColumns = `
	id, request_id, partner_name, status, allowed_elements, allowed_formats,
	effective_at, expires_at, credential_hash, audit_log, created_at, updated_at
`

func (s *PostgresStore) CreateAgreement(ctx context.Context, agreement *Agreement) error {
	query := `
		INSERT INTO partnership_agreements (` + agreementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	return s.execAgreement(ctx, query, agreement, "create agreement")
}

func (s *PostgresStore) SaveAgreement(ctx context.Context, agreement *Agreement) error {
	query := `
		INSERT INTO partnership_agreements (` + agreementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			allowed_elements = EXCLUDED.allowed_elements,
			allowed_formats = EXCLUDED.allowed_formats,
			effective_at = EXCLUDED.effective_at,
			expires_at = EXCLUDED.expires_at,
			audit_log = EXCLUDED.audit_log,
			updated_at = EXCLUDED.updated_at
	`
	return s.execAgreement(ctx, query, agreement, "save agreement")
}

func (s *PostgresStore) execAgreement(ctx context.Context, query string, agreement *Agreement, op string) error {
	auditLog, err := json.Marshal(agreement.AuditLog)
	if err != nil {
		return fmt.Errorf("%s: encode audit log: %w", op, err)
	}
	_, err = s.q.ExecContext(ctx, query,
		uuid.UUID(agreement.ID),
		uuid.UUID(agreement.RequestID),
		agreement.PartnerName,
		string(agreement.Status),
		pq.Array(agreement.AllowedElements),
		pq.Array(agreement.AllowedFormats),
		agreement.EffectiveAt,
		agreement.ExpiresAt,
		agreement.CredentialHash,
		auditLog,
		agreement.CreatedAt,
		agreement.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) GetAgreement(ctx context.Context, agreementID id.AgreementID) (*Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM partnership_agreements WHERE id = $1`
	row := s.q.QueryRowContext(ctx, query, uuid.UUID(agreementID))
	agreement, err := scanAgreement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agreement: %w", err)
	}
	return agreement, nil
}

func (s *PostgresStore) ListAgreements(ctx context.Context) ([]*Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM partnership_agreements ORDER BY created_at`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	defer rows.Close()
	var agreements []*Agreement
	for rows.Next() {
		agreement, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agreement: %w", err)
		}
		agreements = append(agreements, agreement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agreements: %w", err)
	}
	return agreements, nil
}

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
		return fmt.Errorf("append partnership audit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		request     Request
		requestID   uuid.UUID
		status      string
		agreementID *uuid.UUID
	)
	err := row.Scan(
		&requestID,
		&request.Organization,
		&request.ContactEmail,
		&request.Proposal,
		&status,
		&request.Reviewer,
		&request.ReviewNotes,
		&agreementID,
		&request.SubmittedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	request.ID = id.PartnershipRequestID(requestID)
	request.Status = RequestStatus(status)
	if agreementID != nil {
		request.AgreementID = id.AgreementID(*agreementID)
	}
	return &request, nil
}

func scanAgreement(row rowScanner) (*Agreement, error) {
	var (
		agreement   Agreement
		agreementID uuid.UUID
		requestID   uuid.UUID
		status      string
		elements    pq.StringArray
		formats     pq.StringArray
		auditLog    []byte
	)
	err := row.Scan(
		&agreementID,
		&requestID,
		&agreement.PartnerName,
		&status,
		&elements,
		&formats,
		&agreement.EffectiveAt,
		&agreement.ExpiresAt,
		&agreement.CredentialHash,
		&auditLog,
		&agreement.CreatedAt,
		&agreement.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	agreement.ID = id.AgreementID(agreementID)
	agreement.RequestID = id.PartnershipRequestID(requestID)
	agreement.Status = AgreementStatus(status)
	agreement.AllowedElements = []string(elements)
	agreement.AllowedFormats = []string(formats)
	if len(auditLog) > 0 {
		if err := json.Unmarshal(auditLog, &agreement.AuditLog); err != nil {
			return nil, fmt.Errorf("decode audit log: %w", err)
		}
	}
	return &agreement, nil
}

// PostgresTx runs governance mutations inside a database transaction.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

const defaultTxTimeout = 5 * time.Second

// NewPostgresTx builds the transactional boundary for governance mutations.
func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db, timeout: defaultTxTimeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, _ string, fn func(store Store) error) error {
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

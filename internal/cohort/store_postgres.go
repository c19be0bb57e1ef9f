package cohort

import (
	"context"
	"database/sql"
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

// PostgresStore persists cohorts, members, and their audit entries. Criteria
// array fields are stored as text arrays; pointer criteria flatten to
// nullable columns.
type PostgresStore struct {
	q queryable
}

// NewPostgresStore builds a store over a database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{q: db} }

func newPostgresTxStore(tx *sql.Tx) *PostgresStore { return &PostgresStore{q: tx} }

const cohortColumns = `
	id, name, description, member_count, study_id, is_locked, locked_at,
	expires_at, created_at, created_by,
	crit_age_bands, crit_regions, crit_contexts, crit_min_signals,
	crit_min_days_active, crit_active_from, crit_active_to,
	crit_require_intervention, crit_min_quality
`

func (s *PostgresStore) CreateCohort(ctx context.Context, cohort *Cohort) error {
	query := `
		INSERT INTO cohorts (` + cohortColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	return s.execCohort(ctx, query, cohort, "create cohort")
}

func (s *PostgresStore) SaveCohort(ctx context.Context, cohort *Cohort) error {
	query := `
		INSERT INTO cohorts (` + cohortColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			member_count = EXCLUDED.member_count,
			is_locked = EXCLUDED.is_locked,
			locked_at = EXCLUDED.locked_at,
			expires_at = EXCLUDED.expires_at,
			crit_age_bands = EXCLUDED.crit_age_bands,
			crit_regions = EXCLUDED.crit_regions,
			crit_contexts = EXCLUDED.crit_contexts,
			crit_min_signals = EXCLUDED.crit_min_signals,
			crit_min_days_active = EXCLUDED.crit_min_days_active,
			crit_active_from = EXCLUDED.crit_active_from,
			crit_active_to = EXCLUDED.crit_active_to,
			crit_require_intervention = EXCLUDED.crit_require_intervention,
			crit_min_quality = EXCLUDED.crit_min_quality
	`
	return s.execCohort(ctx, query, cohort, "save cohort")
}

func (s *PostgresStore) execCohort(ctx context.Context, query string, cohort *Cohort, op string) error {
	var studyID *uuid.UUID
	if !cohort.StudyID.IsNil() {
		sid := uuid.UUID(cohort.StudyID)
		studyID = &sid
	}
	_, err := s.q.ExecContext(ctx, query,
		uuid.UUID(cohort.ID),
		cohort.Name,
		cohort.Description,
		cohort.MemberCount,
		studyID,
		cohort.IsLocked,
		cohort.LockedAt,
		cohort.ExpiresAt,
		cohort.CreatedAt,
		cohort.CreatedBy,
		pq.Array(ageBandStrings(cohort.Criteria.AgeBands)),
		pq.Array(regionStrings(cohort.Criteria.Regions)),
		pq.Array(contextStrings(cohort.Criteria.Contexts)),
		cohort.Criteria.MinSignalCount,
		cohort.Criteria.MinDaysActive,
		cohort.Criteria.ActiveFrom,
		cohort.Criteria.ActiveTo,
		cohort.Criteria.RequireIntervention,
		cohort.Criteria.MinQualityScore,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) GetCohort(ctx context.Context, cohortID id.CohortID) (*Cohort, error) {
	query := `SELECT ` + cohortColumns + ` FROM cohorts WHERE id = $1`
	row := s.q.QueryRowContext(ctx, query, uuid.UUID(cohortID))
	cohort, err := scanCohort(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cohort: %w", err)
	}
	return cohort, nil
}

func (s *PostgresStore) DeleteCohort(ctx context.Context, cohortID id.CohortID) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM cohort_members WHERE cohort_id = $1`, uuid.UUID(cohortID)); err != nil {
		return fmt.Errorf("delete cohort members: %w", err)
	}
	result, err := s.q.ExecContext(ctx, `DELETE FROM cohorts WHERE id = $1`, uuid.UUID(cohortID))
	if err != nil {
		return fmt.Errorf("delete cohort: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListCohorts(ctx context.Context) ([]*Cohort, error) {
	query := `SELECT ` + cohortColumns + ` FROM cohorts ORDER BY created_at`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cohorts: %w", err)
	}
	defer rows.Close()
	var cohorts []*Cohort
	for rows.Next() {
		cohort, err := scanCohort(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cohort: %w", err)
		}
		cohorts = append(cohorts, cohort)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cohorts: %w", err)
	}
	return cohorts, nil
}

const memberColumns = `
	cohort_id, participant_id, age_band, region, context, signal_count,
	days_active, first_signal_at, last_signal_at, has_intervention_markers,
	quality_score, enrolled_at
`

func (s *PostgresStore) UpsertMember(ctx context.Context, member *Member) error {
	query := `
		INSERT INTO cohort_members (` + memberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (cohort_id, participant_id) DO UPDATE SET
			signal_count = EXCLUDED.signal_count,
			days_active = EXCLUDED.days_active,
			first_signal_at = EXCLUDED.first_signal_at,
			last_signal_at = EXCLUDED.last_signal_at,
			has_intervention_markers = EXCLUDED.has_intervention_markers,
			quality_score = EXCLUDED.quality_score
	`
	_, err := s.q.ExecContext(ctx, query,
		uuid.UUID(member.CohortID),
		uuid.UUID(member.ParticipantID),
		string(member.AgeBand),
		string(member.Region),
		string(member.Context),
		member.SignalCount,
		member.DaysActive,
		member.FirstSignalAt,
		member.LastSignalAt,
		member.HasInterventionMarkers,
		member.QualityScore,
		member.EnrolledAt,
	)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMember(ctx context.Context, cohortID id.CohortID, participantID id.ParticipantID) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM cohort_members WHERE cohort_id = $1 AND participant_id = $2`
	row := s.q.QueryRowContext(ctx, query, uuid.UUID(cohortID), uuid.UUID(participantID))
	member, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return member, nil
}

func (s *PostgresStore) DeleteMember(ctx context.Context, cohortID id.CohortID, participantID id.ParticipantID) error {
	result, err := s.q.ExecContext(ctx,
		`DELETE FROM cohort_members WHERE cohort_id = $1 AND participant_id = $2`,
		uuid.UUID(cohortID), uuid.UUID(participantID))
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, cohortID id.CohortID) ([]*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM cohort_members WHERE cohort_id = $1 ORDER BY enrolled_at`
	rows, err := s.q.QueryContext(ctx, query, uuid.UUID(cohortID))
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	var members []*Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
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
		return fmt.Errorf("append cohort audit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCohort(row rowScanner) (*Cohort, error) {
	var (
		cohort   Cohort
		cohortID uuid.UUID
		studyID  *uuid.UUID
		bands    pq.StringArray
		regions  pq.StringArray
		contexts pq.StringArray
	)
	err := row.Scan(
		&cohortID,
		&cohort.Name,
		&cohort.Description,
		&cohort.MemberCount,
		&studyID,
		&cohort.IsLocked,
		&cohort.LockedAt,
		&cohort.ExpiresAt,
		&cohort.CreatedAt,
		&cohort.CreatedBy,
		&bands,
		&regions,
		&contexts,
		&cohort.Criteria.MinSignalCount,
		&cohort.Criteria.MinDaysActive,
		&cohort.Criteria.ActiveFrom,
		&cohort.Criteria.ActiveTo,
		&cohort.Criteria.RequireIntervention,
		&cohort.Criteria.MinQualityScore,
	)
	if err != nil {
		return nil, err
	}
	cohort.ID = id.CohortID(cohortID)
	if studyID != nil {
		cohort.StudyID = id.StudyID(*studyID)
	}
	for _, band := range bands {
		cohort.Criteria.AgeBands = append(cohort.Criteria.AgeBands, AgeBand(band))
	}
	for _, region := range regions {
		cohort.Criteria.Regions = append(cohort.Criteria.Regions, Region(region))
	}
	for _, context := range contexts {
		cohort.Criteria.Contexts = append(cohort.Criteria.Contexts, Context(context))
	}
	return &cohort, nil
}

func scanMember(row rowScanner) (*Member, error) {
	var (
		member        Member
		cohortID      uuid.UUID
		participantID uuid.UUID
		band          string
		region        string
		context       string
	)
	err := row.Scan(
		&cohortID,
		&participantID,
		&band,
		&region,
		&context,
		&member.SignalCount,
		&member.DaysActive,
		&member.FirstSignalAt,
		&member.LastSignalAt,
		&member.HasInterventionMarkers,
		&member.QualityScore,
		&member.EnrolledAt,
	)
	if err != nil {
		return nil, err
	}
	member.CohortID = id.CohortID(cohortID)
	member.ParticipantID = id.ParticipantID(participantID)
	member.AgeBand = AgeBand(band)
	member.Region = Region(region)
	member.Context = Context(context)
	return &member, nil
}

func ageBandStrings(bands []AgeBand) []string {
	out := make([]string, len(bands))
	for i, b := range bands {
		out[i] = string(b)
	}
	return out
}

func regionStrings(regions []Region) []string {
	out := make([]string, len(regions))
	for i, r := range regions {
		out[i] = string(r)
	}
	return out
}

func contextStrings(contexts []Context) []string {
	out := make([]string, len(contexts))
	for i, c := range contexts {
		out[i] = string(c)
	}
	return out
}

// PostgresTx runs cohort mutations inside a database transaction so the
// member change, the count update, and the audit entry commit together.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

const defaultTxTimeout = 5 * time.Second

// NewPostgresTx builds the transactional boundary for cohort mutations.
func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db, timeout: defaultTxTimeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, _ id.CohortID, fn func(store Store) error) error {
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

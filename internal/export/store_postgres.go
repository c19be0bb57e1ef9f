package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/audit"
	"tessera/pkg/platform/sentinel"
)

// PostgresStore persists export packages. The file manifest and access log
// are jsonb columns; AppendAccess grows the log in a single statement so
// concurrent readers cannot drop entries.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore builds a store over a database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const exportColumns = `
	id, cohort_id, agreement_id, format, generated_at, generated_by,
	study_id, protocol_version, record_count, file_manifest,
	avg_quality_score, date_range_start, date_range_end, deid_method,
	source_types, access_log
`

func (s *PostgresStore) Create(ctx context.Context, pkg *Package) error {
	manifest, err := json.Marshal(pkg.FileManifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	accessLog, err := json.Marshal(pkg.AccessLog)
	if err != nil {
		return fmt.Errorf("encode access log: %w", err)
	}
	var studyID *uuid.UUID
	if !pkg.StudyID.IsNil() {
		sid := uuid.UUID(pkg.StudyID)
		studyID = &sid
	}
	query := `
		INSERT INTO export_packages (` + exportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(pkg.ID),
		uuid.UUID(pkg.CohortID),
		uuid.UUID(pkg.AgreementID),
		string(pkg.Format),
		pkg.GeneratedAt,
		pkg.GeneratedBy,
		studyID,
		pkg.ProtocolVersion,
		pkg.RecordCount,
		manifest,
		pkg.Metadata.AvgQualityScore,
		pkg.Metadata.DateRangeStart,
		pkg.Metadata.DateRangeEnd,
		pkg.Metadata.DeidMethod,
		pq.Array(pkg.Metadata.SourceTypes),
		accessLog,
	)
	if err != nil {
		return fmt.Errorf("create export package: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, exportID id.ExportID) (*Package, error) {
	query := `SELECT ` + exportColumns + ` FROM export_packages WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(exportID))
	pkg, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get export package: %w", err)
	}
	return pkg, nil
}

// AppendAccess grows the jsonb access log atomically server-side.
func (s *PostgresStore) AppendAccess(ctx context.Context, exportID id.ExportID, entry AccessEntry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode access entry: %w", err)
	}
	query := `
		UPDATE export_packages
		SET access_log = access_log || $2::jsonb
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, uuid.UUID(exportID), encoded)
	if err != nil {
		return fmt.Errorf("append export access: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByCohort(ctx context.Context, cohortID id.CohortID) ([]*Package, error) {
	query := `SELECT ` + exportColumns + ` FROM export_packages WHERE cohort_id = $1 ORDER BY generated_at`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(cohortID))
	if err != nil {
		return nil, fmt.Errorf("list export packages: %w", err)
	}
	defer rows.Close()
	var packages []*Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export package: %w", err)
		}
		packages = append(packages, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export packages: %w", err)
	}
	return packages, nil
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
		return fmt.Errorf("append export audit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackage(row rowScanner) (*Package, error) {
	var (
		pkg         Package
		exportID    uuid.UUID
		cohortID    uuid.UUID
		agreementID uuid.UUID
		format      string
		studyID     *uuid.UUID
		manifest    []byte
		sources     pq.StringArray
		accessLog   []byte
	)
	err := row.Scan(
		&exportID,
		&cohortID,
		&agreementID,
		&format,
		&pkg.GeneratedAt,
		&pkg.GeneratedBy,
		&studyID,
		&pkg.ProtocolVersion,
		&pkg.RecordCount,
		&manifest,
		&pkg.Metadata.AvgQualityScore,
		&pkg.Metadata.DateRangeStart,
		&pkg.Metadata.DateRangeEnd,
		&pkg.Metadata.DeidMethod,
		&sources,
		&accessLog,
	)
	if err != nil {
		return nil, err
	}
	pkg.ID = id.ExportID(exportID)
	pkg.CohortID = id.CohortID(cohortID)
	pkg.AgreementID = id.AgreementID(agreementID)
	pkg.Format = Format(format)
	if studyID != nil {
		pkg.StudyID = id.StudyID(*studyID)
	}
	pkg.Metadata.SourceTypes = []string(sources)
	if err := json.Unmarshal(manifest, &pkg.FileManifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := json.Unmarshal(accessLog, &pkg.AccessLog); err != nil {
		return nil, fmt.Errorf("decode access log: %w", err)
	}
	return &pkg, nil
}
